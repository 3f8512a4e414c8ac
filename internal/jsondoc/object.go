package jsondoc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// Object is a JSON object that remembers the order of its keys, so a file can
// be read, patched and written back without reshuffling it.
type Object struct {
	keys   []string
	values map[string]json.RawMessage
}

func NewObject() *Object {
	return &Object{
		keys:   []string{},
		values: make(map[string]json.RawMessage),
	}
}

// Parse reads a single JSON object. Duplicate keys keep their first position
// and their last value. Anything but whitespace after the object is an error.
func Parse(data []byte) (*Object, error) {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()

	token, err := decoder.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := token.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("expected JSON object, got %v", token)
	}

	object := NewObject()
	for decoder.More() {
		token, err := decoder.Token()
		if err != nil {
			return nil, err
		}
		key, ok := token.(string)
		if !ok {
			return nil, fmt.Errorf("expected object key, got %v", token)
		}

		var value json.RawMessage
		if err := decoder.Decode(&value); err != nil {
			return nil, fmt.Errorf("key %q: %w", key, err)
		}
		object.Set(key, value)
	}

	if _, err := decoder.Token(); err != nil {
		return nil, err
	}
	if token, err := decoder.Token(); err != io.EOF {
		if err != nil {
			return nil, fmt.Errorf("after JSON object: %w", err)
		}
		return nil, fmt.Errorf("unexpected %v after JSON object", token)
	}

	return object, nil
}

func (o *Object) Keys() []string {
	keys := make([]string, len(o.keys))
	copy(keys, o.keys)
	return keys
}

func (o *Object) Has(key string) bool {
	_, found := o.values[key]
	return found
}

func (o *Object) Get(key string) (json.RawMessage, bool) {
	value, found := o.values[key]
	return value, found
}

// Set replaces the value of an existing key in place or appends a new key.
func (o *Object) Set(key string, value json.RawMessage) {
	compacted := &bytes.Buffer{}
	if err := json.Compact(compacted, value); err == nil {
		value = compacted.Bytes()
	}

	if _, found := o.values[key]; !found {
		o.keys = append(o.keys, key)
	}
	o.values[key] = value
}

// Child returns the nested object stored under key, or an empty object when
// the key is absent.
func (o *Object) Child(key string) (*Object, error) {
	value, found := o.values[key]
	if !found {
		return NewObject(), nil
	}

	child, err := Parse(value)
	if err != nil {
		return nil, fmt.Errorf("key %q: %w", key, err)
	}

	return child, nil
}

func (o *Object) SetChild(key string, child *Object) error {
	value, err := child.MarshalJSON()
	if err != nil {
		return err
	}
	o.Set(key, value)
	return nil
}

// Merge marshals v (which must encode to a JSON object) and copies its keys
// into o, keeping the position of keys that already exist.
func (o *Object) Merge(v any) error {
	encoded, err := json.Marshal(v)
	if err != nil {
		return err
	}

	patch, err := Parse(encoded)
	if err != nil {
		return err
	}

	for _, key := range patch.keys {
		o.Set(key, patch.values[key])
	}

	return nil
}

func (o *Object) MarshalJSON() ([]byte, error) {
	buffer := &bytes.Buffer{}
	buffer.WriteByte('{')
	for i, key := range o.keys {
		if i > 0 {
			buffer.WriteByte(',')
		}
		encodedKey, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		buffer.Write(encodedKey)
		buffer.WriteByte(':')
		buffer.Write(o.values[key])
	}
	buffer.WriteByte('}')

	return buffer.Bytes(), nil
}

func (o *Object) MarshalIndent(indent string) ([]byte, error) {
	compact, err := o.MarshalJSON()
	if err != nil {
		return nil, err
	}

	indented := &bytes.Buffer{}
	if err := json.Indent(indented, compact, "", indent); err != nil {
		return nil, err
	}
	indented.WriteByte('\n')

	return indented.Bytes(), nil
}
