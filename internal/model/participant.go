package model

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/AIoTwin-Adaptive-FL-Orch/dfl-orchestrator/internal/jsondoc"
)

type DeviceArgs struct {
	Idx   int    `json:"idx" validate:"min=0"`
	Uid   string `json:"uid"`
	Start bool   `json:"start"`
	Role  string `json:"role,omitempty"`
}

type NetworkArgs struct {
	Ip        string       `json:"ip" validate:"required,ip|hostname"`
	Port      int          `json:"port" validate:"min=1,max=65535"`
	IpDemo    string       `json:"ipdemo"`
	Neighbors NeighborList `json:"neighbors"`
}

type ScenarioArgs struct {
	Federation string `json:"federation"`
	NNodes     int    `json:"n_nodes" validate:"min=0"`
	Name       string `json:"name"`
	StartTime  string `json:"start_time"`
}

type GeoArgs struct {
	Latitude  float64 `json:"latitude" validate:"min=-90,max=90"`
	Longitude float64 `json:"longitude" validate:"min=-180,max=180"`
	Pinned    bool    `json:"pinned,omitempty"`
}

type TrackingArgs struct {
	LogDir    string `json:"log_dir"`
	ConfigDir string `json:"config_dir"`
}

// ParticipantConfig is the configuration record of one participant. Document
// keeps the file as it was read so that unknown keys survive a rewrite.
type ParticipantConfig struct {
	DeviceArgs   DeviceArgs   `json:"device_args"`
	NetworkArgs  NetworkArgs  `json:"network_args"`
	ScenarioArgs ScenarioArgs `json:"scenario_args"`
	GeoArgs      GeoArgs      `json:"geo_args"`
	TrackingArgs TrackingArgs `json:"tracking_args"`

	Path     string          `json:"-"`
	Document *jsondoc.Object `json:"-"`
}

func (participant *ParticipantConfig) Address() string {
	return fmt.Sprintf("%s:%d", participant.NetworkArgs.Ip, participant.NetworkArgs.Port)
}

// SyncDocument writes the typed sections back into Document.
func (participant *ParticipantConfig) SyncDocument() error {
	if participant.Document == nil {
		participant.Document = jsondoc.NewObject()
	}

	sections := []struct {
		name  string
		value any
	}{
		{"device_args", participant.DeviceArgs},
		{"network_args", participant.NetworkArgs},
		{"scenario_args", participant.ScenarioArgs},
		{"geo_args", participant.GeoArgs},
		{"tracking_args", participant.TrackingArgs},
	}

	for _, section := range sections {
		child, err := participant.Document.Child(section.name)
		if err != nil {
			return err
		}
		if err := child.Merge(section.value); err != nil {
			return fmt.Errorf("section %s: %w", section.name, err)
		}
		if err := participant.Document.SetChild(section.name, child); err != nil {
			return err
		}
	}

	return nil
}

// NeighborList is encoded as a JSON array of "ip:port" strings. Older files
// carry a single space separated string, which is accepted on read.
type NeighborList []string

func (n *NeighborList) UnmarshalJSON(b []byte) error {
	if len(b) >= 2 && b[0] == '"' && b[len(b)-1] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*n = strings.Fields(s)
		return nil
	}

	var list []string
	if err := json.Unmarshal(b, &list); err != nil {
		return fmt.Errorf("invalid neighbor list: %w", err)
	}
	*n = list
	return nil
}

func (n NeighborList) MarshalJSON() ([]byte, error) {
	if n == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]string(n))
}
