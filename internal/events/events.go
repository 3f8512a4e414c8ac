package events

import (
	"sync"
	"time"
)

// Event represents a generic event structure
type Event struct {
	Type      string
	Timestamp time.Time
	Data      interface{}
}

// ScenarioStateChangedEvent represents a transition of the orchestration state machine
type ScenarioStateChangedEvent struct {
	RunId    string
	Scenario string
	From     string
	To       string
	Error    string
}

// ParticipantSpawnedEvent represents the event structure for an accepted launch request
type ParticipantSpawnedEvent struct {
	Index      int
	Pid        int
	ConfigPath string
}

// PeerReadyEvent represents a peer that accepted a connection on its listening address
type PeerReadyEvent struct {
	RunId   string
	Index   int
	Address string
}

// EventBus represents the event bus that handles event subscription and dispatching
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[string][]chan<- Event
}

// NewEventBus creates a new instance of the event bus
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[string][]chan<- Event),
	}
}

// Subscribe adds a new subscriber for a given event type
func (eb *EventBus) Subscribe(eventType string, subscriber chan<- Event) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.subscribers[eventType] = append(eb.subscribers[eventType], subscriber)
}

// Unsubscribe removes a subscriber for a given event type
func (eb *EventBus) Unsubscribe(eventType string, subscriber chan<- Event) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	subscribers := eb.subscribers[eventType]
	for i, existing := range subscribers {
		if existing == subscriber {
			eb.subscribers[eventType] = append(subscribers[:i], subscribers[i+1:]...)
			return
		}
	}
}

// Publish sends an event to all subscribers of a given event type. A subscriber
// whose channel is full misses the event.
func (eb *EventBus) Publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	eb.mu.RLock()
	defer eb.mu.RUnlock()

	for _, subscriber := range eb.subscribers[event.Type] {
		select {
		case subscriber <- event:
		default:
		}
	}
}
