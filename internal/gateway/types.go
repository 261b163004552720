package gateway

import (
	"context"
	"time"
)

// GatewayAdapter delivers nexus events to one platform.
type GatewayAdapter interface {
	Platform() string
	Connect(ctx context.Context) error
	Broadcast(ctx context.Context, evt *Event) error
	Close() error
	Status() AdapterStatus
}

// EventFilter is implemented by adapters that only want some events.
type EventFilter interface {
	Accepts(evt *Event) bool
}

// AdapterStatus reports an adapter's connection state.
type AdapterStatus struct {
	Platform    string     `json:"platform"`
	Connected   bool       `json:"connected"`
	ConnectedAt *time.Time `json:"connected_at,omitempty"`
	Error       string     `json:"error,omitempty"`
	Details     string     `json:"details,omitempty"`
}

// EventType categorizes events.
type EventType string

const (
	EventBreath        EventType = "breath"
	EventCycleComplete EventType = "cycle_complete"
	EventGeneration    EventType = "generation"
	EventExport        EventType = "export"
)

// Event is fanned out to every matching adapter.
type Event struct {
	Type      EventType `json:"type"`
	Phase     string    `json:"phase,omitempty"`
	Cycle     int       `json:"cycle,omitempty"`
	Title     string    `json:"title,omitempty"`
	Summary   string    `json:"summary,omitempty"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	// Platforms restricts delivery. Empty means every adapter.
	Platforms []string `json:"-"`
}

// Chatty reports whether the event is meant for chat platforms. Breath marks
// fire several times per cycle and only go to realtime clients.
func (e *Event) Chatty() bool {
	return e.Type == EventGeneration || e.Type == EventExport
}
