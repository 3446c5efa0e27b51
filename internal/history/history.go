package history

import (
	"context"
	"time"
)

// EventType defines the kind of lifecycle event.
type EventType string

const (
	EventLaunch        EventType = "launch"
	EventReuse         EventType = "reuse"
	EventStartupFailed EventType = "startup_failed"
	EventTerminate     EventType = "terminate"
)

// Record is the process state captured with an event.
type Record struct {
	Name    string `json:"name"`
	PID     int    `json:"pid"`
	LogPath string `json:"log_path"`
	// Status holds the termination result or "ready" for launches.
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Event represents a lifecycle event exported to an audit store.
type Event struct {
	Type       EventType `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Session    string    `json:"session"`
	Record     Record    `json:"record"`
}

// Sink is a destination for history events.
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
}
