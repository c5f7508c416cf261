package streaming

import (
	"context"

	"github.com/rendis/conduit/internal/store"
)

// EventRecorded is emitted once an execution log entry has been persisted
// (or handed to the fallback channel).
const EventRecorded = "execution.recorded"

// StreamEvent is a live-tail event carrying one execution log entry.
type StreamEvent struct {
	EventType string                  `json:"event_type"`
	Entry     store.ExecutionLogEntry `json:"entry"`
}

// EventFilter specifies which entries a subscriber wants to receive.
type EventFilter struct {
	Action   string   `json:"action,omitempty"`
	CallerID string   `json:"caller_id,omitempty"`
	Statuses []string `json:"statuses,omitempty"`
}

// EventHub provides pub/sub for recorded executions.
type EventHub interface {
	Publish(ctx context.Context, event StreamEvent) error
	Subscribe(ctx context.Context, filter EventFilter) (<-chan StreamEvent, func(), error)
}
