package store

import (
	"time"

	"github.com/rendis/conduit/pkg/schema"
)

// ExecutionLogEntry is one persisted invocation outcome. Arguments hold the
// sanitized projection only, never message bodies or free text.
type ExecutionLogEntry struct {
	ID         int64                `json:"id,omitempty"`
	RequestID  string               `json:"requestId"`
	ActionName string               `json:"actionName"`
	CallerID   string               `json:"callerId"`
	Arguments  map[string]any       `json:"sanitizedArguments"`
	StartedAt  time.Time            `json:"startedAt"`
	DurationMs int64                `json:"durationMs"`
	Status     schema.OutcomeStatus `json:"status"`
	ErrorCode  schema.ErrorCode     `json:"errorCode,omitempty"`
	Timestamp  time.Time            `json:"timestamp"`
}

// LogFilter selects execution log entries. Zero fields do not filter.
// Since is inclusive, Until exclusive.
type LogFilter struct {
	Action   string
	CallerID string
	Status   schema.OutcomeStatus
	Since    time.Time
	Until    time.Time
	Limit    int
}

// Query limits.
const (
	DefaultQueryLimit = 100
	MaxQueryLimit     = 1000
)

// EffectiveLimit clamps the filter's limit to (0, MaxQueryLimit].
func (f LogFilter) EffectiveLimit() int {
	switch {
	case f.Limit <= 0:
		return DefaultQueryLimit
	case f.Limit > MaxQueryLimit:
		return MaxQueryLimit
	}
	return f.Limit
}

// Matches reports whether e passes the filter (limit aside).
func (f LogFilter) Matches(e *ExecutionLogEntry) bool {
	if f.Action != "" && e.ActionName != f.Action {
		return false
	}
	if f.CallerID != "" && e.CallerID != f.CallerID {
		return false
	}
	if f.Status != "" && e.Status != f.Status {
		return false
	}
	if !f.Since.IsZero() && e.Timestamp.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && !e.Timestamp.Before(f.Until) {
		return false
	}
	return true
}
