package store

import (
	"context"
	"time"
)

// LogWriter appends execution log entries. AppendEntries is all-or-nothing
// and idempotent per (requestId, startedAt), so a batch may be retried.
type LogWriter interface {
	AppendEntries(ctx context.Context, entries []ExecutionLogEntry) error
}

// LogReader queries the execution log, newest first.
type LogReader interface {
	QueryEntries(ctx context.Context, filter LogFilter) ([]*ExecutionLogEntry, error)
}

// Purger deletes entries recorded before a cutoff.
type Purger interface {
	PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Store is the full execution log contract.
// All implementations must be safe for concurrent use.
type Store interface {
	LogWriter
	LogReader
	Purger
	Close() error
}
