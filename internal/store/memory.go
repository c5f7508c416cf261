package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-process Store used when no database path is
// configured, and by tests.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []ExecutionLogEntry
	seen    map[entryKey]struct{}
	nextID  int64
}

type entryKey struct {
	requestID string
	startedAt int64
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{seen: make(map[entryKey]struct{})}
}

// AppendEntries appends a batch, skipping entries already stored.
func (m *MemoryStore) AppendEntries(_ context.Context, entries []ExecutionLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, e := range entries {
		key := entryKey{requestID: e.RequestID, startedAt: toMillis(e.StartedAt)}
		if _, dup := m.seen[key]; dup {
			continue
		}
		m.seen[key] = struct{}{}
		m.nextID++
		e.ID = m.nextID
		e.Timestamp = timeOrNow(e.Timestamp)
		e.Arguments = copyMap(e.Arguments)
		m.entries = append(m.entries, e)
	}
	return nil
}

// QueryEntries returns matching entries, newest first.
func (m *MemoryStore) QueryEntries(_ context.Context, filter LogFilter) ([]*ExecutionLogEntry, error) {
	m.mu.RLock()
	var out []*ExecutionLogEntry
	for i := range m.entries {
		if filter.Matches(&m.entries[i]) {
			e := m.entries[i]
			e.Arguments = copyMap(e.Arguments)
			out = append(out, &e)
		}
	}
	m.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].ID > out[j].ID
		}
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	if limit := filter.EffectiveLimit(); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// PurgeBefore removes entries whose timestamp precedes cutoff.
func (m *MemoryStore) PurgeBefore(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.entries[:0]
	var purged int64
	for _, e := range m.entries {
		if e.Timestamp.Before(cutoff) {
			delete(m.seen, entryKey{requestID: e.RequestID, startedAt: toMillis(e.StartedAt)})
			purged++
			continue
		}
		kept = append(kept, e)
	}
	m.entries = kept
	return purged, nil
}

// Len returns the number of stored entries.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Close is a no-op.
func (m *MemoryStore) Close() error { return nil }

func copyMap(src map[string]any) map[string]any {
	dst := make(map[string]any, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

var _ Store = (*MemoryStore)(nil)
