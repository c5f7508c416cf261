// Package auditlog records one execution log entry per invocation without
// ever blocking or failing the request that produced it.
package auditlog

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/rendis/conduit/internal/metrics"
	"github.com/rendis/conduit/internal/store"
	"github.com/rendis/conduit/internal/streaming"
)

const (
	defaultBufferSize    = 1024
	defaultBatchSize     = 100
	defaultFlushInterval = 250 * time.Millisecond
	defaultWriteTimeout  = 5 * time.Second
	defaultMaxAttempts   = 3
	defaultRetryBackoff  = 100 * time.Millisecond
)

// Config tunes the writer loop. Zero fields take defaults.
type Config struct {
	BufferSize    int
	BatchSize     int
	FlushInterval time.Duration
	WriteTimeout  time.Duration
	MaxAttempts   int
	RetryBackoff  time.Duration
}

func (c Config) withDefaults() Config {
	if c.BufferSize <= 0 {
		c.BufferSize = defaultBufferSize
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaultBatchSize
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = defaultFlushInterval
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = defaultWriteTimeout
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	if c.RetryBackoff < 0 {
		c.RetryBackoff = 0
	} else if c.RetryBackoff == 0 {
		c.RetryBackoff = defaultRetryBackoff
	}
	return c
}

// Option configures a Logger.
type Option func(*Logger)

// WithConfig overrides the writer loop tuning.
func WithConfig(cfg Config) Option {
	return func(l *Logger) { l.cfg = cfg.withDefaults() }
}

// WithHub publishes every recorded entry to hub.
func WithHub(hub streaming.EventHub) Option {
	return func(l *Logger) { l.hub = hub }
}

// WithFallback sets the channel entries go to when the store cannot take them.
func WithFallback(logger *slog.Logger) Option {
	return func(l *Logger) { l.fallback = logger }
}

// WithMetrics enables queue and destination metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Logger) { l.metrics = m }
}

// Logger queues entries onto a buffered channel drained by a single writer
// goroutine. Entries are written in batches; a batch that still fails after
// MaxAttempts goes to the fallback logger at ERROR level.
type Logger struct {
	writer   store.LogWriter
	hub      streaming.EventHub
	fallback *slog.Logger
	metrics  *metrics.Metrics
	cfg      Config

	mu      sync.RWMutex
	closed  bool
	entries chan store.ExecutionLogEntry
	done    chan struct{}
}

// New starts a Logger writing to writer.
func New(writer store.LogWriter, opts ...Option) *Logger {
	l := &Logger{
		writer:   writer,
		fallback: slog.Default(),
		cfg:      Config{}.withDefaults(),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.entries = make(chan store.ExecutionLogEntry, l.cfg.BufferSize)
	go l.run()
	return l
}

// Record enqueues an entry. It never blocks: when the buffer is full or the
// logger is closed the entry is written to the fallback channel instead.
func (l *Logger) Record(ctx context.Context, entry store.ExecutionLogEntry) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	l.mu.RLock()
	if l.closed {
		l.mu.RUnlock()
		l.spill(ctx, []store.ExecutionLogEntry{entry}, "logger closed", nil)
		return
	}
	select {
	case l.entries <- entry:
		l.mu.RUnlock()
		l.metrics.LogQueueDepth(len(l.entries))
	default:
		l.mu.RUnlock()
		l.spill(ctx, []store.ExecutionLogEntry{entry}, "buffer full", nil)
	}
}

// Close stops accepting entries and waits for the queue to drain, or for ctx
// to expire.
func (l *Logger) Close(ctx context.Context) error {
	l.mu.Lock()
	if !l.closed {
		l.closed = true
		close(l.entries)
	}
	l.mu.Unlock()

	select {
	case <-l.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Logger) run() {
	defer close(l.done)

	ticker := time.NewTicker(l.cfg.FlushInterval)
	defer ticker.Stop()

	batch := make([]store.ExecutionLogEntry, 0, l.cfg.BatchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		l.write(batch)
		batch = make([]store.ExecutionLogEntry, 0, l.cfg.BatchSize)
		l.metrics.LogQueueDepth(len(l.entries))
	}

	for {
		select {
		case entry, ok := <-l.entries:
			if !ok {
				flush()
				return
			}
			batch = append(batch, entry)
			if len(batch) >= l.cfg.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

// write persists one batch with linear backoff between attempts.
func (l *Logger) write(batch []store.ExecutionLogEntry) {
	var err error
	for attempt := 1; attempt <= l.cfg.MaxAttempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), l.cfg.WriteTimeout)
		err = l.writer.AppendEntries(ctx, batch)
		cancel()
		if err == nil {
			l.metrics.LogEntries("store", len(batch))
			l.publish(batch)
			return
		}
		if attempt < l.cfg.MaxAttempts {
			l.fallback.Warn("execution log write failed, retrying",
				slog.Int("attempt", attempt),
				slog.Int("count", len(batch)),
				slog.String("error", err.Error()),
			)
			time.Sleep(time.Duration(attempt) * l.cfg.RetryBackoff)
		}
	}
	l.spill(context.Background(), batch, "store write failed", err)
}

// spill writes entries to the fallback channel.
func (l *Logger) spill(ctx context.Context, entries []store.ExecutionLogEntry, reason string, cause error) {
	for _, e := range entries {
		attrs := []slog.Attr{
			slog.String("reason", reason),
			slog.String("request_id", e.RequestID),
			slog.String("action", e.ActionName),
			slog.String("caller_id", e.CallerID),
			slog.String("status", string(e.Status)),
			slog.Int64("duration_ms", e.DurationMs),
			slog.Time("started_at", e.StartedAt),
			slog.Time("timestamp", e.Timestamp),
			slog.Any("arguments", e.Arguments),
		}
		if e.ErrorCode != "" {
			attrs = append(attrs, slog.String("error_code", string(e.ErrorCode)))
		}
		if cause != nil {
			attrs = append(attrs, slog.String("error", cause.Error()))
		}
		l.fallback.LogAttrs(ctx, slog.LevelError, "execution log entry not persisted", attrs...)
	}
	l.metrics.LogEntries("fallback", len(entries))
	l.publish(entries)
}

func (l *Logger) publish(entries []store.ExecutionLogEntry) {
	if l.hub == nil {
		return
	}
	for _, e := range entries {
		_ = l.hub.Publish(context.Background(), streaming.StreamEvent{
			EventType: streaming.EventRecorded,
			Entry:     e,
		})
	}
}
