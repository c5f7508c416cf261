// Package retention purges execution log entries older than the retention
// window on a cron schedule.
package retention

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/rendis/conduit/internal/store"
)

const (
	// DefaultDays is the retention window of the execution log.
	DefaultDays = 30
	// DefaultSchedule runs the purge daily at 03:00.
	DefaultSchedule = "0 3 * * *"

	defaultPollInterval = 60 * time.Second
)

// Job deletes log entries older than Days whenever its schedule is due.
type Job struct {
	purger   store.Purger
	days     int
	expr     string
	schedule cron.Schedule
	logger   *slog.Logger
	now      func() time.Time
	poll     time.Duration

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	nextRun time.Time
}

// Option configures a Job.
type Option func(*Job)

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(j *Job) { j.now = now }
}

// WithPollInterval sets how often the loop checks whether a run is due.
func WithPollInterval(d time.Duration) Option {
	return func(j *Job) {
		if d > 0 {
			j.poll = d
		}
	}
}

// NewJob parses a standard 5-field cron expression. days <= 0 means DefaultDays.
func NewJob(purger store.Purger, days int, cronExpr string, logger *slog.Logger, opts ...Option) (*Job, error) {
	if days <= 0 {
		days = DefaultDays
	}
	if cronExpr == "" {
		cronExpr = DefaultSchedule
	}
	if logger == nil {
		logger = slog.Default()
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	schedule, err := parser.Parse(cronExpr)
	if err != nil {
		return nil, fmt.Errorf("parse cron expression %q: %w", cronExpr, err)
	}

	j := &Job{
		purger:   purger,
		days:     days,
		expr:     cronExpr,
		schedule: schedule,
		logger:   logger,
		now:      time.Now,
		poll:     defaultPollInterval,
	}
	for _, opt := range opts {
		opt(j)
	}
	return j, nil
}

// Cutoff is the oldest timestamp kept when purging at now.
func (j *Job) Cutoff(now time.Time) time.Time {
	return now.AddDate(0, 0, -j.days)
}

// NextRun returns the first scheduled run after from.
func (j *Job) NextRun(from time.Time) time.Time {
	return j.schedule.Next(from)
}

// RunOnce purges everything older than the retention window.
func (j *Job) RunOnce(ctx context.Context) (int64, error) {
	cutoff := j.Cutoff(j.now().UTC())
	n, err := j.purger.PurgeBefore(ctx, cutoff)
	if err != nil {
		j.logger.Error("execution log purge failed",
			slog.Time("cutoff", cutoff),
			slog.String("error", err.Error()),
		)
		return 0, err
	}
	j.logger.Info("execution log purged",
		slog.Time("cutoff", cutoff),
		slog.Int64("deleted", n),
	)
	return n, nil
}

// Start launches the background loop.
func (j *Job) Start(ctx context.Context) error {
	j.mu.Lock()
	if j.done != nil {
		j.mu.Unlock()
		return fmt.Errorf("retention job already started")
	}
	jobCtx, cancel := context.WithCancel(ctx)
	j.cancel = cancel
	j.done = make(chan struct{})
	j.nextRun = j.NextRun(j.now())
	j.mu.Unlock()

	go j.loop(jobCtx)
	j.logger.Info("retention job started",
		slog.String("schedule", j.expr),
		slog.Int("days", j.days),
	)
	return nil
}

func (j *Job) loop(ctx context.Context) {
	defer close(j.done)

	ticker := time.NewTicker(j.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.tick(ctx)
		}
	}
}

func (j *Job) tick(ctx context.Context) {
	now := j.now()
	j.mu.Lock()
	due := !j.nextRun.After(now)
	if due {
		j.nextRun = j.NextRun(now)
	}
	j.mu.Unlock()
	if due {
		_, _ = j.RunOnce(ctx)
	}
}

// Stop shuts the loop down and waits for an in-progress purge.
func (j *Job) Stop() error {
	j.mu.Lock()
	if j.cancel == nil {
		j.mu.Unlock()
		return nil
	}
	cancel, done := j.cancel, j.done
	j.cancel = nil
	j.mu.Unlock()

	cancel()
	<-done

	j.mu.Lock()
	j.done = nil
	j.mu.Unlock()
	j.logger.Info("retention job stopped")
	return nil
}
