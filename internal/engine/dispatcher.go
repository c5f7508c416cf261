package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/rendis/conduit/internal/actions"
	"github.com/rendis/conduit/internal/auditlog"
	"github.com/rendis/conduit/internal/authz"
	"github.com/rendis/conduit/internal/logging"
	"github.com/rendis/conduit/internal/metrics"
	"github.com/rendis/conduit/internal/observability"
	"github.com/rendis/conduit/internal/store"
	"github.com/rendis/conduit/pkg/schema"
)

const (
	// DefaultDeadline bounds every handler execution.
	DefaultDeadline = 2000 * time.Millisecond
	// DefaultPoolSize caps concurrently running handlers per action.
	DefaultPoolSize = 256
)

// Schemas resolves action names to their schemas.
type Schemas interface {
	Lookup(name string) (*actions.ActionSchema, bool)
}

// ArgumentValidator checks raw arguments against an action schema and
// returns the normalized arguments or every issue found.
type ArgumentValidator interface {
	Validate(s *actions.ActionSchema, args map[string]any) (actions.Arguments, []schema.ValidationIssue)
}

// Authorizer decides whether a caller may run an action with the given
// validated arguments.
type Authorizer interface {
	Authorize(ctx context.Context, callerID string, s *actions.ActionSchema, args actions.Arguments) (authz.Decision, error)
}

// ExecutionRecorder receives one entry per finished invocation. Record must
// not block.
type ExecutionRecorder interface {
	Record(ctx context.Context, entry store.ExecutionLogEntry)
}

// Config tunes the dispatcher.
type Config struct {
	Deadline time.Duration
	PoolSize int
	Breaker  CircuitBreakerConfig
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Deadline: DefaultDeadline,
		PoolSize: DefaultPoolSize,
		Breaker:  DefaultCircuitBreakerConfig(),
	}
}

// Deps are the dispatcher's collaborators. Schemas, Validator, Authorizer
// and Handlers are required.
type Deps struct {
	Schemas    Schemas
	Validator  ArgumentValidator
	Authorizer Authorizer
	Handlers   actions.Resolver
	Recorder   ExecutionRecorder
	Logger     *slog.Logger
	Metrics    *metrics.Metrics
	Tracer     trace.Tracer
	Now        func() time.Time
}

// Dispatcher drives each invocation through validation, authorization and
// handler execution under a deadline, and produces exactly one outcome and
// one execution log entry for it.
type Dispatcher struct {
	schemas    Schemas
	validator  ArgumentValidator
	authorizer Authorizer
	handlers   actions.Resolver
	recorder   ExecutionRecorder
	logger     *slog.Logger
	metrics    *metrics.Metrics
	tracer     trace.Tracer
	now        func() time.Time

	deadline time.Duration
	pool     *HandlerPool
	breakers *CircuitBreakerRegistry
}

// NewDispatcher wires a Dispatcher. Zero config fields take defaults.
func NewDispatcher(deps Deps, cfg Config) (*Dispatcher, error) {
	switch {
	case deps.Schemas == nil:
		return nil, errors.New("dispatcher: schemas are required")
	case deps.Validator == nil:
		return nil, errors.New("dispatcher: validator is required")
	case deps.Authorizer == nil:
		return nil, errors.New("dispatcher: authorizer is required")
	case deps.Handlers == nil:
		return nil, errors.New("dispatcher: handlers are required")
	}

	if cfg.Deadline <= 0 {
		cfg.Deadline = DefaultDeadline
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = DefaultPoolSize
	}

	d := &Dispatcher{
		schemas:    deps.Schemas,
		validator:  deps.Validator,
		authorizer: deps.Authorizer,
		handlers:   deps.Handlers,
		recorder:   deps.Recorder,
		logger:     deps.Logger,
		metrics:    deps.Metrics,
		tracer:     deps.Tracer,
		now:        deps.Now,
		deadline:   cfg.Deadline,
		pool:       NewHandlerPool(cfg.PoolSize),
	}
	if d.recorder == nil {
		d.recorder = discardRecorder{}
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	if d.tracer == nil {
		d.tracer = noop.NewTracerProvider().Tracer("conduit")
	}
	if d.now == nil {
		d.now = time.Now
	}
	d.breakers = NewCircuitBreakerRegistry(cfg.Breaker).WithClock(d.now).WithMetrics(d.metrics)
	return d, nil
}

// Deadline returns the per-invocation handler deadline.
func (d *Dispatcher) Deadline() time.Duration { return d.deadline }

// Breakers exposes the per-action circuit breakers.
func (d *Dispatcher) Breakers() *CircuitBreakerRegistry { return d.breakers }

// PoolStats returns the handler pool counters.
func (d *Dispatcher) PoolStats() PoolStats { return d.pool.Stats() }

// Shutdown stops accepting handler work and waits for running handlers.
func (d *Dispatcher) Shutdown() { d.pool.Shutdown() }

// Dispatch runs one invocation to completion. It never panics and never
// returns nil: every path ends in a single outcome.
func (d *Dispatcher) Dispatch(ctx context.Context, req schema.InvocationRequest) (out *schema.InvocationOutcome) {
	start := d.now()
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}

	ctx = logging.WithIDs(ctx, req.RequestID, req.ActionName, req.CallerID)
	ctx, span := observability.StartSpan(ctx, d.tracer, "conduit.dispatch",
		observability.AttrAction.String(req.ActionName),
		observability.AttrRequestID.String(req.RequestID),
		observability.AttrCallerID.String(req.CallerID),
	)
	defer span.End()

	d.metrics.InFlightInc()
	defer d.metrics.InFlightDec()

	logger := logging.LogWith(ctx, d.logger)
	fsm := NewInvocationFSM(req.RequestID, func(from, to InvocationState) {
		logger.Debug("invocation state", slog.String("from", string(from)), slog.String("to", string(to)))
	})

	var (
		s        *actions.ActionSchema
		recorded bool
	)
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		logger.Error("dispatch panicked", slog.Any("panic", r), slog.String("stack", string(debug.Stack())))
		if recorded && out != nil {
			// The log already holds the entry for out.
			return
		}
		elapsed := d.now().Sub(start)
		out = d.outcome(req, start, elapsed, nil, panicError(req.ActionName, r))
		d.finish(ctx, span, fsm, req, s, out, elapsed, &recorded)
	}()

	result, cerr := d.run(ctx, fsm, req, &s)
	elapsed := d.now().Sub(start)
	out = d.outcome(req, start, elapsed, result, cerr)
	d.finish(ctx, span, fsm, req, s, out, elapsed, &recorded)
	return out
}

func (d *Dispatcher) run(ctx context.Context, fsm *InvocationFSM, req schema.InvocationRequest, sp **actions.ActionSchema) (json.RawMessage, *schema.ConduitError) {
	s, ok := d.schemas.Lookup(req.ActionName)
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeInvalidFunction, "unknown action %q", req.ActionName)
	}
	*sp = s

	d.transition(ctx, fsm, StateValidating)
	args, issues := d.validator.Validate(s, req.Arguments)
	if len(issues) > 0 {
		return nil, schema.IssuesError(issues)
	}

	d.transition(ctx, fsm, StateAuthorizing)
	decision, err := d.authorizer.Authorize(ctx, req.CallerID, s, args)
	if err != nil {
		if schema.CodeOf(err) == schema.ErrCodeServiceUnavailable {
			return nil, schema.NewError(schema.ErrCodeServiceUnavailable, "ownership lookup is unavailable").WithCause(err)
		}
		return nil, schema.NewError(schema.ErrCodeInternal, "authorization failed").WithCause(err)
	}
	if !decision.Allowed {
		return nil, schema.NewError(schema.ErrCodePermissionDenied, decision.Reason)
	}

	handler, err := d.handlers.Resolve(s.Name)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeInternal, "no handler is registered for %s", s.Name).WithCause(err)
	}
	if err := d.breakers.AllowRequest(s.Name); err != nil {
		var ce *schema.ConduitError
		if errors.As(err, &ce) {
			return nil, ce
		}
		return nil, schema.NewError(schema.ErrCodeServiceUnavailable, err.Error())
	}

	d.transition(ctx, fsm, StateDispatched)
	return d.execute(ctx, s.Name, handler, args, req.CallerID)
}

type handlerResult struct {
	value any
	err   error
	// panicked is set instead of err when the handler panicked.
	panicked *schema.ConduitError
}

// execute races the handler against the deadline. The handler runs on a pool
// goroutine and reports into a buffered channel, so a result that arrives
// after the deadline is dropped without blocking anyone.
func (d *Dispatcher) execute(ctx context.Context, name string, h actions.Handler, args actions.Arguments, callerID string) (json.RawMessage, *schema.ConduitError) {
	execCtx, cancel := context.WithTimeout(ctx, d.deadline)
	defer cancel()

	done := make(chan handlerResult, 1)
	err := d.pool.Submit(execCtx, name, func(hctx context.Context) {
		done <- d.runHandler(hctx, name, h, args, callerID)
	})
	if err != nil {
		// The handler never started, so the back-end has not been judged.
		d.breakers.Release(name)
		switch {
		case errors.Is(err, ErrPoolShutdown):
			return nil, schema.NewError(schema.ErrCodeServiceUnavailable, "conduit is shutting down").WithCause(err)
		case errors.Is(err, ErrPoolExhausted):
			return nil, schema.NewErrorf(schema.ErrCodeServiceUnavailable, "too many %s invocations in flight", name).
				WithCause(err).
				WithDetails(map[string]any{"in_flight_limit": d.pool.Size()})
		}
		return nil, d.stoppedError(ctx, name)
	}

	select {
	case res := <-done:
		if res.err != nil && errors.Is(ctx.Err(), context.Canceled) {
			return nil, d.contextError(ctx, name)
		}
		return d.settle(name, res)
	case <-execCtx.Done():
		return nil, d.contextError(ctx, name)
	}
}

func (d *Dispatcher) settle(name string, res handlerResult) (json.RawMessage, *schema.ConduitError) {
	if res.panicked != nil {
		d.breakers.RecordFailure(name)
		return nil, res.panicked
	}
	if res.err != nil {
		cerr := classifyHandlerError(name, res.err)
		d.breakers.Record(name, cerr.Code)
		return nil, cerr
	}
	raw, err := json.Marshal(res.value)
	if err != nil {
		d.breakers.RecordFailure(name)
		return nil, schema.NewErrorf(schema.ErrCodeInternal, "%s returned a result that cannot be encoded", name).WithCause(err)
	}
	d.breakers.RecordSuccess(name)
	return raw, nil
}

// contextError explains why execution stopped before the handler answered
// and charges a timeout to the action's breaker.
func (d *Dispatcher) contextError(parent context.Context, name string) *schema.ConduitError {
	cerr := d.stoppedError(parent, name)
	if cerr.Code == schema.ErrCodeTimeout {
		d.breakers.RecordFailure(name)
	} else {
		d.breakers.Release(name)
	}
	return cerr
}

func (d *Dispatcher) stoppedError(parent context.Context, name string) *schema.ConduitError {
	if errors.Is(parent.Err(), context.Canceled) {
		return schema.NewError(schema.ErrCodeServiceUnavailable, "invocation cancelled before completion").
			WithCause(parent.Err())
	}
	return schema.NewErrorf(schema.ErrCodeTimeout, "%s did not complete within %dms", name, d.deadline.Milliseconds()).
		WithDetails(map[string]any{"deadline_ms": d.deadline.Milliseconds()})
}

func (d *Dispatcher) runHandler(ctx context.Context, name string, h actions.Handler, args actions.Arguments, callerID string) (res handlerResult) {
	defer func() {
		if r := recover(); r != nil {
			d.metrics.HandlerPanic(name)
			logging.LogWith(ctx, d.logger).Error("handler panicked",
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
			res = handlerResult{panicked: panicError(name, r)}
		}
	}()
	v, err := h.Execute(ctx, args, callerID)
	return handlerResult{value: v, err: err}
}

func (d *Dispatcher) transition(ctx context.Context, fsm *InvocationFSM, to InvocationState) {
	if err := fsm.Transition(to); err != nil {
		logging.LogWith(ctx, d.logger).Error("invocation state", slog.String("error", err.Error()))
	}
}

func (d *Dispatcher) outcome(req schema.InvocationRequest, start time.Time, elapsed time.Duration,
	result json.RawMessage, cerr *schema.ConduitError,
) *schema.InvocationOutcome {
	out := &schema.InvocationOutcome{
		RequestID:  req.RequestID,
		ActionName: req.ActionName,
		StartedAt:  start.UTC(),
		DurationMs: elapsed.Milliseconds(),
	}
	if cerr == nil {
		out.Status = schema.OutcomeSuccess
		out.Result = result
		return out
	}
	out.Status = schema.StatusForCode(cerr.Code)
	out.Error = cerr
	return out
}

// finish records out, reports it and closes the span. recorded flips as soon
// as the log entry is handed off so a later panic cannot write a second one.
func (d *Dispatcher) finish(ctx context.Context, span trace.Span, fsm *InvocationFSM, req schema.InvocationRequest,
	s *actions.ActionSchema, out *schema.InvocationOutcome, elapsed time.Duration, recorded *bool,
) {
	cerr := out.Error
	if cerr == nil {
		d.transition(ctx, fsm, StateCompleted)
	} else {
		d.transition(ctx, fsm, terminalFor(cerr.Code))
	}

	d.recorder.Record(context.WithoutCancel(ctx), store.ExecutionLogEntry{
		RequestID:  req.RequestID,
		ActionName: req.ActionName,
		CallerID:   req.CallerID,
		Arguments:  auditlog.Sanitize(s, req.Arguments),
		StartedAt:  out.StartedAt,
		DurationMs: out.DurationMs,
		Status:     out.Status,
		ErrorCode:  out.ErrorCode(),
		Timestamp:  d.now().UTC(),
	})
	*recorded = true

	action := req.ActionName
	if s == nil {
		action = "unknown"
	}
	d.metrics.ObserveInvocation(action, string(out.Status), string(out.ErrorCode()), elapsed)

	span.SetAttributes(
		observability.AttrStatus.String(string(out.Status)),
		observability.AttrDurationMs.Int64(out.DurationMs),
	)
	logger := logging.LogWith(ctx, d.logger)
	if cerr == nil {
		observability.SetSpanOK(span)
		logger.Info("invocation completed", slog.Int64("duration_ms", out.DurationMs))
		return
	}

	span.SetAttributes(observability.AttrErrorCode.String(string(cerr.Code)))
	observability.SetSpanError(span, cerr)
	attrs := []slog.Attr{
		slog.String("status", string(out.Status)),
		slog.String("code", string(cerr.Code)),
		slog.Int64("duration_ms", out.DurationMs),
	}
	if cerr.Cause != nil {
		attrs = append(attrs, slog.String("cause", cerr.Cause.Error()))
	}
	level := slog.LevelWarn
	if cerr.Code == schema.ErrCodeInternal {
		level = slog.LevelError
	}
	logger.LogAttrs(ctx, level, fmt.Sprintf("invocation %s", out.Status), attrs...)
}

type discardRecorder struct{}

func (discardRecorder) Record(context.Context, store.ExecutionLogEntry) {}
