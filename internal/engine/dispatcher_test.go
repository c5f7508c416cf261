package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/conduit/internal/actions"
	"github.com/rendis/conduit/internal/authz"
	"github.com/rendis/conduit/internal/expressions"
	"github.com/rendis/conduit/internal/logging"
	"github.com/rendis/conduit/internal/store"
	"github.com/rendis/conduit/internal/validation"
	"github.com/rendis/conduit/pkg/contract"
	"github.com/rendis/conduit/pkg/schema"
)

// --- test doubles ---

type memRecorder struct {
	mu      sync.Mutex
	entries []store.ExecutionLogEntry
}

func (r *memRecorder) Record(_ context.Context, e store.ExecutionLogEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
}

func (r *memRecorder) forRequest(id string) []store.ExecutionLogEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []store.ExecutionLogEntry
	for _, e := range r.entries {
		if e.RequestID == id {
			out = append(out, e)
		}
	}
	return out
}

func (r *memRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

type countingValidator struct {
	inner ArgumentValidator
	calls atomic.Int32
}

func (v *countingValidator) Validate(s *actions.ActionSchema, args map[string]any) (actions.Arguments, []schema.ValidationIssue) {
	v.calls.Add(1)
	return v.inner.Validate(s, args)
}

type grant struct {
	caller string
	kind   actions.ResourceKind
	id     string
}

type ownership struct {
	mu     sync.Mutex
	grants map[grant]bool
	err    error
}

func (o *ownership) allow(caller string, kind actions.ResourceKind, id string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.grants[grant{caller, kind, id}] = true
}

func (o *ownership) CanAccess(_ context.Context, caller string, kind actions.ResourceKind, id string) (bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return false, o.err
	}
	return o.grants[grant{caller, kind, id}], nil
}

type harness struct {
	d         *Dispatcher
	handlers  *actions.Registry
	rec       *memRecorder
	owners    *ownership
	validator *countingValidator
	executed  atomic.Int32
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	reg := actions.DefaultSchemaRegistry()

	v := validation.New(expressions.NewExprEngine())
	require.NoError(t, v.Precompile(reg))

	owners := &ownership{grants: map[grant]bool{}}
	az, err := authz.New(owners, nil)
	require.NoError(t, err)
	require.NoError(t, az.Precompile(reg))

	h := &harness{
		handlers:  actions.NewRegistry(),
		rec:       &memRecorder{},
		owners:    owners,
		validator: &countingValidator{inner: v},
	}
	h.d, err = NewDispatcher(Deps{
		Schemas:    reg,
		Validator:  h.validator,
		Authorizer: az,
		Handlers:   h.handlers,
		Recorder:   h.rec,
		Logger:     logging.Discard(),
	}, cfg)
	require.NoError(t, err)
	t.Cleanup(h.d.Shutdown)
	return h
}

// handle registers fn for an action and counts its executions.
func (h *harness) handle(t *testing.T, name string, fn actions.HandlerFunc) {
	t.Helper()
	require.NoError(t, h.handlers.Register(name, actions.HandlerFunc(
		func(ctx context.Context, args actions.Arguments, callerID string) (any, error) {
			h.executed.Add(1)
			return fn(ctx, args, callerID)
		})))
}

func (h *harness) dispatch(action, caller string, args map[string]any) *schema.InvocationOutcome {
	return h.d.Dispatch(context.Background(), schema.InvocationRequest{
		ActionName: action,
		CallerID:   caller,
		Arguments:  args,
	})
}

// requireOneEntry asserts the single log entry for out matches it.
func (h *harness) requireOneEntry(t *testing.T, out *schema.InvocationOutcome) store.ExecutionLogEntry {
	t.Helper()
	entries := h.rec.forRequest(out.RequestID)
	require.Len(t, entries, 1)
	e := entries[0]
	assert.Equal(t, out.Status, e.Status)
	assert.Equal(t, out.ErrorCode(), e.ErrorCode)
	assert.Equal(t, out.DurationMs, e.DurationMs)
	assert.Equal(t, out.ActionName, e.ActionName)
	return e
}

func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.Deadline = 100 * time.Millisecond
	return cfg
}

func hits(n int) contract.SearchResults {
	res := contract.SearchResults{Query: "budget"}
	for i := 0; i < n; i++ {
		res.Results = append(res.Results, contract.MessageHit{
			MessageID: fmt.Sprintf("m%d", i),
			ChatID:    "c1",
			SenderID:  "u2",
			Snippet:   "budget review",
			Score:     1,
		})
	}
	return res
}

// --- construction ---

func TestNewDispatcher_RequiresCollaborators(t *testing.T) {
	_, err := NewDispatcher(Deps{}, DefaultConfig())
	assert.Error(t, err)

	h := newHarness(t, Config{})
	assert.Equal(t, DefaultDeadline, h.d.Deadline())
}

// --- end-to-end scenarios ---

func TestDispatch_SearchMessagesSucceeds(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.handle(t, contract.ActionSearchMessages, func(_ context.Context, args actions.Arguments, _ string) (any, error) {
		return hits(args.Int("limit")), nil
	})

	start := time.Now()
	out := h.dispatch(contract.ActionSearchMessages, "u1", map[string]any{
		"query": "budget", "userId": "u1", "limit": 10,
	})
	assert.Less(t, time.Since(start), DefaultDeadline)

	require.True(t, out.Succeeded(), "%+v", out.Error)
	assert.NotEmpty(t, out.RequestID)
	assert.Nil(t, out.Error)

	var res contract.SearchResults
	require.NoError(t, json.Unmarshal(out.Result, &res))
	assert.LessOrEqual(t, len(res.Results), 10)

	e := h.requireOneEntry(t, out)
	assert.Equal(t, map[string]any{"length": 6}, e.Arguments["query"])
	assert.Equal(t, "u1", e.Arguments["userId"])
}

func TestDispatch_MaxLengthOutOfRange(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.handle(t, contract.ActionSummarizeThread, func(context.Context, actions.Arguments, string) (any, error) {
		return contract.ThreadSummary{}, nil
	})
	h.owners.allow("u1", actions.ResourceThread, "t1")

	out := h.dispatch(contract.ActionSummarizeThread, "u1", map[string]any{"threadId": "t1", "maxLength": 1000})

	assert.Equal(t, schema.ErrCodeInvalidParameters, out.ErrorCode())
	assert.Contains(t, out.Error.Message, "maxLength")
	assert.Equal(t, int32(0), h.executed.Load())
	h.requireOneEntry(t, out)
}

func TestDispatch_DependencyDownIsServiceUnavailable(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.handle(t, contract.ActionCategorizeMessage, func(context.Context, actions.Arguments, string) (any, error) {
		return nil, actions.Unavailable(errors.New("classifier offline"))
	})
	h.owners.allow("u1", actions.ResourceMessage, "m1")

	out := h.dispatch(contract.ActionCategorizeMessage, "u1", map[string]any{"messageId": "m1", "userId": "u1"})

	assert.Equal(t, schema.OutcomeError, out.Status)
	assert.Equal(t, schema.ErrCodeServiceUnavailable, out.ErrorCode())
	e := h.requireOneEntry(t, out)
	assert.Equal(t, schema.ErrCodeServiceUnavailable, e.ErrorCode)
}

func TestDispatch_TooFewParticipants(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.handle(t, contract.ActionSuggestMeetingTimes, func(context.Context, actions.Arguments, string) (any, error) {
		return contract.MeetingSuggestions{}, nil
	})

	out := h.dispatch(contract.ActionSuggestMeetingTimes, "a", map[string]any{
		"participants": []string{"a"}, "duration": 30,
	})

	assert.Equal(t, schema.ErrCodeInvalidParameters, out.ErrorCode())
	assert.Contains(t, out.Error.Message, "participants")
	assert.Equal(t, int32(0), h.executed.Load())
	h.requireOneEntry(t, out)
}

func TestDispatch_UnknownActionSkipsValidator(t *testing.T) {
	h := newHarness(t, DefaultConfig())

	out := h.dispatch("doThing", "u1", map[string]any{"note": "secret"})

	assert.Equal(t, schema.ErrCodeInvalidFunction, out.ErrorCode())
	assert.Equal(t, int32(0), h.validator.calls.Load())

	e := h.requireOneEntry(t, out)
	assert.Equal(t, "doThing", e.ActionName)
	assert.Equal(t, map[string]any{"type": "string", "length": 6}, e.Arguments["note"])
}

// --- properties ---

func TestDispatch_ValidationListsEveryMissingField(t *testing.T) {
	h := newHarness(t, DefaultConfig())

	out := h.dispatch(contract.ActionCheckCalendar, "u1", map[string]any{})

	require.Equal(t, schema.ErrCodeInvalidParameters, out.ErrorCode())
	issues, ok := out.Error.Details["issues"].([]schema.ValidationIssue)
	require.True(t, ok)
	assert.Len(t, issues, 3)
	for _, f := range []string{"userId", "startDate", "endDate"} {
		assert.Contains(t, out.Error.Message, f)
	}
}

func TestDispatch_DurationBoundaries(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.handle(t, contract.ActionSuggestMeetingTimes, func(context.Context, actions.Arguments, string) (any, error) {
		return contract.MeetingSuggestions{Duration: 30}, nil
	})

	for duration, ok := range map[int]bool{14: false, 15: true, 180: true, 181: false} {
		out := h.dispatch(contract.ActionSuggestMeetingTimes, "a", map[string]any{
			"participants": []string{"a", "b"}, "duration": duration,
		})
		if ok {
			assert.True(t, out.Succeeded(), "duration %d: %+v", duration, out.Error)
		} else {
			assert.Equal(t, schema.ErrCodeInvalidParameters, out.ErrorCode(), "duration %d", duration)
		}
	}
}

func TestDispatch_AuthorizationBoundary(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.handle(t, contract.ActionCheckCalendar, func(context.Context, actions.Arguments, string) (any, error) {
		return contract.CalendarAvailability{}, nil
	})

	out := h.dispatch(contract.ActionCheckCalendar, "A", map[string]any{
		"userId": "B", "startDate": "2026-03-02", "endDate": "2026-03-03",
	})

	assert.Equal(t, schema.ErrCodePermissionDenied, out.ErrorCode())
	assert.Equal(t, int32(0), h.executed.Load(), "handler must not run")
	h.requireOneEntry(t, out)
}

func TestDispatch_TimeoutExactness(t *testing.T) {
	if testing.Short() {
		t.Skip("waits for the full production deadline")
	}
	h := newHarness(t, DefaultConfig())

	var late atomic.Bool
	h.handle(t, contract.ActionTrackDecisions, func(context.Context, actions.Arguments, string) (any, error) {
		time.Sleep(2500 * time.Millisecond)
		late.Store(true)
		return contract.DecisionLog{ThreadID: "late"}, nil
	})
	h.owners.allow("u1", actions.ResourceThread, "t1")

	start := time.Now()
	out := h.dispatch(contract.ActionTrackDecisions, "u1", map[string]any{"threadId": "t1"})
	elapsed := time.Since(start)

	assert.Equal(t, schema.OutcomeTimeout, out.Status)
	assert.Equal(t, schema.ErrCodeTimeout, out.ErrorCode())
	assert.Nil(t, out.Result)
	assert.GreaterOrEqual(t, elapsed, DefaultDeadline)
	assert.LessOrEqual(t, elapsed, 2050*time.Millisecond)

	// Let the abandoned handler finish; its result must go nowhere.
	h.d.Shutdown()
	assert.True(t, late.Load())
	assert.Nil(t, out.Result)
	e := h.requireOneEntry(t, out)
	assert.Equal(t, schema.OutcomeTimeout, e.Status)
	assert.Equal(t, 1, h.rec.count())
}

func TestDispatch_HandlerSeesCancellationAtDeadline(t *testing.T) {
	h := newHarness(t, fastConfig())

	cancelled := make(chan error, 1)
	h.handle(t, contract.ActionTrackDecisions, func(ctx context.Context, _ actions.Arguments, _ string) (any, error) {
		<-ctx.Done()
		cancelled <- ctx.Err()
		return nil, ctx.Err()
	})
	h.owners.allow("u1", actions.ResourceThread, "t1")

	out := h.dispatch(contract.ActionTrackDecisions, "u1", map[string]any{"threadId": "t1"})
	assert.Equal(t, schema.ErrCodeTimeout, out.ErrorCode())

	select {
	case err := <-cancelled:
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	case <-time.After(time.Second):
		t.Fatal("handler context was not cancelled")
	}
}

func TestDispatch_IsolationUnderConcurrency(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	for _, name := range contract.AllActions {
		if name == contract.ActionCheckCalendar {
			continue
		}
		h.handle(t, name, func(context.Context, actions.Arguments, string) (any, error) {
			time.Sleep(20 * time.Millisecond)
			return map[string]any{"ok": true}, nil
		})
	}
	h.handle(t, contract.ActionCheckCalendar, func(context.Context, actions.Arguments, string) (any, error) {
		panic("calendar adapter bug")
	})
	for i := 0; i < 50; i++ {
		h.owners.allow("u1", actions.ResourceThread, fmt.Sprintf("t%d", i))
	}

	type result struct {
		panicking bool
		out       *schema.InvocationOutcome
	}
	results := make(chan result, 50)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i == 0 {
				results <- result{true, h.dispatch(contract.ActionCheckCalendar, "u1", map[string]any{
					"userId": "u1", "startDate": "2026-03-02", "endDate": "2026-03-02",
				})}
				return
			}
			action := []string{
				contract.ActionSummarizeThread, contract.ActionTrackDecisions,
				contract.ActionDetectSchedulingNeed, contract.ActionSuggestMeetingTimes,
			}[i%4]
			args := map[string]any{"threadId": fmt.Sprintf("t%d", i)}
			if action == contract.ActionSuggestMeetingTimes {
				args = map[string]any{"participants": []string{"u1", "u2"}, "duration": 30}
			}
			results <- result{false, h.dispatch(action, "u1", args)}
		}(i)
	}
	wg.Wait()
	close(results)

	succeeded := 0
	for r := range results {
		if r.panicking {
			assert.Equal(t, schema.ErrCodeInternal, r.out.ErrorCode())
			assert.NotContains(t, r.out.Error.Message, "adapter bug")
			continue
		}
		if assert.True(t, r.out.Succeeded(), "%s: %+v", r.out.ActionName, r.out.Error) {
			succeeded++
		}
	}
	assert.Equal(t, 49, succeeded)
	assert.Equal(t, 50, h.rec.count())
}

func TestDispatch_ExactlyOneEntryPerOutcome(t *testing.T) {
	h := newHarness(t, fastConfig())
	h.handle(t, contract.ActionSummarizeThread, func(context.Context, actions.Arguments, string) (any, error) {
		return contract.ThreadSummary{ThreadID: "t1"}, nil
	})
	h.handle(t, contract.ActionTrackDecisions, func(context.Context, actions.Arguments, string) (any, error) {
		time.Sleep(300 * time.Millisecond)
		return contract.DecisionLog{}, nil
	})
	h.handle(t, contract.ActionDetectSchedulingNeed, func(context.Context, actions.Arguments, string) (any, error) {
		return nil, errors.New("nil map write")
	})
	h.handle(t, contract.ActionExtractActionItems, func(context.Context, actions.Arguments, string) (any, error) {
		return func() {}, nil
	})
	h.owners.allow("u1", actions.ResourceThread, "t1")

	cases := []struct {
		action string
		args   map[string]any
		status schema.OutcomeStatus
		code   schema.ErrorCode
	}{
		{contract.ActionSummarizeThread, map[string]any{"threadId": "t1"}, schema.OutcomeSuccess, ""},
		{contract.ActionTrackDecisions, map[string]any{"threadId": "t1"}, schema.OutcomeTimeout, schema.ErrCodeTimeout},
		{contract.ActionDetectSchedulingNeed, map[string]any{"threadId": "t1"}, schema.OutcomeError, schema.ErrCodeInternal},
		{contract.ActionExtractActionItems, map[string]any{"threadId": "t1", "userId": "u1"}, schema.OutcomeError, schema.ErrCodeInternal},
		{contract.ActionSummarizeThread, map[string]any{"threadId": "t2"}, schema.OutcomeError, schema.ErrCodePermissionDenied},
		{contract.ActionSearchMessages, map[string]any{"query": "x", "userId": "u1"}, schema.OutcomeError, schema.ErrCodeInternal},
		{"nope", nil, schema.OutcomeError, schema.ErrCodeInvalidFunction},
	}
	for _, tc := range cases {
		out := h.dispatch(tc.action, "u1", tc.args)
		assert.Equal(t, tc.status, out.Status, tc.action)
		assert.Equal(t, tc.code, out.ErrorCode(), tc.action)
		assert.Equal(t, out.Succeeded(), out.Result != nil, tc.action)
		h.requireOneEntry(t, out)
	}
	assert.Equal(t, len(cases), h.rec.count())
}

func TestDispatch_KeepsCallerRequestID(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	out := h.d.Dispatch(context.Background(), schema.InvocationRequest{
		ActionName: "doThing", CallerID: "u1", RequestID: "req-123",
	})
	assert.Equal(t, "req-123", out.RequestID)
	h.requireOneEntry(t, out)
}

func TestDispatch_CallerCancellation(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	started := make(chan struct{})
	h.handle(t, contract.ActionSummarizeThread, func(ctx context.Context, _ actions.Arguments, _ string) (any, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})
	h.owners.allow("u1", actions.ResourceThread, "t1")

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()
	out := h.d.Dispatch(ctx, schema.InvocationRequest{
		ActionName: contract.ActionSummarizeThread, CallerID: "u1",
		Arguments: map[string]any{"threadId": "t1"},
	})

	assert.Equal(t, schema.ErrCodeServiceUnavailable, out.ErrorCode())
	assert.Equal(t, CircuitClosed, h.d.Breakers().GetState(contract.ActionSummarizeThread))
	h.requireOneEntry(t, out)
}

func TestDispatch_OwnershipLookupDown(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.handle(t, contract.ActionSummarizeThread, func(context.Context, actions.Arguments, string) (any, error) {
		return contract.ThreadSummary{}, nil
	})
	h.owners.err = errors.New("directory timeout")

	out := h.dispatch(contract.ActionSummarizeThread, "u1", map[string]any{"threadId": "t1"})

	assert.Equal(t, schema.ErrCodeServiceUnavailable, out.ErrorCode())
	assert.Equal(t, int32(0), h.executed.Load())
}

func TestDispatch_CircuitOpensAndShortCircuits(t *testing.T) {
	cfg := fastConfig()
	cfg.Breaker = CircuitBreakerConfig{FailureThreshold: 2, Cooldown: time.Hour, HalfOpenMax: 1}
	h := newHarness(t, cfg)
	h.handle(t, contract.ActionCategorizeMessage, func(context.Context, actions.Arguments, string) (any, error) {
		return nil, actions.Unavailablef("classifier offline")
	})
	h.owners.allow("u1", actions.ResourceMessage, "m1")
	args := map[string]any{"messageId": "m1", "userId": "u1"}

	h.dispatch(contract.ActionCategorizeMessage, "u1", args)
	h.dispatch(contract.ActionCategorizeMessage, "u1", args)
	require.Equal(t, int32(2), h.executed.Load())

	out := h.dispatch(contract.ActionCategorizeMessage, "u1", args)
	assert.Equal(t, schema.ErrCodeServiceUnavailable, out.ErrorCode())
	assert.Equal(t, "open", out.Error.Details["circuit"])
	assert.Equal(t, int32(2), h.executed.Load(), "open circuit skips the handler")
	h.requireOneEntry(t, out)
}

func TestDispatch_AfterShutdown(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.handle(t, contract.ActionSummarizeThread, func(context.Context, actions.Arguments, string) (any, error) {
		return contract.ThreadSummary{}, nil
	})
	h.owners.allow("u1", actions.ResourceThread, "t1")
	h.d.Shutdown()

	out := h.dispatch(contract.ActionSummarizeThread, "u1", map[string]any{"threadId": "t1"})
	assert.Equal(t, schema.ErrCodeServiceUnavailable, out.ErrorCode())
	h.requireOneEntry(t, out)
}

func TestDispatch_HungActionOnlyExhaustsItsOwnSlots(t *testing.T) {
	cfg := fastConfig()
	cfg.PoolSize = 2
	cfg.Breaker = CircuitBreakerConfig{FailureThreshold: 3, Cooldown: time.Hour, HalfOpenMax: 1}
	h := newHarness(t, cfg)

	hung := make(chan struct{})
	h.handle(t, contract.ActionCheckCalendar, func(context.Context, actions.Arguments, string) (any, error) {
		<-hung
		return contract.CalendarAvailability{}, nil
	})
	h.handle(t, contract.ActionTrackDecisions, func(context.Context, actions.Arguments, string) (any, error) {
		return contract.DecisionLog{ThreadID: "t1"}, nil
	})
	h.owners.allow("u1", actions.ResourceThread, "t1")
	// Registered after newHarness so it runs before the dispatcher drains.
	t.Cleanup(func() { close(hung) })

	calendar := map[string]any{"userId": "u1", "startDate": "2026-03-02", "endDate": "2026-03-02"}
	for i := 0; i < cfg.PoolSize; i++ {
		out := h.dispatch(contract.ActionCheckCalendar, "u1", calendar)
		require.Equal(t, schema.ErrCodeTimeout, out.ErrorCode())
	}

	start := time.Now()
	out := h.dispatch(contract.ActionCheckCalendar, "u1", calendar)
	assert.Equal(t, schema.ErrCodeServiceUnavailable, out.ErrorCode())
	assert.Less(t, time.Since(start), cfg.Deadline, "a full action fails fast")
	assert.Equal(t, CircuitClosed, h.d.Breakers().GetState(contract.ActionCheckCalendar),
		"waiting for a slot is not a back-end failure")
	h.requireOneEntry(t, out)

	for i := 0; i < 5; i++ {
		out := h.dispatch(contract.ActionTrackDecisions, "u1", map[string]any{"threadId": "t1"})
		require.True(t, out.Succeeded(), "%+v", out.Error)
	}
	assert.Equal(t, 0, h.d.Breakers().GetStats(contract.ActionTrackDecisions)["consecutive_failures"])
	assert.Equal(t, int64(1), h.d.PoolStats().Rejected)
}

// panicOnMessage panics when a record with msg is handled.
type panicOnMessage struct{ msg string }

func (h panicOnMessage) Enabled(context.Context, slog.Level) bool { return true }

func (h panicOnMessage) Handle(_ context.Context, r slog.Record) error {
	if r.Message == h.msg {
		panic("log sink failed")
	}
	return nil
}

func (h panicOnMessage) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h panicOnMessage) WithGroup(string) slog.Handler      { return h }

func TestDispatch_PanicAfterRecordWritesOneEntry(t *testing.T) {
	h := newHarness(t, fastConfig())
	h.d.logger = slog.New(panicOnMessage{msg: "invocation completed"})
	h.handle(t, contract.ActionSummarizeThread, func(context.Context, actions.Arguments, string) (any, error) {
		return contract.ThreadSummary{ThreadID: "t1"}, nil
	})
	h.owners.allow("u1", actions.ResourceThread, "t1")

	out := h.dispatch(contract.ActionSummarizeThread, "u1", map[string]any{"threadId": "t1"})

	require.NotNil(t, out)
	assert.True(t, out.Succeeded())
	h.requireOneEntry(t, out)
	assert.Equal(t, 1, h.rec.count())
}
