package engine

import (
	"sync"
	"time"

	"github.com/rendis/conduit/internal/metrics"
	"github.com/rendis/conduit/pkg/schema"
)

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	CircuitClosed   CircuitState = iota // Normal operation
	CircuitOpen                         // Failing, rejecting calls
	CircuitHalfOpen                     // Testing recovery
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig configures the circuit breaker behavior.
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of consecutive failures before opening
	// the circuit. Zero or less disables the breaker.
	FailureThreshold int
	// Cooldown is how long the circuit stays open before transitioning to half-open.
	Cooldown time.Duration
	// HalfOpenMax is the number of trial requests allowed in half-open state.
	HalfOpenMax int
}

// DefaultCircuitBreakerConfig returns the default configuration.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 5,
		Cooldown:         30 * time.Second,
		HalfOpenMax:      1,
	}
}

// countsAsFailure reports whether an outcome code is a back-end failure.
// Caller mistakes (bad arguments, denials) never trip a breaker.
func countsAsFailure(code schema.ErrorCode) bool {
	switch code {
	case schema.ErrCodeServiceUnavailable, schema.ErrCodeInternal, schema.ErrCodeTimeout:
		return true
	}
	return false
}

type circuitBreaker struct {
	mu                  sync.Mutex
	state               CircuitState
	consecutiveFailures int
	lastFailureTime     time.Time
	halfOpenAttempts    int
}

// CircuitBreakerRegistry manages per-action circuit breakers.
type CircuitBreakerRegistry struct {
	mu       sync.Mutex
	breakers map[string]*circuitBreaker
	config   CircuitBreakerConfig
	now      func() time.Time
	metrics  *metrics.Metrics
}

// NewCircuitBreakerRegistry creates a new registry with the given config.
func NewCircuitBreakerRegistry(config CircuitBreakerConfig) *CircuitBreakerRegistry {
	if config.HalfOpenMax <= 0 {
		config.HalfOpenMax = 1
	}
	return &CircuitBreakerRegistry{
		breakers: make(map[string]*circuitBreaker),
		config:   config,
		now:      time.Now,
	}
}

// WithClock replaces the time source.
func (r *CircuitBreakerRegistry) WithClock(now func() time.Time) *CircuitBreakerRegistry {
	r.now = now
	return r
}

// WithMetrics reports state changes and trips.
func (r *CircuitBreakerRegistry) WithMetrics(m *metrics.Metrics) *CircuitBreakerRegistry {
	r.metrics = m
	return r
}

func (r *CircuitBreakerRegistry) enabled() bool {
	return r.config.FailureThreshold > 0
}

// AllowRequest checks whether a request to the given action may run.
// Returns nil if allowed, or a service_unavailable error while the circuit
// is open.
func (r *CircuitBreakerRegistry) AllowRequest(actionName string) error {
	if !r.enabled() {
		return nil
	}
	cb := r.getOrCreate(actionName)
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitOpen:
		elapsed := r.now().Sub(cb.lastFailureTime)
		if elapsed >= r.config.Cooldown {
			r.setState(actionName, cb, CircuitHalfOpen)
			cb.halfOpenAttempts = 1 // this request is the first trial
			return nil
		}
		return schema.NewErrorf(schema.ErrCodeServiceUnavailable,
			"%s is temporarily unavailable after %d consecutive failures",
			actionName, cb.consecutiveFailures).
			WithDetails(map[string]any{
				"circuit":              cb.state.String(),
				"consecutive_failures": cb.consecutiveFailures,
				"retry_after_ms":       (r.config.Cooldown - elapsed).Milliseconds(),
			})

	case CircuitHalfOpen:
		if cb.halfOpenAttempts >= r.config.HalfOpenMax {
			return schema.NewErrorf(schema.ErrCodeServiceUnavailable,
				"%s is temporarily unavailable while recovery is tested", actionName).
				WithDetails(map[string]any{"circuit": cb.state.String()})
		}
		cb.halfOpenAttempts++
	}
	return nil
}

// Record feeds one dispatched outcome into the action's breaker. code is ""
// on success.
func (r *CircuitBreakerRegistry) Record(actionName string, code schema.ErrorCode) {
	switch {
	case code == "":
		r.RecordSuccess(actionName)
	case countsAsFailure(code):
		r.RecordFailure(actionName)
	default:
		r.Release(actionName)
	}
}

// RecordSuccess records a successful execution for the action.
func (r *CircuitBreakerRegistry) RecordSuccess(actionName string) {
	if !r.enabled() {
		return
	}
	cb := r.getOrCreate(actionName)
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.consecutiveFailures = 0
	cb.halfOpenAttempts = 0
	r.setState(actionName, cb, CircuitClosed)
}

// RecordFailure records a failed execution for the action and returns the
// new circuit state.
func (r *CircuitBreakerRegistry) RecordFailure(actionName string) CircuitState {
	if !r.enabled() {
		return CircuitClosed
	}
	cb := r.getOrCreate(actionName)
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.consecutiveFailures++
	cb.lastFailureTime = r.now()

	if cb.state == CircuitHalfOpen || cb.consecutiveFailures >= r.config.FailureThreshold {
		if cb.state != CircuitOpen {
			r.metrics.BreakerTrip(actionName)
		}
		r.setState(actionName, cb, CircuitOpen)
	}
	return cb.state
}

// Release returns a half-open trial slot without judging the back-end, for
// outcomes that say nothing about its health (e.g. caller cancellation).
func (r *CircuitBreakerRegistry) Release(actionName string) {
	if !r.enabled() {
		return
	}
	cb := r.getOrCreate(actionName)
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == CircuitHalfOpen && cb.halfOpenAttempts > 0 {
		cb.halfOpenAttempts--
	}
}

// GetState returns the current state of the circuit for an action.
func (r *CircuitBreakerRegistry) GetState(actionName string) CircuitState {
	cb := r.getOrCreate(actionName)
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == CircuitOpen && r.now().Sub(cb.lastFailureTime) >= r.config.Cooldown {
		r.setState(actionName, cb, CircuitHalfOpen)
		cb.halfOpenAttempts = 0
	}
	return cb.state
}

// GetStats returns diagnostic information about a circuit breaker.
func (r *CircuitBreakerRegistry) GetStats(actionName string) map[string]any {
	cb := r.getOrCreate(actionName)
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return map[string]any{
		"action":               actionName,
		"state":                cb.state.String(),
		"consecutive_failures": cb.consecutiveFailures,
		"failure_threshold":    r.config.FailureThreshold,
		"cooldown":             r.config.Cooldown.String(),
	}
}

// setState must be called with cb.mu held.
func (r *CircuitBreakerRegistry) setState(actionName string, cb *circuitBreaker, s CircuitState) {
	if cb.state == s {
		return
	}
	cb.state = s
	r.metrics.BreakerState(actionName, int(s))
}

func (r *CircuitBreakerRegistry) getOrCreate(actionName string) *circuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	cb, ok := r.breakers[actionName]
	if !ok {
		cb = &circuitBreaker{state: CircuitClosed}
		r.breakers[actionName] = cb
	}
	return cb
}
