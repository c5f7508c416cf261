// Package metrics exposes Prometheus collectors for invocations, the handler
// pool, the execution logger and the circuit breakers.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Default histogram buckets for invocation duration (in milliseconds).
// They bracket the 2000 ms deadline.
var defaultBuckets = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 1500, 2000, 2500}

// Metrics wraps the conduit collectors and their registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	invocationsTotal   *prometheus.CounterVec
	invocationDuration *prometheus.HistogramVec
	inFlight           prometheus.Gauge
	handlerPanics      *prometheus.CounterVec
	cacheLookups       *prometheus.CounterVec

	logEntriesTotal *prometheus.CounterVec
	logQueueDepth   prometheus.Gauge

	breakerState *prometheus.GaugeVec
	breakerTrips *prometheus.CounterVec
}

// New creates a Metrics instance with its own registry, including the Go and
// process collectors.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "conduit"
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		registry: registry,

		invocationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "invocations_total",
				Help:      "Total number of action invocations by outcome",
			},
			[]string{"action", "status", "code"},
		),

		invocationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "invocation_duration_milliseconds",
				Help:      "Duration of action invocations in milliseconds",
				Buckets:   defaultBuckets,
			},
			[]string{"action", "status"},
		),

		inFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "invocations_in_flight",
				Help:      "Number of invocations currently being dispatched",
			},
		),

		handlerPanics: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "handler_panics_total",
				Help:      "Handler panics recovered by the dispatcher",
			},
			[]string{"action"},
		),

		cacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_lookups_total",
				Help:      "Invocation cache lookups by result (hit, miss, error)",
			},
			[]string{"action", "result"},
		),

		logEntriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "execution_log_entries_total",
				Help:      "Execution log entries by destination (store, fallback)",
			},
			[]string{"destination"},
		),

		logQueueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "execution_log_queue_depth",
				Help:      "Entries waiting to be written to the execution log",
			},
		),

		breakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "circuit_breaker_state",
				Help:      "Circuit breaker state per action (0=closed, 1=open, 2=half_open)",
			},
			[]string{"action"},
		),

		breakerTrips: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "circuit_breaker_trips_total",
				Help:      "Times a circuit breaker opened",
			},
			[]string{"action"},
		),
	}

	registry.MustRegister(
		m.invocationsTotal,
		m.invocationDuration,
		m.inFlight,
		m.handlerPanics,
		m.cacheLookups,
		m.logEntriesTotal,
		m.logQueueDepth,
		m.breakerState,
		m.breakerTrips,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveInvocation records one terminal outcome.
func (m *Metrics) ObserveInvocation(action, status, code string, d time.Duration) {
	if m == nil {
		return
	}
	m.invocationsTotal.WithLabelValues(action, status, code).Inc()
	m.invocationDuration.WithLabelValues(action, status).Observe(float64(d.Microseconds()) / 1000)
}

// InFlightInc marks an invocation as started.
func (m *Metrics) InFlightInc() {
	if m == nil {
		return
	}
	m.inFlight.Inc()
}

// InFlightDec marks an invocation as finished.
func (m *Metrics) InFlightDec() {
	if m == nil {
		return
	}
	m.inFlight.Dec()
}

// HandlerPanic counts a recovered handler panic.
func (m *Metrics) HandlerPanic(action string) {
	if m == nil {
		return
	}
	m.handlerPanics.WithLabelValues(action).Inc()
}

// CacheLookup counts a cache lookup result: "hit", "miss" or "error".
func (m *Metrics) CacheLookup(action, result string) {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues(action, result).Inc()
}

// LogEntries counts entries written to destination ("store" or "fallback").
func (m *Metrics) LogEntries(destination string, n int) {
	if m == nil {
		return
	}
	m.logEntriesTotal.WithLabelValues(destination).Add(float64(n))
}

// LogQueueDepth sets the number of buffered log entries.
func (m *Metrics) LogQueueDepth(n int) {
	if m == nil {
		return
	}
	m.logQueueDepth.Set(float64(n))
}

// BreakerState sets the breaker state gauge for action.
func (m *Metrics) BreakerState(action string, state int) {
	if m == nil {
		return
	}
	m.breakerState.WithLabelValues(action).Set(float64(state))
}

// BreakerTrip counts a breaker opening.
func (m *Metrics) BreakerTrip(action string) {
	if m == nil {
		return
	}
	m.breakerTrips.WithLabelValues(action).Inc()
}
