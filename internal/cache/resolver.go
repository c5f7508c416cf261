package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/rendis/conduit/internal/actions"
	"github.com/rendis/conduit/internal/logging"
	"github.com/rendis/conduit/internal/metrics"
)

// CachingResolver decorates a handler resolver with cache-aside lookups for
// actions marked Cacheable. Only successful results are cached. Cache
// failures are logged and otherwise ignored.
type CachingResolver struct {
	inner     actions.Resolver
	cache     Cache
	ttl       time.Duration
	cacheable map[string]bool
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// Option configures a CachingResolver.
type Option func(*CachingResolver)

// WithLogger sets the logger for cache failures.
func WithLogger(l *slog.Logger) Option {
	return func(r *CachingResolver) { r.logger = l }
}

// WithMetrics counts hits and misses.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *CachingResolver) { r.metrics = m }
}

// NewCachingResolver wraps inner. ttl <= 0 means DefaultTTL.
func NewCachingResolver(inner actions.Resolver, c Cache, ttl time.Duration, schemas []*actions.ActionSchema, opts ...Option) *CachingResolver {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	r := &CachingResolver{
		inner:     inner,
		cache:     c,
		ttl:       ttl,
		cacheable: make(map[string]bool),
		logger:    slog.Default(),
	}
	for _, s := range schemas {
		if s.Cacheable {
			r.cacheable[s.Name] = true
		}
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the inner handler, wrapped when the action is cacheable.
func (r *CachingResolver) Resolve(name string) (actions.Handler, error) {
	h, err := r.inner.Resolve(name)
	if err != nil || !r.cacheable[name] {
		return h, err
	}
	return &cachedHandler{name: name, inner: h, r: r}, nil
}

type cachedHandler struct {
	name  string
	inner actions.Handler
	r     *CachingResolver
}

func (h *cachedHandler) Execute(ctx context.Context, args actions.Arguments, callerID string) (any, error) {
	key, err := Key(h.name, callerID, args)
	if err != nil {
		return h.inner.Execute(ctx, args, callerID)
	}

	raw, ok, err := h.r.cache.Get(ctx, key)
	switch {
	case err != nil:
		h.r.metrics.CacheLookup(h.name, "error")
		logging.LogWith(ctx, h.r.logger).Warn("result cache read failed", slog.String("error", err.Error()))
	case ok:
		h.r.metrics.CacheLookup(h.name, "hit")
		return json.RawMessage(raw), nil
	default:
		h.r.metrics.CacheLookup(h.name, "miss")
	}

	v, err := h.inner.Execute(ctx, args, callerID)
	if err != nil {
		return nil, err
	}
	if encoded, err := json.Marshal(v); err == nil && ctx.Err() == nil {
		if err := h.r.cache.Set(ctx, key, encoded, h.r.ttl); err != nil {
			logging.LogWith(ctx, h.r.logger).Warn("result cache write failed", slog.String("error", err.Error()))
		}
	}
	return v, nil
}

var _ actions.Resolver = (*CachingResolver)(nil)
