// Package app assembles a conduit process from configuration: store, audit
// logger, ownership and back-ends, handler registry, dispatcher and the
// optional cache, metrics and tracing.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rendis/conduit/internal/actions"
	"github.com/rendis/conduit/internal/auditlog"
	"github.com/rendis/conduit/internal/authz"
	"github.com/rendis/conduit/internal/cache"
	"github.com/rendis/conduit/internal/engine"
	"github.com/rendis/conduit/internal/expressions"
	"github.com/rendis/conduit/internal/handlers"
	"github.com/rendis/conduit/internal/logging"
	"github.com/rendis/conduit/internal/metrics"
	"github.com/rendis/conduit/internal/observability"
	"github.com/rendis/conduit/internal/server"
	"github.com/rendis/conduit/internal/store"
	"github.com/rendis/conduit/internal/streaming"
	"github.com/rendis/conduit/internal/validation"
	"github.com/rendis/conduit/internal/workspace"
)

// MemoryDB selects the in-memory execution log.
const MemoryDB = ":memory:"

type CacheConfig struct {
	Enabled       bool
	TTL           time.Duration
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

type BreakerConfig struct {
	Threshold int
	Cooldown  time.Duration
}

type TracingConfig struct {
	Endpoint   string
	SampleRate float64
}

// Config is the resolved process configuration.
type Config struct {
	DBPath    string
	LogLevel  string
	LogFormat string
	LogOutput io.Writer
	Deadline  time.Duration
	PoolSize  int
	LogBuffer int
	Cache     CacheConfig
	Breaker   BreakerConfig
	Workspace string
	Tracing   TracingConfig
	Version   string
}

// App is a wired conduit process.
type App struct {
	Logger     *slog.Logger
	Schemas    *actions.SchemaRegistry
	Store      store.Store
	Hub        *streaming.MemoryHub
	Audit      *auditlog.Logger
	Workspace  *workspace.Workspace
	Dispatcher *engine.Dispatcher
	Metrics    *metrics.Metrics
	Telemetry  *observability.Provider

	health  map[string]server.Pinger
	closers []func(context.Context) error
}

// New wires every component. The caller must Close the App.
func New(ctx context.Context, cfg Config) (_ *App, err error) {
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	out := cfg.LogOutput
	if out == nil {
		out = os.Stderr
	}

	a := &App{
		Logger:  logging.New(level, cfg.LogFormat, out),
		Schemas: actions.DefaultSchemaRegistry(),
		Hub:     streaming.NewMemoryHub(),
		Metrics: metrics.New("conduit"),
		health:  make(map[string]server.Pinger),
	}
	defer func() {
		if err != nil {
			_ = a.Close(context.Background())
		}
	}()

	a.Telemetry, err = observability.Init(ctx, observability.Config{
		Endpoint:   cfg.Tracing.Endpoint,
		Version:    cfg.Version,
		SampleRate: cfg.Tracing.SampleRate,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}
	a.closers = append(a.closers, a.Telemetry.Shutdown)

	if err := a.openStore(ctx, cfg.DBPath); err != nil {
		return nil, err
	}

	a.Audit = auditlog.New(a.Store,
		auditlog.WithConfig(auditlog.Config{BufferSize: cfg.LogBuffer}),
		auditlog.WithHub(a.Hub),
		auditlog.WithFallback(a.Logger),
		auditlog.WithMetrics(a.Metrics),
	)
	// Drain the audit log before the store closes.
	a.closers = append(a.closers, a.Audit.Close)

	if cfg.Workspace != "" {
		a.Workspace, err = workspace.LoadFile(cfg.Workspace)
		if err != nil {
			return nil, err
		}
	} else {
		a.Workspace = workspace.Sample()
	}

	validator := validation.New(expressions.NewExprEngine())
	if err := validator.Precompile(a.Schemas); err != nil {
		return nil, fmt.Errorf("compile validation rules: %w", err)
	}
	authorizer, err := authz.New(a.Workspace, nil)
	if err != nil {
		return nil, err
	}
	if err := authorizer.Precompile(a.Schemas); err != nil {
		return nil, fmt.Errorf("compile policies: %w", err)
	}

	registry := actions.NewRegistry()
	ws := a.Workspace
	if err := handlers.Register(registry, handlers.Backends{Threads: ws, Search: ws, Classifier: ws, Calendar: ws}); err != nil {
		return nil, err
	}
	if missing := registry.Missing(a.Schemas); len(missing) > 0 {
		return nil, fmt.Errorf("no handler for actions: %s", strings.Join(missing, ", "))
	}

	var resolver actions.Resolver = registry
	if cfg.Cache.Enabled {
		c, err := a.openCache(ctx, cfg.Cache)
		if err != nil {
			return nil, err
		}
		resolver = cache.NewCachingResolver(registry, c, cfg.Cache.TTL, a.Schemas.List(),
			cache.WithLogger(a.Logger), cache.WithMetrics(a.Metrics))
	}

	breaker := engine.DefaultCircuitBreakerConfig()
	if cfg.Breaker.Threshold != 0 {
		breaker.FailureThreshold = cfg.Breaker.Threshold
	}
	if cfg.Breaker.Cooldown > 0 {
		breaker.Cooldown = cfg.Breaker.Cooldown
	}

	a.Dispatcher, err = engine.NewDispatcher(engine.Deps{
		Schemas:    a.Schemas,
		Validator:  validator,
		Authorizer: authorizer,
		Handlers:   resolver,
		Recorder:   a.Audit,
		Logger:     a.Logger,
		Metrics:    a.Metrics,
		Tracer:     a.Telemetry.Tracer(),
	}, engine.Config{
		Deadline: cfg.Deadline,
		PoolSize: cfg.PoolSize,
		Breaker:  breaker,
	})
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func(context.Context) error {
		a.Dispatcher.Shutdown()
		return nil
	})
	return a, nil
}

func (a *App) openStore(ctx context.Context, path string) error {
	if path == "" || path == MemoryDB {
		a.Store = store.NewMemoryStore()
		a.closers = append(a.closers, func(context.Context) error { return a.Store.Close() })
		return nil
	}

	if dir := filepath.Dir(strings.TrimPrefix(path, "file:")); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create db directory: %w", err)
		}
	}
	dsn := path
	if !strings.HasPrefix(dsn, "file:") {
		dsn = "file:" + dsn
	}
	s, err := store.NewLibSQLStore(dsn)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, func(context.Context) error { return s.Close() })
	if err := s.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate execution log: %w", err)
	}
	a.Store = s
	a.health["store"] = s
	return nil
}

func (a *App) openCache(ctx context.Context, cfg CacheConfig) (cache.Cache, error) {
	if cfg.RedisAddr == "" {
		return cache.NewInMemoryCache(), nil
	}
	rc, err := cache.NewRedisCache(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func(context.Context) error { return rc.Close() })
	a.health["cache"] = rc
	return rc, nil
}

// Server returns the HTTP API over this App.
func (a *App) Server() *server.Server {
	return server.New(server.Deps{
		Invoker:   a.Dispatcher,
		Catalog:   a.Schemas,
		Logs:      a.Store,
		Hub:       a.Hub,
		Metrics:   a.Metrics,
		Telemetry: a.Telemetry,
		Health:    a.health,
		Logger:    a.Logger,
	})
}

// Close releases resources in reverse order of acquisition. The audit log
// is drained before the store closes.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
