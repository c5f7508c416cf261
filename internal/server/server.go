// Package server exposes the dispatcher over HTTP: the invocation endpoint,
// the action catalog, execution log queries and a live SSE tail.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/rendis/conduit/internal/actions"
	"github.com/rendis/conduit/internal/expressions"
	"github.com/rendis/conduit/internal/metrics"
	"github.com/rendis/conduit/internal/observability"
	"github.com/rendis/conduit/internal/store"
	"github.com/rendis/conduit/internal/streaming"
	"github.com/rendis/conduit/pkg/schema"
)

// maxBodyBytes caps the size of an invocation envelope.
const maxBodyBytes = 1 << 20

// Invoker runs one invocation to completion.
type Invoker interface {
	Dispatch(ctx context.Context, req schema.InvocationRequest) *schema.InvocationOutcome
}

// Pinger is a dependency checked by /healthz.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps holds the dependencies for the HTTP server. Logs, Hub, Metrics and
// Telemetry are optional; their routes answer 503 or are omitted when unset.
type Deps struct {
	Invoker   Invoker
	Catalog   *actions.SchemaRegistry
	Logs      store.LogReader
	Hub       streaming.EventHub
	JQ        *expressions.GoJQEngine
	Metrics   *metrics.Metrics
	Telemetry *observability.Provider
	Health    map[string]Pinger
	Logger    *slog.Logger
}

// Server serves the conduit HTTP API.
type Server struct {
	deps Deps
}

// New creates a Server.
func New(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	if deps.JQ == nil {
		deps.JQ = expressions.NewGoJQEngine()
	}
	return &Server{deps: deps}
}

// Handler returns the HTTP handler for all routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/invoke", s.handleInvoke)
	mux.HandleFunc("GET /v1/actions", s.handleActions)
	mux.HandleFunc("GET /v1/executions", s.handleExecutions)
	mux.HandleFunc("GET /v1/executions/stream", s.handleStream)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	if s.deps.Metrics != nil {
		mux.Handle("GET /metrics", s.deps.Metrics.Handler())
	}

	return s.deps.Telemetry.HTTPMiddleware(mux)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.deps.Logger.Info("http server listening", slog.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.deps.Logger.Info("http server shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}
