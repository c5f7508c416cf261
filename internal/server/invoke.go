package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/rendis/conduit/internal/logging"
	"github.com/rendis/conduit/pkg/schema"
)

// handleInvoke runs one invocation. A well-formed envelope always gets 200;
// the outcome is in the body.
func (s *Server) handleInvoke(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var req schema.InvocationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		requestID := uuid.NewString()
		ctx := logging.WithRequestID(r.Context(), requestID)
		logging.LogWith(ctx, s.deps.Logger).Warn("malformed invocation envelope",
			slog.String("remote_addr", r.RemoteAddr),
			slog.String("error", err.Error()),
		)
		s.deps.Metrics.ObserveInvocation("unknown", string(schema.OutcomeError),
			string(schema.ErrCodeInvalidParameters), time.Since(start))

		writeJSON(w, http.StatusBadRequest, &schema.InvocationResponse{
			Success: false,
			Error: &schema.WireError{
				Code:    schema.ErrCodeInvalidParameters,
				Message: "malformed request body: " + err.Error(),
			},
			ExecutionTimeMs: time.Since(start).Milliseconds(),
			RequestID:       requestID,
		})
		return
	}

	out := s.deps.Invoker.Dispatch(r.Context(), req)
	writeJSON(w, http.StatusOK, out.ToResponse())
}

// handleActions lists the catalog with generated input schemas.
func (s *Server) handleActions(w http.ResponseWriter, _ *http.Request) {
	if s.deps.Catalog == nil {
		writeError(w, http.StatusServiceUnavailable, "catalog not configured")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"actions": s.deps.Catalog.Infos()})
}
