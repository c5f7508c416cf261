package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/rendis/conduit/internal/store"
	"github.com/rendis/conduit/pkg/schema"
)

// handleExecutions queries the execution log. With ?jq= the entries are
// passed, as one array, through the jq program and its outputs returned.
func (s *Server) handleExecutions(w http.ResponseWriter, r *http.Request) {
	if s.deps.Logs == nil {
		writeError(w, http.StatusServiceUnavailable, "execution log not configured")
		return
	}

	filter, err := parseLogFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	program := r.URL.Query().Get("jq")
	if program != "" {
		if err := s.deps.JQ.Compile(program); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	entries, err := s.deps.Logs.QueryEntries(r.Context(), filter)
	if err != nil {
		s.deps.Logger.Error("execution log query failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "query execution log")
		return
	}
	if entries == nil {
		entries = []*store.ExecutionLogEntry{}
	}

	if program == "" {
		writeJSON(w, http.StatusOK, map[string]any{"entries": entries, "count": len(entries)})
		return
	}

	results, err := s.deps.JQ.EvaluateValue(r.Context(), program, entries)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

// parseLogFilter reads action, callerId, status, since, until and limit.
// Times are RFC 3339.
func parseLogFilter(r *http.Request) (store.LogFilter, error) {
	q := r.URL.Query()
	f := store.LogFilter{
		Action:   q.Get("action"),
		CallerID: q.Get("callerId"),
	}

	if v := q.Get("status"); v != "" {
		switch st := schema.OutcomeStatus(v); st {
		case schema.OutcomeSuccess, schema.OutcomeError, schema.OutcomeTimeout:
			f.Status = st
		default:
			return f, fmt.Errorf("invalid status %q", v)
		}
	}
	for _, p := range []struct {
		key string
		dst *time.Time
	}{{"since", &f.Since}, {"until", &f.Until}} {
		v := q.Get(p.key)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, fmt.Errorf("invalid %s: %v", p.key, err)
		}
		*p.dst = t
	}
	if !f.Since.IsZero() && !f.Until.IsZero() && !f.Until.After(f.Since) {
		return f, fmt.Errorf("until must be after since")
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > store.MaxQueryLimit {
			return f, fmt.Errorf("limit must be between 1 and %d", store.MaxQueryLimit)
		}
		f.Limit = n
	}
	return f, nil
}
