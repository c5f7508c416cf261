package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/conduit/internal/logging"
	"github.com/rendis/conduit/internal/store"
	"github.com/rendis/conduit/pkg/schema"
)

// toolError is the body of a failed tool call.
type toolError struct {
	Code      schema.ErrorCode `json:"code"`
	Message   string           `json:"message"`
	Details   map[string]any   `json:"details,omitempty"`
	RequestID string           `json:"requestId,omitempty"`
}

// actionHandler dispatches one catalog action as the server's caller.
func (s *ConduitServer) actionHandler(name string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		out := s.invoker.Dispatch(ctx, schema.InvocationRequest{
			ActionName: name,
			Arguments:  req.GetArguments(),
			CallerID:   s.callerID,
		})
		if out.Succeeded() {
			return marshalResult(out.Result)
		}

		te := toolError{Code: out.ErrorCode(), RequestID: out.RequestID}
		if out.Error != nil {
			te.Message = out.Error.Message
			te.Details = out.Error.Details
		}
		logging.LogWith(logging.WithIDs(ctx, out.RequestID, name, s.callerID), s.logger).
			Debug("mcp tool call failed", "code", string(te.Code))
		return errorResult(te), nil
	}
}

// handleExecutions returns the caller's own execution log entries.
func (s *ConduitServer) handleExecutions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	filter := store.LogFilter{
		Action:   req.GetString("action", ""),
		CallerID: s.callerID,
		Status:   schema.OutcomeStatus(req.GetString("status", "")),
		Limit:    req.GetInt("limit", 0),
	}
	if since := req.GetString("since", ""); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("since: %v", err)), nil
		}
		filter.Since = t
	}
	if filter.Limit < 0 || filter.Limit > store.MaxQueryLimit {
		return mcp.NewToolResultError(fmt.Sprintf("limit must be between 1 and %d", store.MaxQueryLimit)), nil
	}

	program := req.GetString("jq", "")
	if program != "" {
		if err := s.jq.Compile(program); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
	}

	entries, err := s.logs.QueryEntries(ctx, filter)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("query execution log: %v", err)), nil
	}
	if entries == nil {
		entries = []*store.ExecutionLogEntry{}
	}
	if program == "" {
		return marshalResult(map[string]any{"entries": entries, "count": len(entries)})
	}

	results, err := s.jq.EvaluateValue(ctx, program, entries)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return marshalResult(map[string]any{"results": results})
}

// marshalResult JSON-encodes v into a tool result.
func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}

func errorResult(te toolError) *mcp.CallToolResult {
	data, err := json.Marshal(te)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("%s: %s", te.Code, te.Message))
	}
	return mcp.NewToolResultError(string(data))
}
