package mcp

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/conduit/internal/actions"
	"github.com/rendis/conduit/internal/logging"
	"github.com/rendis/conduit/internal/store"
	"github.com/rendis/conduit/pkg/contract"
	"github.com/rendis/conduit/pkg/schema"
)

// --- Mock invoker ---

type mockInvoker struct {
	requests []schema.InvocationRequest
	outcome  *schema.InvocationOutcome
}

func (m *mockInvoker) Dispatch(_ context.Context, req schema.InvocationRequest) *schema.InvocationOutcome {
	m.requests = append(m.requests, req)
	out := *m.outcome
	out.ActionName = req.ActionName
	return &out
}

// --- Helpers ---

func buildRequest(toolName string, args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      toolName,
			Arguments: args,
		},
	}
}

func resultText(t *testing.T, r *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, r.Content)
	switch c := r.Content[0].(type) {
	case mcp.TextContent:
		return c.Text
	case *mcp.TextContent:
		return c.Text
	}
	t.Fatalf("unexpected content type %T", r.Content[0])
	return ""
}

func newServer(t *testing.T, inv Invoker, logs store.LogReader) *ConduitServer {
	t.Helper()
	s, err := NewConduitServer(ConduitServerDeps{
		Invoker:  inv,
		Catalog:  actions.DefaultSchemaRegistry(),
		Logs:     logs,
		CallerID: "u1",
		Logger:   logging.Discard(),
	})
	require.NoError(t, err)
	return s
}

// --- Tests ---

func TestNewConduitServer_RequiresDeps(t *testing.T) {
	_, err := NewConduitServer(ConduitServerDeps{Catalog: actions.DefaultSchemaRegistry(), CallerID: "u1"})
	assert.Error(t, err)
	_, err = NewConduitServer(ConduitServerDeps{Invoker: &mockInvoker{}, CallerID: "u1"})
	assert.Error(t, err)
	_, err = NewConduitServer(ConduitServerDeps{Invoker: &mockInvoker{}, Catalog: actions.DefaultSchemaRegistry()})
	assert.Error(t, err)
}

func TestToolRegistration(t *testing.T) {
	s := newServer(t, &mockInvoker{}, store.NewMemoryStore())

	tools := s.mcpServer.ListTools()
	require.Len(t, tools, len(contract.AllActions)+1)
	for _, name := range contract.AllActions {
		tool := s.mcpServer.GetTool(name)
		require.NotNil(t, tool, "tool %s should be registered", name)
		assert.NotEmpty(t, tool.Tool.Description)
		assert.NotEmpty(t, tool.Tool.RawInputSchema)
	}
	assert.NotNil(t, s.mcpServer.GetTool(ExecutionsTool))
}

func TestToolRegistration_WithoutLogs(t *testing.T) {
	s := newServer(t, &mockInvoker{}, nil)
	assert.Len(t, s.mcpServer.ListTools(), len(contract.AllActions))
	assert.Nil(t, s.mcpServer.GetTool(ExecutionsTool))
}

func TestActionTool_Success(t *testing.T) {
	inv := &mockInvoker{outcome: &schema.InvocationOutcome{
		RequestID: "r1",
		Status:    schema.OutcomeSuccess,
		Result:    json.RawMessage(`{"threadId":"t1","decisions":[]}`),
	}}
	s := newServer(t, inv, nil)

	handler := s.actionHandler(contract.ActionTrackDecisions)
	result, err := handler(context.Background(), buildRequest(contract.ActionTrackDecisions, map[string]any{"threadId": "t1"}))
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.JSONEq(t, `{"threadId":"t1","decisions":[]}`, resultText(t, result))

	require.Len(t, inv.requests, 1)
	assert.Equal(t, "u1", inv.requests[0].CallerID)
	assert.Equal(t, contract.ActionTrackDecisions, inv.requests[0].ActionName)
	assert.Equal(t, "t1", inv.requests[0].Arguments["threadId"])
}

func TestActionTool_FailureCarriesCode(t *testing.T) {
	inv := &mockInvoker{outcome: &schema.InvocationOutcome{
		RequestID: "r2",
		Status:    schema.OutcomeError,
		Error:     schema.NewError(schema.ErrCodePermissionDenied, "caller may not read this calendar"),
	}}
	s := newServer(t, inv, nil)

	handler := s.actionHandler(contract.ActionCheckCalendar)
	result, err := handler(context.Background(), buildRequest(contract.ActionCheckCalendar, map[string]any{"userId": "u2"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)

	var te toolError
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &te))
	assert.Equal(t, schema.ErrCodePermissionDenied, te.Code)
	assert.Equal(t, "r2", te.RequestID)
	assert.Equal(t, "caller may not read this calendar", te.Message)
}

func TestExecutionsTool(t *testing.T) {
	ms := store.NewMemoryStore()
	now := time.Now().UTC()
	require.NoError(t, ms.AppendEntries(context.Background(), []store.ExecutionLogEntry{
		{RequestID: "a", ActionName: "trackDecisions", CallerID: "u1", StartedAt: now, Timestamp: now, Status: schema.OutcomeSuccess},
		{RequestID: "b", ActionName: "trackDecisions", CallerID: "u2", StartedAt: now, Timestamp: now, Status: schema.OutcomeSuccess},
		{RequestID: "c", ActionName: "checkCalendar", CallerID: "u1", StartedAt: now, Timestamp: now, Status: schema.OutcomeError, ErrorCode: schema.ErrCodeTimeout},
	}))
	s := newServer(t, &mockInvoker{}, ms)

	result, err := s.handleExecutions(context.Background(), buildRequest(ExecutionsTool, nil))
	require.NoError(t, err)
	require.False(t, result.IsError)
	var list struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &list))
	assert.Equal(t, 2, list.Count, "only the server's caller is visible")

	result, err = s.handleExecutions(context.Background(), buildRequest(ExecutionsTool, map[string]any{
		"jq": "[.[] | .requestId] | sort",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)
	assert.JSONEq(t, `{"results":[["a","c"]]}`, resultText(t, result))
}

func TestExecutionsTool_BadInput(t *testing.T) {
	s := newServer(t, &mockInvoker{}, store.NewMemoryStore())

	for _, args := range []map[string]any{
		{"since": "yesterday"},
		{"limit": float64(5000)},
		{"jq": ".[] |"},
	} {
		result, err := s.handleExecutions(context.Background(), buildRequest(ExecutionsTool, args))
		require.NoError(t, err)
		assert.True(t, result.IsError, "%v", args)
	}
}
