// Package mcp serves the action catalog as Model Context Protocol tools.
// Every tool call runs through the dispatcher on behalf of one caller fixed
// for the lifetime of the server.
package mcp

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/conduit/internal/actions"
	"github.com/rendis/conduit/internal/expressions"
	"github.com/rendis/conduit/internal/store"
	"github.com/rendis/conduit/pkg/schema"
)

// ExecutionsTool is the name of the log query tool.
const ExecutionsTool = "conduit.executions"

// Invoker runs one invocation to completion.
type Invoker interface {
	Dispatch(ctx context.Context, req schema.InvocationRequest) *schema.InvocationOutcome
}

// ConduitServerDeps holds the dependencies for creating a ConduitServer.
type ConduitServerDeps struct {
	Invoker  Invoker
	Catalog  *actions.SchemaRegistry
	Logs     store.LogReader
	CallerID string
	Version  string
	Logger   *slog.Logger
}

// ConduitServer wraps an MCP server with one tool per catalog action.
type ConduitServer struct {
	invoker   Invoker
	catalog   *actions.SchemaRegistry
	logs      store.LogReader
	jq        *expressions.GoJQEngine
	callerID  string
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// NewConduitServer creates a ConduitServer. The executions tool is only
// registered when Logs is set.
func NewConduitServer(deps ConduitServerDeps) (*ConduitServer, error) {
	switch {
	case deps.Invoker == nil:
		return nil, errors.New("mcp: invoker is required")
	case deps.Catalog == nil:
		return nil, errors.New("mcp: catalog is required")
	case deps.CallerID == "":
		return nil, errors.New("mcp: caller ID is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	version := deps.Version
	if version == "" {
		version = "dev"
	}

	s := &ConduitServer{
		invoker:  deps.Invoker,
		catalog:  deps.Catalog,
		logs:     deps.Logs,
		jq:       expressions.NewGoJQEngine(),
		callerID: deps.CallerID,
		logger:   logger,
	}

	mcpSrv := server.NewMCPServer(
		"conduit",
		version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("Conduit runs messaging assistant actions on behalf of the connected user. "+
			"Each tool is one action; its input schema lists the accepted arguments. "+
			"A failed call returns an error object with a code such as invalid_parameters, permission_denied, timeout or service_unavailable."),
	)

	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	return s, nil
}

// Serve starts the stdio transport and blocks until ctx is cancelled or stdin closes.
func (s *ConduitServer) Serve(ctx context.Context) error {
	return s.ServeIO(ctx, os.Stdin, os.Stdout)
}

// ServeIO speaks MCP over the given streams.
func (s *ConduitServer) ServeIO(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, in, out)
}

// MCPServer returns the underlying MCPServer for testing or custom transports.
func (s *ConduitServer) MCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *ConduitServer) tools() []server.ServerTool {
	schemas := s.catalog.List()
	tools := make([]server.ServerTool, 0, len(schemas)+1)
	for _, as := range schemas {
		tools = append(tools, server.ServerTool{
			Tool:    mcp.NewToolWithRawSchema(as.Name, as.Description, as.InputSchema()),
			Handler: s.actionHandler(as.Name),
		})
	}
	if s.logs != nil {
		tools = append(tools, server.ServerTool{Tool: executionsTool(), Handler: s.handleExecutions})
	}
	return tools
}

func executionsTool() mcp.Tool {
	return mcp.NewTool(ExecutionsTool,
		mcp.WithDescription("List your recent action invocations, newest first"),
		mcp.WithString("action", mcp.Description("Only invocations of this action")),
		mcp.WithString("status", mcp.Enum("success", "error", "timeout"), mcp.Description("Only invocations with this outcome")),
		mcp.WithString("since", mcp.Description("RFC 3339 lower bound, inclusive")),
		mcp.WithNumber("limit", mcp.Description("Maximum entries (default 100, max 1000)")),
		mcp.WithString("jq", mcp.Description("jq program applied to the array of entries")),
	)
}
