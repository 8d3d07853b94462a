// Package mcpserver exposes the orchestration engine as Model Context Protocol
// tools: submitting messages and tasks, following task state, and querying
// the knowledge graph.
//
// Each tool follows the same pattern:
//   - A struct with its dependencies injected via constructor
//   - Definition() returns the mcp.Tool schema
//   - Handle() processes the request and returns a result
//
// Tool failures are reported as error results, never as protocol errors.
package mcpserver

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/codai-ecosystem/codai/graph"
	"github.com/codai-ecosystem/codai/registry"
	"github.com/codai-ecosystem/codai/router"
	"github.com/codai-ecosystem/codai/scheduler"
)

// Version is reported to MCP clients.
const Version = "0.1.0"

// Deps are the engine components served by the tools.
type Deps struct {
	Graph     *graph.Store
	Scheduler *scheduler.Scheduler
	Registry  *registry.Registry
	Router    *router.Router
}

// Tool is one MCP tool handler.
type Tool interface {
	Definition() mcp.Tool
	Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)
}

// Tools returns every tool backed by deps.
func Tools(deps Deps) []Tool {
	return []Tool{
		NewSubmitMessageTool(deps.Router),
		NewSubmitTaskTool(deps.Scheduler),
		NewCancelTaskTool(deps.Scheduler),
		NewTaskStatusTool(deps.Scheduler),
		NewListAgentsTool(deps.Registry, deps.Scheduler),
		NewGetNodeTool(deps.Graph),
		NewNodesByTypeTool(deps.Graph),
		NewSearchNodesTool(deps.Graph),
		NewConnectedNodesTool(deps.Graph),
		NewExportGraphTool(deps.Graph),
		NewHistoryTool(deps.Router),
	}
}

// New creates an MCP server with every tool registered.
func New(deps Deps) *server.MCPServer {
	s := server.NewMCPServer(
		"codai",
		Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(instructions),
	)

	for _, t := range Tools(deps) {
		s.AddTool(t.Definition(), t.Handle)
	}

	return s
}

// ServeStdio serves s over stdin and stdout until the client disconnects.
func ServeStdio(s *server.MCPServer) error { return server.ServeStdio(s) }

const instructions = `codai routes requests to a roster of agents (planner, builder, designer, tester, deployer) ` +
	`and records intents, features and decisions in a knowledge graph. ` +
	`Use submit_message for conversational requests, task_status to follow them, ` +
	`and the graph tools to inspect what has been recorded.`
