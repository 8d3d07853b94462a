package mcpserver

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/codai-ecosystem/codai/core"
	"github.com/codai-ecosystem/codai/registry"
	"github.com/codai-ecosystem/codai/scheduler"
)

// ListAgentsTool handles the list_agents MCP tool.
type ListAgentsTool struct {
	reg *registry.Registry
	s   *scheduler.Scheduler
}

// NewListAgentsTool creates a ListAgentsTool.
func NewListAgentsTool(reg *registry.Registry, s *scheduler.Scheduler) *ListAgentsTool {
	return &ListAgentsTool{reg: reg, s: s}
}

// Definition returns the MCP tool definition for list_agents.
func (t *ListAgentsTool) Definition() mcp.Tool {
	return mcp.NewTool("list_agents",
		mcp.WithDescription("List registered agents with health, enablement, activity and queue length."),
		mcp.WithString("capability",
			mcp.Description("Only list agents advertising this capability"),
		),
	)
}

type agentView struct {
	ID string `json:"id"`
	core.AgentStatus
	Queued int `json:"queued"`
}

// Handle processes the list_agents tool call.
func (t *ListAgentsTool) Handle(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ids := t.reg.IDs()
	if c := req.GetString("capability", ""); c != "" {
		ids = t.reg.FindByCapability(c)
	}

	views := make([]agentView, 0, len(ids))
	for _, id := range ids {
		st, ok := t.reg.GetStatus(id)
		if !ok {
			continue
		}
		views = append(views, agentView{ID: id, AgentStatus: st, Queued: t.s.QueueLength(id)})
	}

	return jsonResult(views)
}
