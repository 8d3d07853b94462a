package mcpserver

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/codai-ecosystem/codai/core"
	"github.com/codai-ecosystem/codai/graph"
	"github.com/codai-ecosystem/codai/router"
)

// ─── GetNodeTool ────────────────────────────────────────────────────────────

// GetNodeTool handles the get_node MCP tool.
type GetNodeTool struct {
	g *graph.Store
}

// NewGetNodeTool creates a GetNodeTool.
func NewGetNodeTool(g *graph.Store) *GetNodeTool { return &GetNodeTool{g: g} }

// Definition returns the MCP tool definition for get_node.
func (t *GetNodeTool) Definition() mcp.Tool {
	return mcp.NewTool("get_node",
		mcp.WithDescription("Return a knowledge graph node with its incident edges."),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Node ID"),
		),
	)
}

// Handle processes the get_node tool call.
func (t *GetNodeTool) Handle(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("id", "")
	if id == "" {
		return mcp.NewToolResultError("'id' is required"), nil
	}

	node, ok := t.g.GetNode(id)
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("node %s not found", id)), nil
	}

	return jsonResult(struct {
		Node  core.Node   `json:"node"`
		Edges []core.Edge `json:"edges"`
	}{node, t.g.EdgesOf(id)})
}

// ─── NodesByTypeTool ────────────────────────────────────────────────────────

// NodesByTypeTool handles the nodes_by_type MCP tool.
type NodesByTypeTool struct {
	g *graph.Store
}

// NewNodesByTypeTool creates a NodesByTypeTool.
func NewNodesByTypeTool(g *graph.Store) *NodesByTypeTool { return &NodesByTypeTool{g: g} }

// Definition returns the MCP tool definition for nodes_by_type.
func (t *NodesByTypeTool) Definition() mcp.Tool {
	types := make([]string, len(core.NodeTypes))
	for i, nt := range core.NodeTypes {
		types[i] = string(nt)
	}

	return mcp.NewTool("nodes_by_type",
		mcp.WithDescription("List knowledge graph nodes of one type in creation order."),
		mcp.WithString("type",
			mcp.Required(),
			mcp.Description("Node type"),
			mcp.Enum(types...),
		),
	)
}

// Handle processes the nodes_by_type tool call.
func (t *NodesByTypeTool) Handle(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	nt := core.NodeType(req.GetString("type", ""))
	if !nt.Valid() {
		return mcp.NewToolResultError(fmt.Sprintf("unknown node type %q", nt)), nil
	}

	return jsonResult(t.g.GetNodesByType(nt))
}

// ─── SearchNodesTool ────────────────────────────────────────────────────────

// SearchNodesTool handles the search_nodes MCP tool.
type SearchNodesTool struct {
	g *graph.Store
}

// NewSearchNodesTool creates a SearchNodesTool.
func NewSearchNodesTool(g *graph.Store) *SearchNodesTool { return &SearchNodesTool{g: g} }

// Definition returns the MCP tool definition for search_nodes.
func (t *SearchNodesTool) Definition() mcp.Tool {
	return mcp.NewTool("search_nodes",
		mcp.WithDescription("Case-insensitive substring search over node content and string metadata."),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Text to search for"),
		),
	)
}

// Handle processes the search_nodes tool call.
func (t *SearchNodesTool) Handle(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query := req.GetString("query", "")
	if query == "" {
		return mcp.NewToolResultError("'query' is required"), nil
	}

	return jsonResult(t.g.SearchNodes(query))
}

// ─── ConnectedNodesTool ─────────────────────────────────────────────────────

// ConnectedNodesTool handles the connected_nodes MCP tool.
type ConnectedNodesTool struct {
	g *graph.Store
}

// NewConnectedNodesTool creates a ConnectedNodesTool.
func NewConnectedNodesTool(g *graph.Store) *ConnectedNodesTool { return &ConnectedNodesTool{g: g} }

// Definition returns the MCP tool definition for connected_nodes.
func (t *ConnectedNodesTool) Definition() mcp.Tool {
	return mcp.NewTool("connected_nodes",
		mcp.WithDescription(
			"Return the neighbours of a node. With depth 1 (default) the direct neighbours; "+
				"with a larger depth (up to 5) the whole neighbourhood including edges.",
		),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Node ID"),
		),
		mcp.WithNumber("depth",
			mcp.Description("Traversal depth, 1 to 5 (default: 1)"),
		),
	)
}

// Handle processes the connected_nodes tool call.
func (t *ConnectedNodesTool) Handle(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("id", "")
	if id == "" {
		return mcp.NewToolResultError("'id' is required"), nil
	}

	if _, ok := t.g.GetNode(id); !ok {
		return mcp.NewToolResultError(fmt.Sprintf("node %s not found", id)), nil
	}

	depth := int(numberArg(req, "depth", 1))
	if depth <= 1 {
		return jsonResult(t.g.GetConnectedNodes(id))
	}

	return jsonResult(t.g.Subgraph(id, depth))
}

// ─── ExportGraphTool ────────────────────────────────────────────────────────

// ExportGraphTool handles the export_graph MCP tool.
type ExportGraphTool struct {
	g *graph.Store
}

// NewExportGraphTool creates an ExportGraphTool.
func NewExportGraphTool(g *graph.Store) *ExportGraphTool { return &ExportGraphTool{g: g} }

// Definition returns the MCP tool definition for export_graph.
func (t *ExportGraphTool) Definition() mcp.Tool {
	return mcp.NewTool("export_graph",
		mcp.WithDescription("Export the whole knowledge graph in the snapshot wire format."),
	)
}

// Handle processes the export_graph tool call.
func (t *ExportGraphTool) Handle(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	data, err := core.EncodeSnapshot(t.g.Export())
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to export graph: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// ─── HistoryTool ────────────────────────────────────────────────────────────

// HistoryTool handles the export_history MCP tool.
type HistoryTool struct {
	r *router.Router
}

// NewHistoryTool creates a HistoryTool.
func NewHistoryTool(r *router.Router) *HistoryTool { return &HistoryTool{r: r} }

// Definition returns the MCP tool definition for export_history.
func (t *HistoryTool) Definition() mcp.Tool {
	return mcp.NewTool("export_history",
		mcp.WithDescription("Export conversation turns recorded in the knowledge graph, oldest first."),
		mcp.WithString("conversation_id",
			mcp.Description("Conversation to export; all conversations when omitted"),
		),
	)
}

// Handle processes the export_history tool call.
func (t *HistoryTool) Handle(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(t.r.ExportHistory(req.GetString("conversation_id", "")))
}
