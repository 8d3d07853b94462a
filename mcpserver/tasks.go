package mcpserver

import (
	"context"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/codai-ecosystem/codai/core"
	"github.com/codai-ecosystem/codai/router"
	"github.com/codai-ecosystem/codai/scheduler"
)

const maxWait = 10 * time.Minute

// ─── SubmitMessageTool ──────────────────────────────────────────────────────

// SubmitMessageTool handles the submit_message MCP tool.
type SubmitMessageTool struct {
	r *router.Router
}

// NewSubmitMessageTool creates a SubmitMessageTool.
func NewSubmitMessageTool(r *router.Router) *SubmitMessageTool { return &SubmitMessageTool{r: r} }

// Definition returns the MCP tool definition for submit_message.
func (t *SubmitMessageTool) Definition() mcp.Tool {
	return mcp.NewTool("submit_message",
		mcp.WithDescription(
			"Send a conversational request to an agent. The message is recorded as an intent "+
				"in the knowledge graph and the agent receives the surrounding graph as context.",
		),
		mcp.WithString("text",
			mcp.Required(),
			mcp.Description("The request text"),
		),
		mcp.WithString("agent_id",
			mcp.Description("Target agent; defaults to the configured default agent"),
		),
		mcp.WithString("conversation_id",
			mcp.Description("Conversation to thread the message into (default: \"default\")"),
		),
		mcp.WithBoolean("wait",
			mcp.Description("If true, wait for the task to finish and return its final state"),
		),
		mcp.WithNumber("timeout_seconds",
			mcp.Description("Maximum time to wait when wait is true (default: 300)"),
		),
	)
}

// Handle processes the submit_message tool call.
func (t *SubmitMessageTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text := req.GetString("text", "")
	if text == "" {
		return mcp.NewToolResultError("'text' is required"), nil
	}

	h, err := t.r.HandleMessage(ctx, text, func(o *router.MessageOptions) {
		o.AgentID = req.GetString("agent_id", "")
		o.ConversationID = req.GetString("conversation_id", "")
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to submit message: %v", err)), nil
	}

	return taskResult(ctx, req, h)
}

// ─── SubmitTaskTool ─────────────────────────────────────────────────────────

// SubmitTaskTool handles the submit_task MCP tool.
type SubmitTaskTool struct {
	s *scheduler.Scheduler
}

// NewSubmitTaskTool creates a SubmitTaskTool.
func NewSubmitTaskTool(s *scheduler.Scheduler) *SubmitTaskTool { return &SubmitTaskTool{s: s} }

// Definition returns the MCP tool definition for submit_task.
func (t *SubmitTaskTool) Definition() mcp.Tool {
	return mcp.NewTool("submit_task",
		mcp.WithDescription("Submit a task directly to an agent's queue."),
		mcp.WithString("agent_id",
			mcp.Required(),
			mcp.Description("Agent that executes the task"),
		),
		mcp.WithString("description",
			mcp.Required(),
			mcp.Description("What the agent should do"),
		),
		mcp.WithString("title",
			mcp.Description("Short title; derived from the description when empty"),
		),
		mcp.WithString("priority",
			mcp.Description("Task priority"),
			mcp.Enum("low", "medium", "high", "critical"),
		),
		mcp.WithBoolean("wait",
			mcp.Description("If true, wait for the task to finish and return its final state"),
		),
		mcp.WithNumber("timeout_seconds",
			mcp.Description("Maximum time to wait when wait is true (default: 300)"),
		),
	)
}

// Handle processes the submit_task tool call.
func (t *SubmitTaskTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	agentID := req.GetString("agent_id", "")
	if agentID == "" {
		return mcp.NewToolResultError("'agent_id' is required"), nil
	}

	description := req.GetString("description", "")
	if description == "" {
		return mcp.NewToolResultError("'description' is required"), nil
	}

	priority := core.Priority(req.GetString("priority", ""))
	if priority != "" && !priority.Valid() {
		return mcp.NewToolResultError(fmt.Sprintf("unknown priority %q", priority)), nil
	}

	h, err := t.s.Submit(ctx, core.Task{
		AgentID:     agentID,
		Title:       req.GetString("title", ""),
		Description: description,
		Priority:    priority,
		Inputs:      map[string]any{core.InputUserInput: description},
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to submit task: %v", err)), nil
	}

	return taskResult(ctx, req, h)
}

// taskResult returns the task state, first waiting for completion when the
// request asks for it.
func taskResult(ctx context.Context, req mcp.CallToolRequest, h *scheduler.Handle) (*mcp.CallToolResult, error) {
	if !boolArg(req, "wait", false) {
		return jsonResult(h.Task())
	}

	timeout := time.Duration(numberArg(req, "timeout_seconds", 300) * float64(time.Second))
	if timeout <= 0 || timeout > maxWait {
		timeout = maxWait
	}

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	task, err := h.Wait(waitCtx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("task %s still %s: %v", h.ID, h.Task().Status, err)), nil
	}

	return jsonResult(task)
}

// ─── CancelTaskTool ─────────────────────────────────────────────────────────

// CancelTaskTool handles the cancel_task MCP tool.
type CancelTaskTool struct {
	s *scheduler.Scheduler
}

// NewCancelTaskTool creates a CancelTaskTool.
func NewCancelTaskTool(s *scheduler.Scheduler) *CancelTaskTool { return &CancelTaskTool{s: s} }

// Definition returns the MCP tool definition for cancel_task.
func (t *CancelTaskTool) Definition() mcp.Tool {
	return mcp.NewTool("cancel_task",
		mcp.WithDescription(
			"Cancel a task. Pending tasks are always cancelled; running tasks only when "+
				"their agent supports cooperative cancellation.",
		),
		mcp.WithString("task_id",
			mcp.Required(),
			mcp.Description("Task to cancel"),
		),
	)
}

// Handle processes the cancel_task tool call.
func (t *CancelTaskTool) Handle(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("task_id", "")
	if id == "" {
		return mcp.NewToolResultError("'task_id' is required"), nil
	}

	ok, err := t.s.Cancel(id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to cancel task: %v", err)), nil
	}

	if !ok {
		task, _ := t.s.Get(id)
		return mcp.NewToolResultText(fmt.Sprintf("Task %s not cancelled (status: %s)", id, task.Status)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("Task %s cancelled", id)), nil
}

// ─── TaskStatusTool ─────────────────────────────────────────────────────────

// TaskStatusTool handles the task_status MCP tool.
type TaskStatusTool struct {
	s *scheduler.Scheduler
}

// NewTaskStatusTool creates a TaskStatusTool.
func NewTaskStatusTool(s *scheduler.Scheduler) *TaskStatusTool { return &TaskStatusTool{s: s} }

// Definition returns the MCP tool definition for task_status.
func (t *TaskStatusTool) Definition() mcp.Tool {
	return mcp.NewTool("task_status",
		mcp.WithDescription("Return one task, or every task in submission order when task_id is omitted."),
		mcp.WithString("task_id",
			mcp.Description("Task to inspect"),
		),
	)
}

// Handle processes the task_status tool call.
func (t *TaskStatusTool) Handle(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("task_id", "")
	if id == "" {
		return jsonResult(t.s.List())
	}

	task, ok := t.s.Get(id)
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("task %s not found", id)), nil
	}

	return jsonResult(task)
}
