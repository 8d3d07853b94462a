package core

import (
	"maps"
	"time"
)

// TaskStatus is a node of the task state machine:
// pending -> in_progress -> {completed | failed | cancelled}.
// A pending task may also be cancelled directly.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
	TaskCancelled  TaskStatus = "cancelled"
)

// IsTerminal reports whether no further transition is allowed.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskCompleted || s == TaskFailed || s == TaskCancelled
}

// CanTransitionTo reports whether s -> next is an edge of the state machine.
func (s TaskStatus) CanTransitionTo(next TaskStatus) bool {
	switch s {
	case "":
		return next == TaskPending
	case TaskPending:
		return next == TaskInProgress || next == TaskCancelled
	case TaskInProgress:
		return next.IsTerminal()
	default:
		return false
	}
}

// Priority orders work items for display and reporting.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// Well-known task input and output keys.
const (
	InputUserInput = "userInput"
	InputContext   = "context"
	OutputReply    = "reply"
	OutputNodeType = "nodeType"
)

// Task is a unit of work assigned to exactly one agent. State transitions are
// owned by the scheduler; callers only ever see copies.
type Task struct {
	ID             string         `json:"id"`
	Title          string         `json:"title"`
	Description    string         `json:"description"`
	AgentID        string         `json:"agentId"`
	Status         TaskStatus     `json:"status"`
	Priority       Priority       `json:"priority"`
	Progress       int            `json:"progress"`
	Inputs         map[string]any `json:"inputs,omitempty"`
	Outputs        map[string]any `json:"outputs,omitempty"`
	Error          string         `json:"error,omitempty"`
	ErrorKind      string         `json:"errorKind,omitempty"`
	Attempts       int            `json:"attempts"`
	Timeout        time.Duration  `json:"timeout,omitempty"`
	IntentID       string         `json:"intentId,omitempty"`
	ResultNodeID   string         `json:"resultNodeId,omitempty"`
	ConversationID string         `json:"conversationId,omitempty"`
	CreatedAt      time.Time      `json:"createdAt"`
	StartedAt      *time.Time     `json:"startedAt,omitempty"`
	CompletedAt    *time.Time     `json:"completedAt,omitempty"`
}

// Clone returns a copy with independent maps and timestamps.
func (t Task) Clone() Task {
	c := t
	if t.Inputs != nil {
		c.Inputs = maps.Clone(t.Inputs)
	}
	if t.Outputs != nil {
		c.Outputs = maps.Clone(t.Outputs)
	}
	if t.StartedAt != nil {
		v := *t.StartedAt
		c.StartedAt = &v
	}
	if t.CompletedAt != nil {
		v := *t.CompletedAt
		c.CompletedAt = &v
	}
	return c
}

// UserInput returns the free-form request text carried by the task.
func (t Task) UserInput() string {
	if s, ok := t.Inputs[InputUserInput].(string); ok && s != "" {
		return s
	}
	if t.Description != "" {
		return t.Description
	}
	return t.Title
}
