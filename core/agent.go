package core

import (
	"context"
	"slices"
	"time"
)

// Agent is a named capability provider executing tasks.
//
// Execute receives the task inputs and returns its outputs. It is the only
// blocking call the scheduler makes; implementations should honour ctx
// cancellation where they can. Errors are classified with IsTransient:
// wrap retryable failures with Transient and anything else is permanent.
type Agent interface {
	ID() string
	Capabilities() []string
	Execute(ctx context.Context, req *TaskRequest) (map[string]any, error)
}

// CooperativeAgent is implemented by agents that observe ctx cancellation
// between internal steps. Cancelling an in-flight task is only honoured for
// agents reporting support.
type CooperativeAgent interface {
	Agent
	SupportsCancellation() bool
}

// SupportsCancellation reports whether a observes cooperative cancellation.
func SupportsCancellation(a Agent) bool {
	ca, ok := a.(CooperativeAgent)
	return ok && ca.SupportsCancellation()
}

// TaskRequest is handed to Agent.Execute for one attempt of a task.
type TaskRequest struct {
	TaskID      string
	Title       string
	Description string
	Priority    Priority
	Attempt     int
	Inputs      map[string]any

	progress func(int)
}

// NewTaskRequest builds the request for attempt n of task t. progress may be nil.
func NewTaskRequest(t Task, attempt int, progress func(int)) *TaskRequest {
	return &TaskRequest{
		TaskID:      t.ID,
		Title:       t.Title,
		Description: t.Description,
		Priority:    t.Priority,
		Attempt:     attempt,
		Inputs:      t.Clone().Inputs,
		progress:    progress,
	}
}

// Derive returns a copy of r carrying inputs and no progress reporter. It is
// used to hand a step of a composite task to another agent.
func (r *TaskRequest) Derive(inputs map[string]any) *TaskRequest {
	c := *r
	c.Inputs = inputs
	c.progress = nil
	return &c
}

// UserInput returns the request text, falling back to description and title.
func (r *TaskRequest) UserInput() string {
	if s, ok := r.Inputs[InputUserInput].(string); ok && s != "" {
		return s
	}
	if r.Description != "" {
		return r.Description
	}
	return r.Title
}

// Context returns the graph neighbourhood passed as task context, if any.
func (r *TaskRequest) Context() (GraphData, bool) {
	gd, ok := r.Inputs[InputContext].(GraphData)
	return gd, ok
}

// ReportProgress publishes a progress value in [0,100]. Values are clamped.
func (r *TaskRequest) ReportProgress(p int) {
	if r == nil || r.progress == nil {
		return
	}
	r.progress(min(max(p, 0), 100))
}

// AgentStatus is the registry view of an agent. IsHealthy and IsEnabled are
// operator controlled; LastActivity and TotalTasksCompleted are maintained by
// the scheduler.
type AgentStatus struct {
	IsHealthy           bool       `json:"isHealthy"`
	IsEnabled           bool       `json:"isEnabled"`
	LastActivity        *time.Time `json:"lastActivity,omitempty"`
	TotalTasksCompleted int        `json:"totalTasksCompleted"`
	Capabilities        []string   `json:"capabilities"`
}

// Available reports whether the agent may receive work.
func (s AgentStatus) Available() bool { return s.IsHealthy && s.IsEnabled }

// Clone returns a copy that shares no memory with s.
func (s AgentStatus) Clone() AgentStatus {
	c := s
	c.Capabilities = slices.Clone(s.Capabilities)
	if s.LastActivity != nil {
		v := *s.LastActivity
		c.LastActivity = &v
	}
	return c
}
