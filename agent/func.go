package agent

import (
	"context"

	"github.com/codai-ecosystem/codai/core"
)

// ExecuteFunc is the signature of a function backed agent.
type ExecuteFunc func(ctx context.Context, req *core.TaskRequest) (map[string]any, error)

// FuncAgentOptions configures a FuncAgent.
type FuncAgentOptions struct {
	Capabilities []string
	Description  string
	// Cooperative declares that fn observes ctx cancellation.
	Cooperative bool
}

// FuncAgent adapts a plain function to core.Agent.
type FuncAgent struct {
	BaseAgent
	fn          ExecuteFunc
	cooperative bool
}

var _ core.CooperativeAgent = (*FuncAgent)(nil)

// NewFuncAgent creates an agent that delegates Execute to fn.
func NewFuncAgent(id string, fn ExecuteFunc, optFns ...func(o *FuncAgentOptions)) *FuncAgent {
	opts := FuncAgentOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}

	a := &FuncAgent{
		BaseAgent:   NewBaseAgent(id, opts.Capabilities...),
		fn:          fn,
		cooperative: opts.Cooperative,
	}
	if opts.Description != "" {
		a.SetDescription(opts.Description)
	}

	return a
}

// Execute implements core.Agent.
func (a *FuncAgent) Execute(ctx context.Context, req *core.TaskRequest) (map[string]any, error) {
	return a.fn(ctx, req)
}

// SupportsCancellation implements core.CooperativeAgent.
func (a *FuncAgent) SupportsCancellation() bool { return a.cooperative }
