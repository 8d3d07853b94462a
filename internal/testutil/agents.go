package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/codai-ecosystem/codai/agent"
	"github.com/codai-ecosystem/codai/core"
)

// NewEchoAgent returns a cooperative agent replying "<id>: <input>".
func NewEchoAgent(id string, capabilities ...string) *agent.FuncAgent {
	return agent.NewFuncAgent(id, func(_ context.Context, req *core.TaskRequest) (map[string]any, error) {
		return map[string]any{core.OutputReply: fmt.Sprintf("%s: %s", id, req.UserInput())}, nil
	}, func(o *agent.FuncAgentOptions) {
		o.Capabilities = capabilities
		o.Cooperative = true
	})
}

// NewFailingAgent returns an agent failing every attempt with err.
func NewFailingAgent(id string, err error) *agent.FuncAgent {
	return agent.NewFuncAgent(id, func(context.Context, *core.TaskRequest) (map[string]any, error) {
		return nil, err
	})
}

// BlockingAgent blocks every Execute call until Release is called or the
// context ends. It is cooperative.
type BlockingAgent struct {
	*agent.FuncAgent
	started chan string
	release chan struct{}
	once    sync.Once
}

// NewBlockingAgent creates a BlockingAgent.
func NewBlockingAgent(id string) *BlockingAgent {
	b := &BlockingAgent{
		started: make(chan string, 64),
		release: make(chan struct{}),
	}
	b.FuncAgent = agent.NewFuncAgent(id, func(ctx context.Context, req *core.TaskRequest) (map[string]any, error) {
		b.started <- req.TaskID
		select {
		case <-b.release:
			return map[string]any{core.OutputReply: "released: " + req.UserInput()}, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}, func(o *agent.FuncAgentOptions) { o.Cooperative = true })
	return b
}

// Started delivers the task id of every call as it starts.
func (b *BlockingAgent) Started() <-chan string { return b.started }

// Release unblocks all current and future calls.
func (b *BlockingAgent) Release() { b.once.Do(func() { close(b.release) }) }

// RecordingAgent wraps an agent and keeps a copy of every request.
type RecordingAgent struct {
	core.Agent

	mu       sync.Mutex
	requests []core.TaskRequest
}

// NewRecordingAgent wraps a.
func NewRecordingAgent(a core.Agent) *RecordingAgent { return &RecordingAgent{Agent: a} }

// Execute records req and delegates.
func (r *RecordingAgent) Execute(ctx context.Context, req *core.TaskRequest) (map[string]any, error) {
	r.mu.Lock()
	r.requests = append(r.requests, *req)
	r.mu.Unlock()
	return r.Agent.Execute(ctx, req)
}

// Requests returns the recorded requests.
func (r *RecordingAgent) Requests() []core.TaskRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]core.TaskRequest, len(r.requests))
	copy(out, r.requests)
	return out
}
