package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/codai-ecosystem/codai/core"
	"github.com/codai-ecosystem/codai/logging"
	"github.com/codai-ecosystem/codai/model"
)

// ModelAgentOptions configures a ModelAgent instance.
//
// Use functional options with NewModelAgent to override defaults.
type ModelAgentOptions struct {
	Instruction     Instruction
	Capabilities    []string
	Description     string
	EnableStreaming bool
	// NodeType, when set, is returned as outputs.nodeType so the reply is
	// recorded as that node type.
	NodeType core.NodeType
	// MaxContextNodes bounds how many context nodes are rendered into the prompt.
	MaxContextNodes int
	Logger          logging.Logger
}

// ModelAgent produces a reply for each task from a language model.
//
// The prompt carries the resolved instruction, a rendering of the graph
// context handed over by the router, and the user input. Streamed chunks
// advance the task's progress. Empty replies are permanent failures; provider
// errors keep the retry class assigned by the model adapter.
type ModelAgent struct {
	BaseAgent
	model model.Model
	opts  ModelAgentOptions
}

var _ core.CooperativeAgent = (*ModelAgent)(nil)

// NewModelAgent creates a ModelAgent backed by m.
func NewModelAgent(id string, m model.Model, optFns ...func(o *ModelAgentOptions)) *ModelAgent {
	opts := ModelAgentOptions{
		EnableStreaming: true,
		MaxContextNodes: 20,
		Logger:          logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	a := &ModelAgent{
		BaseAgent: NewBaseAgent(id, opts.Capabilities...),
		model:     m,
		opts:      opts,
	}
	if opts.Description != "" {
		a.SetDescription(opts.Description)
	}

	return a
}

// Model returns the underlying model.
func (a *ModelAgent) Model() model.Model { return a.model }

// Execute implements core.Agent.
func (a *ModelAgent) Execute(ctx context.Context, req *core.TaskRequest) (map[string]any, error) {
	request, err := a.buildRequest(req)
	if err != nil {
		return nil, core.Permanent(err)
	}

	req.ReportProgress(10)

	var streamed int
	resp, err := model.Collect(ctx, a.model, request, func(r model.Response) {
		streamed += len(r.Text)
		// Partial chunks move progress towards 90; completion sets 100.
		req.ReportProgress(min(10+streamed/8, 90))
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		a.opts.Logger.Warn("model generation failed", "agent", a.ID(), "task", req.TaskID, "error", err)
		return nil, fmt.Errorf("model %s: %w", a.model.Info().Name, err)
	}

	reply := strings.TrimSpace(resp.Text)
	if reply == "" {
		return nil, core.Permanent(errors.New("model returned an empty reply"))
	}

	outputs := map[string]any{
		core.OutputReply: reply,
		"model":          a.model.Info().Name,
	}
	if a.opts.NodeType != "" {
		outputs[core.OutputNodeType] = string(a.opts.NodeType)
	}
	if resp.Usage != nil {
		outputs["totalTokens"] = resp.Usage.TotalTokens
	}

	return outputs, nil
}

// SupportsCancellation implements core.CooperativeAgent.
func (a *ModelAgent) SupportsCancellation() bool { return true }

func (a *ModelAgent) buildRequest(req *core.TaskRequest) (model.Request, error) {
	input := strings.TrimSpace(req.UserInput())
	if input == "" {
		return model.Request{}, errors.New("task has no user input")
	}

	var instructions string
	if !a.opts.Instruction.IsZero() {
		text, err := a.opts.Instruction.Resolve(req)
		if err != nil {
			return model.Request{}, fmt.Errorf("resolve instruction: %w", err)
		}
		instructions = text
	}

	var msgs []model.Message
	if gd, ok := req.Context(); ok && len(gd.Nodes) > 0 {
		msgs = append(msgs, model.Message{Role: model.RoleSystem, Text: RenderContext(gd, a.opts.MaxContextNodes)})
	}
	msgs = append(msgs, model.Message{Role: model.RoleUser, Text: input})

	return model.Request{
		Instructions: instructions,
		Messages:     msgs,
		Stream:       a.opts.EnableStreaming,
	}, nil
}

// RenderContext formats up to limit nodes of gd as a plain text list followed
// by the relationships between them.
func RenderContext(gd core.GraphData, limit int) string {
	var b strings.Builder

	b.WriteString("Project knowledge:\n")

	shown := make(map[string]bool)
	for i, n := range gd.Nodes {
		if limit > 0 && i >= limit {
			fmt.Fprintf(&b, "- ... %d more\n", len(gd.Nodes)-limit)
			break
		}
		shown[n.ID] = true
		fmt.Fprintf(&b, "- [%s] %s\n", n.Type, n.Content)
	}

	content := make(map[string]string, len(gd.Nodes))
	for _, n := range gd.Nodes {
		content[n.ID] = n.Content
	}

	for _, e := range gd.Edges {
		if !shown[e.From] || !shown[e.To] {
			continue
		}
		fmt.Fprintf(&b, "- %q %s %q\n", content[e.From], e.Type, content[e.To])
	}

	return b.String()
}
