package agent

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/codai-ecosystem/codai/core"
)

// SequentialAgent runs child agents one after another as a single task.
//
// Each step receives the previous step's reply as its user input, and outputs
// accumulate so later steps see earlier keys. Progress is reported per step.
// Execution stops at the first error, keeping the child's retry class.
type SequentialAgent struct {
	BaseAgent
	children []core.Agent
}

var _ core.CooperativeAgent = (*SequentialAgent)(nil)

// NewSequentialAgent creates a pipeline agent. Its capabilities are the union
// of the children's capabilities.
func NewSequentialAgent(id string, children ...core.Agent) *SequentialAgent {
	var caps []string
	for _, child := range children {
		for _, c := range child.Capabilities() {
			if !slices.Contains(caps, c) {
				caps = append(caps, c)
			}
		}
	}

	return &SequentialAgent{
		BaseAgent: NewBaseAgent(id, caps...),
		children:  slices.Clone(children),
	}
}

// Execute implements core.Agent.
func (s *SequentialAgent) Execute(ctx context.Context, req *core.TaskRequest) (map[string]any, error) {
	outputs := map[string]any{}
	input := req.UserInput()

	for i, child := range s.children {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		inputs := maps.Clone(req.Inputs)
		if inputs == nil {
			inputs = map[string]any{}
		}
		inputs[core.InputUserInput] = input

		out, err := child.Execute(ctx, req.Derive(inputs))
		if err != nil {
			return nil, fmt.Errorf("sequential execution failed at agent %s: %w", child.ID(), err)
		}

		maps.Copy(outputs, out)
		if reply, ok := out[core.OutputReply].(string); ok && reply != "" {
			input = reply
		}

		req.ReportProgress((i + 1) * 100 / len(s.children))
	}

	return outputs, nil
}

// SupportsCancellation implements core.CooperativeAgent; the context is
// checked between steps.
func (s *SequentialAgent) SupportsCancellation() bool { return true }
