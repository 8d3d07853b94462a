package agent

import (
	"github.com/codai-ecosystem/codai/core"
	"github.com/codai-ecosystem/codai/internal/util"
)

// Provider supplies dynamic instruction text at runtime.
// Implementations can derive instructions from the task request.
type Provider interface {
	Instruction(*core.TaskRequest) (string, error)
}

// Func is a functional adapter to allow ordinary functions to be used as Providers.
type Func func(*core.TaskRequest) (string, error)

// Instruction implements Provider.
func (f Func) Instruction(req *core.TaskRequest) (string, error) { return f(req) }

// Instruction represents either a static instruction template or a dynamic provider.
type Instruction struct {
	text     string
	provider Provider
}

// NewInstructionFromText creates an Instruction from a static template. The
// template is rendered with the fields returned by TemplateState.
func NewInstructionFromText(text string) Instruction { return Instruction{text: text} }

// NewInstructionFromProvider creates an Instruction from a dynamic provider.
func NewInstructionFromProvider(p Provider) Instruction { return Instruction{provider: p} }

// NewInstructionFromFunc creates an Instruction from a function.
func NewInstructionFromFunc(f func(*core.TaskRequest) (string, error)) Instruction {
	return Instruction{provider: Func(f)}
}

// IsStatic returns true if the instruction is backed by a static template.
func (i Instruction) IsStatic() bool { return i.provider == nil }

// IsZero reports whether no instruction was configured.
func (i Instruction) IsZero() bool { return i.provider == nil && i.text == "" }

// Resolve returns the instruction text, invoking the provider or rendering
// the template as needed.
func (i Instruction) Resolve(req *core.TaskRequest) (string, error) {
	if i.provider != nil {
		return i.provider.Instruction(req)
	}
	return util.RenderTemplate(i.text, TemplateState(req))
}

// TemplateState exposes the request fields available to instruction templates.
func TemplateState(req *core.TaskRequest) map[string]any {
	if req == nil {
		return map[string]any{}
	}

	state := map[string]any{
		"taskId":      req.TaskID,
		"title":       req.Title,
		"description": req.Description,
		"priority":    string(req.Priority),
		"attempt":     req.Attempt,
		"userInput":   req.UserInput(),
	}

	if gd, ok := req.Context(); ok {
		state["contextNodes"] = len(gd.Nodes)
		state["contextEdges"] = len(gd.Edges)
	}

	return state
}
