package router

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/codai-ecosystem/codai/scheduler"
)

// FlowState is a state of the guided project flow.
type FlowState string

const (
	FlowAwaitingSelection FlowState = "awaiting-selection"
	FlowAwaitingDetail    FlowState = "awaiting-detail"
	FlowDelegating        FlowState = "delegating"
	FlowDone              FlowState = "done"
)

// ErrInvalidFlowTransition is returned when a flow step is called in the
// wrong state.
var ErrInvalidFlowTransition = errors.New("invalid flow transition")

// ErrUnknownChoice is returned by Select for ids outside the offered choices.
var ErrUnknownChoice = errors.New("unknown choice")

// Choice is a project kind offered by the guided flow.
type Choice struct {
	ID     string `json:"id"`
	Label  string `json:"label"`
	Prompt string `json:"prompt"`
}

// ProjectChoices are the project kinds offered by StartGuidedFlow.
var ProjectChoices = []Choice{
	{ID: "web-app", Label: "Web application", Prompt: "Describe the pages and features of your web application."},
	{ID: "mobile-app", Label: "Mobile application", Prompt: "Describe the screens and features of your mobile application."},
	{ID: "api", Label: "Backend API", Prompt: "Describe the resources and operations of your API."},
	{ID: "cli", Label: "Command line tool", Prompt: "Describe the commands your tool should offer."},
}

// Flow walks a user from choosing a project kind to a planner task:
// awaiting-selection -> awaiting-detail -> delegating -> done.
type Flow struct {
	r              *Router
	conversationID string

	mu     sync.Mutex
	state  FlowState
	choice Choice
	handle *scheduler.Handle
}

// StartGuidedFlow starts a flow for the conversation and returns the choices
// to present.
func (r *Router) StartGuidedFlow(conversationID string) (*Flow, []Choice) {
	if conversationID == "" {
		conversationID = DefaultConversationID
	}

	f := &Flow{r: r, conversationID: conversationID, state: FlowAwaitingSelection}

	choices := make([]Choice, len(ProjectChoices))
	copy(choices, ProjectChoices)

	return f, choices
}

// State returns the current state.
func (f *Flow) State() FlowState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Handle returns the planner task handle once the flow is done.
func (f *Flow) Handle() *scheduler.Handle {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.handle
}

// Select records the chosen project kind and returns it; its Prompt asks for
// the project description.
func (f *Flow) Select(choiceID string) (Choice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state != FlowAwaitingSelection {
		return Choice{}, fmt.Errorf("%w: select in state %s", ErrInvalidFlowTransition, f.state)
	}

	for _, c := range ProjectChoices {
		if c.ID == choiceID {
			f.choice = c
			f.state = FlowAwaitingDetail
			return c, nil
		}
	}

	return Choice{}, fmt.Errorf("%w: %s", ErrUnknownChoice, choiceID)
}

// ProvideDetail delegates the project description to the planner. On
// failure the flow returns to awaiting-detail so the detail can be resent.
func (f *Flow) ProvideDetail(ctx context.Context, text string) (*scheduler.Handle, error) {
	f.mu.Lock()
	if f.state != FlowAwaitingDetail {
		state := f.state
		f.mu.Unlock()
		return nil, fmt.Errorf("%w: detail in state %s", ErrInvalidFlowTransition, state)
	}
	if text == "" {
		f.mu.Unlock()
		return nil, ErrEmptyMessage
	}
	f.state = FlowDelegating
	choice := f.choice
	f.mu.Unlock()

	h, err := f.r.HandleMessage(ctx, fmt.Sprintf("Create a %s: %s", choice.Label, text), func(o *MessageOptions) {
		o.AgentID = "planner"
		o.ConversationID = f.conversationID
	})

	f.mu.Lock()
	defer f.mu.Unlock()

	if err != nil {
		f.state = FlowAwaitingDetail
		return nil, err
	}

	f.state = FlowDone
	f.handle = h

	return h, nil
}
