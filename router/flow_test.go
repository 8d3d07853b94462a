package router

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codai-ecosystem/codai/core"
	"github.com/codai-ecosystem/codai/internal/testutil"
)

func TestGuidedFlow_HappyPath(t *testing.T) {
	f := newFixture(t, roster()...)

	flow, choices := f.r.StartGuidedFlow("c1")
	require.Len(t, choices, len(ProjectChoices))
	assert.Equal(t, FlowAwaitingSelection, flow.State())

	choice, err := flow.Select("web-app")
	require.NoError(t, err)
	assert.NotEmpty(t, choice.Prompt)
	assert.Equal(t, FlowAwaitingDetail, flow.State())

	h, err := flow.ProvideDetail(context.Background(), "a todo list with tags")
	require.NoError(t, err)
	assert.Equal(t, FlowDone, flow.State())
	assert.Equal(t, h, flow.Handle())

	task := testutil.WaitTask(t, h)
	assert.Equal(t, "planner", task.AgentID)
	assert.Equal(t, core.TaskCompleted, task.Status)
	assert.Equal(t, "Create a Web application: a todo list with tags", task.UserInput())
}

func TestGuidedFlow_InvalidTransitions(t *testing.T) {
	f := newFixture(t, roster()...)
	flow, _ := f.r.StartGuidedFlow("")

	_, err := flow.ProvideDetail(context.Background(), "too early")
	assert.ErrorIs(t, err, ErrInvalidFlowTransition)

	_, err = flow.Select("spaceship")
	assert.ErrorIs(t, err, ErrUnknownChoice)
	assert.Equal(t, FlowAwaitingSelection, flow.State())

	_, err = flow.Select("api")
	require.NoError(t, err)

	_, err = flow.Select("cli")
	assert.ErrorIs(t, err, ErrInvalidFlowTransition)

	h, err := flow.ProvideDetail(context.Background(), "todo api")
	require.NoError(t, err)
	testutil.WaitTask(t, h)

	_, err = flow.ProvideDetail(context.Background(), "again")
	assert.ErrorIs(t, err, ErrInvalidFlowTransition)
}

func TestGuidedFlow_UnavailablePlannerReturnsToDetail(t *testing.T) {
	f := newFixture(t, roster()...)
	require.NoError(t, f.reg.SetHealthy("planner", false))

	flow, _ := f.r.StartGuidedFlow("c")
	_, err := flow.Select("cli")
	require.NoError(t, err)

	_, err = flow.ProvideDetail(context.Background(), "a tool")
	assert.ErrorIs(t, err, core.ErrAgentUnavailable)
	assert.Equal(t, FlowAwaitingDetail, flow.State())
}
