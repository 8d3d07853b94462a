package registry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codai-ecosystem/codai/core"
)

type stubAgent struct {
	id   string
	caps []string
}

func (a stubAgent) ID() string             { return a.id }
func (a stubAgent) Capabilities() []string { return a.caps }
func (a stubAgent) Execute(context.Context, *core.TaskRequest) (map[string]any, error) {
	return nil, nil
}

func TestRegistry_RegisterAndStatus(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(stubAgent{id: "planner", caps: []string{"plan"}}))
	require.NoError(t, r.Register(stubAgent{id: "builder", caps: []string{"code", "plan"}}, func(o *RegisterOptions) { o.Enabled = false }))

	assert.Error(t, r.Register(stubAgent{id: "planner"}))
	assert.Error(t, r.Register(stubAgent{}))

	st, ok := r.GetStatus("planner")
	require.True(t, ok)
	assert.True(t, st.IsEnabled)
	assert.True(t, st.IsHealthy)
	assert.Nil(t, st.LastActivity)
	assert.Equal(t, []string{"plan"}, st.Capabilities)

	_, ok = r.GetStatus("nobody")
	assert.False(t, ok)

	assert.Equal(t, []string{"planner", "builder"}, r.IDs())
	assert.Len(t, r.ListStatuses(), 2)
	assert.False(t, r.ListStatuses()["builder"].IsEnabled)
	assert.Equal(t, []string{"planner", "builder"}, r.FindByCapability("plan"))
	assert.Empty(t, r.FindByCapability("deploy"))
}

func TestRegistry_MarkActivityLeavesFlags(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	r := New(func(o *Options) { o.Clock = func() time.Time { return now } })
	require.NoError(t, r.Register(stubAgent{id: "tester"}, func(o *RegisterOptions) { o.Healthy = false }))

	r.MarkActivity("tester", true)
	r.MarkActivity("tester", false)
	r.MarkActivity("tester", true)
	r.MarkActivity("ghost", true)

	st, _ := r.GetStatus("tester")
	assert.Equal(t, 2, st.TotalTasksCompleted)
	require.NotNil(t, st.LastActivity)
	assert.Equal(t, now, *st.LastActivity)
	assert.False(t, st.IsHealthy)
	assert.True(t, st.IsEnabled)
}

func TestRegistry_CheckAvailable(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(stubAgent{id: "designer"}))

	assert.NoError(t, r.CheckAvailable("designer"))
	assert.ErrorIs(t, r.CheckAvailable("unknown"), core.ErrAgentUnavailable)

	require.NoError(t, r.SetEnabled("designer", false))
	err := r.CheckAvailable("designer")
	assert.ErrorIs(t, err, core.ErrAgentUnavailable)
	assert.Contains(t, err.Error(), "disabled")

	require.NoError(t, r.SetEnabled("designer", true))
	require.NoError(t, r.SetHealthy("designer", false))
	assert.Contains(t, r.CheckAvailable("designer").Error(), "unhealthy")

	assert.ErrorIs(t, r.SetHealthy("unknown", true), core.ErrAgentUnavailable)
}

func TestRegistry_OnChange(t *testing.T) {
	r := New()
	var changed []string
	r.OnChange(func(id string) { changed = append(changed, id) })

	require.NoError(t, r.Register(stubAgent{id: "deployer"}))
	require.NoError(t, r.SetEnabled("deployer", true)) // no change
	require.NoError(t, r.SetEnabled("deployer", false))
	require.NoError(t, r.SetHealthy("deployer", false))

	assert.Equal(t, []string{"deployer", "deployer", "deployer"}, changed)
}

func TestRegistry_StatusIsCopy(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(stubAgent{id: "planner", caps: []string{"plan"}}))
	r.MarkActivity("planner", true)

	st, _ := r.GetStatus("planner")
	st.Capabilities[0] = "mutated"
	*st.LastActivity = time.Time{}

	again, _ := r.GetStatus("planner")
	assert.Equal(t, []string{"plan"}, again.Capabilities)
	assert.False(t, again.LastActivity.IsZero())
}
