package codai

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codai-ecosystem/codai/config"
	"github.com/codai-ecosystem/codai/core"
	"github.com/codai-ecosystem/codai/internal/testutil"
	"github.com/codai-ecosystem/codai/router"
	"github.com/codai-ecosystem/codai/storage"
)

func newCodai(t *testing.T, optFns ...func(o *Options)) *Codai {
	t.Helper()

	c, err := New(context.Background(), optFns...)
	require.NoError(t, err)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = c.Close(ctx)
	})

	return c
}

func TestNew_DefaultRoster(t *testing.T) {
	c := newCodai(t)

	statuses := c.ListAgentStatuses()
	assert.Len(t, statuses, 5)
	for _, id := range []string{"planner", "builder", "designer", "tester", "deployer"} {
		st, ok := statuses[id]
		require.True(t, ok, id)
		assert.True(t, st.Available(), id)
	}
	assert.Equal(t, "planner", c.Router().DefaultAgent())
}

func TestSubmitMessage_EndToEnd(t *testing.T) {
	c := newCodai(t)

	h, err := c.SubmitMessage(context.Background(), "Build a todo app")
	require.NoError(t, err)

	task := testutil.WaitTask(t, h)
	require.Equal(t, core.TaskCompleted, task.Status)
	assert.Equal(t, "planner", task.AgentID)
	assert.Contains(t, task.Outputs[core.OutputReply], "Build a todo app")

	intent, ok := c.Graph().GetNode(task.IntentID)
	require.True(t, ok)
	assert.Equal(t, core.NodeIntent, intent.Type)

	result, ok := c.Graph().GetNode(task.ResultNodeID)
	require.True(t, ok)
	assert.Equal(t, core.NodeFeature, result.Type)

	edges := c.Graph().EdgesOf(task.ResultNodeID)
	require.Len(t, edges, 1)
	assert.Equal(t, core.EdgeImplements, edges[0].Type)
	assert.Equal(t, task.IntentID, edges[0].To)

	history := c.ExportHistory(router.DefaultConversationID)
	require.Len(t, history, 2)
	assert.Equal(t, "user", history[0].Role)
	assert.Equal(t, "Build a todo app", history[0].Content)
	assert.Equal(t, "assistant", history[1].Role)
	assert.Equal(t, "planner", history[1].Agent)

	stats, ok := c.GetTask(task.ID)
	require.True(t, ok)
	assert.Equal(t, core.TaskCompleted, stats.Status)
	assert.Len(t, c.ListTasks(), 1)
}

func TestSubmitMessage_DisabledAgent(t *testing.T) {
	cfg := config.Default()
	off := false
	cfg.Agents = map[string]config.AgentConfig{"designer": {Enabled: &off}}

	c := newCodai(t, func(o *Options) { o.Config = cfg })

	_, err := c.SubmitMessage(context.Background(), "Style the header", func(o *router.MessageOptions) {
		o.AgentID = "designer"
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrAgentUnavailable)
	assert.Zero(t, c.Graph().Stats().Nodes)

	require.NoError(t, c.SetAgentEnabled("designer", true))
	h, err := c.SubmitMessage(context.Background(), "Style the header", func(o *router.MessageOptions) {
		o.AgentID = "designer"
	})
	require.NoError(t, err)
	assert.Equal(t, core.TaskCompleted, testutil.WaitTask(t, h).Status)
}

func TestApplyConfig_UnknownAgent(t *testing.T) {
	c := newCodai(t)

	cfg := config.Default()
	off := false
	cfg.Agents = map[string]config.AgentConfig{"ghost": {Enabled: &off}, "tester": {Healthy: &off}}

	err := c.ApplyConfig(cfg)
	require.Error(t, err)

	st := c.ListAgentStatuses()["tester"]
	assert.False(t, st.IsHealthy)
}

func TestCustomAgents(t *testing.T) {
	c := newCodai(t, func(o *Options) {
		o.Agents = []core.Agent{testutil.NewEchoAgent("planner", "planning")}
	})

	h, err := c.SubmitTask(context.Background(), core.Task{AgentID: "planner", Title: "Plan", Description: "Plan the release"})
	require.NoError(t, err)

	task := testutil.WaitTask(t, h)
	assert.Equal(t, core.TaskCompleted, task.Status)
	assert.Equal(t, "planner: Plan the release", task.Outputs[core.OutputReply])
}

func TestPipelines_RunStepsInOrder(t *testing.T) {
	cfg := config.Default()
	cfg.Pipelines = map[string][]string{"ship": {"builder", "tester"}}

	c := newCodai(t, func(o *Options) {
		o.Config = cfg
		o.Agents = []core.Agent{
			testutil.NewEchoAgent("planner", "planning"),
			testutil.NewEchoAgent("builder", "implementation"),
			testutil.NewEchoAgent("tester", "testing"),
		}
	})

	st, ok := c.ListAgentStatuses()["ship"]
	require.True(t, ok)
	assert.ElementsMatch(t, []string{"implementation", "testing"}, st.Capabilities)

	h, err := c.SubmitMessage(context.Background(), "Add login", func(o *router.MessageOptions) { o.AgentID = "ship" })
	require.NoError(t, err)

	task := testutil.WaitTask(t, h)
	require.Equal(t, core.TaskCompleted, task.Status)
	assert.Equal(t, "tester: builder: Add login", task.Outputs[core.OutputReply])

	result, ok := c.Graph().GetNode(task.ResultNodeID)
	require.True(t, ok)
	assert.Contains(t, result.Connections, task.IntentID)
}

func TestPipelines_UnknownStep(t *testing.T) {
	cfg := config.Default()
	cfg.Pipelines = map[string][]string{"ship": {"builder", "ghost"}}

	_, err := New(context.Background(), func(o *Options) { o.Config = cfg })
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrAgentUnavailable)
	assert.Contains(t, err.Error(), "pipeline ship")
}

func TestSubmitTask_FailureRecorded(t *testing.T) {
	c := newCodai(t, func(o *Options) {
		o.Agents = []core.Agent{testutil.NewFailingAgent("planner", core.Permanent(errors.New("boom")))}
	})

	h, err := c.SubmitTask(context.Background(), core.Task{AgentID: "planner", Title: "Plan"})
	require.NoError(t, err)

	task := testutil.WaitTask(t, h)
	assert.Equal(t, core.TaskFailed, task.Status)
	assert.Equal(t, core.KindPermanent, task.ErrorKind)
	require.NotEmpty(t, task.ResultNodeID)

	n, ok := c.Graph().GetNode(task.ResultNodeID)
	require.True(t, ok)
	assert.Equal(t, core.NodeDecision, n.Type)
}

func TestExportImportGraph(t *testing.T) {
	src := newCodai(t)
	h, err := src.SubmitMessage(context.Background(), "Add login")
	require.NoError(t, err)
	testutil.WaitTask(t, h)

	data, err := src.ExportGraph()
	require.NoError(t, err)

	dst := newCodai(t)
	require.NoError(t, dst.ImportGraph(context.Background(), data))
	assert.Equal(t, src.Graph().Stats().Nodes, dst.Graph().Stats().Nodes)
	assert.Equal(t, src.Graph().Stats().Edges, dst.Graph().Stats().Edges)

	require.Error(t, dst.ImportGraph(context.Background(), []byte("not json")))
}

func TestNew_PersistsAcrossRestart(t *testing.T) {
	cfg := config.Default()
	cfg.Storage = config.StorageConfig{Driver: storage.DriverFile, Path: filepath.Join(t.TempDir(), "graph.json")}

	c, err := New(context.Background(), func(o *Options) { o.Config = cfg })
	require.NoError(t, err)

	h, err := c.SubmitMessage(context.Background(), "Build a blog")
	require.NoError(t, err)
	task := testutil.WaitTask(t, h)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, c.Close(ctx))

	reopened := newCodai(t, func(o *Options) { o.Config = cfg })
	_, ok := reopened.Graph().GetNode(task.IntentID)
	assert.True(t, ok)
	_, ok = reopened.Graph().GetNode(task.ResultNodeID)
	assert.True(t, ok)
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.Driver = "file"

	_, err := New(context.Background(), func(o *Options) { o.Config = cfg })
	require.Error(t, err)
}

func TestNewModel(t *testing.T) {
	m, err := NewModel(config.ModelConfig{Provider: "mock"})
	require.NoError(t, err)
	assert.Equal(t, "mock", m.Info().Provider)

	m, err = NewModel(config.ModelConfig{Provider: "anthropic", APIKey: "test"})
	require.NoError(t, err)
	assert.Equal(t, "anthropic", m.Info().Provider)

	m, err = NewModel(config.ModelConfig{Provider: "openai", Name: "gpt-4o", APIKey: "test"})
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", m.Info().Name)

	_, err = NewModel(config.ModelConfig{Provider: "other"})
	require.Error(t, err)
}

func TestSchedulerConfig(t *testing.T) {
	sc := SchedulerConfig(config.Default().Scheduler)
	assert.Equal(t, 3, sc.MaxRetries)
	assert.Equal(t, 500*time.Millisecond, sc.BaseBackoff)
	assert.Equal(t, 5*time.Minute, sc.DefaultTimeout)
}

func TestClose_Idempotent(t *testing.T) {
	c, err := New(context.Background())
	require.NoError(t, err)

	require.NoError(t, c.Close(context.Background()))
	require.NoError(t, c.Close(context.Background()))

	_, err = c.SubmitTask(context.Background(), core.Task{AgentID: "planner", Title: "late"})
	require.Error(t, err)
}
