// Package codai provides a high-level façade over the knowledge graph, the
// agent registry, the task scheduler and the conversation router. Most
// applications interact with this package by:
//  1. Creating a Codai via New() (optionally overriding storage, model or agents)
//  2. Sending conversational requests (SubmitMessage) or direct tasks (SubmitTask)
//  3. Following task and graph events (SubscribeTasks, SubscribeGraph) and
//     querying the graph
//
// All defaults are safe for local development and testing: in-memory storage,
// a mock model and the default planner/builder/designer/tester/deployer roster.
package codai

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	sdkanthropic "github.com/anthropics/anthropic-sdk-go"

	"github.com/codai-ecosystem/codai/agent"
	"github.com/codai-ecosystem/codai/config"
	"github.com/codai-ecosystem/codai/conversation"
	"github.com/codai-ecosystem/codai/core"
	"github.com/codai-ecosystem/codai/graph"
	"github.com/codai-ecosystem/codai/logging"
	"github.com/codai-ecosystem/codai/mcpserver"
	"github.com/codai-ecosystem/codai/model"
	"github.com/codai-ecosystem/codai/model/anthropic"
	"github.com/codai-ecosystem/codai/model/openai"
	"github.com/codai-ecosystem/codai/registry"
	"github.com/codai-ecosystem/codai/router"
	"github.com/codai-ecosystem/codai/scheduler"
	"github.com/codai-ecosystem/codai/storage"
	"github.com/codai-ecosystem/codai/stream"
)

// Options configures the Codai instance.
type Options struct {
	// Config supplies scheduling, graph, storage and model settings
	// (defaults to config.Default()).
	Config *config.Config

	// Persister overrides the storage selected by Config.Storage.
	Persister core.SnapshotStore

	// Model overrides the model selected by Config.Model. It backs the
	// default roster and is ignored when Agents is set.
	Model model.Model

	// Agents replaces the default roster. Config.Pipelines are built on top
	// of these agents.
	Agents []core.Agent

	// Conversations overrides the in-memory conversation store. Both routed
	// messages and direct tasks with a conversation id are threaded into it.
	Conversations conversation.Store

	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// Codai is the high-level façade aggregating the engine components.
type Codai struct {
	cfg    *config.Config
	logger logging.Logger

	graph  *graph.Store
	reg    *registry.Registry
	sched  *scheduler.Scheduler
	router *router.Router
	conv   conversation.Store

	closer    func() error
	closeOnce sync.Once
	closeErr  error
}

// New creates a Codai instance. The graph is loaded from the configured
// storage before any agent is registered.
func New(ctx context.Context, optFns ...func(o *Options)) (*Codai, error) {
	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Config == nil {
		opts.Config = config.Default()
	}
	if err := opts.Config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	if opts.Conversations == nil {
		opts.Conversations = conversation.NewInMemoryStore()
	}

	cfg := opts.Config
	c := &Codai{cfg: cfg, logger: opts.Logger, conv: opts.Conversations, closer: func() error { return nil }}

	persister := opts.Persister
	if persister == nil {
		st, err := storage.Open(ctx, cfg.Storage.Driver, cfg.Storage.Path)
		if err != nil {
			return nil, err
		}
		persister = st
		c.closer = st.Close
	}

	g, err := graph.Load(ctx, persister, func(o *graph.Options) {
		o.Logger = opts.Logger
		o.EventBufferSize = cfg.Graph.EventBuffer
	})
	if err != nil {
		_ = c.closer()
		return nil, err
	}
	c.graph = g

	agents := opts.Agents
	if len(agents) == 0 {
		m := opts.Model
		if m == nil {
			m, err = NewModel(cfg.Model)
			if err != nil {
				_ = c.closer()
				return nil, err
			}
		}
		agents = agent.DefaultRoster(m, opts.Logger)
	}

	c.reg = registry.New(func(o *registry.Options) { o.Logger = opts.Logger })
	for _, a := range agents {
		if err := c.reg.Register(a); err != nil {
			_ = c.closer()
			return nil, err
		}
	}
	if err := registerPipelines(c.reg, cfg.Pipelines); err != nil {
		_ = c.closer()
		return nil, err
	}
	if err := c.ApplyConfig(cfg); err != nil {
		_ = c.closer()
		return nil, err
	}

	c.sched = scheduler.New(c.reg, func(o *scheduler.Options) {
		o.Config = SchedulerConfig(cfg.Scheduler)
		o.Recorder = router.NewRecorder(g, c.conv, func(o *router.RecorderOptions) { o.Logger = opts.Logger })
		o.Logger = opts.Logger
	})

	c.router = router.New(g, c.sched, c.reg, func(o *router.Options) {
		o.DefaultAgent = cfg.DefaultAgent
		o.ContextDepth = cfg.Graph.ContextDepth
		o.Conversations = c.conv
		o.Logger = opts.Logger
	})

	opts.Logger.Info("codai started", "agents", c.reg.IDs(), "storage", cfg.Storage.Driver, "nodes", g.Stats().Nodes)

	return c, nil
}

// registerPipelines registers a sequential agent per pipeline. Steps name
// agents registered before it, which includes pipelines earlier in id order.
func registerPipelines(reg *registry.Registry, pipelines map[string][]string) error {
	for _, id := range slices.Sorted(maps.Keys(pipelines)) {
		steps := make([]core.Agent, 0, len(pipelines[id]))
		for _, step := range pipelines[id] {
			a, ok := reg.Agent(step)
			if !ok {
				return fmt.Errorf("pipeline %s: %w", id, &core.AgentUnavailableError{AgentID: step, Reason: "not registered"})
			}
			steps = append(steps, a)
		}
		if err := reg.Register(agent.NewSequentialAgent(id, steps...)); err != nil {
			return fmt.Errorf("pipeline %s: %w", id, err)
		}
	}
	return nil
}

// NewModel builds the model selected by cfg.
func NewModel(cfg config.ModelConfig) (model.Model, error) {
	switch cfg.Provider {
	case "", "mock":
		name := cfg.Name
		if name == "" {
			name = "mock"
		}
		return model.NewMockModel(name, "mock"), nil
	case "anthropic":
		return anthropic.NewModel(func(o *anthropic.Options) {
			o.APIKey = cfg.APIKey
			if cfg.Name != "" {
				o.Model = sdkanthropic.Model(cfg.Name)
			}
			if cfg.Temperature > 0 {
				o.Temperature = cfg.Temperature
			}
		}), nil
	case "openai":
		return openai.NewModel(func(o *openai.Options) {
			o.APIKey = cfg.APIKey
			if cfg.Name != "" {
				o.Model = cfg.Name
			}
			if cfg.Temperature > 0 {
				o.Temperature = cfg.Temperature
			}
		}), nil
	default:
		return nil, fmt.Errorf("unknown model provider %q", cfg.Provider)
	}
}

// SchedulerConfig converts the file configuration into scheduler settings.
func SchedulerConfig(c config.SchedulerConfig) scheduler.Config {
	return scheduler.Config{
		MaxRetries:      c.MaxRetries,
		BaseBackoff:     c.BaseBackoff.Std(),
		MaxBackoff:      c.MaxBackoff.Std(),
		DefaultTimeout:  c.DefaultTimeout.Std(),
		EventBufferSize: c.EventBuffer,
	}
}

// ApplyConfig applies the operator controlled agent flags of cfg to the
// registry. Entries for unknown agents are reported as errors after the
// known ones are applied.
func (c *Codai) ApplyConfig(cfg *config.Config) error {
	var errs []error

	for id, ac := range cfg.Agents {
		if ac.Enabled != nil {
			if err := c.reg.SetEnabled(id, *ac.Enabled); err != nil {
				errs = append(errs, err)
				continue
			}
		}
		if ac.Healthy != nil {
			if err := c.reg.SetHealthy(id, *ac.Healthy); err != nil {
				errs = append(errs, err)
			}
		}
	}

	return errors.Join(errs...)
}

// WatchConfig re-applies agent flags whenever the file at path changes.
func (c *Codai) WatchConfig(ctx context.Context, path string) error {
	return config.Watch(ctx, path, func(cfg *config.Config, err error) {
		if err != nil {
			c.logger.Warn("config reload failed", "path", path, "error", err)
			return
		}
		if err := c.ApplyConfig(cfg); err != nil {
			c.logger.Warn("config partially applied", "path", path, "error", err)
			return
		}
		c.logger.Info("config reloaded", "path", path)
	})
}

// SubmitMessage routes a conversational request; see router.Router.HandleMessage.
func (c *Codai) SubmitMessage(ctx context.Context, text string, optFns ...func(o *router.MessageOptions)) (*scheduler.Handle, error) {
	return c.router.HandleMessage(ctx, text, optFns...)
}

// SubmitTask submits a task directly to its agent's queue.
func (c *Codai) SubmitTask(ctx context.Context, task core.Task) (*scheduler.Handle, error) {
	return c.sched.Submit(ctx, task)
}

// CancelTask requests cancellation of a task.
func (c *Codai) CancelTask(id string) (bool, error) { return c.sched.Cancel(id) }

// GetTask returns a copy of the task.
func (c *Codai) GetTask(id string) (core.Task, bool) { return c.sched.Get(id) }

// ListTasks returns every task in submission order.
func (c *Codai) ListTasks() []core.Task { return c.sched.List() }

// WaitTask blocks until the task is terminal or ctx ends.
func (c *Codai) WaitTask(ctx context.Context, id string) (core.Task, error) { return c.sched.Wait(ctx, id) }

// ListAgentStatuses returns a copy of every agent status.
func (c *Codai) ListAgentStatuses() map[string]core.AgentStatus { return c.reg.ListStatuses() }

// SetAgentEnabled toggles an agent's enablement.
func (c *Codai) SetAgentEnabled(id string, enabled bool) error { return c.reg.SetEnabled(id, enabled) }

// SetAgentHealthy toggles an agent's health flag.
func (c *Codai) SetAgentHealthy(id string, healthy bool) error { return c.reg.SetHealthy(id, healthy) }

// ExportGraph encodes the graph in the snapshot wire format.
func (c *Codai) ExportGraph() ([]byte, error) { return core.EncodeSnapshot(c.graph.Export()) }

// ImportGraph replaces the graph with the encoded snapshot.
func (c *Codai) ImportGraph(ctx context.Context, data []byte) error {
	snap, err := core.DecodeSnapshot(data)
	if err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}
	return c.graph.Import(ctx, *snap)
}

// ExportHistory returns the conversation turns recorded in the graph.
func (c *Codai) ExportHistory(conversationID string) []router.HistoryEntry {
	return c.router.ExportHistory(conversationID)
}

// StartGuidedFlow starts the guided project flow for a conversation.
func (c *Codai) StartGuidedFlow(conversationID string) (*router.Flow, []router.Choice) {
	return c.router.StartGuidedFlow(conversationID)
}

// SubscribeTasks streams task lifecycle events.
func (c *Codai) SubscribeTasks(buffer int) *stream.Subscription[core.TaskEvent] {
	return c.sched.Subscribe(buffer)
}

// SubscribeGraph streams graph change events.
func (c *Codai) SubscribeGraph(buffer int) *stream.Subscription[core.GraphEvent] {
	return c.graph.Subscribe(buffer)
}

// Graph returns the knowledge graph.
func (c *Codai) Graph() *graph.Store { return c.graph }

// Registry returns the agent registry.
func (c *Codai) Registry() *registry.Registry { return c.reg }

// Scheduler returns the task scheduler.
func (c *Codai) Scheduler() *scheduler.Scheduler { return c.sched }

// Router returns the conversation router.
func (c *Codai) Router() *router.Router { return c.router }

// Conversations returns the conversation store.
func (c *Codai) Conversations() conversation.Store { return c.conv }

// Config returns the configuration the instance was built with.
func (c *Codai) Config() *config.Config { return c.cfg }

// MCPDeps returns the components served by the MCP tools.
func (c *Codai) MCPDeps() mcpserver.Deps {
	return mcpserver.Deps{Graph: c.graph, Scheduler: c.sched, Registry: c.reg, Router: c.router}
}

// Close stops the scheduler, closes event streams and releases storage.
// In-flight tasks still running when ctx ends are abandoned.
func (c *Codai) Close(ctx context.Context) error {
	c.closeOnce.Do(func() {
		err := c.sched.Shutdown(ctx)
		c.graph.Close()
		c.closeErr = errors.Join(err, c.closer())
	})
	return c.closeErr
}
