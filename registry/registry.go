// Package registry tracks the agents known to the engine together with their
// operator controlled health and enablement flags and their activity counters.
package registry

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/codai-ecosystem/codai/core"
	"github.com/codai-ecosystem/codai/logging"
)

// Options configures a Registry.
type Options struct {
	Logger logging.Logger
	Clock  func() time.Time
}

// RegisterOptions configures the initial flags of a registered agent.
type RegisterOptions struct {
	Enabled bool
	Healthy bool
}

type entry struct {
	agent  core.Agent
	status core.AgentStatus
}

// Registry is safe for concurrent use. Agents are registered once and never
// removed.
type Registry struct {
	mu        sync.RWMutex
	agents    map[string]*entry
	order     []string
	listeners []func(id string)

	logger logging.Logger
	clock  func() time.Time
}

// New creates an empty registry.
func New(optFns ...func(o *Options)) *Registry {
	opts := Options{
		Logger: logging.NoOpLogger{},
		Clock:  core.Now,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Registry{
		agents: make(map[string]*entry),
		logger: logging.Scoped(opts.Logger, "registry"),
		clock:  opts.Clock,
	}
}

// Register adds an agent. It starts enabled and healthy unless options say otherwise.
func (r *Registry) Register(a core.Agent, optFns ...func(o *RegisterOptions)) error {
	if a == nil || a.ID() == "" {
		return fmt.Errorf("agent must have a non-empty id")
	}

	opts := RegisterOptions{Enabled: true, Healthy: true}
	for _, fn := range optFns {
		fn(&opts)
	}

	r.mu.Lock()

	if _, exists := r.agents[a.ID()]; exists {
		r.mu.Unlock()
		return fmt.Errorf("agent %s already registered", a.ID())
	}

	r.agents[a.ID()] = &entry{
		agent: a,
		status: core.AgentStatus{
			IsHealthy:    opts.Healthy,
			IsEnabled:    opts.Enabled,
			Capabilities: slices.Clone(a.Capabilities()),
		},
	}
	r.order = append(r.order, a.ID())
	r.mu.Unlock()

	r.logger.Info("Agent registered", "agent_id", a.ID(), "enabled", opts.Enabled, "healthy", opts.Healthy)
	r.notify(a.ID())

	return nil
}

// Agent returns the registered agent with the given id.
func (r *Registry) Agent(id string) (core.Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.agents[id]
	if !ok {
		return nil, false
	}
	return e.agent, true
}

// GetStatus returns a copy of the agent status.
func (r *Registry) GetStatus(id string) (core.AgentStatus, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.agents[id]
	if !ok {
		return core.AgentStatus{}, false
	}
	return e.status.Clone(), true
}

// ListStatuses returns every agent status keyed by id.
func (r *Registry) ListStatuses() map[string]core.AgentStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]core.AgentStatus, len(r.agents))
	for id, e := range r.agents {
		out[id] = e.status.Clone()
	}
	return out
}

// IDs returns agent ids in registration order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return slices.Clone(r.order)
}

// MarkActivity records a dispatch outcome. It never changes health or enablement.
func (r *Registry) MarkActivity(id string, success bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.agents[id]
	if !ok {
		return
	}

	now := r.clock()
	e.status.LastActivity = &now
	if success {
		e.status.TotalTasksCompleted++
	}
}

// SetEnabled sets the operator controlled enabled flag.
func (r *Registry) SetEnabled(id string, enabled bool) error {
	return r.setFlag(id, func(s *core.AgentStatus) bool {
		changed := s.IsEnabled != enabled
		s.IsEnabled = enabled
		return changed
	})
}

// SetHealthy sets the operator controlled healthy flag.
func (r *Registry) SetHealthy(id string, healthy bool) error {
	return r.setFlag(id, func(s *core.AgentStatus) bool {
		changed := s.IsHealthy != healthy
		s.IsHealthy = healthy
		return changed
	})
}

func (r *Registry) setFlag(id string, apply func(s *core.AgentStatus) bool) error {
	r.mu.Lock()

	e, ok := r.agents[id]
	if !ok {
		r.mu.Unlock()
		return &core.AgentUnavailableError{AgentID: id, Reason: "not registered"}
	}

	changed := apply(&e.status)
	status := e.status
	r.mu.Unlock()

	if changed {
		r.logger.Info("Agent flags changed", "agent_id", id, "enabled", status.IsEnabled, "healthy", status.IsHealthy)
		r.notify(id)
	}

	return nil
}

// CheckAvailable returns an AgentUnavailableError unless the agent is
// registered, enabled and healthy.
func (r *Registry) CheckAvailable(id string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.agents[id]
	switch {
	case !ok:
		return &core.AgentUnavailableError{AgentID: id, Reason: "not registered"}
	case !e.status.IsEnabled:
		return &core.AgentUnavailableError{AgentID: id, Reason: "disabled"}
	case !e.status.IsHealthy:
		return &core.AgentUnavailableError{AgentID: id, Reason: "unhealthy"}
	}
	return nil
}

// FindByCapability returns the ids of agents advertising capability, in
// registration order.
func (r *Registry) FindByCapability(capability string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []string
	for _, id := range r.order {
		if slices.Contains(r.agents[id].status.Capabilities, capability) {
			out = append(out, id)
		}
	}
	return out
}

// OnChange registers fn to be called after an agent is registered or one of
// its flags changes. fn must not block.
func (r *Registry) OnChange(fn func(id string)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.listeners = append(r.listeners, fn)
}

func (r *Registry) notify(id string) {
	r.mu.RLock()
	listeners := slices.Clone(r.listeners)
	r.mu.RUnlock()

	for _, fn := range listeners {
		fn(id)
	}
}
