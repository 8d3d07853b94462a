package agent

import (
	"fmt"
	"slices"
	"sync"
)

// BaseAgent bundles identity, description and capability bookkeeping. Embed it
// in concrete agent implementations and supply an Execute method to satisfy
// the core.Agent interface. All exported methods are goroutine-safe.
type BaseAgent struct {
	id           string
	mu           sync.RWMutex
	description  string
	capabilities []string
}

// NewBaseAgent constructs a BaseAgent with a generated description
// (customizable via SetDescription).
func NewBaseAgent(id string, capabilities ...string) BaseAgent {
	return BaseAgent{
		id:           id,
		description:  fmt.Sprintf("Agent %s", id),
		capabilities: slices.Clone(capabilities),
	}
}

// ID returns the registry identifier of this agent.
func (b *BaseAgent) ID() string { return b.id }

// Description returns a detailed description of this agent's purpose.
func (b *BaseAgent) Description() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.description
}

// SetDescription updates the agent's description.
func (b *BaseAgent) SetDescription(desc string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.description = desc
}

// Capabilities returns a copy of the advertised capability tags.
func (b *BaseAgent) Capabilities() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return slices.Clone(b.capabilities)
}

// HasCapability reports whether the agent advertises capability c.
func (b *BaseAgent) HasCapability(c string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return slices.Contains(b.capabilities, c)
}
