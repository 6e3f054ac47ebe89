package agents

import (
	"fmt"
	"sync"
)

// Registry resolves an agent type id (e.g. "claude-code") to its Agent
// adapter. Generalized from this codebase's registry.Registry, which
// originally resolved to a single Docker-image config; here it resolves
// to a CLI binary adapter instead, since this orchestrator launches
// subprocesses directly rather than scheduling containers.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]Agent
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{agents: make(map[string]Agent)}
}

// LoadDefaults registers the built-in adapters: claude-code, codex,
// copilot, gemini, auggie.
func (r *Registry) LoadDefaults() {
	r.Register(NewClaudeCode())
	r.Register(NewCodex())
	r.Register(NewCopilot())
	r.Register(NewGemini())
	r.Register(NewAuggie())
}

// Register adds or replaces an adapter by its ID.
func (r *Registry) Register(a Agent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents[a.ID()] = a
}

// Get returns the adapter for id, or an error if unregistered.
func (r *Registry) Get(id string) (Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[id]
	if !ok {
		return nil, fmt.Errorf("agent type %q not registered", id)
	}
	return a, nil
}

// List returns every registered adapter's id.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.agents))
	for id := range r.agents {
		ids = append(ids, id)
	}
	return ids
}
