package llms

import (
	"fmt"

	"github.com/loomwork/agentcore/registry"
)

// Registry holds constructed provider instances keyed by name, e.g.
// "openai:gpt-4o" or "anthropic:claude-3-5-sonnet". The router resolves a
// ModelSpec to a provider name and looks it up here.
type Registry struct {
	*registry.BaseRegistry[Provider]
}

// NewRegistry returns an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{BaseRegistry: registry.NewBaseRegistry[Provider]()}
}

// RegisterProvider registers a constructed provider under name.
func (r *Registry) RegisterProvider(name string, p Provider) error {
	if name == "" {
		return fmt.Errorf("llms: provider name cannot be empty")
	}
	if p == nil {
		return fmt.Errorf("llms: provider cannot be nil")
	}
	return r.Register(name, p)
}

// Resolve looks up a provider, returning the router's fallback chain
// candidates in preference order until one is found registered.
func (r *Registry) Resolve(preferenceChain []string) (Provider, error) {
	for _, name := range preferenceChain {
		if p, ok := r.Get(name); ok {
			return p, nil
		}
	}
	return nil, fmt.Errorf("llms: no provider in chain %v is registered", preferenceChain)
}
