package provider

import (
	"fmt"
	"sort"
	"sync"

	"github.com/cuemby/warden/pkg/types"
)

// Registry maps provider names to providers. It is filled at startup.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]HAProvider
}

// NewRegistry creates a registry holding the given providers
func NewRegistry(providers ...HAProvider) (*Registry, error) {
	r := &Registry{providers: make(map[string]HAProvider)}
	for _, p := range providers {
		if err := r.Register(p); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a provider; names must be unique
func (r *Registry) Register(p HAProvider) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.providers[p.Name()]; exists {
		return fmt.Errorf("provider %q already registered", p.Name())
	}
	r.providers[p.Name()] = p
	return nil
}

// Get returns a provider by name
func (r *Registry) Get(name string) (HAProvider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[name]
	return p, ok
}

// List returns the providers for a resource type sorted by name; an empty
// type lists all providers
func (r *Registry) List(resourceType types.ResourceType) []HAProvider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []HAProvider
	for _, p := range r.providers {
		if resourceType == "" || p.ResourceType() == resourceType {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Name() < out[j].Name()
	})
	return out
}
