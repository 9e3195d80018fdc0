package counter

import (
	"sync"

	"github.com/cuemby/warden/pkg/types"
	"k8s.io/utils/clock"
)

// Registry holds one Counter per (resourceType, resourceID)
type Registry struct {
	mu       sync.Mutex
	clock    clock.PassiveClock
	counters map[string]*Counter
}

// NewRegistry creates an empty registry whose counters use clk
func NewRegistry(clk clock.PassiveClock) *Registry {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Registry{
		clock:    clk,
		counters: make(map[string]*Counter),
	}
}

// Get returns the counter of a resource, creating it on first use
func (r *Registry) Get(resourceType types.ResourceType, resourceID string) *Counter {
	key := types.Key(resourceType, resourceID)

	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.counters[key]
	if !ok {
		c = New(r.clock)
		r.counters[key] = c
	}
	return c
}

// Lookup returns the counter of a resource without creating it
func (r *Registry) Lookup(resourceType types.ResourceType, resourceID string) (*Counter, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.counters[types.Key(resourceType, resourceID)]
	return c, ok
}

// Purge drops the counter of a resource
func (r *Registry) Purge(resourceType types.ResourceType, resourceID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.counters, types.Key(resourceType, resourceID))
}

// Len returns the number of tracked resources
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.counters)
}
