package provider

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/quillworks/relay"
)

// Registry maps provider tags to their adapters. It is safe for concurrent
// use; the dispatcher resolves adapters from worker goroutines.
type Registry struct {
	mu       sync.RWMutex
	adapters map[relay.Provider]Adapter
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[relay.Provider]Adapter)}
}

// NewRegistryFromSettings builds adapters for every settings entry and
// registers them. On any construction failure the already-built adapters
// are closed and the error is returned.
func NewRegistryFromSettings(settings []Settings) (*Registry, error) {
	reg := NewRegistry()
	for _, s := range settings {
		adapter, err := NewAdapter(s)
		if err != nil {
			_ = reg.Close(context.Background())
			return nil, fmt.Errorf("provider: building adapter %q: %w", s.Tag, err)
		}
		reg.Register(adapter)
	}
	return reg, nil
}

// Register adds an adapter, replacing any previous adapter for the same tag.
func (r *Registry) Register(adapter Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[adapter.Name()] = adapter
}

// Resolve returns the adapter for a provider tag.
func (r *Registry) Resolve(tag relay.Provider) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	adapter, ok := r.adapters[tag]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, tag)
	}
	return adapter, nil
}

// Tags returns registered provider tags in deterministic order.
func (r *Registry) Tags() []relay.Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tags := make([]relay.Provider, 0, len(r.adapters))
	for tag := range r.adapters {
		tags = append(tags, tag)
	}
	slices.Sort(tags)
	return tags
}

// Close closes every registered adapter, returning the first error.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var firstErr error
	for _, adapter := range r.adapters {
		if err := adapter.Close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	r.adapters = make(map[relay.Provider]Adapter)
	return firstErr
}
