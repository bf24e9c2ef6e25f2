package providers

import (
	"fmt"
	"sort"
	"sync"

	"github.com/ogulcanaydogan/gluco-guardian/pkg/model"
)

// Registry manages provider clients by kind.
type Registry struct {
	mu        sync.RWMutex
	providers map[model.ProviderKind]Provider
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[model.ProviderKind]Provider),
	}
}

// Register adds a provider to the registry.
func (r *Registry) Register(p Provider) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	kind := p.Kind()
	if _, exists := r.providers[kind]; exists {
		return fmt.Errorf("provider %q already registered", kind)
	}
	r.providers[kind] = p
	return nil
}

// Get returns a provider by kind.
func (r *Registry) Get(kind model.ProviderKind) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[kind]
	if !ok {
		return nil, fmt.Errorf("provider %q: %w", kind, ErrUnknownProvider)
	}
	return p, nil
}

// List returns all registered provider kinds in sorted order.
func (r *Registry) List() []model.ProviderKind {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]model.ProviderKind, 0, len(r.providers))
	for kind := range r.providers {
		kinds = append(kinds, kind)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// All returns all registered providers ordered by kind.
func (r *Registry) All() []Provider {
	kinds := r.List()

	r.mu.RLock()
	defer r.mu.RUnlock()

	providers := make([]Provider, 0, len(kinds))
	for _, kind := range kinds {
		providers = append(providers, r.providers[kind])
	}
	return providers
}
