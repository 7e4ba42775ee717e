package registry

import (
	"fmt"
	"sort"
	"sync"

	"FeedGate/internal/domain/models"
)

// Registry is the catalogue of upstream providers grouped by category.
// Lookups are read-mostly; registration and enable/disable are serialized.
type Registry struct {
	mu         sync.RWMutex
	byID       map[string]*entry
	byCategory map[models.Category][]*entry
	order      int
}

type entry struct {
	provider models.Provider
	enabled  bool
	seq      int // registration order, tie-break within a tier
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		byID:       make(map[string]*entry),
		byCategory: make(map[models.Category][]*entry),
	}
}

// Register adds a provider. Provider IDs must be unique across categories.
func (r *Registry) Register(p models.Provider) error {
	if p.ID == "" {
		return fmt.Errorf("registry: provider id required")
	}
	if p.Category == "" {
		return fmt.Errorf("registry: provider %s: category required", p.ID)
	}
	if p.Tier <= 0 {
		p.Tier = 1
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byID[p.ID]; exists {
		return fmt.Errorf("registry: duplicate provider id %q", p.ID)
	}
	e := &entry{provider: p, enabled: true, seq: r.order}
	r.order++
	r.byID[p.ID] = e

	list := append(r.byCategory[p.Category], e)
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].provider.Tier != list[j].provider.Tier {
			return list[i].provider.Tier < list[j].provider.Tier
		}
		return list[i].seq < list[j].seq
	})
	r.byCategory[p.Category] = list
	return nil
}

// ProvidersFor returns enabled providers for a category, ordered by tier then
// registration order. The returned slice is a copy.
func (r *Registry) ProvidersFor(category models.Category) []models.Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := r.byCategory[category]
	out := make([]models.Provider, 0, len(list))
	for _, e := range list {
		if e.enabled {
			out = append(out, e.provider)
		}
	}
	return out
}

// Get returns a provider by id.
func (r *Registry) Get(providerID string) (models.Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byID[providerID]
	if !ok {
		return models.Provider{}, false
	}
	return e.provider, true
}

// Enabled reports whether a provider is currently enabled.
func (r *Registry) Enabled(providerID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byID[providerID]
	return ok && e.enabled
}

// Enable turns a provider back on.
func (r *Registry) Enable(providerID string) error {
	return r.setEnabled(providerID, true)
}

// Disable removes a provider from selection without unregistering it.
func (r *Registry) Disable(providerID string) error {
	return r.setEnabled(providerID, false)
}

func (r *Registry) setEnabled(providerID string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.byID[providerID]
	if !ok {
		return fmt.Errorf("registry: unknown provider %q", providerID)
	}
	e.enabled = enabled
	return nil
}

// All returns every registered provider with its enabled flag, for the
// snapshot API. Ordered by category then tier then registration.
func (r *Registry) All() []struct {
	Provider models.Provider
	Enabled  bool
} {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cats := make([]models.Category, 0, len(r.byCategory))
	for c := range r.byCategory {
		cats = append(cats, c)
	}
	sort.Slice(cats, func(i, j int) bool { return cats[i] < cats[j] })

	var out []struct {
		Provider models.Provider
		Enabled  bool
	}
	for _, c := range cats {
		for _, e := range r.byCategory[c] {
			out = append(out, struct {
				Provider models.Provider
				Enabled  bool
			}{e.provider, e.enabled})
		}
	}
	return out
}

// Categories returns the distinct categories with at least one provider.
func (r *Registry) Categories() []models.Category {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.Category, 0, len(r.byCategory))
	for c := range r.byCategory {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
