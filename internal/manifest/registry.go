package manifest

import (
	"cmp"
	"fmt"
	"slices"
	"sync"
)

// Registry holds registered manifests keyed by name. It is instance-based
// (not global) for better testability. Safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	manifests map[string]Manifest
}

// NewRegistry creates an empty manifest registry.
func NewRegistry() *Registry {
	return &Registry{
		manifests: make(map[string]Manifest),
	}
}

// Register validates and adds a manifest. A manifest with the same name and
// version as an existing one is rejected with ErrDuplicate; a different
// version of a known name replaces nothing and is also rejected, keeping the
// registry unambiguous per name.
func (r *Registry) Register(m Manifest) error {
	if err := m.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.manifests[m.Name]; ok {
		if existing.Version == m.Version {
			return fmt.Errorf("%w: %s", ErrDuplicate, m.Key())
		}
		return fmt.Errorf("%w: %s already registered as version %s", ErrDuplicate, m.Name, existing.Version)
	}

	r.manifests[m.Name] = m
	return nil
}

// Get returns the manifest with the given name, or ErrNotFound.
func (r *Registry) Get(name string) (Manifest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.manifests[name]
	if !ok {
		return Manifest{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return m, nil
}

// List returns all registered manifests sorted by name.
func (r *Registry) List() []Manifest {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Manifest, 0, len(r.manifests))
	for _, m := range r.manifests {
		out = append(out, m)
	}
	slices.SortFunc(out, func(a, b Manifest) int {
		return cmp.Compare(a.Name, b.Name)
	})
	return out
}

// Names returns all registered tool names sorted alphabetically.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.manifests))
	for name := range r.manifests {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
