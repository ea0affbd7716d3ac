package adapter

import (
	"fmt"
	"slices"
	"sort"
)

// Registry is the explicit table of available adapters, keyed by name.
type Registry struct {
	adapters map[string]Adapter
}

// NewRegistry builds a registry from adapters, rejecting duplicate names.
func NewRegistry(adapters ...Adapter) (*Registry, error) {
	r := &Registry{adapters: make(map[string]Adapter, len(adapters))}
	for _, a := range adapters {
		if err := r.Register(a); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a to the table.
func (r *Registry) Register(a Adapter) error {
	if _, dup := r.adapters[a.Name()]; dup {
		return fmt.Errorf("%w: %s", ErrDuplicateScanner, a.Name())
	}
	r.adapters[a.Name()] = a
	return nil
}

// Get returns the adapter registered as name.
func (r *Registry) Get(name string) (Adapter, bool) {
	a, ok := r.adapters[name]
	return a, ok
}

// Names returns every registered name, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.adapters))
	for n := range r.adapters {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Select resolves names to adapters in sorted-name order. An empty list
// selects every registered adapter. Unknown names are an error.
func (r *Registry) Select(names []string) ([]Adapter, error) {
	if len(names) == 0 {
		names = r.Names()
	}
	names = slices.Clone(names)
	sort.Strings(names)
	names = slices.Compact(names)

	out := make([]Adapter, 0, len(names))
	for _, n := range names {
		a, ok := r.adapters[n]
		if !ok {
			return nil, fmt.Errorf("%w: %q (known: %v)", ErrUnknownScanner, n, r.Names())
		}
		out = append(out, a)
	}
	return out, nil
}
