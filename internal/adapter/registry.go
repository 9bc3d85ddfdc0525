package adapter

import "fmt"

// Registry resolves a vendor name to its Adapter, falling back to the
// "generic" adapter for unknown vendors (spec.md §4.3).
type Registry struct {
	adapters map[string]Adapter
	fallback Adapter
}

// NewRegistry builds a Registry from the given adapters, keyed by their
// VendorName(). If the set is non-empty and none of them is named
// "generic", construction fails fast.
func NewRegistry(adapters ...Adapter) (*Registry, error) {
	byName := make(map[string]Adapter, len(adapters))
	for _, a := range adapters {
		byName[a.VendorName()] = a
	}

	fallback, ok := byName["generic"]
	if !ok && len(byName) > 0 {
		return nil, fmt.Errorf("adapter: registry requires a %q adapter when any adapters are registered", "generic")
	}

	return &Registry{adapters: byName, fallback: fallback}, nil
}

// GetAdapter resolves vendorName to its adapter, returning the "generic"
// fallback for unknown vendors.
func (r *Registry) GetAdapter(vendorName string) Adapter {
	if a, ok := r.adapters[vendorName]; ok {
		return a
	}
	return r.fallback
}
