package analyzer

import "fmt"

// Registry looks analyzers up by name. The pipeline driver registers
// every analyzer it builds here; tunnel analyzers do not look root
// analyzers up in it, they re-enter the pipeline through
// Context.ProcessInner.
type Registry struct {
	byName map[string]Analyzer
}

// NewRegistry returns an empty analyzer registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Analyzer)}
}

// Register adds a into the registry under its own Name(). Registering
// two analyzers under the same name is an error, matching the plugin
// registry this is grounded on.
func (r *Registry) Register(a Analyzer) error {
	if _, exists := r.byName[a.Name()]; exists {
		return fmt.Errorf("analyzer: %q already registered", a.Name())
	}
	r.byName[a.Name()] = a
	return nil
}

// Get looks an analyzer up by name.
func (r *Registry) Get(name string) (Analyzer, error) {
	a, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("analyzer: %q not registered", name)
	}
	return a, nil
}

// List returns every registered analyzer, in no particular order.
func (r *Registry) List() []Analyzer {
	out := make([]Analyzer, 0, len(r.byName))
	for _, a := range r.byName {
		out = append(out, a)
	}
	return out
}
