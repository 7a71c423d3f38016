package registry

import (
	"fmt"
	"log/slog"
	"sort"
)

// Module is the interface every built-in product package implements to add
// its constructors to a registry.
type Module interface {
	Register(r *Registry)
}

// Registry holds the constructors available to a single installation run.
// It is populated during startup and treated as read-only afterwards.
type Registry struct {
	constructors map[string]Constructor
}

// New creates a registry and registers every given module into it.
func New(modules ...Module) *Registry {
	r := &Registry{constructors: make(map[string]Constructor)}
	for _, m := range modules {
		m.Register(r)
	}
	return r
}

// Register adds a constructor under name. Registering a name twice is a
// programming error and panics.
func (r *Registry) Register(name string, c Constructor) {
	if name == "" {
		panic("registry: constructor name cannot be empty")
	}
	if c == nil {
		panic(fmt.Sprintf("registry: constructor for '%s' is nil", name))
	}
	if _, exists := r.constructors[name]; exists {
		panic(fmt.Sprintf("constructor with name '%s' already registered", name))
	}
	slog.Debug("Registering artifact constructor.", "name", name)
	r.constructors[name] = c
}

// Lookup returns the constructor registered under name.
func (r *Registry) Lookup(name string) (Constructor, bool) {
	c, ok := r.constructors[name]
	return c, ok
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.constructors[name]
	return ok
}

// Names returns every registered name in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.constructors))
	for name := range r.constructors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered constructors.
func (r *Registry) Len() int {
	return len(r.constructors)
}
