package libreflux

import (
	"slices"
	"sync"
)

// Registry records every handler name known to the process: action types
// with a reducer or effect registered on any store sharing the registry,
// and topics registered with an orchestrator. State machines consult it
// before dispatching a trigger.
type Registry struct {
	mu    sync.RWMutex
	names map[string]int
}

// DefaultRegistry is shared by stores created without WithRegistry
var DefaultRegistry = NewRegistry()

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{names: make(map[string]int)}
}

// Register marks name as known. Registering twice counts handlers.
func (r *Registry) Register(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.names[name]++
}

// Known reports whether a handler was ever registered for name
func (r *Registry) Known(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.names[name] > 0
}

// Handlers returns the number of registrations for name
func (r *Registry) Handlers(name string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.names[name]
}

// Names returns all known names, sorted
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.names))
	for name := range r.names {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
