// Package registry implements the process-wide name -> supervisor mapping
// shared by every request handler.
package registry

import (
	"sort"
	"sync"

	"github.com/ryym/procfleet/internal/apierr"
	"github.com/ryym/procfleet/internal/supervisor"
)

// Registry is the process-wide collection of named supervisors. Insertion
// order is not observable; List returns entries sorted by name for a
// deterministic response.
type Registry struct {
	mu    sync.RWMutex
	procs map[string]*supervisor.Supervisor
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{procs: make(map[string]*supervisor.Supervisor)}
}

// Get returns the supervisor registered under name.
func (r *Registry) Get(name string) (*supervisor.Supervisor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.procs[name]
	if !ok {
		return nil, apierr.NotFoundf("process %q not found", name)
	}
	return s, nil
}

// Insert registers a new supervisor under name. It is a conflict to reuse a
// name that already exists, even if the existing supervisor has since
// exited.
func (r *Registry) Insert(name string, command []string) (*supervisor.Supervisor, error) {
	if !supervisor.NamePattern.MatchString(name) {
		return nil, apierr.Validationf("invalid process name %q", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.procs[name]; exists {
		return nil, apierr.Conflictf("process %q already exists", name)
	}
	s := supervisor.New(name, command)
	r.procs[name] = s
	return s, nil
}

// Delete removes name from the registry. Forbidden until the supervisor's
// child has exited, including when it was never started (see
// Supervisor.CanDelete).
func (r *Registry) Delete(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.procs[name]
	if !ok {
		return apierr.NotFoundf("process %q not found", name)
	}
	if !s.CanDelete() {
		return apierr.Conflictf("process %q is still running", name)
	}
	delete(r.procs, name)
	return nil
}

// List returns every registered supervisor, sorted by name.
func (r *Registry) List() []*supervisor.Supervisor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.procs))
	for name := range r.procs {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]*supervisor.Supervisor, 0, len(names))
	for _, name := range names {
		out = append(out, r.procs[name])
	}
	return out
}

// StopAll stops every registered supervisor, used during graceful shutdown.
// Errors from individual stops are ignored; Stop returns nil on every path.
func (r *Registry) StopAll(kill bool) {
	for _, s := range r.List() {
		_ = s.Stop(kill)
	}
}
