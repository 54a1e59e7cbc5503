// Package registry holds the registered workers and resolves a (role,
// capability) pair to a concrete worker instance.
package registry

import (
	"errors"
	"fmt"
	"sort"

	"github.com/ansor-ai/ansor/internal/orchestration/contracts"
)

// ErrWorkerNotFound is returned when neither the capability index nor the
// role index holds a match. Resolution failure is structural: the runner
// aborts the whole run instead of retrying.
var ErrWorkerNotFound = errors.New("worker not found")

// Registry indexes workers by name, capability and role. Registration is
// not safe for concurrent use; register everything at startup, resolve
// freely afterwards.
type Registry struct {
	workers      map[string]contracts.Worker
	capabilities map[string]string
	roles        map[contracts.Role]string
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		workers:      make(map[string]contracts.Worker),
		capabilities: make(map[string]string),
		roles:        make(map[contracts.Role]string),
	}
}

// Register stores a worker and indexes every declared capability and its
// role. Last registration wins on a colliding key.
func (r *Registry) Register(w contracts.Worker) {
	r.workers[w.Name()] = w
	r.roles[w.Role()] = w.Name()
	for _, capability := range w.Capabilities() {
		r.capabilities[capability] = w.Name()
	}
}

// ResolveByCapability returns the worker indexed under a capability string.
func (r *Registry) ResolveByCapability(capability string) (contracts.Worker, error) {
	name, ok := r.capabilities[capability]
	if !ok {
		return nil, fmt.Errorf("capability %q not registered: %w", capability, ErrWorkerNotFound)
	}
	return r.workers[name], nil
}

// ResolveByRole returns the worker indexed under a role.
func (r *Registry) ResolveByRole(role contracts.Role) (contracts.Worker, error) {
	name, ok := r.roles[role]
	if !ok {
		return nil, fmt.Errorf("role %q not registered: %w", role, ErrWorkerNotFound)
	}
	return r.workers[name], nil
}

// Snapshot describes the current registry contents, for diagnostics.
type Snapshot struct {
	Workers      []string          `json:"workers"`
	Capabilities map[string]string `json:"capabilities"`
	Roles        map[string]string `json:"roles"`
}

// Snapshot returns a sorted view of registered workers and their indexes.
func (r *Registry) Snapshot() Snapshot {
	snap := Snapshot{
		Workers:      make([]string, 0, len(r.workers)),
		Capabilities: make(map[string]string, len(r.capabilities)),
		Roles:        make(map[string]string, len(r.roles)),
	}
	for name := range r.workers {
		snap.Workers = append(snap.Workers, name)
	}
	sort.Strings(snap.Workers)
	for capability, name := range r.capabilities {
		snap.Capabilities[capability] = name
	}
	for role, name := range r.roles {
		snap.Roles[string(role)] = name
	}
	return snap
}
