package registry

import "github.com/ansor-ai/ansor/internal/orchestration/contracts"

// Router resolves workers capability-first, falling back to the role index.
type Router struct {
	registry *Registry
}

// NewRouter creates a router over a registry.
func NewRouter(registry *Registry) *Router {
	return &Router{registry: registry}
}

// Resolve tries the capability index first and the role index second. When
// both miss, the ErrWorkerNotFound from the role lookup propagates.
func (r *Router) Resolve(role contracts.Role, capability string) (contracts.Worker, error) {
	if w, err := r.registry.ResolveByCapability(capability); err == nil {
		return w, nil
	}
	return r.registry.ResolveByRole(role)
}
