package dispatch

import (
	"sync"

	"github.com/strataops/atrium/internal/dispatch/domain"
)

// Registry is the closed action table. Feature modules register their specs
// during fx startup; after Seal no further registration is accepted, so the
// set of dispatchable actions is fixed for the process lifetime.
type Registry struct {
	mu     sync.RWMutex
	specs  map[domain.Action]domain.Spec
	sealed bool
}

func NewRegistry() *Registry {
	return &Registry{specs: make(map[domain.Action]domain.Spec)}
}

func (r *Registry) Register(action domain.Action, spec domain.Spec) error {
	if !action.Valid() {
		return domain.ErrInvalidAction
	}
	if spec.Handler == nil {
		return domain.ErrInvalidAction
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed {
		return domain.ErrActionRegistered
	}
	if _, exists := r.specs[action]; exists {
		return domain.ErrActionRegistered
	}
	r.specs[action] = spec
	return nil
}

func (r *Registry) Seal() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sealed = true
}

func (r *Registry) Lookup(action domain.Action) (domain.Spec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	spec, ok := r.specs[action]
	return spec, ok
}
