package engine

import (
	"errors"
	"fmt"
	"sync"

	"github.com/tlahtinen/governor/pkg/api"
)

// Registry maps operation types to the factories used when restoring
// persisted procedures.
type Registry struct {
	mu        sync.RWMutex
	factories map[api.OperationType]api.ProcedureFactory
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[api.OperationType]api.ProcedureFactory),
	}
}

// Register adds a factory for an operation type. Registering the same type
// twice is an error.
func (r *Registry) Register(op api.OperationType, factory api.ProcedureFactory) error {
	if op == "" {
		return errors.New("operation type is required")
	}
	if factory == nil {
		return fmt.Errorf("factory for %s is nil", op)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.factories[op]; ok {
		return fmt.Errorf("operation type already registered: %s", op)
	}
	r.factories[op] = factory
	return nil
}

// Factory returns the factory for an operation type, or ErrUnknownKind.
func (r *Registry) Factory(op api.OperationType) (api.ProcedureFactory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, ok := r.factories[op]
	if !ok {
		return nil, fmt.Errorf("%w: %s", api.ErrUnknownKind, op)
	}
	return f, nil
}
