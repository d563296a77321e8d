// Package registry is the capability table through which the executor reaches
// the outside world. Hosts register one handler per opcode; the executor looks
// them up by name and never performs side effects itself.
package registry

import (
	"context"
	"fmt"
	"sync"

	"github.com/aretw0/chanflow/pkg/domain"
)

// Handler implements a primitive operation.
// It receives the run's context and the operation's positional arguments.
type Handler func(ctx context.Context, args ...any) (any, error)

// OperationError reports a failing handler.
type OperationError struct {
	Op  domain.Opcode
	Err error
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("operation %s failed: %v", e.Op, e.Err)
}

func (e *OperationError) Unwrap() error {
	return e.Err
}

// Registry manages the available operation handlers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[domain.Opcode]Handler
}

// NewRegistry creates a new empty registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[domain.Opcode]Handler),
	}
}

// Register adds a handler to the registry.
// If a handler for the same opcode exists, it is overwritten.
func (r *Registry) Register(op domain.Opcode, fn Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[op] = fn
}

// Has reports whether a handler is registered for op.
func (r *Registry) Has(op domain.Opcode) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handlers[op]
	return ok
}

// Execute looks up the handler for op and runs it.
// Returns domain.ErrUnregisteredOperation if there is none.
func (r *Registry) Execute(ctx context.Context, op domain.Opcode, args ...any) (any, error) {
	r.mu.RLock()
	fn, ok := r.handlers[op]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnregisteredOperation, op)
	}

	result, err := fn(ctx, args...)
	if err != nil {
		return nil, &OperationError{Op: op, Err: err}
	}
	return result, nil
}
