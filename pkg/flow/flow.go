// Package flow defines the declarative building blocks of a protocol: steps,
// per-role step sequences, and the execution context a run threads through
// them.
//
// A Step is either a Transform, which is pure with respect to the outside world
// and may only mutate the Context, or an Opcode naming a side effect the host
// performs. The executor never performs I/O itself.
package flow

import (
	"github.com/aretw0/chanflow/pkg/domain"
)

// Transform computes over the run's context. msg is the message that started
// the run for this role.
type Transform func(msg domain.ProtocolMessage, c *Context) error

// Step is a single instruction. Exactly one of Transform and Op is set.
type Step struct {
	Name      string
	Transform Transform
	Op        domain.Opcode
}

// Do returns a transform step.
func Do(name string, fn Transform) Step {
	return Step{Name: name, Transform: fn}
}

// Op returns a primitive operation step. Its name is the opcode.
func Op(op domain.Opcode) Step {
	return Step{Name: string(op), Op: op}
}

// IsOp reports whether the step is a primitive operation.
func (s Step) IsOp() bool {
	return s.Op != ""
}

// Flow maps a role index (0 initiator, 1 responder, 2 intermediary) to its
// ordered steps.
type Flow map[int][]Step

// Roles returns the number of roles the flow defines.
func (f Flow) Roles() int {
	return len(f)
}
