// Package runtime is the instruction executor. It interprets a protocol flow
// step by step for one role, dispatching primitive operations to the
// registered handlers and suspending when the flow waits for a reply.
//
// The engine keeps no state between runs. Everything a run needs lives in its
// Run value, so a suspended run can be resumed by any engine configured with
// the same flows and handlers.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/chanflow/internal/logging"
	"github.com/aretw0/chanflow/internal/protocol"
	"github.com/aretw0/chanflow/pkg/domain"
	"github.com/aretw0/chanflow/pkg/flow"
	"github.com/aretw0/chanflow/pkg/registry"
	"github.com/google/uuid"
)

// Engine runs protocol flows.
type Engine struct {
	flows    map[domain.Protocol]flow.Flow
	registry *registry.Registry
	network  domain.NetworkContext
	hooks    domain.LifecycleHooks
	logger   *slog.Logger
}

// EngineOption configures the Engine.
type EngineOption func(*Engine)

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) EngineOption {
	return func(e *Engine) {
		e.hooks = hooks
	}
}

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithFlow adds or replaces the flow for a protocol.
func WithFlow(name domain.Protocol, f flow.Flow) EngineOption {
	return func(e *Engine) {
		e.flows[name] = f
	}
}

// NewEngine creates an engine for the built-in protocols.
// Every flow is validated up front.
func NewEngine(network domain.NetworkContext, reg *registry.Registry, opts ...EngineOption) (*Engine, error) {
	if reg == nil {
		reg = registry.NewRegistry()
	}
	e := &Engine{
		flows:    protocol.Flows(),
		registry: reg,
		network:  network,
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	for name, f := range e.flows {
		if err := flow.Validate(name, f); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// Registry returns the capability table the engine dispatches to.
func (e *Engine) Registry() *registry.Registry {
	return e.registry
}

// Network returns the network context commitments are built against.
func (e *Engine) Network() domain.NetworkContext {
	return e.network
}

// HasRole reports whether protocol defines steps for role.
// It returns domain.ErrUnknownProtocol for unknown protocols.
func (e *Engine) HasRole(name domain.Protocol, role int) (bool, error) {
	f, ok := e.flows[name]
	if !ok {
		return false, fmt.Errorf("%w: %q", domain.ErrUnknownProtocol, name)
	}
	_, ok = f[role]
	return ok, nil
}

func (e *Engine) steps(name domain.Protocol, role int) ([]flow.Step, error) {
	f, ok := e.flows[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownProtocol, name)
	}
	steps, ok := f[role]
	if !ok {
		return nil, fmt.Errorf("%w: %q has no role %d", domain.ErrUnknownRole, name, role)
	}
	return steps, nil
}

// Start begins a run of protocol as role. msg is the message that triggered
// the run: a synthetic message for the initiator, the received proposal for
// the responder. channels is never modified.
//
// The returned run is completed, failed, or awaiting a reply.
func (e *Engine) Start(ctx context.Context, name domain.Protocol, role int, msg domain.ProtocolMessage, channels domain.ChannelMap) (*Run, error) {
	if _, err := e.steps(name, role); err != nil {
		return nil, err
	}

	id := uuid.NewString()
	run := &Run{
		ID:       id,
		Protocol: name,
		Role:     role,
		Status:   StatusActive,
		Message:  msg,
		Context:  flow.NewContext(id, name, role, e.network, channels),
	}

	e.logger.DebugContext(ctx, "run started", "run_id", id, "protocol", name, "role", role)
	e.emitRun(ctx, e.hooks.OnRunStart, domain.EventRunStart, run, nil)

	return e.advance(ctx, run)
}

// Resume continues a run suspended on a reply. The replies become the run's
// inbox; the flow itself decides whether their number is acceptable.
func (e *Engine) Resume(ctx context.Context, run *Run, replies ...domain.ProtocolMessage) (*Run, error) {
	if run == nil || run.Status != StatusAwaitingReply {
		return run, domain.ErrRunNotSuspended
	}
	if _, err := e.steps(run.Protocol, run.Role); err != nil {
		return run, err
	}

	run.Context.Inbox = append(run.Context.Inbox, replies...)
	run.Pending = nil
	run.Status = StatusActive

	e.logger.DebugContext(ctx, "run resumed", "run_id", run.ID, "protocol", run.Protocol, "role", run.Role, "replies", len(replies))
	return e.advance(ctx, run)
}

// Execute runs protocol to completion, handing each suspension to the
// registered OpSendAndWait handler. It returns the updated channel map.
func (e *Engine) Execute(ctx context.Context, name domain.Protocol, role int, msg domain.ProtocolMessage, channels domain.ChannelMap) (domain.ChannelMap, error) {
	run, err := e.Start(ctx, name, role, msg, channels)
	for err == nil && run.Status == StatusAwaitingReply {
		var reply domain.ProtocolMessage
		reply, err = e.wait(ctx, run)
		if err != nil {
			err = e.fail(ctx, run, run.Step-1, string(domain.OpSendAndWait), err)
			break
		}
		run, err = e.Resume(ctx, run, reply)
	}
	if err != nil {
		return nil, err
	}
	return run.Result, nil
}

func (e *Engine) wait(ctx context.Context, run *Run) (domain.ProtocolMessage, error) {
	res, err := e.registry.Execute(ctx, domain.OpSendAndWait, *run.Pending)
	if err != nil {
		return domain.ProtocolMessage{}, err
	}
	reply, ok := res.(domain.ProtocolMessage)
	if !ok {
		return domain.ProtocolMessage{}, fmt.Errorf("%w: %s returned %T", domain.ErrMalformedOperationArguments, domain.OpSendAndWait, res)
	}
	return reply, nil
}

// advance executes steps from run.Step until the flow ends, fails, or waits.
func (e *Engine) advance(ctx context.Context, run *Run) (*Run, error) {
	steps, err := e.steps(run.Protocol, run.Role)
	if err != nil {
		return run, err
	}

	for run.Step < len(steps) {
		index := run.Step
		s := steps[index]

		if err := ctx.Err(); err != nil {
			return run, e.fail(ctx, run, index, s.Name, err)
		}

		if s.Op == domain.OpSendAndWait {
			out, ok := run.Context.LatestOutbound()
			if !ok {
				return run, e.fail(ctx, run, index, s.Name, fmt.Errorf("no outbound message to send"))
			}
			run.Pending = &out
			run.Status = StatusAwaitingReply
			run.Step++
			e.emitStep(ctx, run, index, s, 0, false)
			e.logger.DebugContext(ctx, "run suspended", "run_id", run.ID, "protocol", run.Protocol, "role", run.Role, "step", index)
			e.emitRun(ctx, e.hooks.OnRunSuspend, domain.EventRunSuspend, run, nil)
			return run, nil
		}

		start := time.Now()
		err := e.execute(ctx, run, s)
		e.emitStep(ctx, run, index, s, time.Since(start), err != nil)
		if err != nil {
			return run, e.fail(ctx, run, index, s.Name, err)
		}
		run.Step++
	}

	run.Status = StatusCompleted
	run.Result = run.Context.Channels
	e.logger.DebugContext(ctx, "run completed", "run_id", run.ID, "protocol", run.Protocol, "role", run.Role)
	e.emitRun(ctx, e.hooks.OnRunComplete, domain.EventRunComplete, run, nil)
	return run, nil
}

func (e *Engine) execute(ctx context.Context, run *Run, s flow.Step) error {
	c := run.Context
	if !s.IsOp() {
		return s.Transform(run.Message, c)
	}

	switch s.Op {
	case domain.OpSign, domain.OpSignAsIntermediary:
		latest, ok := c.LatestCommitment()
		if !ok {
			return fmt.Errorf("no commitment to sign")
		}
		res, err := e.registry.Execute(ctx, s.Op, latest, uint32(0))
		if err != nil {
			return err
		}
		sig, ok := res.(domain.Signature)
		if !ok {
			return fmt.Errorf("%w: %s returned %T", domain.ErrMalformedOperationArguments, s.Op, res)
		}
		c.Signatures = append(c.Signatures, sig)
		return nil

	case domain.OpSend:
		out, ok := c.LatestOutbound()
		if !ok {
			return fmt.Errorf("no outbound message to send")
		}
		_, err := e.registry.Execute(ctx, s.Op, out)
		return err

	case domain.OpPersist:
		if c.Final == nil {
			return fmt.Errorf("no signed commitment to persist")
		}
		_, err := e.registry.Execute(ctx, s.Op, c.Channels.Clone(), *c.Final)
		return err

	default:
		_, err := e.registry.Execute(ctx, s.Op)
		return err
	}
}

// fail marks the run failed and returns the wrapped step error.
func (e *Engine) fail(ctx context.Context, run *Run, index int, name string, cause error) error {
	stepErr := &StepError{
		Protocol: run.Protocol,
		Role:     run.Role,
		Index:    index,
		Name:     name,
		Err:      cause,
	}
	run.Status = StatusFailed
	run.Pending = nil
	run.Err = stepErr

	e.logger.WarnContext(ctx, "run failed",
		"run_id", run.ID,
		"protocol", run.Protocol,
		"role", run.Role,
		"step", name,
		"error", cause,
	)
	e.emitRun(ctx, e.hooks.OnRunFail, domain.EventRunFail, run, stepErr)
	return stepErr
}
