package chanflow

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aretw0/chanflow/internal/logging"
	"github.com/aretw0/chanflow/internal/runtime"
	"github.com/aretw0/chanflow/pkg/domain"
	"github.com/aretw0/chanflow/pkg/flow"
	"github.com/aretw0/chanflow/pkg/registry"
)

// Run is a single protocol execution for one role. A run awaiting a reply is
// its own continuation token.
type Run = runtime.Run

// StepError reports the step at which a run aborted.
type StepError = runtime.StepError

// Status is the lifecycle state of a Run.
type Status = runtime.Status

const (
	StatusActive        = runtime.StatusActive
	StatusAwaitingReply = runtime.StatusAwaitingReply
	StatusCompleted     = runtime.StatusCompleted
	StatusFailed        = runtime.StatusFailed
)

// Machine is the high-level entry point of the library.
// It wraps the instruction executor and the capability table the host fills
// with signing, transport and persistence handlers.
type Machine struct {
	engine   *runtime.Engine
	registry *registry.Registry
	network  domain.NetworkContext
	flows    map[domain.Protocol]flow.Flow
	hooks    domain.LifecycleHooks
	logger   *slog.Logger
}

// Option defines a functional option for configuring the Machine.
type Option func(*Machine)

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(m *Machine) {
		m.hooks = hooks
	}
}

// WithLogger sets a custom structured logger for the machine.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Machine) {
		m.logger = logger
	}
}

// WithRegistry injects a pre-populated capability table.
func WithRegistry(reg *registry.Registry) Option {
	return func(m *Machine) {
		m.registry = reg
	}
}

// WithFlow adds or replaces the flow for a protocol.
func WithFlow(name domain.Protocol, f flow.Flow) Option {
	return func(m *Machine) {
		m.flows[name] = f
	}
}

// New creates a Machine bound to the given contract addresses.
func New(network domain.NetworkContext, opts ...Option) (*Machine, error) {
	m := &Machine{
		network: network,
		flows:   make(map[domain.Protocol]flow.Flow),
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.registry == nil {
		m.registry = registry.NewRegistry()
	}

	runtimeOpts := []runtime.EngineOption{
		runtime.WithLifecycleHooks(m.hooks),
		runtime.WithLogger(m.logger),
	}
	for name, f := range m.flows {
		runtimeOpts = append(runtimeOpts, runtime.WithFlow(name, f))
	}

	engine, err := runtime.NewEngine(network, m.registry, runtimeOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize engine: %w", err)
	}
	m.engine = engine
	return m, nil
}

// Network returns the contract addresses commitments are built against.
func (m *Machine) Network() domain.NetworkContext {
	return m.network
}

// Register installs the handler for an opcode, replacing any previous one.
func (m *Machine) Register(op domain.Opcode, h registry.Handler) {
	m.registry.Register(op, h)
}

// Run executes protocol as the initiator and returns the updated channels.
// channels is never modified.
func (m *Machine) Run(ctx context.Context, name domain.Protocol, params domain.Params, channels domain.ChannelMap) (domain.ChannelMap, error) {
	return m.engine.Execute(ctx, name, 0, initiatorMessage(name, params), channels)
}

// RunSetup opens a channel with the responding party.
func (m *Machine) RunSetup(ctx context.Context, params domain.SetupParams, channels domain.ChannelMap) (domain.ChannelMap, error) {
	return m.Run(ctx, domain.ProtocolSetup, params, channels)
}

// RunInstall installs an app in an existing channel.
func (m *Machine) RunInstall(ctx context.Context, params domain.InstallParams, channels domain.ChannelMap) (domain.ChannelMap, error) {
	return m.Run(ctx, domain.ProtocolInstall, params, channels)
}

// RunUninstall removes an app from an existing channel.
func (m *Machine) RunUninstall(ctx context.Context, params domain.UninstallParams, channels domain.ChannelMap) (domain.ChannelMap, error) {
	return m.Run(ctx, domain.ProtocolUninstall, params, channels)
}

// RunWithMessage executes the role that msg starts. The role is the message's
// sequence number, so a seq-1 proposal runs the responder. Role 0 is only
// started locally through Run, never by a received message.
func (m *Machine) RunWithMessage(ctx context.Context, msg domain.ProtocolMessage, channels domain.ChannelMap) (domain.ChannelMap, error) {
	if err := m.checkRole(msg); err != nil {
		return nil, err
	}
	return m.engine.Execute(ctx, msg.Protocol, msg.Seq, msg, channels)
}

// Start begins protocol as the initiator without driving suspensions.
// Use Resume to deliver the reply.
func (m *Machine) Start(ctx context.Context, name domain.Protocol, params domain.Params, channels domain.ChannelMap) (*Run, error) {
	return m.engine.Start(ctx, name, 0, initiatorMessage(name, params), channels)
}

// StartWithMessage begins the role that msg starts without driving suspensions.
func (m *Machine) StartWithMessage(ctx context.Context, msg domain.ProtocolMessage, channels domain.ChannelMap) (*Run, error) {
	if err := m.checkRole(msg); err != nil {
		return nil, err
	}
	return m.engine.Start(ctx, msg.Protocol, msg.Seq, msg, channels)
}

// Resume continues a run that is awaiting a reply.
func (m *Machine) Resume(ctx context.Context, run *Run, replies ...domain.ProtocolMessage) (*Run, error) {
	return m.engine.Resume(ctx, run, replies...)
}

func (m *Machine) checkRole(msg domain.ProtocolMessage) error {
	if msg.Seq < 1 {
		return fmt.Errorf("%w: %s seq %d cannot be received", domain.ErrUnexpectedSequence, msg.Protocol, msg.Seq)
	}
	ok, err := m.engine.HasRole(msg.Protocol, msg.Seq)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s has no role for seq %d", domain.ErrUnexpectedSequence, msg.Protocol, msg.Seq)
	}
	return nil
}

// initiatorMessage is the synthetic seq-0 message that starts role 0.
func initiatorMessage(name domain.Protocol, params domain.Params) domain.ProtocolMessage {
	msg := domain.ProtocolMessage{Protocol: name, Params: params}
	if params != nil {
		msg.FromXpub, msg.ToXpub = params.Parties()
	}
	return msg
}
