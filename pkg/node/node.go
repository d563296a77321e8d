// Package node hosts one protocol participant. It persists agreed channels and
// answers proposals arriving from the transport.
package node

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aretw0/chanflow"
	"github.com/aretw0/chanflow/internal/logging"
	"github.com/aretw0/chanflow/pkg/domain"
	"github.com/aretw0/chanflow/pkg/ports"
	"github.com/aretw0/chanflow/pkg/registry"
	"github.com/aretw0/chanflow/pkg/session"
	"github.com/aretw0/chanflow/pkg/transport"
	"github.com/aretw0/chanflow/pkg/xkeys"
)

// Node is a participant bound to one keyring.
// Runs on the same multisig are serialized; runs on different channels
// proceed concurrently.
type Node struct {
	xpub      string
	signer    Signer
	machine   *chanflow.Machine
	sessions  *session.Manager
	transport ports.Transport
	waiters   *transport.Waiters
	hooks     domain.LifecycleHooks
	locker    ports.DistributedLocker
	logger    *slog.Logger
}

// Signer signs digests with the participant's keys. The key index selects the
// non-hardened child of the participant's xpub.
type Signer interface {
	SignDigest(ctx context.Context, digest domain.Digest, keyIndex uint32) (domain.Signature, error)
}

type keyringSigner struct {
	keys *xkeys.Keyring
}

func (s keyringSigner) SignDigest(_ context.Context, digest domain.Digest, keyIndex uint32) (domain.Signature, error) {
	return s.keys.SignDigest(digest, keyIndex)
}

// Option configures the Node.
type Option func(*Node)

// WithLogger sets the node logger.
func WithLogger(logger *slog.Logger) Option {
	return func(n *Node) {
		if logger != nil {
			n.logger = logger
		}
	}
}

// WithLifecycleHooks registers observability hooks on the node's machine.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(n *Node) {
		n.hooks = hooks
	}
}

// WithWaiters makes Deliver hand replies to runs waiting in w. Transports that
// receive replies out of band, such as HTTP, share w with the node.
func WithWaiters(w *transport.Waiters) Option {
	return func(n *Node) {
		n.waiters = w
	}
}

// WithLocker serializes runs across replicas sharing the store.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(n *Node) {
		n.locker = locker
	}
}

// New creates a node that signs with keys, persists to store and talks
// through t.
func New(keys *xkeys.Keyring, network domain.NetworkContext, store ports.ChannelStore, t ports.Transport, opts ...Option) (*Node, error) {
	if keys == nil {
		return nil, errors.New("node requires a keyring")
	}
	return NewWithSigner(keys.Xpub(), keyringSigner{keys: keys}, network, store, t, opts...)
}

// NewWithSigner creates a node identified by xpub whose private keys are held
// by signer.
func NewWithSigner(xpub string, signer Signer, network domain.NetworkContext, store ports.ChannelStore, t ports.Transport, opts ...Option) (*Node, error) {
	if signer == nil {
		return nil, errors.New("node requires a signer")
	}
	if _, err := xkeys.KthAddress(xpub, 0); err != nil {
		return nil, fmt.Errorf("invalid node identity: %w", err)
	}
	if store == nil || t == nil {
		return nil, errors.New("node requires a store and a transport")
	}
	n := &Node{
		xpub:      xpub,
		signer:    signer,
		transport: t,
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(n)
	}

	sessionOpts := []session.Option{session.WithLogger(n.logger)}
	if n.locker != nil {
		sessionOpts = append(sessionOpts, session.WithLocker(n.locker))
	}
	n.sessions = session.NewManager(store, sessionOpts...)

	reg := registry.NewRegistry()
	reg.Register(domain.OpSign, registry.SignHandler(n.sign(false)))
	reg.Register(domain.OpSignAsIntermediary, registry.SignHandler(n.sign(true)))
	reg.Register(domain.OpSend, registry.SendHandler(t.Send))
	reg.Register(domain.OpSendAndWait, registry.SendAndWaitHandler(t.SendAndWait))
	reg.Register(domain.OpPersist, registry.PersistHandler(n.persist))

	machine, err := chanflow.New(network,
		chanflow.WithRegistry(reg),
		chanflow.WithLogger(n.logger),
		chanflow.WithLifecycleHooks(n.hooks),
	)
	if err != nil {
		return nil, err
	}
	n.machine = machine
	return n, nil
}

// Xpub returns the node's identity.
func (n *Node) Xpub() string {
	return n.xpub
}

// Address returns the node's channel-owner address.
func (n *Node) Address() (domain.Address, error) {
	return xkeys.KthAddress(n.xpub, 0)
}

func (n *Node) sign(asIntermediary bool) registry.SignFunc {
	return func(ctx context.Context, c domain.Commitment, keyIndex uint32) (domain.Signature, error) {
		return n.signer.SignDigest(ctx, c.HashToSign(asIntermediary), keyIndex)
	}
}

// persist saves the channel the signed commitment belongs to. The caller
// already holds the channel's lock.
func (n *Node) persist(ctx context.Context, channels domain.ChannelMap, signed domain.SignedCommitment) error {
	if signed.Commitment == nil {
		return fmt.Errorf("%w: signed commitment has no commitment", domain.ErrMalformedOperationArguments)
	}
	multisig := signed.Commitment.MultisigAddress()
	ch, ok := channels.Get(multisig)
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrChannelNotFound, multisig)
	}
	if err := n.sessions.Store().Save(ctx, ch); err != nil {
		return fmt.Errorf("failed to persist channel %s: %w", multisig, err)
	}
	n.logger.InfoContext(ctx, "channel persisted", "multisig", multisig, "signers", len(signed.Signers))
	return nil
}

// Deliver handles an inbound message: replies wake the waiting run, proposals
// start the responder.
func (n *Node) Deliver(ctx context.Context, msg domain.ProtocolMessage) error {
	if n.waiters != nil && n.waiters.Resolve(msg) {
		return nil
	}
	if msg.ToXpub != n.Xpub() {
		return fmt.Errorf("%w: %s", domain.ErrUnknownRecipient, msg.ToXpub)
	}
	if msg.Params == nil {
		return fmt.Errorf("%w: %s message has no params", domain.ErrMalformedOperationArguments, msg.Protocol)
	}

	n.logger.DebugContext(ctx, "message received", "protocol", msg.Protocol, "seq", msg.Seq, "from", msg.FromXpub)
	_, err := n.run(ctx, msg.Params.Multisig(), func(ctx context.Context, channels domain.ChannelMap) (domain.ChannelMap, error) {
		return n.machine.RunWithMessage(ctx, msg, channels)
	})
	return err
}

// Setup opens a channel at multisig with the participant identified by
// counterparty.
func (n *Node) Setup(ctx context.Context, counterparty string, multisig domain.Address) (*domain.StateChannel, error) {
	params := domain.SetupParams{
		InitiatingXpub:  n.Xpub(),
		RespondingXpub:  counterparty,
		MultisigAddress: multisig,
	}
	return n.run(ctx, multisig, func(ctx context.Context, channels domain.ChannelMap) (domain.ChannelMap, error) {
		return n.machine.RunSetup(ctx, params, channels)
	})
}

// Install installs an app and returns the updated channel and the installed
// instance. InitiatingXpub defaults to the node's identity and may not name
// anyone else.
func (n *Node) Install(ctx context.Context, params domain.InstallParams) (*domain.StateChannel, domain.AppInstance, error) {
	if params.InitiatingXpub == "" {
		params.InitiatingXpub = n.Xpub()
	}
	if err := n.checkInitiator(params.InitiatingXpub); err != nil {
		return nil, domain.AppInstance{}, err
	}
	ch, err := n.run(ctx, params.MultisigAddress, func(ctx context.Context, channels domain.ChannelMap) (domain.ChannelMap, error) {
		return n.machine.RunInstall(ctx, params, channels)
	})
	if err != nil {
		return nil, domain.AppInstance{}, err
	}
	for _, app := range ch.AppInstances {
		if app.AppSeqNo == ch.MonotonicNumInstalledApps-1 && !ch.IsFreeBalance(app.IdentityHash()) {
			return ch, app, nil
		}
	}
	return nil, domain.AppInstance{}, fmt.Errorf("%w: installed app missing from channel %s", domain.ErrAppNotFound, ch.MultisigAddress)
}

// Uninstall removes an app. InitiatingXpub defaults to the node's identity
// and may not name anyone else.
func (n *Node) Uninstall(ctx context.Context, params domain.UninstallParams) (*domain.StateChannel, error) {
	if params.InitiatingXpub == "" {
		params.InitiatingXpub = n.Xpub()
	}
	if err := n.checkInitiator(params.InitiatingXpub); err != nil {
		return nil, err
	}
	return n.run(ctx, params.MultisigAddress, func(ctx context.Context, channels domain.ChannelMap) (domain.ChannelMap, error) {
		return n.machine.RunUninstall(ctx, params, channels)
	})
}

// checkInitiator refuses to start a run on behalf of another participant.
func (n *Node) checkInitiator(xpub string) error {
	if xpub != n.Xpub() {
		return fmt.Errorf("%w: node %s cannot initiate as %s", domain.ErrPartyMismatch, n.Xpub(), xpub)
	}
	return nil
}

// Channel loads one channel.
func (n *Node) Channel(ctx context.Context, multisig domain.Address) (*domain.StateChannel, error) {
	return n.sessions.Load(ctx, multisig)
}

// Channels loads every channel the node holds.
func (n *Node) Channels(ctx context.Context) (domain.ChannelMap, error) {
	return n.sessions.Channels(ctx)
}

// run executes fn under the multisig's lock with the channel loaded, and
// returns the channel as left by the run.
func (n *Node) run(ctx context.Context, multisig domain.Address, fn func(context.Context, domain.ChannelMap) (domain.ChannelMap, error)) (*domain.StateChannel, error) {
	var out *domain.StateChannel
	err := n.sessions.WithLock(ctx, multisig, func(ctx context.Context) error {
		channels := domain.ChannelMap{}
		ch, err := n.sessions.Store().Load(ctx, multisig)
		switch {
		case err == nil:
			channels.Set(ch)
		case !errors.Is(err, domain.ErrChannelNotFound):
			return err
		}

		result, err := fn(ctx, channels)
		if err != nil {
			return err
		}
		updated, ok := result.Get(multisig)
		if !ok {
			return fmt.Errorf("%w: %s", domain.ErrChannelNotFound, multisig)
		}
		out = updated
		return nil
	})
	return out, err
}
