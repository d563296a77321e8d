package transport

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/aretw0/chanflow/internal/logging"
	"github.com/aretw0/chanflow/pkg/domain"
	"github.com/aretw0/chanflow/pkg/ports"
	"golang.org/x/sync/errgroup"
)

// Router is an in-memory ports.Transport connecting receivers by xpub.
// Replies go straight to the waiting sender. Any other message is delivered
// to its recipient on a new goroutine, so a handler may itself send and wait.
type Router struct {
	mu        sync.RWMutex
	receivers map[string]ports.MessageReceiver

	waiters *Waiters
	logger  *slog.Logger

	groupMu sync.Mutex
	group   *errgroup.Group
}

// RouterOption configures the Router.
type RouterOption func(*Router)

// WithLogger sets the router logger.
func WithLogger(logger *slog.Logger) RouterOption {
	return func(r *Router) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRouter creates a router with no participants.
func NewRouter(opts ...RouterOption) *Router {
	r := &Router{
		receivers: make(map[string]ports.MessageReceiver),
		waiters:   NewWaiters(),
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register routes messages addressed to xpub to receiver.
func (r *Router) Register(xpub string, receiver ports.MessageReceiver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.receivers[xpub] = receiver
}

// Send delivers msg without waiting for the recipient to handle it.
func (r *Router) Send(ctx context.Context, msg domain.ProtocolMessage) error {
	if r.waiters.Resolve(msg) {
		r.logger.DebugContext(ctx, "reply routed", "protocol", msg.Protocol, "seq", msg.Seq, "to", msg.ToXpub)
		return nil
	}

	r.mu.RLock()
	receiver, ok := r.receivers[msg.ToXpub]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrUnknownRecipient, msg.ToXpub)
	}

	r.logger.DebugContext(ctx, "message routed", "protocol", msg.Protocol, "seq", msg.Seq, "to", msg.ToXpub)
	deliverCtx := context.WithoutCancel(ctx)
	r.groupMu.Lock()
	defer r.groupMu.Unlock()
	if r.group == nil {
		r.group = new(errgroup.Group)
	}
	r.group.Go(func() error {
		if err := receiver.Deliver(deliverCtx, msg); err != nil {
			r.logger.Error("delivery failed", "protocol", msg.Protocol, "seq", msg.Seq, "to", msg.ToXpub, "err", err)
			return fmt.Errorf("deliver %s seq %d to %s: %w", msg.Protocol, msg.Seq, msg.ToXpub, err)
		}
		return nil
	})
	return nil
}

// SendAndWait delivers msg and blocks until the recipient replies.
func (r *Router) SendAndWait(ctx context.Context, msg domain.ProtocolMessage) (domain.ProtocolMessage, error) {
	return r.waiters.Await(ctx, msg, func(ctx context.Context) error {
		return r.Send(ctx, msg)
	})
}

// Wait blocks until every delivery started so far has been handled, including
// deliveries those handlers started, and returns the first delivery error.
// Errors are reported once: a later Wait only sees later deliveries.
func (r *Router) Wait() error {
	var first error
	for {
		r.groupMu.Lock()
		g := r.group
		r.group = nil
		r.groupMu.Unlock()
		if g == nil {
			return first
		}
		if err := g.Wait(); err != nil && first == nil {
			first = err
		}
	}
}

// Pending returns the number of runs still waiting on a reply.
func (r *Router) Pending() int {
	return r.waiters.Len()
}
