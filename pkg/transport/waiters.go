// Package transport provides the pending-reply table shared by transports and
// an in-memory router that connects participants living in one process.
package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/aretw0/chanflow/pkg/domain"
)

// ErrConcurrentWait is returned when a participant already waits on a reply.
var ErrConcurrentWait = errors.New("a reply is already awaited by this participant")

type waiter struct {
	peer     string
	protocol domain.Protocol
	seq      int
	reply    chan domain.ProtocolMessage
}

// Waiters matches inbound replies to the runs blocked on them.
// Each participant has at most one outstanding wait, keyed by its xpub.
// A reply is the message from the awaited peer, for the same protocol, whose
// sequence follows the one sent. Safe for concurrent use.
type Waiters struct {
	mu      sync.Mutex
	pending map[string]*waiter
}

// NewWaiters creates an empty table.
func NewWaiters() *Waiters {
	return &Waiters{pending: make(map[string]*waiter)}
}

// Expect registers a wait for the reply to out. The returned cancel func must
// be called once the wait ends, whether or not a reply arrived.
func (w *Waiters) Expect(out domain.ProtocolMessage) (<-chan domain.ProtocolMessage, func(), error) {
	key := out.FromXpub

	w.mu.Lock()
	defer w.mu.Unlock()
	if busy, ok := w.pending[key]; ok {
		return nil, nil, fmt.Errorf("%w: %s waits on %s", ErrConcurrentWait, key, busy.peer)
	}
	entry := &waiter{
		peer:     out.ToXpub,
		protocol: out.Protocol,
		seq:      out.Seq + 1,
		reply:    make(chan domain.ProtocolMessage, 1),
	}
	w.pending[key] = entry

	cancel := func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		if w.pending[key] == entry {
			delete(w.pending, key)
		}
	}
	return entry.reply, cancel, nil
}

// Resolve hands msg to the run waiting on it and reports whether one was.
func (w *Waiters) Resolve(msg domain.ProtocolMessage) bool {
	key := msg.ToXpub

	w.mu.Lock()
	defer w.mu.Unlock()
	entry, ok := w.pending[key]
	if !ok || entry.peer != msg.FromXpub || entry.protocol != msg.Protocol || entry.seq != msg.Seq {
		return false
	}
	delete(w.pending, key)
	entry.reply <- msg
	return true
}

// Len returns the number of outstanding waits.
func (w *Waiters) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}

// Await registers a wait for the reply to out, calls send, and blocks until
// the reply arrives or ctx is done.
func (w *Waiters) Await(ctx context.Context, out domain.ProtocolMessage, send func(context.Context) error) (domain.ProtocolMessage, error) {
	replies, cancel, err := w.Expect(out)
	if err != nil {
		return domain.ProtocolMessage{}, err
	}
	defer cancel()

	if err := send(ctx); err != nil {
		return domain.ProtocolMessage{}, err
	}

	select {
	case reply := <-replies:
		return reply, nil
	case <-ctx.Done():
		return domain.ProtocolMessage{}, fmt.Errorf("waiting for reply from %s: %w", out.ToXpub, ctx.Err())
	}
}
