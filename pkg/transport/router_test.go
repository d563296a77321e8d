package transport_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aretw0/chanflow/pkg/domain"
	"github.com/aretw0/chanflow/pkg/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	alice = "xpub-alice"
	bob   = "xpub-bob"
	carol = "xpub-carol"
)

type receiverFunc func(ctx context.Context, msg domain.ProtocolMessage) error

func (f receiverFunc) Deliver(ctx context.Context, msg domain.ProtocolMessage) error {
	return f(ctx, msg)
}

// echo replies to every message with the next sequence number.
func echo(r *transport.Router) receiverFunc {
	return func(ctx context.Context, msg domain.ProtocolMessage) error {
		return r.Send(ctx, domain.ProtocolMessage{
			Protocol: msg.Protocol,
			Seq:      msg.Seq + 1,
			FromXpub: msg.ToXpub,
			ToXpub:   msg.FromXpub,
		})
	}
}

func proposal() domain.ProtocolMessage {
	return domain.ProtocolMessage{Protocol: domain.ProtocolSetup, Seq: 1, FromXpub: alice, ToXpub: bob}
}

func TestRouter_UnknownRecipient(t *testing.T) {
	r := transport.NewRouter()
	err := r.Send(context.Background(), proposal())
	assert.ErrorIs(t, err, domain.ErrUnknownRecipient)

	_, err = r.SendAndWait(context.Background(), proposal())
	assert.ErrorIs(t, err, domain.ErrUnknownRecipient)
	assert.Zero(t, r.Pending())
}

func TestRouter_SendAndWait(t *testing.T) {
	r := transport.NewRouter()
	r.Register(bob, echo(r))

	reply, err := r.SendAndWait(context.Background(), proposal())
	require.NoError(t, err)
	assert.Equal(t, 2, reply.Seq)
	assert.Equal(t, bob, reply.FromXpub)
	assert.Equal(t, alice, reply.ToXpub)

	require.NoError(t, r.Wait())
	assert.Zero(t, r.Pending())
}

func TestRouter_ConcurrentWait(t *testing.T) {
	r := transport.NewRouter()
	silent := receiverFunc(func(context.Context, domain.ProtocolMessage) error { return nil })
	r.Register(bob, silent)
	r.Register(carol, silent)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	var firstErr error
	go func() {
		defer wg.Done()
		_, firstErr = r.SendAndWait(ctx, proposal())
	}()
	require.Eventually(t, func() bool { return r.Pending() == 1 }, time.Second, 5*time.Millisecond)

	_, err := r.SendAndWait(context.Background(), proposal())
	assert.ErrorIs(t, err, transport.ErrConcurrentWait)

	// The limit is per sender, not per pair.
	toCarol := proposal()
	toCarol.ToXpub = carol
	_, err = r.SendAndWait(context.Background(), toCarol)
	assert.ErrorIs(t, err, transport.ErrConcurrentWait)
	assert.Equal(t, 1, r.Pending())

	cancel()
	wg.Wait()
	assert.ErrorIs(t, firstErr, context.Canceled)
	assert.Zero(t, r.Pending())
}

func TestRouter_WaitersAreIndependentPerSender(t *testing.T) {
	r := transport.NewRouter()
	silent := receiverFunc(func(context.Context, domain.ProtocolMessage) error { return nil })
	r.Register(alice, silent)
	r.Register(bob, silent)
	r.Register(carol, silent)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _, _ = r.SendAndWait(ctx, proposal()) }()
	go func() {
		_, _ = r.SendAndWait(ctx, domain.ProtocolMessage{Protocol: domain.ProtocolSetup, Seq: 1, FromXpub: carol, ToXpub: alice})
	}()
	require.Eventually(t, func() bool { return r.Pending() == 2 }, time.Second, 5*time.Millisecond)
}

func TestRouter_UnrelatedMessageIsNotAReply(t *testing.T) {
	r := transport.NewRouter()
	delivered := make(chan domain.ProtocolMessage, 1)
	r.Register(alice, receiverFunc(func(_ context.Context, msg domain.ProtocolMessage) error {
		delivered <- msg
		return nil
	}))
	r.Register(bob, receiverFunc(func(context.Context, domain.ProtocolMessage) error { return nil }))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	go func() { _, _ = r.SendAndWait(ctx, proposal()) }()
	require.Eventually(t, func() bool { return r.Pending() == 1 }, time.Second, 5*time.Millisecond)

	// Bob proposes an install while alice awaits a setup reply.
	fresh := domain.ProtocolMessage{Protocol: domain.ProtocolInstall, Seq: 1, FromXpub: bob, ToXpub: alice}
	require.NoError(t, r.Send(context.Background(), fresh))

	select {
	case msg := <-delivered:
		assert.Equal(t, domain.ProtocolInstall, msg.Protocol)
	case <-time.After(time.Second):
		t.Fatal("fresh message was not delivered")
	}
	assert.Equal(t, 1, r.Pending())
}

func TestRouter_WaitReturnsDeliveryError(t *testing.T) {
	r := transport.NewRouter()
	boom := errors.New("boom")
	r.Register(bob, receiverFunc(func(context.Context, domain.ProtocolMessage) error { return boom }))
	r.Register(alice, receiverFunc(func(context.Context, domain.ProtocolMessage) error { return nil }))

	require.NoError(t, r.Send(context.Background(), proposal()))
	assert.ErrorIs(t, r.Wait(), boom)

	// The failure is reported once.
	require.NoError(t, r.Send(context.Background(), domain.ProtocolMessage{Protocol: domain.ProtocolSetup, Seq: 1, FromXpub: bob, ToXpub: alice}))
	assert.NoError(t, r.Wait())
	assert.NoError(t, r.Wait())
}

func TestRouter_WaitCoversNestedDeliveries(t *testing.T) {
	r := transport.NewRouter()
	var handled atomic.Bool
	r.Register(carol, receiverFunc(func(context.Context, domain.ProtocolMessage) error {
		handled.Store(true)
		return nil
	}))
	r.Register(bob, receiverFunc(func(ctx context.Context, msg domain.ProtocolMessage) error {
		time.Sleep(10 * time.Millisecond)
		return r.Send(ctx, domain.ProtocolMessage{Protocol: msg.Protocol, Seq: 1, FromXpub: bob, ToXpub: carol})
	}))

	require.NoError(t, r.Send(context.Background(), proposal()))
	require.NoError(t, r.Wait())
	assert.True(t, handled.Load(), "Wait returned before the forwarded delivery was handled")
}

func TestWaiters_ResolveRequiresMatchingReply(t *testing.T) {
	w := transport.NewWaiters()
	replies, cancel, err := w.Expect(proposal())
	require.NoError(t, err)
	defer cancel()

	assert.False(t, w.Resolve(domain.ProtocolMessage{Protocol: domain.ProtocolSetup, Seq: 3, FromXpub: bob, ToXpub: alice}))
	assert.False(t, w.Resolve(domain.ProtocolMessage{Protocol: domain.ProtocolSetup, Seq: 2, FromXpub: "xpub-carol", ToXpub: alice}))
	assert.True(t, w.Resolve(domain.ProtocolMessage{Protocol: domain.ProtocolSetup, Seq: 2, FromXpub: bob, ToXpub: alice}))
	assert.Equal(t, 2, (<-replies).Seq)
	assert.Zero(t, w.Len())
}
