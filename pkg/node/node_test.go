package node_test

import (
	"bytes"
	"context"
	"encoding/json"
	"math/big"
	"testing"
	"time"

	"github.com/aretw0/chanflow/pkg/adapters/file"
	"github.com/aretw0/chanflow/pkg/adapters/memory"
	"github.com/aretw0/chanflow/pkg/commitment"
	"github.com/aretw0/chanflow/pkg/domain"
	"github.com/aretw0/chanflow/pkg/node"
	"github.com/aretw0/chanflow/pkg/ports"
	"github.com/aretw0/chanflow/pkg/transport"
	"github.com/aretw0/chanflow/pkg/xkeys"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const multisigAB domain.Address = "0x00000000000000000000000000000000000000Ab"

var network = domain.NetworkContext{
	ETHBucket:               "0x0000000000000000000000000000000000000001",
	StateChannelTransaction: "0x0000000000000000000000000000000000000002",
	MultiSend:               "0x0000000000000000000000000000000000000003",
	NonceRegistry:           "0x0000000000000000000000000000000000000004",
	AppRegistry:             "0x0000000000000000000000000000000000000005",
	ETHBalanceRefund:        "0x0000000000000000000000000000000000000006",
}

func newNode(t *testing.T, router *transport.Router, seed byte, store ports.ChannelStore) *node.Node {
	t.Helper()
	keys, err := xkeys.NewKeyring(bytes.Repeat([]byte{seed}, 32))
	require.NoError(t, err)
	n, err := node.New(keys, network, store, router)
	require.NoError(t, err)
	router.Register(n.Xpub(), n)
	return n
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func channelJSON(t *testing.T, n *node.Node, multisig domain.Address) string {
	t.Helper()
	ch, err := n.Channel(context.Background(), multisig)
	require.NoError(t, err)
	data, err := json.Marshal(ch)
	require.NoError(t, err)
	return string(data)
}

func TestNodes_SetupInstallUninstall(t *testing.T) {
	ctx := testContext(t)
	router := transport.NewRouter()
	a := newNode(t, router, 1, memory.NewStore())
	b := newNode(t, router, 2, memory.NewStore())
	c := newNode(t, router, 3, file.New(t.TempDir()))

	// A and B open a channel.
	ch, err := a.Setup(ctx, b.Xpub(), multisigAB)
	require.NoError(t, err)
	require.NoError(t, router.Wait())
	assert.Len(t, ch.AppInstances, 1)
	assert.Equal(t, channelJSON(t, a, multisigAB), channelJSON(t, b, multisigAB))

	aAddr, err := a.Address()
	require.NoError(t, err)
	bAddr, err := b.Address()
	require.NoError(t, err)
	assert.ElementsMatch(t, []domain.Address{aAddr, bAddr}, ch.MultisigOwners)

	fbBefore, err := ch.FreeBalanceFor(domain.AssetETH)
	require.NoError(t, err)

	// A installs an app.
	installed, app, err := a.Install(ctx, domain.InstallParams{
		RespondingXpub:            b.Xpub(),
		MultisigAddress:           multisigAB,
		InitiatorBalanceDecrement: big.NewInt(0),
		ResponderBalanceDecrement: big.NewInt(0),
		InitialState:              map[string]any{"counter": 0},
		Terms:                     domain.Terms{AssetType: domain.AssetETH, Limit: big.NewInt(10), Token: domain.AddressZero},
		AppInterface: domain.AppInterface{
			Addr:           "0x00000000000000000000000000000000000000cc",
			StateEncoding:  "tuple(uint256 counter)",
			ActionEncoding: "tuple(uint256 increment)",
		},
		DefaultTimeout: 40,
	})
	require.NoError(t, err)
	require.NoError(t, router.Wait())
	assert.Len(t, installed.AppInstances, 2)
	assert.Equal(t, uint64(1), app.AppSeqNo)
	assert.Len(t, app.SigningKeys, 2)
	assert.Equal(t, channelJSON(t, a, multisigAB), channelJSON(t, b, multisigAB))

	onB, err := b.Channel(ctx, multisigAB)
	require.NoError(t, err)
	_, ok := onB.App(app.IdentityHash())
	assert.True(t, ok, "responder must hold the same app instance")

	// A uninstalls it again.
	uninstalled, err := a.Uninstall(ctx, domain.UninstallParams{
		RespondingXpub:  b.Xpub(),
		MultisigAddress: multisigAB,
		AppIdentityHash: app.IdentityHash(),
	})
	require.NoError(t, err)
	require.NoError(t, router.Wait())
	assert.Len(t, uninstalled.AppInstances, 1)
	assert.Equal(t, channelJSON(t, a, multisigAB), channelJSON(t, b, multisigAB))

	fbAfter, err := uninstalled.FreeBalanceFor(domain.AssetETH)
	require.NoError(t, err)
	assert.JSONEq(t, string(fbBefore.State), string(fbAfter.State))
	assert.Equal(t, fbBefore.VersionNumber+2, fbAfter.VersionNumber)

	// B opens a second channel with C at the placeholder multisig.
	_, err = b.Setup(ctx, c.Xpub(), domain.AddressZero)
	require.NoError(t, err)
	require.NoError(t, router.Wait())

	bChannels, err := b.Channels(ctx)
	require.NoError(t, err)
	assert.Len(t, bChannels, 2)

	cChannels, err := c.Channels(ctx)
	require.NoError(t, err)
	assert.Len(t, cChannels, 1)
	_, ok = cChannels.Get(domain.AddressZero)
	assert.True(t, ok)

	aChannels, err := a.Channels(ctx)
	require.NoError(t, err)
	assert.Len(t, aChannels, 1)

	assert.Zero(t, router.Pending())
}

func TestNode_DuplicateSetupFailsLocally(t *testing.T) {
	ctx := testContext(t)
	router := transport.NewRouter()
	a := newNode(t, router, 1, memory.NewStore())
	b := newNode(t, router, 2, memory.NewStore())

	_, err := a.Setup(ctx, b.Xpub(), multisigAB)
	require.NoError(t, err)
	require.NoError(t, router.Wait())
	before := channelJSON(t, a, multisigAB)

	_, err = a.Setup(ctx, b.Xpub(), multisigAB)
	assert.ErrorIs(t, err, domain.ErrAlreadySetUp)
	assert.Equal(t, before, channelJSON(t, a, multisigAB))
	assert.Zero(t, router.Pending())
}

func TestNode_UnknownCounterparty(t *testing.T) {
	ctx := testContext(t)
	router := transport.NewRouter()
	a := newNode(t, router, 1, memory.NewStore())

	stranger, err := xkeys.NewKeyring(bytes.Repeat([]byte{9}, 32))
	require.NoError(t, err)

	_, err = a.Setup(ctx, stranger.Xpub(), multisigAB)
	assert.ErrorIs(t, err, domain.ErrUnknownRecipient)

	_, err = a.Channel(ctx, multisigAB)
	assert.ErrorIs(t, err, domain.ErrChannelNotFound, "nothing is persisted when the run aborts")
}

func TestNode_InstallWithoutChannel(t *testing.T) {
	ctx := testContext(t)
	router := transport.NewRouter()
	a := newNode(t, router, 1, memory.NewStore())
	b := newNode(t, router, 2, memory.NewStore())

	_, _, err := a.Install(ctx, domain.InstallParams{
		RespondingXpub:  b.Xpub(),
		MultisigAddress: multisigAB,
	})
	assert.ErrorIs(t, err, domain.ErrChannelNotFound)
}

func TestNode_DeliverRejectsForeignRecipient(t *testing.T) {
	router := transport.NewRouter()
	a := newNode(t, router, 1, memory.NewStore())

	err := a.Deliver(context.Background(), domain.ProtocolMessage{
		Protocol: domain.ProtocolSetup,
		Seq:      1,
		ToXpub:   "xpub-someone-else",
		Params:   domain.SetupParams{MultisigAddress: multisigAB},
	})
	assert.ErrorIs(t, err, domain.ErrUnknownRecipient)
}

func TestNode_DeliverResolvesWaiters(t *testing.T) {
	router := transport.NewRouter()
	waiters := transport.NewWaiters()
	keys, err := xkeys.NewKeyring(bytes.Repeat([]byte{1}, 32))
	require.NoError(t, err)
	n, err := node.New(keys, network, memory.NewStore(), router, node.WithWaiters(waiters))
	require.NoError(t, err)

	out := domain.ProtocolMessage{Protocol: domain.ProtocolSetup, Seq: 1, FromXpub: n.Xpub(), ToXpub: "xpub-peer"}
	replies, cancel, err := waiters.Expect(out)
	require.NoError(t, err)
	defer cancel()

	reply := domain.ProtocolMessage{Protocol: domain.ProtocolSetup, Seq: 2, FromXpub: "xpub-peer", ToXpub: n.Xpub()}
	require.NoError(t, n.Deliver(context.Background(), reply))
	assert.Equal(t, reply, <-replies)
}

func TestNode_DeliverRejectsSeqZero(t *testing.T) {
	ctx := testContext(t)
	router := transport.NewRouter()
	b := newNode(t, router, 2, memory.NewStore())
	mallory, err := xkeys.NewKeyring(bytes.Repeat([]byte{9}, 32))
	require.NoError(t, err)

	msg := domain.ProtocolMessage{
		Protocol: domain.ProtocolSetup,
		Seq:      0,
		FromXpub: mallory.Xpub(),
		ToXpub:   b.Xpub(),
		Params: domain.SetupParams{
			InitiatingXpub:  b.Xpub(),
			RespondingXpub:  mallory.Xpub(),
			MultisigAddress: multisigAB,
		},
	}
	err = b.Deliver(ctx, msg)
	assert.ErrorIs(t, err, domain.ErrUnexpectedSequence)

	// Through the router the delivery fails instead of blocking Wait.
	require.NoError(t, router.Send(ctx, msg))
	assert.ErrorIs(t, router.Wait(), domain.ErrUnexpectedSequence)
	assert.Zero(t, router.Pending())

	_, err = b.Channel(ctx, multisigAB)
	assert.ErrorIs(t, err, domain.ErrChannelNotFound)
}

func TestNode_DeliverRejectsSetupForAnotherInitiator(t *testing.T) {
	ctx := testContext(t)
	router := transport.NewRouter()
	b := newNode(t, router, 2, memory.NewStore())
	c := newNode(t, router, 3, memory.NewStore())
	mallory, err := xkeys.NewKeyring(bytes.Repeat([]byte{9}, 32))
	require.NoError(t, err)

	// Mallory signs a setup naming c as initiator.
	owners, err := xkeys.KthAddresses(0, c.Xpub(), b.Xpub())
	require.NoError(t, err)
	ch, err := domain.NewStateChannel(network.ETHBucket, multisigAB, owners)
	require.NoError(t, err)
	setup, err := commitment.BuildSetup(network, ch)
	require.NoError(t, err)
	sig, err := mallory.Sign(setup, 0, false)
	require.NoError(t, err)

	err = b.Deliver(ctx, domain.ProtocolMessage{
		Protocol: domain.ProtocolSetup,
		Seq:      1,
		FromXpub: mallory.Xpub(),
		ToXpub:   b.Xpub(),
		Params: domain.SetupParams{
			InitiatingXpub:  c.Xpub(),
			RespondingXpub:  b.Xpub(),
			MultisigAddress: multisigAB,
		},
		Signature: sig,
	})
	assert.ErrorIs(t, err, domain.ErrPartyMismatch)
	require.NoError(t, router.Wait())

	_, err = b.Channel(ctx, multisigAB)
	assert.ErrorIs(t, err, domain.ErrChannelNotFound)
}

func TestNode_InstallRefusesForeignInitiator(t *testing.T) {
	ctx := testContext(t)
	router := transport.NewRouter()
	a := newNode(t, router, 1, memory.NewStore())
	b := newNode(t, router, 2, memory.NewStore())
	_, err := a.Setup(ctx, b.Xpub(), multisigAB)
	require.NoError(t, err)
	require.NoError(t, router.Wait())

	_, _, err = a.Install(ctx, domain.InstallParams{
		InitiatingXpub:  b.Xpub(),
		RespondingXpub:  a.Xpub(),
		MultisigAddress: multisigAB,
	})
	assert.ErrorIs(t, err, domain.ErrPartyMismatch)

	_, err = a.Uninstall(ctx, domain.UninstallParams{
		InitiatingXpub:  b.Xpub(),
		RespondingXpub:  a.Xpub(),
		MultisigAddress: multisigAB,
	})
	assert.ErrorIs(t, err, domain.ErrPartyMismatch)
}

type countingSigner struct {
	keys  *xkeys.Keyring
	calls int
}

func (s *countingSigner) SignDigest(_ context.Context, digest domain.Digest, keyIndex uint32) (domain.Signature, error) {
	s.calls++
	return s.keys.SignDigest(digest, keyIndex)
}

func TestNewWithSigner(t *testing.T) {
	ctx := testContext(t)
	router := transport.NewRouter()

	keys, err := xkeys.NewKeyring(bytes.Repeat([]byte{7}, 32))
	require.NoError(t, err)
	signer := &countingSigner{keys: keys}
	a, err := node.NewWithSigner(keys.Xpub(), signer, network, memory.NewStore(), router)
	require.NoError(t, err)
	router.Register(a.Xpub(), a)
	b := newNode(t, router, 8, memory.NewStore())

	_, err = a.Setup(ctx, b.Xpub(), multisigAB)
	require.NoError(t, err)
	require.NoError(t, router.Wait())
	assert.Equal(t, 1, signer.calls)

	_, err = node.NewWithSigner("xpub-bogus", signer, network, memory.NewStore(), router)
	assert.Error(t, err)
	_, err = node.NewWithSigner(keys.Xpub(), nil, network, memory.NewStore(), router)
	assert.Error(t, err)
}
