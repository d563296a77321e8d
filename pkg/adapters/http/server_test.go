package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	httpadapter "github.com/aretw0/chanflow/pkg/adapters/http"
	"github.com/aretw0/chanflow/pkg/adapters/memory"
	"github.com/aretw0/chanflow/pkg/domain"
	"github.com/aretw0/chanflow/pkg/node"
	"github.com/aretw0/chanflow/pkg/transport"
	"github.com/aretw0/chanflow/pkg/xkeys"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const multisig domain.Address = "0x00000000000000000000000000000000000000ab"

type peer struct {
	node      *node.Node
	transport *httpadapter.Transport
	server    *httptest.Server
}

func newPeer(t *testing.T, seed byte) *peer {
	t.Helper()
	keys, err := xkeys.NewKeyring(bytes.Repeat([]byte{seed}, 32))
	require.NoError(t, err)

	waiters := transport.NewWaiters()
	tr := httpadapter.NewTransport(nil, waiters)
	n, err := node.New(keys, domain.NetworkContext{ETHBucket: "0x0000000000000000000000000000000000000001"},
		memory.NewStore(), tr, node.WithWaiters(waiters))
	require.NoError(t, err)

	srv := httptest.NewServer(httpadapter.NewHandler(n, httpadapter.WithMetricsHandler(promhttp.Handler())))
	t.Cleanup(srv.Close)
	return &peer{node: n, transport: tr, server: srv}
}

func connect(a, b *peer) {
	a.transport.AddPeer(b.node.Xpub(), b.server.URL)
	b.transport.AddPeer(a.node.Xpub(), a.server.URL+"/")
}

func TestHTTP_SetupOverTheWire(t *testing.T) {
	a, b := newPeer(t, 1), newPeer(t, 2)
	connect(a, b)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	ch, err := a.node.Setup(ctx, b.node.Xpub(), multisig)
	require.NoError(t, err)

	resp, err := http.Get(b.server.URL + "/channels/" + string(multisig))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var onB domain.StateChannel
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&onB))
	assert.Equal(t, ch.MultisigOwners, onB.MultisigOwners)
	assert.Equal(t, ch.FreeBalanceAppIndexes, onB.FreeBalanceAppIndexes)

	// A second setup is refused by the initiator before anything is sent.
	_, err = a.node.Setup(ctx, b.node.Xpub(), multisig)
	assert.ErrorIs(t, err, domain.ErrAlreadySetUp)
}

func TestHTTP_ListChannelsAndIdentity(t *testing.T) {
	a, b := newPeer(t, 1), newPeer(t, 2)
	connect(a, b)
	ctx := context.Background()

	_, err := a.node.Setup(ctx, b.node.Xpub(), multisig)
	require.NoError(t, err)

	resp, err := http.Get(a.server.URL + "/channels")
	require.NoError(t, err)
	defer resp.Body.Close()
	var channels map[domain.Address]*domain.StateChannel
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&channels))
	assert.Contains(t, channels, multisig)

	resp, err = http.Get(a.server.URL + "/identity")
	require.NoError(t, err)
	defer resp.Body.Close()
	var id httpadapter.Identity
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&id))
	addr, err := a.node.Address()
	require.NoError(t, err)
	assert.Equal(t, a.node.Xpub(), id.Xpub)
	assert.Equal(t, addr, id.Address)
}

func TestHTTP_PostMessageErrors(t *testing.T) {
	a := newPeer(t, 1)

	tests := []struct {
		name string
		body string
		want int
	}{
		{name: "Invalid JSON", body: `{`, want: http.StatusBadRequest},
		{name: "Unknown Protocol", body: `{"protocol":"withdraw","params":{}}`, want: http.StatusUnprocessableEntity},
		{
			name: "Wrong Recipient",
			body: `{"protocol":"setup","seq":1,"toXpub":"xpub-nobody","params":{"multisigAddress":"0x00000000000000000000000000000000000000ab"}}`,
			want: http.StatusNotFound,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(a.server.URL+"/messages", "application/json", strings.NewReader(tt.body))
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestHTTP_ChannelNotFound(t *testing.T) {
	a := newPeer(t, 1)
	resp, err := http.Get(a.server.URL + "/channels/" + string(multisig))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHTTP_HealthAndMetrics(t *testing.T) {
	a := newPeer(t, 1)
	for _, path := range []string{"/health", "/metrics"} {
		resp, err := http.Get(a.server.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}
}

func TestTransport_UnknownPeer(t *testing.T) {
	tr := httpadapter.NewTransport(nil, transport.NewWaiters())
	err := tr.Send(context.Background(), domain.ProtocolMessage{Protocol: domain.ProtocolSetup, ToXpub: "xpub-nobody"})
	assert.ErrorIs(t, err, domain.ErrUnknownRecipient)
}
