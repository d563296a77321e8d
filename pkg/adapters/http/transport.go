package http

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/chanflow/internal/logging"
	"github.com/aretw0/chanflow/pkg/domain"
	"github.com/aretw0/chanflow/pkg/transport"
	"github.com/aretw0/chanflow/pkg/wire"
)

// Transport implements ports.Transport by posting messages to peers' servers.
// Replies arrive through the local server, so the node must share waiters
// with the transport.
type Transport struct {
	mu      sync.RWMutex
	peers   map[string]string
	client  *http.Client
	waiters *transport.Waiters
	logger  *slog.Logger
}

// TransportOption configures the Transport.
type TransportOption func(*Transport)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) TransportOption {
	return func(t *Transport) {
		if c != nil {
			t.client = c
		}
	}
}

// WithTransportLogger sets the transport logger.
func WithTransportLogger(logger *slog.Logger) TransportOption {
	return func(t *Transport) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// NewTransport creates a transport reaching peers, a map from xpub to base URL.
func NewTransport(peers map[string]string, waiters *transport.Waiters, opts ...TransportOption) *Transport {
	t := &Transport{
		peers:   make(map[string]string, len(peers)),
		client:  &http.Client{Timeout: 30 * time.Second},
		waiters: waiters,
		logger:  logging.NewNop(),
	}
	for xpub, url := range peers {
		t.peers[xpub] = strings.TrimRight(url, "/")
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// AddPeer registers or replaces the URL for xpub.
func (t *Transport) AddPeer(xpub, url string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.peers[xpub] = strings.TrimRight(url, "/")
}

// Send posts msg to the recipient's /messages endpoint.
func (t *Transport) Send(ctx context.Context, msg domain.ProtocolMessage) error {
	t.mu.RLock()
	base, ok := t.peers[msg.ToXpub]
	t.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrUnknownRecipient, msg.ToXpub)
	}

	body, err := wire.Encode(msg)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/messages", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to post %s seq %d to %s: %w", msg.Protocol, msg.Seq, base, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("peer %s rejected %s seq %d: %s: %s", base, msg.Protocol, msg.Seq, resp.Status, strings.TrimSpace(string(detail)))
	}
	t.logger.DebugContext(ctx, "message posted", "protocol", msg.Protocol, "seq", msg.Seq, "peer", base)
	return nil
}

// SendAndWait posts msg and blocks until the reply is delivered to the local
// server.
func (t *Transport) SendAndWait(ctx context.Context, msg domain.ProtocolMessage) (domain.ProtocolMessage, error) {
	return t.waiters.Await(ctx, msg, func(ctx context.Context) error {
		return t.Send(ctx, msg)
	})
}
