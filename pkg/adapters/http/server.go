// Package http exposes a node over HTTP and provides the matching transport
// for reaching peers.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/aretw0/chanflow/internal/logging"
	"github.com/aretw0/chanflow/pkg/domain"
	"github.com/aretw0/chanflow/pkg/wire"
	"github.com/go-chi/chi/v5"
)

// maxMessageSize bounds the body of POST /messages.
const maxMessageSize = 1 << 20

// Node is the participant served by the handler.
type Node interface {
	Xpub() string
	Address() (domain.Address, error)
	Deliver(ctx context.Context, msg domain.ProtocolMessage) error
	Channel(ctx context.Context, multisig domain.Address) (*domain.StateChannel, error)
	Channels(ctx context.Context) (domain.ChannelMap, error)
}

// Server routes HTTP requests to a node.
type Server struct {
	node    Node
	metrics http.Handler
	logger  *slog.Logger
}

// ServerOption configures the Server.
type ServerOption func(*Server)

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetricsHandler serves h at /metrics.
func WithMetricsHandler(h http.Handler) ServerOption {
	return func(s *Server) {
		s.metrics = h
	}
}

// NewHandler creates the HTTP handler for node.
func NewHandler(node Node, opts ...ServerOption) http.Handler {
	s := &Server{node: node, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Post("/messages", s.PostMessage)
	r.Get("/channels", s.ListChannels)
	r.Get("/channels/{multisig}", s.GetChannel)
	r.Get("/identity", s.GetIdentity)
	r.Get("/health", s.GetHealth)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}
	return r
}

// PostMessage handles POST /messages. Proposals are answered before the
// response is written, so the sender learns whether the run failed.
func (s *Server) PostMessage(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxMessageSize))
	if err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		s.logger.Warn("PostMessage: unreadable body", "error", err)
		return
	}
	msg, err := wire.Decode(body)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, domain.ErrUnknownProtocol) {
			status = http.StatusUnprocessableEntity
		}
		http.Error(w, err.Error(), status)
		s.logger.Warn("PostMessage: invalid message", "error", err)
		return
	}

	if err := s.node.Deliver(r.Context(), msg); err != nil {
		http.Error(w, err.Error(), statusFor(err))
		s.logger.Error("PostMessage: delivery failed",
			"protocol", msg.Protocol,
			"seq", msg.Seq,
			"from", msg.FromXpub,
			"error", err,
		)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// ListChannels handles GET /channels.
func (s *Server) ListChannels(w http.ResponseWriter, r *http.Request) {
	channels, err := s.node.Channels(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		s.logger.Error("ListChannels failed", "error", err)
		return
	}
	s.writeJSON(w, channels)
}

// GetChannel handles GET /channels/{multisig}.
func (s *Server) GetChannel(w http.ResponseWriter, r *http.Request) {
	multisig := domain.Address(chi.URLParam(r, "multisig"))
	ch, err := s.node.Channel(r.Context(), multisig)
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	s.writeJSON(w, ch)
}

// GetIdentity handles GET /identity.
func (s *Server) GetIdentity(w http.ResponseWriter, r *http.Request) {
	addr, err := s.node.Address()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, Identity{Xpub: s.node.Xpub(), Address: addr})
}

// GetHealth handles GET /health.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, map[string]string{"status": "ok"})
}

// Identity is the body of GET /identity.
type Identity struct {
	Xpub    string         `json:"xpub"`
	Address domain.Address `json:"address"`
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("response encode failed", "error", err)
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrUnknownRecipient), errors.Is(err, domain.ErrChannelNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrAlreadySetUp):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidSignature),
		errors.Is(err, domain.ErrUnexpectedSequence),
		errors.Is(err, domain.ErrPartyMismatch),
		errors.Is(err, domain.ErrUnknownProtocol),
		errors.Is(err, domain.ErrMalformedOperationArguments),
		errors.Is(err, domain.ErrAppNotFound),
		errors.Is(err, domain.ErrInsufficientFreeBalance),
		errors.Is(err, domain.ErrExceedsLimit),
		errors.Is(err, domain.ErrBalanceNotConserved),
		errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrInvalidAppState):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
