package ports

import (
	"context"

	"github.com/aretw0/chanflow/pkg/domain"
)

// Transport delivers protocol messages to the participant named by ToXpub.
type Transport interface {
	// Send delivers msg without waiting for a reply.
	Send(ctx context.Context, msg domain.ProtocolMessage) error

	// SendAndWait delivers msg and blocks until the recipient replies.
	// At most one wait per counterparty may be outstanding.
	SendAndWait(ctx context.Context, msg domain.ProtocolMessage) (domain.ProtocolMessage, error)
}

// MessageReceiver is a participant able to accept inbound messages.
type MessageReceiver interface {
	Deliver(ctx context.Context, msg domain.ProtocolMessage) error
}
