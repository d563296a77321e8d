package registry

import (
	"context"
	"fmt"

	"github.com/aretw0/chanflow/pkg/domain"
)

// SignFunc signs a commitment with the key at keyIndex.
type SignFunc func(ctx context.Context, c domain.Commitment, keyIndex uint32) (domain.Signature, error)

// SendFunc delivers a message without waiting.
type SendFunc func(ctx context.Context, msg domain.ProtocolMessage) error

// SendAndWaitFunc delivers a message and blocks until the reply arrives.
type SendAndWaitFunc func(ctx context.Context, msg domain.ProtocolMessage) (domain.ProtocolMessage, error)

// PersistFunc acknowledges the agreed channel state.
type PersistFunc func(ctx context.Context, channels domain.ChannelMap, signed domain.SignedCommitment) error

func malformed(op domain.Opcode, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %s", domain.ErrMalformedOperationArguments, op, fmt.Sprintf(format, args...))
}

// SignHandler adapts fn to a Handler taking (commitment) or
// (commitment, keyIndex). The key index defaults to 0.
func SignHandler(fn SignFunc) Handler {
	return func(ctx context.Context, args ...any) (any, error) {
		if len(args) < 1 || len(args) > 2 {
			return nil, malformed(domain.OpSign, "want 1 or 2 arguments, got %d", len(args))
		}
		c, ok := args[0].(domain.Commitment)
		if !ok || c == nil {
			return nil, malformed(domain.OpSign, "first argument must be a commitment, got %T", args[0])
		}
		var keyIndex uint32
		if len(args) == 2 {
			switch v := args[1].(type) {
			case uint32:
				keyIndex = v
			case int:
				if v < 0 {
					return nil, malformed(domain.OpSign, "negative key index %d", v)
				}
				keyIndex = uint32(v)
			default:
				return nil, malformed(domain.OpSign, "key index must be an integer, got %T", args[1])
			}
		}
		return fn(ctx, c, keyIndex)
	}
}

func messageArg(op domain.Opcode, args []any) (domain.ProtocolMessage, error) {
	if len(args) != 1 {
		return domain.ProtocolMessage{}, malformed(op, "want 1 argument, got %d", len(args))
	}
	msg, ok := args[0].(domain.ProtocolMessage)
	if !ok {
		return domain.ProtocolMessage{}, malformed(op, "argument must be a protocol message, got %T", args[0])
	}
	return msg, nil
}

// SendHandler adapts fn to a Handler taking (message).
func SendHandler(fn SendFunc) Handler {
	return func(ctx context.Context, args ...any) (any, error) {
		msg, err := messageArg(domain.OpSend, args)
		if err != nil {
			return nil, err
		}
		return nil, fn(ctx, msg)
	}
}

// SendAndWaitHandler adapts fn to a Handler taking (message) and returning the
// reply.
func SendAndWaitHandler(fn SendAndWaitFunc) Handler {
	return func(ctx context.Context, args ...any) (any, error) {
		msg, err := messageArg(domain.OpSendAndWait, args)
		if err != nil {
			return nil, err
		}
		return fn(ctx, msg)
	}
}

// PersistHandler adapts fn to a Handler taking (channels, signed commitment).
func PersistHandler(fn PersistFunc) Handler {
	return func(ctx context.Context, args ...any) (any, error) {
		if len(args) != 2 {
			return nil, malformed(domain.OpPersist, "want 2 arguments, got %d", len(args))
		}
		channels, ok := args[0].(domain.ChannelMap)
		if !ok {
			return nil, malformed(domain.OpPersist, "first argument must be a channel map, got %T", args[0])
		}
		var signed domain.SignedCommitment
		switch v := args[1].(type) {
		case domain.SignedCommitment:
			signed = v
		case *domain.SignedCommitment:
			if v == nil {
				return nil, malformed(domain.OpPersist, "nil signed commitment")
			}
			signed = *v
		default:
			return nil, malformed(domain.OpPersist, "second argument must be a signed commitment, got %T", args[1])
		}
		return nil, fn(ctx, channels, signed)
	}
}
