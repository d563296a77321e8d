package domain

import "errors"

var (
	// ErrUnknownProtocol is returned when no flow is registered for a protocol name.
	ErrUnknownProtocol = errors.New("unknown protocol")

	// ErrUnknownRole is returned when a flow has no step sequence for the requested role.
	ErrUnknownRole = errors.New("unknown protocol role")

	// ErrUnexpectedSequence is returned when an inbound message's sequence does not start any role.
	ErrUnexpectedSequence = errors.New("unexpected message sequence")

	// ErrUnregisteredOperation is returned when a step needs a handler the host did not register.
	ErrUnregisteredOperation = errors.New("unregistered operation")

	// ErrMalformedOperationArguments is returned when a handler receives the wrong arity or types.
	ErrMalformedOperationArguments = errors.New("malformed operation arguments")

	// ErrAlreadySetUp is returned when setting up a multisig that already has a channel.
	ErrAlreadySetUp = errors.New("channel already set up")

	// ErrInboxMismatch is returned when a run expected exactly one reply.
	ErrInboxMismatch = errors.New("inbox mismatch")

	// ErrInvalidSignature is returned when a signature does not recover to the expected signer.
	ErrInvalidSignature = errors.New("invalid signature")

	// ErrPartyMismatch is returned when a message's sender or recipient is not the party its params name.
	ErrPartyMismatch = errors.New("message parties do not match params")

	// ErrUnknownRecipient is returned by transports with no participant for the target identity.
	ErrUnknownRecipient = errors.New("unknown recipient")

	// ErrChannelNotFound is returned when a multisig has no channel.
	ErrChannelNotFound = errors.New("channel not found")

	// ErrAppNotFound is returned when an app identity is not installed in the channel.
	ErrAppNotFound = errors.New("app instance not found")

	// ErrInsufficientFreeBalance is returned when a decrement would overdraw the free balance.
	ErrInsufficientFreeBalance = errors.New("insufficient free balance")

	// ErrExceedsLimit is returned when deposits exceed the app's terms limit.
	ErrExceedsLimit = errors.New("deposit exceeds terms limit")

	// ErrInvalidAmount is returned for negative balance changes.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrBalanceNotConserved is returned when uninstall increments do not match deposits.
	ErrBalanceNotConserved = errors.New("balance not conserved")

	// ErrInvalidAppState is returned when an app's initial state does not fit its state encoding.
	ErrInvalidAppState = errors.New("app state does not match its encoding")

	// ErrRunNotSuspended is returned when resuming a run that is not awaiting a reply.
	ErrRunNotSuspended = errors.New("run is not awaiting a reply")
)
