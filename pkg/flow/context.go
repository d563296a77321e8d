package flow

import (
	"github.com/aretw0/chanflow/pkg/domain"
)

// Context is the mutable state of one run. It is owned by that run and is never
// shared. Channels is a staged deep copy of the caller's channel map.
type Context struct {
	RunID    string
	Protocol domain.Protocol
	Role     int
	Network  domain.NetworkContext

	Channels    domain.ChannelMap
	Commitments []domain.Commitment
	Signatures  []domain.Signature
	Inbox       []domain.ProtocolMessage
	Outbox      []domain.ProtocolMessage
	Final       *domain.SignedCommitment
}

// NewContext stages a deep copy of channels for a new run.
func NewContext(runID string, protocol domain.Protocol, role int, network domain.NetworkContext, channels domain.ChannelMap) *Context {
	staged := channels.Clone()
	if staged == nil {
		staged = domain.ChannelMap{}
	}
	return &Context{
		RunID:    runID,
		Protocol: protocol,
		Role:     role,
		Network:  network,
		Channels: staged,
	}
}

// LatestCommitment returns the most recently built commitment.
func (c *Context) LatestCommitment() (domain.Commitment, bool) {
	if len(c.Commitments) == 0 {
		return nil, false
	}
	return c.Commitments[len(c.Commitments)-1], true
}

// LatestSignature returns the most recent result of a sign operation.
func (c *Context) LatestSignature() (domain.Signature, bool) {
	if len(c.Signatures) == 0 {
		return nil, false
	}
	return c.Signatures[len(c.Signatures)-1], true
}

// LatestOutbound returns the most recently queued outbound message.
func (c *Context) LatestOutbound() (domain.ProtocolMessage, bool) {
	if len(c.Outbox) == 0 {
		return domain.ProtocolMessage{}, false
	}
	return c.Outbox[len(c.Outbox)-1], true
}
