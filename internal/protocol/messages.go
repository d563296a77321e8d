package protocol

import (
	"fmt"

	"github.com/aretw0/chanflow/pkg/commitment"
	"github.com/aretw0/chanflow/pkg/domain"
	"github.com/aretw0/chanflow/pkg/flow"
	"github.com/aretw0/chanflow/pkg/xkeys"
)

// selfXpub is the local participant's identity for the run.
func selfXpub(msg domain.ProtocolMessage, c *flow.Context) string {
	if c.Role == RoleInitiator {
		return msg.FromXpub
	}
	return msg.ToXpub
}

// checkParties binds the params to the envelope: the sender must be the
// initiating party and the recipient the responding one. Owners derive from
// the params while signatures are checked against the envelope.
func checkParties(msg domain.ProtocolMessage, p domain.Params) error {
	initiating, responding := p.Parties()
	if msg.FromXpub != initiating {
		return fmt.Errorf("%w: sender %s is not the initiating party %s", domain.ErrPartyMismatch, msg.FromXpub, initiating)
	}
	if msg.ToXpub != responding {
		return fmt.Errorf("%w: recipient %s is not the responding party %s", domain.ErrPartyMismatch, msg.ToXpub, responding)
	}
	return nil
}

// counterparty returns the other participant's identity and the signature it
// sent over the proposal.
func counterparty(msg domain.ProtocolMessage, c *flow.Context) (string, domain.Signature, error) {
	if c.Role == RoleInitiator {
		if len(c.Inbox) != 1 {
			return "", nil, fmt.Errorf("%w: expected 1 reply, got %d", domain.ErrInboxMismatch, len(c.Inbox))
		}
		return msg.ToXpub, c.Inbox[0].Signature, nil
	}
	return msg.FromXpub, msg.Signature, nil
}

func proposal(c *flow.Context) (domain.Commitment, error) {
	if len(c.Commitments) == 0 {
		return nil, fmt.Errorf("no commitment has been proposed")
	}
	return c.Commitments[0], nil
}

func ownSignature(c *flow.Context) (domain.Signature, error) {
	sig, ok := c.LatestSignature()
	if !ok {
		return nil, fmt.Errorf("proposal has not been signed")
	}
	return sig, nil
}

func wrapProposal(msg domain.ProtocolMessage, c *flow.Context) error {
	sig, err := ownSignature(c)
	if err != nil {
		return err
	}
	c.Outbox = append(c.Outbox, domain.ProtocolMessage{
		Protocol:  msg.Protocol,
		Seq:       1,
		Params:    msg.Params,
		FromXpub:  msg.FromXpub,
		ToXpub:    msg.ToXpub,
		Signature: sig,
	})
	return nil
}

func wrapReply(msg domain.ProtocolMessage, c *flow.Context) error {
	sig, err := ownSignature(c)
	if err != nil {
		return err
	}
	c.Outbox = append(c.Outbox, domain.ProtocolMessage{
		Protocol:  msg.Protocol,
		Seq:       msg.Seq + 1,
		Params:    msg.Params,
		FromXpub:  msg.ToXpub,
		ToXpub:    msg.FromXpub,
		Signature: sig,
	})
	return nil
}

func requireSingleReply(msg domain.ProtocolMessage, c *flow.Context) error {
	if len(c.Inbox) != 1 {
		return fmt.Errorf("%w: expected 1 reply, got %d", domain.ErrInboxMismatch, len(c.Inbox))
	}
	reply := c.Inbox[0]
	if reply.Protocol != msg.Protocol || reply.Seq != 2 {
		return fmt.Errorf("%w: expected %s seq 2, got %s seq %d", domain.ErrInboxMismatch, msg.Protocol, reply.Protocol, reply.Seq)
	}
	if reply.FromXpub != msg.ToXpub || reply.ToXpub != msg.FromXpub {
		return fmt.Errorf("%w: reply from %s to %s", domain.ErrPartyMismatch, reply.FromXpub, reply.ToXpub)
	}
	return nil
}

func validateCounterpartySignature(msg domain.ProtocolMessage, c *flow.Context) error {
	xpub, sig, err := counterparty(msg, c)
	if err != nil {
		return err
	}
	expected, err := xkeys.KthAddress(xpub, 0)
	if err != nil {
		return err
	}
	proposed, err := proposal(c)
	if err != nil {
		return err
	}
	return commitment.ValidateSignature(expected, proposed, sig)
}

// finalize pairs the local signature with the counterparty's.
func finalize(msg domain.ProtocolMessage, c *flow.Context) error {
	proposed, err := proposal(c)
	if err != nil {
		return err
	}
	own, err := ownSignature(c)
	if err != nil {
		return err
	}
	theirXpub, theirSig, err := counterparty(msg, c)
	if err != nil {
		return err
	}
	owners, err := xkeys.KthAddresses(0, selfXpub(msg, c), theirXpub)
	if err != nil {
		return err
	}

	signed := domain.NewSignedCommitment(proposed, map[domain.Address]domain.Signature{
		owners[0]: own,
		owners[1]: theirSig,
	})
	c.Final = &signed
	return nil
}
