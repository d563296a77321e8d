package protocol

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/aretw0/chanflow/pkg/commitment"
	"github.com/aretw0/chanflow/pkg/domain"
	"github.com/aretw0/chanflow/pkg/flow"
	"github.com/aretw0/chanflow/pkg/schema"
	"github.com/aretw0/chanflow/pkg/xkeys"
)

func unexpectedParams(want string, got domain.Params) error {
	return fmt.Errorf("%w: expected %s params, got %T", domain.ErrMalformedOperationArguments, want, got)
}

func proposeSetup(msg domain.ProtocolMessage, c *flow.Context) error {
	p, ok := msg.Params.(domain.SetupParams)
	if !ok {
		return unexpectedParams("setup", msg.Params)
	}
	if err := checkParties(msg, p); err != nil {
		return err
	}
	if _, exists := c.Channels.Get(p.MultisigAddress); exists {
		return fmt.Errorf("%w: %s", domain.ErrAlreadySetUp, p.MultisigAddress)
	}

	owners, err := xkeys.KthAddresses(0, p.InitiatingXpub, p.RespondingXpub)
	if err != nil {
		return err
	}
	ch, err := domain.NewStateChannel(c.Network.ETHBucket, p.MultisigAddress, owners)
	if err != nil {
		return err
	}
	c.Channels.Set(ch)

	setup, err := commitment.BuildSetup(c.Network, ch)
	if err != nil {
		return err
	}
	c.Commitments = append(c.Commitments, setup)
	return nil
}

func proposeInstall(msg domain.ProtocolMessage, c *flow.Context) error {
	p, ok := msg.Params.(domain.InstallParams)
	if !ok {
		return unexpectedParams("install", msg.Params)
	}
	if err := checkParties(msg, p); err != nil {
		return err
	}
	ch, ok := c.Channels.Get(p.MultisigAddress)
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrChannelNotFound, p.MultisigAddress)
	}

	decrements, err := alignToOwners(ch, p.InitiatingXpub, p.RespondingXpub, p.InitiatorBalanceDecrement, p.ResponderBalanceDecrement)
	if err != nil {
		return err
	}

	initialState := p.InitialState
	if initialState == nil {
		initialState = map[string]any{}
	}
	if err := schema.ValidateState(p.AppInterface.StateEncoding, initialState); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrInvalidAppState, err)
	}
	state, err := json.Marshal(initialState)
	if err != nil {
		return fmt.Errorf("failed to encode initial state: %w", err)
	}

	signingKeys := p.SigningKeys
	if len(signingKeys) == 0 {
		signingKeys, err = xkeys.KthAddresses(1, p.InitiatingXpub, p.RespondingXpub)
		if err != nil {
			return err
		}
	}

	next, installed, err := ch.InstallApp(domain.AppInstance{
		SigningKeys:    domain.SortAddresses(signingKeys),
		Interface:      p.AppInterface,
		Terms:          p.Terms,
		DefaultTimeout: p.DefaultTimeout,
		State:          state,
	}, decrements)
	if err != nil {
		return err
	}
	c.Channels.Set(next)

	install, err := commitment.BuildInstall(c.Network, next, installed.IdentityHash())
	if err != nil {
		return err
	}
	c.Commitments = append(c.Commitments, install)
	return nil
}

func proposeUninstall(msg domain.ProtocolMessage, c *flow.Context) error {
	p, ok := msg.Params.(domain.UninstallParams)
	if !ok {
		return unexpectedParams("uninstall", msg.Params)
	}
	if err := checkParties(msg, p); err != nil {
		return err
	}
	ch, ok := c.Channels.Get(p.MultisigAddress)
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrChannelNotFound, p.MultisigAddress)
	}

	var increments []*big.Int
	if p.InitiatorBalanceIncrement != nil || p.ResponderBalanceIncrement != nil {
		var err error
		increments, err = alignToOwners(ch, p.InitiatingXpub, p.RespondingXpub, p.InitiatorBalanceIncrement, p.ResponderBalanceIncrement)
		if err != nil {
			return err
		}
	}

	next, removed, err := ch.UninstallApp(p.AppIdentityHash, increments)
	if err != nil {
		return err
	}
	c.Channels.Set(next)

	uninstall, err := commitment.BuildUninstall(c.Network, next, removed)
	if err != nil {
		return err
	}
	c.Commitments = append(c.Commitments, uninstall)
	return nil
}

// alignToOwners maps per-party amounts onto the channel's sorted owner order.
func alignToOwners(ch *domain.StateChannel, initiating, responding string, initiatorAmount, responderAmount *big.Int) ([]*big.Int, error) {
	initiator, err := xkeys.KthAddress(initiating, 0)
	if err != nil {
		return nil, err
	}
	responder, err := xkeys.KthAddress(responding, 0)
	if err != nil {
		return nil, err
	}

	out := make([]*big.Int, len(ch.MultisigOwners))
	for i := range out {
		out[i] = new(big.Int)
	}
	for _, party := range []struct {
		addr   domain.Address
		amount *big.Int
	}{
		{initiator, initiatorAmount},
		{responder, responderAmount},
	} {
		idx := ch.OwnerIndex(party.addr)
		if idx < 0 {
			return nil, fmt.Errorf("%s is not an owner of channel %s", party.addr, ch.MultisigAddress)
		}
		if party.amount != nil {
			out[idx] = new(big.Int).Set(party.amount)
		}
	}
	return out, nil
}
