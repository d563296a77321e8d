package domain

import (
	"fmt"
	"math/big"
	"slices"
)

// StateChannel is one multisig wallet shared by exactly two owners.
//
// Methods never mutate the receiver: InstallApp and UninstallApp return a new
// channel so that a failed protocol run cannot leave a half-applied update.
type StateChannel struct {
	MultisigAddress           Address                `json:"multisigAddress"`
	MultisigOwners            []Address              `json:"multisigOwners"`
	AppInstances              map[Digest]AppInstance `json:"appInstances"`
	FreeBalanceAppIndexes     map[AssetType]Digest   `json:"freeBalanceAppIndexes"`
	MonotonicNumInstalledApps uint64                 `json:"monotonicNumInstalledApps"`
}

// NewStateChannel creates a channel with a zero ETH free balance.
// Owners are sorted; exactly two are required.
func NewStateChannel(bucket Address, multisig Address, owners []Address) (*StateChannel, error) {
	if len(owners) != 2 {
		return nil, fmt.Errorf("a channel requires exactly 2 owners, got %d", len(owners))
	}
	if owners[0].Equal(owners[1]) {
		return nil, fmt.Errorf("channel owners must be distinct: %s", owners[0])
	}
	sorted := SortAddresses(owners)

	fb, err := NewFreeBalanceApp(multisig, sorted, bucket)
	if err != nil {
		return nil, err
	}
	id := fb.IdentityHash()

	return &StateChannel{
		MultisigAddress:           multisig,
		MultisigOwners:            sorted,
		AppInstances:              map[Digest]AppInstance{id: fb},
		FreeBalanceAppIndexes:     map[AssetType]Digest{AssetETH: id},
		MonotonicNumInstalledApps: 1,
	}, nil
}

// Clone deep-copies the channel.
func (c *StateChannel) Clone() *StateChannel {
	if c == nil {
		return nil
	}
	out := &StateChannel{
		MultisigAddress:           c.MultisigAddress,
		MultisigOwners:            slices.Clone(c.MultisigOwners),
		AppInstances:              make(map[Digest]AppInstance, len(c.AppInstances)),
		FreeBalanceAppIndexes:     make(map[AssetType]Digest, len(c.FreeBalanceAppIndexes)),
		MonotonicNumInstalledApps: c.MonotonicNumInstalledApps,
	}
	for id, app := range c.AppInstances {
		out.AppInstances[id] = app.Clone()
	}
	for asset, id := range c.FreeBalanceAppIndexes {
		out.FreeBalanceAppIndexes[asset] = id
	}
	return out
}

// App returns the app instance with the given identity.
func (c *StateChannel) App(id Digest) (AppInstance, bool) {
	app, ok := c.AppInstances[id]
	return app, ok
}

// FreeBalanceFor returns the reserved free-balance app for an asset type.
func (c *StateChannel) FreeBalanceFor(asset AssetType) (AppInstance, error) {
	id, ok := c.FreeBalanceAppIndexes[asset]
	if !ok {
		return AppInstance{}, fmt.Errorf("%w: no %s free balance in channel %s", ErrAppNotFound, asset, c.MultisigAddress)
	}
	app, ok := c.AppInstances[id]
	if !ok {
		return AppInstance{}, fmt.Errorf("%w: free balance %s missing from channel %s", ErrAppNotFound, id, c.MultisigAddress)
	}
	return app, nil
}

// IsFreeBalance reports whether id is one of the reserved free-balance apps.
func (c *StateChannel) IsFreeBalance(id Digest) bool {
	for _, fb := range c.FreeBalanceAppIndexes {
		if fb == id {
			return true
		}
	}
	return false
}

// OwnerIndex returns the position of addr in MultisigOwners, or -1.
func (c *StateChannel) OwnerIndex(addr Address) int {
	return slices.IndexFunc(c.MultisigOwners, addr.Equal)
}

// InstallApp adds app to a copy of the channel, moving decrements (aligned with
// MultisigOwners) out of the matching free balance. The installed app gets the
// next sequence number and version 0.
func (c *StateChannel) InstallApp(app AppInstance, decrements []*big.Int) (*StateChannel, AppInstance, error) {
	if len(decrements) != len(c.MultisigOwners) {
		return nil, AppInstance{}, fmt.Errorf("expected %d decrements, got %d", len(c.MultisigOwners), len(decrements))
	}
	total := new(big.Int)
	for _, d := range decrements {
		if d != nil && d.Sign() < 0 {
			return nil, AppInstance{}, fmt.Errorf("%w: negative decrement %s", ErrInvalidAmount, d)
		}
		total.Add(total, orZero(d))
	}
	if app.Terms.Limit != nil && total.Cmp(app.Terms.Limit) > 0 {
		return nil, AppInstance{}, fmt.Errorf("%w: deposits %s exceed limit %s", ErrExceedsLimit, total, app.Terms.Limit)
	}

	next := c.Clone()
	fbApp, err := next.FreeBalanceFor(app.Terms.AssetType)
	if err != nil {
		return nil, AppInstance{}, err
	}
	fbState, err := fbApp.FreeBalance()
	if err != nil {
		return nil, AppInstance{}, err
	}
	fbState, err = fbState.Adjust(negate(decrements[0]), negate(decrements[1]))
	if err != nil {
		return nil, AppInstance{}, err
	}
	fbApp, err = fbApp.WithFreeBalance(fbState)
	if err != nil {
		return nil, AppInstance{}, err
	}

	installed := app.Clone()
	installed.MultisigAddress = c.MultisigAddress
	installed.Owners = slices.Clone(c.MultisigOwners)
	installed.AppSeqNo = next.MonotonicNumInstalledApps
	installed.VersionNumber = 0
	installed.Deposits = make([]*big.Int, len(decrements))
	for i, d := range decrements {
		installed.Deposits[i] = new(big.Int).Set(orZero(d))
	}

	id := installed.IdentityHash()
	if _, exists := next.AppInstances[id]; exists {
		return nil, AppInstance{}, fmt.Errorf("app %s already installed in channel %s", id, c.MultisigAddress)
	}
	next.AppInstances[fbApp.IdentityHash()] = fbApp
	next.AppInstances[id] = installed
	next.MonotonicNumInstalledApps++
	return next, installed, nil
}

// UninstallApp removes the app from a copy of the channel and credits the free
// balance. When increments is nil the recorded deposits are returned; otherwise
// increments (aligned with MultisigOwners) must sum to the deposit total.
func (c *StateChannel) UninstallApp(id Digest, increments []*big.Int) (*StateChannel, AppInstance, error) {
	app, ok := c.AppInstances[id]
	if !ok {
		return nil, AppInstance{}, fmt.Errorf("%w: %s in channel %s", ErrAppNotFound, id, c.MultisigAddress)
	}
	if c.IsFreeBalance(id) {
		return nil, AppInstance{}, fmt.Errorf("cannot uninstall free balance app %s", id)
	}

	deposited := new(big.Int)
	for _, d := range app.Deposits {
		deposited.Add(deposited, orZero(d))
	}
	if increments == nil {
		increments = app.Deposits
	}
	if len(increments) != len(c.MultisigOwners) {
		return nil, AppInstance{}, fmt.Errorf("expected %d increments, got %d", len(c.MultisigOwners), len(increments))
	}
	total := new(big.Int)
	for _, inc := range increments {
		if inc != nil && inc.Sign() < 0 {
			return nil, AppInstance{}, fmt.Errorf("%w: negative increment %s", ErrInvalidAmount, inc)
		}
		total.Add(total, orZero(inc))
	}
	if total.Cmp(deposited) != 0 {
		return nil, AppInstance{}, fmt.Errorf("%w: increments %s, deposits %s", ErrBalanceNotConserved, total, deposited)
	}

	next := c.Clone()
	fbApp, err := next.FreeBalanceFor(app.Terms.AssetType)
	if err != nil {
		return nil, AppInstance{}, err
	}
	fbState, err := fbApp.FreeBalance()
	if err != nil {
		return nil, AppInstance{}, err
	}
	fbState, err = fbState.Adjust(increments[0], increments[1])
	if err != nil {
		return nil, AppInstance{}, err
	}
	fbApp, err = fbApp.WithFreeBalance(fbState)
	if err != nil {
		return nil, AppInstance{}, err
	}

	next.AppInstances[fbApp.IdentityHash()] = fbApp
	delete(next.AppInstances, id)
	return next, app.Clone(), nil
}

func negate(v *big.Int) *big.Int {
	return new(big.Int).Neg(orZero(v))
}

// ChannelMap holds channels keyed by canonical multisig address.
type ChannelMap map[Address]*StateChannel

// Get looks up a channel regardless of address case.
func (m ChannelMap) Get(multisig Address) (*StateChannel, bool) {
	ch, ok := m[multisig.Canonical()]
	return ch, ok
}

// Set stores ch under its canonical multisig address.
func (m ChannelMap) Set(ch *StateChannel) {
	m[ch.MultisigAddress.Canonical()] = ch
}

// Clone deep-copies every channel.
func (m ChannelMap) Clone() ChannelMap {
	out := make(ChannelMap, len(m))
	for k, ch := range m {
		out[k] = ch.Clone()
	}
	return out
}
