package domain

import (
	"encoding/json"
	"fmt"
	"math/big"
	"slices"

	"github.com/aretw0/chanflow/pkg/hashing"
)

// AssetType identifies the kind of asset an app or free balance tracks.
type AssetType uint8

const (
	AssetETH AssetType = iota
	AssetERC20
	AssetAny
)

func (a AssetType) String() string {
	switch a {
	case AssetETH:
		return "ETH"
	case AssetERC20:
		return "ERC20"
	case AssetAny:
		return "ANY"
	default:
		return fmt.Sprintf("AssetType(%d)", uint8(a))
	}
}

// Terms bound what an app instance may move out of the free balance.
type Terms struct {
	AssetType AssetType `json:"assetType" mapstructure:"assetType"`
	Limit     *big.Int  `json:"limit" mapstructure:"limit"`
	Token     Address   `json:"token" mapstructure:"token"`
}

// Hash returns the packed keccak256 of the terms.
func (t Terms) Hash() Digest {
	return hashing.NewPacker().
		Byte(byte(t.AssetType)).
		Uint256(t.Limit).
		Address(string(t.Token)).
		Sum()
}

func (t Terms) clone() Terms {
	out := t
	out.Limit = cloneInt(t.Limit)
	return out
}

// AppInterface describes the app-definition contract and how its state and
// actions are encoded.
type AppInterface struct {
	Addr           Address `json:"addr" mapstructure:"addr"`
	StateEncoding  string  `json:"stateEncoding" mapstructure:"stateEncoding"`
	ActionEncoding string  `json:"actionEncoding,omitempty" mapstructure:"actionEncoding"`
}

// AppInstance is one off-chain app installed in a channel.
// It is a value type; updates go through methods returning a modified copy.
type AppInstance struct {
	MultisigAddress Address         `json:"multisigAddress"`
	Owners          []Address       `json:"owners"`
	SigningKeys     []Address       `json:"signingKeys,omitempty"`
	Interface       AppInterface    `json:"appInterface"`
	Terms           Terms           `json:"terms"`
	DefaultTimeout  uint64          `json:"defaultTimeout"`
	AppSeqNo        uint64          `json:"appSeqNo"`
	State           json.RawMessage `json:"state"`
	VersionNumber   uint64          `json:"versionNumber"`

	// Deposits are the amounts moved out of the free balance at install,
	// aligned with Owners. Uninstall returns them unless a resolution is given.
	Deposits []*big.Int `json:"deposits,omitempty"`
}

// IdentityHash derives the app's identity. The app sequence number keeps two
// otherwise identical installs distinct.
func (a AppInstance) IdentityHash() Digest {
	p := hashing.NewPacker().Address(string(a.MultisigAddress))
	for _, owner := range a.Owners {
		p.Address(string(owner))
	}
	for _, key := range a.SigningKeys {
		p.Address(string(key))
	}
	return p.
		Address(string(a.Interface.Addr)).
		String(a.Interface.StateEncoding).
		String(a.Interface.ActionEncoding).
		Bytes32(a.Terms.Hash()).
		Uint64(a.DefaultTimeout).
		Uint64(a.AppSeqNo).
		Sum()
}

// StateHash returns the keccak256 of the encoded state.
func (a AppInstance) StateHash() Digest {
	return hashing.Keccak256(a.State)
}

// SetState returns a copy holding newState with the version number bumped.
func (a AppInstance) SetState(newState json.RawMessage) AppInstance {
	out := a.Clone()
	out.State = slices.Clone(newState)
	out.VersionNumber++
	return out
}

// Clone deep-copies the instance.
func (a AppInstance) Clone() AppInstance {
	out := a
	out.Owners = slices.Clone(a.Owners)
	out.SigningKeys = slices.Clone(a.SigningKeys)
	out.Terms = a.Terms.clone()
	out.State = slices.Clone(a.State)
	if a.Deposits != nil {
		out.Deposits = make([]*big.Int, len(a.Deposits))
		for i, d := range a.Deposits {
			out.Deposits[i] = cloneInt(d)
		}
	}
	return out
}

const (
	// FreeBalanceStateEncoding is the state schema of the reserved free-balance app.
	FreeBalanceStateEncoding = "tuple(address alice, address bob, uint256 aliceBalance, uint256 bobBalance)"

	// FreeBalanceDefaultTimeout is the dispute timeout of the free-balance app.
	FreeBalanceDefaultTimeout = 10
)

// FreeBalanceState tracks each owner's net balance. Alice and Bob are the
// first and second multisig owners.
type FreeBalanceState struct {
	Alice        Address  `json:"alice"`
	Bob          Address  `json:"bob"`
	AliceBalance *big.Int `json:"aliceBalance"`
	BobBalance   *big.Int `json:"bobBalance"`
}

// Adjust returns the state with the deltas added, failing if either balance
// would go negative.
func (s FreeBalanceState) Adjust(aliceDelta, bobDelta *big.Int) (FreeBalanceState, error) {
	alice := new(big.Int).Add(orZero(s.AliceBalance), orZero(aliceDelta))
	bob := new(big.Int).Add(orZero(s.BobBalance), orZero(bobDelta))
	if alice.Sign() < 0 || bob.Sign() < 0 {
		return s, fmt.Errorf("%w: alice=%s bob=%s", ErrInsufficientFreeBalance, orZero(s.AliceBalance), orZero(s.BobBalance))
	}
	s.AliceBalance = alice
	s.BobBalance = bob
	return s, nil
}

// NewFreeBalanceApp creates the reserved ETH free-balance app with zero balances.
func NewFreeBalanceApp(multisig Address, owners []Address, bucket Address) (AppInstance, error) {
	if len(owners) != 2 {
		return AppInstance{}, fmt.Errorf("free balance requires 2 owners, got %d", len(owners))
	}
	state, err := json.Marshal(FreeBalanceState{
		Alice:        owners[0],
		Bob:          owners[1],
		AliceBalance: big.NewInt(0),
		BobBalance:   big.NewInt(0),
	})
	if err != nil {
		return AppInstance{}, fmt.Errorf("failed to encode free balance: %w", err)
	}
	return AppInstance{
		MultisigAddress: multisig,
		Owners:          slices.Clone(owners),
		Interface: AppInterface{
			Addr:          bucket,
			StateEncoding: FreeBalanceStateEncoding,
		},
		Terms: Terms{
			AssetType: AssetETH,
			Limit:     big.NewInt(0),
			Token:     AddressZero,
		},
		DefaultTimeout: FreeBalanceDefaultTimeout,
		AppSeqNo:       0,
		State:          state,
	}, nil
}

// FreeBalance decodes the instance state as a free balance.
func (a AppInstance) FreeBalance() (FreeBalanceState, error) {
	var s FreeBalanceState
	if err := json.Unmarshal(a.State, &s); err != nil {
		return s, fmt.Errorf("app %s is not a free balance: %w", a.IdentityHash(), err)
	}
	return s, nil
}

// WithFreeBalance encodes s as the new state and bumps the version.
func (a AppInstance) WithFreeBalance(s FreeBalanceState) (AppInstance, error) {
	state, err := json.Marshal(s)
	if err != nil {
		return a, fmt.Errorf("failed to encode free balance: %w", err)
	}
	return a.SetState(state), nil
}

func cloneInt(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
