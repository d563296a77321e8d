package domain

import "math/big"

// Protocol names a handshake the executor knows how to run.
type Protocol string

const (
	ProtocolSetup     Protocol = "setup"
	ProtocolInstall   Protocol = "install"
	ProtocolUninstall Protocol = "uninstall"
)

// Params is implemented by every protocol's parameter payload.
type Params interface {
	// Multisig is the channel the run operates on.
	Multisig() Address
	// Parties returns the initiating and responding extended public keys.
	Parties() (initiating, responding string)
}

// ProtocolMessage is the wire record exchanged between participants.
// Seq is the role-local step counter: 0 for the synthetic message that starts
// the initiator, 1 for the proposal, 2 for the reply.
type ProtocolMessage struct {
	Protocol  Protocol  `json:"protocol"`
	Seq       int       `json:"seq"`
	Params    Params    `json:"params"`
	FromXpub  string    `json:"fromXpub"`
	ToXpub    string    `json:"toXpub"`
	Signature Signature `json:"signature,omitempty"`
}

// SetupParams opens a channel at MultisigAddress.
type SetupParams struct {
	InitiatingXpub  string  `json:"initiatingXpub" mapstructure:"initiatingXpub"`
	RespondingXpub  string  `json:"respondingXpub" mapstructure:"respondingXpub"`
	MultisigAddress Address `json:"multisigAddress" mapstructure:"multisigAddress"`
}

func (p SetupParams) Multisig() Address { return p.MultisigAddress }

func (p SetupParams) Parties() (string, string) { return p.InitiatingXpub, p.RespondingXpub }

// InstallParams installs a new app funded from the free balance.
type InstallParams struct {
	InitiatingXpub  string  `json:"initiatingXpub" mapstructure:"initiatingXpub"`
	RespondingXpub  string  `json:"respondingXpub" mapstructure:"respondingXpub"`
	MultisigAddress Address `json:"multisigAddress" mapstructure:"multisigAddress"`

	// SigningKeys are the per-app signer addresses, usually the index-1 keys.
	SigningKeys []Address `json:"signingKeys" mapstructure:"signingKeys"`

	InitiatorBalanceDecrement *big.Int `json:"initiatorBalanceDecrement" mapstructure:"initiatorBalanceDecrement"`
	ResponderBalanceDecrement *big.Int `json:"responderBalanceDecrement" mapstructure:"responderBalanceDecrement"`

	InitialState   map[string]any `json:"initialState" mapstructure:"initialState"`
	Terms          Terms          `json:"terms" mapstructure:"terms"`
	AppInterface   AppInterface   `json:"appInterface" mapstructure:"appInterface"`
	DefaultTimeout uint64         `json:"defaultTimeout" mapstructure:"defaultTimeout"`
}

func (p InstallParams) Multisig() Address { return p.MultisigAddress }

func (p InstallParams) Parties() (string, string) { return p.InitiatingXpub, p.RespondingXpub }

// UninstallParams removes an app and credits the free balance.
// Nil increments return the deposits recorded at install.
type UninstallParams struct {
	InitiatingXpub  string  `json:"initiatingXpub" mapstructure:"initiatingXpub"`
	RespondingXpub  string  `json:"respondingXpub" mapstructure:"respondingXpub"`
	MultisigAddress Address `json:"multisigAddress" mapstructure:"multisigAddress"`
	AppIdentityHash Digest  `json:"appIdentityHash" mapstructure:"appIdentityHash"`

	InitiatorBalanceIncrement *big.Int `json:"initiatorBalanceIncrement,omitempty" mapstructure:"initiatorBalanceIncrement"`
	ResponderBalanceIncrement *big.Int `json:"responderBalanceIncrement,omitempty" mapstructure:"responderBalanceIncrement"`
}

func (p UninstallParams) Multisig() Address { return p.MultisigAddress }

func (p UninstallParams) Parties() (string, string) { return p.InitiatingXpub, p.RespondingXpub }
