// Package commitment builds the commitments participants sign at each protocol
// step and validates counterparty signatures over them.
//
// Builders are pure: the same channel state always yields byte-identical
// encodings and digests.
package commitment

import (
	"fmt"

	"github.com/aretw0/chanflow/pkg/domain"
	"github.com/aretw0/chanflow/pkg/hashing"
)

// Kind tags the commitment variant inside its encoding and digest.
type Kind byte

const (
	KindSetup Kind = iota + 1
	KindInstall
	KindUninstall
)

func (k Kind) String() string {
	switch k {
	case KindSetup:
		return "setup"
	case KindInstall:
		return "install"
	case KindUninstall:
		return "uninstall"
	default:
		return fmt.Sprintf("Kind(%d)", byte(k))
	}
}

const (
	// prefix and version lead every digest so that commitment digests cannot
	// collide with other signed payloads.
	prefix  byte = 0x19
	version byte = 0x00
)

// FreeBalanceSnapshot is the free-balance app state a commitment binds to.
type FreeBalanceSnapshot struct {
	IdentityHash   domain.Digest
	TermsHash      domain.Digest
	StateHash      domain.Digest
	VersionNumber  uint64
	DefaultTimeout uint64
}

func snapshot(app domain.AppInstance) FreeBalanceSnapshot {
	return FreeBalanceSnapshot{
		IdentityHash:   app.IdentityHash(),
		TermsHash:      app.Terms.Hash(),
		StateHash:      app.StateHash(),
		VersionNumber:  app.VersionNumber,
		DefaultTimeout: app.DefaultTimeout,
	}
}

func (s FreeBalanceSnapshot) pack(p *hashing.Packer) {
	p.Bytes32(s.IdentityHash).
		Bytes32(s.TermsHash).
		Bytes32(s.StateHash).
		Uint64(s.VersionNumber).
		Uint64(s.DefaultTimeout)
}

// digest computes the signed hash shared by every variant.
func digest(kind Kind, multisig domain.Address, owners []domain.Address, encoded []byte, asIntermediary bool) domain.Digest {
	p := hashing.NewPacker().
		Byte(prefix).
		Byte(version).
		Byte(byte(kind)).
		Address(string(multisig))
	for _, owner := range owners {
		p.Address(string(owner))
	}
	return p.Bytes(encoded).Bool(asIntermediary).Sum()
}

// Setup is the commitment signed when a channel is opened. It binds the
// multisig to its free-balance app.
type Setup struct {
	Network     domain.NetworkContext
	Multisig    domain.Address
	Owners      []domain.Address
	FreeBalance FreeBalanceSnapshot
}

func (c Setup) MultisigAddress() domain.Address { return c.Multisig }

func (c Setup) Encode() []byte {
	p := hashing.NewPacker().
		Byte(byte(KindSetup)).
		Address(string(c.Network.StateChannelTransaction)).
		Address(string(c.Network.AppRegistry)).
		Address(string(c.Network.ETHBucket))
	c.FreeBalance.pack(p)
	return p.Encoded()
}

func (c Setup) HashToSign(asIntermediary bool) domain.Digest {
	return digest(KindSetup, c.Multisig, c.Owners, c.Encode(), asIntermediary)
}

// Install is the commitment signed when an app is installed. It binds the
// decremented free balance together with the new app.
type Install struct {
	Network     domain.NetworkContext
	Multisig    domain.Address
	Owners      []domain.Address
	FreeBalance FreeBalanceSnapshot

	AppIdentityHash domain.Digest
	AppTermsHash    domain.Digest
	AppSeqNo        uint64
}

func (c Install) MultisigAddress() domain.Address { return c.Multisig }

func (c Install) Encode() []byte {
	p := hashing.NewPacker().
		Byte(byte(KindInstall)).
		Address(string(c.Network.MultiSend)).
		Address(string(c.Network.StateChannelTransaction)).
		Address(string(c.Network.AppRegistry))
	c.FreeBalance.pack(p)
	p.Bytes32(c.AppIdentityHash).
		Bytes32(c.AppTermsHash).
		Uint64(c.AppSeqNo)
	return p.Encoded()
}

func (c Install) HashToSign(asIntermediary bool) domain.Digest {
	return digest(KindInstall, c.Multisig, c.Owners, c.Encode(), asIntermediary)
}

// Uninstall is the commitment signed when an app is removed. It binds the
// credited free balance and invalidates the removed app's install.
type Uninstall struct {
	Network     domain.NetworkContext
	Multisig    domain.Address
	Owners      []domain.Address
	FreeBalance FreeBalanceSnapshot

	RemovedAppIdentityHash domain.Digest
	RemovedAppSeqNo        uint64
}

func (c Uninstall) MultisigAddress() domain.Address { return c.Multisig }

func (c Uninstall) Encode() []byte {
	p := hashing.NewPacker().
		Byte(byte(KindUninstall)).
		Address(string(c.Network.MultiSend)).
		Address(string(c.Network.NonceRegistry)).
		Address(string(c.Network.AppRegistry))
	c.FreeBalance.pack(p)
	p.Bytes32(c.RemovedAppIdentityHash).
		Uint64(c.RemovedAppSeqNo)
	return p.Encoded()
}

func (c Uninstall) HashToSign(asIntermediary bool) domain.Digest {
	return digest(KindUninstall, c.Multisig, c.Owners, c.Encode(), asIntermediary)
}
