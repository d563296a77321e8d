package domain

import (
	"slices"
	"strings"
)

// Commitment is an unsigned proposal for an on-chain-enforceable operation.
// Implementations are immutable.
type Commitment interface {
	// MultisigAddress is the multisig the commitment would execute from.
	MultisigAddress() Address

	// Encode returns the canonical unsigned bytes.
	Encode() []byte

	// HashToSign returns the digest to sign. An intermediary signs a
	// structurally distinct digest from the endpoints.
	HashToSign(asIntermediary bool) Digest
}

// SignedCommitment is a commitment together with its owners' signatures,
// ordered by signer address.
type SignedCommitment struct {
	Commitment Commitment  `json:"-"`
	Signers    []Address   `json:"signers"`
	Signatures []Signature `json:"signatures"`
}

// NewSignedCommitment orders sigs by signer address.
func NewSignedCommitment(c Commitment, sigs map[Address]Signature) SignedCommitment {
	signers := make([]Address, 0, len(sigs))
	for signer := range sigs {
		signers = append(signers, signer)
	}
	signers = SortAddresses(signers)

	out := SignedCommitment{
		Commitment: c,
		Signers:    signers,
		Signatures: make([]Signature, len(signers)),
	}
	for i, signer := range signers {
		out.Signatures[i] = slices.Clone(sigs[signer])
	}
	return out
}

// SignatureOf returns the signature attributed to signer.
func (s SignedCommitment) SignatureOf(signer Address) (Signature, bool) {
	for i, addr := range s.Signers {
		if strings.EqualFold(string(addr), string(signer)) {
			return s.Signatures[i], true
		}
	}
	return nil, false
}
