package domain

import (
	"encoding/hex"
	"fmt"
	"slices"
	"strings"
)

// Address is a 0x-prefixed, 20-byte hex address.
// Comparisons are case-insensitive.
type Address string

// AddressZero is the all-zero address, used as a placeholder multisig during
// setup and as the default token.
const AddressZero Address = "0x0000000000000000000000000000000000000000"

// Canonical returns the lowercase form used for map keys and sorting.
func (a Address) Canonical() Address {
	return Address(strings.ToLower(string(a)))
}

// Equal reports whether two addresses are the same regardless of case.
func (a Address) Equal(b Address) bool {
	return strings.EqualFold(string(a), string(b))
}

func (a Address) String() string {
	return string(a)
}

// SortAddresses returns a sorted copy of addrs, ordered by canonical form.
func SortAddresses(addrs []Address) []Address {
	out := slices.Clone(addrs)
	slices.SortFunc(out, func(x, y Address) int {
		return strings.Compare(string(x.Canonical()), string(y.Canonical()))
	})
	return out
}

// Digest is a 32-byte keccak256 hash.
type Digest [32]byte

// ParseDigest decodes a 0x-prefixed (or bare) 64-character hex string.
func ParseDigest(s string) (Digest, error) {
	var d Digest
	raw, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return d, fmt.Errorf("invalid digest %q: %w", s, err)
	}
	if len(raw) != len(d) {
		return d, fmt.Errorf("invalid digest %q: want 32 bytes, got %d", s, len(raw))
	}
	copy(d[:], raw)
	return d, nil
}

// Hex returns the 0x-prefixed hex encoding.
func (d Digest) Hex() string {
	return "0x" + hex.EncodeToString(d[:])
}

func (d Digest) String() string {
	return d.Hex()
}

// IsZero reports whether d is the zero digest.
func (d Digest) IsZero() bool {
	return d == Digest{}
}

// MarshalText encodes the digest as hex so it can be used as a JSON map key.
func (d Digest) MarshalText() ([]byte, error) {
	return []byte(d.Hex()), nil
}

// UnmarshalText decodes a hex digest.
func (d *Digest) UnmarshalText(text []byte) error {
	parsed, err := ParseDigest(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Signature is a 65-byte compact recoverable secp256k1 signature.
type Signature []byte

// ParseSignature decodes a 0x-prefixed hex signature.
func ParseSignature(s string) (Signature, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid signature encoding: %w", err)
	}
	return Signature(raw), nil
}

// Hex returns the 0x-prefixed hex encoding.
func (s Signature) Hex() string {
	return "0x" + hex.EncodeToString(s)
}

// MarshalText encodes the signature as hex.
func (s Signature) MarshalText() ([]byte, error) {
	return []byte(s.Hex()), nil
}

// UnmarshalText decodes a hex signature.
func (s *Signature) UnmarshalText(text []byte) error {
	parsed, err := ParseSignature(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
