// Package hashing implements the keccak256 digests and the tightly packed
// encoding used to derive app identities and commitment digests.
package hashing

import (
	"encoding/binary"
	"encoding/hex"
	"math/big"
	"strings"

	"golang.org/x/crypto/sha3"
)

// Keccak256 hashes the concatenation of the given byte slices.
func Keccak256(data ...[]byte) [32]byte {
	h := sha3.NewLegacyKeccak256()
	for _, d := range data {
		h.Write(d)
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// Packer accumulates fixed-width fields in order, similar to Solidity's
// abi.encodePacked for the subset of types commitments need.
type Packer struct {
	buf []byte
}

// NewPacker returns an empty Packer.
func NewPacker() *Packer {
	return &Packer{}
}

// Byte appends a single byte.
func (p *Packer) Byte(b byte) *Packer {
	p.buf = append(p.buf, b)
	return p
}

// Bool appends 0x01 or 0x00.
func (p *Packer) Bool(v bool) *Packer {
	if v {
		return p.Byte(1)
	}
	return p.Byte(0)
}

// Address appends a 20-byte address parsed from 0x-prefixed hex.
// Malformed input is packed as the zero address.
func (p *Packer) Address(addr string) *Packer {
	var raw [20]byte
	decoded, err := hex.DecodeString(strings.TrimPrefix(strings.ToLower(addr), "0x"))
	if err == nil && len(decoded) == 20 {
		copy(raw[:], decoded)
	}
	p.buf = append(p.buf, raw[:]...)
	return p
}

// Uint256 appends v as a 32-byte big-endian word. Nil and negative values are
// packed as zero.
func (p *Packer) Uint256(v *big.Int) *Packer {
	var word [32]byte
	if v != nil && v.Sign() > 0 {
		v.FillBytes(word[:])
	}
	p.buf = append(p.buf, word[:]...)
	return p
}

// Uint64 appends v as a 32-byte big-endian word.
func (p *Packer) Uint64(v uint64) *Packer {
	var word [32]byte
	binary.BigEndian.PutUint64(word[24:], v)
	p.buf = append(p.buf, word[:]...)
	return p
}

// Bytes32 appends a 32-byte word verbatim.
func (p *Packer) Bytes32(b [32]byte) *Packer {
	p.buf = append(p.buf, b[:]...)
	return p
}

// Bytes appends the keccak256 of a variable-length value, keeping every field
// fixed-width.
func (p *Packer) Bytes(b []byte) *Packer {
	return p.Bytes32(Keccak256(b))
}

// String hashes s the same way as Bytes.
func (p *Packer) String(s string) *Packer {
	return p.Bytes([]byte(s))
}

// Encoded returns a copy of the packed bytes.
func (p *Packer) Encoded() []byte {
	out := make([]byte, len(p.buf))
	copy(out, p.buf)
	return out
}

// Sum returns the keccak256 of the packed bytes.
func (p *Packer) Sum() [32]byte {
	return Keccak256(p.buf)
}
