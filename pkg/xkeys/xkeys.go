// Package xkeys derives participant addresses from BIP32 extended public keys
// and signs commitment digests with the matching private keys.
//
// Index 0 of an extended key is the participant's channel-owner identity.
// Higher non-hardened indices are used as per-app signing keys.
package xkeys

import (
	"errors"
	"fmt"

	"github.com/aretw0/chanflow/pkg/domain"
	"github.com/aretw0/chanflow/pkg/hashing"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
)

// SignatureLen is the length of a compact recoverable signature.
const SignatureLen = 65

// ErrPrivateKeyRequired is returned when a private operation is attempted on a
// neutered key.
var ErrPrivateKeyRequired = errors.New("extended private key required")

// AddressFromPublicKey returns the 20-byte address of a secp256k1 public key:
// the last 20 bytes of the keccak256 of the uncompressed point.
func AddressFromPublicKey(pub *btcec.PublicKey) domain.Address {
	digest := hashing.Keccak256(pub.SerializeUncompressed()[1:])
	return domain.Address(fmt.Sprintf("0x%x", digest[12:]))
}

// KthAddress derives the non-hardened child k of xpub and returns its address.
func KthAddress(xpub string, k uint32) (domain.Address, error) {
	key, err := hdkeychain.NewKeyFromString(xpub)
	if err != nil {
		return "", fmt.Errorf("invalid extended key: %w", err)
	}
	child, err := key.Derive(k)
	if err != nil {
		return "", fmt.Errorf("failed to derive child %d: %w", k, err)
	}
	pub, err := child.ECPubKey()
	if err != nil {
		return "", fmt.Errorf("failed to derive child %d public key: %w", k, err)
	}
	return AddressFromPublicKey(pub), nil
}

// KthAddresses derives index k for every xpub.
func KthAddresses(k uint32, xpubs ...string) ([]domain.Address, error) {
	out := make([]domain.Address, len(xpubs))
	for i, xpub := range xpubs {
		addr, err := KthAddress(xpub, k)
		if err != nil {
			return nil, err
		}
		out[i] = addr
	}
	return out, nil
}

// RecoverAddress returns the address that produced sig over digest.
func RecoverAddress(sig domain.Signature, digest domain.Digest) (domain.Address, error) {
	if len(sig) != SignatureLen {
		return "", fmt.Errorf("%w: want %d bytes, got %d", domain.ErrInvalidSignature, SignatureLen, len(sig))
	}
	pub, _, err := ecdsa.RecoverCompact(sig, digest[:])
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrInvalidSignature, err)
	}
	return AddressFromPublicKey(pub), nil
}

// Keyring holds a participant's master extended private key.
type Keyring struct {
	master *hdkeychain.ExtendedKey
	xpub   string
}

// NewKeyring creates a keyring from a BIP32 seed.
func NewKeyring(seed []byte) (*Keyring, error) {
	master, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		return nil, fmt.Errorf("failed to create master key: %w", err)
	}
	return newKeyring(master)
}

// GenerateKeyring creates a keyring from a fresh random seed.
func GenerateKeyring() (*Keyring, []byte, error) {
	seed, err := hdkeychain.GenerateSeed(hdkeychain.RecommendedSeedLen)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate seed: %w", err)
	}
	kr, err := NewKeyring(seed)
	if err != nil {
		return nil, nil, err
	}
	return kr, seed, nil
}

// ParseKeyring loads a keyring from a serialized extended private key.
func ParseKeyring(xprv string) (*Keyring, error) {
	master, err := hdkeychain.NewKeyFromString(xprv)
	if err != nil {
		return nil, fmt.Errorf("invalid extended key: %w", err)
	}
	if !master.IsPrivate() {
		return nil, ErrPrivateKeyRequired
	}
	return newKeyring(master)
}

func newKeyring(master *hdkeychain.ExtendedKey) (*Keyring, error) {
	pub, err := master.Neuter()
	if err != nil {
		return nil, fmt.Errorf("failed to neuter master key: %w", err)
	}
	return &Keyring{master: master, xpub: pub.String()}, nil
}

// Xpub returns the extended public key identifying this participant.
func (k *Keyring) Xpub() string {
	return k.xpub
}

// Xprv returns the serialized extended private key.
func (k *Keyring) Xprv() string {
	return k.master.String()
}

// Address returns the index-i address.
func (k *Keyring) Address(i uint32) (domain.Address, error) {
	priv, err := k.KthPrivateKey(i)
	if err != nil {
		return "", err
	}
	return AddressFromPublicKey(priv.PubKey()), nil
}

// KthPrivateKey derives the private key at non-hardened index i.
func (k *Keyring) KthPrivateKey(i uint32) (*btcec.PrivateKey, error) {
	child, err := k.master.Derive(i)
	if err != nil {
		return nil, fmt.Errorf("failed to derive child %d: %w", i, err)
	}
	priv, err := child.ECPrivKey()
	if err != nil {
		return nil, fmt.Errorf("failed to derive child %d private key: %w", i, err)
	}
	return priv, nil
}

// SignDigest signs digest with the index-i key.
func (k *Keyring) SignDigest(digest domain.Digest, i uint32) (domain.Signature, error) {
	priv, err := k.KthPrivateKey(i)
	if err != nil {
		return nil, err
	}
	return domain.Signature(ecdsa.SignCompact(priv, digest[:], false)), nil
}

// Sign signs the commitment's digest with the index-i key.
func (k *Keyring) Sign(c domain.Commitment, i uint32, asIntermediary bool) (domain.Signature, error) {
	if c == nil {
		return nil, errors.New("nil commitment")
	}
	return k.SignDigest(c.HashToSign(asIntermediary), i)
}
