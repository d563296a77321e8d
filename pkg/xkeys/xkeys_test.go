package xkeys

import (
	"bytes"
	"strings"
	"testing"

	"github.com/aretw0/chanflow/pkg/domain"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func testKeyring(t require.TestingT, fill byte) *Keyring {
	kr, err := NewKeyring(bytes.Repeat([]byte{fill}, 32))
	require.NoError(t, err)
	return kr
}

func TestKthAddress_MatchesPrivateSide(t *testing.T) {
	kr := testKeyring(t, 0x01)
	assert.True(t, strings.HasPrefix(kr.Xpub(), "xpub"))

	for _, k := range []uint32{0, 1, 7, 1000} {
		fromXpub, err := KthAddress(kr.Xpub(), k)
		require.NoError(t, err)
		fromPriv, err := kr.Address(k)
		require.NoError(t, err)

		assert.Equal(t, fromPriv, fromXpub)
		assert.Len(t, string(fromXpub), 42)
		assert.Equal(t, fromXpub.Canonical(), fromXpub, "addresses are lowercase")
	}
}

func TestKthAddress_Distinct(t *testing.T) {
	kr := testKeyring(t, 0x01)
	a0, err := KthAddress(kr.Xpub(), 0)
	require.NoError(t, err)
	a1, err := KthAddress(kr.Xpub(), 1)
	require.NoError(t, err)
	assert.NotEqual(t, a0, a1)

	other := testKeyring(t, 0x02)
	b0, err := KthAddress(other.Xpub(), 0)
	require.NoError(t, err)
	assert.NotEqual(t, a0, b0)
}

func TestKthAddress_Invalid(t *testing.T) {
	_, err := KthAddress("not-an-xpub", 0)
	assert.Error(t, err)

	kr := testKeyring(t, 0x01)
	_, err = KthAddress(kr.Xpub(), hdkeychain.HardenedKeyStart)
	assert.Error(t, err, "hardened children cannot be derived from a public key")
}

func TestParseKeyring(t *testing.T) {
	kr := testKeyring(t, 0x03)

	parsed, err := ParseKeyring(kr.Xprv())
	require.NoError(t, err)
	assert.Equal(t, kr.Xpub(), parsed.Xpub())

	_, err = ParseKeyring(kr.Xpub())
	assert.ErrorIs(t, err, ErrPrivateKeyRequired)
}

func TestRecoverAddress_Rejects(t *testing.T) {
	var digest domain.Digest
	_, err := RecoverAddress(nil, digest)
	assert.ErrorIs(t, err, domain.ErrInvalidSignature)

	_, err = RecoverAddress(make(domain.Signature, SignatureLen), digest)
	assert.ErrorIs(t, err, domain.ErrInvalidSignature)
}

func TestSignDigest_RecoversForAnyIndex(t *testing.T) {
	kr := testKeyring(t, 0x04)

	rapid.Check(t, func(t *rapid.T) {
		k := rapid.Uint32Range(0, hdkeychain.HardenedKeyStart-1).Draw(t, "k")
		raw := rapid.SliceOfN(rapid.Byte(), 32, 32).Draw(t, "digest")

		var digest domain.Digest
		copy(digest[:], raw)

		sig, err := kr.SignDigest(digest, k)
		require.NoError(t, err)
		require.Len(t, sig, SignatureLen)

		want, err := KthAddress(kr.Xpub(), k)
		require.NoError(t, err)
		got, err := RecoverAddress(sig, digest)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	})
}
