package wire_test

import (
	"math/big"
	"testing"

	"github.com/aretw0/chanflow/pkg/domain"
	"github.com/aretw0/chanflow/pkg/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_InstallKeepsExactIntegers(t *testing.T) {
	huge, ok := new(big.Int).SetString("123456789012345678901234567890", 10)
	require.True(t, ok)

	msg := domain.ProtocolMessage{
		Protocol: domain.ProtocolInstall,
		Seq:      1,
		FromXpub: "xpub-a",
		ToXpub:   "xpub-b",
		Params: domain.InstallParams{
			InitiatingXpub:            "xpub-a",
			RespondingXpub:            "xpub-b",
			MultisigAddress:           "0x00000000000000000000000000000000000000ff",
			SigningKeys:               []domain.Address{"0xa000000000000000000000000000000000000001"},
			InitiatorBalanceDecrement: huge,
			ResponderBalanceDecrement: big.NewInt(0),
			InitialState:              map[string]any{"counter": 7},
			Terms:                     domain.Terms{AssetType: domain.AssetERC20, Limit: huge, Token: domain.AddressZero},
			AppInterface:              domain.AppInterface{Addr: "0x00000000000000000000000000000000000000cc", StateEncoding: "tuple(uint256)"},
			DefaultTimeout:            40,
		},
		Signature: domain.Signature{0x01, 0x02},
	}

	data, err := wire.Encode(msg)
	require.NoError(t, err)
	decoded, err := wire.Decode(data)
	require.NoError(t, err)

	p, ok := decoded.Params.(domain.InstallParams)
	require.True(t, ok, "params decoded as %T", decoded.Params)
	assert.Equal(t, 0, huge.Cmp(p.InitiatorBalanceDecrement))
	assert.Equal(t, 0, huge.Cmp(p.Terms.Limit))
	assert.Zero(t, p.ResponderBalanceDecrement.Sign())
	assert.Equal(t, domain.AssetERC20, p.Terms.AssetType)
	assert.Equal(t, uint64(40), p.DefaultTimeout)
	assert.Equal(t, msg.Params.(domain.InstallParams).SigningKeys, p.SigningKeys)
	assert.Equal(t, domain.Signature{0x01, 0x02}, decoded.Signature)
	assert.Equal(t, "xpub-a", decoded.FromXpub)
	assert.Equal(t, 1, decoded.Seq)
}

func TestDecode_UninstallDigestAndNilIncrements(t *testing.T) {
	id := domain.Digest{0xab, 0xcd}
	msg := domain.ProtocolMessage{
		Protocol: domain.ProtocolUninstall,
		Seq:      2,
		Params: domain.UninstallParams{
			InitiatingXpub:  "xpub-a",
			RespondingXpub:  "xpub-b",
			MultisigAddress: "0x00000000000000000000000000000000000000ff",
			AppIdentityHash: id,
		},
	}
	data, err := wire.Encode(msg)
	require.NoError(t, err)
	decoded, err := wire.Decode(data)
	require.NoError(t, err)

	p, ok := decoded.Params.(domain.UninstallParams)
	require.True(t, ok)
	assert.Equal(t, id, p.AppIdentityHash)
	assert.Nil(t, p.InitiatorBalanceIncrement)
	assert.Nil(t, p.ResponderBalanceIncrement)
}

func TestDecode_Setup(t *testing.T) {
	data := []byte(`{"protocol":"setup","seq":1,"fromXpub":"xpub-a","toXpub":"xpub-b",
		"params":{"initiatingXpub":"xpub-a","respondingXpub":"xpub-b","multisigAddress":"0x00000000000000000000000000000000000000FF"}}`)
	msg, err := wire.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, domain.SetupParams{
		InitiatingXpub:  "xpub-a",
		RespondingXpub:  "xpub-b",
		MultisigAddress: "0x00000000000000000000000000000000000000FF",
	}, msg.Params)
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr error
	}{
		{name: "Not JSON", data: `{`},
		{name: "Unknown Protocol", data: `{"protocol":"withdraw","params":{}}`, wantErr: domain.ErrUnknownProtocol},
		{name: "Missing Params", data: `{"protocol":"setup","seq":1}`},
		{name: "Bad Digest", data: `{"protocol":"uninstall","params":{"appIdentityHash":"0x12"}}`},
		{name: "Bad Integer", data: `{"protocol":"install","params":{"initiatorBalanceDecrement":"ten"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := wire.Decode([]byte(tt.data))
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}
