package ports

import (
	"context"
	"math/big"
	"testing"

	"github.com/aretw0/chanflow/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunChannelStoreContract runs a suite of tests to verify that a ChannelStore
// implementation adheres to the defined interface contract.
func RunChannelStoreContract(t *testing.T, store ChannelStore) {
	ctx := context.Background()
	bucket := domain.Address("0x00000000000000000000000000000000000000bb")
	owners := []domain.Address{
		"0xa000000000000000000000000000000000000001",
		"0xb000000000000000000000000000000000000002",
	}

	newChannel := func(t *testing.T, multisig domain.Address) *domain.StateChannel {
		ch, err := domain.NewStateChannel(bucket, multisig, owners)
		require.NoError(t, err)
		return ch
	}

	t.Run("Save and Load", func(t *testing.T) {
		multisig := domain.Address("0x00000000000000000000000000000000000000A1")
		ch := newChannel(t, multisig)
		installed, app, err := ch.InstallApp(domain.AppInstance{
			Interface:      domain.AppInterface{Addr: "0x00000000000000000000000000000000000000cc", StateEncoding: "tuple(uint8)"},
			Terms:          domain.Terms{AssetType: domain.AssetETH, Limit: big.NewInt(0), Token: domain.AddressZero},
			DefaultTimeout: 5,
			State:          []byte(`{"n":1}`),
		}, []*big.Int{big.NewInt(0), big.NewInt(0)})
		require.NoError(t, err)

		require.NoError(t, store.Save(ctx, installed), "Save should not return error")
		defer func() { _ = store.Delete(ctx, multisig) }()

		loaded, err := store.Load(ctx, multisig.Canonical())
		require.NoError(t, err, "Load should not return error")
		assert.True(t, loaded.MultisigAddress.Equal(multisig))
		assert.Equal(t, installed.MultisigOwners, loaded.MultisigOwners)
		assert.Equal(t, installed.MonotonicNumInstalledApps, loaded.MonotonicNumInstalledApps)
		assert.Equal(t, installed.FreeBalanceAppIndexes, loaded.FreeBalanceAppIndexes)
		require.Len(t, loaded.AppInstances, 2)

		got, ok := loaded.App(app.IdentityHash())
		require.True(t, ok, "app must survive a round trip")
		assert.Equal(t, app.IdentityHash(), got.IdentityHash())
		assert.Equal(t, app.StateHash(), got.StateHash())

		fb, err := loaded.FreeBalanceFor(domain.AssetETH)
		require.NoError(t, err)
		want, _ := installed.FreeBalanceFor(domain.AssetETH)
		assert.Equal(t, want.VersionNumber, fb.VersionNumber)
		assert.Equal(t, want.StateHash(), fb.StateHash())
	})

	t.Run("Load Is Isolated", func(t *testing.T) {
		multisig := domain.Address("0x00000000000000000000000000000000000000a2")
		require.NoError(t, store.Save(ctx, newChannel(t, multisig)))
		defer func() { _ = store.Delete(ctx, multisig) }()

		first, err := store.Load(ctx, multisig)
		require.NoError(t, err)
		first.MultisigOwners[0] = domain.AddressZero

		second, err := store.Load(ctx, multisig)
		require.NoError(t, err)
		assert.Equal(t, owners[0], second.MultisigOwners[0])
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "0x00000000000000000000000000000000000000ee")
		assert.ErrorIs(t, err, domain.ErrChannelNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		multisig := domain.Address("0x00000000000000000000000000000000000000a3")
		require.NoError(t, store.Save(ctx, newChannel(t, multisig)))

		require.NoError(t, store.Delete(ctx, multisig), "Delete should not return error")

		_, err := store.Load(ctx, multisig)
		assert.ErrorIs(t, err, domain.ErrChannelNotFound, "Load after Delete should return ErrChannelNotFound")
	})

	t.Run("List", func(t *testing.T) {
		id1 := domain.Address("0x00000000000000000000000000000000000000b1")
		id2 := domain.Address("0x00000000000000000000000000000000000000b2")
		require.NoError(t, store.Save(ctx, newChannel(t, id1)))
		require.NoError(t, store.Save(ctx, newChannel(t, id2)))
		defer func() {
			_ = store.Delete(ctx, id1)
			_ = store.Delete(ctx, id2)
		}()

		addrs, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, addrs, id1)
		assert.Contains(t, addrs, id2)

		all, err := LoadAll(ctx, store)
		require.NoError(t, err)
		_, ok := all.Get(id1)
		assert.True(t, ok)
	})
}
