package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aretw0/chanflow/pkg/adapters/redis"
	"github.com/aretw0/chanflow/pkg/domain"
	"github.com/aretw0/chanflow/pkg/ports"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClient(t *testing.T) (*miniredis.Miniredis, *backend.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisStore_Contract(t *testing.T) {
	_, client := newClient(t)
	ports.RunChannelStoreContract(t, redis.NewFromClient(client))
}

func TestRedisStore_TTL_Expiration(t *testing.T) {
	mr, client := newClient(t)
	store := redis.NewFromClient(client, redis.WithTTL(1*time.Second), redis.WithPrefix("test:"))
	ctx := context.Background()
	multisig := domain.Address("0x00000000000000000000000000000000000000FF")

	ch, err := domain.NewStateChannel(domain.AddressZero, multisig, []domain.Address{
		"0xa000000000000000000000000000000000000001",
		"0xb000000000000000000000000000000000000002",
	})
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, ch))
	assert.True(t, mr.Exists("test:0x00000000000000000000000000000000000000ff"))

	addrs, err := store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []domain.Address{multisig.Canonical()}, addrs)

	mr.FastForward(2 * time.Second)

	_, err = store.Load(ctx, multisig)
	assert.ErrorIs(t, err, domain.ErrChannelNotFound)
}
