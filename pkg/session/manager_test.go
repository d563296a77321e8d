package session_test

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aretw0/chanflow/pkg/adapters/memory"
	"github.com/aretw0/chanflow/pkg/adapters/redis"
	"github.com/aretw0/chanflow/pkg/domain"
	"github.com/aretw0/chanflow/pkg/ports"
	"github.com/aretw0/chanflow/pkg/session"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const multisig domain.Address = "0x00000000000000000000000000000000000000Ff"

func newChannel(t *testing.T) *domain.StateChannel {
	t.Helper()
	ch, err := domain.NewStateChannel(domain.AddressZero, multisig, []domain.Address{
		"0xa000000000000000000000000000000000000001",
		"0xb000000000000000000000000000000000000002",
	})
	require.NoError(t, err)
	return ch
}

// assertSerialized runs fn-bodies concurrently through WithLock and fails if
// two of them overlap.
func assertSerialized(t *testing.T, mgr *session.Manager, keys ...domain.Address) {
	t.Helper()
	ctx := context.Background()
	var inside atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(1)
		key := keys[i%len(keys)]
		go func() {
			defer wg.Done()
			err := mgr.WithLock(ctx, key, func(context.Context) error {
				if inside.Add(1) != 1 {
					return errors.New("overlapping critical sections")
				}
				time.Sleep(5 * time.Millisecond)
				inside.Add(-1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
}

func TestManager_Locking(t *testing.T) {
	mgr := session.NewManager(memory.NewStore())
	assertSerialized(t, mgr, multisig)
}

func TestManager_LockIsCaseInsensitive(t *testing.T) {
	mgr := session.NewManager(memory.NewStore())
	assertSerialized(t, mgr, multisig, domain.Address(strings.ToLower(string(multisig))))
}

func TestManager_DistinctChannelsDoNotBlock(t *testing.T) {
	mgr := session.NewManager(memory.NewStore())
	ctx := context.Background()
	other := domain.Address("0x00000000000000000000000000000000000000ee")

	err := mgr.WithLock(ctx, multisig, func(ctx context.Context) error {
		done := make(chan error, 1)
		go func() {
			done <- mgr.WithLock(ctx, other, func(context.Context) error { return nil })
		}()
		select {
		case err := <-done:
			return err
		case <-time.After(time.Second):
			return errors.New("lock on a different multisig blocked")
		}
	})
	require.NoError(t, err)
}

func TestManager_SaveLoadUpdate(t *testing.T) {
	mgr := session.NewManager(memory.NewStore())
	ctx := context.Background()

	_, err := mgr.Load(ctx, multisig)
	assert.ErrorIs(t, err, domain.ErrChannelNotFound)

	require.NoError(t, mgr.Save(ctx, newChannel(t)))

	err = mgr.Update(ctx, multisig, func(ch *domain.StateChannel) (*domain.StateChannel, error) {
		fb, err := ch.FreeBalanceFor(domain.AssetETH)
		if err != nil {
			return nil, err
		}
		st, err := fb.FreeBalance()
		if err != nil {
			return nil, err
		}
		st, err = st.Adjust(big.NewInt(5), big.NewInt(7))
		if err != nil {
			return nil, err
		}
		fb, err = fb.WithFreeBalance(st)
		if err != nil {
			return nil, err
		}
		next := ch.Clone()
		next.AppInstances[fb.IdentityHash()] = fb
		return next, nil
	})
	require.NoError(t, err)

	loaded, err := mgr.Load(ctx, multisig)
	require.NoError(t, err)
	fb, err := loaded.FreeBalanceFor(domain.AssetETH)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), fb.VersionNumber)

	channels, err := mgr.Channels(ctx)
	require.NoError(t, err)
	assert.Len(t, channels, 1)

	require.NoError(t, mgr.Delete(ctx, multisig))
	addrs, err := mgr.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, addrs)
}

func TestManager_UpdateErrorKeepsStoredChannel(t *testing.T) {
	mgr := session.NewManager(memory.NewStore())
	ctx := context.Background()
	require.NoError(t, mgr.Save(ctx, newChannel(t)))

	boom := errors.New("boom")
	err := mgr.Update(ctx, multisig, func(*domain.StateChannel) (*domain.StateChannel, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = mgr.Load(ctx, multisig)
	assert.NoError(t, err)
}

type failingLocker struct{}

func (failingLocker) Lock(context.Context, string, time.Duration) (ports.UnlockFunc, error) {
	return nil, errors.New("unavailable")
}

func TestManager_DistributedLockFailure(t *testing.T) {
	mgr := session.NewManager(memory.NewStore(), session.WithLocker(failingLocker{}))
	called := false
	err := mgr.WithLock(context.Background(), multisig, func(context.Context) error {
		called = true
		return nil
	})
	assert.Error(t, err)
	assert.False(t, called)
}

func TestManager_RedisLocker(t *testing.T) {
	mr := miniredis.RunT(t)
	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := redis.NewFromClient(client)
	mgr := session.NewManager(store,
		session.WithLocker(redis.NewLocker(client, "chanflow:")),
		session.WithLockTTL(5*time.Second),
	)

	err := mgr.WithLock(context.Background(), multisig, func(context.Context) error {
		assert.True(t, mr.Exists("chanflow:lock:0x00000000000000000000000000000000000000ff"))
		return nil
	})
	require.NoError(t, err)
	assert.False(t, mr.Exists("chanflow:lock:0x00000000000000000000000000000000000000ff"))
}
