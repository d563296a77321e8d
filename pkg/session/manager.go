package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/chanflow/internal/logging"
	"github.com/aretw0/chanflow/pkg/domain"
	"github.com/aretw0/chanflow/pkg/ports"
)

// DefaultLockTTL bounds how long a distributed lock survives a crashed holder.
const DefaultLockTTL = 30 * time.Second

// lockEntry holds the mutex and the reference count.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// Manager orchestrates channel access, ensuring runs on one multisig are
// serialized. It uses reference counting to garbage collect unused locks.
type Manager struct {
	store ports.ChannelStore

	mu    sync.Mutex                    // guards locks
	locks map[domain.Address]*lockEntry // keyed by canonical multisig

	locker  ports.DistributedLocker
	lockTTL time.Duration
	logger  *slog.Logger
}

// Option configures the Manager.
type Option func(*Manager)

// WithLocker enables distributed locking.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(m *Manager) {
		m.locker = locker
	}
}

// WithLockTTL sets the distributed lock expiry.
func WithLockTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.lockTTL = ttl
		}
	}
}

// WithLogger configures a logger for the Manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewManager creates a Manager over the given channel store.
func NewManager(store ports.ChannelStore, opts ...Option) *Manager {
	m := &Manager{
		store:   store,
		locks:   make(map[domain.Address]*lockEntry),
		lockTTL: DefaultLockTTL,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// acquire gets or creates a lock entry and increments its reference count.
// The caller must lock entry.mu, and call release after unlocking.
func (m *Manager) acquire(key domain.Address) *lockEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[key]
	if !exists {
		entry = &lockEntry{}
		m.locks[key] = entry
	}
	entry.refs++
	return entry
}

// release decrements the reference count and deletes the entry at zero.
func (m *Manager) release(key domain.Address) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[key]
	if !exists {
		return
	}
	entry.refs--
	if entry.refs <= 0 {
		delete(m.locks, key)
	}
}

// activeLocks reports how many lock entries are held or awaited.
func (m *Manager) activeLocks() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locks)
}

// WithLock executes fn while holding the lock for multisig.
// The lock is not reentrant: fn must not call back into WithLock for the
// same multisig.
func (m *Manager) WithLock(ctx context.Context, multisig domain.Address, fn func(context.Context) error) error {
	key := multisig.Canonical()
	entry := m.acquire(key)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		m.release(key)
	}()

	if m.locker != nil {
		unlock, err := m.locker.Lock(ctx, string(key), m.lockTTL)
		if err != nil {
			return fmt.Errorf("failed to acquire distributed lock: %w", err)
		}
		defer func() {
			// The run's context may be done by now; release regardless.
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				m.logger.Warn("Failed to release distributed lock (will expire via TTL)",
					"multisig", key,
					"err", err,
				)
			}
		}()
	}

	return fn(ctx)
}

// Load retrieves a channel under its lock.
func (m *Manager) Load(ctx context.Context, multisig domain.Address) (*domain.StateChannel, error) {
	var ch *domain.StateChannel
	err := m.WithLock(ctx, multisig, func(ctx context.Context) error {
		var err error
		ch, err = m.store.Load(ctx, multisig)
		return err
	})
	return ch, err
}

// Save persists a channel under its lock.
func (m *Manager) Save(ctx context.Context, ch *domain.StateChannel) error {
	if ch == nil {
		return fmt.Errorf("cannot save nil channel")
	}
	return m.WithLock(ctx, ch.MultisigAddress, func(ctx context.Context) error {
		return m.store.Save(ctx, ch)
	})
}

// Delete removes a channel under its lock.
func (m *Manager) Delete(ctx context.Context, multisig domain.Address) error {
	return m.WithLock(ctx, multisig, func(ctx context.Context) error {
		return m.store.Delete(ctx, multisig)
	})
}

// List delegates to the store.
func (m *Manager) List(ctx context.Context) ([]domain.Address, error) {
	return m.store.List(ctx)
}

// Channels loads every stored channel. It takes no locks, so channels being
// updated concurrently are read at their last saved version.
func (m *Manager) Channels(ctx context.Context) (domain.ChannelMap, error) {
	return ports.LoadAll(ctx, m.store)
}

// Update applies fn to the stored channel under its lock and saves the result.
func (m *Manager) Update(ctx context.Context, multisig domain.Address, fn func(*domain.StateChannel) (*domain.StateChannel, error)) error {
	return m.WithLock(ctx, multisig, func(ctx context.Context) error {
		ch, err := m.store.Load(ctx, multisig)
		if err != nil {
			return err
		}
		next, err := fn(ch)
		if err != nil {
			return err
		}
		return m.store.Save(ctx, next)
	})
}

// Store returns the underlying channel store.
func (m *Manager) Store() ports.ChannelStore {
	return m.store
}
