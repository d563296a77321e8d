package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/aretw0/chanflow/pkg/domain"
)

// Store implements ports.ChannelStore in memory.
// Safe for concurrent use.
type Store struct {
	data map[domain.Address]*domain.StateChannel
	mu   sync.RWMutex
}

// NewStore creates a new in-memory store.
func NewStore() *Store {
	return &Store{
		data: make(map[domain.Address]*domain.StateChannel),
	}
}

// Save persists a deep copy of the channel.
func (s *Store) Save(ctx context.Context, ch *domain.StateChannel) error {
	if ch == nil {
		return fmt.Errorf("cannot save nil channel")
	}
	copied := ch.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[ch.MultisigAddress.Canonical()] = copied
	return nil
}

// Load returns a copy so the caller can't mutate stored state by pointer.
func (s *Store) Load(ctx context.Context, multisig domain.Address) (*domain.StateChannel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ch, ok := s.data[multisig.Canonical()]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrChannelNotFound, multisig)
	}
	return ch.Clone(), nil
}

// Delete removes the channel.
func (s *Store) Delete(ctx context.Context, multisig domain.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, multisig.Canonical())
	return nil
}

// List returns the stored multisig addresses in sorted order.
func (s *Store) List(ctx context.Context) ([]domain.Address, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	addrs := make([]domain.Address, 0, len(s.data))
	for addr := range s.data {
		addrs = append(addrs, addr)
	}
	slices.Sort(addrs)
	return addrs, nil
}
