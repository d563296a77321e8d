package ports

import (
	"context"

	"github.com/aretw0/chanflow/pkg/domain"
)

// ChannelStore persists channels keyed by multisig address.
// Addresses are compared case-insensitively.
type ChannelStore interface {
	// Save persists the channel under its multisig address, replacing any
	// previous version.
	Save(ctx context.Context, ch *domain.StateChannel) error

	// Load retrieves a channel.
	// Returns domain.ErrChannelNotFound if the multisig has no channel.
	Load(ctx context.Context, multisig domain.Address) (*domain.StateChannel, error)

	// Delete removes a channel. Deleting a missing channel is not an error.
	Delete(ctx context.Context, multisig domain.Address) error

	// List returns the multisig addresses of every stored channel.
	List(ctx context.Context) ([]domain.Address, error)
}

// LoadAll reads every channel in store into a map.
func LoadAll(ctx context.Context, store ChannelStore) (domain.ChannelMap, error) {
	addrs, err := store.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make(domain.ChannelMap, len(addrs))
	for _, addr := range addrs {
		ch, err := store.Load(ctx, addr)
		if err != nil {
			return nil, err
		}
		out.Set(ch)
	}
	return out, nil
}
