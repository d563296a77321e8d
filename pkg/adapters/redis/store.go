// Package redis provides Redis-backed channel persistence and distributed
// locking for nodes running as multiple replicas.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/chanflow/pkg/domain"
	backend "github.com/redis/go-redis/v9"
)

// Store implements ports.ChannelStore using Redis.
type Store struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

type Option func(*Store)

// WithTTL sets the expiration for channels. Zero means no expiration.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// WithPrefix sets the key prefix for channels.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// New creates a new Redis store with options.
func New(address, password string, db int, opts ...Option) *Store {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(rdb, opts...)
}

// NewFromClient creates a new Redis store from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	store := &Store{
		client: client,
		prefix: "chanflow:channel:",
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// Client returns the underlying client, e.g. to share it with a Locker.
func (s *Store) Client() *backend.Client {
	return s.client
}

func (s *Store) key(multisig domain.Address) string {
	return s.prefix + string(multisig.Canonical())
}

func (s *Store) indexKey() string {
	return s.prefix + "index"
}

// Save persists the channel to Redis.
func (s *Store) Save(ctx context.Context, ch *domain.StateChannel) error {
	if ch == nil {
		return fmt.Errorf("cannot save nil channel")
	}
	data, err := json.Marshal(ch)
	if err != nil {
		return fmt.Errorf("failed to marshal channel: %w", err)
	}

	member := string(ch.MultisigAddress.Canonical())
	pipe := s.client.Pipeline()
	pipe.Set(ctx, s.key(ch.MultisigAddress), data, s.ttl)

	// Index score is the expiry time; List prunes expired members lazily.
	score := float64(time.Now().Add(s.ttl).Unix())
	if s.ttl == 0 {
		score = 4102444800 // 2100-01-01
	}
	pipe.ZAdd(ctx, s.indexKey(), backend.Z{
		Score:  score,
		Member: member,
	})

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save to redis: %w", err)
	}
	return nil
}

// Load retrieves the channel from Redis.
func (s *Store) Load(ctx context.Context, multisig domain.Address) (*domain.StateChannel, error) {
	val, err := s.client.Get(ctx, s.key(multisig)).Bytes()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return nil, fmt.Errorf("%w: %s", domain.ErrChannelNotFound, multisig)
		}
		return nil, fmt.Errorf("failed to get from redis: %w", err)
	}

	var ch domain.StateChannel
	if err := json.Unmarshal(val, &ch); err != nil {
		return nil, fmt.Errorf("failed to unmarshal channel: %w", err)
	}
	return &ch, nil
}

// Delete removes the channel.
func (s *Store) Delete(ctx context.Context, multisig domain.Address) error {
	pipe := s.client.Pipeline()
	pipe.Del(ctx, s.key(multisig))
	pipe.ZRem(ctx, s.indexKey(), string(multisig.Canonical()))
	_, err := pipe.Exec(ctx)
	return err
}

// List returns the stored multisig addresses, pruning expired index entries.
func (s *Store) List(ctx context.Context) ([]domain.Address, error) {
	now := float64(time.Now().Unix())
	if err := s.client.ZRemRangeByScore(ctx, s.indexKey(), "-inf", fmt.Sprintf("%f", now)).Err(); err != nil {
		return nil, fmt.Errorf("failed to prune expired channels: %w", err)
	}

	members, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list channels: %w", err)
	}

	addrs := make([]domain.Address, len(members))
	for i, m := range members {
		addrs[i] = domain.Address(m)
	}
	return addrs, nil
}

// Close closes the redis client.
func (s *Store) Close() error {
	return s.client.Close()
}
