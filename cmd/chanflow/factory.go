package main

import (
	"fmt"
	"log/slog"

	"github.com/aretw0/chanflow/internal/config"
	"github.com/aretw0/chanflow/pkg/adapters/file"
	"github.com/aretw0/chanflow/pkg/adapters/memory"
	"github.com/aretw0/chanflow/pkg/adapters/redis"
	"github.com/aretw0/chanflow/pkg/persistence/middleware"
	"github.com/aretw0/chanflow/pkg/ports"
)

// storage is the store selected by the configuration, plus the locker that
// goes with it when replicas can share the store.
type storage struct {
	store  ports.ChannelStore
	locker ports.DistributedLocker
	close  func() error
}

func openStorage(cfg config.StoreConfig, logger *slog.Logger) (*storage, error) {
	s := &storage{close: func() error { return nil }}

	switch cfg.Kind {
	case config.StoreMemory:
		s.store = memory.NewStore()
	case config.StoreFile:
		s.store = file.New(cfg.Path)
	case config.StoreRedis:
		rs := redis.New(cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB,
			redis.WithPrefix(cfg.Redis.Prefix+"channel:"),
			redis.WithTTL(cfg.Redis.TTL),
		)
		s.store = rs
		s.locker = redis.NewLocker(rs.Client(), cfg.Redis.Prefix)
		s.close = rs.Close
	default:
		return nil, fmt.Errorf("unknown store kind %q", cfg.Kind)
	}

	key, err := cfg.Key()
	if err != nil {
		return nil, err
	}
	if key != nil {
		encrypt, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: key})
		if err != nil {
			return nil, err
		}
		s.store = encrypt(s.store)
	}

	logger.Info("channel store ready", "kind", cfg.Kind, "encrypted", key != nil, "distributed_lock", s.locker != nil)
	return s, nil
}
