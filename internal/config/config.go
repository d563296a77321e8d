// Package config loads node settings from a YAML or JSON file with
// environment overrides.
package config

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aretw0/chanflow/internal/logging"
	"github.com/aretw0/chanflow/pkg/domain"
	"gopkg.in/yaml.v3"
)

// Store kinds.
const (
	StoreMemory = "memory"
	StoreFile   = "file"
	StoreRedis  = "redis"
)

// Environment variables overriding file settings.
const (
	EnvListen    = "CHANFLOW_LISTEN"
	EnvRedisAddr = "CHANFLOW_REDIS_ADDR"
	EnvLogLevel  = "CHANFLOW_LOG_LEVEL"
	EnvSeedFile  = "CHANFLOW_SEED_FILE"
)

// Config is the node configuration.
type Config struct {
	LogLevel string                `yaml:"log_level" json:"log_level"`
	Listen   string                `yaml:"listen" json:"listen"`
	SeedFile string                `yaml:"seed_file" json:"seed_file"`
	Network  domain.NetworkContext `yaml:"network" json:"network"`
	Store    StoreConfig           `yaml:"store" json:"store"`

	// Peers maps counterparty xpubs to the base URL of their node.
	Peers map[string]string `yaml:"peers" json:"peers"`

	// RunTimeout bounds a protocol run waiting on a counterparty.
	RunTimeout time.Duration `yaml:"run_timeout" json:"run_timeout"`

	// Signer delegates signing to an external program instead of the seed file.
	Signer SignerConfig `yaml:"signer" json:"signer"`
}

// SignerConfig configures an external signer. It is disabled when Command is
// empty.
type SignerConfig struct {
	Command string   `yaml:"command" json:"command"`
	Args    []string `yaml:"args" json:"args"`
	Dir     string   `yaml:"dir" json:"dir"`
	Xpub    string   `yaml:"xpub" json:"xpub"`
}

// Enabled reports whether an external signer is configured.
func (s SignerConfig) Enabled() bool {
	return s.Command != ""
}

// StoreConfig selects and configures the channel store.
type StoreConfig struct {
	Kind  string      `yaml:"kind" json:"kind"`
	Path  string      `yaml:"path" json:"path"`
	Redis RedisConfig `yaml:"redis" json:"redis"`

	// EncryptionKey is a hex-encoded AES key (16, 24 or 32 bytes). When set,
	// channels are encrypted at rest.
	EncryptionKey string `yaml:"encryption_key" json:"encryption_key"`
}

// RedisConfig configures the redis store and locker.
type RedisConfig struct {
	Address  string        `yaml:"address" json:"address"`
	Password string        `yaml:"password" json:"password"`
	DB       int           `yaml:"db" json:"db"`
	Prefix   string        `yaml:"prefix" json:"prefix"`
	TTL      time.Duration `yaml:"ttl" json:"ttl"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		LogLevel:   "info",
		Listen:     ":8080",
		SeedFile:   "chanflow.seed",
		Store:      StoreConfig{Kind: StoreMemory, Path: "channels", Redis: RedisConfig{Address: "localhost:6379", Prefix: "chanflow:"}},
		Peers:      map[string]string{},
		RunTimeout: 30 * time.Second,
	}
}

// Load reads path over the defaults and applies environment overrides.
// A missing file is not an error: the defaults are used.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return cfg, fmt.Errorf("failed to read config: %w", err)
		default:
			if err := parse(path, data, &cfg); err != nil {
				return cfg, err
			}
		}
	}

	applyEnv(&cfg)
	if cfg.Peers == nil {
		cfg.Peers = map[string]string{}
	}
	return cfg, cfg.Validate()
}

func parse(path string, data []byte, cfg *Config) error {
	if strings.ToLower(filepath.Ext(path)) == ".json" {
		if err := json.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to parse %s: %w", path, err)
		}
		return nil
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv(EnvListen); v != "" {
		cfg.Listen = v
	}
	if v := os.Getenv(EnvRedisAddr); v != "" {
		cfg.Store.Redis.Address = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv(EnvSeedFile); v != "" {
		cfg.SeedFile = v
	}
}

// Validate checks the settings that cannot be defaulted.
func (c Config) Validate() error {
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	switch c.Store.Kind {
	case StoreMemory, StoreRedis:
	case StoreFile:
		if c.Store.Path == "" {
			return errors.New("file store requires a path")
		}
	default:
		return fmt.Errorf("unknown store kind %q", c.Store.Kind)
	}
	if _, err := c.Store.Key(); err != nil {
		return err
	}
	if c.Signer.Enabled() && c.Signer.Xpub == "" {
		return errors.New("external signer requires the node xpub")
	}
	if c.RunTimeout < 0 {
		return fmt.Errorf("negative run timeout %s", c.RunTimeout)
	}
	return nil
}

// Key decodes the encryption key. It returns nil when encryption is off.
func (s StoreConfig) Key() ([]byte, error) {
	if s.EncryptionKey == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(strings.TrimPrefix(s.EncryptionKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid encryption key: %w", err)
	}
	switch len(key) {
	case 16, 24, 32:
		return key, nil
	default:
		return nil, fmt.Errorf("invalid encryption key: want 16, 24 or 32 bytes, got %d", len(key))
	}
}
