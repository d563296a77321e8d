package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/aretw0/chanflow/pkg/domain"
)

// Store implements ports.ChannelStore using the local filesystem.
// Each channel is a JSON file named after its canonical multisig address.
type Store struct {
	BasePath string
}

// New creates a new Store with the given base path.
// If basePath is empty, it defaults to ".chanflow/channels".
func New(basePath string) *Store {
	if basePath == "" {
		basePath = filepath.Join(".chanflow", "channels")
	}
	return &Store{BasePath: basePath}
}

func (s *Store) path(multisig domain.Address) (string, error) {
	name := string(multisig.Canonical())
	if name == "" || strings.ContainsAny(name, `/\.`) {
		return "", fmt.Errorf("invalid multisig address %q", multisig)
	}
	return filepath.Join(s.BasePath, name+".json"), nil
}

// Save persists the channel to a JSON file atomically.
// It writes to a temporary file first, syncs via fsync, and then renames it to the destination.
func (s *Store) Save(ctx context.Context, ch *domain.StateChannel) error {
	if ch == nil {
		return fmt.Errorf("cannot save nil channel")
	}
	destPath, err := s.path(ch.MultisigAddress)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(s.BasePath, 0o755); err != nil {
		return fmt.Errorf("failed to ensure channel directory: %w", err)
	}

	// Not indented: app state is hashed byte for byte.
	data, err := json.Marshal(ch)
	if err != nil {
		return fmt.Errorf("failed to marshal channel: %w", err)
	}

	// Same directory as the destination, so the rename stays on one filesystem.
	tmpFile, err := os.CreateTemp(s.BasePath, "tmp-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer func() {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmpFile.Write(data); err != nil {
		return fmt.Errorf("failed to write to temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("failed to fsync temp file: %w", err)
	}
	// Windows cannot rename an open file.
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	// On Windows, os.Rename fails if dest exists.
	if _, err := os.Stat(destPath); err == nil {
		if err := os.Remove(destPath); err != nil {
			return fmt.Errorf("failed to remove existing channel file for overwrite: %w", err)
		}
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file to channel file: %w", err)
	}
	return nil
}

// Load retrieves the channel from its JSON file.
func (s *Store) Load(ctx context.Context, multisig domain.Address) (*domain.StateChannel, error) {
	filePath, err := s.path(multisig)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", domain.ErrChannelNotFound, multisig)
		}
		return nil, fmt.Errorf("failed to read channel file: %w", err)
	}

	var ch domain.StateChannel
	if err := json.Unmarshal(data, &ch); err != nil {
		return nil, fmt.Errorf("failed to unmarshal channel: %w", err)
	}
	return &ch, nil
}

// Delete removes the channel file.
func (s *Store) Delete(ctx context.Context, multisig domain.Address) error {
	filePath, err := s.path(multisig)
	if err != nil {
		return err
	}
	if err := os.Remove(filePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete channel file: %w", err)
	}
	return nil
}

// List returns the multisig addresses of all stored channels.
func (s *Store) List(ctx context.Context) ([]domain.Address, error) {
	entries, err := os.ReadDir(s.BasePath)
	if err != nil {
		if os.IsNotExist(err) {
			return []domain.Address{}, nil
		}
		return nil, fmt.Errorf("failed to list channels: %w", err)
	}

	var addrs []domain.Address
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != ".json" || strings.HasPrefix(name, "tmp-") {
			continue
		}
		addrs = append(addrs, domain.Address(strings.TrimSuffix(name, ".json")))
	}
	slices.Sort(addrs)
	return addrs, nil
}
