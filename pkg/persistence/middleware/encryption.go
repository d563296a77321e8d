package middleware

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/aretw0/chanflow/pkg/domain"
	"github.com/aretw0/chanflow/pkg/ports"
)

// EncryptionConfig holds the keys for encryption and decryption.
type EncryptionConfig struct {
	// ActiveKey is the key used for encrypting new data.
	// Must be 32 bytes for AES-256.
	ActiveKey []byte

	// FallbackKeys is a list of old keys to try when decryption fails.
	// This enables zero-downtime key rotation.
	FallbackKeys [][]byte
}

// ErrNotEncrypted is returned when a stored channel is not an encrypted envelope.
var ErrNotEncrypted = errors.New("channel is missing encrypted data envelope")

const envelopeField = "__encrypted__"

type encryptionMiddleware struct {
	next   ports.ChannelStore
	config EncryptionConfig
}

// NewEncryptionMiddleware creates a middleware that encrypts channels using AES-GCM.
// The wrapped store only ever sees an opaque envelope keyed by the multisig address.
func NewEncryptionMiddleware(config EncryptionConfig) (Middleware, error) {
	if len(config.ActiveKey) != 32 {
		return nil, fmt.Errorf("active key must be 32 bytes (AES-256), got %d", len(config.ActiveKey))
	}
	return func(next ports.ChannelStore) ports.ChannelStore {
		return &encryptionMiddleware{
			next:   next,
			config: config,
		}
	}, nil
}

func (m *encryptionMiddleware) Save(ctx context.Context, ch *domain.StateChannel) error {
	if ch == nil {
		return fmt.Errorf("cannot save nil channel")
	}
	plainText, err := json.Marshal(ch)
	if err != nil {
		return fmt.Errorf("failed to marshal channel: %w", err)
	}

	ciphertext, err := encrypt(plainText, m.config.ActiveKey)
	if err != nil {
		return fmt.Errorf("failed to encrypt channel: %w", err)
	}

	state, err := json.Marshal(map[string]string{
		envelopeField: base64.StdEncoding.EncodeToString(ciphertext),
	})
	if err != nil {
		return err
	}

	// The envelope keeps only the multisig address in the clear.
	envelope := &domain.StateChannel{
		MultisigAddress: ch.MultisigAddress,
		AppInstances: map[domain.Digest]domain.AppInstance{
			{}: {MultisigAddress: ch.MultisigAddress, State: state},
		},
		FreeBalanceAppIndexes: map[domain.AssetType]domain.Digest{},
	}
	return m.next.Save(ctx, envelope)
}

func (m *encryptionMiddleware) Load(ctx context.Context, multisig domain.Address) (*domain.StateChannel, error) {
	envelope, err := m.next.Load(ctx, multisig)
	if err != nil {
		return nil, err
	}

	holder, ok := envelope.AppInstances[domain.Digest{}]
	if !ok {
		return nil, ErrNotEncrypted
	}
	var fields map[string]string
	if err := json.Unmarshal(holder.State, &fields); err != nil {
		return nil, ErrNotEncrypted
	}
	encoded, ok := fields[envelopeField]
	if !ok {
		return nil, ErrNotEncrypted
	}

	ciphertext, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode ciphertext base64: %w", err)
	}

	plainText, err := decryptWithRotation(ciphertext, m.config.ActiveKey, m.config.FallbackKeys)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt channel: %w", err)
	}

	var ch domain.StateChannel
	if err := json.Unmarshal(plainText, &ch); err != nil {
		return nil, fmt.Errorf("failed to unmarshal decrypted channel: %w", err)
	}
	return &ch, nil
}

func (m *encryptionMiddleware) Delete(ctx context.Context, multisig domain.Address) error {
	return m.next.Delete(ctx, multisig)
}

func (m *encryptionMiddleware) List(ctx context.Context) ([]domain.Address, error) {
	return m.next.List(ctx)
}

// Helpers

func encrypt(plaintext []byte, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func decryptWithRotation(ciphertext []byte, activeKey []byte, fallbackKeys [][]byte) ([]byte, error) {
	if plain, err := decrypt(ciphertext, activeKey); err == nil {
		return plain, nil
	}

	for _, key := range fallbackKeys {
		if plain, err := decrypt(ciphertext, key); err == nil {
			return plain, nil
		}
	}

	return nil, errors.New("decryption failed with all available keys")
}

func decrypt(ciphertext []byte, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	if len(ciphertext) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}

	nonce := ciphertext[:gcm.NonceSize()]
	return gcm.Open(nil, nonce, ciphertext[gcm.NonceSize():], nil)
}
