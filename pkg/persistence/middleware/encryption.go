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

	"github.com/aretw0/switchyard/pkg/ports"
)

// KeySize is the AES-256 key length in bytes.
const KeySize = 32

// ErrDecrypt is returned when no configured key opens an envelope.
var ErrDecrypt = errors.New("decryption failed with all available keys")

// EncryptionConfig holds the keys for encryption and decryption.
type EncryptionConfig struct {
	// ActiveKey is the key used for encrypting new data.
	ActiveKey []byte

	// FallbackKeys are tried in order when the active key fails, so keys
	// can be rotated without rewriting stored records.
	FallbackKeys [][]byte
}

// DecodeKey parses a base64 encoded AES-256 key.
func DecodeKey(s string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("encryption key is not valid base64: %w", err)
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("encryption key must be %d bytes, got %d", KeySize, len(key))
	}
	return key, nil
}

type encryptionMiddleware[T any] struct {
	next   ports.Repository[Envelope]
	config EncryptionConfig
}

// NewEncryptionMiddleware creates a middleware that stores every entity as an
// AES-GCM sealed envelope.
func NewEncryptionMiddleware[T any](config EncryptionConfig) (Middleware[T], error) {
	if len(config.ActiveKey) != KeySize {
		return nil, fmt.Errorf("active key must be %d bytes (AES-256)", KeySize)
	}
	for i, k := range config.FallbackKeys {
		if len(k) != KeySize {
			return nil, fmt.Errorf("fallback key %d must be %d bytes (AES-256)", i, KeySize)
		}
	}
	return func(next ports.Repository[Envelope]) ports.Repository[T] {
		return &encryptionMiddleware[T]{next: next, config: config}
	}, nil
}

func (m *encryptionMiddleware[T]) Save(ctx context.Context, id string, entity T) error {
	plainText, err := json.Marshal(entity)
	if err != nil {
		return fmt.Errorf("failed to marshal entity: %w", err)
	}
	ciphertext, err := encrypt(plainText, m.config.ActiveKey)
	if err != nil {
		return fmt.Errorf("failed to encrypt entity: %w", err)
	}
	return m.next.Save(ctx, id, Envelope{ID: id, Ciphertext: ciphertext})
}

func (m *encryptionMiddleware[T]) Get(ctx context.Context, id string) (*T, error) {
	env, err := m.next.Get(ctx, id)
	if err != nil || env == nil {
		return nil, err
	}
	out, err := m.open(*env)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", id, err)
	}
	return out, nil
}

func (m *encryptionMiddleware[T]) List(ctx context.Context) ([]T, error) {
	envs, err := m.next.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(envs))
	for _, env := range envs {
		v, err := m.open(env)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", env.ID, err)
		}
		out = append(out, *v)
	}
	return out, nil
}

func (m *encryptionMiddleware[T]) Delete(ctx context.Context, id string) (bool, error) {
	return m.next.Delete(ctx, id)
}

func (m *encryptionMiddleware[T]) GenerateID() string {
	return m.next.GenerateID()
}

func (m *encryptionMiddleware[T]) open(env Envelope) (*T, error) {
	if len(env.Ciphertext) == 0 {
		// Fail secure: a plaintext record is never passed through.
		return nil, errors.New("record is missing encrypted data envelope")
	}
	plainText, err := decryptWithRotation(env.Ciphertext, m.config.ActiveKey, m.config.FallbackKeys)
	if err != nil {
		return nil, err
	}
	var out T
	if err := json.Unmarshal(plainText, &out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal decrypted entity: %w", err)
	}
	return &out, nil
}

func encrypt(plaintext, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func decryptWithRotation(ciphertext, activeKey []byte, fallbackKeys [][]byte) ([]byte, error) {
	if plain, err := decrypt(ciphertext, activeKey); err == nil {
		return plain, nil
	}
	for _, key := range fallbackKeys {
		if plain, err := decrypt(ciphertext, key); err == nil {
			return plain, nil
		}
	}
	return nil, ErrDecrypt
}

func decrypt(ciphertext, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}
	nonce, body := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]
	return gcm.Open(nil, nonce, body, nil)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
