// Package security seals client secrets at rest with an application key
// and resolves per-client signing secrets for outbound notifications.
package security

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
	"strings"
	"time"
)

// SecretProvider seals and opens opaque secret material.
type SecretProvider interface {
	Encrypt(ctx context.Context, plaintext []byte) ([]byte, error)
	Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error)
}

type Option func(*AppKeySecretProvider)

type appKey struct {
	key     []byte
	keyID   string
	version int
	window  KeyRotationWindow
}

// AppKeySecretProvider seals with the active key and opens envelopes written
// by the active key or any retired key still inside its rotation window.
type AppKeySecretProvider struct {
	active  appKey
	retired []appKey
	now     func() time.Time
}

func WithKeyID(id string) Option {
	return func(provider *AppKeySecretProvider) {
		trimmed := strings.TrimSpace(id)
		if trimmed != "" {
			provider.active.keyID = trimmed
		}
	}
}

func WithVersion(version int) Option {
	return func(provider *AppKeySecretProvider) {
		if version > 0 {
			provider.active.version = version
		}
	}
}

// WithRetiredKey keeps a previous key able to open secrets while window allows.
func WithRetiredKey(keyMaterial []byte, keyID string, version int, window KeyRotationWindow) Option {
	return func(provider *AppKeySecretProvider) {
		key := bytes.TrimSpace(keyMaterial)
		if len(key) == 0 {
			return
		}
		provider.retired = append(provider.retired, appKey{
			key:     normalizeKey(key),
			keyID:   strings.TrimSpace(keyID),
			version: version,
			window:  window,
		})
	}
}

func WithClock(now func() time.Time) Option {
	return func(provider *AppKeySecretProvider) {
		if now != nil {
			provider.now = now
		}
	}
}

func NewAppKeySecretProvider(keyMaterial []byte, opts ...Option) (*AppKeySecretProvider, error) {
	key := bytes.TrimSpace(keyMaterial)
	if len(key) == 0 {
		return nil, fmt.Errorf("security: key material is required")
	}
	provider := &AppKeySecretProvider{
		active: appKey{
			key:     normalizeKey(key),
			keyID:   "app-key",
			version: 1,
		},
		now: time.Now,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(provider)
	}
	for _, retired := range provider.retired {
		if retired.keyID == provider.active.keyID && retired.version == provider.active.version {
			return nil, fmt.Errorf("security: retired key %s/v%d collides with the active key", retired.keyID, retired.version)
		}
	}
	return provider, nil
}

func NewAppKeySecretProviderFromString(key string, opts ...Option) (*AppKeySecretProvider, error) {
	return NewAppKeySecretProvider([]byte(key), opts...)
}

func (p *AppKeySecretProvider) Encrypt(_ context.Context, plaintext []byte) ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("security: secret provider is nil")
	}
	if len(plaintext) == 0 {
		return nil, fmt.Errorf("security: plaintext is required")
	}
	gcm, err := newGCM(p.active.key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("security: nonce generation failed: %w", err)
	}

	sealed := gcm.Seal(nil, nonce, plaintext, nil)
	return encodeEnvelope(envelope{
		KeyID:      p.active.keyID,
		Version:    p.active.version,
		Algorithm:  envelopeAlgorithm,
		Nonce:      encodeCiphertextPayload(nonce),
		Ciphertext: encodeCiphertextPayload(sealed),
	})
}

func (p *AppKeySecretProvider) Decrypt(_ context.Context, ciphertext []byte) ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("security: secret provider is nil")
	}
	parsed, err := decodeEnvelope(ciphertext)
	if err != nil {
		return nil, err
	}
	key, err := p.keyFor(parsed)
	if err != nil {
		return nil, err
	}

	nonce, err := decodeCiphertextPayload(parsed.Nonce)
	if err != nil {
		return nil, err
	}
	encryptedPayload, err := decodeCiphertextPayload(parsed.Ciphertext)
	if err != nil {
		return nil, err
	}

	gcm, err := newGCM(key.key)
	if err != nil {
		return nil, err
	}
	plaintext, err := gcm.Open(nil, nonce, encryptedPayload, nil)
	if err != nil {
		return nil, fmt.Errorf("security: decrypt payload: %w", err)
	}
	return plaintext, nil
}

func (p *AppKeySecretProvider) keyFor(env envelope) (appKey, error) {
	if matchesKey(p.active, env) {
		return p.active, nil
	}
	for _, retired := range p.retired {
		if !matchesKey(retired, env) {
			continue
		}
		if !retired.window.Allows(p.now()) {
			return appKey{}, fmt.Errorf("security: key %s/v%d is outside its rotation window", retired.keyID, retired.version)
		}
		return retired, nil
	}
	return appKey{}, fmt.Errorf("security: no key for %q version %d (active %q version %d)", env.KeyID, env.Version, p.active.keyID, p.active.version)
}

func matchesKey(key appKey, env envelope) bool {
	if env.KeyID != "" && env.KeyID != key.keyID {
		return false
	}
	if env.Version > 0 && env.Version != key.version {
		return false
	}
	return true
}

func (p *AppKeySecretProvider) KeyID() string {
	if p == nil {
		return ""
	}
	return p.active.keyID
}

func (p *AppKeySecretProvider) Version() int {
	if p == nil {
		return 0
	}
	return p.active.version
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("security: create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("security: create gcm: %w", err)
	}
	return gcm, nil
}

func normalizeKey(value []byte) []byte {
	if len(value) == 16 || len(value) == 24 || len(value) == 32 {
		key := make([]byte, len(value))
		copy(key, value)
		return key
	}
	sum := sha256.Sum256(value)
	key := make([]byte, len(sum))
	copy(key, sum[:])
	return key
}

var _ SecretProvider = (*AppKeySecretProvider)(nil)
