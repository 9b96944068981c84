package security

import (
	"bytes"
	"context"
	"testing"
	"time"
)

func TestAppKeySecretProvider_EncryptDecryptRoundTrip(t *testing.T) {
	provider, err := NewAppKeySecretProviderFromString("super-secret-test-key", WithKeyID("payments-v1"), WithVersion(3))
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}

	plaintext := []byte("client-secret-123")
	encrypted, err := provider.Encrypt(context.Background(), plaintext)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if bytes.Equal(encrypted, plaintext) {
		t.Fatalf("expected encrypted payload to differ from plaintext")
	}
	if !IsSealed(string(encrypted)) {
		t.Fatalf("expected envelope prefix")
	}

	meta, err := ParseEnvelopeMetadata(encrypted)
	if err != nil {
		t.Fatalf("parse metadata: %v", err)
	}
	if meta.KeyID != "payments-v1" || meta.Version != 3 || meta.Algorithm != envelopeAlgorithm {
		t.Fatalf("unexpected envelope metadata: %#v", meta)
	}

	decrypted, err := provider.Decrypt(context.Background(), encrypted)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if !bytes.Equal(decrypted, plaintext) {
		t.Fatalf("expected roundtrip plaintext; got %q", string(decrypted))
	}
}

func TestAppKeySecretProvider_RejectsMetadataMismatch(t *testing.T) {
	issuer, err := NewAppKeySecretProviderFromString("super-secret-test-key", WithKeyID("payments-v1"), WithVersion(1))
	if err != nil {
		t.Fatalf("new issuer provider: %v", err)
	}
	receiver, err := NewAppKeySecretProviderFromString("super-secret-test-key", WithKeyID("payments-v2"), WithVersion(2))
	if err != nil {
		t.Fatalf("new receiver provider: %v", err)
	}

	encrypted, err := issuer.Encrypt(context.Background(), []byte("payload"))
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if _, err := receiver.Decrypt(context.Background(), encrypted); err == nil {
		t.Fatalf("expected metadata mismatch error")
	}
}

func TestAppKeySecretProvider_RejectsUnprefixedCiphertext(t *testing.T) {
	provider, err := NewAppKeySecretProviderFromString("key")
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	if _, err := provider.Decrypt(context.Background(), []byte(`{"kid":"app-key"}`)); err == nil {
		t.Fatalf("expected prefix error")
	}
	if _, err := provider.Encrypt(context.Background(), nil); err == nil {
		t.Fatalf("expected empty plaintext error")
	}
	if _, err := NewAppKeySecretProvider([]byte("  ")); err == nil {
		t.Fatalf("expected key material error")
	}
}

func TestAppKeySecretProvider_OpensRetiredKeyInsideWindow(t *testing.T) {
	ctx := context.Background()
	old, err := NewAppKeySecretProviderFromString("old-key", WithKeyID("payments"), WithVersion(1))
	if err != nil {
		t.Fatalf("new old provider: %v", err)
	}
	sealed, err := old.Encrypt(ctx, []byte("legacy"))
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	cutover := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	now := cutover.Add(-time.Hour)
	current, err := NewAppKeySecretProviderFromString("new-key",
		WithKeyID("payments"),
		WithVersion(2),
		WithRetiredKey([]byte("old-key"), "payments", 1, KeyRotationWindow{NotAfter: cutover}),
		WithClock(func() time.Time { return now }),
	)
	if err != nil {
		t.Fatalf("new current provider: %v", err)
	}

	opened, err := current.Decrypt(ctx, sealed)
	if err != nil {
		t.Fatalf("decrypt with retired key: %v", err)
	}
	if string(opened) != "legacy" {
		t.Fatalf("unexpected plaintext %q", string(opened))
	}

	resealed, err := current.Encrypt(ctx, opened)
	if err != nil {
		t.Fatalf("reseal: %v", err)
	}
	meta, _ := ParseEnvelopeMetadata(resealed)
	if meta.Version != 2 {
		t.Fatalf("expected reseal with active key version 2, got %d", meta.Version)
	}

	now = cutover.Add(time.Hour)
	if _, err := current.Decrypt(ctx, sealed); err == nil {
		t.Fatalf("expected retired key outside window to be rejected")
	}
}

func TestAppKeySecretProvider_RejectsRetiredKeyCollision(t *testing.T) {
	_, err := NewAppKeySecretProviderFromString("new-key",
		WithKeyID("payments"),
		WithVersion(2),
		WithRetiredKey([]byte("old-key"), "payments", 2, KeyRotationWindow{}),
	)
	if err == nil {
		t.Fatalf("expected collision error")
	}
}

func TestKeyRotationWindow_Allows(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)
	window := KeyRotationWindow{NotBefore: start, NotAfter: end}
	if window.Allows(start.Add(-time.Second)) {
		t.Fatalf("expected window to reject before start")
	}
	if !window.Allows(start.Add(time.Hour)) {
		t.Fatalf("expected window to allow inside range")
	}
	if window.Allows(end.Add(time.Second)) {
		t.Fatalf("expected window to reject after end")
	}
	if !(KeyRotationWindow{}).Allows(end) {
		t.Fatalf("expected open window to allow")
	}
}
