package security

import (
	"context"
	"errors"
	"testing"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-payments/core"
	"github.com/goliatone/go-payments/delivery"
)

var _ delivery.SecretResolver = (*ClientSecretResolver)(nil)

func newTestSealer(t *testing.T) *AppKeySecretProvider {
	t.Helper()
	provider, err := NewAppKeySecretProviderFromString("ledger-test-key")
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	return provider
}

func TestSealedLedgerStore_SealsSecretAtRest(t *testing.T) {
	ctx := context.Background()
	raw := core.NewMemoryLedgerStore()
	store, err := NewSealedLedgerStore(raw, newTestSealer(t))
	if err != nil {
		t.Fatalf("new sealed store: %v", err)
	}

	saved, err := store.SaveClient(ctx, core.ApiClient{ID: "shop", Secret: "whsec_shop"})
	if err != nil {
		t.Fatalf("save client: %v", err)
	}
	if saved.Secret != "whsec_shop" {
		t.Fatalf("expected plaintext secret returned to caller, got %q", saved.Secret)
	}

	persisted, err := raw.GetClient(ctx, "shop")
	if err != nil {
		t.Fatalf("raw get: %v", err)
	}
	if !IsSealed(persisted.Secret) {
		t.Fatalf("expected sealed secret at rest, got %q", persisted.Secret)
	}

	loaded, err := store.GetClient(ctx, "shop")
	if err != nil {
		t.Fatalf("sealed get: %v", err)
	}
	if loaded.Secret != "whsec_shop" {
		t.Fatalf("expected opened secret, got %q", loaded.Secret)
	}
}

func TestSealedLedgerStore_PassesThroughLegacyPlaintext(t *testing.T) {
	ctx := context.Background()
	raw := core.NewMemoryLedgerStore()
	if _, err := raw.SaveClient(ctx, core.ApiClient{ID: "legacy", Secret: "plain"}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	store, _ := NewSealedLedgerStore(raw, newTestSealer(t))

	loaded, err := store.GetClient(ctx, "legacy")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if loaded.Secret != "plain" {
		t.Fatalf("expected legacy secret, got %q", loaded.Secret)
	}
	if _, err := store.GetClient(ctx, "missing"); !core.IsNotFoundError(err) {
		t.Fatalf("expected not found passthrough, got %v", err)
	}
}

func TestSealedLedgerStore_WrongKeyIsInternalError(t *testing.T) {
	ctx := context.Background()
	raw := core.NewMemoryLedgerStore()
	writer, _ := NewSealedLedgerStore(raw, newTestSealer(t))
	if _, err := writer.SaveClient(ctx, core.ApiClient{ID: "shop", Secret: "s"}); err != nil {
		t.Fatalf("save: %v", err)
	}

	other, _ := NewAppKeySecretProviderFromString("another-key")
	reader, _ := NewSealedLedgerStore(raw, other)
	_, err := reader.GetClient(ctx, "shop")
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) || rich.TextCode != core.PaymentErrorInternal {
		t.Fatalf("expected internal payment error, got %v", err)
	}
}

func TestSealedLedgerStore_RequiresDependencies(t *testing.T) {
	if _, err := NewSealedLedgerStore(nil, newTestSealer(t)); err == nil {
		t.Fatalf("expected store required error")
	}
	if _, err := NewSealedLedgerStore(core.NewMemoryLedgerStore(), nil); err == nil {
		t.Fatalf("expected provider required error")
	}
}

func TestSealedLedgerStore_ServesRegisteredClients(t *testing.T) {
	ctx := context.Background()
	raw := core.NewMemoryLedgerStore()
	store, _ := NewSealedLedgerStore(raw, newTestSealer(t))
	svc, err := core.NewService(core.DefaultConfig(), core.WithLedgerStore(store))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	client, err := svc.RegisterClient(ctx, core.ApiClient{ID: "shop", Secret: "whsec_shop", Active: true})
	if err != nil {
		t.Fatalf("register client: %v", err)
	}
	if client.Secret != "whsec_shop" {
		t.Fatalf("expected plaintext on register, got %q", client.Secret)
	}
	persisted, _ := raw.GetClient(ctx, "shop")
	if !IsSealed(persisted.Secret) {
		t.Fatalf("expected sealed secret in ledger")
	}

	resolver, err := NewClientSecretResolver(store)
	if err != nil {
		t.Fatalf("new resolver: %v", err)
	}
	secret, err := resolver.SigningSecret(ctx, "shop")
	if err != nil {
		t.Fatalf("signing secret: %v", err)
	}
	if secret != "whsec_shop" {
		t.Fatalf("unexpected signing secret %q", secret)
	}
}

type stubClientReader struct {
	client core.ApiClient
	err    error
}

func (s stubClientReader) GetClient(context.Context, string) (core.ApiClient, error) {
	return s.client, s.err
}

func TestClientSecretResolver_Errors(t *testing.T) {
	ctx := context.Background()
	if _, err := NewClientSecretResolver(nil); err == nil {
		t.Fatalf("expected reader required error")
	}

	resolver, _ := NewClientSecretResolver(stubClientReader{})
	if _, err := resolver.SigningSecret(ctx, " "); !core.IsValidationError(err) {
		t.Fatalf("expected validation error, got %v", err)
	}

	lookupErr := errors.New("ledger down")
	resolver, _ = NewClientSecretResolver(stubClientReader{err: lookupErr})
	if _, err := resolver.SigningSecret(ctx, "shop"); !errors.Is(err, lookupErr) {
		t.Fatalf("expected lookup error, got %v", err)
	}

	resolver, _ = NewClientSecretResolver(stubClientReader{client: core.ApiClient{ID: "shop", Secret: envelopePrefix + "{}"}})
	if _, err := resolver.SigningSecret(ctx, "shop"); err == nil {
		t.Fatalf("expected sealed secret error")
	}
}
