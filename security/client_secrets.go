package security

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-payments/core"
)

// SealedLedgerStore seals ApiClient.Secret before it reaches the wrapped
// store and opens it again on read. Secrets written before sealing was
// enabled are returned as stored.
type SealedLedgerStore struct {
	core.LedgerStore
	provider SecretProvider
}

func NewSealedLedgerStore(store core.LedgerStore, provider SecretProvider) (*SealedLedgerStore, error) {
	if store == nil {
		return nil, fmt.Errorf("security: ledger store is required")
	}
	if provider == nil {
		return nil, fmt.Errorf("security: secret provider is required")
	}
	return &SealedLedgerStore{LedgerStore: store, provider: provider}, nil
}

func (s *SealedLedgerStore) SaveClient(ctx context.Context, client core.ApiClient) (core.ApiClient, error) {
	plaintext := client.Secret
	if plaintext != "" && !IsSealed(plaintext) {
		sealed, err := s.provider.Encrypt(ctx, []byte(plaintext))
		if err != nil {
			return core.ApiClient{}, sealingError("seal client secret", err)
		}
		client.Secret = string(sealed)
	}
	saved, err := s.LedgerStore.SaveClient(ctx, client)
	if err != nil {
		return core.ApiClient{}, err
	}
	return s.open(ctx, saved)
}

func (s *SealedLedgerStore) GetClient(ctx context.Context, id string) (core.ApiClient, error) {
	client, err := s.LedgerStore.GetClient(ctx, id)
	if err != nil {
		return core.ApiClient{}, err
	}
	return s.open(ctx, client)
}

func (s *SealedLedgerStore) open(ctx context.Context, client core.ApiClient) (core.ApiClient, error) {
	if !IsSealed(client.Secret) {
		return client, nil
	}
	plaintext, err := s.provider.Decrypt(ctx, []byte(client.Secret))
	if err != nil {
		return core.ApiClient{}, sealingError("open client secret", err)
	}
	client.Secret = string(plaintext)
	return client, nil
}

// ClientReader is the slice of the ledger needed to look up client secrets.
type ClientReader interface {
	GetClient(ctx context.Context, id string) (core.ApiClient, error)
}

// ClientSecretResolver signs notifications with each client's own secret.
type ClientSecretResolver struct {
	clients ClientReader
}

func NewClientSecretResolver(clients ClientReader) (*ClientSecretResolver, error) {
	if clients == nil {
		return nil, fmt.Errorf("security: client reader is required")
	}
	return &ClientSecretResolver{clients: clients}, nil
}

func (r *ClientSecretResolver) SigningSecret(ctx context.Context, clientID string) (string, error) {
	clientID = strings.TrimSpace(clientID)
	if clientID == "" {
		return "", core.NewValidationError("client_id", "client id is required")
	}
	client, err := r.clients.GetClient(ctx, clientID)
	if err != nil {
		return "", err
	}
	if IsSealed(client.Secret) {
		return "", sealingError("resolve signing secret", fmt.Errorf("secret for client %s is still sealed", clientID))
	}
	return client.Secret, nil
}

func sealingError(message string, source error) error {
	return goerrors.Wrap(source, goerrors.CategoryInternal, "security: "+message).
		WithCode(http.StatusInternalServerError).
		WithTextCode(core.PaymentErrorInternal)
}
