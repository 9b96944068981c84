package payments

import (
	"github.com/goliatone/go-payments/core"
	"github.com/goliatone/go-payments/security"
)

// SealClientSecrets wraps store so client secrets are sealed with keyMaterial at rest.
func SealClientSecrets(store core.LedgerStore, keyMaterial []byte, opts ...security.Option) (*security.SealedLedgerStore, error) {
	provider, err := security.NewAppKeySecretProvider(keyMaterial, opts...)
	if err != nil {
		return nil, err
	}
	return security.NewSealedLedgerStore(store, provider)
}

// ClientSigningSecrets signs outbound notifications with each client's secret.
func ClientSigningSecrets(clients security.ClientReader) (*security.ClientSecretResolver, error) {
	return security.NewClientSecretResolver(clients)
}
