package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/goliatone/go-payments/core"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

const clientCacheKeyPrefix = "go-payments::client::v1"

// CachedClientDirectory fronts a LedgerStore with a read-through cache for
// API client lookups. Every other operation goes to the wrapped store.
type CachedClientDirectory struct {
	core.LedgerStore
	cache repositorycache.CacheService
}

func NewCachedClientDirectory(
	base core.LedgerStore,
	cacheService repositorycache.CacheService,
) (*CachedClientDirectory, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base ledger store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: client cache service is required")
	}
	return &CachedClientDirectory{LedgerStore: base, cache: cacheService}, nil
}

// ClientCacheKey returns go-payments::client::v1::<client_id> with the id
// URL-path escaped.
func ClientCacheKey(clientID string) (string, error) {
	clientID = strings.TrimSpace(clientID)
	if clientID == "" {
		return "", core.NewValidationError("client_id", "client id is required")
	}
	return clientCacheKeyPrefix + "::" + url.PathEscape(clientID), nil
}

func (d *CachedClientDirectory) GetClient(ctx context.Context, id string) (core.ApiClient, error) {
	if d == nil || d.LedgerStore == nil || d.cache == nil {
		return core.ApiClient{}, fmt.Errorf("sqlstore: cached client directory is not configured")
	}
	cacheKey, err := ClientCacheKey(id)
	if err != nil {
		return core.ApiClient{}, err
	}
	client, err := repositorycache.GetOrFetch(ctx, d.cache, cacheKey, func(ctx context.Context) (core.ApiClient, error) {
		return d.LedgerStore.GetClient(ctx, id)
	})
	if err != nil {
		return core.ApiClient{}, err
	}
	return cloneClient(client), nil
}

func (d *CachedClientDirectory) SaveClient(ctx context.Context, client core.ApiClient) (core.ApiClient, error) {
	if d == nil || d.LedgerStore == nil || d.cache == nil {
		return core.ApiClient{}, fmt.Errorf("sqlstore: cached client directory is not configured")
	}
	saved, err := d.LedgerStore.SaveClient(ctx, client)
	if err != nil {
		return core.ApiClient{}, err
	}
	cacheKey, err := ClientCacheKey(saved.ID)
	if err != nil {
		return core.ApiClient{}, err
	}
	if err := d.cache.Delete(ctx, cacheKey); err != nil {
		return core.ApiClient{}, err
	}
	return saved, nil
}

func cloneClient(client core.ApiClient) core.ApiClient {
	cloned := client
	cloned.PaymentMethods = core.NewPaymentMethodSet()
	for method := range client.PaymentMethods {
		cloned.PaymentMethods[method] = struct{}{}
	}
	return cloned
}

var _ core.LedgerStore = (*CachedClientDirectory)(nil)
