package sqlstore

import (
	"fmt"

	"github.com/goliatone/go-payments/core"
	"github.com/goliatone/go-payments/webhooks"
	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/uptrace/bun"
)

// RepositoryFactory builds the SQL-backed stores from a bun handle or a
// go-persistence-bun client.
type RepositoryFactory struct {
	db    *bun.DB
	cache repositorycache.CacheService

	ledgerStore          *LedgerStore
	webhookDeliveryStore *WebhookDeliveryStore
}

func NewRepositoryFactory() *RepositoryFactory {
	return &RepositoryFactory{}
}

// WithClientCache makes BuildLedgerStore wrap the ledger in a
// CachedClientDirectory.
func (f *RepositoryFactory) WithClientCache(cacheService repositorycache.CacheService) *RepositoryFactory {
	f.cache = cacheService
	return f
}

func NewRepositoryFactoryFromPersistence(client *persistence.Client) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory()
	if _, err := factory.BuildLedgerStore(client); err != nil {
		return nil, err
	}
	return factory, nil
}

func NewRepositoryFactoryFromDB(db *bun.DB) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory()
	if _, err := factory.BuildLedgerStore(db); err != nil {
		return nil, err
	}
	return factory, nil
}

func (f *RepositoryFactory) BuildLedgerStore(persistenceClient any) (core.LedgerStore, error) {
	if f == nil {
		return nil, fmt.Errorf("sqlstore: repository factory is nil")
	}
	if f.db == nil {
		db, err := resolveBunDB(persistenceClient)
		if err != nil {
			return nil, err
		}
		f.db = db
	}
	if f.ledgerStore == nil {
		if err := f.initStores(); err != nil {
			return nil, err
		}
	}
	if f.cache != nil {
		return NewCachedClientDirectory(f.ledgerStore, f.cache)
	}
	return f.ledgerStore, nil
}

func (f *RepositoryFactory) LedgerStore() *LedgerStore {
	if f == nil {
		return nil
	}
	return f.ledgerStore
}

func (f *RepositoryFactory) WebhookDeliveryStore() webhooks.DeliveryLedger {
	if f == nil || f.webhookDeliveryStore == nil {
		return nil
	}
	return f.webhookDeliveryStore
}

func (f *RepositoryFactory) DB() *bun.DB {
	if f == nil {
		return nil
	}
	return f.db
}

func (f *RepositoryFactory) initStores() error {
	ledgerStore, err := NewLedgerStore(f.db)
	if err != nil {
		return err
	}
	deliveryStore, err := NewWebhookDeliveryStore(f.db)
	if err != nil {
		return err
	}
	f.ledgerStore = ledgerStore
	f.webhookDeliveryStore = deliveryStore
	return nil
}

func resolveBunDB(candidate any) (*bun.DB, error) {
	switch typed := candidate.(type) {
	case nil:
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	case *bun.DB:
		return typed, nil
	case interface{ DB() *bun.DB }:
		db := typed.DB()
		if db == nil {
			return nil, fmt.Errorf("sqlstore: persistence client returned nil bun db")
		}
		return db, nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported persistence client type %T", candidate)
	}
}
