package sqlstore

import "github.com/goliatone/go-payments/core"

var (
	_ core.LedgerStore        = (*LedgerStore)(nil)
	_ core.LedgerStoreFactory = (*RepositoryFactory)(nil)
)
