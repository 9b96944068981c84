package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-payments/core"
)

var (
	_ gocmd.Querier[GetOrderMessage, core.Order]                 = (*GetOrderQuery)(nil)
	_ gocmd.Querier[ListOrdersMessage, core.OrderPage]           = (*ListOrdersQuery)(nil)
	_ gocmd.Querier[GetTransactionMessage, core.Transaction]     = (*GetTransactionQuery)(nil)
	_ gocmd.Querier[ListTransactionsMessage, []core.Transaction] = (*ListTransactionsQuery)(nil)

	_ Reader = (*core.Service)(nil)
)
