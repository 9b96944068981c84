package query

import (
	"context"

	"github.com/goliatone/go-payments/core"
)

// Reader is the read side of the payments service. Every lookup is scoped
// to the owning client; a record of another client reads as not found.
type Reader interface {
	GetOrder(ctx context.Context, clientID string, reference string) (core.Order, error)
	ListOrders(ctx context.Context, filter core.OrderFilter) (core.OrderPage, error)
	GetTransaction(ctx context.Context, clientID string, reference string) (core.Transaction, error)
	ListTransactions(ctx context.Context, clientID string, orderReference string) ([]core.Transaction, error)
}

type GetOrderQuery struct {
	reader Reader
}

func NewGetOrderQuery(reader Reader) *GetOrderQuery {
	return &GetOrderQuery{reader: reader}
}

func (q *GetOrderQuery) Query(ctx context.Context, msg GetOrderMessage) (core.Order, error) {
	if q == nil || q.reader == nil {
		return core.Order{}, queryDependencyError("query: order reader is required")
	}
	return q.reader.GetOrder(ctx, msg.ClientID, msg.OrderReference)
}

type ListOrdersQuery struct {
	reader Reader
}

func NewListOrdersQuery(reader Reader) *ListOrdersQuery {
	return &ListOrdersQuery{reader: reader}
}

func (q *ListOrdersQuery) Query(ctx context.Context, msg ListOrdersMessage) (core.OrderPage, error) {
	if q == nil || q.reader == nil {
		return core.OrderPage{}, queryDependencyError("query: order reader is required")
	}
	return q.reader.ListOrders(ctx, msg.Filter)
}

type GetTransactionQuery struct {
	reader Reader
}

func NewGetTransactionQuery(reader Reader) *GetTransactionQuery {
	return &GetTransactionQuery{reader: reader}
}

func (q *GetTransactionQuery) Query(ctx context.Context, msg GetTransactionMessage) (core.Transaction, error) {
	if q == nil || q.reader == nil {
		return core.Transaction{}, queryDependencyError("query: transaction reader is required")
	}
	return q.reader.GetTransaction(ctx, msg.ClientID, msg.TransactionReference)
}

type ListTransactionsQuery struct {
	reader Reader
}

func NewListTransactionsQuery(reader Reader) *ListTransactionsQuery {
	return &ListTransactionsQuery{reader: reader}
}

func (q *ListTransactionsQuery) Query(ctx context.Context, msg ListTransactionsMessage) ([]core.Transaction, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: transaction reader is required")
	}
	return q.reader.ListTransactions(ctx, msg.ClientID, msg.OrderReference)
}
