package query

import (
	"strings"

	"github.com/goliatone/go-payments/core"
)

const (
	TypeGetOrder         = "payments.query.order.get"
	TypeListOrders       = "payments.query.order.list"
	TypeGetTransaction   = "payments.query.transaction.get"
	TypeListTransactions = "payments.query.transaction.list"
)

type GetOrderMessage struct {
	ClientID       string
	OrderReference string
}

func (GetOrderMessage) Type() string { return TypeGetOrder }

func (m GetOrderMessage) Validate() error {
	if strings.TrimSpace(m.ClientID) == "" {
		return queryValidationError("client_id", "client id is required")
	}
	if strings.TrimSpace(m.OrderReference) == "" {
		return queryValidationError("order_id", "order reference is required")
	}
	return nil
}

type ListOrdersMessage struct {
	Filter core.OrderFilter
}

func (ListOrdersMessage) Type() string { return TypeListOrders }

func (m ListOrdersMessage) Validate() error {
	if strings.TrimSpace(m.Filter.ClientID) == "" {
		return queryValidationError("client_id", "client id is required")
	}
	if m.Filter.Status != "" {
		if !m.Filter.Status.Valid() {
			return queryValidationError("status", "unknown order status")
		}
	}
	if m.Filter.Limit < 0 || m.Filter.Offset < 0 {
		return queryValidationError("limit", "pagination values must not be negative")
	}
	return nil
}

type GetTransactionMessage struct {
	ClientID             string
	TransactionReference string
}

func (GetTransactionMessage) Type() string { return TypeGetTransaction }

func (m GetTransactionMessage) Validate() error {
	if strings.TrimSpace(m.ClientID) == "" {
		return queryValidationError("client_id", "client id is required")
	}
	if strings.TrimSpace(m.TransactionReference) == "" {
		return queryValidationError("transaction_id", "transaction reference is required")
	}
	return nil
}

type ListTransactionsMessage struct {
	ClientID       string
	OrderReference string
}

func (ListTransactionsMessage) Type() string { return TypeListTransactions }

func (m ListTransactionsMessage) Validate() error {
	if strings.TrimSpace(m.ClientID) == "" {
		return queryValidationError("client_id", "client id is required")
	}
	if strings.TrimSpace(m.OrderReference) == "" {
		return queryValidationError("order_id", "order reference is required")
	}
	return nil
}
