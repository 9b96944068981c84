package command

import (
	"strings"

	"github.com/goliatone/go-payments/core"
)

const (
	TypeRegisterClient       = "payments.command.client.register"
	TypeCreateOrder          = "payments.command.order.create"
	TypeCancelOrder          = "payments.command.order.cancel"
	TypeDispatchTransaction  = "payments.command.transaction.dispatch"
	TypeReconcileTransaction = "payments.command.transaction.reconcile"
	TypeRefundTransaction    = "payments.command.transaction.refund"
)

type RegisterClientMessage struct {
	Client core.ApiClient
}

func (RegisterClientMessage) Type() string { return TypeRegisterClient }

func (m RegisterClientMessage) Validate() error {
	if strings.TrimSpace(m.Client.Name) == "" {
		return commandValidationError("name", "client name is required")
	}
	if strings.TrimSpace(m.Client.Secret) == "" {
		return commandValidationError("secret", "client secret is required")
	}
	return nil
}

type CreateOrderMessage struct {
	Request core.CreateOrderRequest
}

func (CreateOrderMessage) Type() string { return TypeCreateOrder }

func (m CreateOrderMessage) Validate() error {
	if strings.TrimSpace(m.Request.ClientID) == "" {
		return commandValidationError("client_id", "client id is required")
	}
	if strings.TrimSpace(m.Request.Amount) == "" {
		return commandValidationError("amount", "amount is required")
	}
	if strings.TrimSpace(m.Request.Currency) == "" {
		return commandValidationError("currency", "currency is required")
	}
	return nil
}

type CancelOrderMessage struct {
	Request core.CancelOrderRequest
}

func (CancelOrderMessage) Type() string { return TypeCancelOrder }

func (m CancelOrderMessage) Validate() error {
	if strings.TrimSpace(m.Request.ClientID) == "" {
		return commandValidationError("client_id", "client id is required")
	}
	if strings.TrimSpace(m.Request.OrderReference) == "" {
		return commandValidationError("order_id", "order reference is required")
	}
	return nil
}

type DispatchTransactionMessage struct {
	Request core.DispatchRequest
}

func (DispatchTransactionMessage) Type() string { return TypeDispatchTransaction }

func (m DispatchTransactionMessage) Validate() error {
	if strings.TrimSpace(m.Request.ClientID) == "" {
		return commandValidationError("client_id", "client id is required")
	}
	if strings.TrimSpace(m.Request.OrderReference) == "" {
		return commandValidationError("order_id", "order reference is required")
	}
	if _, err := core.ParsePaymentMethod(m.Request.Method); err != nil {
		return commandWrapValidation(err, "command: invalid payment method")
	}
	if strings.TrimSpace(m.Request.Amount) == "" {
		return commandValidationError("amount", "amount is required")
	}
	if strings.TrimSpace(m.Request.Currency) == "" {
		return commandValidationError("currency", "currency is required")
	}
	return nil
}

type ReconcileTransactionMessage struct {
	Request core.ReconcileRequest
}

func (ReconcileTransactionMessage) Type() string { return TypeReconcileTransaction }

func (m ReconcileTransactionMessage) Validate() error {
	if strings.TrimSpace(m.Request.ProviderReference) == "" {
		return commandValidationError("provider_reference", "provider reference is required")
	}
	if _, err := core.ParseProviderOutcome(string(m.Request.Outcome)); err != nil {
		return commandWrapValidation(err, "command: invalid provider outcome")
	}
	return nil
}

type RefundTransactionMessage struct {
	Request core.RefundRequest
}

func (RefundTransactionMessage) Type() string { return TypeRefundTransaction }

func (m RefundTransactionMessage) Validate() error {
	if strings.TrimSpace(m.Request.ClientID) == "" {
		return commandValidationError("client_id", "client id is required")
	}
	if strings.TrimSpace(m.Request.TransactionReference) == "" {
		return commandValidationError("transaction_id", "transaction reference is required")
	}
	return nil
}
