package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-payments/core"
)

// MutatingService is the write side of the payments service.
type MutatingService interface {
	RegisterClient(ctx context.Context, client core.ApiClient) (core.ApiClient, error)
	CreateOrder(ctx context.Context, req core.CreateOrderRequest) (core.Order, error)
	CancelOrder(ctx context.Context, req core.CancelOrderRequest) (core.Order, error)
	DispatchTransaction(ctx context.Context, req core.DispatchRequest) (core.DispatchResult, error)
	ReconcileByProviderReference(ctx context.Context, req core.ReconcileRequest) (core.ReconcileResult, error)
	RefundTransaction(ctx context.Context, req core.RefundRequest) (core.Transaction, error)
}

type RegisterClientCommand struct {
	service MutatingService
}

func NewRegisterClientCommand(service MutatingService) *RegisterClientCommand {
	return &RegisterClientCommand{service: service}
}

func (c *RegisterClientCommand) Execute(ctx context.Context, msg RegisterClientMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: client service is required")
	}
	out, err := c.service.RegisterClient(ctx, msg.Client)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type CreateOrderCommand struct {
	service MutatingService
}

func NewCreateOrderCommand(service MutatingService) *CreateOrderCommand {
	return &CreateOrderCommand{service: service}
}

func (c *CreateOrderCommand) Execute(ctx context.Context, msg CreateOrderMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: order service is required")
	}
	out, err := c.service.CreateOrder(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type CancelOrderCommand struct {
	service MutatingService
}

func NewCancelOrderCommand(service MutatingService) *CancelOrderCommand {
	return &CancelOrderCommand{service: service}
}

func (c *CancelOrderCommand) Execute(ctx context.Context, msg CancelOrderMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: order service is required")
	}
	out, err := c.service.CancelOrder(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type DispatchTransactionCommand struct {
	service MutatingService
}

func NewDispatchTransactionCommand(service MutatingService) *DispatchTransactionCommand {
	return &DispatchTransactionCommand{service: service}
}

// Execute stores the DispatchResult even when the provider declined; a
// returned error means the transaction could not be recorded or resolved.
func (c *DispatchTransactionCommand) Execute(ctx context.Context, msg DispatchTransactionMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: dispatch service is required")
	}
	out, err := c.service.DispatchTransaction(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type ReconcileTransactionCommand struct {
	service MutatingService
}

func NewReconcileTransactionCommand(service MutatingService) *ReconcileTransactionCommand {
	return &ReconcileTransactionCommand{service: service}
}

func (c *ReconcileTransactionCommand) Execute(ctx context.Context, msg ReconcileTransactionMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: reconcile service is required")
	}
	out, err := c.service.ReconcileByProviderReference(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type RefundTransactionCommand struct {
	service MutatingService
}

func NewRefundTransactionCommand(service MutatingService) *RefundTransactionCommand {
	return &RefundTransactionCommand{service: service}
}

func (c *RefundTransactionCommand) Execute(ctx context.Context, msg RefundTransactionMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: refund service is required")
	}
	out, err := c.service.RefundTransaction(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
