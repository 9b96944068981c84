package gocommand

import (
	"context"
	"fmt"

	gocmd "github.com/goliatone/go-command"
	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-command/runner"
	"github.com/goliatone/go-payments/command"
	"github.com/goliatone/go-payments/core"
	"github.com/goliatone/go-payments/query"
)

// PaymentService is satisfied by core.Service.
type PaymentService interface {
	command.MutatingService
	query.Reader
}

// Subscriptions tracks dispatcher subscriptions so they can be released together.
type Subscriptions []commanddispatcher.Subscription

func (s Subscriptions) Unsubscribe() {
	for _, sub := range s {
		if sub != nil {
			sub.Unsubscribe()
		}
	}
}

// RegisterPaymentHandlers registers every payments command and query with
// the registry and subscribes them on the global dispatcher. On failure the
// subscriptions made so far are released. Each adapter accepts the set once.
func RegisterPaymentHandlers(
	adapter *RegistryAdapter,
	svc PaymentService,
	runnerOpts ...runner.Option,
) (subs Subscriptions, err error) {
	if svc == nil {
		return nil, fmt.Errorf("gocommand: payment service is required")
	}
	defer func() {
		if err != nil {
			subs.Unsubscribe()
			subs = nil
		}
	}()
	keep := func(sub commanddispatcher.Subscription, subErr error) error {
		if subErr == nil {
			subs = append(subs, sub)
		}
		return subErr
	}

	if err = keep(registerCommand[command.RegisterClientMessage](adapter, command.NewRegisterClientCommand(svc), runnerOpts...)); err != nil {
		return subs, err
	}
	if err = keep(registerCommand[command.CreateOrderMessage](adapter, command.NewCreateOrderCommand(svc), runnerOpts...)); err != nil {
		return subs, err
	}
	if err = keep(registerCommand[command.CancelOrderMessage](adapter, command.NewCancelOrderCommand(svc), runnerOpts...)); err != nil {
		return subs, err
	}
	if err = keep(registerCommand[command.DispatchTransactionMessage](adapter, command.NewDispatchTransactionCommand(svc), runnerOpts...)); err != nil {
		return subs, err
	}
	if err = keep(registerCommand[command.ReconcileTransactionMessage](adapter, command.NewReconcileTransactionCommand(svc), runnerOpts...)); err != nil {
		return subs, err
	}
	if err = keep(registerCommand[command.RefundTransactionMessage](adapter, command.NewRefundTransactionCommand(svc), runnerOpts...)); err != nil {
		return subs, err
	}
	if err = keep(registerQuery[query.GetOrderMessage, core.Order](adapter, query.NewGetOrderQuery(svc), runnerOpts...)); err != nil {
		return subs, err
	}
	if err = keep(registerQuery[query.ListOrdersMessage, core.OrderPage](adapter, query.NewListOrdersQuery(svc), runnerOpts...)); err != nil {
		return subs, err
	}
	if err = keep(registerQuery[query.GetTransactionMessage, core.Transaction](adapter, query.NewGetTransactionQuery(svc), runnerOpts...)); err != nil {
		return subs, err
	}
	err = keep(registerQuery[query.ListTransactionsMessage, []core.Transaction](adapter, query.NewListTransactionsQuery(svc), runnerOpts...))
	return subs, err
}

// DispatchForResult dispatches msg and returns the value its handler stored
// in the result collector.
func DispatchForResult[T any, R any](ctx context.Context, msg T) (R, error) {
	var zero R
	if err := ValidateMessageContract(msg); err != nil {
		return zero, err
	}
	collector := gocmd.NewResult[R]()
	if err := Dispatch(gocmd.ContextWithResult(ctx, collector), msg); err != nil {
		return zero, err
	}
	value, ok := collector.Load()
	if !ok {
		return zero, fmt.Errorf("gocommand: %T produced no %T result", msg, zero)
	}
	return value, nil
}

func CreateOrder(ctx context.Context, req core.CreateOrderRequest) (core.Order, error) {
	return DispatchForResult[command.CreateOrderMessage, core.Order](ctx, command.CreateOrderMessage{Request: req})
}

// DispatchTransaction returns the result for declined payments too; only
// rejected requests surface as errors.
func DispatchTransaction(ctx context.Context, req core.DispatchRequest) (core.DispatchResult, error) {
	return DispatchForResult[command.DispatchTransactionMessage, core.DispatchResult](ctx, command.DispatchTransactionMessage{Request: req})
}
