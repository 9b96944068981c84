package payments

import (
	"fmt"

	paymentscommand "github.com/goliatone/go-payments/command"
	paymentsquery "github.com/goliatone/go-payments/query"
)

type CommandQueryService interface {
	paymentscommand.MutatingService
	paymentsquery.Reader
}

type Commands struct {
	RegisterClient       *paymentscommand.RegisterClientCommand
	CreateOrder          *paymentscommand.CreateOrderCommand
	CancelOrder          *paymentscommand.CancelOrderCommand
	DispatchTransaction  *paymentscommand.DispatchTransactionCommand
	ReconcileTransaction *paymentscommand.ReconcileTransactionCommand
	RefundTransaction    *paymentscommand.RefundTransactionCommand
}

type Queries struct {
	GetOrder         *paymentsquery.GetOrderQuery
	ListOrders       *paymentsquery.ListOrdersQuery
	GetTransaction   *paymentsquery.GetTransactionQuery
	ListTransactions *paymentsquery.ListTransactionsQuery
}

type Facade struct {
	service  CommandQueryService
	commands Commands
	queries  Queries
}

type FacadeOption func(*facadeOptions)

type facadeOptions struct {
	reader paymentsquery.Reader
}

// WithReader serves queries from a different reader, such as a replica-backed
// service, while commands keep using the primary service.
func WithReader(reader paymentsquery.Reader) FacadeOption {
	return func(options *facadeOptions) {
		options.reader = reader
	}
}

func NewFacade(service CommandQueryService, opts ...FacadeOption) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("payments: command/query service is required")
	}
	cfg := facadeOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}
	reader := cfg.reader
	if reader == nil {
		reader = service
	}

	facade := &Facade{service: service}
	facade.commands = Commands{
		RegisterClient:       paymentscommand.NewRegisterClientCommand(service),
		CreateOrder:          paymentscommand.NewCreateOrderCommand(service),
		CancelOrder:          paymentscommand.NewCancelOrderCommand(service),
		DispatchTransaction:  paymentscommand.NewDispatchTransactionCommand(service),
		ReconcileTransaction: paymentscommand.NewReconcileTransactionCommand(service),
		RefundTransaction:    paymentscommand.NewRefundTransactionCommand(service),
	}
	facade.queries = Queries{
		GetOrder:         paymentsquery.NewGetOrderQuery(reader),
		ListOrders:       paymentsquery.NewListOrdersQuery(reader),
		GetTransaction:   paymentsquery.NewGetTransactionQuery(reader),
		ListTransactions: paymentsquery.NewListTransactionsQuery(reader),
	}
	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() CommandQueryService {
	if f == nil {
		return nil
	}
	return f.service
}
