package command

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-payments/core"
)

var (
	_ gocmd.Commander[RegisterClientMessage]       = (*RegisterClientCommand)(nil)
	_ gocmd.Commander[CreateOrderMessage]          = (*CreateOrderCommand)(nil)
	_ gocmd.Commander[CancelOrderMessage]          = (*CancelOrderCommand)(nil)
	_ gocmd.Commander[DispatchTransactionMessage]  = (*DispatchTransactionCommand)(nil)
	_ gocmd.Commander[ReconcileTransactionMessage] = (*ReconcileTransactionCommand)(nil)
	_ gocmd.Commander[RefundTransactionMessage]    = (*RefundTransactionCommand)(nil)

	_ MutatingService = (*core.Service)(nil)
)
