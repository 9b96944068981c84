package webhooks

import (
	"context"
	"fmt"

	"github.com/goliatone/go-payments/core"
)

// Reconciler is the slice of the payment service webhooks depend on.
type Reconciler interface {
	ReconcileByProviderReference(ctx context.Context, req core.ReconcileRequest) (core.ReconcileResult, error)
}

// ReconcileHandler feeds normalized notifications into the transaction state
// machine. Only errors worth a provider retry are returned; an unknown
// reference or a contradicting outcome is acknowledged.
type ReconcileHandler struct {
	reconciler Reconciler
}

func NewReconcileHandler(reconciler Reconciler) *ReconcileHandler {
	return &ReconcileHandler{reconciler: reconciler}
}

func (h *ReconcileHandler) HandleNotification(ctx context.Context, notification Notification) (HandleResult, error) {
	if h == nil || h.reconciler == nil {
		return HandleResult{}, fmt.Errorf("webhooks: reconcile handler requires a reconciler")
	}
	if !notification.Actionable() {
		return HandleResult{Status: HandleStatusIgnored}, nil
	}

	detail := map[string]any{}
	for key, value := range notification.Detail {
		detail[key] = value
	}
	if notification.EventType != "" {
		detail["event_type"] = notification.EventType
	}
	if notification.DeliveryID != "" {
		detail["delivery_id"] = notification.DeliveryID
	}

	result, err := h.reconciler.ReconcileByProviderReference(ctx, core.ReconcileRequest{
		ProviderReference: notification.ProviderReference,
		Outcome:           notification.Outcome,
		FailureReason:     notification.FailureReason,
		Detail:            detail,
		Source:            "webhook:" + notification.ProviderID,
	})
	handled := HandleResult{
		TransactionReference: result.Transaction.Reference,
		OrderReference:       result.Order.Reference,
		Applied:              result.Applied,
	}
	switch {
	case err == nil && !result.Matched:
		handled.Status = HandleStatusUnmatched
		return handled, nil
	case err == nil:
		handled.Status = HandleStatusReconciled
		return handled, nil
	case core.IsInvalidStateError(err), core.IsValidationError(err):
		handled.Status = HandleStatusConflict
		return handled, nil
	default:
		return HandleResult{}, err
	}
}
