package core

import (
	"context"
	"strings"
	"time"
)

// BuildNotificationEvent snapshots a committed transition into an outbound event.
func BuildNotificationEvent(
	id string,
	kind EventKind,
	target string,
	order Order,
	txn Transaction,
	occurredAt time.Time,
) NotificationEvent {
	return NotificationEvent{
		ID:                   id,
		Kind:                 kind,
		ClientID:             txn.ClientID,
		Target:               strings.TrimSpace(target),
		OrderReference:       order.Reference,
		TransactionReference: txn.Reference,
		Method:               txn.Method,
		Amount:               txn.Money().AmountString(),
		Currency:             txn.Currency,
		Status:               txn.Status,
		OrderStatus:          order.Status,
		FailureReason:        txn.FailureReason,
		OccurredAt:           occurredAt.UTC(),
	}
}

// notify hands the event to the delivery mechanism. Hand-off errors are
// logged; they never roll back the committed transition.
func (s *Service) notify(ctx context.Context, kind EventKind, order Order, txn Transaction) {
	if s == nil {
		return
	}
	fields := map[string]any{
		"event":                 string(kind),
		"order_reference":       order.Reference,
		"transaction_reference": txn.Reference,
	}
	if s.config.Notifications.Disabled {
		return
	}
	if kind == EventPaymentFailed && s.config.Notifications.SkipFailureEvents {
		return
	}
	if s.notificationDelivery == nil {
		s.logInfo(ctx, "notification skipped: no delivery configured", fields)
		return
	}

	target := order.WebhookURL
	if strings.TrimSpace(target) == "" {
		client, err := s.store.GetClient(ctx, txn.ClientID)
		if err != nil {
			fields["error"] = err.Error()
			s.logError(ctx, "notification target lookup failed", fields)
			return
		}
		target = client.WebhookURL
	}
	if strings.TrimSpace(target) == "" {
		s.logInfo(ctx, "notification skipped: no webhook target", fields)
		return
	}

	event := BuildNotificationEvent(s.references.NewID(), kind, target, order, txn, s.now())
	fields["event_id"] = event.ID
	tags := map[string]string{"event": string(kind), "client_id": txn.ClientID}
	if err := s.notificationDelivery.Send(context.WithoutCancel(ctx), event); err != nil {
		fields["error"] = err.Error()
		s.recordCounter(ctx, "payments.notification.handoff_failed", 1, tags)
		s.logError(ctx, "notification hand-off failed", fields)
		return
	}
	s.recordCounter(ctx, "payments.notification.handoff", 1, tags)
}
