package paypal

import (
	"fmt"
	"strings"

	"github.com/goliatone/go-payments/core"
	"github.com/goliatone/go-payments/webhooks"
)

const (
	EventCheckoutOrderCompleted = "CHECKOUT.ORDER.COMPLETED"
	EventPaymentCaptureDenied   = "PAYMENT.CAPTURE.DENIED"
)

type WebhookConfig struct {
	AuthToken string
}

func DefaultWebhookConfig(token string) WebhookConfig {
	return WebhookConfig{AuthToken: strings.TrimSpace(token)}
}

func NewWebhookTemplate(cfg WebhookConfig) webhooks.ProviderWebhookTemplate {
	template := webhooks.NewPayPalWebhookTemplate(cfg.AuthToken)
	template.ProviderID = ProviderID
	template.Normalizer = NormalizeNotification
	return template
}

func NormalizeNotification(req core.InboundRequest) (webhooks.Notification, error) {
	payload, err := webhooks.DecodePayload(req.Body)
	if err != nil {
		return webhooks.Notification{}, fmt.Errorf("providers/paypal: %w", err)
	}
	eventType := strings.ToUpper(webhooks.LookupString(payload, "event_type"))
	notification := webhooks.Notification{
		ProviderID:        ProviderID,
		DeliveryID:        webhooks.LookupString(payload, "id"),
		EventType:         eventType,
		ProviderReference: webhooks.LookupString(payload, "resource", "id"),
	}
	switch eventType {
	case EventCheckoutOrderCompleted:
		notification.Outcome = core.ProviderOutcomeSuccess
	case EventPaymentCaptureDenied:
		notification.Outcome = core.ProviderOutcomeFailure
		notification.FailureReason = webhooks.FirstNonEmpty(
			webhooks.LookupString(payload, "summary"),
			"Payment capture denied",
		)
	}
	return notification, nil
}
