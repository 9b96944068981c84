package stripe

import (
	"fmt"
	"strings"

	"github.com/goliatone/go-payments/core"
	"github.com/goliatone/go-payments/webhooks"
)

const (
	EventChargeSucceeded = "charge.succeeded"
	EventChargeFailed    = "charge.failed"
)

type WebhookConfig struct {
	SigningSecret string
}

func DefaultWebhookConfig(secret string) WebhookConfig {
	return WebhookConfig{SigningSecret: strings.TrimSpace(secret)}
}

func NewWebhookTemplate(cfg WebhookConfig) webhooks.ProviderWebhookTemplate {
	template := webhooks.NewStripeWebhookTemplate(cfg.SigningSecret)
	template.ProviderID = ProviderID
	template.Normalizer = NormalizeNotification
	return template
}

// NormalizeNotification maps charge events onto outcomes. Other event types
// are returned without an outcome and are acknowledged untouched.
func NormalizeNotification(req core.InboundRequest) (webhooks.Notification, error) {
	payload, err := webhooks.DecodePayload(req.Body)
	if err != nil {
		return webhooks.Notification{}, fmt.Errorf("providers/stripe: %w", err)
	}
	eventType := strings.ToLower(webhooks.LookupString(payload, "type"))
	notification := webhooks.Notification{
		ProviderID:        ProviderID,
		DeliveryID:        webhooks.LookupString(payload, "id"),
		EventType:         eventType,
		ProviderReference: webhooks.LookupString(payload, "data", "object", "id"),
		Detail:            map[string]any{},
	}
	switch eventType {
	case EventChargeSucceeded:
		notification.Outcome = core.ProviderOutcomeSuccess
	case EventChargeFailed:
		notification.Outcome = core.ProviderOutcomeFailure
		notification.FailureReason = webhooks.FirstNonEmpty(
			webhooks.LookupString(payload, "data", "object", "failure_message"),
			"Payment failed",
		)
		if code := webhooks.LookupString(payload, "data", "object", "failure_code"); code != "" {
			notification.Detail["failure_code"] = code
		}
	}
	return notification, nil
}
