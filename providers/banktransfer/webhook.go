package banktransfer

import (
	"fmt"
	"strings"

	"github.com/goliatone/go-payments/core"
	"github.com/goliatone/go-payments/webhooks"
)

const (
	StatusConfirmed = "confirmed"
	StatusRejected  = "rejected"
)

type WebhookConfig struct {
	Token string
}

func DefaultWebhookConfig(token string) WebhookConfig {
	return WebhookConfig{Token: strings.TrimSpace(token)}
}

func NewWebhookTemplate(cfg WebhookConfig) webhooks.ProviderWebhookTemplate {
	template := webhooks.NewBankTransferWebhookTemplate(cfg.Token)
	template.ProviderID = ProviderID
	template.Normalizer = NormalizeNotification
	return template
}

func NormalizeNotification(req core.InboundRequest) (webhooks.Notification, error) {
	payload, err := webhooks.DecodePayload(req.Body)
	if err != nil {
		return webhooks.Notification{}, fmt.Errorf("providers/banktransfer: %w", err)
	}
	status := strings.ToLower(webhooks.LookupString(payload, "status"))
	notification := webhooks.Notification{
		ProviderID:        ProviderID,
		EventType:         status,
		ProviderReference: webhooks.LookupString(payload, "reference"),
	}
	switch status {
	case StatusConfirmed:
		notification.Outcome = core.ProviderOutcomeSuccess
		if amount := webhooks.LookupString(payload, "amount"); amount != "" {
			notification.Detail = map[string]any{"confirmed_amount": amount}
		}
	case StatusRejected:
		notification.Outcome = core.ProviderOutcomeFailure
		notification.FailureReason = webhooks.FirstNonEmpty(
			webhooks.LookupString(payload, "reason"),
			"Bank transfer rejected",
		)
	}
	return notification, nil
}
