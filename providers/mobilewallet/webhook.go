package mobilewallet

import (
	"fmt"
	"strings"

	"github.com/goliatone/go-payments/core"
	"github.com/goliatone/go-payments/webhooks"
)

const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

type WebhookConfig struct {
	SigningSecret string
}

func DefaultWebhookConfig(secret string) WebhookConfig {
	return WebhookConfig{SigningSecret: strings.TrimSpace(secret)}
}

func NewWebhookTemplate(cfg WebhookConfig) webhooks.ProviderWebhookTemplate {
	template := webhooks.NewMobileWalletWebhookTemplate(cfg.SigningSecret)
	template.ProviderID = ProviderID
	template.Normalizer = NormalizeNotification
	return template
}

func NormalizeNotification(req core.InboundRequest) (webhooks.Notification, error) {
	payload, err := webhooks.DecodePayload(req.Body)
	if err != nil {
		return webhooks.Notification{}, fmt.Errorf("providers/mobilewallet: %w", err)
	}
	status := strings.ToLower(webhooks.LookupString(payload, "status"))
	notification := webhooks.Notification{
		ProviderID:        ProviderID,
		EventType:         status,
		ProviderReference: webhooks.LookupString(payload, "reference"),
	}
	switch status {
	case StatusSuccess:
		notification.Outcome = core.ProviderOutcomeSuccess
	case StatusFailed:
		notification.Outcome = core.ProviderOutcomeFailure
		notification.FailureReason = webhooks.FirstNonEmpty(
			webhooks.LookupString(payload, "message"),
			"Wallet payment failed",
		)
	}
	return notification, nil
}
