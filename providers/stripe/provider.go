package stripe

import (
	"context"
	"strings"

	"github.com/goliatone/go-payments/core"
	"github.com/goliatone/go-payments/providers"
)

const (
	ProviderID = "stripe"

	CredentialToken = "stripe_token"
	// DeclinedToken mirrors the provider's test token for a declined charge.
	DeclinedToken = "tok_chargeDeclined"

	chargePrefix = "ch_"
)

type Config struct {
	Simulator providers.Simulator
}

type Provider struct {
	cfg Config
}

func DefaultConfig() Config {
	return Config{}
}

func New(cfg Config) (*Provider, error) {
	return &Provider{cfg: cfg}, nil
}

func (*Provider) Method() core.PaymentMethod {
	return core.PaymentMethodStripe
}

// Authorize creates a charge. The charge id is the provider reference that
// later charge.* webhooks carry.
func (p *Provider) Authorize(ctx context.Context, req core.AuthorizeRequest) (core.ProviderResult, error) {
	if err := providers.ValidateAuthorizeRequest(core.PaymentMethodStripe, req); err != nil {
		return providers.Declined(err.Error(), nil), nil
	}
	if err := p.cfg.Simulator.Wait(ctx); err != nil {
		return core.ProviderResult{}, err
	}

	chargeID := providers.RandomReference(chargePrefix, 24)
	if strings.EqualFold(providers.Credential(req, CredentialToken), DeclinedToken) {
		result := providers.Declined("Your card was declined.", map[string]any{
			"provider":  ProviderID,
			"charge_id": chargeID,
		})
		result.ProviderReference = chargeID
		return result, nil
	}
	return core.ProviderResult{
		Outcome:           core.ProviderOutcomeSuccess,
		ProviderReference: chargeID,
		Detail: map[string]any{
			"provider":  ProviderID,
			"charge_id": chargeID,
		},
	}, nil
}
