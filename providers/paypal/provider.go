package paypal

import (
	"context"

	"github.com/goliatone/go-payments/core"
	"github.com/goliatone/go-payments/providers"
)

const (
	ProviderID = "paypal"

	// CredentialToken carries the order id approved by the payer, when the
	// checkout already happened client-side.
	CredentialToken = "paypal_token"
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
	return core.PaymentMethodPayPal
}

func (p *Provider) Authorize(ctx context.Context, req core.AuthorizeRequest) (core.ProviderResult, error) {
	if err := providers.ValidateAuthorizeRequest(core.PaymentMethodPayPal, req); err != nil {
		return providers.Declined(err.Error(), nil), nil
	}
	if err := p.cfg.Simulator.Wait(ctx); err != nil {
		return core.ProviderResult{}, err
	}

	reference := providers.Credential(req, CredentialToken)
	if reference == "" {
		reference = providers.RandomReference("PAY_", 20)
	}
	return core.ProviderResult{
		Outcome:           core.ProviderOutcomeSuccess,
		ProviderReference: reference,
		Detail: map[string]any{
			"provider":       ProviderID,
			"transaction_id": reference,
		},
	}, nil
}
