package mobilewallet

import (
	"context"

	"github.com/goliatone/go-payments/core"
	"github.com/goliatone/go-payments/providers"
)

const (
	ProviderID = "mobile_wallet"

	CredentialWalletAccount = "wallet_account"
)

type Config struct {
	Simulator providers.Simulator
}

// Provider pushes a payment request to the payer's wallet. The payer confirms
// on the device, so authorization always ends pending and the wallet reports
// the result through a webhook keyed by the returned reference.
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
	return core.PaymentMethodMobileWallet
}

func (p *Provider) Authorize(ctx context.Context, req core.AuthorizeRequest) (core.ProviderResult, error) {
	if err := providers.ValidateAuthorizeRequest(core.PaymentMethodMobileWallet, req); err != nil {
		return providers.Declined(err.Error(), nil), nil
	}
	if err := p.cfg.Simulator.Wait(ctx); err != nil {
		return core.ProviderResult{}, err
	}

	reference := providers.RandomReference("MW_", 20)
	detail := map[string]any{
		"provider":  ProviderID,
		"reference": reference,
	}
	if account := providers.Credential(req, CredentialWalletAccount); account != "" {
		detail["wallet_account"] = account
	}
	return core.ProviderResult{
		Outcome:           core.ProviderOutcomePending,
		ProviderReference: reference,
		Detail:            detail,
	}, nil
}
