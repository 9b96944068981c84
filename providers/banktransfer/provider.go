package banktransfer

import (
	"context"

	"github.com/goliatone/go-payments/core"
	"github.com/goliatone/go-payments/providers"
)

const ProviderID = "bank_transfer"

type Config struct {
	// Instructions are returned to the payer alongside the transfer reference.
	Instructions string
	Simulator    providers.Simulator
}

type Provider struct {
	cfg Config
}

func DefaultConfig() Config {
	return Config{Instructions: "Include the transfer reference in the payment description."}
}

func New(cfg Config) (*Provider, error) {
	if cfg.Instructions == "" {
		cfg.Instructions = DefaultConfig().Instructions
	}
	return &Provider{cfg: cfg}, nil
}

func (*Provider) Method() core.PaymentMethod {
	return core.PaymentMethodBankTransfer
}

// Authorize issues a transfer reference. Funds arrive later, so the result is
// pending until the bank confirms through a webhook.
func (p *Provider) Authorize(ctx context.Context, req core.AuthorizeRequest) (core.ProviderResult, error) {
	if err := providers.ValidateAuthorizeRequest(core.PaymentMethodBankTransfer, req); err != nil {
		return providers.Declined(err.Error(), nil), nil
	}
	if err := p.cfg.Simulator.Wait(ctx); err != nil {
		return core.ProviderResult{}, err
	}

	reference := providers.RandomReference("BT_", 20)
	return core.ProviderResult{
		Outcome:           core.ProviderOutcomePending,
		ProviderReference: reference,
		Detail: map[string]any{
			"provider":     ProviderID,
			"reference":    reference,
			"instructions": p.cfg.Instructions,
		},
	}, nil
}
