package card

import (
	"context"
	"strings"

	"github.com/goliatone/go-payments/core"
	"github.com/goliatone/go-payments/providers"
)

const (
	CredentialToken    = "card_token"
	DeclineTokenPrefix = "tok_decline"
)

type Config struct {
	Simulator providers.Simulator
}

// Provider authorizes card payments synchronously from a tokenized card.
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
	return core.PaymentMethodCard
}

func (p *Provider) Authorize(ctx context.Context, req core.AuthorizeRequest) (core.ProviderResult, error) {
	if err := providers.ValidateAuthorizeRequest(core.PaymentMethodCard, req); err != nil {
		return providers.Declined(err.Error(), nil), nil
	}
	if err := p.cfg.Simulator.Wait(ctx); err != nil {
		return core.ProviderResult{}, err
	}

	token := providers.Credential(req, CredentialToken)
	if token == "" {
		return providers.Declined("card token is required", map[string]any{"provider": "card"}), nil
	}
	if strings.HasPrefix(strings.ToLower(token), DeclineTokenPrefix) {
		return providers.Declined("card declined by issuer", map[string]any{
			"provider":  "card",
			"last_four": lastFour(token),
		}), nil
	}
	return core.ProviderResult{
		Outcome:           core.ProviderOutcomeSuccess,
		ProviderReference: providers.RandomReference("CARD_", 20),
		Detail: map[string]any{
			"provider":  "card",
			"last_four": lastFour(token),
		},
	}, nil
}

// lastFour masks everything but a trailing four digits; tokens without them
// report "****".
func lastFour(token string) string {
	digits := make([]rune, 0, 4)
	for _, r := range token {
		if r >= '0' && r <= '9' {
			digits = append(digits, r)
		}
	}
	if len(digits) < 4 {
		return "****"
	}
	return string(digits[len(digits)-4:])
}
