package payments

import (
	"fmt"

	"github.com/goliatone/go-payments/core"
	"github.com/goliatone/go-payments/inbound"
	"github.com/goliatone/go-payments/providers/banktransfer"
	"github.com/goliatone/go-payments/providers/card"
	"github.com/goliatone/go-payments/providers/mobilewallet"
	"github.com/goliatone/go-payments/providers/paypal"
	"github.com/goliatone/go-payments/providers/stripe"
	"github.com/goliatone/go-payments/webhooks"
)

func CardProvider(cfg card.Config) (core.ProviderAdapter, error) {
	return card.New(cfg)
}

func BankTransferProvider(cfg banktransfer.Config) (core.ProviderAdapter, error) {
	return banktransfer.New(cfg)
}

func MobileWalletProvider(cfg mobilewallet.Config) (core.ProviderAdapter, error) {
	return mobilewallet.New(cfg)
}

func PayPalProvider(cfg paypal.Config) (core.ProviderAdapter, error) {
	return paypal.New(cfg)
}

func StripeProvider(cfg stripe.Config) (core.ProviderAdapter, error) {
	return stripe.New(cfg)
}

// BuiltinProvidersConfig configures the bundled adapters, one per payment
// method.
type BuiltinProvidersConfig struct {
	Card         card.Config
	BankTransfer banktransfer.Config
	MobileWallet mobilewallet.Config
	PayPal       paypal.Config
	Stripe       stripe.Config
}

func DefaultBuiltinProvidersConfig() BuiltinProvidersConfig {
	return BuiltinProvidersConfig{
		Card:         card.DefaultConfig(),
		BankTransfer: banktransfer.DefaultConfig(),
		MobileWallet: mobilewallet.DefaultConfig(),
		PayPal:       paypal.DefaultConfig(),
		Stripe:       stripe.DefaultConfig(),
	}
}

// BuiltinProviders returns a registry holding an adapter for every payment
// method. Pass it to WithProviderResolver.
func BuiltinProviders(cfg BuiltinProvidersConfig) (*core.ProviderRegistry, error) {
	adapters := make([]core.ProviderAdapter, 0, 5)
	for _, build := range []func() (core.ProviderAdapter, error){
		func() (core.ProviderAdapter, error) { return CardProvider(cfg.Card) },
		func() (core.ProviderAdapter, error) { return BankTransferProvider(cfg.BankTransfer) },
		func() (core.ProviderAdapter, error) { return MobileWalletProvider(cfg.MobileWallet) },
		func() (core.ProviderAdapter, error) { return PayPalProvider(cfg.PayPal) },
		func() (core.ProviderAdapter, error) { return StripeProvider(cfg.Stripe) },
	} {
		adapter, err := build()
		if err != nil {
			return nil, err
		}
		adapters = append(adapters, adapter)
	}
	return core.NewProviderRegistry(adapters...)
}

// WebhookSecrets holds the shared secrets each asynchronous provider signs its
// callbacks with. A blank secret skips that provider.
type WebhookSecrets struct {
	BankTransferToken  string
	MobileWalletSecret string
	PayPalToken        string
	StripeSecret       string
}

// WebhookTemplates returns the templates for every provider with a secret.
func WebhookTemplates(secrets WebhookSecrets) []webhooks.ProviderWebhookTemplate {
	templates := []webhooks.ProviderWebhookTemplate{}
	if secrets.BankTransferToken != "" {
		templates = append(templates, banktransfer.NewWebhookTemplate(banktransfer.WebhookConfig{Token: secrets.BankTransferToken}))
	}
	if secrets.MobileWalletSecret != "" {
		templates = append(templates, mobilewallet.NewWebhookTemplate(mobilewallet.WebhookConfig{SigningSecret: secrets.MobileWalletSecret}))
	}
	if secrets.PayPalToken != "" {
		templates = append(templates, paypal.NewWebhookTemplate(paypal.WebhookConfig{AuthToken: secrets.PayPalToken}))
	}
	if secrets.StripeSecret != "" {
		templates = append(templates, stripe.NewWebhookTemplate(stripe.WebhookConfig{SigningSecret: secrets.StripeSecret}))
	}
	return templates
}

// NewWebhookRouter builds one processor per template, all sharing the
// delivery ledger and reconciling through the given service.
func NewWebhookRouter(
	templates []webhooks.ProviderWebhookTemplate,
	ledger webhooks.DeliveryLedger,
	reconciler webhooks.Reconciler,
	logger core.Logger,
) (*inbound.Router, error) {
	if ledger == nil {
		return nil, fmt.Errorf("payments: webhook delivery ledger is required")
	}
	if reconciler == nil {
		return nil, fmt.Errorf("payments: webhook reconciler is required")
	}
	handler := webhooks.NewReconcileHandler(reconciler)
	router, err := inbound.NewRouter()
	if err != nil {
		return nil, err
	}
	if logger != nil {
		router.Logger = logger
	}
	for _, template := range templates {
		processor := webhooks.NewProcessor(template, ledger, handler)
		if logger != nil {
			processor.Logger = logger
		}
		if err := router.Register(processor); err != nil {
			return nil, err
		}
	}
	return router, nil
}
