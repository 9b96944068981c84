package payments

import (
	"testing"

	"github.com/goliatone/go-payments/core"
	"github.com/goliatone/go-payments/webhooks"
)

func TestBuiltinProviders_RegistersEveryMethod(t *testing.T) {
	registry, err := BuiltinProviders(DefaultBuiltinProvidersConfig())
	if err != nil {
		t.Fatalf("builtin providers: %v", err)
	}
	for _, method := range []core.PaymentMethod{
		core.PaymentMethodCard,
		core.PaymentMethodBankTransfer,
		core.PaymentMethodMobileWallet,
		core.PaymentMethodPayPal,
		core.PaymentMethodStripe,
	} {
		adapter, ok := registry.Resolve(method)
		if !ok {
			t.Fatalf("expected adapter for %s", method)
		}
		if adapter.Method() != method {
			t.Fatalf("adapter for %s reports method %s", method, adapter.Method())
		}
	}
}

func TestWebhookTemplates_SkipsProvidersWithoutSecrets(t *testing.T) {
	templates := WebhookTemplates(WebhookSecrets{StripeSecret: "whsec", BankTransferToken: "bank"})
	if len(templates) != 2 {
		t.Fatalf("expected two templates, got %d", len(templates))
	}
	ids := map[string]bool{}
	for _, template := range templates {
		if template.Normalizer == nil {
			t.Fatalf("expected template %q to carry a normalizer", template.ProviderID)
		}
		ids[template.ProviderID] = true
	}
	if !ids["stripe"] || !ids["bank_transfer"] {
		t.Fatalf("unexpected template providers %v", ids)
	}
	if got := WebhookTemplates(WebhookSecrets{}); len(got) != 0 {
		t.Fatalf("expected no templates without secrets, got %d", len(got))
	}
}

func TestNewWebhookRouter_RequiresDependencies(t *testing.T) {
	templates := WebhookTemplates(WebhookSecrets{PayPalToken: "token"})
	if _, err := NewWebhookRouter(templates, nil, &stubFacadeService{}, nil); err == nil {
		t.Fatalf("expected missing ledger to fail")
	}
	if _, err := NewWebhookRouter(templates, webhooks.NewMemoryDeliveryLedger(), nil, nil); err == nil {
		t.Fatalf("expected missing reconciler to fail")
	}
	router, err := NewWebhookRouter(templates, webhooks.NewMemoryDeliveryLedger(), &stubFacadeService{}, nil)
	if err != nil {
		t.Fatalf("new webhook router: %v", err)
	}
	if providers := router.Providers(); len(providers) != 1 || providers[0] != "paypal" {
		t.Fatalf("unexpected router providers %v", providers)
	}
}
