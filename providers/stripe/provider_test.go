package stripe

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/goliatone/go-payments/core"
	"github.com/goliatone/go-payments/providers/devkit"
)

func TestProvider_CreatesCharge(t *testing.T) {
	provider, _ := New(DefaultConfig())
	result, err := devkit.ValidateProviderAdapterConformance(context.Background(), provider,
		devkit.SampleAuthorizeRequest(core.PaymentMethodStripe, nil))
	if err != nil {
		t.Fatalf("conformance: %v", err)
	}
	if result.Outcome != core.ProviderOutcomeSuccess || !strings.HasPrefix(result.ProviderReference, "ch_") || len(result.ProviderReference) != 27 {
		t.Fatalf("unexpected result %+v", result)
	}
	if result.Detail["charge_id"] != result.ProviderReference {
		t.Fatalf("expected charge id in detail")
	}

	declined, err := provider.Authorize(context.Background(),
		devkit.SampleAuthorizeRequest(core.PaymentMethodStripe, map[string]string{CredentialToken: DeclinedToken}))
	if err != nil || declined.Outcome != core.ProviderOutcomeFailure || declined.ProviderReference == "" {
		t.Fatalf("expected declined charge with id, got %+v %v", declined, err)
	}
}

func TestWebhookTemplate_VerifyExtractAndNormalize(t *testing.T) {
	body := []byte(`{"id":"evt_1","type":"charge.failed","data":{"object":{"id":"ch_1","failure_message":"card expired","failure_code":"expired_card"}}}`)
	template := NewWebhookTemplate(DefaultWebhookConfig("whsec"))
	req := core.InboundRequest{
		ProviderID: ProviderID,
		Body:       body,
		Headers:    map[string]string{"Stripe-Signature": "v1=" + sign("whsec", body)},
	}
	if err := template.Verifier.Verify(context.Background(), req); err != nil {
		t.Fatalf("verify webhook: %v", err)
	}
	if deliveryID, err := template.Extractor(req); err != nil || deliveryID != "evt_1" {
		t.Fatalf("expected evt_1, got %q %v", deliveryID, err)
	}

	notification, err := template.Normalizer(req)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if notification.Outcome != core.ProviderOutcomeFailure || notification.ProviderReference != "ch_1" {
		t.Fatalf("unexpected notification %+v", notification)
	}
	if notification.FailureReason != "card expired" || notification.Detail["failure_code"] != "expired_card" {
		t.Fatalf("unexpected failure detail %+v", notification)
	}
}

func TestNormalizeNotification_Events(t *testing.T) {
	succeeded, _ := NormalizeNotification(core.InboundRequest{Body: []byte(`{"type":"charge.succeeded","data":{"object":{"id":"ch_2"}}}`)})
	if succeeded.Outcome != core.ProviderOutcomeSuccess || !succeeded.Actionable() {
		t.Fatalf("expected actionable success, got %+v", succeeded)
	}
	failed, _ := NormalizeNotification(core.InboundRequest{Body: []byte(`{"type":"charge.failed","data":{"object":{"id":"ch_3"}}}`)})
	if failed.FailureReason != "Payment failed" {
		t.Fatalf("expected default failure reason, got %q", failed.FailureReason)
	}
	other, _ := NormalizeNotification(core.InboundRequest{Body: []byte(`{"type":"customer.created","data":{"object":{"id":"cus_1"}}}`)})
	if other.Actionable() {
		t.Fatalf("expected unrelated event to be ignored")
	}
	if _, err := NormalizeNotification(core.InboundRequest{Body: []byte(`{`)}); err == nil {
		t.Fatalf("expected malformed body to fail")
	}
}

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
