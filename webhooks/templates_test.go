package webhooks

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/goliatone/go-payments/core"
)

func TestProviderWebhookTemplates_VerifyAndExtract(t *testing.T) {
	stripeBody := []byte(`{"id":"evt_1","type":"charge.succeeded","data":{"object":{"id":"ch_1"}}}`)
	verifyAndExtractTemplate(t, NewStripeWebhookTemplate("stripe_secret"), core.InboundRequest{
		ProviderID: "stripe",
		Body:       stripeBody,
		Headers: map[string]string{
			"Stripe-Signature": "v1=" + signHexHMAC("stripe_secret", stripeBody),
		},
	}, "evt_1")

	paypalBody := []byte(`{"id":"WH-1","event_type":"CHECKOUT.ORDER.COMPLETED"}`)
	verifyAndExtractTemplate(t, NewPayPalWebhookTemplate("paypal_token"), core.InboundRequest{
		ProviderID: "paypal",
		Body:       paypalBody,
		Headers: map[string]string{
			"PayPal-Auth-Token":      "paypal_token",
			"PayPal-Transmission-Id": "tx-77",
		},
	}, "tx-77")

	walletBody := []byte(`{"reference":"MW_ABC","status":"SUCCESS"}`)
	verifyAndExtractTemplate(t, NewMobileWalletWebhookTemplate("wallet_secret"), core.InboundRequest{
		ProviderID: "mobile_wallet",
		Body:       walletBody,
		Headers: map[string]string{
			"X-Wallet-Signature": signHexHMAC("wallet_secret", walletBody),
		},
	}, "mw_abc:success")

	bankBody := []byte(`{"reference":"BT_9","status":"confirmed"}`)
	verifyAndExtractTemplate(t, NewBankTransferWebhookTemplate("bank_token"), core.InboundRequest{
		ProviderID: "bank_transfer",
		Body:       bankBody,
		Headers:    map[string]string{"x-bank-token": "bank_token"},
	}, "bt_9:confirmed")
}

func TestProviderWebhookTemplates_RejectsInvalidSignature(t *testing.T) {
	template := NewStripeWebhookTemplate("secret")
	err := template.Verifier.Verify(context.Background(), core.InboundRequest{
		ProviderID: "stripe",
		Body:       []byte(`{}`),
		Headers:    map[string]string{"Stripe-Signature": "v1=" + signHexHMAC("other", []byte(`{}`))},
	})
	if err == nil {
		t.Fatalf("expected invalid signature to fail verification")
	}

	token := NewPayPalWebhookTemplate("expected")
	if err := token.Verifier.Verify(context.Background(), core.InboundRequest{
		Headers: map[string]string{"PayPal-Auth-Token": "wrong"},
	}); err == nil {
		t.Fatalf("expected token mismatch to fail verification")
	}
	if err := NewPayPalWebhookTemplate("").Verifier.Verify(context.Background(), core.InboundRequest{
		Headers: map[string]string{"PayPal-Auth-Token": ""},
	}); err == nil {
		t.Fatalf("expected unconfigured token to fail closed")
	}
}

func TestBodyExtractors(t *testing.T) {
	req := core.InboundRequest{Body: []byte(`{"data":{"object":{"id":"ch_9"}},"count":3}`)}
	if got, err := BodyFieldDeliveryIDExtractor("id", "data.object.id")(req); err != nil || got != "ch_9" {
		t.Fatalf("expected nested id, got %q %v", got, err)
	}
	if got := LookupString(map[string]any{"count": float64(3)}, "count"); got != "3" {
		t.Fatalf("expected numeric leaf as string, got %q", got)
	}
	if _, err := CompositeBodyDeliveryIDExtractor("reference", "status")(req); err == nil {
		t.Fatalf("expected missing composite field to fail")
	}
	if _, err := BodyFieldDeliveryIDExtractor("id")(core.InboundRequest{Body: []byte(`[`)}); err == nil {
		t.Fatalf("expected malformed body to fail")
	}
}

func verifyAndExtractTemplate(
	t *testing.T,
	template ProviderWebhookTemplate,
	req core.InboundRequest,
	expectedDeliveryID string,
) {
	t.Helper()
	if template.Verifier == nil {
		t.Fatalf("expected verifier for template %q", template.ProviderID)
	}
	if template.Extractor == nil {
		t.Fatalf("expected extractor for template %q", template.ProviderID)
	}
	if template.ProviderID != req.ProviderID {
		t.Fatalf("expected provider id %q, got %q", req.ProviderID, template.ProviderID)
	}
	if err := template.Verifier.Verify(context.Background(), req); err != nil {
		t.Fatalf("verify template %q: %v", template.ProviderID, err)
	}
	deliveryID, err := template.Extractor(req)
	if err != nil {
		t.Fatalf("extract delivery id template %q: %v", template.ProviderID, err)
	}
	if deliveryID != expectedDeliveryID {
		t.Fatalf("expected delivery id %q, got %q", expectedDeliveryID, deliveryID)
	}
}

func signHexHMAC(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
