package webhooks

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/goliatone/go-payments/core"
)

// ProviderWebhookTemplate bundles how one payment provider signs, identifies
// and shapes its callbacks.
type ProviderWebhookTemplate struct {
	ProviderID string
	Verifier   Verifier
	Extractor  DeliveryIDExtractor
	Normalizer Normalizer
}

type HeaderHMACVerifier struct {
	Header   string
	Prefix   string
	Secret   string
	Encoding string // hex | base64
}

func (v HeaderHMACVerifier) Verify(_ context.Context, req core.InboundRequest) error {
	header := strings.TrimSpace(headerValue(req.Headers, v.Header))
	if header == "" {
		return fmt.Errorf("webhooks: %s signature header is required", strings.TrimSpace(v.Header))
	}
	secret := strings.TrimSpace(v.Secret)
	if secret == "" {
		return fmt.Errorf("webhooks: signature secret is required")
	}
	signature := strings.TrimPrefix(header, strings.TrimSpace(v.Prefix))
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return fmt.Errorf("webhooks: signature value is required")
	}

	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(req.Body)
	expected := mac.Sum(nil)

	switch strings.ToLower(strings.TrimSpace(v.Encoding)) {
	case "base64":
		decoded, err := base64.StdEncoding.DecodeString(signature)
		if err != nil {
			return fmt.Errorf("webhooks: decode base64 signature: %w", err)
		}
		if subtle.ConstantTimeCompare(decoded, expected) != 1 {
			return fmt.Errorf("webhooks: signature verification failed")
		}
	default:
		decoded, err := hex.DecodeString(signature)
		if err != nil {
			return fmt.Errorf("webhooks: decode hex signature: %w", err)
		}
		if subtle.ConstantTimeCompare(decoded, expected) != 1 {
			return fmt.Errorf("webhooks: signature verification failed")
		}
	}
	return nil
}

type HeaderTokenVerifier struct {
	Header string
	Token  string
}

func (v HeaderTokenVerifier) Verify(_ context.Context, req core.InboundRequest) error {
	expected := strings.TrimSpace(v.Token)
	if expected == "" {
		return fmt.Errorf("webhooks: verification token is required")
	}
	actual := strings.TrimSpace(headerValue(req.Headers, v.Header))
	if actual == "" {
		return fmt.Errorf("webhooks: %s verification header is required", strings.TrimSpace(v.Header))
	}
	if subtle.ConstantTimeCompare([]byte(actual), []byte(expected)) != 1 {
		return fmt.Errorf("webhooks: verification token mismatch")
	}
	return nil
}

func HeaderDeliveryIDExtractor(headers ...string) DeliveryIDExtractor {
	keys := append([]string(nil), headers...)
	return func(req core.InboundRequest) (string, error) {
		for _, key := range keys {
			if value := strings.TrimSpace(headerValue(req.Headers, key)); value != "" {
				return value, nil
			}
		}
		return "", fmt.Errorf("webhooks: delivery id is required for dedupe")
	}
}

func ChainDeliveryIDExtractors(extractors ...DeliveryIDExtractor) DeliveryIDExtractor {
	list := append([]DeliveryIDExtractor(nil), extractors...)
	return func(req core.InboundRequest) (string, error) {
		var lastErr error
		for _, extractor := range list {
			if extractor == nil {
				continue
			}
			deliveryID, err := extractor(req)
			if err == nil && strings.TrimSpace(deliveryID) != "" {
				return strings.TrimSpace(deliveryID), nil
			}
			if err != nil {
				lastErr = err
			}
		}
		if lastErr != nil {
			return "", lastErr
		}
		return "", fmt.Errorf("webhooks: delivery id is required for dedupe")
	}
}

// BodyFieldDeliveryIDExtractor reads the first non-empty JSON body field.
// Dotted paths address nested objects.
func BodyFieldDeliveryIDExtractor(paths ...string) DeliveryIDExtractor {
	keys := append([]string(nil), paths...)
	return func(req core.InboundRequest) (string, error) {
		payload, err := DecodePayload(req.Body)
		if err != nil {
			return "", err
		}
		for _, key := range keys {
			if value := LookupString(payload, strings.Split(key, ".")...); value != "" {
				return value, nil
			}
		}
		return "", fmt.Errorf("webhooks: delivery id is required for dedupe")
	}
}

// CompositeBodyDeliveryIDExtractor joins several body fields into one id, for
// providers that resend the same reference with a different status.
func CompositeBodyDeliveryIDExtractor(paths ...string) DeliveryIDExtractor {
	keys := append([]string(nil), paths...)
	return func(req core.InboundRequest) (string, error) {
		payload, err := DecodePayload(req.Body)
		if err != nil {
			return "", err
		}
		parts := make([]string, 0, len(keys))
		for _, key := range keys {
			value := LookupString(payload, strings.Split(key, ".")...)
			if value == "" {
				return "", fmt.Errorf("webhooks: %s is required for dedupe", key)
			}
			parts = append(parts, strings.ToLower(value))
		}
		return strings.Join(parts, ":"), nil
	}
}

func NewStripeWebhookTemplate(secret string) ProviderWebhookTemplate {
	return ProviderWebhookTemplate{
		ProviderID: string(core.PaymentMethodStripe),
		Verifier: HeaderHMACVerifier{
			Header:   "Stripe-Signature",
			Prefix:   "v1=",
			Secret:   strings.TrimSpace(secret),
			Encoding: "hex",
		},
		Extractor: ChainDeliveryIDExtractors(
			BodyFieldDeliveryIDExtractor("id"),
			HeaderDeliveryIDExtractor("Stripe-Event-Id"),
		),
	}
}

func NewPayPalWebhookTemplate(token string) ProviderWebhookTemplate {
	return ProviderWebhookTemplate{
		ProviderID: string(core.PaymentMethodPayPal),
		Verifier: HeaderTokenVerifier{
			Header: "PayPal-Auth-Token",
			Token:  strings.TrimSpace(token),
		},
		Extractor: ChainDeliveryIDExtractors(
			HeaderDeliveryIDExtractor("PayPal-Transmission-Id"),
			BodyFieldDeliveryIDExtractor("id"),
		),
	}
}

func NewMobileWalletWebhookTemplate(secret string) ProviderWebhookTemplate {
	return ProviderWebhookTemplate{
		ProviderID: string(core.PaymentMethodMobileWallet),
		Verifier: HeaderHMACVerifier{
			Header:   "X-Wallet-Signature",
			Secret:   strings.TrimSpace(secret),
			Encoding: "hex",
		},
		Extractor: CompositeBodyDeliveryIDExtractor("reference", "status"),
	}
}

func NewBankTransferWebhookTemplate(token string) ProviderWebhookTemplate {
	return ProviderWebhookTemplate{
		ProviderID: string(core.PaymentMethodBankTransfer),
		Verifier: HeaderTokenVerifier{
			Header: "X-Bank-Token",
			Token:  strings.TrimSpace(token),
		},
		Extractor: CompositeBodyDeliveryIDExtractor("reference", "status"),
	}
}
