package devkit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-payments/core"
	"github.com/goliatone/go-payments/webhooks"
	"github.com/shopspring/decimal"
)

// SampleAuthorizeRequest is a well-formed request for adapter checks.
func SampleAuthorizeRequest(method core.PaymentMethod, credentials map[string]string) core.AuthorizeRequest {
	return core.AuthorizeRequest{
		TransactionReference: "TXN_conformance",
		OrderReference:       "ORD_CONFORMANCE_1700000000",
		Method:               method,
		Amount:               decimal.NewFromInt(1000),
		Currency:             "USD",
		Customer:             core.Customer{Name: "Conformance", Email: "conformance@example.com"},
		Credentials:          credentials,
	}
}

// ValidateProviderAdapterConformance checks the adapter contract the
// transaction engine relies on: a known method, a recognized outcome, and a
// provider reference whenever the outcome can be reconciled later.
func ValidateProviderAdapterConformance(
	ctx context.Context,
	adapter core.ProviderAdapter,
	req core.AuthorizeRequest,
) (core.ProviderResult, error) {
	if adapter == nil {
		return core.ProviderResult{}, fmt.Errorf("devkit: provider adapter is required")
	}
	method, err := core.ParsePaymentMethod(string(adapter.Method()))
	if err != nil {
		return core.ProviderResult{}, err
	}
	if req.Method == "" {
		req.Method = method
	}
	result, err := adapter.Authorize(ctx, req)
	if err != nil {
		return core.ProviderResult{}, err
	}
	if _, err := core.ParseProviderOutcome(string(result.Outcome)); err != nil {
		return result, err
	}
	switch result.Outcome {
	case core.ProviderOutcomeSuccess, core.ProviderOutcomePending:
		if strings.TrimSpace(result.ProviderReference) == "" {
			return result, fmt.Errorf("devkit: %s outcome requires a provider reference", result.Outcome)
		}
	case core.ProviderOutcomeFailure:
		if strings.TrimSpace(result.DeclineReason) == "" {
			return result, fmt.Errorf("devkit: failure outcome requires a decline reason")
		}
	}
	return result, nil
}

func ValidateTransportAdapterConformance(
	ctx context.Context,
	adapter core.TransportAdapter,
	request core.TransportRequest,
) error {
	if adapter == nil {
		return fmt.Errorf("devkit: transport adapter is required")
	}
	if strings.TrimSpace(adapter.Kind()) == "" {
		return fmt.Errorf("devkit: transport adapter kind is required")
	}
	_, err := adapter.Do(ctx, request)
	return err
}

// ValidateWebhookLedgerConformance runs one claim/fail/reclaim/complete cycle.
func ValidateWebhookLedgerConformance(
	ctx context.Context,
	ledger webhooks.DeliveryLedger,
	providerID string,
	deliveryID string,
) error {
	if ledger == nil {
		return fmt.Errorf("devkit: delivery ledger is required")
	}
	record, accepted, err := ledger.Claim(ctx, providerID, deliveryID, []byte(`{}`), time.Minute)
	if err != nil {
		return err
	}
	if !accepted {
		return fmt.Errorf("devkit: first claim should be accepted")
	}
	if _, accepted, err := ledger.Claim(ctx, providerID, deliveryID, nil, time.Minute); err != nil {
		return err
	} else if accepted {
		return fmt.Errorf("devkit: second claim should not be accepted while lease is active")
	}

	if err := ledger.Fail(ctx, record.ClaimID, fmt.Errorf("devkit: scripted failure"), time.Time{}, 8); err != nil {
		return err
	}
	failed, err := ledger.Get(ctx, providerID, deliveryID)
	if err != nil {
		return err
	}
	if failed.Status != webhooks.DeliveryStatusRetryReady {
		return fmt.Errorf("devkit: expected retry_ready status, got %q", failed.Status)
	}

	retry, accepted, err := ledger.Claim(ctx, providerID, deliveryID, nil, time.Minute)
	if err != nil {
		return err
	}
	if !accepted || retry.Attempts != record.Attempts+1 {
		return fmt.Errorf("devkit: retry claim should be accepted as attempt %d", record.Attempts+1)
	}
	if err := ledger.Complete(ctx, retry.ClaimID); err != nil {
		return err
	}
	loaded, err := ledger.Get(ctx, providerID, deliveryID)
	if err != nil {
		return err
	}
	if loaded.Status != webhooks.DeliveryStatusProcessed {
		return fmt.Errorf("devkit: expected processed status, got %q", loaded.Status)
	}
	if _, accepted, err := ledger.Claim(ctx, providerID, deliveryID, nil, time.Minute); err != nil {
		return err
	} else if accepted {
		return fmt.Errorf("devkit: processed delivery should not be claimable")
	}
	return nil
}
