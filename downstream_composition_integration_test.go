package payments_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	payments "github.com/goliatone/go-payments"
	"github.com/goliatone/go-payments/core"
	"github.com/goliatone/go-payments/webhooks"
)

func TestDownstreamComposition_BankTransferSettlesThroughWebhook(t *testing.T) {
	ctx := context.Background()
	registry, err := payments.BuiltinProviders(payments.DefaultBuiltinProvidersConfig())
	if err != nil {
		t.Fatalf("builtin providers: %v", err)
	}
	svc, err := payments.NewService(
		payments.DefaultConfig(),
		payments.WithProviderResolver(registry),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	facade, err := payments.NewFacade(svc)
	if err != nil {
		t.Fatalf("new facade: %v", err)
	}

	client, err := svc.RegisterClient(ctx, core.ApiClient{Name: "Acme", Secret: "s3cret", Active: true})
	if err != nil {
		t.Fatalf("register client: %v", err)
	}
	order, err := svc.CreateOrder(ctx, core.CreateOrderRequest{
		ClientID: client.ID,
		Amount:   "125.50",
		Currency: "EUR",
		Customer: core.Customer{Name: "Ada Lovelace", Email: "ada@example.com"},
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	dispatched, err := svc.DispatchTransaction(ctx, core.DispatchRequest{
		ClientID:       client.ID,
		OrderReference: order.Reference,
		Amount:         order.Money().AmountString(),
		Currency:       order.Currency,
		Method:         string(core.PaymentMethodBankTransfer),
	})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if dispatched.Transaction.Status != core.TransactionStatusProcessing || dispatched.Order.Status != core.OrderStatusPending {
		t.Fatalf("expected pending bank transfer, got txn=%s order=%s", dispatched.Transaction.Status, dispatched.Order.Status)
	}

	router, err := payments.NewWebhookRouter(
		payments.WebhookTemplates(payments.WebhookSecrets{BankTransferToken: "bank_token"}),
		webhooks.NewMemoryDeliveryLedger(),
		svc,
		nil,
	)
	if err != nil {
		t.Fatalf("new webhook router: %v", err)
	}
	server := httptest.NewServer(router)
	defer server.Close()

	body, _ := json.Marshal(map[string]any{
		"reference": dispatched.Transaction.ProviderReference,
		"status":    "confirmed",
		"amount":    "125.50",
	})
	for attempt := 1; attempt <= 2; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, server.URL+"/webhooks/bank_transfer", bytes.NewReader(body))
		if err != nil {
			t.Fatalf("build webhook request: %v", err)
		}
		req.Header.Set("X-Bank-Token", "bank_token")
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("post webhook attempt %d: %v", attempt, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200 on attempt %d, got %d", attempt, resp.StatusCode)
		}
	}

	settled, err := svc.GetOrder(ctx, client.ID, order.Reference)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if settled.Status != core.OrderStatusPaid {
		t.Fatalf("expected order to be paid after confirmation, got %s", settled.Status)
	}
	transactions, err := svc.ListTransactions(ctx, client.ID, order.Reference)
	if err != nil {
		t.Fatalf("list transactions: %v", err)
	}
	if len(transactions) != 1 || transactions[0].Status != core.TransactionStatusSuccess {
		t.Fatalf("expected one successful transaction, got %#v", transactions)
	}
	if facade.Service() != payments.CommandQueryService(svc) {
		t.Fatalf("expected facade to wrap the composed service")
	}
}

func TestDownstreamComposition_RejectsUnsignedWebhook(t *testing.T) {
	svc, err := payments.NewService(payments.DefaultConfig())
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	router, err := payments.NewWebhookRouter(
		payments.WebhookTemplates(payments.WebhookSecrets{StripeSecret: "whsec_test"}),
		webhooks.NewMemoryDeliveryLedger(),
		svc,
		nil,
	)
	if err != nil {
		t.Fatalf("new webhook router: %v", err)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(
		http.MethodPost,
		"/webhooks/stripe",
		bytes.NewReader([]byte(`{"id":"evt_1","type":"charge.succeeded"}`)),
	))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for unsigned webhook, got %d", rec.Code)
	}
}
