package providers

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/goliatone/go-payments/core"
	"github.com/goliatone/go-payments/providers/devkit"
)

func TestGatewayAdapter_MapsResponses(t *testing.T) {
	cases := []struct {
		name      string
		script    devkit.TransportScript
		outcome   core.ProviderOutcome
		reference string
		reason    string
		transport bool
	}{
		{name: "success", script: devkit.JSONScript(200, `{"outcome":"success","reference":"gw_1"}`), outcome: core.ProviderOutcomeSuccess, reference: "gw_1"},
		{name: "pending", script: devkit.JSONScript(202, `{"outcome":"pending","reference":"gw_2"}`), outcome: core.ProviderOutcomePending, reference: "gw_2"},
		{name: "decline", script: devkit.JSONScript(200, `{"outcome":"failure","reference":"gw_3","reason":"insufficient funds"}`), outcome: core.ProviderOutcomeFailure, reference: "gw_3", reason: "insufficient funds"},
		{name: "client error", script: devkit.JSONScript(422, `{"reason":"card expired"}`), outcome: core.ProviderOutcomeFailure, reason: "card expired"},
		{name: "client error without body", script: devkit.JSONScript(400, ``), outcome: core.ProviderOutcomeFailure, reason: "gateway rejected request with status 400"},
		{name: "server error", script: devkit.JSONScript(502, `oops`), transport: true},
		{name: "network error", script: devkit.TransportScript{Err: errors.New("dial tcp: refused")}, transport: true},
		{name: "unknown outcome", script: devkit.JSONScript(200, `{"outcome":"maybe"}`), transport: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fake := devkit.NewFakeTransportAdapter("rest", tc.script)
			adapter, err := NewGatewayAdapter(GatewayConfig{
				Method:   core.PaymentMethodCard,
				Endpoint: "https://gateway.example.test/authorize",
				APIKey:   "key_1",
				Timeout:  time.Second,
			}, fake)
			if err != nil {
				t.Fatalf("new gateway adapter: %v", err)
			}
			result, err := adapter.Authorize(context.Background(), devkit.SampleAuthorizeRequest(core.PaymentMethodCard, map[string]string{"card_token": "tok_1"}))
			if tc.transport {
				if err == nil {
					t.Fatalf("expected transport error, got %+v", result)
				}
				return
			}
			if err != nil {
				t.Fatalf("authorize: %v", err)
			}
			if result.Outcome != tc.outcome || result.ProviderReference != tc.reference || result.DeclineReason != tc.reason {
				t.Fatalf("unexpected result %+v", result)
			}
		})
	}
}

func TestGatewayAdapter_SendsSignedIdempotentRequest(t *testing.T) {
	fake := devkit.NewFakeTransportAdapter("rest", devkit.JSONScript(200, `{"outcome":"success","reference":"gw_1"}`))
	adapter, err := NewGatewayAdapter(GatewayConfig{
		Method:   core.PaymentMethodStripe,
		Endpoint: "https://gateway.example.test/authorize",
		APIKey:   "key_1",
		Headers:  map[string]string{"X-Merchant": "m_1"},
	}, fake)
	if err != nil {
		t.Fatalf("new gateway adapter: %v", err)
	}
	req := devkit.SampleAuthorizeRequest(core.PaymentMethodStripe, nil)
	if _, err := devkit.ValidateProviderAdapterConformance(context.Background(), adapter, req); err != nil {
		t.Fatalf("conformance: %v", err)
	}

	sent := fake.Requests()[0]
	if sent.Method != "POST" || sent.Headers["Authorization"] != "Bearer key_1" || sent.Headers["X-Merchant"] != "m_1" {
		t.Fatalf("unexpected request headers %+v", sent)
	}
	if sent.Headers["Idempotency-Key"] != req.TransactionReference {
		t.Fatalf("expected transaction reference as idempotency key")
	}
	body := map[string]any{}
	if err := json.Unmarshal(sent.Body, &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["amount"] != "1000.00" || body["currency"] != "USD" || body["method"] != "stripe" {
		t.Fatalf("unexpected body %+v", body)
	}
}

func TestNewGatewayAdapter_Validates(t *testing.T) {
	fake := devkit.NewFakeTransportAdapter("rest")
	if _, err := NewGatewayAdapter(GatewayConfig{Method: "crypto", Endpoint: "https://x"}, fake); err == nil {
		t.Fatalf("expected unknown method to fail")
	}
	if _, err := NewGatewayAdapter(GatewayConfig{Method: core.PaymentMethodCard}, fake); err == nil {
		t.Fatalf("expected missing endpoint to fail")
	}
	if _, err := NewGatewayAdapter(GatewayConfig{Method: core.PaymentMethodCard, Endpoint: "https://x"}, nil); err == nil {
		t.Fatalf("expected missing transport to fail")
	}
}

func TestSimulatorAndReferences(t *testing.T) {
	ref := RandomReference("BT_", 20)
	if len(ref) != 23 || ref[:3] != "BT_" {
		t.Fatalf("unexpected reference %q", ref)
	}
	if RandomReference("BT_", 20) == ref {
		t.Fatalf("expected random references to differ")
	}
	if strings.ToUpper(ref) != ref || strings.ContainsAny(ref[3:], "-GHIJKLMNOPQRSTUVWXYZ") {
		t.Fatalf("expected upper-case hex suffix, got %q", ref)
	}
	if long := RandomReference("", 40); len(long) != 40 {
		t.Fatalf("expected references longer than one uuid to be filled, got %q", long)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()
	if err := (Simulator{Latency: time.Second}).Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected simulator to honor deadline, got %v", err)
	}
	if err := (Simulator{}).Wait(context.Background()); err != nil {
		t.Fatalf("expected zero latency to return immediately: %v", err)
	}
}
