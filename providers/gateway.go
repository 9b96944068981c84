package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-payments/core"
)

type GatewayConfig struct {
	Method   core.PaymentMethod
	Endpoint string
	APIKey   string
	Timeout  time.Duration
	// Headers are sent with every authorization request.
	Headers map[string]string
}

// GatewayAdapter authorizes payments against a remote HTTP gateway.
type GatewayAdapter struct {
	cfg       GatewayConfig
	transport core.TransportAdapter
}

type gatewayAuthorizeBody struct {
	TransactionReference string            `json:"transaction_reference"`
	OrderReference       string            `json:"order_reference"`
	Method               string            `json:"method"`
	Amount               string            `json:"amount"`
	Currency             string            `json:"currency"`
	CustomerName         string            `json:"customer_name,omitempty"`
	CustomerEmail        string            `json:"customer_email,omitempty"`
	Credentials          map[string]string `json:"credentials,omitempty"`
}

type gatewayAuthorizeResponse struct {
	Outcome   string         `json:"outcome"`
	Reference string         `json:"reference"`
	Reason    string         `json:"reason"`
	Detail    map[string]any `json:"detail"`
}

func NewGatewayAdapter(cfg GatewayConfig, transport core.TransportAdapter) (*GatewayAdapter, error) {
	if _, err := core.ParsePaymentMethod(string(cfg.Method)); err != nil {
		return nil, err
	}
	cfg.Endpoint = strings.TrimSpace(cfg.Endpoint)
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("providers: gateway endpoint is required")
	}
	if transport == nil {
		return nil, fmt.Errorf("providers: gateway transport is required")
	}
	return &GatewayAdapter{cfg: cfg, transport: transport}, nil
}

func (a *GatewayAdapter) Method() core.PaymentMethod {
	return a.cfg.Method
}

func (a *GatewayAdapter) Authorize(ctx context.Context, req core.AuthorizeRequest) (core.ProviderResult, error) {
	if err := ValidateAuthorizeRequest(a.cfg.Method, req); err != nil {
		return Declined(err.Error(), nil), nil
	}
	body, err := json.Marshal(gatewayAuthorizeBody{
		TransactionReference: req.TransactionReference,
		OrderReference:       req.OrderReference,
		Method:               string(a.cfg.Method),
		Amount:               core.Money{Amount: req.Amount, Currency: req.Currency}.AmountString(),
		Currency:             req.Currency,
		CustomerName:         req.Customer.Name,
		CustomerEmail:        req.Customer.Email,
		Credentials:          req.Credentials,
	})
	if err != nil {
		return core.ProviderResult{}, fmt.Errorf("providers: encode gateway request: %w", err)
	}

	headers := map[string]string{
		"Content-Type":    "application/json",
		"Accept":          "application/json",
		"Idempotency-Key": req.TransactionReference,
	}
	for key, value := range a.cfg.Headers {
		headers[key] = value
	}
	if key := strings.TrimSpace(a.cfg.APIKey); key != "" {
		headers["Authorization"] = "Bearer " + key
	}

	res, err := a.transport.Do(ctx, core.TransportRequest{
		Method:  http.MethodPost,
		URL:     a.cfg.Endpoint,
		Headers: headers,
		Body:    body,
		Timeout: a.cfg.Timeout,
	})
	if err != nil {
		return core.ProviderResult{}, err
	}

	parsed := gatewayAuthorizeResponse{}
	if len(res.Body) > 0 {
		if err := json.Unmarshal(res.Body, &parsed); err != nil && res.StatusCode < http.StatusBadRequest {
			return core.ProviderResult{}, fmt.Errorf("providers: decode gateway response: %w", err)
		}
	}

	switch {
	case res.StatusCode >= http.StatusInternalServerError:
		return core.ProviderResult{}, fmt.Errorf("providers: gateway returned status %d", res.StatusCode)
	case res.StatusCode >= http.StatusBadRequest:
		reason := parsed.Reason
		if strings.TrimSpace(reason) == "" {
			reason = fmt.Sprintf("gateway rejected request with status %d", res.StatusCode)
		}
		detail := parsed.Detail
		if detail == nil {
			detail = map[string]any{}
		}
		detail["status_code"] = res.StatusCode
		return Declined(reason, detail), nil
	}

	outcome, err := core.ParseProviderOutcome(parsed.Outcome)
	if err != nil {
		return core.ProviderResult{}, fmt.Errorf("providers: gateway response: %w", err)
	}
	detail := parsed.Detail
	if detail == nil {
		detail = map[string]any{}
	}
	detail["provider"] = string(a.cfg.Method)
	result := core.ProviderResult{
		Outcome:           outcome,
		ProviderReference: strings.TrimSpace(parsed.Reference),
		Detail:            detail,
	}
	if outcome == core.ProviderOutcomeFailure {
		declined := Declined(parsed.Reason, detail)
		declined.ProviderReference = result.ProviderReference
		return declined, nil
	}
	return result, nil
}
