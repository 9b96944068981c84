package providers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-payments/core"
	"github.com/google/uuid"
)

// RandomReference returns prefix followed by n upper-case hex characters
// drawn from random UUIDs.
func RandomReference(prefix string, n int) string {
	var b strings.Builder
	b.Grow(len(prefix) + n)
	b.WriteString(prefix)
	for remaining := n; remaining > 0; {
		chunk := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
		if len(chunk) > remaining {
			chunk = chunk[:remaining]
		}
		b.WriteString(chunk)
		remaining -= len(chunk)
	}
	return b.String()
}

// Simulator stands in for a provider round trip.
type Simulator struct {
	Latency time.Duration
}

// Wait blocks for the configured latency or until ctx is done.
func (s Simulator) Wait(ctx context.Context) error {
	if s.Latency <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(s.Latency)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Credential reads a trimmed credential value by key.
func Credential(req core.AuthorizeRequest, key string) string {
	if len(req.Credentials) == 0 {
		return ""
	}
	return strings.TrimSpace(req.Credentials[key])
}

// Declined builds a provider decline result.
func Declined(reason string, detail map[string]any) core.ProviderResult {
	if detail == nil {
		detail = map[string]any{}
	}
	detail["failure_kind"] = core.FailureKindDecline
	return core.ProviderResult{
		Outcome:       core.ProviderOutcomeFailure,
		DeclineReason: strings.TrimSpace(reason),
		Detail:        detail,
	}
}

// ValidateAuthorizeRequest rejects requests routed to the wrong adapter.
func ValidateAuthorizeRequest(method core.PaymentMethod, req core.AuthorizeRequest) error {
	if req.Method != "" && req.Method != method {
		return fmt.Errorf("providers: %s adapter cannot authorize %s", method, req.Method)
	}
	if strings.TrimSpace(req.TransactionReference) == "" {
		return fmt.Errorf("providers: transaction reference is required")
	}
	return nil
}
