package webhooks

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/goliatone/go-payments/core"
)

// Notification is a provider callback reduced to what reconciliation needs.
// An empty Outcome marks an event the gateway does not act on.
type Notification struct {
	ProviderID        string
	DeliveryID        string
	EventType         string
	ProviderReference string
	Outcome           core.ProviderOutcome
	FailureReason     string
	Detail            map[string]any
}

func (n Notification) Actionable() bool {
	return n.Outcome != "" && strings.TrimSpace(n.ProviderReference) != ""
}

type Normalizer func(req core.InboundRequest) (Notification, error)

// HandleResult reports what a handler did with a notification.
type HandleResult struct {
	Status               string
	TransactionReference string
	OrderReference       string
	Applied              bool
}

const (
	HandleStatusReconciled = "reconciled"
	HandleStatusIgnored    = "ignored"
	HandleStatusUnmatched  = "unmatched"
	HandleStatusConflict   = "conflict"
)

func (r HandleResult) metadata() map[string]any {
	metadata := map[string]any{"handled": r.Status}
	if r.TransactionReference != "" {
		metadata["transaction_reference"] = r.TransactionReference
	}
	if r.OrderReference != "" {
		metadata["order_reference"] = r.OrderReference
	}
	if r.Status == HandleStatusReconciled {
		metadata["applied"] = r.Applied
	}
	return metadata
}

// DecodePayload parses a JSON object body. An empty body decodes to an empty map.
func DecodePayload(body []byte) (map[string]any, error) {
	payload := map[string]any{}
	if len(strings.TrimSpace(string(body))) == 0 {
		return payload, nil
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("webhooks: parse payload: %w", err)
	}
	return payload, nil
}

// LookupString walks nested objects along path and returns the trimmed
// string form of the leaf, or "" when any segment is missing.
func LookupString(payload map[string]any, path ...string) string {
	if len(path) == 0 {
		return ""
	}
	var current any = payload
	for _, key := range path {
		object, ok := current.(map[string]any)
		if !ok {
			return ""
		}
		current, ok = object[key]
		if !ok || current == nil {
			return ""
		}
	}
	switch value := current.(type) {
	case string:
		return strings.TrimSpace(value)
	case float64, bool, json.Number:
		return strings.TrimSpace(fmt.Sprint(value))
	default:
		return ""
	}
}

func FirstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
