// Package delivery posts payment notification events to merchant endpoints.
package delivery

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-payments/core"
)

const (
	HeaderSignature = "X-Payments-Signature"
	HeaderEvent     = "X-Payments-Event"
	HeaderEventID   = "X-Payments-Event-Id"
	HeaderTimestamp = "X-Payments-Timestamp"

	signaturePrefix = "sha256="
	defaultTimeout  = 10 * time.Second
)

const TextCodeDeliveryRejected = "PAYMENT_NOTIFICATION_REJECTED"

// SecretResolver returns the signing secret for a client. An empty secret
// sends the event unsigned.
type SecretResolver interface {
	SigningSecret(ctx context.Context, clientID string) (string, error)
}

// StaticSecret signs every event with one secret.
type StaticSecret string

func (s StaticSecret) SigningSecret(context.Context, string) (string, error) {
	return string(s), nil
}

// Throttle holds sends to merchant endpoints that asked to slow down.
type Throttle interface {
	BeforeSend(ctx context.Context, clientID string, target string) error
	AfterSend(ctx context.Context, clientID string, target string, res core.TransportResponse) error
}

type Config struct {
	Timeout  time.Duration
	Now      func() time.Time
	Throttle Throttle
}

// HTTPDelivery sends a NotificationEvent as a signed JSON POST to its target.
type HTTPDelivery struct {
	transport core.TransportAdapter
	secrets   SecretResolver
	throttle  Throttle
	timeout   time.Duration
	now       func() time.Time
}

// Payload is the JSON body merchants receive.
type Payload struct {
	ID                   string    `json:"id"`
	Event                string    `json:"event"`
	OrderReference       string    `json:"order_id"`
	TransactionReference string    `json:"transaction_id"`
	Status               string    `json:"status"`
	OrderStatus          string    `json:"order_status"`
	Amount               string    `json:"amount"`
	Currency             string    `json:"currency"`
	PaymentMethod        string    `json:"payment_method"`
	FailureReason        string    `json:"failure_reason,omitempty"`
	Timestamp            time.Time `json:"timestamp"`
}

func NewHTTPDelivery(transport core.TransportAdapter, secrets SecretResolver, cfg Config) (*HTTPDelivery, error) {
	if transport == nil {
		return nil, fmt.Errorf("delivery: transport is required")
	}
	if secrets == nil {
		secrets = StaticSecret("")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	return &HTTPDelivery{
		transport: transport,
		secrets:   secrets,
		throttle:  cfg.Throttle,
		timeout:   cfg.Timeout,
		now:       cfg.Now,
	}, nil
}

func PayloadFor(event core.NotificationEvent) Payload {
	return Payload{
		ID:                   event.ID,
		Event:                string(event.Kind),
		OrderReference:       event.OrderReference,
		TransactionReference: event.TransactionReference,
		Status:               string(event.Status),
		OrderStatus:          string(event.OrderStatus),
		Amount:               event.Amount,
		Currency:             event.Currency,
		PaymentMethod:        string(event.Method),
		FailureReason:        event.FailureReason,
		Timestamp:            event.OccurredAt.UTC(),
	}
}

// Sign returns the header value for timestamp and body under secret. The
// signed payload is "<timestamp>.<body>".
func Sign(secret string, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(timestamp))
	_, _ = mac.Write([]byte("."))
	_, _ = mac.Write(body)
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a signature header against the timestamp header and body,
// for merchants consuming events.
func Verify(secret string, timestamp string, body []byte, header string) bool {
	timestamp = strings.TrimSpace(timestamp)
	if timestamp == "" {
		return false
	}
	return hmac.Equal([]byte(Sign(secret, timestamp, body)), []byte(strings.TrimSpace(header)))
}

// VerifyWithin is Verify plus a freshness check: the timestamp must be within
// tolerance of now.
func VerifyWithin(secret string, timestamp string, body []byte, header string, now time.Time, tolerance time.Duration) bool {
	if !Verify(secret, timestamp, body, header) {
		return false
	}
	sent, err := strconv.ParseInt(strings.TrimSpace(timestamp), 10, 64)
	if err != nil {
		return false
	}
	age := now.Sub(time.Unix(sent, 0))
	if age < 0 {
		age = -age
	}
	return age <= tolerance
}

func (d *HTTPDelivery) Send(ctx context.Context, event core.NotificationEvent) error {
	target := strings.TrimSpace(event.Target)
	if target == "" {
		return fmt.Errorf("delivery: event %s has no target", event.ID)
	}
	if d.throttle != nil {
		if err := d.throttle.BeforeSend(ctx, event.ClientID, target); err != nil {
			return err
		}
	}
	body, err := json.Marshal(PayloadFor(event))
	if err != nil {
		return fmt.Errorf("delivery: encode event %s: %w", event.ID, err)
	}

	timestamp := strconv.FormatInt(d.now().Unix(), 10)
	headers := map[string]string{
		"Content-Type":  "application/json",
		HeaderEvent:     string(event.Kind),
		HeaderEventID:   event.ID,
		HeaderTimestamp: timestamp,
	}
	secret, err := d.secrets.SigningSecret(ctx, event.ClientID)
	if err != nil {
		return fmt.Errorf("delivery: resolve signing secret: %w", err)
	}
	if secret != "" {
		headers[HeaderSignature] = Sign(secret, timestamp, body)
	}

	res, err := d.transport.Do(ctx, core.TransportRequest{
		Method:               http.MethodPost,
		URL:                  target,
		Headers:              headers,
		Body:                 body,
		Timeout:              d.timeout,
		MaxResponseBodyBytes: 64 << 10,
	})
	if err != nil {
		return err
	}
	// A failure to record the response must not turn a delivered event into a retry.
	var throttleErr error
	if d.throttle != nil {
		if err := d.throttle.AfterSend(ctx, event.ClientID, target, res); err != nil {
			throttleErr = fmt.Errorf("delivery: record endpoint response: %w", err)
		}
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		rejected := goerrors.New(fmt.Sprintf("delivery: %s responded with status %d", target, res.StatusCode), goerrors.CategoryExternal).
			WithCode(http.StatusBadGateway).
			WithTextCode(TextCodeDeliveryRejected).
			WithMetadata(map[string]any{
				"event_id":    event.ID,
				"status_code": res.StatusCode,
				"retryable":   Retryable(res.StatusCode),
			})
		if throttleErr != nil {
			return errors.Join(rejected, throttleErr)
		}
		return rejected
	}
	return nil
}

// Retryable reports whether a merchant response status is worth another attempt.
func Retryable(statusCode int) bool {
	switch {
	case statusCode == http.StatusRequestTimeout, statusCode == http.StatusTooManyRequests:
		return true
	case statusCode >= 500:
		return true
	case statusCode >= 400:
		return false
	default:
		return true
	}
}

// IsRetryable reports whether a Send error should be attempted again. A
// merchant rejecting the event with a 4xx status is final; transport failures
// are not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var rich *goerrors.Error
	if goerrors.As(err, &rich) && rich.TextCode == TextCodeDeliveryRejected {
		if retryable, ok := rich.Metadata["retryable"].(bool); ok {
			return retryable
		}
	}
	return true
}

var _ core.NotificationDelivery = (*HTTPDelivery)(nil)
