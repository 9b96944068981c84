package webhooks

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-payments/core"
)

const (
	DeliveryStatusPending    = "pending"
	DeliveryStatusProcessing = "processing"
	DeliveryStatusProcessed  = "processed"
	DeliveryStatusRetryReady = "retry_ready"
	DeliveryStatusDead       = "dead"
)

type DeliveryRecord struct {
	ID            string
	ClaimID       string
	ProviderID    string
	DeliveryID    string
	Status        string
	Attempts      int
	LastError     string
	NextAttemptAt *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// DeliveryLedger records provider deliveries so a redelivered webhook is
// applied at most once while a failed one stays retryable.
type DeliveryLedger interface {
	Claim(
		ctx context.Context,
		providerID string,
		deliveryID string,
		payload []byte,
		lease time.Duration,
	) (DeliveryRecord, bool, error)
	Get(ctx context.Context, providerID string, deliveryID string) (DeliveryRecord, error)
	Complete(ctx context.Context, claimID string) error
	Fail(ctx context.Context, claimID string, cause error, nextAttemptAt time.Time, maxAttempts int) error
}

type Verifier interface {
	Verify(ctx context.Context, req core.InboundRequest) error
}

type DeliveryIDExtractor func(req core.InboundRequest) (string, error)

type RetryPolicy interface {
	NextDelay(attempt int) time.Duration
}

// NotificationHandler applies a normalized provider notification.
type NotificationHandler interface {
	HandleNotification(ctx context.Context, notification Notification) (HandleResult, error)
}

type ExponentialRetryPolicy struct {
	Initial time.Duration
	Max     time.Duration
}

func (p ExponentialRetryPolicy) NextDelay(attempt int) time.Duration {
	initial := p.Initial
	if initial <= 0 {
		initial = time.Second
	}
	maximum := p.Max
	if maximum <= 0 {
		maximum = 30 * time.Second
	}
	delay := initial
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maximum {
			return maximum
		}
	}
	if delay > maximum {
		return maximum
	}
	return delay
}

// Processor runs one provider's inbound webhook: verify, normalize, claim the
// delivery, hand the notification to the handler, then settle the claim.
type Processor struct {
	Template    ProviderWebhookTemplate
	Ledger      DeliveryLedger
	Handler     NotificationHandler
	RetryPolicy RetryPolicy
	ClaimLease  time.Duration
	MaxAttempts int
	Logger      core.Logger
	Now         func() time.Time
}

func NewProcessor(template ProviderWebhookTemplate, ledger DeliveryLedger, handler NotificationHandler) *Processor {
	return &Processor{
		Template:    template,
		Ledger:      ledger,
		Handler:     handler,
		RetryPolicy: ExponentialRetryPolicy{},
		ClaimLease:  30 * time.Second,
		MaxAttempts: 8,
		Logger:      glog.Nop(),
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (p *Processor) ProviderID() string {
	if p == nil {
		return ""
	}
	return strings.TrimSpace(p.Template.ProviderID)
}

func (p *Processor) Process(ctx context.Context, req core.InboundRequest) (core.InboundResult, error) {
	if p == nil || p.Handler == nil || p.Ledger == nil || p.Template.Normalizer == nil {
		return core.InboundResult{}, fmt.Errorf("webhooks: processor requires normalizer, handler and ledger")
	}

	providerID := p.ProviderID()
	if providerID == "" {
		return core.InboundResult{}, fmt.Errorf("webhooks: provider id is required")
	}
	if requested := strings.TrimSpace(req.ProviderID); requested != "" && !strings.EqualFold(requested, providerID) {
		return core.InboundResult{}, fmt.Errorf("webhooks: request for provider %q routed to %q", requested, providerID)
	}
	req.ProviderID = providerID

	if p.Template.Verifier != nil {
		if err := p.Template.Verifier.Verify(ctx, req); err != nil {
			p.log(ctx, "error", "webhook rejected", map[string]any{"provider_id": providerID, "error": err.Error()})
			return core.InboundResult{
				Accepted:   false,
				StatusCode: http.StatusUnauthorized,
				Metadata: map[string]any{
					"provider_id": providerID,
					"rejected":    true,
				},
			}, err
		}
	}

	notification, err := p.Template.Normalizer(req)
	if err != nil {
		return core.InboundResult{
			Accepted:   false,
			StatusCode: http.StatusBadRequest,
			Metadata:   map[string]any{"provider_id": providerID},
		}, err
	}
	notification.ProviderID = providerID

	deliveryID, err := p.deliveryID(req, notification)
	if err != nil {
		return core.InboundResult{
			Accepted:   false,
			StatusCode: http.StatusBadRequest,
			Metadata:   map[string]any{"provider_id": providerID},
		}, err
	}
	notification.DeliveryID = deliveryID

	delivery, claimed, err := p.Ledger.Claim(ctx, providerID, deliveryID, req.Body, p.claimLease())
	if err != nil {
		return core.InboundResult{}, err
	}
	if !claimed {
		return core.InboundResult{
			Accepted:   true,
			StatusCode: http.StatusOK,
			Metadata: map[string]any{
				"provider_id": providerID,
				"delivery_id": delivery.DeliveryID,
				"status":      delivery.Status,
				"deduped":     true,
			},
		}, nil
	}

	handled, err := p.Handler.HandleNotification(ctx, notification)
	if err != nil {
		nextAttemptAt := p.now().Add(p.retryPolicy().NextDelay(delivery.Attempts))
		if failErr := p.Ledger.Fail(ctx, delivery.ClaimID, err, nextAttemptAt, p.maxAttempts()); failErr != nil {
			p.log(ctx, "error", "webhook delivery fail record rejected", map[string]any{
				"provider_id": providerID,
				"delivery_id": deliveryID,
				"error":       failErr.Error(),
			})
		}
		p.log(ctx, "error", "webhook delivery failed", map[string]any{
			"provider_id": providerID,
			"delivery_id": deliveryID,
			"attempt":     delivery.Attempts,
			"error":       err.Error(),
		})
		return core.InboundResult{
			Accepted:   false,
			StatusCode: http.StatusInternalServerError,
			Metadata: map[string]any{
				"provider_id": providerID,
				"delivery_id": deliveryID,
				"retry":       true,
			},
		}, err
	}

	if err := p.Ledger.Complete(ctx, delivery.ClaimID); err != nil {
		return core.InboundResult{}, err
	}
	metadata := handled.metadata()
	metadata["provider_id"] = providerID
	metadata["delivery_id"] = deliveryID
	metadata["event_type"] = notification.EventType
	p.log(ctx, "info", "webhook delivery processed", metadata)
	return core.InboundResult{
		Accepted:   true,
		StatusCode: http.StatusOK,
		Metadata:   metadata,
	}, nil
}

func (p *Processor) deliveryID(req core.InboundRequest, notification Notification) (string, error) {
	if p.Template.Extractor != nil {
		if value, err := p.Template.Extractor(req); err == nil && strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value), nil
		}
	}
	if value := strings.TrimSpace(notification.DeliveryID); value != "" {
		return value, nil
	}
	return DefaultDeliveryIDExtractor(req)
}

func DefaultDeliveryIDExtractor(req core.InboundRequest) (string, error) {
	if req.Metadata != nil {
		if value := strings.TrimSpace(fmt.Sprint(req.Metadata["delivery_id"])); value != "" && value != "<nil>" {
			return value, nil
		}
	}
	if value := headerValue(req.Headers, "x-delivery-id"); value != "" {
		return value, nil
	}
	return "", fmt.Errorf("webhooks: delivery id is required for dedupe")
}

func (p *Processor) now() time.Time {
	if p != nil && p.Now != nil {
		return p.Now().UTC()
	}
	return time.Now().UTC()
}

func (p *Processor) retryPolicy() RetryPolicy {
	if p != nil && p.RetryPolicy != nil {
		return p.RetryPolicy
	}
	return ExponentialRetryPolicy{}
}

func (p *Processor) claimLease() time.Duration {
	if p != nil && p.ClaimLease > 0 {
		return p.ClaimLease
	}
	return 30 * time.Second
}

func (p *Processor) maxAttempts() int {
	if p != nil && p.MaxAttempts > 0 {
		return p.MaxAttempts
	}
	return 8
}

func (p *Processor) log(ctx context.Context, level string, message string, fields map[string]any) {
	logger := glog.Ensure(p.Logger)
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	if fieldsLogger, ok := logger.(core.FieldsLogger); ok {
		logger = fieldsLogger.WithFields(fields)
	}
	args := make([]any, 0, len(fields)*2)
	for key, value := range fields {
		args = append(args, key, value)
	}
	if level == "error" {
		logger.Error(message, args...)
		return
	}
	logger.Info(message, args...)
}

func headerValue(headers map[string]string, key string) string {
	if len(headers) == 0 {
		return ""
	}
	for existing, value := range headers {
		if strings.EqualFold(strings.TrimSpace(existing), strings.TrimSpace(key)) {
			return strings.TrimSpace(value)
		}
	}
	return ""
}
