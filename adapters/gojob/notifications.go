package gojob

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-payments/core"

	glog "github.com/goliatone/go-logger/glog"
)

// QueuedNotificationDelivery hands notification events to a job queue instead
// of sending them inline. A NotificationWorker drains the queue.
type QueuedNotificationDelivery struct {
	enqueuer core.JobEnqueuer
}

func NewQueuedNotificationDelivery(enqueuer core.JobEnqueuer) *QueuedNotificationDelivery {
	return &QueuedNotificationDelivery{enqueuer: enqueuer}
}

func (d *QueuedNotificationDelivery) Send(ctx context.Context, event core.NotificationEvent) error {
	if d == nil || d.enqueuer == nil {
		return fmt.Errorf("gojob: notification enqueuer is not configured")
	}
	return d.enqueuer.Enqueue(ctx, NotificationMessage(event))
}

// NotificationMessage builds the job message for one event. The idempotency
// key is the event transition so a duplicate hand-off is merged by the queue.
func NotificationMessage(event core.NotificationEvent) *core.JobExecutionMessage {
	return &core.JobExecutionMessage{
		JobID:          JobIDNotificationDeliver,
		ScriptPath:     ScriptNotificationDeliver,
		Parameters:     EventParameters(event),
		IdempotencyKey: event.IdempotencyKey(),
		DedupPolicy:    "drop",
	}
}

func EventParameters(event core.NotificationEvent) map[string]any {
	return map[string]any{
		"event_id":              event.ID,
		"kind":                  string(event.Kind),
		"client_id":             event.ClientID,
		"target":                event.Target,
		"order_reference":       event.OrderReference,
		"transaction_reference": event.TransactionReference,
		"method":                string(event.Method),
		"amount":                event.Amount,
		"currency":              event.Currency,
		"status":                string(event.Status),
		"order_status":          string(event.OrderStatus),
		"failure_reason":        event.FailureReason,
		"occurred_at":           event.OccurredAt.UTC().Format(time.RFC3339Nano),
	}
}

func EventFromParameters(params map[string]any) (core.NotificationEvent, error) {
	text := func(key string) string {
		value, _ := params[key].(string)
		return strings.TrimSpace(value)
	}
	event := core.NotificationEvent{
		ID:                   text("event_id"),
		Kind:                 core.EventKind(text("kind")),
		ClientID:             text("client_id"),
		Target:               text("target"),
		OrderReference:       text("order_reference"),
		TransactionReference: text("transaction_reference"),
		Method:               core.PaymentMethod(text("method")),
		Amount:               text("amount"),
		Currency:             text("currency"),
		Status:               core.TransactionStatus(text("status")),
		OrderStatus:          core.OrderStatus(text("order_status")),
		FailureReason:        text("failure_reason"),
	}
	if event.ID == "" || event.Kind == "" {
		return core.NotificationEvent{}, fmt.Errorf("gojob: notification message is missing event id or kind")
	}
	if raw := text("occurred_at"); raw != "" {
		occurredAt, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return core.NotificationEvent{}, fmt.Errorf("gojob: parse occurred_at: %w", err)
		}
		event.OccurredAt = occurredAt.UTC()
	}
	return event, nil
}

// attemptNacker is implemented by DeliveryAdapter.
type attemptNacker interface {
	NackForAttempt(ctx context.Context, opts core.JobNackOptions, attempt int) error
}

type WorkerConfig struct {
	Policy RetryPolicy
	// Backoff returns the requeue delay after a failed attempt.
	Backoff func(attempt int) time.Duration
	// Retryable decides whether a send error is requeued or dead lettered.
	Retryable func(err error) bool
	Hook      core.JobWorkerHook
	Logger    core.Logger
	// IdleWait is how long Run sleeps after an empty dequeue.
	IdleWait time.Duration
}

// NotificationWorker drains queued notification jobs into a sender.
type NotificationWorker struct {
	dequeuer core.JobDequeuer
	sender   core.NotificationDelivery
	cfg      WorkerConfig

	mu       sync.Mutex
	attempts map[string]int
}

// ErrNoJob is returned by a dequeuer with nothing to hand out.
var ErrNoJob = errors.New("gojob: no job available")

func NewNotificationWorker(dequeuer core.JobDequeuer, sender core.NotificationDelivery, cfg WorkerConfig) (*NotificationWorker, error) {
	if dequeuer == nil {
		return nil, fmt.Errorf("gojob: dequeuer is required")
	}
	if sender == nil {
		return nil, fmt.Errorf("gojob: notification sender is required")
	}
	if cfg.Backoff == nil {
		cfg.Backoff = func(attempt int) time.Duration {
			if attempt < 1 {
				attempt = 1
			}
			return time.Duration(attempt*attempt) * time.Second
		}
	}
	if cfg.Retryable == nil {
		cfg.Retryable = func(error) bool { return true }
	}
	if cfg.IdleWait <= 0 {
		cfg.IdleWait = time.Second
	}
	return &NotificationWorker{
		dequeuer: dequeuer,
		sender:   sender,
		cfg:      cfg,
		attempts: map[string]int{},
	}, nil
}

// Run processes jobs until ctx is cancelled.
func (w *NotificationWorker) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		processed, err := w.ProcessNext(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			w.log(ctx, "error", "notification worker iteration failed", map[string]any{"error": err.Error()})
		}
		if processed {
			continue
		}
		timer := time.NewTimer(w.cfg.IdleWait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

// ProcessNext handles one job. It reports false when the queue was empty.
func (w *NotificationWorker) ProcessNext(ctx context.Context) (bool, error) {
	delivery, err := w.dequeuer.Dequeue(ctx)
	if errors.Is(err, ErrNoJob) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if delivery == nil {
		return false, nil
	}
	return true, w.handle(ctx, delivery)
}

func (w *NotificationWorker) handle(ctx context.Context, delivery core.JobDelivery) error {
	msg := delivery.Message()
	if msg == nil || msg.JobID != JobIDNotificationDeliver {
		return w.nack(ctx, delivery, msg, core.JobNackOptions{DeadLetter: true, Reason: "unsupported job"}, 1)
	}
	event, err := EventFromParameters(msg.Parameters)
	if err != nil {
		return w.nack(ctx, delivery, msg, core.JobNackOptions{DeadLetter: true, Reason: err.Error()}, 1)
	}

	attempt := w.nextAttempt(event.ID)
	startedAt := time.Now().UTC()
	w.hook(ctx, "start", msg, attempt, 0, nil, startedAt)

	sendErr := w.sender.Send(ctx, event)
	if sendErr == nil {
		w.forget(event.ID)
		w.hook(ctx, "success", msg, attempt, 0, nil, startedAt)
		w.log(ctx, "info", "notification delivered", map[string]any{
			"event_id": event.ID,
			"event":    string(event.Kind),
			"attempt":  attempt,
		})
		return delivery.Ack(ctx)
	}

	fields := map[string]any{
		"event_id": event.ID,
		"event":    string(event.Kind),
		"attempt":  attempt,
		"error":    sendErr.Error(),
	}
	if !w.cfg.Retryable(sendErr) {
		w.forget(event.ID)
		w.hook(ctx, "failure", msg, attempt, 0, sendErr, startedAt)
		w.log(ctx, "error", "notification rejected", fields)
		return w.nack(ctx, delivery, msg, core.JobNackOptions{DeadLetter: true, Reason: sendErr.Error()}, attempt)
	}

	opts := w.cfg.Policy.NormalizeAttempt(core.JobNackOptions{
		Delay:   retryDelay(sendErr, w.cfg.Backoff(attempt)),
		Requeue: true,
		Reason:  sendErr.Error(),
	}, attempt)
	if opts.Requeue {
		w.hook(ctx, "retry", msg, attempt, opts.Delay, sendErr, startedAt)
		w.log(ctx, "info", "notification delivery retry scheduled", fields)
	} else {
		w.forget(event.ID)
		w.hook(ctx, "failure", msg, attempt, 0, sendErr, startedAt)
		w.log(ctx, "error", "notification delivery exhausted", fields)
	}
	return w.nack(ctx, delivery, msg, opts, attempt)
}

// retryDelay prefers a delay the error asks for, such as an endpoint throttle,
// when it is longer than the regular backoff.
func retryDelay(err error, backoff time.Duration) time.Duration {
	var hinted interface{ RetryDelay() time.Duration }
	if errors.As(err, &hinted) && hinted.RetryDelay() > backoff {
		return hinted.RetryDelay()
	}
	return backoff
}

func (w *NotificationWorker) nack(
	ctx context.Context,
	delivery core.JobDelivery,
	msg *core.JobExecutionMessage,
	opts core.JobNackOptions,
	attempt int,
) error {
	if nacker, ok := delivery.(attemptNacker); ok {
		return nacker.NackForAttempt(ctx, opts, attempt)
	}
	return delivery.Nack(ctx, w.cfg.Policy.NormalizeAttempt(opts, attempt))
}

func (w *NotificationWorker) nextAttempt(eventID string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.attempts[eventID]++
	return w.attempts[eventID]
}

func (w *NotificationWorker) forget(eventID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.attempts, eventID)
}

func (w *NotificationWorker) hook(
	ctx context.Context,
	stage string,
	msg *core.JobExecutionMessage,
	attempt int,
	delay time.Duration,
	err error,
	startedAt time.Time,
) {
	if w.cfg.Hook == nil {
		return
	}
	event := core.JobWorkerEvent{
		Message:   msg,
		Attempt:   attempt,
		Delay:     delay,
		Err:       err,
		StartedAt: startedAt,
		Duration:  time.Since(startedAt),
	}
	switch stage {
	case "start":
		w.cfg.Hook.OnStart(ctx, event)
	case "success":
		w.cfg.Hook.OnSuccess(ctx, event)
	case "retry":
		w.cfg.Hook.OnRetry(ctx, event)
	default:
		w.cfg.Hook.OnFailure(ctx, event)
	}
}

func (w *NotificationWorker) log(ctx context.Context, level string, message string, fields map[string]any) {
	logger := glog.Ensure(w.cfg.Logger)
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	if fieldsLogger, ok := logger.(core.FieldsLogger); ok {
		logger = fieldsLogger.WithFields(fields)
	}
	if level == "error" {
		logger.Error(message)
		return
	}
	logger.Info(message)
}

var (
	_ core.NotificationDelivery = (*QueuedNotificationDelivery)(nil)
	_ attemptNacker             = (*DeliveryAdapter)(nil)
)
