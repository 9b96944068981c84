package gojob

import (
	"context"
	"strings"

	"github.com/goliatone/go-job/queue/worker"
	"github.com/goliatone/go-payments/core"
)

const (
	MetricNotificationStarted   = "payments.notification.delivery.started"
	MetricNotificationDelivered = "payments.notification.delivery.delivered"
	MetricNotificationRetried   = "payments.notification.delivery.retried"
	MetricNotificationFailed    = "payments.notification.delivery.failed"
	MetricNotificationDuration  = "payments.notification.delivery.duration_ms"
	MetricNotificationThrottled = "payments.notification.delivery.throttled"
)

// WorkerHookAdapter lets a go-job worker report into payments worker hooks.
type WorkerHookAdapter struct {
	hook core.JobWorkerHook
}

func NewWorkerHookAdapter(hook core.JobWorkerHook) *WorkerHookAdapter {
	return &WorkerHookAdapter{hook: hook}
}

func (a *WorkerHookAdapter) OnStart(ctx context.Context, event worker.Event) {
	if a == nil || a.hook == nil {
		return
	}
	a.hook.OnStart(ctx, mapWorkerEvent(event))
}

func (a *WorkerHookAdapter) OnSuccess(ctx context.Context, event worker.Event) {
	if a == nil || a.hook == nil {
		return
	}
	a.hook.OnSuccess(ctx, mapWorkerEvent(event))
}

func (a *WorkerHookAdapter) OnFailure(ctx context.Context, event worker.Event) {
	if a == nil || a.hook == nil {
		return
	}
	a.hook.OnFailure(ctx, mapWorkerEvent(event))
}

func (a *WorkerHookAdapter) OnRetry(ctx context.Context, event worker.Event) {
	if a == nil || a.hook == nil {
		return
	}
	a.hook.OnRetry(ctx, mapWorkerEvent(event))
}

func mapWorkerEvent(event worker.Event) core.JobWorkerEvent {
	message := event.Message
	if message == nil && event.Delivery != nil {
		message = event.Delivery.Message()
	}
	return core.JobWorkerEvent{
		Message:   FromExecutionMessage(message),
		Attempt:   event.Attempt,
		Delay:     event.Delay,
		Err:       event.Err,
		StartedAt: event.StartedAt,
		Duration:  event.Duration,
	}
}

// DeliveryMetricsHook counts notification attempts per event kind and client.
type DeliveryMetricsHook struct {
	recorder core.MetricsRecorder
}

func NewDeliveryMetricsHook(recorder core.MetricsRecorder) *DeliveryMetricsHook {
	if recorder == nil {
		recorder = core.NopMetricsRecorder{}
	}
	return &DeliveryMetricsHook{recorder: recorder}
}

func (h *DeliveryMetricsHook) OnStart(ctx context.Context, event core.JobWorkerEvent) {
	h.recorder.IncCounter(ctx, MetricNotificationStarted, 1, deliveryTags(event))
}

func (h *DeliveryMetricsHook) OnSuccess(ctx context.Context, event core.JobWorkerEvent) {
	tags := deliveryTags(event)
	h.recorder.IncCounter(ctx, MetricNotificationDelivered, 1, tags)
	h.recorder.ObserveHistogram(ctx, MetricNotificationDuration, float64(event.Duration.Milliseconds()), tags)
}

func (h *DeliveryMetricsHook) OnFailure(ctx context.Context, event core.JobWorkerEvent) {
	tags := deliveryTags(event)
	h.recorder.IncCounter(ctx, MetricNotificationFailed, 1, tags)
	h.recorder.ObserveHistogram(ctx, MetricNotificationDuration, float64(event.Duration.Milliseconds()), tags)
}

func (h *DeliveryMetricsHook) OnRetry(ctx context.Context, event core.JobWorkerEvent) {
	tags := deliveryTags(event)
	h.recorder.IncCounter(ctx, MetricNotificationRetried, 1, tags)
	if isThrottled(event.Err) {
		h.recorder.IncCounter(ctx, MetricNotificationThrottled, 1, tags)
	}
}

func deliveryTags(event core.JobWorkerEvent) map[string]string {
	tags := map[string]string{}
	if event.Message == nil {
		return tags
	}
	for _, key := range []string{"kind", "client_id", "method"} {
		if value, ok := event.Message.Parameters[key].(string); ok && strings.TrimSpace(value) != "" {
			tags[key] = value
		}
	}
	return tags
}

func isThrottled(err error) bool {
	return err != nil && retryDelay(err, 0) > 0
}

var (
	_ worker.Hook        = (*WorkerHookAdapter)(nil)
	_ core.JobWorkerHook = (*DeliveryMetricsHook)(nil)
)
