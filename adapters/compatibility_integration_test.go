package adapters_test

import (
	"context"
	"testing"
	"time"

	"github.com/goliatone/go-command"
	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-payments/adapters/gocommand"
	"github.com/goliatone/go-payments/adapters/gojob"
	"github.com/goliatone/go-payments/adapters/gologger"
	paymentscommand "github.com/goliatone/go-payments/command"
	"github.com/goliatone/go-payments/core"
)

// A payment notification goes through the go-job bridge, comes back out of
// the queue and reaches the sender with the go-logger bridge attached.
func TestRuntimeCompatibility_QueuedNotificationRoundTrip(t *testing.T) {
	ctx := context.Background()

	_, workerLogger, jobProvider, jobLogger := gologger.ResolveForJob(&compatProvider{}, nil)
	if jobProvider == nil || jobLogger == nil {
		t.Fatalf("expected go-job logger bridges")
	}

	backend := &compatQueue{}
	sender := gojob.NewQueuedNotificationDelivery(gojob.NewEnqueuerAdapter(backend))
	event := core.NotificationEvent{
		ID:                   "evt_1",
		Kind:                 core.EventPaymentFailed,
		ClientID:             "client_1",
		Target:               "https://merchant.example.com/hooks",
		OrderReference:       "ORD_ABC_1",
		TransactionReference: "TXN_1",
		Method:               core.PaymentMethodPayPal,
		Amount:               "10.00",
		Currency:             "USD",
		Status:               core.TransactionStatusFailed,
		OrderStatus:          core.OrderStatusFailed,
		FailureReason:        "Payment capture denied",
		OccurredAt:           time.Date(2026, 5, 2, 8, 30, 0, 0, time.UTC),
	}
	if err := sender.Send(ctx, event); err != nil {
		t.Fatalf("enqueue notification: %v", err)
	}
	if len(backend.messages) != 1 || backend.messages[0].JobID != gojob.JobIDNotificationDeliver {
		t.Fatalf("expected go-job message for notification")
	}
	if backend.messages[0].DedupPolicy != job.DeduplicationPolicy("drop") {
		t.Fatalf("expected drop dedup policy, got %q", backend.messages[0].DedupPolicy)
	}

	received := &compatSender{}
	worker, err := gojob.NewNotificationWorker(
		gojob.NewDequeuerAdapter(backend, gojob.RetryPolicy{MaxAttempts: 3}),
		received,
		gojob.WorkerConfig{Logger: workerLogger},
	)
	if err != nil {
		t.Fatalf("new worker: %v", err)
	}
	if processed, err := worker.ProcessNext(ctx); err != nil || !processed {
		t.Fatalf("expected processed job, got %v %v", processed, err)
	}
	if len(received.events) != 1 || received.events[0] != event {
		t.Fatalf("expected event to survive the queue, got %#v", received.events)
	}
	if !backend.acked {
		t.Fatalf("expected underlying go-job delivery to be acked")
	}
}

func TestRuntimeCompatibility_PaymentCommandsMirrorIntoQueueRegistry(t *testing.T) {
	svc, err := core.NewService(core.DefaultConfig())
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	queueRegistry := jobqueuecommand.NewRegistry()
	adapter := gocommand.NewRegistryAdapter(command.NewRegistry())
	if err := adapter.MirrorToQueue(queueRegistry); err != nil {
		t.Fatalf("mirror to queue: %v", err)
	}
	subs, err := gocommand.RegisterPaymentHandlers(adapter, svc)
	if err != nil {
		t.Fatalf("register payment handlers: %v", err)
	}
	defer subs.Unsubscribe()
	if err := adapter.Initialize(); err != nil {
		t.Fatalf("initialize command registry: %v", err)
	}
	for _, msgType := range []string{paymentscommand.TypeRefundTransaction, paymentscommand.TypeReconcileTransaction} {
		if _, ok := queueRegistry.Get(msgType); !ok {
			t.Fatalf("expected %s to be mirrored into the go-job queue registry", msgType)
		}
	}
}

type compatQueue struct {
	messages []*job.ExecutionMessage
	acked    bool
}

func (q *compatQueue) Enqueue(_ context.Context, msg *job.ExecutionMessage) error {
	q.messages = append(q.messages, msg)
	return nil
}

func (q *compatQueue) Dequeue(context.Context) (queue.Delivery, error) {
	if len(q.messages) == 0 {
		return nil, gojob.ErrNoJob
	}
	msg := q.messages[0]
	q.messages = q.messages[1:]
	return &compatDelivery{queue: q, msg: msg}, nil
}

type compatDelivery struct {
	queue *compatQueue
	msg   *job.ExecutionMessage
}

func (d *compatDelivery) Message() *job.ExecutionMessage { return d.msg }

func (d *compatDelivery) Ack(context.Context) error {
	d.queue.acked = true
	return nil
}

func (d *compatDelivery) Nack(context.Context, queue.NackOptions) error { return nil }

type compatSender struct {
	events []core.NotificationEvent
}

func (s *compatSender) Send(_ context.Context, event core.NotificationEvent) error {
	s.events = append(s.events, event)
	return nil
}

type compatProvider struct{}

func (compatProvider) GetLogger(string) glog.Logger { return compatLogger{} }

type compatLogger struct{}

func (compatLogger) Trace(string, ...any)                    {}
func (compatLogger) Debug(string, ...any)                    {}
func (compatLogger) Info(string, ...any)                     {}
func (compatLogger) Warn(string, ...any)                     {}
func (compatLogger) Error(string, ...any)                    {}
func (compatLogger) Fatal(string, ...any)                    {}
func (compatLogger) WithContext(context.Context) glog.Logger { return compatLogger{} }
