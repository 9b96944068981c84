package core

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

const testClientID = "client_1"

type stubLogger struct{}

func (stubLogger) Trace(string, ...any) {}
func (stubLogger) Debug(string, ...any) {}
func (stubLogger) Info(string, ...any)  {}
func (stubLogger) Warn(string, ...any)  {}
func (stubLogger) Error(string, ...any) {}
func (stubLogger) Fatal(string, ...any) {}
func (s stubLogger) WithContext(context.Context) Logger {
	return s
}

type stubLoggerProvider struct {
	logger Logger
}

func (s stubLoggerProvider) GetLogger(string) Logger {
	return s.logger
}

type capturedCounter struct {
	name  string
	value int64
	tags  map[string]string
}

type capturedHistogram struct {
	name  string
	value float64
	tags  map[string]string
}

type captureMetricsRecorder struct {
	mu         sync.Mutex
	counters   []capturedCounter
	histograms []capturedHistogram
}

func (m *captureMetricsRecorder) IncCounter(_ context.Context, name string, value int64, tags map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters = append(m.counters, capturedCounter{name: name, value: value, tags: cloneTags(tags)})
}

func (m *captureMetricsRecorder) ObserveHistogram(_ context.Context, name string, value float64, tags map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.histograms = append(m.histograms, capturedHistogram{name: name, value: value, tags: cloneTags(tags)})
}

func (m *captureMetricsRecorder) counterTotal(name string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var total int64
	for _, counter := range m.counters {
		if counter.name == name {
			total += counter.value
		}
	}
	return total
}

type capturedLog struct {
	level  string
	msg    string
	fields map[string]any
}

type captureLogger struct {
	mu       *sync.Mutex
	records  *[]capturedLog
	defaults map[string]any
}

func newCaptureLogger() *captureLogger {
	records := []capturedLog{}
	return &captureLogger{mu: &sync.Mutex{}, records: &records, defaults: map[string]any{}}
}

func (l *captureLogger) WithFields(fields map[string]any) Logger {
	merged := cloneFields(l.defaults)
	for key, value := range fields {
		merged[key] = value
	}
	return &captureLogger{mu: l.mu, records: l.records, defaults: merged}
}

func (l *captureLogger) Trace(msg string, args ...any) { l.record("trace", msg, args...) }
func (l *captureLogger) Debug(msg string, args ...any) { l.record("debug", msg, args...) }
func (l *captureLogger) Info(msg string, args ...any)  { l.record("info", msg, args...) }
func (l *captureLogger) Warn(msg string, args ...any)  { l.record("warn", msg, args...) }
func (l *captureLogger) Error(msg string, args ...any) { l.record("error", msg, args...) }
func (l *captureLogger) Fatal(msg string, args ...any) { l.record("fatal", msg, args...) }

func (l *captureLogger) WithContext(context.Context) Logger {
	return &captureLogger{mu: l.mu, records: l.records, defaults: cloneFields(l.defaults)}
}

func (l *captureLogger) record(level string, msg string, args ...any) {
	fields := cloneFields(l.defaults)
	for index := 0; index+1 < len(args); index += 2 {
		key, ok := args[index].(string)
		if !ok {
			continue
		}
		fields[key] = args[index+1]
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	*l.records = append(*l.records, capturedLog{level: level, msg: msg, fields: fields})
}

func (l *captureLogger) snapshot() []capturedLog {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]capturedLog, len(*l.records))
	copy(out, *l.records)
	return out
}

// scriptedAdapter answers Authorize with fn, or with result/err when fn is nil.
type scriptedAdapter struct {
	method PaymentMethod
	result ProviderResult
	err    error
	fn     func(ctx context.Context, req AuthorizeRequest) (ProviderResult, error)

	mu    sync.Mutex
	calls []AuthorizeRequest
}

func (a *scriptedAdapter) Method() PaymentMethod { return a.method }

func (a *scriptedAdapter) Authorize(ctx context.Context, req AuthorizeRequest) (ProviderResult, error) {
	a.mu.Lock()
	a.calls = append(a.calls, req)
	a.mu.Unlock()
	if a.fn != nil {
		return a.fn(ctx, req)
	}
	return a.result, a.err
}

func (a *scriptedAdapter) callCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.calls)
}

type recordingDelivery struct {
	mu     sync.Mutex
	events []NotificationEvent
	err    error
}

func (d *recordingDelivery) Send(_ context.Context, event NotificationEvent) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, event)
	return d.err
}

func (d *recordingDelivery) snapshot() []NotificationEvent {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]NotificationEvent, len(d.events))
	copy(out, d.events)
	return out
}

func (d *recordingDelivery) countKind(kind EventKind) int {
	count := 0
	for _, event := range d.snapshot() {
		if event.Kind == kind {
			count++
		}
	}
	return count
}

// sequenceReferences produces predictable ids and references.
type sequenceReferences struct {
	mu  sync.Mutex
	ids int
	txn int
}

func (r *sequenceReferences) NewID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids++
	return fmt.Sprintf("id_%03d", r.ids)
}

func (r *sequenceReferences) OrderReference(now time.Time) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids++
	return fmt.Sprintf("ORD_TEST%06d_%d", r.ids, now.Unix())
}

func (r *sequenceReferences) TransactionReference() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.txn++
	return fmt.Sprintf("TXN_%03d", r.txn)
}

type testHarness struct {
	svc      *Service
	store    LedgerStore
	delivery *recordingDelivery
	metrics  *captureMetricsRecorder
	logger   *captureLogger
}

func successAdapter(method PaymentMethod, providerReference string) *scriptedAdapter {
	return &scriptedAdapter{
		method: method,
		result: ProviderResult{Outcome: ProviderOutcomeSuccess, ProviderReference: providerReference},
	}
}

func newTestHarness(t *testing.T, cfg Config, adapters ...ProviderAdapter) *testHarness {
	t.Helper()
	return newTestHarnessWithStore(t, cfg, NewMemoryLedgerStore(), adapters...)
}

func newTestHarnessWithStore(t *testing.T, cfg Config, store LedgerStore, adapters ...ProviderAdapter) *testHarness {
	t.Helper()
	registry, err := NewProviderRegistry(adapters...)
	if err != nil {
		t.Fatalf("build provider registry: %v", err)
	}
	h := &testHarness{
		store:    store,
		delivery: &recordingDelivery{},
		metrics:  &captureMetricsRecorder{},
		logger:   newCaptureLogger(),
	}
	svc, err := NewService(cfg,
		WithLogger(h.logger),
		WithLoggerProvider(stubLoggerProvider{logger: h.logger}),
		WithMetricsRecorder(h.metrics),
		WithLedgerStore(h.store),
		WithProviderResolver(registry),
		WithNotificationDelivery(h.delivery),
		WithReferenceGenerator(&sequenceReferences{}),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	h.svc = svc
	if _, err := svc.RegisterClient(context.Background(), ApiClient{
		ID:             testClientID,
		Name:           "Shop",
		Secret:         "secret",
		Active:         true,
		PaymentMethods: DefaultPaymentMethods(),
		WebhookURL:     "https://merchant.example.com/hooks",
	}); err != nil {
		t.Fatalf("register client: %v", err)
	}
	return h
}

func (h *testHarness) createOrder(t *testing.T, amount string, currency string) Order {
	t.Helper()
	order, err := h.svc.CreateOrder(context.Background(), CreateOrderRequest{
		ClientID: testClientID,
		Customer: Customer{Name: "Ada", Email: "ada@example.com"},
		Amount:   amount,
		Currency: currency,
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	return order
}
