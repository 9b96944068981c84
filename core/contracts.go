package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

// LedgerStore is durable keyed storage for clients, orders and transactions.
// Put operations are compare-and-swap on Version: a stale expectedVersion
// returns a ConflictError and leaves the stored record untouched.
type LedgerStore interface {
	GetClient(ctx context.Context, id string) (ApiClient, error)
	SaveClient(ctx context.Context, client ApiClient) (ApiClient, error)

	InsertOrder(ctx context.Context, order Order) (Order, error)
	GetOrder(ctx context.Context, id string) (Order, error)
	GetOrderByReference(ctx context.Context, reference string) (Order, error)
	PutOrder(ctx context.Context, order Order, expectedVersion int64) (Order, error)
	ListOrders(ctx context.Context, filter OrderFilter) (OrderPage, error)

	InsertTransaction(ctx context.Context, txn Transaction) (Transaction, error)
	GetTransaction(ctx context.Context, id string) (Transaction, error)
	GetTransactionByReference(ctx context.Context, reference string) (Transaction, error)
	FindTransactionByProviderReference(ctx context.Context, providerReference string) (Transaction, error)
	PutTransaction(ctx context.Context, txn Transaction, expectedVersion int64) (Transaction, error)
	// ListTransactionsByOrder returns transactions in creation order.
	ListTransactionsByOrder(ctx context.Context, orderID string) ([]Transaction, error)
}

type LedgerStoreFactory interface {
	BuildLedgerStore(persistenceClient any) (LedgerStore, error)
}

// ProviderAdapter authorizes a payment with one provider. Declines are
// reported through ProviderResult; a returned error means the provider could
// not be reached.
type ProviderAdapter interface {
	Method() PaymentMethod
	Authorize(ctx context.Context, req AuthorizeRequest) (ProviderResult, error)
}

type ProviderResolver interface {
	Resolve(method PaymentMethod) (ProviderAdapter, bool)
}

// NotificationDelivery hands an event to the outbound delivery mechanism.
type NotificationDelivery interface {
	Send(ctx context.Context, event NotificationEvent) error
}

type Clock interface {
	Now() time.Time
}

type ReferenceGenerator interface {
	NewID() string
	OrderReference(now time.Time) string
	TransactionReference() string
}

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

type JobExecutionMessage struct {
	JobID          string
	ScriptPath     string
	Parameters     map[string]any
	IdempotencyKey string
	DedupPolicy    string
}

type JobNackOptions struct {
	Delay      time.Duration
	Requeue    bool
	DeadLetter bool
	Reason     string
}

type JobEnqueuer interface {
	Enqueue(ctx context.Context, msg *JobExecutionMessage) error
}

type JobDelivery interface {
	Message() *JobExecutionMessage
	Ack(ctx context.Context) error
	Nack(ctx context.Context, opts JobNackOptions) error
}

type JobDequeuer interface {
	Dequeue(ctx context.Context) (JobDelivery, error)
}

type JobWorkerHook interface {
	OnStart(ctx context.Context, event JobWorkerEvent)
	OnSuccess(ctx context.Context, event JobWorkerEvent)
	OnFailure(ctx context.Context, event JobWorkerEvent)
	OnRetry(ctx context.Context, event JobWorkerEvent)
}

type JobWorkerEvent struct {
	Message   *JobExecutionMessage
	Attempt   int
	Delay     time.Duration
	Err       error
	StartedAt time.Time
	Duration  time.Duration
}

type InboundRequest struct {
	ProviderID string
	Surface    string
	Headers    map[string]string
	Body       []byte
	Metadata   map[string]any
}

type InboundResult struct {
	Accepted   bool
	StatusCode int
	Metadata   map[string]any
}

type TransportRequest struct {
	Method               string
	URL                  string
	Headers              map[string]string
	Query                map[string]string
	Body                 []byte
	Timeout              time.Duration
	MaxResponseBodyBytes int64
}

type TransportResponse struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
	Metadata   map[string]any
}

type TransportAdapter interface {
	Kind() string
	Do(ctx context.Context, req TransportRequest) (TransportResponse, error)
}

// PaymentService is the lifecycle engine surface consumed by commands, queries and webhooks.
type PaymentService interface {
	RegisterClient(ctx context.Context, client ApiClient) (ApiClient, error)
	CreateOrder(ctx context.Context, req CreateOrderRequest) (Order, error)
	GetOrder(ctx context.Context, clientID string, reference string) (Order, error)
	ListOrders(ctx context.Context, filter OrderFilter) (OrderPage, error)
	CancelOrder(ctx context.Context, req CancelOrderRequest) (Order, error)
	DispatchTransaction(ctx context.Context, req DispatchRequest) (DispatchResult, error)
	ApplyResult(ctx context.Context, transactionReference string, result ProviderResult) (Transaction, error)
	ReconcileByProviderReference(ctx context.Context, req ReconcileRequest) (ReconcileResult, error)
	RefundTransaction(ctx context.Context, req RefundRequest) (Transaction, error)
	GetTransaction(ctx context.Context, clientID string, reference string) (Transaction, error)
	ListTransactions(ctx context.Context, clientID string, orderReference string) ([]Transaction, error)
}
