package payments

import "github.com/goliatone/go-payments/core"

type Config = core.Config

type Option = core.Option

type Service = core.Service

type ServiceDependencies = core.ServiceDependencies
type LedgerStore = core.LedgerStore
type LedgerStoreFactory = core.LedgerStoreFactory
type ProviderAdapter = core.ProviderAdapter
type ProviderResolver = core.ProviderResolver
type NotificationDelivery = core.NotificationDelivery
type Clock = core.Clock
type ReferenceGenerator = core.ReferenceGenerator

type ApiClient = core.ApiClient
type Order = core.Order
type OrderFilter = core.OrderFilter
type OrderPage = core.OrderPage
type Transaction = core.Transaction
type PaymentMethod = core.PaymentMethod

type CreateOrderRequest = core.CreateOrderRequest
type CancelOrderRequest = core.CancelOrderRequest

type DispatchRequest = core.DispatchRequest
type DispatchResult = core.DispatchResult

type ReconcileRequest = core.ReconcileRequest
type ReconcileResult = core.ReconcileResult

type RefundRequest = core.RefundRequest

var (
	WithLogger               = core.WithLogger
	WithLoggerProvider       = core.WithLoggerProvider
	WithErrorMapper          = core.WithErrorMapper
	WithMetricsRecorder      = core.WithMetricsRecorder
	WithPersistenceClient    = core.WithPersistenceClient
	WithRepositoryFactory    = core.WithRepositoryFactory
	WithConfigProvider       = core.WithConfigProvider
	WithOptionsResolver      = core.WithOptionsResolver
	WithLedgerStore          = core.WithLedgerStore
	WithProviderResolver     = core.WithProviderResolver
	WithNotificationDelivery = core.WithNotificationDelivery
	WithClock                = core.WithClock
	WithReferenceGenerator   = core.WithReferenceGenerator
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	return core.NewService(cfg, opts...)
}

func Setup(cfg Config, opts ...Option) (*Service, error) {
	return core.Setup(cfg, opts...)
}
