package core

import (
	"context"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type Service struct {
	config               Config
	logger               Logger
	loggerProvider       LoggerProvider
	metricsRecorder      MetricsRecorder
	errorMapper          ErrorMapper
	persistenceClient    any
	repositoryFactory    any
	configProvider       ConfigProvider
	optionsResolver      OptionsResolver
	store                LedgerStore
	providers            ProviderResolver
	notificationDelivery NotificationDelivery
	clock                Clock
	references           ReferenceGenerator
}

type ServiceDependencies struct {
	Logger               Logger
	LoggerProvider       LoggerProvider
	MetricsRecorder      MetricsRecorder
	ErrorMapper          ErrorMapper
	PersistenceClient    any
	RepositoryFactory    any
	ConfigProvider       ConfigProvider
	OptionsResolver      OptionsResolver
	LedgerStore          LedgerStore
	Providers            ProviderResolver
	NotificationDelivery NotificationDelivery
	Clock                Clock
	References           ReferenceGenerator
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	builder := defaultServiceBuilder(cfg)
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("payments", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("payments"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = defaultErrorMapper
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}
	if builder.clock == nil {
		builder.clock = SystemClock{}
	}
	if builder.references == nil {
		builder.references = UUIDReferenceGenerator{}
	}
	if builder.providers == nil {
		registry, _ := NewProviderRegistry()
		builder.providers = registry
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	if builder.ledgerStore == nil && builder.repositoryFactory != nil {
		switch factory := builder.repositoryFactory.(type) {
		case LedgerStoreFactory:
			store, buildErr := factory.BuildLedgerStore(builder.persistenceClient)
			if buildErr != nil {
				return nil, mapBuildError(builder.errorMapper, buildErr)
			}
			builder.ledgerStore = store
		case interface{ LedgerStore() LedgerStore }:
			builder.ledgerStore = factory.LedgerStore()
		}
	}
	if builder.ledgerStore == nil {
		builder.ledgerStore = NewMemoryLedgerStore()
	}

	return &Service{
		config:               finalConfig,
		logger:               logger,
		loggerProvider:       provider,
		metricsRecorder:      builder.metricsRecorder,
		errorMapper:          builder.errorMapper,
		persistenceClient:    builder.persistenceClient,
		repositoryFactory:    builder.repositoryFactory,
		configProvider:       builder.configProvider,
		optionsResolver:      builder.optionsResolver,
		store:                builder.ledgerStore,
		providers:            builder.providers,
		notificationDelivery: builder.notificationDelivery,
		clock:                builder.clock,
		references:           builder.references,
	}, nil
}

func Setup(cfg Config, opts ...Option) (*Service, error) {
	return NewService(cfg, opts...)
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	mapped := mapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (s *Service) mapError(err error) error {
	if err == nil {
		return nil
	}
	if s == nil || s.errorMapper == nil {
		return err
	}
	mapped := s.errorMapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

func (s *Service) Dependencies() ServiceDependencies {
	if s == nil {
		return ServiceDependencies{}
	}
	return ServiceDependencies{
		Logger:               s.logger,
		LoggerProvider:       s.loggerProvider,
		MetricsRecorder:      s.metricsRecorder,
		ErrorMapper:          s.errorMapper,
		PersistenceClient:    s.persistenceClient,
		RepositoryFactory:    s.repositoryFactory,
		ConfigProvider:       s.configProvider,
		OptionsResolver:      s.optionsResolver,
		LedgerStore:          s.store,
		Providers:            s.providers,
		NotificationDelivery: s.notificationDelivery,
		Clock:                s.clock,
		References:           s.references,
	}
}

func (s *Service) now() time.Time {
	if s == nil || s.clock == nil {
		return time.Now().UTC()
	}
	return s.clock.Now().UTC()
}

// RegisterClient stores a merchant client. Clients are never deleted; set
// Active to false to deactivate one.
func (s *Service) RegisterClient(ctx context.Context, client ApiClient) (saved ApiClient, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"client_id": client.ID}
	defer func() {
		s.observeOperation(ctx, startedAt, "register_client", err, fields)
	}()

	client.ID = strings.TrimSpace(client.ID)
	if client.ID == "" {
		client.ID = s.references.NewID()
		fields["client_id"] = client.ID
	}
	if strings.TrimSpace(client.Secret) == "" {
		return ApiClient{}, s.mapError(NewValidationError("secret", "client secret is required"))
	}
	if client.PaymentMethods == nil {
		client.PaymentMethods = DefaultPaymentMethods()
	}
	if target := strings.TrimSpace(client.WebhookURL); target != "" {
		if err = validateWebhookURL(target); err != nil {
			return ApiClient{}, s.mapError(err)
		}
	}
	now := s.now()
	if existing, getErr := s.store.GetClient(ctx, client.ID); getErr == nil {
		client.CreatedAt = existing.CreatedAt
	} else if IsNotFoundError(getErr) {
		client.CreatedAt = now
	} else {
		return ApiClient{}, s.mapError(getErr)
	}
	client.UpdatedAt = now
	saved, err = s.store.SaveClient(ctx, client)
	if err != nil {
		return ApiClient{}, s.mapError(err)
	}
	return saved, nil
}

func (s *Service) CreateOrder(ctx context.Context, req CreateOrderRequest) (order Order, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"client_id": req.ClientID}
	defer func() {
		s.observeOperation(ctx, startedAt, "create_order", err, fields)
	}()

	if _, err = s.activeClient(ctx, req.ClientID); err != nil {
		return Order{}, err
	}
	order, err = NewOrder(req, s.config.DefaultCurrency, s.references, s.now())
	if err != nil {
		return Order{}, s.mapError(err)
	}
	order, err = s.store.InsertOrder(ctx, order)
	if err != nil {
		return Order{}, s.mapError(err)
	}
	fields["order_reference"] = order.Reference
	fields["amount"] = order.Money().String()
	return order, nil
}

func (s *Service) GetOrder(ctx context.Context, clientID string, reference string) (Order, error) {
	order, err := s.store.GetOrderByReference(ctx, reference)
	if err != nil {
		return Order{}, s.mapError(err)
	}
	if order.ClientID != strings.TrimSpace(clientID) {
		return Order{}, s.mapError(NewNotFoundError("order", reference))
	}
	return order, nil
}

func (s *Service) ListOrders(ctx context.Context, filter OrderFilter) (OrderPage, error) {
	filter = filter.Normalized()
	if filter.ClientID == "" {
		return OrderPage{}, s.mapError(NewValidationError("client_id", "client id is required"))
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return OrderPage{}, s.mapError(NewValidationError("status", "unknown order status"))
	}
	page, err := s.store.ListOrders(ctx, filter)
	if err != nil {
		return OrderPage{}, s.mapError(err)
	}
	return page, nil
}

func (s *Service) GetTransaction(ctx context.Context, clientID string, reference string) (Transaction, error) {
	txn, err := s.store.GetTransactionByReference(ctx, reference)
	if err != nil {
		return Transaction{}, s.mapError(err)
	}
	if txn.ClientID != strings.TrimSpace(clientID) {
		return Transaction{}, s.mapError(NewNotFoundError("transaction", reference))
	}
	return txn, nil
}

func (s *Service) ListTransactions(ctx context.Context, clientID string, orderReference string) ([]Transaction, error) {
	order, err := s.GetOrder(ctx, clientID, orderReference)
	if err != nil {
		return nil, err
	}
	txns, err := s.store.ListTransactionsByOrder(ctx, order.ID)
	if err != nil {
		return nil, s.mapError(err)
	}
	return txns, nil
}

func (s *Service) CancelOrder(ctx context.Context, req CancelOrderRequest) (order Order, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"client_id":       req.ClientID,
		"order_reference": req.OrderReference,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "cancel_order", err, fields)
	}()

	err = s.withConflictRetry(ctx, func() error {
		current, getErr := s.GetOrder(ctx, req.ClientID, req.OrderReference)
		if getErr != nil {
			return getErr
		}
		switch current.Status {
		case OrderStatusPaid, OrderStatusCancelled:
			return NewInvalidStateError(
				"order "+current.Reference+" is "+string(current.Status)+" and cannot be cancelled",
				map[string]any{"order_reference": current.Reference, "status": string(current.Status)},
			)
		}
		now := s.now()
		next := cloneOrder(current)
		next.Status = OrderStatusCancelled
		next.CancelledAt = &now
		next.UpdatedAt = now
		if reason := strings.TrimSpace(req.Reason); reason != "" {
			next.Metadata = mergeAnyMaps(next.Metadata, map[string]any{"cancel_reason": reason})
		}
		saved, putErr := s.store.PutOrder(ctx, next, current.Version)
		if putErr != nil {
			return putErr
		}
		order = saved
		return nil
	})
	if err != nil {
		return Order{}, s.mapError(err)
	}
	return order, nil
}

func (s *Service) activeClient(ctx context.Context, clientID string) (ApiClient, error) {
	clientID = strings.TrimSpace(clientID)
	if clientID == "" {
		return ApiClient{}, s.mapError(NewValidationError("client_id", "client id is required"))
	}
	client, err := s.store.GetClient(ctx, clientID)
	if err != nil {
		return ApiClient{}, s.mapError(err)
	}
	if !client.Active {
		return ApiClient{}, s.mapError(NewPolicyError(
			"client is not active",
			map[string]any{"client_id": clientID},
		))
	}
	return client, nil
}

// withConflictRetry reruns a read-modify-write cycle while it loses
// compare-and-swap races, up to max_apply_attempts.
func (s *Service) withConflictRetry(ctx context.Context, fn func() error) error {
	attempts := s.config.MaxApplyAttempts
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn()
		if err == nil || !IsConflictError(err) {
			return err
		}
		if attempt == attempts {
			break
		}
		if waitErr := s.conflictBackoff(ctx, attempt); waitErr != nil {
			return waitErr
		}
	}
	return err
}

func (s *Service) conflictBackoff(ctx context.Context, attempt int) error {
	delay := s.config.ConflictBackoff * time.Duration(attempt)
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
