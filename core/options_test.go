package core

import (
	"context"
	"errors"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

type fixedConfigProvider struct {
	cfg Config
}

func (p *fixedConfigProvider) Load(context.Context, Config) (Config, error) {
	return p.cfg, nil
}

type fixedOptionsResolver struct {
	cfg Config
}

func (r *fixedOptionsResolver) Resolve(Config, Config, Config) (Config, error) {
	return r.cfg, nil
}

type storeFactory struct {
	store  LedgerStore
	client any
}

func (f *storeFactory) BuildLedgerStore(client any) (LedgerStore, error) {
	f.client = client
	return f.store, nil
}

func TestNewService_DefaultDependencies(t *testing.T) {
	svc, err := NewService(Config{})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	deps := svc.Dependencies()
	if deps.Logger == nil {
		t.Fatalf("expected default logger")
	}
	if deps.LoggerProvider == nil {
		t.Fatalf("expected default logger provider")
	}
	if deps.ErrorMapper == nil {
		t.Fatalf("expected default error mapper")
	}
	if deps.ConfigProvider == nil || deps.OptionsResolver == nil {
		t.Fatalf("expected default config provider and options resolver")
	}
	if _, ok := deps.LedgerStore.(*MemoryLedgerStore); !ok {
		t.Fatalf("expected memory ledger store by default, got %T", deps.LedgerStore)
	}
	if deps.NotificationDelivery != nil {
		t.Fatalf("expected no notification delivery by default")
	}
	cfg := svc.Config()
	if cfg.ServiceName != "payments" || cfg.ProviderTimeout != 15*time.Second || cfg.DefaultCurrency != "USD" ||
		cfg.LateResponseWindow != 5*time.Minute {
		t.Fatalf("unexpected default config %+v", cfg)
	}
}

func TestNewService_WithXOverrides(t *testing.T) {
	customLogger := stubLogger{}
	customProvider := stubLoggerProvider{logger: customLogger}
	sentinel := errors.New("sentinel")
	customMapper := func(error) *goerrors.Error {
		return goerrors.Wrap(sentinel, goerrors.CategoryOperation, "mapped")
	}
	persistenceClient := &struct{ Name string }{Name: "persistence"}
	store := NewMemoryLedgerStore()
	factory := &storeFactory{store: store}
	configProvider := &fixedConfigProvider{cfg: Config{ServiceName: "from-provider"}}
	optionsResolver := &fixedOptionsResolver{cfg: Config{ServiceName: "resolved"}}
	clock := ClockFunc(func() time.Time { return time.Unix(10, 0) })

	svc, err := NewService(Config{ServiceName: "runtime"},
		WithLogger(customLogger),
		WithLoggerProvider(customProvider),
		WithErrorMapper(customMapper),
		WithPersistenceClient(persistenceClient),
		WithRepositoryFactory(factory),
		WithConfigProvider(configProvider),
		WithOptionsResolver(optionsResolver),
		WithClock(clock),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	deps := svc.Dependencies()
	if deps.Logger != customLogger {
		t.Fatalf("expected custom logger override")
	}
	if resolved := deps.LoggerProvider.GetLogger("payments.override"); resolved != customLogger {
		t.Fatalf("expected logger provider to resolve custom logger")
	}
	if deps.PersistenceClient != persistenceClient || factory.client != persistenceClient {
		t.Fatalf("expected persistence client to reach the store factory")
	}
	if deps.LedgerStore != store {
		t.Fatalf("expected ledger store built by repository factory")
	}
	if deps.ConfigProvider != configProvider || deps.OptionsResolver != optionsResolver {
		t.Fatalf("expected config overrides")
	}
	if got := svc.Config().ServiceName; got != "resolved" {
		t.Fatalf("expected options resolver output config, got %q", got)
	}
	if !svc.now().Equal(time.Unix(10, 0)) {
		t.Fatalf("expected custom clock")
	}

	_, err = svc.GetOrder(context.Background(), "c1", "missing")
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) || rich.Message != "mapped" {
		t.Fatalf("expected custom error mapper output, got %v", err)
	}
}

func TestNewService_ConfigLayeringPrecedence(t *testing.T) {
	provider := NewCfgxConfigProvider(StaticRawConfigLoader{Values: map[string]any{
		"service_name":       "from-config",
		"default_currency":   "EUR",
		"max_apply_attempts": 9,
		"notifications": map[string]any{
			"skip_failure_events": true,
		},
	}})

	svc, err := NewService(Config{ServiceName: "from-runtime"}, WithConfigProvider(provider))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	cfg := svc.Config()
	if cfg.ServiceName != "from-runtime" {
		t.Fatalf("expected runtime value to override config/default, got %q", cfg.ServiceName)
	}
	if cfg.DefaultCurrency != "EUR" || cfg.MaxApplyAttempts != 9 {
		t.Fatalf("expected config layer values, got %+v", cfg)
	}
	if !cfg.Notifications.SkipFailureEvents {
		t.Fatalf("expected nested notifications config")
	}
	if cfg.ProviderTimeout != 15*time.Second {
		t.Fatalf("expected default provider timeout, got %s", cfg.ProviderTimeout)
	}
}

func TestNewService_RejectsInvalidConfig(t *testing.T) {
	provider := NewCfgxConfigProvider(StaticRawConfigLoader{Values: map[string]any{
		"default_currency": "XX",
	}})
	if _, err := NewService(Config{}, WithConfigProvider(provider)); err == nil {
		t.Fatalf("expected invalid default currency to fail")
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected defaults to validate: %v", err)
	}
	broken := cfg
	broken.ProviderTimeout = 0
	if err := broken.Validate(); err == nil {
		t.Fatalf("expected zero provider timeout to fail")
	}
	broken = cfg
	broken.MaxApplyAttempts = 0
	if err := broken.Validate(); err == nil {
		t.Fatalf("expected zero attempts to fail")
	}
}
