package core

import (
	"fmt"
	"strings"
	"time"
)

type NotificationsConfig struct {
	Disabled bool `koanf:"disabled" mapstructure:"disabled"`
	// SkipFailureEvents suppresses payment.failed events.
	SkipFailureEvents bool `koanf:"skip_failure_events" mapstructure:"skip_failure_events"`
}

type Config struct {
	ServiceName     string        `koanf:"service_name" mapstructure:"service_name"`
	ProviderTimeout time.Duration `koanf:"provider_timeout" mapstructure:"provider_timeout"`
	// LateResponseWindow bounds how long a timed-out provider call is awaited
	// for a late response.
	LateResponseWindow time.Duration `koanf:"late_response_window" mapstructure:"late_response_window"`
	MaxApplyAttempts   int           `koanf:"max_apply_attempts" mapstructure:"max_apply_attempts"`
	ConflictBackoff    time.Duration `koanf:"conflict_backoff" mapstructure:"conflict_backoff"`
	DefaultCurrency    string        `koanf:"default_currency" mapstructure:"default_currency"`
	// AllowDispatchOnPaid lets a paid order receive further dispatches; the
	// extra captures are recorded as duplicate failures.
	AllowDispatchOnPaid bool                `koanf:"allow_dispatch_on_paid" mapstructure:"allow_dispatch_on_paid"`
	Notifications       NotificationsConfig `koanf:"notifications" mapstructure:"notifications"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName:        "payments",
		ProviderTimeout:    15 * time.Second,
		LateResponseWindow: 5 * time.Minute,
		MaxApplyAttempts:   5,
		ConflictBackoff:    5 * time.Millisecond,
		DefaultCurrency:    "USD",
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if c.ProviderTimeout <= 0 {
		return fmt.Errorf("core: provider_timeout must be positive")
	}
	if c.LateResponseWindow <= 0 {
		return fmt.Errorf("core: late_response_window must be positive")
	}
	if c.MaxApplyAttempts < 1 {
		return fmt.Errorf("core: max_apply_attempts must be at least 1")
	}
	if c.ConflictBackoff < 0 {
		return fmt.Errorf("core: conflict_backoff must not be negative")
	}
	if _, err := ParseCurrency(c.DefaultCurrency); err != nil {
		return fmt.Errorf("core: default_currency is invalid: %w", err)
	}
	return nil
}
