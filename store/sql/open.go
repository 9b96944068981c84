package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/goliatone/go-payments/migrations"
	persistence "github.com/goliatone/go-persistence-bun"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

// Config describes the ledger database. It satisfies the go-persistence-bun
// client configuration.
type Config struct {
	Driver        string        `koanf:"driver" mapstructure:"driver"`
	DSN           string        `koanf:"dsn" mapstructure:"dsn"`
	Debug         bool          `koanf:"debug" mapstructure:"debug"`
	PingTimeout   time.Duration `koanf:"ping_timeout" mapstructure:"ping_timeout"`
	MaxOpenConns  int           `koanf:"max_open_conns" mapstructure:"max_open_conns"`
	OtelName      string        `koanf:"otel_name" mapstructure:"otel_name"`
	SkipMigration bool          `koanf:"skip_migration" mapstructure:"skip_migration"`
}

func (c Config) GetDebug() bool {
	return c.Debug
}

func (c Config) GetDriver() string {
	return c.Driver
}

func (c Config) GetServer() string {
	return c.DSN
}

func (c Config) GetPingTimeout() time.Duration {
	if c.PingTimeout <= 0 {
		return 5 * time.Second
	}
	return c.PingTimeout
}

func (c Config) GetOtelIdentifier() string {
	if strings.TrimSpace(c.OtelName) == "" {
		return "go-payments"
	}
	return c.OtelName
}

// Open connects to the configured database, registers the payments
// migrations for its dialect and applies them unless SkipMigration is set.
func Open(ctx context.Context, cfg Config) (*persistence.Client, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	var (
		dialect          schema.Dialect
		migrationDialect string
	)
	switch driver {
	case DriverPostgres:
		dialect = pgdialect.New()
		migrationDialect = migrations.DialectPostgres
	case DriverSQLite, "sqlite":
		driver = DriverSQLite
		dialect = sqlitedialect.New()
		migrationDialect = migrations.DialectSQLite
	default:
		return nil, fmt.Errorf("sqlstore: unsupported driver %q", cfg.Driver)
	}
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("sqlstore: dsn is required")
	}
	cfg.Driver = driver

	sqlDB, err := sql.Open(driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open %s: %w", driver, err)
	}
	switch {
	case cfg.MaxOpenConns > 0:
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	case driver == DriverSQLite:
		sqlDB.SetMaxOpenConns(1)
	}

	client, err := persistence.New(cfg, sqlDB, dialect)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("sqlstore: new persistence client: %w", err)
	}
	_, err = migrations.Register(ctx, func(_ context.Context, dialect string, _ string, fsys fs.FS) error {
		if dialect != migrationDialect {
			return nil
		}
		client.RegisterSQLMigrations(fsys)
		return nil
	}, migrations.WithValidationTargets(migrationDialect))
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	if cfg.SkipMigration {
		return client, nil
	}
	if err := client.Migrate(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("sqlstore: migrate: %w", err)
	}
	return client, nil
}
