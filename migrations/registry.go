// Package migrations registers the embedded payments schema with a
// persistence client, one filesystem per SQL dialect.
package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"sort"
	"strings"

	payments "github.com/goliatone/go-payments"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"

	defaultSourceLabel = "go-payments"
	schemaRoot         = "data/sql/migrations"
)

// LedgerTables lists the tables every dialect's up migrations must create.
var LedgerTables = []string{
	"payment_api_clients",
	"payment_orders",
	"payment_transactions",
	"payment_webhook_deliveries",
}

// DialectSource is one dialect's migration directory.
type DialectSource struct {
	Dialect string
	Path    string
	FS      fs.FS
	// Versions holds migration names without the .up.sql suffix, in apply order.
	Versions []string
}

type Registration struct {
	SourceLabel string
	Dialects    []string
	Sources     []DialectSource
}

// RegisterFunc hands one dialect filesystem to the persistence layer.
type RegisterFunc func(ctx context.Context, dialect string, sourceLabel string, fsys fs.FS) error

type Option func(*Registration)

func WithSourceLabel(label string) Option {
	return func(r *Registration) {
		if trimmed := strings.TrimSpace(label); trimmed != "" {
			r.SourceLabel = trimmed
		}
	}
}

// WithValidationTargets restricts registration to the named dialects.
func WithValidationTargets(dialects ...string) Option {
	return func(r *Registration) {
		if next := normalizeDialects(dialects); len(next) > 0 {
			r.Dialects = next
		}
	}
}

// WithSources replaces the embedded schema, mainly for tests and forks
// that ship their own migrations.
func WithSources(sources ...DialectSource) Option {
	return func(r *Registration) {
		next := make([]DialectSource, 0, len(sources))
		for _, source := range sources {
			dialect := strings.ToLower(strings.TrimSpace(source.Dialect))
			if dialect == "" || source.FS == nil {
				continue
			}
			source.Dialect = dialect
			next = append(next, source)
		}
		if len(next) > 0 {
			r.Sources = next
		}
	}
}

// Filesystems resolves the postgres and sqlite migration trees from root
// (the embedded schema when root is nil) and checks each one.
func Filesystems(root ...fs.FS) ([]DialectSource, error) {
	base := payments.GetMigrationsFS()
	if len(root) > 0 && root[0] != nil {
		base = root[0]
	}
	postgresFS, err := fs.Sub(base, schemaRoot)
	if err != nil {
		return nil, fmt.Errorf("migrations: resolve %s: %w", schemaRoot, err)
	}
	sqliteFS, err := fs.Sub(postgresFS, DialectSQLite)
	if err != nil {
		return nil, fmt.Errorf("migrations: resolve sqlite filesystem: %w", err)
	}

	sources := []DialectSource{
		{Dialect: DialectPostgres, Path: schemaRoot, FS: postgresFS},
		{Dialect: DialectSQLite, Path: path.Join(schemaRoot, DialectSQLite), FS: sqliteFS},
	}
	for i := range sources {
		versions, err := checkSource(sources[i])
		if err != nil {
			return nil, err
		}
		sources[i].Versions = versions
	}
	return sources, nil
}

// Register validates the schema and calls registerFn for each targeted dialect.
func Register(ctx context.Context, registerFn RegisterFunc, opts ...Option) (Registration, error) {
	reg := Registration{
		SourceLabel: defaultSourceLabel,
		Dialects:    []string{DialectPostgres, DialectSQLite},
	}
	if registerFn == nil {
		return reg, fmt.Errorf("migrations: register function is required")
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&reg)
		}
	}
	if len(reg.Sources) == 0 {
		sources, err := Filesystems()
		if err != nil {
			return reg, err
		}
		reg.Sources = sources
	}

	registered := 0
	for _, source := range reg.Sources {
		if !slices.Contains(reg.Dialects, source.Dialect) {
			continue
		}
		if source.Versions == nil {
			versions, err := checkSource(source)
			if err != nil {
				return reg, err
			}
			source.Versions = versions
		}
		if err := registerFn(ctx, source.Dialect, reg.SourceLabel, source.FS); err != nil {
			return reg, fmt.Errorf("migrations: register %s (%s): %w", source.Dialect, source.Path, err)
		}
		registered++
	}
	if registered == 0 {
		return reg, fmt.Errorf("migrations: no migrations for dialects %v", reg.Dialects)
	}
	return reg, nil
}

// checkSource requires paired up/down files and that the up files create
// every ledger table.
func checkSource(source DialectSource) ([]string, error) {
	ups, err := fs.Glob(source.FS, "*.up.sql")
	if err != nil {
		return nil, fmt.Errorf("migrations: glob %s: %w", source.Dialect, err)
	}
	if len(ups) == 0 {
		return nil, fmt.Errorf("migrations: %s filesystem %q has no *.up.sql files", source.Dialect, source.Path)
	}
	sort.Strings(ups)

	var schema strings.Builder
	versions := make([]string, 0, len(ups))
	for _, up := range ups {
		version := strings.TrimSuffix(up, ".up.sql")
		if _, err := fs.Stat(source.FS, version+".down.sql"); err != nil {
			return nil, fmt.Errorf("migrations: %s migration %s has no down file", source.Dialect, version)
		}
		content, err := fs.ReadFile(source.FS, up)
		if err != nil {
			return nil, fmt.Errorf("migrations: read %s %s: %w", source.Dialect, up, err)
		}
		schema.WriteString(strings.ToLower(string(content)))
		versions = append(versions, version)
	}

	created := schema.String()
	for _, table := range LedgerTables {
		if !strings.Contains(created, "create table if not exists "+table) &&
			!strings.Contains(created, "create table "+table) {
			return nil, fmt.Errorf("migrations: %s schema does not create %s", source.Dialect, table)
		}
	}
	return versions, nil
}

func normalizeDialects(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		dialect := strings.ToLower(strings.TrimSpace(value))
		if dialect == "" || slices.Contains(out, dialect) {
			continue
		}
		out = append(out, dialect)
	}
	return out
}
