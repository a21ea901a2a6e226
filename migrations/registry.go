package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"strings"

	ipn "github.com/goliatone/go-ipn"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"

	// SourceLabel names the ipn_core migration set when it is registered with
	// a persistence client.
	SourceLabel = "go-ipn"

	rootPath = "data/sql/migrations"
)

// Source is the embedded ipn_core migration directory for one dialect.
// Postgres files sit at the root of the tree, sqlite files under sqlite/.
type Source struct {
	Dialect string
	Path    string
	FS      fs.FS
}

// Registrar receives the migration filesystem for a dialect. A
// go-persistence-bun client satisfies it through a small closure around
// RegisterSQLMigrations.
type Registrar func(ctx context.Context, source Source) error

// NormalizeDialect maps driver and dialect spellings onto the two supported
// dialects.
func NormalizeDialect(name string) (string, error) {
	switch strings.TrimSpace(strings.ToLower(name)) {
	case DialectPostgres, "postgresql", "pg", "pgx":
		return DialectPostgres, nil
	case DialectSQLite, "sqlite3":
		return DialectSQLite, nil
	default:
		return "", fmt.Errorf("migrations: unsupported dialect %q", name)
	}
}

// SourceFor resolves the embedded migrations for dialect and checks that the
// directory carries at least one up migration.
func SourceFor(dialect string) (Source, error) {
	normalized, err := NormalizeDialect(dialect)
	if err != nil {
		return Source{}, err
	}
	path := rootPath
	if normalized == DialectSQLite {
		path = rootPath + "/sqlite"
	}
	sub, err := fs.Sub(ipn.GetCoreMigrationsFS(), path)
	if err != nil {
		return Source{}, fmt.Errorf("migrations: resolve %s: %w", path, err)
	}
	matches, err := fs.Glob(sub, "*.up.sql")
	if err != nil {
		return Source{}, fmt.Errorf("migrations: glob %s: %w", path, err)
	}
	if len(matches) == 0 {
		return Source{}, fmt.Errorf("migrations: %s has no *.up.sql files", path)
	}
	return Source{Dialect: normalized, Path: path, FS: sub}, nil
}

// Sources returns the postgres and sqlite migration sets.
func Sources() ([]Source, error) {
	out := make([]Source, 0, 2)
	for _, dialect := range []string{DialectPostgres, DialectSQLite} {
		source, err := SourceFor(dialect)
		if err != nil {
			return nil, err
		}
		out = append(out, source)
	}
	return out, nil
}

// Register hands the migrations for dialect to registrar.
func Register(ctx context.Context, dialect string, registrar Registrar) (Source, error) {
	if registrar == nil {
		return Source{}, fmt.Errorf("migrations: registrar is required")
	}
	source, err := SourceFor(dialect)
	if err != nil {
		return Source{}, err
	}
	if err := registrar(ctx, source); err != nil {
		return source, fmt.Errorf("migrations: register %s (%s): %w", source.Dialect, source.Path, err)
	}
	return source, nil
}
