package migrations

import (
	"context"
	"database/sql"
	"errors"
	"io/fs"
	"path/filepath"
	"strings"
	"testing"

	ipn "github.com/goliatone/go-ipn"
	_ "github.com/mattn/go-sqlite3"
)

func TestSources_ReturnsPostgresAndSQLite(t *testing.T) {
	sources, err := Sources()
	if err != nil {
		t.Fatalf("sources: %v", err)
	}
	if len(sources) != 2 {
		t.Fatalf("expected 2 sources, got %d", len(sources))
	}
	expected := map[string]string{
		DialectPostgres: "data/sql/migrations",
		DialectSQLite:   "data/sql/migrations/sqlite",
	}
	for _, source := range sources {
		path, ok := expected[source.Dialect]
		if !ok {
			t.Fatalf("unexpected dialect %q", source.Dialect)
		}
		if source.Path != path {
			t.Fatalf("expected %s path %q, got %q", source.Dialect, path, source.Path)
		}
		if _, err := fs.ReadFile(source.FS, "00001_ipn_core.up.sql"); err != nil {
			t.Fatalf("expected %s core migration: %v", source.Dialect, err)
		}
		delete(expected, source.Dialect)
	}
}

func TestNormalizeDialect(t *testing.T) {
	cases := map[string]string{
		"postgres":   DialectPostgres,
		" PG ":       DialectPostgres,
		"postgresql": DialectPostgres,
		"sqlite3":    DialectSQLite,
		"SQLite":     DialectSQLite,
	}
	for input, want := range cases {
		got, err := NormalizeDialect(input)
		if err != nil {
			t.Fatalf("normalize %q: %v", input, err)
		}
		if got != want {
			t.Fatalf("normalize %q: expected %q, got %q", input, want, got)
		}
	}
	if _, err := NormalizeDialect("mysql"); err == nil {
		t.Fatalf("expected mysql to be rejected")
	}
}

func TestRegister_HandsDialectSourceToRegistrar(t *testing.T) {
	var calls []Source
	source, err := Register(context.Background(), "sqlite3", func(_ context.Context, source Source) error {
		calls = append(calls, source)
		return nil
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if len(calls) != 1 {
		t.Fatalf("expected 1 registration call, got %d", len(calls))
	}
	if calls[0].Dialect != DialectSQLite || source.Dialect != DialectSQLite {
		t.Fatalf("expected sqlite registration, got %q", calls[0].Dialect)
	}
	content, err := fs.ReadFile(calls[0].FS, "00001_ipn_core.up.sql")
	if err != nil {
		t.Fatalf("read registered migration: %v", err)
	}
	if !strings.Contains(string(content), "ipn_jobs") {
		t.Fatalf("expected sqlite core migration content")
	}
}

func TestRegister_Errors(t *testing.T) {
	noop := func(context.Context, Source) error { return nil }
	if _, err := Register(context.Background(), DialectSQLite, nil); err == nil {
		t.Fatalf("expected missing registrar to fail")
	}
	if _, err := Register(context.Background(), "oracle", noop); err == nil {
		t.Fatalf("expected unsupported dialect to fail")
	}
	_, err := Register(context.Background(), DialectPostgres, func(context.Context, Source) error {
		return errors.New("boom")
	})
	if err == nil || !strings.Contains(err.Error(), "postgres") || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("expected wrapped registrar error, got %v", err)
	}
}

func TestCoreMigrationPair_ExistsForBothDialects(t *testing.T) {
	root := ipn.GetCoreMigrationsFS()
	paths := []string{
		"data/sql/migrations/00001_ipn_core.up.sql",
		"data/sql/migrations/00001_ipn_core.down.sql",
		"data/sql/migrations/sqlite/00001_ipn_core.up.sql",
		"data/sql/migrations/sqlite/00001_ipn_core.down.sql",
	}
	for _, migrationPath := range paths {
		content, err := fs.ReadFile(root, migrationPath)
		if err != nil {
			t.Fatalf("read migration %s: %v", migrationPath, err)
		}
		if strings.TrimSpace(string(content)) == "" {
			t.Fatalf("expected migration %s to have SQL content", migrationPath)
		}
	}
}

func TestSQLiteCoreMigration_ApplyAndRollback(t *testing.T) {
	db, err := sql.Open("sqlite3", "file:migrations-ipn-core?mode=memory&cache=shared&_foreign_keys=on")
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	defer func() { _ = db.Close() }()

	root := ipn.GetCoreMigrationsFS()
	sqliteMigrations, err := fs.Sub(root, "data/sql/migrations/sqlite")
	if err != nil {
		t.Fatalf("resolve sqlite migrations: %v", err)
	}

	if err := execSQLMigration(context.Background(), db, sqliteMigrations, "00001_ipn_core.up.sql"); err != nil {
		t.Fatalf("apply core migration up: %v", err)
	}

	tables := []string{"ipn_invoice_events", "ipn_jobs", "ipn_delivery_attempts"}
	for _, tableName := range tables {
		if count := countSQLiteObjects(t, db, "table", tableName); count != 1 {
			t.Fatalf("expected table %s to exist after up migration", tableName)
		}
	}

	insertEvent := `INSERT INTO ipn_invoice_events (id, invoice_id, sequence, kind, payload) VALUES (?, ?, ?, ?, ?)`
	if _, err := db.ExecContext(context.Background(), insertEvent, "evt-1", "inv_1", 1, "invoice_state", "{}"); err != nil {
		t.Fatalf("insert first event: %v", err)
	}
	if _, err := db.ExecContext(context.Background(), insertEvent, "evt-2", "inv_1", 1, "invoice_state", "{}"); err == nil {
		t.Fatalf("expected duplicate invoice sequence to violate unique index")
	}

	if err := execSQLMigration(context.Background(), db, sqliteMigrations, "00001_ipn_core.down.sql"); err != nil {
		t.Fatalf("apply core migration down: %v", err)
	}
	for _, tableName := range tables {
		if count := countSQLiteObjects(t, db, "table", tableName); count != 0 {
			t.Fatalf("expected table %s to be dropped after down migration", tableName)
		}
	}
}

func countSQLiteObjects(t *testing.T, db *sql.DB, kind string, name string) int {
	t.Helper()
	var count int
	if err := db.QueryRowContext(
		context.Background(),
		`SELECT COUNT(*) FROM sqlite_master WHERE type=? AND name=?`,
		kind,
		name,
	).Scan(&count); err != nil {
		t.Fatalf("query sqlite_master for %s: %v", name, err)
	}
	return count
}

func execSQLMigration(ctx context.Context, db *sql.DB, fsys fs.FS, filename string) error {
	content, err := fs.ReadFile(fsys, filepath.Clean(filename))
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, string(content))
	return err
}
