package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"
)

// Manager applies versioned SQL migrations and idempotent seed files read
// from an fs.FS, so the same code serves both the embedded bundle and an
// on-disk directory. Applied file names are recorded in bookkeeping tables;
// a file already recorded is never run again.
type Manager struct {
	db     *sql.DB
	files  fs.FS
	schema source
	seeds  source
}

// source pairs a directory inside the fs with its bookkeeping table.
type source struct {
	dir    string
	suffix string
	table  string
}

// Option configures Manager.
type Option func(*Manager)

// WithTables overrides the bookkeeping table names. Empty strings keep the
// defaults (schema_migrations, schema_seeds).
func WithTables(migrationsTable, seedsTable string) Option {
	return func(m *Manager) {
		if migrationsTable != "" {
			m.schema.table = migrationsTable
		}
		if seedsTable != "" {
			m.seeds.table = seedsTable
		}
	}
}

// NewManager constructs a Manager over the given filesystem. migrationsDir
// and seedsDir are paths inside files.
func NewManager(db *sql.DB, files fs.FS, migrationsDir, seedsDir string, opts ...Option) *Manager {
	m := &Manager{
		db:     db,
		files:  files,
		schema: source{dir: migrationsDir, suffix: ".up.sql", table: "schema_migrations"},
		seeds:  source{dir: seedsDir, suffix: ".sql", table: "schema_seeds"},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Up applies all pending .up.sql migrations in lexical order.
func (m *Manager) Up(ctx context.Context) error {
	return m.apply(ctx, m.schema, "migration")
}

// Seed applies seed files once each. Re-running Seed is a no-op for files
// already recorded.
func (m *Manager) Seed(ctx context.Context) error {
	return m.apply(ctx, m.seeds, "seed")
}

func (m *Manager) apply(ctx context.Context, src source, kind string) error {
	if err := m.ensureTables(ctx); err != nil {
		return err
	}
	applied, err := m.appliedSet(ctx, src.table)
	if err != nil {
		return err
	}
	names, err := m.collect(src)
	if err != nil {
		return err
	}
	for _, name := range names {
		if applied[name] {
			continue
		}
		if err := m.execFile(ctx, src.dir+"/"+name); err != nil {
			return fmt.Errorf("apply %s %s: %w", kind, name, err)
		}
		if err := m.record(ctx, src.table, name); err != nil {
			return err
		}
	}
	return nil
}

// Down rolls back the most recently applied migration using its .down.sql
// counterpart.
func (m *Manager) Down(ctx context.Context) error {
	if err := m.ensureTables(ctx); err != nil {
		return err
	}
	history, err := m.appliedOrder(ctx, m.schema.table)
	if err != nil {
		return err
	}
	if len(history) == 0 {
		return errors.New("no migrations applied")
	}
	last := history[len(history)-1]
	downPath := m.schema.dir + "/" + strings.TrimSuffix(last, ".up.sql") + ".down.sql"
	if _, err := fs.Stat(m.files, downPath); err != nil {
		return fmt.Errorf("missing down migration for %s", last)
	}
	if err := m.execFile(ctx, downPath); err != nil {
		return fmt.Errorf("rollback migration %s: %w", last, err)
	}
	_, err = m.db.ExecContext(ctx,
		fmt.Sprintf(`delete from %s where name = $1`, m.schema.table), last)
	return err
}

// Status returns applied migrations in the order they were applied.
func (m *Manager) Status(ctx context.Context) ([]string, error) {
	if err := m.ensureTables(ctx); err != nil {
		return nil, err
	}
	return m.appliedOrder(ctx, m.schema.table)
}

func (m *Manager) ensureTables(ctx context.Context) error {
	const ddl = `create table if not exists %s (
		name text primary key,
		applied_at timestamptz not null default now()
	)`
	for _, table := range []string{m.schema.table, m.seeds.table} {
		if _, err := m.db.ExecContext(ctx, fmt.Sprintf(ddl, table)); err != nil {
			return err
		}
	}
	return nil
}

// execFile runs every statement of one SQL file inside a single transaction.
func (m *Manager) execFile(ctx context.Context, path string) error {
	raw, err := fs.ReadFile(m.files, path)
	if err != nil {
		return err
	}
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for _, stmt := range splitStatements(string(raw)) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (m *Manager) record(ctx context.Context, table, name string) error {
	_, err := m.db.ExecContext(ctx,
		fmt.Sprintf(`insert into %s (name, applied_at) values ($1, $2)`, table),
		name, time.Now().UTC())
	return err
}

func (m *Manager) appliedSet(ctx context.Context, table string) (map[string]bool, error) {
	names, err := m.appliedOrder(ctx, table)
	if err != nil {
		return nil, err
	}
	set := make(map[string]bool, len(names))
	for _, name := range names {
		set[name] = true
	}
	return set, nil
}

func (m *Manager) appliedOrder(ctx context.Context, table string) ([]string, error) {
	rows, err := m.db.QueryContext(ctx,
		fmt.Sprintf(`select name from %s order by applied_at asc, name asc`, table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// collect returns the base names of files in src.dir matching src.suffix,
// sorted lexically so numeric prefixes define apply order. A missing dir is
// treated as empty.
func (m *Manager) collect(src source) ([]string, error) {
	entries, err := fs.ReadDir(m.files, src.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), src.suffix) {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names, nil
}

// splitStatements splits a SQL script on semicolons outside single-quoted
// strings. Good enough for plain DDL and seed inserts; no dollar-quoting.
func splitStatements(script string) []string {
	var (
		stmts    []string
		current  strings.Builder
		inString bool
	)
	flush := func() {
		if s := strings.TrimSpace(current.String()); s != "" {
			stmts = append(stmts, s)
		}
		current.Reset()
	}
	for _, r := range script {
		switch {
		case r == '\'':
			inString = !inString
			current.WriteRune(r)
		case r == ';' && !inString:
			flush()
		default:
			current.WriteRune(r)
		}
	}
	flush()
	return stmts
}
