// Package migrate applies the embedded Postgres schema.
package migrate

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strings"
	"time"

	// Registers the "pgx" database/sql driver used by Open.
	_ "github.com/jackc/pgx/v5/stdlib"
)

const defaultTable = "schema_migrations"

//go:embed sql/*.up.sql
var embedded embed.FS

// Schema returns the embedded migrations in apply order.
func Schema() ([]Migration, error) { return collect(mustSub(embedded, "sql")) }

// Migration is one SQL file.
type Migration struct {
	Name string
	SQL  string
}

// Migrator runs migrations against a database/sql handle.
type Migrator struct {
	db     *sql.DB
	source fs.FS
	table  string
	log    *slog.Logger
}

type Option func(*Migrator)

// WithSource replaces the embedded migrations; files must end in .up.sql.
func WithSource(src fs.FS) Option { return func(m *Migrator) { m.source = src } }

// WithTable overrides the bookkeeping table name.
func WithTable(name string) Option {
	return func(m *Migrator) {
		if name != "" {
			m.table = name
		}
	}
}

func WithLogger(l *slog.Logger) Option { return func(m *Migrator) { m.log = l } }

func New(db *sql.DB, opts ...Option) *Migrator {
	m := &Migrator{db: db, source: mustSub(embedded, "sql"), table: defaultTable, log: slog.Default()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Open connects through the pgx stdlib driver.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Up applies pending migrations, each in its own transaction, and returns
// the names it applied.
func (m *Migrator) Up(ctx context.Context) ([]string, error) {
	if err := m.ensureTable(ctx); err != nil {
		return nil, err
	}
	done, err := m.applied(ctx)
	if err != nil {
		return nil, err
	}
	migrations, err := collect(m.source)
	if err != nil {
		return nil, err
	}
	var ran []string
	for _, mig := range migrations {
		if _, ok := done[mig.Name]; ok {
			continue
		}
		if err := m.apply(ctx, mig); err != nil {
			return ran, fmt.Errorf("apply migration %s: %w", mig.Name, err)
		}
		m.log.Info("migration applied", "name", mig.Name)
		ran = append(ran, mig.Name)
	}
	return ran, nil
}

// Status lists every known migration and whether it has been applied.
func (m *Migrator) Status(ctx context.Context) ([]StatusRow, error) {
	if err := m.ensureTable(ctx); err != nil {
		return nil, err
	}
	done, err := m.applied(ctx)
	if err != nil {
		return nil, err
	}
	migrations, err := collect(m.source)
	if err != nil {
		return nil, err
	}
	out := make([]StatusRow, 0, len(migrations))
	for _, mig := range migrations {
		at, ok := done[mig.Name]
		out = append(out, StatusRow{Name: mig.Name, Applied: ok, AppliedAt: at})
	}
	return out, nil
}

type StatusRow struct {
	Name      string
	Applied   bool
	AppliedAt time.Time
}

func (m *Migrator) ensureTable(ctx context.Context) error {
	_, err := m.db.ExecContext(ctx, fmt.Sprintf(`create table if not exists %s (
		name text primary key,
		applied_at timestamptz not null default now()
	)`, m.table))
	return err
}

func (m *Migrator) applied(ctx context.Context) (map[string]time.Time, error) {
	rows, err := m.db.QueryContext(ctx, fmt.Sprintf(`select name, applied_at from %s`, m.table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]time.Time)
	for rows.Next() {
		var name string
		var at time.Time
		if err := rows.Scan(&name, &at); err != nil {
			return nil, err
		}
		out[name] = at
	}
	return out, rows.Err()
}

func (m *Migrator) apply(ctx context.Context, mig Migration) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for _, stmt := range Statements(mig.SQL) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`insert into %s (name, applied_at) values ($1, $2)`, m.table), mig.Name, time.Now().UTC()); err != nil {
		return err
	}
	return tx.Commit()
}

func collect(src fs.FS) ([]Migration, error) {
	names, err := fs.Glob(src, "*.up.sql")
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	out := make([]Migration, 0, len(names))
	for _, name := range names {
		b, err := fs.ReadFile(src, name)
		if err != nil {
			return nil, err
		}
		out = append(out, Migration{Name: name, SQL: string(b)})
	}
	return out, nil
}

// Statements splits a script on semicolons outside quoted strings and drops
// blank statements and "--" comment lines.
func Statements(script string) []string {
	var lines []string
	for _, ln := range strings.Split(script, "\n") {
		if strings.HasPrefix(strings.TrimSpace(ln), "--") {
			continue
		}
		lines = append(lines, ln)
	}
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
	for _, r := range strings.Join(lines, "\n") {
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

func mustSub(f fs.FS, dir string) fs.FS {
	sub, err := fs.Sub(f, dir)
	if err != nil {
		panic(err)
	}
	return sub
}
