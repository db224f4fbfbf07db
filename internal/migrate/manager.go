package migrate

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strings"
	"time"

	gomigrate "github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

//go:embed seeds/*.sql
var seedsFS embed.FS

const defaultSeedsTable = "schema_seeds"

// Manager applies the embedded schema migrations through golang-migrate and
// the embedded seed files through its own bookkeeping table.
type Manager struct {
	db          *sql.DB
	databaseURL string
	seeds       fs.FS
	seedsTable  string
	logger      *slog.Logger
}

// Option configures Manager.
type Option func(*Manager)

// WithSeedsTable overrides the default seeds bookkeeping table.
func WithSeedsTable(name string) Option {
	return func(m *Manager) {
		if name != "" {
			m.seedsTable = name
		}
	}
}

// WithSeeds replaces the embedded seed files.
func WithSeeds(fsys fs.FS) Option {
	return func(m *Manager) {
		if fsys != nil {
			m.seeds = fsys
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// NewManager constructs a Manager. databaseURL must be a postgres:// URL; db is
// used for seeding.
func NewManager(db *sql.DB, databaseURL string, opts ...Option) *Manager {
	seeds, _ := fs.Sub(seedsFS, "seeds")
	m := &Manager{
		db:          db,
		databaseURL: databaseURL,
		seeds:       seeds,
		seedsTable:  defaultSeedsTable,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Status describes the schema version and applied seeds.
type Status struct {
	Version uint
	Dirty   bool
	Seeds   []string
}

func (m *Manager) open() (*gomigrate.Migrate, error) {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("open migration source: %w", err)
	}
	mg, err := gomigrate.NewWithSourceInstance("iofs", source, m.databaseURL)
	if err != nil {
		return nil, fmt.Errorf("init migrate: %w", err)
	}
	return mg, nil
}

func closeMigrate(mg *gomigrate.Migrate) {
	_, _ = mg.Close()
}

// Up applies all pending migrations.
func (m *Manager) Up(ctx context.Context) error {
	mg, err := m.open()
	if err != nil {
		return err
	}
	defer closeMigrate(mg)
	if err := mg.Up(); err != nil && !errors.Is(err, gomigrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	version, dirty, err := mg.Version()
	if err != nil && !errors.Is(err, gomigrate.ErrNilVersion) {
		return err
	}
	m.logger.InfoContext(ctx, "migrations applied", slog.Uint64("version", uint64(version)), slog.Bool("dirty", dirty))
	return nil
}

// Down rolls back the most recent applied migration.
func (m *Manager) Down(ctx context.Context) error {
	mg, err := m.open()
	if err != nil {
		return err
	}
	defer closeMigrate(mg)
	if err := mg.Steps(-1); err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, gomigrate.ErrNoChange) {
			return errors.New("no migrations applied")
		}
		return fmt.Errorf("rollback migration: %w", err)
	}
	m.logger.InfoContext(ctx, "migration rolled back")
	return nil
}

// Status reports the current schema version and the seeds already applied.
func (m *Manager) Status(ctx context.Context) (Status, error) {
	mg, err := m.open()
	if err != nil {
		return Status{}, err
	}
	defer closeMigrate(mg)
	var st Status
	st.Version, st.Dirty, err = mg.Version()
	if err != nil && !errors.Is(err, gomigrate.ErrNilVersion) {
		return Status{}, err
	}
	if err := m.ensureSeedsTable(ctx); err != nil {
		return Status{}, err
	}
	st.Seeds, err = m.history(ctx)
	if err != nil {
		return Status{}, err
	}
	return st, nil
}

// Seed applies seed files idempotently, each in its own transaction.
func (m *Manager) Seed(ctx context.Context) error {
	if err := m.ensureSeedsTable(ctx); err != nil {
		return err
	}
	executed, err := m.listExecuted(ctx)
	if err != nil {
		return err
	}
	files, err := collectSQL(m.seeds)
	if err != nil {
		return err
	}
	for _, name := range files {
		if executed[name] {
			continue
		}
		body, err := fs.ReadFile(m.seeds, name)
		if err != nil {
			return err
		}
		if err := m.exec(ctx, string(body)); err != nil {
			return fmt.Errorf("apply seed %s: %w", name, err)
		}
		if err := m.insertRecord(ctx, name); err != nil {
			return err
		}
		m.logger.InfoContext(ctx, "seed applied", slog.String("seed", name))
	}
	return nil
}

func (m *Manager) ensureSeedsTable(ctx context.Context) error {
	_, err := m.db.ExecContext(ctx, fmt.Sprintf(`
		create table if not exists %s (
			name text primary key,
			applied_at timestamptz not null default now()
		)`, m.seedsTable))
	return err
}

func (m *Manager) exec(ctx context.Context, body string) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for _, stmt := range splitStatements(body) {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (m *Manager) insertRecord(ctx context.Context, name string) error {
	_, err := m.db.ExecContext(ctx, fmt.Sprintf(`insert into %s(name, applied_at) values ($1, $2)`, m.seedsTable),
		name, time.Now().UTC())
	return err
}

func (m *Manager) listExecuted(ctx context.Context) (map[string]bool, error) {
	names, err := m.history(ctx)
	if err != nil {
		return nil, err
	}
	result := make(map[string]bool, len(names))
	for _, n := range names {
		result[n] = true
	}
	return result, nil
}

func (m *Manager) history(ctx context.Context) ([]string, error) {
	rows, err := m.db.QueryContext(ctx, fmt.Sprintf(`select name from %s order by applied_at asc`, m.seedsTable))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		res = append(res, name)
	}
	return res, rows.Err()
}

func collectSQL(fsys fs.FS) ([]string, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

// splitStatements splits SQL on semicolons outside single-quoted strings and
// drops "--" line comments.
func splitStatements(sql string) []string {
	var (
		stmts     []string
		current   strings.Builder
		inString  bool
		inComment bool
		prev      rune
	)
	for _, r := range sql {
		if inComment {
			if r == '\n' {
				inComment = false
				current.WriteRune(r)
			}
			prev = r
			continue
		}
		switch {
		case r == '-' && prev == '-' && !inString:
			s := current.String()
			current.Reset()
			current.WriteString(s[:len(s)-1])
			inComment = true
		case r == '\'':
			current.WriteRune(r)
			inString = !inString
		case r == ';' && !inString:
			current.WriteRune(r)
			stmts = append(stmts, current.String())
			current.Reset()
		default:
			current.WriteRune(r)
		}
		prev = r
	}
	if strings.TrimSpace(current.String()) != "" {
		stmts = append(stmts, current.String())
	}
	return stmts
}
