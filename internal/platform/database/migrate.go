package database

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"log/slog"
	"slices"
	"strings"
	"time"
)

const (
	upSuffix   = "_up.sql"
	downSuffix = "_down.sql"
)

// Migrator applies *_up.sql / *_down.sql pairs from an fs.FS in lexical
// order and records applied versions in schema_migrations.
type Migrator struct {
	db     *sql.DB
	files  fs.FS
	logger *slog.Logger
}

func NewMigrator(db *sql.DB, files fs.FS, logger *slog.Logger) *Migrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Migrator{db: db, files: files, logger: logger}
}

// Up applies every pending migration. It returns the versions applied.
func (m *Migrator) Up(ctx context.Context) ([]string, error) {
	if err := m.ensureTable(ctx); err != nil {
		return nil, err
	}
	versions, err := m.versions(upSuffix)
	if err != nil {
		return nil, err
	}
	applied, err := m.applied(ctx)
	if err != nil {
		return nil, err
	}

	var done []string
	for _, v := range versions {
		if applied[v] {
			continue
		}
		if err := m.run(ctx, v, upSuffix, `INSERT INTO schema_migrations (version, applied_at) VALUES ($1, $2)`, time.Now().UTC()); err != nil {
			return done, err
		}
		done = append(done, v)
	}
	return done, nil
}

// Down reverts the most recent steps migrations (all when steps <= 0).
func (m *Migrator) Down(ctx context.Context, steps int) ([]string, error) {
	if err := m.ensureTable(ctx); err != nil {
		return nil, err
	}
	applied, err := m.applied(ctx)
	if err != nil {
		return nil, err
	}
	versions, err := m.versions(downSuffix)
	if err != nil {
		return nil, err
	}
	slices.Reverse(versions)

	var done []string
	for _, v := range versions {
		if steps > 0 && len(done) == steps {
			break
		}
		if !applied[v] {
			continue
		}
		if err := m.run(ctx, v, downSuffix, `DELETE FROM schema_migrations WHERE version = $1`); err != nil {
			return done, err
		}
		done = append(done, v)
	}
	return done, nil
}

func (m *Migrator) ensureTable(ctx context.Context) error {
	_, err := m.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version    TEXT PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}
	return nil
}

func (m *Migrator) applied(ctx context.Context) (map[string]bool, error) {
	rows, err := m.db.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("list applied migrations: %w", err)
	}
	defer rows.Close()

	out := make(map[string]bool)
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan migration version: %w", err)
		}
		out[v] = true
	}
	return out, rows.Err()
}

func (m *Migrator) versions(suffix string) ([]string, error) {
	entries, err := fs.ReadDir(m.files, ".")
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), suffix) {
			continue
		}
		out = append(out, strings.TrimSuffix(e.Name(), suffix))
	}
	slices.Sort(out)
	return out, nil
}

// run executes one migration file and its bookkeeping statement in a single transaction.
func (m *Migrator) run(ctx context.Context, version, suffix, bookkeeping string, extra ...any) error {
	body, err := fs.ReadFile(m.files, version+suffix)
	if err != nil {
		return fmt.Errorf("read %s%s: %w", version, suffix, err)
	}

	start := time.Now()
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin %s: %w", version, err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, string(body)); err != nil {
		return fmt.Errorf("exec %s%s: %w", version, suffix, err)
	}
	if _, err := tx.ExecContext(ctx, bookkeeping, append([]any{version}, extra...)...); err != nil {
		return fmt.Errorf("record %s: %w", version, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit %s: %w", version, err)
	}

	m.logger.InfoContext(ctx, "migration applied",
		"version", version,
		"direction", strings.TrimSuffix(strings.TrimPrefix(suffix, "_"), ".sql"),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}
