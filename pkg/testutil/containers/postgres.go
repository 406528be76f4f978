//go:build integration

// Package containers starts throwaway Postgres instances for integration
// tests. One container is shared by every test in a package.
package containers

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"keystone/internal/platform/config"
	"keystone/internal/platform/database"
	"keystone/migrations"
)

// moduleTables are truncated between tests, children first.
var moduleTables = []string{
	"audit_events",
	"app_grants",
	"memberships",
	"recovery_tokens",
	"apps",
	"tenants",
	"users",
}

type PostgresContainer struct {
	Container testcontainers.Container
	DSN       string
	Pool      *database.Pool
}

var (
	mu     sync.Mutex
	shared *PostgresContainer
)

// Postgres returns the package's container, starting it and applying
// migrations on first use. Ryuk removes it when the test binary exits.
func Postgres(t *testing.T) *PostgresContainer {
	t.Helper()
	mu.Lock()
	defer mu.Unlock()
	if shared == nil {
		shared = start(t)
	}
	return shared
}

func start(t *testing.T) *PostgresContainer {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:17-alpine",
		postgres.WithDatabase("keystone_test"),
		postgres.WithUsername("keystone"),
		postgres.WithPassword("keystone_test_password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("postgres connection string: %v", err)
	}

	pool, err := database.New(config.DatabaseConfig{URL: dsn, MaxOpenConns: 10, MaxIdleConns: 2, ConnMaxLifetime: time.Minute})
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("connect postgres: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if _, err := database.NewMigrator(pool.DB(), migrations.FS, logger).Up(ctx); err != nil {
		_ = pool.Close()
		_ = container.Terminate(ctx)
		t.Fatalf("migrate: %v", err)
	}

	return &PostgresContainer{Container: container, DSN: dsn, Pool: pool}
}

func (p *PostgresContainer) DB() *sql.DB { return p.Pool.DB() }

// Reset empties every module table.
func (p *PostgresContainer) Reset(ctx context.Context) error {
	_, err := p.DB().ExecContext(ctx, "TRUNCATE TABLE "+strings.Join(moduleTables, ", ")+" CASCADE")
	if err != nil {
		return fmt.Errorf("truncate: %w", err)
	}
	return nil
}
