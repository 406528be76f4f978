package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"keystone/internal/platform/database"
	"keystone/internal/sentinel"
	"keystone/internal/tenancy/models"
	id "keystone/pkg/domain"
)

const appColumns = `id, slug, name, domain, created_at`

// PostgresStore persists the global app registry in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, app *models.App) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO apps (`+appColumns+`) VALUES ($1, $2, $3, $4, $5)`,
		uuid.UUID(app.ID), app.Slug, app.Name, app.Domain, app.CreatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return fmt.Errorf("app slug must be unique: %w", sentinel.ErrAlreadyExists)
		}
		return fmt.Errorf("create app: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindBySlug(ctx context.Context, slug string) (*models.App, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+appColumns+` FROM apps WHERE slug = $1`, slug)
	return one(row, "find app by slug")
}

func (s *PostgresStore) FindByID(ctx context.Context, appID id.AppID) (*models.App, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+appColumns+` FROM apps WHERE id = $1`, uuid.UUID(appID))
	return one(row, "find app by id")
}

func (s *PostgresStore) List(ctx context.Context) ([]*models.App, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+appColumns+` FROM apps ORDER BY slug`)
	if err != nil {
		return nil, fmt.Errorf("list apps: %w", err)
	}
	defer rows.Close()

	var out []*models.App
	for rows.Next() {
		a, err := scanApp(rows)
		if err != nil {
			return nil, fmt.Errorf("scan app: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func one(row *sql.Row, op string) (*models.App, error) {
	a, err := scanApp(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return a, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanApp(row scanner) (*models.App, error) {
	var a models.App
	var appID uuid.UUID
	if err := row.Scan(&appID, &a.Slug, &a.Name, &a.Domain, &a.CreatedAt); err != nil {
		return nil, err
	}
	a.ID = id.AppID(appID)
	return &a, nil
}
