package membership

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

const membershipColumns = `user_id, tenant_id, role, created_at`

// PostgresStore persists memberships in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, m *models.Membership) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO memberships (`+membershipColumns+`) VALUES ($1, $2, $3, $4)`,
		uuid.UUID(m.UserID), uuid.UUID(m.TenantID), string(m.Role), m.CreatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return fmt.Errorf("membership exists: %w", sentinel.ErrAlreadyExists)
		}
		return fmt.Errorf("create membership: %w", err)
	}
	return nil
}

func (s *PostgresStore) Find(ctx context.Context, userID id.UserID, tenantID id.TenantID) (*models.Membership, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+membershipColumns+` FROM memberships WHERE user_id = $1 AND tenant_id = $2`,
		uuid.UUID(userID), uuid.UUID(tenantID))
	m, err := scanMembership(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find membership: %w", err)
	}
	return m, nil
}

func (s *PostgresStore) ListByTenant(ctx context.Context, tenantID id.TenantID) ([]*models.Membership, error) {
	return s.list(ctx, `SELECT `+membershipColumns+` FROM memberships WHERE tenant_id = $1 ORDER BY created_at`, uuid.UUID(tenantID))
}

func (s *PostgresStore) ListByUser(ctx context.Context, userID id.UserID) ([]*models.Membership, error) {
	return s.list(ctx, `SELECT `+membershipColumns+` FROM memberships WHERE user_id = $1 ORDER BY created_at`, uuid.UUID(userID))
}

func (s *PostgresStore) UpdateRole(ctx context.Context, userID id.UserID, tenantID id.TenantID, role models.Role) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE memberships SET role = $3 WHERE user_id = $1 AND tenant_id = $2`,
		uuid.UUID(userID), uuid.UUID(tenantID), string(role))
	if err != nil {
		return fmt.Errorf("update membership role: %w", err)
	}
	return requireAffected(res)
}

func (s *PostgresStore) Delete(ctx context.Context, userID id.UserID, tenantID id.TenantID) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM memberships WHERE user_id = $1 AND tenant_id = $2`,
		uuid.UUID(userID), uuid.UUID(tenantID))
	if err != nil {
		return fmt.Errorf("delete membership: %w", err)
	}
	return requireAffected(res)
}

func (s *PostgresStore) list(ctx context.Context, query string, arg any) ([]*models.Membership, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("list memberships: %w", err)
	}
	defer rows.Close()

	var out []*models.Membership
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, fmt.Errorf("scan membership: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMembership(row scanner) (*models.Membership, error) {
	var m models.Membership
	var userID, tenantID uuid.UUID
	var role string
	if err := row.Scan(&userID, &tenantID, &role, &m.CreatedAt); err != nil {
		return nil, err
	}
	m.UserID = id.UserID(userID)
	m.TenantID = id.TenantID(tenantID)
	m.Role = models.Role(role)
	return &m, nil
}
