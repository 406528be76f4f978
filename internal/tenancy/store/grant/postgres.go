package grant

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"keystone/internal/sentinel"
	"keystone/internal/tenancy/models"
	id "keystone/pkg/domain"
)

const grantColumns = `user_id, app_id, tenant_id, role, created_at`

// PostgresStore persists app grants. Uniqueness is enforced by two partial
// indexes, one for tenant-scoped grants and one for global grants.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Upsert(ctx context.Context, g *models.Grant) error {
	query := `INSERT INTO app_grants (` + grantColumns + `) VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, app_id, tenant_id) WHERE tenant_id IS NOT NULL
		DO UPDATE SET role = EXCLUDED.role`
	if g.IsGlobal() {
		query = `INSERT INTO app_grants (` + grantColumns + `) VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, app_id) WHERE tenant_id IS NULL
		DO UPDATE SET role = EXCLUDED.role`
	}
	_, err := s.db.ExecContext(ctx, query,
		uuid.UUID(g.UserID), uuid.UUID(g.AppID), nullTenant(g.TenantID), string(g.Role), g.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert grant: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindTenantGrant(ctx context.Context, userID id.UserID, appID id.AppID, tenantID id.TenantID) (*models.Grant, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+grantColumns+` FROM app_grants WHERE user_id = $1 AND app_id = $2 AND tenant_id = $3`,
		uuid.UUID(userID), uuid.UUID(appID), uuid.UUID(tenantID))
	return one(row, "find tenant grant")
}

func (s *PostgresStore) FindGlobalGrant(ctx context.Context, userID id.UserID, appID id.AppID) (*models.Grant, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+grantColumns+` FROM app_grants WHERE user_id = $1 AND app_id = $2 AND tenant_id IS NULL`,
		uuid.UUID(userID), uuid.UUID(appID))
	return one(row, "find global grant")
}

func (s *PostgresStore) ListByUser(ctx context.Context, userID id.UserID, tenantID *id.TenantID) ([]*models.Grant, error) {
	if tenantID == nil {
		return s.list(ctx,
			`SELECT `+grantColumns+` FROM app_grants WHERE user_id = $1 AND tenant_id IS NULL ORDER BY created_at`,
			uuid.UUID(userID))
	}
	return s.list(ctx,
		`SELECT `+grantColumns+` FROM app_grants WHERE user_id = $1 AND tenant_id = $2 ORDER BY created_at`,
		uuid.UUID(userID), uuid.UUID(*tenantID))
}

func (s *PostgresStore) ListByTenant(ctx context.Context, tenantID id.TenantID) ([]*models.Grant, error) {
	return s.list(ctx,
		`SELECT `+grantColumns+` FROM app_grants WHERE tenant_id = $1 ORDER BY created_at`,
		uuid.UUID(tenantID))
}

func (s *PostgresStore) Delete(ctx context.Context, userID id.UserID, appID id.AppID, tenantID *id.TenantID) error {
	var res sql.Result
	var err error
	if tenantID == nil {
		res, err = s.db.ExecContext(ctx,
			`DELETE FROM app_grants WHERE user_id = $1 AND app_id = $2 AND tenant_id IS NULL`,
			uuid.UUID(userID), uuid.UUID(appID))
	} else {
		res, err = s.db.ExecContext(ctx,
			`DELETE FROM app_grants WHERE user_id = $1 AND app_id = $2 AND tenant_id = $3`,
			uuid.UUID(userID), uuid.UUID(appID), uuid.UUID(*tenantID))
	}
	if err != nil {
		return fmt.Errorf("delete grant: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteByMembership(ctx context.Context, userID id.UserID, tenantID id.TenantID) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM app_grants WHERE user_id = $1 AND tenant_id = $2`,
		uuid.UUID(userID), uuid.UUID(tenantID))
	if err != nil {
		return 0, fmt.Errorf("delete grants for membership: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(n), nil
}

func (s *PostgresStore) list(ctx context.Context, query string, args ...any) ([]*models.Grant, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list grants: %w", err)
	}
	defer rows.Close()

	var out []*models.Grant
	for rows.Next() {
		g, err := scanGrant(rows)
		if err != nil {
			return nil, fmt.Errorf("scan grant: %w", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func one(row *sql.Row, op string) (*models.Grant, error) {
	g, err := scanGrant(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return g, nil
}

func nullTenant(tenantID *id.TenantID) uuid.NullUUID {
	if tenantID == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: uuid.UUID(*tenantID), Valid: true}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanGrant(row scanner) (*models.Grant, error) {
	var g models.Grant
	var userID, appID uuid.UUID
	var tenantID uuid.NullUUID
	var role string
	if err := row.Scan(&userID, &appID, &tenantID, &role, &g.CreatedAt); err != nil {
		return nil, err
	}
	g.UserID = id.UserID(userID)
	g.AppID = id.AppID(appID)
	if tenantID.Valid {
		t := id.TenantID(tenantID.UUID)
		g.TenantID = &t
	}
	g.Role = models.Role(role)
	return &g, nil
}
