package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"keystone/internal/identity/models"
	"keystone/internal/platform/database"
	"keystone/internal/sentinel"
	id "keystone/pkg/domain"
)

const userColumns = `id, email, name, password_hash, is_hyper, account_locked, reset_state, created_at, updated_at`

// PostgresStore persists identities in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, user *models.Identity) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		uuid.UUID(user.ID), user.Email, user.Name, user.PasswordHash, user.IsHyper,
		user.AccountLocked, string(user.ResetState), user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return fmt.Errorf("email already registered: %w", sentinel.ErrAlreadyExists)
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, userID id.UserID) (*models.Identity, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, uuid.UUID(userID))
	return one(row, "find user by id")
}

func (s *PostgresStore) FindByEmail(ctx context.Context, email string) (*models.Identity, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email)
	return one(row, "find user by email")
}

// UpdatePassword writes the hash and reset state in one statement.
func (s *PostgresStore) UpdatePassword(ctx context.Context, userID id.UserID, hash string, state models.ResetState, now time.Time) error {
	return s.exec(ctx, "update password",
		`UPDATE users SET password_hash = $2, reset_state = $3, updated_at = $4 WHERE id = $1`,
		uuid.UUID(userID), hash, string(state), now)
}

func (s *PostgresStore) SetResetState(ctx context.Context, userID id.UserID, state models.ResetState, now time.Time) error {
	return s.exec(ctx, "set reset state",
		`UPDATE users SET reset_state = $2, updated_at = $3 WHERE id = $1`,
		uuid.UUID(userID), string(state), now)
}

func (s *PostgresStore) SetLocked(ctx context.Context, userID id.UserID, locked bool, now time.Time) error {
	return s.exec(ctx, "set locked",
		`UPDATE users SET account_locked = $2, updated_at = $3 WHERE id = $1`,
		uuid.UUID(userID), locked, now)
}

func (s *PostgresStore) SetHyper(ctx context.Context, userID id.UserID, hyper bool, now time.Time) error {
	return s.exec(ctx, "set hyper",
		`UPDATE users SET is_hyper = $2, updated_at = $3 WHERE id = $1`,
		uuid.UUID(userID), hyper, now)
}

func (s *PostgresStore) UpdateName(ctx context.Context, userID id.UserID, name string, now time.Time) error {
	return s.exec(ctx, "update name",
		`UPDATE users SET name = $2, updated_at = $3 WHERE id = $1`,
		uuid.UUID(userID), name, now)
}

func (s *PostgresStore) exec(ctx context.Context, op, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: rows affected: %w", op, err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func one(row *sql.Row, op string) (*models.Identity, error) {
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner) (*models.Identity, error) {
	var u models.Identity
	var userID uuid.UUID
	var state string
	if err := row.Scan(&userID, &u.Email, &u.Name, &u.PasswordHash, &u.IsHyper,
		&u.AccountLocked, &state, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	u.ID = id.UserID(userID)
	u.ResetState = models.ResetState(state)
	return &u, nil
}
