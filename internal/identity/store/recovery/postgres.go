package recovery

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

// PostgresStore persists recovery tokens in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, token *models.RecoveryToken) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO recovery_tokens (token_hash, user_id, expires_at, created_at) VALUES ($1, $2, $3, $4)`,
		token.TokenHash, uuid.UUID(token.UserID), token.ExpiresAt, token.CreatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return fmt.Errorf("recovery token collision: %w", sentinel.ErrAlreadyExists)
		}
		return fmt.Errorf("create recovery token: %w", err)
	}
	return nil
}

// Consume marks the token used in one conditional UPDATE, so concurrent
// redemptions of the same link cannot both succeed.
func (s *PostgresStore) Consume(ctx context.Context, tokenHash string, now time.Time) (*models.RecoveryToken, error) {
	var userID uuid.UUID
	t := models.RecoveryToken{TokenHash: tokenHash}
	err := s.db.QueryRowContext(ctx,
		`UPDATE recovery_tokens SET used_at = $2
		 WHERE token_hash = $1 AND used_at IS NULL AND expires_at > $2
		 RETURNING user_id, expires_at, created_at`,
		tokenHash, now,
	).Scan(&userID, &t.ExpiresAt, &t.CreatedAt)
	if err == nil {
		t.UserID = id.UserID(userID)
		used := now
		t.UsedAt = &used
		return &t, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("consume recovery token: %w", err)
	}
	return nil, s.whyUnavailable(ctx, tokenHash)
}

func (s *PostgresStore) whyUnavailable(ctx context.Context, tokenHash string) error {
	var usedAt sql.NullTime
	var expiresAt time.Time
	err := s.db.QueryRowContext(ctx,
		`SELECT used_at, expires_at FROM recovery_tokens WHERE token_hash = $1`, tokenHash,
	).Scan(&usedAt, &expiresAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return sentinel.ErrNotFound
	case err != nil:
		return fmt.Errorf("load recovery token: %w", err)
	case usedAt.Valid:
		return sentinel.ErrAlreadyUsed
	default:
		return sentinel.ErrExpired
	}
}
