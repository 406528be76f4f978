package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"keystone/internal/portalsession/models"
	"keystone/internal/sentinel"
	id "keystone/pkg/domain"
)

const (
	sessionKeyPrefix     = "portal_session:"
	userSessionKeyPrefix = "portal_user_sessions:"

	// defaultSessionTTL applies when a session arrives without a usable expiry.
	defaultSessionTTL = 12 * time.Hour
)

type sessionJSON struct {
	ID             string `json:"id"`
	UserID         string `json:"user_id"`
	ActiveTenantID string `json:"active_tenant_id,omitempty"`
	DeviceName     string `json:"device_name"`
	ClientIP       string `json:"client_ip"`
	CreatedAt      int64  `json:"created_at"` // Unix nano
	ExpiresAt      int64  `json:"expires_at"` // Unix nano
}

func sessionToJSON(s *models.Session) *sessionJSON {
	j := &sessionJSON{
		ID:         s.ID.String(),
		UserID:     s.UserID.String(),
		DeviceName: s.DeviceName,
		ClientIP:   s.ClientIP,
		CreatedAt:  s.CreatedAt.UnixNano(),
		ExpiresAt:  s.ExpiresAt.UnixNano(),
	}
	if s.ActiveTenantID != nil {
		j.ActiveTenantID = s.ActiveTenantID.String()
	}
	return j
}

func sessionFromJSON(tokenHash string, j *sessionJSON) (*models.Session, error) {
	sessionID, err := uuid.Parse(j.ID)
	if err != nil {
		return nil, fmt.Errorf("parse session id: %w", err)
	}
	userID, err := uuid.Parse(j.UserID)
	if err != nil {
		return nil, fmt.Errorf("parse user id: %w", err)
	}
	s := &models.Session{
		ID:         id.SessionID(sessionID),
		TokenHash:  tokenHash,
		UserID:     id.UserID(userID),
		DeviceName: j.DeviceName,
		ClientIP:   j.ClientIP,
		CreatedAt:  time.Unix(0, j.CreatedAt).UTC(),
		ExpiresAt:  time.Unix(0, j.ExpiresAt).UTC(),
	}
	if j.ActiveTenantID != "" {
		tenantID, err := uuid.Parse(j.ActiveTenantID)
		if err != nil {
			return nil, fmt.Errorf("parse tenant id: %w", err)
		}
		t := id.TenantID(tenantID)
		s.ActiveTenantID = &t
	}
	return s, nil
}

// RedisStore shares sessions between portal instances. Keys expire with the
// session, so no sweeper is needed.
type RedisStore struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func sessionKey(tokenHash string) string { return sessionKeyPrefix + tokenHash }

func userSessionsKey(userID id.UserID) string { return userSessionKeyPrefix + userID.String() }

func (s *RedisStore) Create(ctx context.Context, session *models.Session) error {
	if session == nil {
		return fmt.Errorf("session is required")
	}
	data, err := json.Marshal(sessionToJSON(session))
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	ttl := session.ExpiresAt.Sub(session.CreatedAt)
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}

	created, err := s.client.SetNX(ctx, sessionKey(session.TokenHash), data, ttl).Result()
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	if !created {
		return fmt.Errorf("session exists: %w", sentinel.ErrAlreadyExists)
	}

	userKey := userSessionsKey(session.UserID)
	pipe := s.client.Pipeline()
	pipe.SAdd(ctx, userKey, session.TokenHash)
	pipe.Expire(ctx, userKey, ttl+time.Hour)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("index session: %w", err)
	}
	return nil
}

func (s *RedisStore) FindByTokenHash(ctx context.Context, tokenHash string) (*models.Session, error) {
	data, err := s.client.Get(ctx, sessionKey(tokenHash)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("session not found: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find session: %w", err)
	}
	var j sessionJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	return sessionFromJSON(tokenHash, &j)
}

// SetActiveTenant rewrites the session under an optimistic lock, keeping
// its remaining TTL.
func (s *RedisStore) SetActiveTenant(ctx context.Context, tokenHash string, tenantID *id.TenantID) error {
	key := sessionKey(tokenHash)
	return s.client.Watch(ctx, func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return fmt.Errorf("session not found: %w", sentinel.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("get session: %w", err)
		}
		var j sessionJSON
		if err := json.Unmarshal(data, &j); err != nil {
			return fmt.Errorf("unmarshal session: %w", err)
		}
		j.ActiveTenantID = ""
		if tenantID != nil {
			j.ActiveTenantID = tenantID.String()
		}
		updated, err := json.Marshal(&j)
		if err != nil {
			return fmt.Errorf("marshal session: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, updated, redis.KeepTTL)
			return nil
		})
		if err != nil {
			return fmt.Errorf("update session: %w", err)
		}
		return nil
	}, key)
}

func (s *RedisStore) Delete(ctx context.Context, tokenHash string) error {
	key := sessionKey(tokenHash)
	data, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("find session for delete: %w", err)
	}

	pipe := s.client.Pipeline()
	pipe.Del(ctx, key)
	var j sessionJSON
	if json.Unmarshal(data, &j) == nil && j.UserID != "" {
		pipe.SRem(ctx, userSessionKeyPrefix+j.UserID, tokenHash)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// DeleteByUser removes every session of userID and reports how many were
// still live.
func (s *RedisStore) DeleteByUser(ctx context.Context, userID id.UserID) (int, error) {
	userKey := userSessionsKey(userID)
	hashes, err := s.client.SMembers(ctx, userKey).Result()
	if err != nil {
		return 0, fmt.Errorf("list sessions for delete: %w", err)
	}
	if len(hashes) == 0 {
		return 0, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.IntCmd, len(hashes))
	for i, hash := range hashes {
		cmds[i] = pipe.Del(ctx, sessionKey(hash))
	}
	pipe.Del(ctx, userKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("delete sessions by user: %w", err)
	}

	removed := 0
	for _, cmd := range cmds {
		removed += int(cmd.Val())
	}
	return removed, nil
}
