package storage

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"keystone/internal/audit"
	userstore "keystone/internal/identity/store/user"
	"keystone/internal/platform/config"
	"keystone/internal/platform/redis"
	sessionstore "keystone/internal/portalsession/store"
)

func TestOpenWithoutBackends(t *testing.T) {
	repos := Open(nil, nil)

	assert.False(t, repos.Durable)
	assert.IsType(t, &userstore.InMemory{}, repos.Users)
	assert.IsType(t, &sessionstore.InMemory{}, repos.Sessions)
	assert.IsType(t, &audit.InMemoryStore{}, repos.Audit)
}

func TestOpenUsesRedisForSessions(t *testing.T) {
	mr := miniredis.RunT(t)
	rc, err := redis.New(context.Background(), config.RedisConfig{URL: "redis://" + mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = rc.Close() })

	repos := Open(nil, rc)

	assert.IsType(t, &sessionstore.RedisStore{}, repos.Sessions)
	assert.IsType(t, &userstore.InMemory{}, repos.Users)
}
