package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsInDev(t *testing.T) {
	t.Setenv("KEYSTONE_ENV", "dev")
	t.Setenv("SSO_SIGNING_SECRET", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, 5*time.Minute, cfg.SSO.TokenTTL)
	assert.Equal(t, devSigningSecret, cfg.SSO.SigningSecret)
	assert.True(t, cfg.Session.CookieSecure)
}

func TestLoadRequiresSecretOutsideDev(t *testing.T) {
	t.Setenv("KEYSTONE_ENV", "production")
	t.Setenv("SSO_SIGNING_SECRET", "short")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SSO_SIGNING_SECRET")
}

func TestLoadReportsEveryBadValue(t *testing.T) {
	t.Setenv("KEYSTONE_ENV", "dev")
	t.Setenv("SSO_TOKEN_TTL", "five minutes")
	t.Setenv("LOGIN_RATE_LIMIT", "lots")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SSO_TOKEN_TTL")
	assert.Contains(t, err.Error(), "LOGIN_RATE_LIMIT")
}

func TestLoadRejectsLongSSOTTL(t *testing.T) {
	t.Setenv("KEYSTONE_ENV", "dev")
	t.Setenv("SSO_TOKEN_TTL", "2h")

	_, err := Load()
	require.Error(t, err)
}

func TestLoadApp(t *testing.T) {
	t.Run("requires slug", func(t *testing.T) {
		t.Setenv("KEYSTONE_ENV", "dev")
		t.Setenv("APP_SLUG", "")
		_, err := LoadApp()
		require.Error(t, err)
	})

	t.Run("session TTL must exceed SSO TTL", func(t *testing.T) {
		t.Setenv("KEYSTONE_ENV", "dev")
		t.Setenv("APP_SLUG", "chat")
		t.Setenv("APP_SESSION_TTL", "1m")
		_, err := LoadApp()
		require.Error(t, err)
	})

	t.Run("defaults", func(t *testing.T) {
		t.Setenv("KEYSTONE_ENV", "dev")
		t.Setenv("APP_SLUG", "chat")
		cfg, err := LoadApp()
		require.NoError(t, err)
		assert.Equal(t, 7*24*time.Hour, cfg.SessionTTL)
		assert.Equal(t, "app_session", cfg.CookieName)
	})
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("KEYSTONE_TEST_DOTENV=from-file\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("KEYSTONE_TEST_DOTENV") })

	require.NoError(t, LoadDotEnv(path))
	assert.Equal(t, "from-file", os.Getenv("KEYSTONE_TEST_DOTENV"))

	assert.NoError(t, LoadDotEnv(filepath.Join(dir, "missing.env")))
}
