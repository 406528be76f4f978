package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "keystone/pkg/domain"
	dErrors "keystone/pkg/domain-errors"
)

var now = time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

func TestParseRole(t *testing.T) {
	r, err := ParseRole(" Agent ")
	require.NoError(t, err)
	assert.Equal(t, RoleAgent, r)

	_, err = ParseRole("superuser")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}

func TestRoleOrdering(t *testing.T) {
	assert.True(t, RoleOwner.Outranks(RoleAdmin))
	assert.True(t, RoleAdmin.Outranks(RoleAgent))
	assert.False(t, RoleAdmin.Outranks(RoleAdmin))
	assert.True(t, RoleOwner.CanAdminister())
	assert.True(t, RoleAdmin.CanAdminister())
	assert.False(t, RoleAgent.CanAdminister())
}

func TestNewApp(t *testing.T) {
	app, err := NewApp(id.NewAppID(), "chat", "Chat", "https://chat.example.com/", now)
	require.NoError(t, err)
	assert.Equal(t, "https://chat.example.com", app.Domain)
	assert.Equal(t, "https://chat.example.com/sso?token=a%2Bb", app.SSOURL("a+b"))

	for name, tc := range map[string][3]string{
		"uppercase slug":  {"Chat", "Chat", "https://chat.example.com"},
		"empty name":      {"chat", " ", "https://chat.example.com"},
		"javascript url":  {"chat", "Chat", "javascript:alert(1)"},
		"domain has path": {"chat", "Chat", "https://chat.example.com/app"},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := NewApp(id.NewAppID(), tc[0], tc[1], tc[2], now)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
		})
	}
}

func TestNewTenant(t *testing.T) {
	tenant, err := NewTenant(id.NewTenantID(), "  Acme  ", now)
	require.NoError(t, err)
	assert.Equal(t, "Acme", tenant.Name)

	_, err = NewTenant(id.NewTenantID(), "", now)
	assert.Error(t, err)
}

func TestGrantEffectiveRole(t *testing.T) {
	assert.Equal(t, RoleUser, (&Grant{}).EffectiveRole())
	assert.Equal(t, RoleAgent, (&Grant{Role: RoleAgent}).EffectiveRole())
	assert.True(t, (&Grant{}).IsGlobal())
}
