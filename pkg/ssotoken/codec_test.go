package ssotoken

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "keystone/pkg/domain-errors"
	"keystone/pkg/requestcontext"
)

var (
	testSecret  = []byte("0123456789abcdef0123456789abcdef")
	otherSecret = []byte("fedcba9876543210fedcba9876543210")
	issuedAt    = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	agentInT1   = Identity{UserID: "u1", ClientID: "T1", AppSlug: "chat", Role: "agent"}
)

func newCodec(t *testing.T, secret []byte) *Codec {
	t.Helper()
	c, err := New(secret)
	require.NoError(t, err)
	return c
}

func at(t time.Time) context.Context {
	return requestcontext.WithTime(context.Background(), t)
}

func TestNew(t *testing.T) {
	t.Run("rejects short secret", func(t *testing.T) {
		_, err := New([]byte("too-short"))
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects session TTL not longer than SSO TTL", func(t *testing.T) {
		_, err := New(testSecret, WithSSOTTL(time.Hour), WithAppSessionTTL(time.Hour))
		require.Error(t, err)
	})

	t.Run("defaults", func(t *testing.T) {
		c := newCodec(t, testSecret)
		assert.Equal(t, 5*time.Minute, c.SSOTTL())
		assert.Equal(t, 7*24*time.Hour, c.AppSessionTTL())
	})
}

func TestIssueSSO(t *testing.T) {
	c := newCodec(t, testSecret)

	raw, claims, err := c.IssueSSO(at(issuedAt), agentInT1)
	require.NoError(t, err)
	require.NotEmpty(t, raw)

	assert.Equal(t, int64(300), claims.ExpiresAt.Unix()-claims.IssuedAt.Unix())
	assert.Equal(t, KindSSO, claims.TokenUse)
	assert.Equal(t, jwt.ClaimStrings{"chat"}, claims.Audience)
	_, err = uuid.Parse(claims.ID)
	assert.NoError(t, err)

	t.Run("requires identity fields", func(t *testing.T) {
		_, _, err := c.IssueSSO(at(issuedAt), Identity{UserID: "u1", AppSlug: "chat"})
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})
}

func TestVerifySSO(t *testing.T) {
	c := newCodec(t, testSecret)
	raw, _, err := c.IssueSSO(at(issuedAt), agentInT1)
	require.NoError(t, err)

	t.Run("within TTL returns identical identity", func(t *testing.T) {
		claims, err := c.VerifySSO(at(issuedAt.Add(4*time.Minute)), raw, "chat")
		require.NoError(t, err)
		assert.Equal(t, agentInT1, claims.Identity())
	})

	t.Run("past exp is expired", func(t *testing.T) {
		_, err := c.VerifySSO(at(issuedAt.Add(5*time.Minute+DefaultLeeway+time.Second)), raw, "chat")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeExpired))
	})

	t.Run("within leeway after exp still verifies", func(t *testing.T) {
		_, err := c.VerifySSO(at(issuedAt.Add(5*time.Minute+DefaultLeeway/2)), raw, "chat")
		require.NoError(t, err)
	})

	t.Run("other app is wrong audience", func(t *testing.T) {
		_, err := c.VerifySSO(at(issuedAt.Add(time.Minute)), raw, "dc")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeWrongAudience))
	})

	t.Run("different secret is malformed", func(t *testing.T) {
		_, err := newCodec(t, otherSecret).VerifySSO(at(issuedAt.Add(time.Minute)), raw, "chat")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeMalformed))
	})

	t.Run("tampered payload is malformed", func(t *testing.T) {
		parts := strings.Split(raw, ".")
		require.Len(t, parts, 3)
		forged, _, err := newCodec(t, otherSecret).IssueSSO(at(issuedAt), Identity{UserID: "u1", ClientID: "T1", AppSlug: "chat", Role: "owner"})
		require.NoError(t, err)
		spliced := parts[0] + "." + strings.Split(forged, ".")[1] + "." + parts[2]

		_, err = c.VerifySSO(at(issuedAt.Add(time.Minute)), spliced, "chat")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeMalformed))
	})

	t.Run("garbage is malformed", func(t *testing.T) {
		for _, raw := range []string{"", "abc", "a.b.c"} {
			_, err := c.VerifySSO(at(issuedAt), raw, "chat")
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeMalformed), raw)
		}
	})

	t.Run("iat in the future is malformed", func(t *testing.T) {
		_, err := c.VerifySSO(at(issuedAt.Add(-time.Minute)), raw, "chat")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeMalformed))
	})
}

func signWith(t *testing.T, method jwt.SigningMethod, key any, claims *Claims) string {
	t.Helper()
	raw, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return raw
}

func validClaims(lifetime time.Duration) *Claims {
	return &Claims{
		UserID:   "u1",
		ClientID: "T1",
		AppSlug:  "chat",
		Role:     "agent",
		TokenUse: KindSSO,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    DefaultIssuer,
			Audience:  jwt.ClaimStrings{"chat"},
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(lifetime)),
			ID:        uuid.NewString(),
		},
	}
}

func TestVerifySSO_RejectsAlgorithmConfusion(t *testing.T) {
	c := newCodec(t, testSecret)

	cases := []struct {
		name   string
		method jwt.SigningMethod
		key    any
	}{
		{"hs512 with shared secret", jwt.SigningMethodHS512, testSecret},
		{"hs384 with shared secret", jwt.SigningMethodHS384, testSecret},
		{"alg none", jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			raw := signWith(t, tt.method, tt.key, validClaims(time.Minute))
			_, err := c.VerifySSO(at(issuedAt), raw, "chat")
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeMalformed))
		})
	}
}

func TestVerifySSO_LifetimeBound(t *testing.T) {
	c := newCodec(t, testSecret)

	raw := signWith(t, jwt.SigningMethodHS256, testSecret, validClaims(time.Hour))
	_, err := c.VerifySSO(at(issuedAt.Add(time.Minute)), raw, "chat")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeMalformed))

	raw = signWith(t, jwt.SigningMethodHS256, testSecret, validClaims(5*time.Minute))
	_, err = c.VerifySSO(at(issuedAt.Add(time.Minute)), raw, "chat")
	require.NoError(t, err)
}

func TestVerifySSO_RequiredClaims(t *testing.T) {
	c := newCodec(t, testSecret)

	noExp := validClaims(time.Minute)
	noExp.ExpiresAt = nil
	noIat := validClaims(time.Minute)
	noIat.IssuedAt = nil
	noRole := validClaims(time.Minute)
	noRole.Role = ""
	wrongIssuer := validClaims(time.Minute)
	wrongIssuer.Issuer = "someone-else"

	for name, claims := range map[string]*Claims{
		"missing exp":  noExp,
		"missing iat":  noIat,
		"missing role": noRole,
		"wrong issuer": wrongIssuer,
	} {
		t.Run(name, func(t *testing.T) {
			raw := signWith(t, jwt.SigningMethodHS256, testSecret, claims)
			_, err := c.VerifySSO(at(issuedAt), raw, "chat")
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeMalformed))
		})
	}
}

func TestTokenUseSeparation(t *testing.T) {
	c := newCodec(t, testSecret)
	ctx := at(issuedAt)

	session, _, err := c.IssueAppSession(ctx, agentInT1)
	require.NoError(t, err)
	sso, _, err := c.IssueSSO(ctx, agentInT1)
	require.NoError(t, err)

	_, err = c.VerifySSO(ctx, session, "chat")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeMalformed), "session token must not be exchangeable")

	_, err = c.VerifyAppSession(ctx, sso, "chat")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeMalformed), "sso token must not act as a session")
}

func TestAppSession(t *testing.T) {
	c := newCodec(t, testSecret)
	raw, claims, err := c.IssueAppSession(at(issuedAt), agentInT1)
	require.NoError(t, err)
	assert.Equal(t, 7*24*time.Hour, claims.Lifetime())

	got, err := c.VerifyAppSession(at(issuedAt.Add(6*24*time.Hour)), raw, "chat")
	require.NoError(t, err)
	assert.Equal(t, agentInT1, got.Identity())

	_, err = c.VerifyAppSession(at(issuedAt.Add(8*24*time.Hour)), raw, "chat")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeExpired))

	_, err = c.VerifyAppSession(at(issuedAt.Add(time.Hour)), raw, "dc")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeWrongAudience))
}

func TestInspect(t *testing.T) {
	c := newCodec(t, testSecret)
	raw, _, err := c.IssueSSO(at(issuedAt), agentInT1)
	require.NoError(t, err)

	claims, err := Inspect(raw)
	require.NoError(t, err)
	assert.Equal(t, "chat", claims.AppSlug)

	_, err = Inspect("not-a-token")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeMalformed))
}
