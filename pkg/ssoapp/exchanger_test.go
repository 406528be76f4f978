package ssoapp

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "keystone/pkg/domain-errors"
	"keystone/pkg/requestcontext"
	"keystone/pkg/ssotoken"
)

var (
	sharedSecret  = []byte("shared-portal-secret-0123456789ab")
	sessionSecret = []byte("chat-app-private-secret-012345678")
	t0            = time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
)

func codec(t *testing.T, secret []byte) *ssotoken.Codec {
	t.Helper()
	c, err := ssotoken.New(secret)
	require.NoError(t, err)
	return c
}

func ctxAt(ts time.Time) context.Context {
	return requestcontext.WithTime(context.Background(), ts)
}

func newExchanger(t *testing.T, slug string, opts ...ExchangerOption) *Exchanger {
	t.Helper()
	opts = append([]ExchangerOption{WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}, opts...)
	e, err := NewExchanger(slug, codec(t, sharedSecret), opts...)
	require.NoError(t, err)
	return e
}

func TestNewExchangerRequiresSlugAndCodec(t *testing.T) {
	_, err := NewExchanger("", codec(t, sharedSecret))
	assert.Error(t, err)
	_, err = NewExchanger("chat", nil)
	assert.Error(t, err)
}

func TestExchange(t *testing.T) {
	portal := codec(t, sharedSecret)
	identity := ssotoken.Identity{UserID: "U1", ClientID: "T1", AppSlug: "chat", Role: "agent"}
	raw, _, err := portal.IssueSSO(ctxAt(t0), identity)
	require.NoError(t, err)

	t.Run("within TTL yields session with identical claims", func(t *testing.T) {
		e := newExchanger(t, "chat")
		session, err := e.Exchange(ctxAt(t0.Add(time.Minute)), raw)
		require.NoError(t, err)
		assert.Equal(t, identity, session.Claims.Identity())
		assert.Equal(t, ssotoken.KindAppSession, session.Claims.TokenUse)
		assert.Equal(t, t0.Add(time.Minute+7*24*time.Hour), session.ExpiresAt)

		claims, err := e.VerifySession(ctxAt(t0.Add(24*time.Hour)), session.Token)
		require.NoError(t, err)
		assert.Equal(t, "agent", claims.Role)
		assert.Equal(t, "T1", claims.ClientID)
	})

	t.Run("after expiry fails expired", func(t *testing.T) {
		_, err := newExchanger(t, "chat").Exchange(ctxAt(t0.Add(10*time.Minute)), raw)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeExpired))
	})

	t.Run("another app rejects with wrong audience", func(t *testing.T) {
		_, err := newExchanger(t, "dc").Exchange(ctxAt(t0.Add(time.Minute)), raw)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeWrongAudience))
	})

	t.Run("separate session secret", func(t *testing.T) {
		e := newExchanger(t, "chat", WithSessionCodec(codec(t, sessionSecret)))
		session, err := e.Exchange(ctxAt(t0.Add(time.Minute)), raw)
		require.NoError(t, err)

		_, err = e.VerifySession(ctxAt(t0.Add(time.Hour)), session.Token)
		require.NoError(t, err)

		_, err = newExchanger(t, "chat").VerifySession(ctxAt(t0.Add(time.Hour)), session.Token)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeMalformed))
	})
}

func TestExchangeRecordsMetrics(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	e := newExchanger(t, "chat", WithMetrics(m))

	_, err := e.Exchange(ctxAt(t0), "garbage")
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Verifications.WithLabelValues("chat", "exchange", "malformed")))
}
