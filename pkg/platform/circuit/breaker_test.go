package circuit

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func TestOpensAfterConsecutiveFailures(t *testing.T) {
	b := New("smtp", WithFailureThreshold(3))

	for range 2 {
		require.True(t, b.Allow())
		assert.False(t, b.Record(errBoom).Opened)
	}
	require.True(t, b.Allow())
	assert.True(t, b.Record(errBoom).Opened)
	assert.Equal(t, StateOpen, b.State())
	assert.False(t, b.Allow())
}

func TestSuccessResetsFailureCount(t *testing.T) {
	b := New("smtp", WithFailureThreshold(2))

	b.Record(errBoom)
	b.Record(nil)
	b.Record(errBoom)

	assert.Equal(t, StateClosed, b.State())
}

func TestHalfOpenProbe(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	b := New("smtp", WithFailureThreshold(1), WithCooldown(time.Minute), WithClock(clock.Now))

	b.Record(errBoom)
	require.False(t, b.Allow())

	clock.Advance(time.Minute)
	require.True(t, b.Allow(), "first call after cooldown is a probe")
	assert.Equal(t, StateHalfOpen, b.State())
	assert.False(t, b.Allow(), "only one probe at a time")

	// Failed probe re-opens for a full cooldown.
	b.Record(errBoom)
	assert.Equal(t, StateOpen, b.State())
	clock.Advance(30 * time.Second)
	assert.False(t, b.Allow())

	clock.Advance(30 * time.Second)
	require.True(t, b.Allow())
	change := b.Record(nil)
	assert.True(t, change.Closed)
	assert.Equal(t, StateClosed, b.State())
	assert.True(t, b.Allow())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "half_open", StateHalfOpen.String())
}
