package ratelimit

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newLimiter(c *clock) *Limiter {
	opts := DefaultOptions()
	opts.Clock = c.Now
	return New(opts)
}

func TestCheck_FreeTier(t *testing.T) {
	c := &clock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	l := newLimiter(c)

	for i := 4; i >= 0; i-- {
		d := l.Check("u1", TierFree)
		require.True(t, d.Allowed)
		require.Equal(t, 5, d.Limit)
		require.Equal(t, i, d.Remaining)
	}
	d := l.Check("u1", TierFree)
	require.False(t, d.Allowed)
	require.InDelta(t, 12, d.RetryAfter.Seconds(), 0.01)

	// Other users have their own bucket.
	require.True(t, l.Check("u2", TierFree).Allowed)

	c.Advance(13 * time.Second)
	require.True(t, l.Check("u1", TierFree).Allowed)
	require.False(t, l.Check("u1", TierFree).Allowed)
}

func TestCheck_Tiers(t *testing.T) {
	c := &clock{now: time.Unix(0, 0)}
	l := newLimiter(c)

	require.Equal(t, 5, l.Limit(TierFree))
	require.Equal(t, 20, l.Limit("PRO"))
	require.Equal(t, 50, l.Limit(TierTeam))
	require.Equal(t, 5, l.Limit("enterprise"))

	allowed := 0
	for i := 0; i < 30; i++ {
		if l.Check("p", TierPro).Allowed {
			allowed++
		}
	}
	require.Equal(t, 20, allowed)

	// An upgrade starts a fresh bucket.
	require.True(t, l.Check("p", TierTeam).Allowed)
}

func TestCheck_ZeroLimitDisables(t *testing.T) {
	l := New(Options{PerMinute: map[string]int{TierFree: 0}})
	for i := 0; i < 100; i++ {
		require.NoError(t, l.Allow("u", TierFree))
	}
	require.Zero(t, l.Len())
}

func TestAllow_Error(t *testing.T) {
	c := &clock{now: time.Unix(0, 0)}
	l := newLimiter(c)
	for i := 0; i < 5; i++ {
		require.NoError(t, l.Allow("u", TierFree))
	}
	err := l.Allow("u", TierFree)
	require.ErrorIs(t, err, ErrLimited)
	var le *LimitedError
	require.True(t, errors.As(err, &le))
	require.Equal(t, 5, le.Limit)
	require.Positive(t, le.RetryAfter)
}

func TestPrune(t *testing.T) {
	c := &clock{now: time.Unix(0, 0)}
	l := newLimiter(c)
	l.Check("a", TierFree)
	c.Advance(30 * time.Second)
	l.Check("b", TierFree)
	c.Advance(31 * time.Second)

	require.Equal(t, 1, l.Prune())
	require.Equal(t, 1, l.Len())
}
