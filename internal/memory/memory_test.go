package memory

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeClock advances only when told to.
type fakeClock struct{ now atomic.Int64 }

func newFakeClock() *fakeClock {
	c := &fakeClock{}
	c.now.Store(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC).UnixNano())
	return c
}

func (c *fakeClock) Now() time.Time           { return time.Unix(0, c.now.Load()).UTC() }
func (c *fakeClock) Advance(d time.Duration) { c.now.Add(int64(d)) }

func TestSession_WindowAndTranscript(t *testing.T) {
	m := NewManager(Options{Window: 2})
	s := m.Get("a")
	s.Add("q1", "a1")
	s.Add("q2", "a2")
	s.Add("q3", "a3")

	require.Equal(t, 2, s.Len())
	require.Equal(t, "Human: q2\nAI: a2\nHuman: q3\nAI: a3", s.Transcript())
	require.Equal(t, []Message{
		{Role: RoleUser, Content: "q2"}, {Role: RoleAssistant, Content: "a2"},
		{Role: RoleUser, Content: "q3"}, {Role: RoleAssistant, Content: "a3"},
	}, s.Messages())
}

func TestSession_Prepopulate(t *testing.T) {
	m := NewManager(Options{})
	s := m.Get("a")
	history := []Message{
		{Role: RoleUser, Content: "sum sales"},
		{Role: RoleAssistant, Content: "done"},
		{Role: "system", Content: "ignored"},
		{Role: RoleUser, Content: "orphan"},
		{Role: RoleUser, Content: "sort it"},
		{Role: RoleAssistant, Content: "sorted"},
	}
	require.Equal(t, 2, s.Prepopulate(history))
	require.Equal(t, []string{"sum sales", "sort it"}, []string{s.Exchanges()[0].User, s.Exchanges()[1].User})

	require.Zero(t, s.Prepopulate(history), "non-empty memory is not reseeded")
}

func TestManager_EvictsLeastRecentlyUsedAtCapacity(t *testing.T) {
	clock := newFakeClock()
	var evictions []string
	m := NewManager(Options{MaxSessions: 3, Clock: clock.Now, OnEvict: func(r string) { evictions = append(evictions, r) }})

	for _, id := range []string{"a", "b", "c"} {
		m.Get(id)
		clock.Advance(time.Second)
	}
	// Touch "a" so "b" becomes the oldest.
	m.Get("a")
	clock.Advance(time.Second)

	m.Get("d")
	require.Equal(t, 3, m.Count())
	_, ok := m.Peek("b")
	require.False(t, ok)
	for _, id := range []string{"a", "c", "d"} {
		_, ok := m.Peek(id)
		require.True(t, ok, id)
	}
	require.Equal(t, []string{EvictLRU}, evictions)
}

func TestManager_NewSessionNeverEvicted(t *testing.T) {
	clock := newFakeClock()
	m := NewManager(Options{MaxSessions: 1, Clock: clock.Now})
	for i := 0; i < 5; i++ {
		id := strconv.Itoa(i)
		m.Get(id)
		_, ok := m.Peek(id)
		require.True(t, ok)
		require.Equal(t, 1, m.Count())
		clock.Advance(time.Millisecond)
	}
}

func TestManager_IdleTimeoutBeforeLRU(t *testing.T) {
	clock := newFakeClock()
	var evictions []string
	m := NewManager(Options{MaxSessions: 2, IdleTimeout: time.Hour, Clock: clock.Now, OnEvict: func(r string) { evictions = append(evictions, r) }})

	m.Get("old")
	clock.Advance(30 * time.Minute)
	m.Get("fresh")
	clock.Advance(31 * time.Minute)

	m.Get("new")
	require.Equal(t, []string{EvictIdle}, evictions, "idle session goes first, no LRU eviction needed")
	_, ok := m.Peek("fresh")
	require.True(t, ok)

	clock.Advance(2 * time.Hour)
	require.Equal(t, 2, m.EvictExpired())
	require.Zero(t, m.Count())
}

func TestManager_ClearRemoveSummary(t *testing.T) {
	m := NewManager(Options{Window: 4})
	s := m.Get("a")
	s.Add("q", "a")
	s.SetSource("gemini")

	sum, err := m.Summary("a")
	require.NoError(t, err)
	require.Equal(t, Summary{SessionID: "a", MessageCount: 2, WindowSize: 4, Source: "gemini"}, sum)

	require.NoError(t, m.Clear("a"))
	require.Zero(t, s.Len())
	require.Equal(t, 1, m.Count())

	require.NoError(t, m.Remove("a"))
	require.ErrorIs(t, m.Remove("a"), ErrSessionNotFound)
	require.ErrorIs(t, m.Clear("a"), ErrSessionNotFound)
	_, err = m.Summary("a")
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestManager_SessionsMostRecentFirst(t *testing.T) {
	clock := newFakeClock()
	m := NewManager(Options{Clock: clock.Now})
	m.Get("a").Add("q", "r")
	clock.Advance(time.Second)
	m.Get("b")
	clock.Advance(time.Second)
	m.Get("a")

	infos := m.Sessions()
	require.Len(t, infos, 2)
	require.Equal(t, "a", infos[0].ID)
	require.Equal(t, 1, infos[0].Exchanges)
	require.Equal(t, "b", infos[1].ID)
}

func TestManager_ConcurrentAccess(t *testing.T) {
	m := NewManager(Options{MaxSessions: 8})
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m.Get(strconv.Itoa(i%12)).Add("q", "a")
		}(i)
	}
	wg.Wait()
	require.LessOrEqual(t, m.Count(), 8)
}

func TestManager_StartClose(t *testing.T) {
	clock := newFakeClock()
	m := NewManager(Options{IdleTimeout: time.Minute, SweepEvery: 5 * time.Millisecond, Clock: clock.Now})
	m.Get("a")
	m.Start()
	clock.Advance(time.Hour)
	require.Eventually(t, func() bool { return m.Count() == 0 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, m.Close(ctx))
}
