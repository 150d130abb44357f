package memory

import (
	"container/list"
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vinodismyname/sheetmind/config"
)

// ErrSessionNotFound indicates an unknown or evicted session id.
var ErrSessionNotFound = errors.New("memory: session not found")

// Eviction reasons reported to Options.OnEvict.
const (
	EvictIdle = "idle"
	EvictLRU  = "lru"
)

// Options configures a Manager. Zero values fall back to config defaults.
type Options struct {
	Window      int
	MaxSessions int
	IdleTimeout time.Duration
	SweepEvery  time.Duration
	Clock       func() time.Time
	Logger      zerolog.Logger
	OnEvict     func(reason string)
}

// Manager caches sessions by id with an idle timeout and an LRU cap. One lock
// guards the map and the recency list; each session guards its own window.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*list.Element
	recency  *list.List // front is most recently used

	window      int
	maxSessions int
	idle        time.Duration
	sweepEvery  time.Duration
	clock       func() time.Time
	log         zerolog.Logger
	onEvict     func(reason string)

	stopCh    chan struct{}
	stopOnce  sync.Once
	cleanupWG sync.WaitGroup
}

// NewManager constructs a session cache. Call Start to run the background
// sweeper; Get also drops idle sessions on every call.
func NewManager(opts Options) *Manager {
	if opts.Window <= 0 {
		opts.Window = config.DefaultMemoryWindow
	}
	if opts.MaxSessions <= 0 {
		opts.MaxSessions = config.DefaultMaxSessions
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = config.DefaultSessionIdleTimeout
	}
	if opts.SweepEvery <= 0 {
		opts.SweepEvery = config.DefaultSessionSweepPeriod
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Manager{
		sessions:    make(map[string]*list.Element),
		recency:     list.New(),
		window:      opts.Window,
		maxSessions: opts.MaxSessions,
		idle:        opts.IdleTimeout,
		sweepEvery:  opts.SweepEvery,
		clock:       opts.Clock,
		log:         opts.Logger,
		onEvict:     opts.OnEvict,
		stopCh:      make(chan struct{}),
	}
}

// Start launches periodic eviction of idle sessions.
func (m *Manager) Start() {
	m.cleanupWG.Add(1)
	ticker := time.NewTicker(m.sweepEvery)
	go func() {
		defer m.cleanupWG.Done()
		defer ticker.Stop()
		for {
			select {
			case <-m.stopCh:
				return
			case <-ticker.C:
				m.EvictExpired()
			}
		}
	}()
}

// Close stops the sweeper and drops every session.
func (m *Manager) Close(ctx context.Context) error {
	m.stopOnce.Do(func() { close(m.stopCh) })
	done := make(chan struct{})
	go func() { m.cleanupWG.Wait(); close(done) }()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions = make(map[string]*list.Element)
	m.recency.Init()
	return nil
}

// Get returns the session for id, creating it when absent, and marks it as
// most recently used. Idle sessions are dropped first; if the cache is still
// full the least recently used session makes room. The session being
// requested is never the one evicted.
func (m *Manager) Get(id string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock()
	m.evictIdleLocked(now)

	if el, ok := m.sessions[id]; ok {
		s := el.Value.(*Session)
		s.lastUsed = now
		m.recency.MoveToFront(el)
		return s
	}

	for len(m.sessions) >= m.maxSessions {
		oldest := m.recency.Back()
		if oldest == nil {
			break
		}
		m.removeLocked(oldest, EvictLRU)
	}

	s := newSession(id, m.window, m.clock)
	m.sessions[id] = m.recency.PushFront(s)
	return s
}

// Peek returns the session without creating it or refreshing its recency.
func (m *Manager) Peek(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	el, ok := m.sessions[id]
	if !ok {
		return nil, false
	}
	return el.Value.(*Session), true
}

// Clear forgets a session's exchanges but keeps the session cached.
func (m *Manager) Clear(id string) error {
	s, ok := m.Peek(id)
	if !ok {
		return ErrSessionNotFound
	}
	s.Clear()
	return nil
}

// Remove deletes a session entirely.
func (m *Manager) Remove(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	el, ok := m.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	m.recency.Remove(el)
	delete(m.sessions, id)
	return nil
}

// Info describes a cached session.
type Info struct {
	ID        string    `json:"session_id"`
	Created   time.Time `json:"created_at"`
	LastUsed  time.Time `json:"last_used"`
	Exchanges int       `json:"exchange_count"`
}

// Sessions lists cached sessions, most recently used first.
func (m *Manager) Sessions() []Info {
	m.mu.Lock()
	out := make([]Info, 0, len(m.sessions))
	sessions := make([]*Session, 0, len(m.sessions))
	for el := m.recency.Front(); el != nil; el = el.Next() {
		s := el.Value.(*Session)
		out = append(out, Info{ID: s.ID, Created: s.Created, LastUsed: s.lastUsed})
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	// Exchange counts take each session's own lock.
	for i, s := range sessions {
		out[i].Exchanges = s.Len()
	}
	return out
}

// Summary is the memory overview of one session.
type Summary struct {
	SessionID    string `json:"session_id"`
	MessageCount int    `json:"message_count"`
	WindowSize   int    `json:"window_size"`
	Source       string `json:"llm_source"`
}

// Summary reports the message count and window of a cached session.
func (m *Manager) Summary(id string) (Summary, error) {
	s, ok := m.Peek(id)
	if !ok {
		return Summary{}, ErrSessionNotFound
	}
	return Summary{
		SessionID:    id,
		MessageCount: 2 * s.Len(),
		WindowSize:   s.Window(),
		Source:       s.Source(),
	}, nil
}

// EvictExpired drops sessions idle longer than the timeout and returns how
// many were removed.
func (m *Manager) EvictExpired() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.evictIdleLocked(m.clock())
}

// Count returns the number of cached sessions.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *Manager) evictIdleLocked(now time.Time) int {
	n := 0
	// Walk from the least recently used end; stop at the first fresh one.
	for el := m.recency.Back(); el != nil; {
		s := el.Value.(*Session)
		if now.Sub(s.lastUsed) <= m.idle {
			break
		}
		prev := el.Prev()
		m.removeLocked(el, EvictIdle)
		el = prev
		n++
	}
	return n
}

func (m *Manager) removeLocked(el *list.Element, reason string) {
	s := m.recency.Remove(el).(*Session)
	delete(m.sessions, s.ID)
	m.log.Info().Str("session_id", s.ID).Str("reason", reason).Msg("session evicted")
	if m.onEvict != nil {
		m.onEvict(reason)
	}
}
