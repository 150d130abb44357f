package ratelimit

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/vinodismyname/sheetmind/config"
)

// Plan tiers.
const (
	TierFree = "free"
	TierPro  = "pro"
	TierTeam = "team"
)

// ErrLimited is returned when a user spent the per-minute allowance.
var ErrLimited = errors.New("ratelimit: too many requests")

// window is the period the per-tier allowance refills over.
const window = time.Minute

// LimitedError carries the retry hint for a rejected request.
type LimitedError struct {
	Limit      int
	RetryAfter time.Duration
}

func (e *LimitedError) Error() string {
	return fmt.Sprintf("%v: limit %d per minute, retry after %ds", ErrLimited, e.Limit, int(math.Ceil(e.RetryAfter.Seconds())))
}

func (e *LimitedError) Unwrap() error { return ErrLimited }

// Decision is the outcome of one check.
type Decision struct {
	Allowed    bool          `json:"allowed"`
	Limit      int           `json:"limit"`
	Remaining  int           `json:"remaining"`
	RetryAfter time.Duration `json:"retry_after,omitempty"`
}

// Options configures a Limiter.
type Options struct {
	// PerMinute maps tier to requests per minute. A zero limit disables
	// limiting for that tier. Unknown tiers get the free allowance.
	PerMinute map[string]int
	Clock     func() time.Time
}

// DefaultOptions uses the configured tier allowances.
func DefaultOptions() Options {
	return FromConfig(config.RateLimitConfig{
		Free: config.DefaultFreeRequestsPerMinute,
		Pro:  config.DefaultProRequestsPerMinute,
		Team: config.DefaultTeamRequestsPerMinute,
	})
}

// FromConfig maps the rate limit section of the configuration.
func FromConfig(c config.RateLimitConfig) Options {
	return Options{PerMinute: map[string]int{TierFree: c.Free, TierPro: c.Pro, TierTeam: c.Team}}
}

type bucket struct {
	lim  *rate.Limiter
	tier string
	seen time.Time
}

// Limiter keeps one token bucket per user. A bucket holds a full minute of
// allowance and refills continuously.
type Limiter struct {
	mu      sync.Mutex
	perMin  map[string]int
	clock   func() time.Time
	buckets map[string]*bucket
}

// New creates a limiter.
func New(opts Options) *Limiter {
	if opts.PerMinute == nil {
		opts.PerMinute = DefaultOptions().PerMinute
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Limiter{perMin: opts.PerMinute, clock: opts.Clock, buckets: map[string]*bucket{}}
}

// Limit returns the per-minute allowance for tier.
func (l *Limiter) Limit(tier string) int {
	if n, ok := l.perMin[strings.ToLower(tier)]; ok {
		return n
	}
	return l.perMin[TierFree]
}

// Check spends one request for user on the given tier.
func (l *Limiter) Check(user, tier string) Decision {
	tier = strings.ToLower(tier)
	limit := l.Limit(tier)
	if limit <= 0 {
		return Decision{Allowed: true}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.clock()

	b, ok := l.buckets[user]
	if !ok || b.tier != tier {
		b = &bucket{lim: rate.NewLimiter(rate.Every(window/time.Duration(limit)), limit), tier: tier}
		l.buckets[user] = b
	}
	b.seen = now

	if b.lim.AllowN(now, 1) {
		return Decision{Allowed: true, Limit: limit, Remaining: int(b.lim.TokensAt(now))}
	}
	r := b.lim.ReserveN(now, 1)
	delay := r.DelayFrom(now)
	r.CancelAt(now)
	return Decision{Limit: limit, RetryAfter: delay}
}

// Allow is Check as an error: nil when allowed, a *LimitedError otherwise.
func (l *Limiter) Allow(user, tier string) error {
	d := l.Check(user, tier)
	if d.Allowed {
		return nil
	}
	return &LimitedError{Limit: d.Limit, RetryAfter: d.RetryAfter}
}

// Prune drops buckets idle for longer than a full refill and returns how
// many were removed. Such buckets are indistinguishable from new ones.
func (l *Limiter) Prune() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.clock()
	n := 0
	for user, b := range l.buckets {
		if now.Sub(b.seen) > window {
			delete(l.buckets, user)
			n++
		}
	}
	return n
}

// Len reports how many users are tracked.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
