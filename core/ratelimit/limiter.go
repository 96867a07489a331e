package ratelimit

import (
	"sync"
	"time"
)

const (
	// DefaultQuota is the number of requests a user key may make per window.
	DefaultQuota = 10
	// DefaultWindow is the length of the trailing window.
	DefaultWindow = 60 * time.Second

	// UnknownKey is the shared bucket for callers without an identity.
	UnknownKey = "unknown"

	// ExceededMessage is sent verbatim to users who are over quota.
	ExceededMessage = "Rate limit exceeded. Please try again in a minute."
)

// Limiter counts requests per pseudonymous user key over a sliding window.
// Windows are pruned lazily when a key is touched or during Cleanup; there
// is no background eviction.
type Limiter struct {
	mu      sync.Mutex
	windows map[string][]time.Time
	quota   int
	window  time.Duration
	now     func() time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithQuota sets the per-window request quota. Non-positive values are ignored.
func WithQuota(n int) Option {
	return func(l *Limiter) {
		if n > 0 {
			l.quota = n
		}
	}
}

// WithWindow sets the window length. Non-positive values are ignored.
func WithWindow(d time.Duration) Option {
	return func(l *Limiter) {
		if d > 0 {
			l.window = d
		}
	}
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		if now != nil {
			l.now = now
		}
	}
}

// New creates a rate limiter with the default quota and window.
func New(opts ...Option) *Limiter {
	l := &Limiter{
		windows: make(map[string][]time.Time),
		quota:   DefaultQuota,
		window:  DefaultWindow,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Check reports whether a request from userKey is allowed. A rejected
// request is not recorded, so retrying while over quota never extends the
// lockout.
func (l *Limiter) Check(userKey string) (allowed bool, message string) {
	if userKey == "" {
		userKey = UnknownKey
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	fresh := l.pruneLocked(userKey, now)

	if len(fresh) >= l.quota {
		return false, ExceededMessage
	}

	l.windows[userKey] = append(fresh, now)
	return true, ""
}

// Cleanup drops stale timestamps for every key and forgets keys whose
// window is empty. Safe to call at any time.
func (l *Limiter) Cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for key := range l.windows {
		l.pruneLocked(key, now)
	}
}

// Len returns the number of keys with at least one fresh timestamp as of
// the last prune.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}

// Quota returns the configured quota.
func (l *Limiter) Quota() int { return l.quota }

// Window returns the configured window length.
func (l *Limiter) Window() time.Duration { return l.window }

// pruneLocked removes timestamps older than the window and returns what is
// left. Empty windows are deleted. Must be called with mu held.
func (l *Limiter) pruneLocked(key string, now time.Time) []time.Time {
	ts, ok := l.windows[key]
	if !ok {
		return nil
	}

	cutoff := now.Add(-l.window)
	fresh := ts[:0]
	for _, t := range ts {
		if t.After(cutoff) {
			fresh = append(fresh, t)
		}
	}

	if len(fresh) == 0 {
		delete(l.windows, key)
		return nil
	}
	l.windows[key] = fresh
	return fresh
}
