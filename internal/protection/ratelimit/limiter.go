// Package ratelimit implements fixed-window attempt ceilings keyed by IP and
// email domain. Fixed windows trade boundary bursts (up to 2x the ceiling
// straddling a window edge) for a single atomic Redis operation per attempt.
package ratelimit

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
)

// CounterStore is the per-window counter backend. Increment must be an
// atomic read-modify-write: two concurrent attempts on the same key must
// observe distinct counts.
type CounterStore interface {
	// Count returns the current window's count and the time left until the
	// window resets. A key with no window yet reports 0 and ttl <= 0.
	Count(ctx context.Context, key string) (int64, time.Duration, error)

	// Increment adds one attempt to the key's window, starting the window
	// (with the given length) if none is running, and returns the new count.
	Increment(ctx context.Context, key string, window time.Duration) (int64, error)
}

// Result reports a ceiling check without consuming an attempt.
type Result struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// Limiter evaluates one keyed ceiling. Counter loss (a restart of the
// ephemeral store) degrades to "not yet limited", never to an outage:
// store errors fail open.
type Limiter struct {
	store  CounterStore
	prefix string

	now func() time.Time
}

func New(store CounterStore, prefix string) *Limiter {
	return &Limiter{store: store, prefix: prefix, now: time.Now}
}

// Check reports whether another attempt under key fits below max. It never
// increments; rejected requests must not consume window budget.
func (l *Limiter) Check(ctx context.Context, key string, max int, window time.Duration) Result {
	now := l.now()

	count, ttl, err := l.store.Count(ctx, l.prefix+key)
	if err != nil {
		log.Warn("rate limiter: counter store unavailable, failing open", "key", key, "error", err)
		return Result{Allowed: true, Remaining: max, ResetAt: now.Add(window)}
	}

	if ttl <= 0 {
		ttl = window
	}

	remaining := max - int(count)
	if remaining < 0 {
		remaining = 0
	}

	return Result{
		Allowed:   int(count) < max,
		Remaining: remaining,
		ResetAt:   now.Add(ttl),
	}
}

// Increment consumes one attempt. Called exactly once per request that
// passes every protection gate, after the final decision, so retried or
// rejected requests are not double-counted.
func (l *Limiter) Increment(ctx context.Context, key string, window time.Duration) {
	if _, err := l.store.Increment(ctx, l.prefix+key, window); err != nil {
		log.Warn("rate limiter: increment failed", "key", key, "error", err)
	}
}
