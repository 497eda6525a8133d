// Package ratelimit throttles operator-triggered refreshes with a
// lazy-refill token bucket, so the remote feed API is not polled faster
// than the configured rate no matter how often refresh is requested.
package ratelimit

import (
	"math"
	"sync"
	"time"
)

// Result is the outcome of a rate limit check.
type Result struct {
	Allowed           bool
	Limit             int64
	Remaining         int64
	RetryAfterSeconds float64
}

// RetryAfter rounds RetryAfterSeconds up to whole seconds for the
// Retry-After header.
func (r Result) RetryAfter() int64 {
	return int64(math.Ceil(r.RetryAfterSeconds))
}

// bucket is a token bucket with lazy refill (no background goroutine).
type bucket struct {
	tokens   float64
	max      float64
	rate     float64 // tokens per second
	lastFill time.Time
}

func newBucket(perMinute int64, now time.Time) *bucket {
	return &bucket{
		tokens:   float64(perMinute),
		max:      float64(perMinute),
		rate:     float64(perMinute) / 60.0,
		lastFill: now,
	}
}

// refill adds tokens based on elapsed time since last refill.
func (b *bucket) refill(now time.Time) {
	elapsed := now.Sub(b.lastFill).Seconds()
	if elapsed <= 0 {
		return
	}
	b.tokens = min(b.max, b.tokens+elapsed*b.rate)
	b.lastFill = now
}

// retryAfter returns seconds until one token is available.
func (b *bucket) retryAfter() float64 {
	if b.tokens >= 1 {
		return 0
	}
	return (1 - b.tokens) / b.rate
}

// Limiter allows up to perMinute calls per minute with bursts of the same
// size. A nil *Limiter or a limit of 0 allows everything.
type Limiter struct {
	mu    sync.Mutex
	b     *bucket
	limit int64
	now   func() time.Time
}

// New creates a Limiter allowing perMinute calls per minute.
func New(perMinute int64) *Limiter {
	return newWithClock(perMinute, time.Now)
}

func newWithClock(perMinute int64, now func() time.Time) *Limiter {
	l := &Limiter{limit: perMinute, now: now}
	if perMinute > 0 {
		l.b = newBucket(perMinute, now())
	}
	return l
}

// Allow consumes one token if available.
func (l *Limiter) Allow() Result {
	if l == nil || l.b == nil {
		return Result{Allowed: true}
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	l.b.refill(l.now())
	if l.b.tokens >= 1 {
		l.b.tokens--
		return Result{Allowed: true, Limit: l.limit, Remaining: int64(l.b.tokens)}
	}
	return Result{
		Allowed:           false,
		Limit:             l.limit,
		RetryAfterSeconds: l.b.retryAfter(),
	}
}
