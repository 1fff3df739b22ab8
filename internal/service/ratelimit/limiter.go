// Package ratelimit is an in-process token bucket keyed by caller.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type entry struct {
	lim  *rate.Limiter
	seen time.Time
}

// Limiter holds one bucket per key. All keys share capacity and refill rate.
// Keys idle long enough to have refilled completely are pruned.
type Limiter struct {
	mu        sync.Mutex
	m         map[string]*entry
	capacity  int
	refill    float64 // tokens per second
	idle      time.Duration
	lastPrune time.Time
	now       func() time.Time
}

func New(capacity, refillPerSec float64) *Limiter {
	if capacity < 1 {
		capacity = 1
	}
	l := &Limiter{
		m:        make(map[string]*entry),
		capacity: int(capacity),
		refill:   refillPerSec,
		now:      time.Now,
	}
	if refillPerSec > 0 {
		l.idle = time.Duration(float64(l.capacity) / refillPerSec * float64(time.Second))
	}
	return l
}

// Allow consumes one token for key if one is available.
func (l *Limiter) Allow(key string) bool {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	l.prune(now)
	e, ok := l.m[key]
	if !ok {
		e = &entry{lim: rate.NewLimiter(rate.Limit(l.refill), l.capacity)}
		l.m[key] = e
	}
	e.seen = now
	return e.lim.AllowN(now, 1)
}

// RetryAfter is how long key waits for its next token.
func (l *Limiter) RetryAfter(key string) time.Duration {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.m[key]
	if !ok || l.refill <= 0 {
		return 0
	}
	tokens := e.lim.TokensAt(now)
	if tokens >= 1 {
		return 0
	}
	return time.Duration((1 - tokens) / l.refill * float64(time.Second))
}

// prune drops keys whose bucket is full again. Caller holds mu.
// Without refill a dropped key would get a fresh bucket, so nothing is pruned.
func (l *Limiter) prune(now time.Time) {
	if l.idle <= 0 || now.Sub(l.lastPrune) < l.idle {
		return
	}
	l.lastPrune = now
	for k, e := range l.m {
		if now.Sub(e.seen) >= l.idle {
			delete(l.m, k)
		}
	}
}
