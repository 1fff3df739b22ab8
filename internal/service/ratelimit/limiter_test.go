package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLimiterRefills(t *testing.T) {
	now := time.Unix(1706921940, 0)
	l := New(2, 0.5)
	l.now = func() time.Time { return now }

	assert.True(t, l.Allow("a"))
	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))
	assert.True(t, l.Allow("b"), "keys have separate buckets")
	assert.Equal(t, 2*time.Second, l.RetryAfter("a"))

	now = now.Add(2 * time.Second)
	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))

	now = now.Add(time.Hour)
	assert.True(t, l.Allow("a"))
	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"), "refill is capped at capacity")
}

func TestLimiterPrunesIdleKeys(t *testing.T) {
	now := time.Unix(1706921940, 0)
	l := New(2, 0.5)
	l.now = func() time.Time { return now }

	for _, ip := range []string{"10.0.0.1", "10.0.0.2", "10.0.0.3"} {
		assert.True(t, l.Allow(ip))
	}
	assert.Len(t, l.m, 3)

	// 4s refills a bucket of 2 at 0.5/s.
	now = now.Add(4 * time.Second)
	assert.True(t, l.Allow("10.0.0.4"))
	assert.Len(t, l.m, 1)
	assert.Zero(t, l.RetryAfter("10.0.0.1"))
}

func TestLimiterWithoutRefillKeepsKeys(t *testing.T) {
	now := time.Unix(1706921940, 0)
	l := New(1, 0)
	l.now = func() time.Time { return now }

	assert.True(t, l.Allow("a"))
	now = now.Add(24 * time.Hour)
	assert.True(t, l.Allow("b"))
	assert.False(t, l.Allow("a"), "an exhausted key is not reset")
	assert.Len(t, l.m, 2)
}
