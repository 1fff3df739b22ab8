package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTTLCacheExpiry(t *testing.T) {
	now := time.Unix(1706921940, 0)
	c := NewTTLCache[string, int]()
	c.now = func() time.Time { return now }

	c.Set("a", 1, time.Minute)
	c.Set("forever", 2, 0)
	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	now = now.Add(2 * time.Minute)
	_, ok = c.Get("a")
	assert.False(t, ok)
	_, ok = c.Get("forever")
	assert.True(t, ok)
	assert.Equal(t, 1, c.Len())

	c.Purge()
	assert.Zero(t, c.Len())
}

func TestTTLCacheExpiredReadKeepsConcurrentSet(t *testing.T) {
	now := time.Unix(1706921940, 0)
	c := NewTTLCache[string, int]()
	c.now = func() time.Time { return now }
	c.Set("k", 1, time.Minute)

	// The first clock read inside Get lands between the read and the
	// delete; a writer refreshes the key right there.
	now = now.Add(2 * time.Minute)
	refreshed := false
	c.now = func() time.Time {
		if !refreshed {
			refreshed = true
			c.Set("k", 2, time.Minute)
		}
		return now
	}

	_, ok := c.Get("k")
	assert.False(t, ok, "the stale read still misses")

	v, ok := c.Get("k")
	assert.True(t, ok, "the refreshed entry survives")
	assert.Equal(t, 2, v)
}
