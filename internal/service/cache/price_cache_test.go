package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"PortDelta/internal/domain/models"
	pkgcache "PortDelta/pkg/cache"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPriceCacheOverwriteAndClear(t *testing.T) {
	ctx := context.Background()
	mem := pkgcache.NewMemoryCache()
	defer mem.Close()
	pc := NewPriceCache(mem)

	_, ok, err := pc.Get(ctx, "AAPL")
	require.NoError(t, err)
	assert.False(t, ok)

	first := models.CachedClose{Price: decimal.RequireFromString("100"), AsOf: models.MustParseDate("2024-02-01")}
	second := models.CachedClose{Price: decimal.RequireFromString("101.5"), AsOf: models.MustParseDate("2024-02-02")}
	require.NoError(t, pc.Put(ctx, "AAPL", first))
	require.NoError(t, pc.Put(ctx, "aapl", second))

	got, ok, err := pc.Get(ctx, "AAPL")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, got.Price.Equal(second.Price))
	assert.Equal(t, second.AsOf, got.AsOf)

	require.NoError(t, mem.Set(ctx, "other", "keep", 0))
	require.NoError(t, pc.Clear(ctx))
	_, ok, _ = pc.Get(ctx, "AAPL")
	assert.False(t, ok)
	exists, _ := mem.Exists(ctx, "other")
	assert.True(t, exists)
}

type brokenStore struct{ pkgcache.Service }

func (brokenStore) Get(context.Context, string, interface{}) error { return errors.New("conn reset") }

func TestPriceCacheBackendErrorIsNotAMiss(t *testing.T) {
	pc := NewPriceCache(brokenStore{})
	_, ok, err := pc.Get(context.Background(), "AAPL")
	assert.False(t, ok)
	assert.Error(t, err)
}

func TestTTLCacheExpiryBasic(t *testing.T) {
	c := NewTTLCache[string, int]()
	now := time.Date(2024, 2, 2, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	c.Set("a", 1, time.Minute)
	c.Set("b", 2, 0)
	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	now = now.Add(2 * time.Minute)
	_, ok = c.Get("a")
	assert.False(t, ok)
	_, ok = c.Get("b")
	assert.True(t, ok)

	c.Purge()
	assert.Equal(t, 0, c.Len())
}
