package cache

import (
	"context"
	"errors"
	"fmt"

	"PortDelta/internal/domain/models"
	drepo "PortDelta/internal/domain/repository"
	pkgcache "PortDelta/pkg/cache"
	"PortDelta/pkg/util"
)

const closePrefix = "close"

// PriceCache stores official closes in a pkg/cache backend without expiry.
type PriceCache struct {
	store pkgcache.Service
}

var _ drepo.PriceCache = (*PriceCache)(nil)

func NewPriceCache(store pkgcache.Service) *PriceCache {
	return &PriceCache{store: store}
}

func (c *PriceCache) Get(ctx context.Context, symbol string) (models.CachedClose, bool, error) {
	var cc models.CachedClose
	err := c.store.Get(ctx, key(symbol), &cc)
	switch {
	case errors.Is(err, pkgcache.ErrCacheMiss):
		return models.CachedClose{}, false, nil
	case err != nil:
		return models.CachedClose{}, false, fmt.Errorf("price cache get %s: %w", symbol, err)
	}
	return cc, true, nil
}

func (c *PriceCache) Put(ctx context.Context, symbol string, cc models.CachedClose) error {
	if err := c.store.Set(ctx, key(symbol), cc, 0); err != nil {
		return fmt.Errorf("price cache put %s: %w", symbol, err)
	}
	return nil
}

func (c *PriceCache) Clear(ctx context.Context) error {
	if err := c.store.DeleteByPattern(ctx, pkgcache.BuildPattern(closePrefix)); err != nil {
		return fmt.Errorf("price cache clear: %w", err)
	}
	return nil
}

func key(symbol string) string {
	return pkgcache.GenerateKey(closePrefix, util.NormalizeSymbol(symbol))
}
