package pricing

import (
	"context"
	"fmt"
	"time"

	"folio/internal/models"

	"github.com/patrickmn/go-cache"
)

// Cached memoizes the historical series of a resolver for ttl. Live quotes
// always go through.
type Cached struct {
	name  string
	next  Resolver
	cache *cache.Cache
}

func NewCached(name string, next Resolver, ttl time.Duration) *Cached {
	return &Cached{name: name, next: next, cache: cache.New(ttl, 2*ttl)}
}

func (c *Cached) Prices(ctx context.Context, asset models.AssetInfo, start time.Time) (models.PriceSeries, error) {
	key := fmt.Sprintf("%s|%s|%s|%s", c.name, asset.ID, asset.Symbol, models.Day(start).Format(models.DayLayout))
	if v, ok := c.cache.Get(key); ok {
		return v.(models.PriceSeries), nil
	}
	series, err := c.next.Prices(ctx, asset, start)
	if err != nil {
		return series, err
	}
	c.cache.SetDefault(key, series)
	return series, nil
}

func (c *Cached) LastPrice(ctx context.Context, asset models.AssetInfo) (float64, string, error) {
	q, ok := c.next.(LiveQuoter)
	if !ok {
		return 0, "", fmt.Errorf("%w: %s has no live quote", ErrNoData, c.name)
	}
	return q.LastPrice(ctx, asset)
}

// Flush drops every cached series.
func (c *Cached) Flush() { c.cache.Flush() }
