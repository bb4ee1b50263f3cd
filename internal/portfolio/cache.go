package portfolio

import (
	"fmt"
	"time"

	"folio/internal/ledger"
	"folio/internal/models"

	"github.com/patrickmn/go-cache"
)

// SeriesCache keeps computed series across refreshes. Entries are keyed by
// the asset's transaction hash so any new transaction misses the cache.
type SeriesCache struct {
	c *cache.Cache
}

func NewSeriesCache(ttl time.Duration) *SeriesCache {
	return &SeriesCache{c: cache.New(ttl, 2*ttl)}
}

func (s *SeriesCache) get(key string) (*ledger.Series, bool) {
	v, ok := s.c.Get(key)
	if !ok {
		return nil, false
	}
	return v.(*ledger.Series), true
}

func (s *SeriesCache) set(key string, series *ledger.Series) {
	s.c.SetDefault(key, series)
}

// Flush drops every entry, e.g. after a manual price was recorded.
func (s *SeriesCache) Flush() { s.c.Flush() }

// Len returns the number of cached series.
func (s *SeriesCache) Len() int { return s.c.ItemCount() }

func seriesKey(a *ledger.Asset, today time.Time, live float64, liveOK bool, opts ledger.Options) string {
	return fmt.Sprintf("%s|%s|%s|%t|%.8f|%t|%t", a.Info.ID, a.ContentHash(),
		today.Format(models.DayLayout), liveOK, live, opts.IncludeFees, opts.IncludeDividends)
}
