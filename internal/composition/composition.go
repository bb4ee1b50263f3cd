// Package composition looks through funds into their country, region,
// sector and holding weights and aggregates them into portfolio exposure.
package composition

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"folio/internal/clients/eodhd"
	"folio/internal/config"
	"folio/internal/models"

	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
)

// ErrNoComposition means nothing is known about the asset's look-through.
var ErrNoComposition = errors.New("no composition")

// Resolver returns percentage weights for one asset.
type Resolver interface {
	Composition(ctx context.Context, asset models.AssetInfo) (models.Composition, error)
}

// Static serves compositions written in the settings file.
type Static map[string]models.Composition

func (s Static) Composition(_ context.Context, asset models.AssetInfo) (models.Composition, error) {
	c, ok := s[asset.ID]
	if !ok {
		return models.Composition{}, fmt.Errorf("%w: %s", ErrNoComposition, asset.ID)
	}
	return c, nil
}

// EODHD reads ETF look-through from the fundamentals endpoint. Fundamentals
// change slowly so answers are cached for the life of the cache.
type EODHD struct {
	client *eodhd.Client
	cache  *cache.Cache
}

func NewEODHD(client *eodhd.Client, c *cache.Cache) *EODHD {
	return &EODHD{client: client, cache: c}
}

func (e *EODHD) Composition(ctx context.Context, asset models.AssetInfo) (models.Composition, error) {
	if asset.Symbol == "" {
		return models.Composition{}, fmt.Errorf("%w: %s has no symbol", ErrNoComposition, asset.ID)
	}
	if v, ok := e.cache.Get(asset.Symbol); ok {
		return v.(models.Composition), nil
	}
	f, err := e.client.GetFundamentals(ctx, asset.Symbol)
	if err != nil {
		return models.Composition{}, fmt.Errorf("fundamentals %s: %w", asset.Symbol, err)
	}
	if !strings.EqualFold(f.Type, "ETF") || (len(f.Holdings) == 0 && len(f.Sectors) == 0 && len(f.Regions) == 0) {
		return models.Composition{}, fmt.Errorf("%w: %s is not a fund with look-through data", ErrNoComposition, asset.Symbol)
	}
	c := models.Composition{Regions: f.Regions, Sectors: f.Sectors, Holdings: f.Holdings}
	e.cache.SetDefault(asset.Symbol, c)
	return c, nil
}

// Chain returns the first composition any resolver knows.
type Chain []Resolver

func (c Chain) Composition(ctx context.Context, asset models.AssetInfo) (models.Composition, error) {
	var errs []error
	for _, r := range c {
		comp, err := r.Composition(ctx, asset)
		if err == nil {
			return comp, nil
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return models.Composition{}, fmt.Errorf("%w: %s", ErrNoComposition, asset.ID)
	}
	return models.Composition{}, errors.Join(errs...)
}

// NewFromSettings chains the compositions written in settings before the
// EODHD fundamentals, when an API key is configured.
func NewFromSettings(s *config.Settings, log *logrus.Logger) Chain {
	static := Static{}
	for id, a := range s.Assets {
		if a.Composition != nil {
			static[id] = *a.Composition
		}
	}
	chain := Chain{static}
	if s.EODHD.APIKey != "" {
		client := eodhd.NewFromConfig(s.EODHD, log)
		chain = append(chain, NewEODHD(client, cache.New(24*time.Hour, time.Hour)))
	}
	return chain
}
