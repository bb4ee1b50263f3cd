package pricing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"folio/internal/models"
)

// SourceNone marks a manually tracked asset that has no price source.
const SourceNone = "none"

// Router dispatches each asset to a named resolver: the asset's own
// price_source, else the default for its type, else the "default" entry.
type Router struct {
	resolvers map[string]Resolver
	quoters   map[string]LiveQuoter
	defaults  map[string]string
}

func NewRouter(defaults map[string]string) *Router {
	d := make(map[string]string, len(defaults))
	for typ, src := range defaults {
		d[strings.ToLower(typ)] = src
	}
	return &Router{
		resolvers: map[string]Resolver{},
		quoters:   map[string]LiveQuoter{},
		defaults:  d,
	}
}

// Register adds a named resolver.
func (r *Router) Register(name string, res Resolver) {
	r.resolvers[name] = res
}

// RegisterQuoter sets the live quoter of one asset, overriding its source.
func (r *Router) RegisterQuoter(assetID string, q LiveQuoter) {
	r.quoters[assetID] = q
}

// Source returns the resolver name used for asset.
func (r *Router) Source(asset models.AssetInfo) string {
	if asset.PriceSource != "" {
		return asset.PriceSource
	}
	if src, ok := r.defaults[strings.ToLower(asset.Type)]; ok {
		return src
	}
	return r.defaults["default"]
}

func (r *Router) resolver(asset models.AssetInfo) (Resolver, error) {
	name := r.Source(asset)
	if name == SourceNone {
		return nil, fmt.Errorf("%w: %s is tracked without a price source", ErrNoData, asset.ID)
	}
	res, ok := r.resolvers[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown price source %q for %s", ErrNoData, name, asset.ID)
	}
	return res, nil
}

func (r *Router) Prices(ctx context.Context, asset models.AssetInfo, start time.Time) (models.PriceSeries, error) {
	res, err := r.resolver(asset)
	if err != nil {
		return models.PriceSeries{}, err
	}
	return res.Prices(ctx, asset, start)
}

// LastPrice uses the asset's own quoter, else the live quote of its
// resolver when that resolver offers one.
func (r *Router) LastPrice(ctx context.Context, asset models.AssetInfo) (float64, string, error) {
	if q, ok := r.quoters[asset.ID]; ok {
		return q.LastPrice(ctx, asset)
	}
	res, err := r.resolver(asset)
	if err != nil {
		return 0, "", err
	}
	q, ok := res.(LiveQuoter)
	if !ok {
		return 0, "", fmt.Errorf("%w: %s has no live quote", ErrNoData, r.Source(asset))
	}
	return q.LastPrice(ctx, asset)
}
