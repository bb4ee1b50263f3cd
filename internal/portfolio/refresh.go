package portfolio

import (
	"context"
	"fmt"
	"time"

	"folio/internal/ledger"
	"folio/internal/models"
	"folio/internal/normalizer"
	"folio/internal/pricing"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Refresh prices and values every asset. Assets are independent, so they are
// fetched and computed concurrently, each worker owning one asset. Per-asset
// failures and timeouts leave that asset unvalued and are reported by Issues;
// only cancellation of ctx fails the refresh.
func (p *Portfolio) Refresh(ctx context.Context, resolver pricing.Resolver, quoter pricing.LiveQuoter) error {
	today := models.Day(p.now())
	p.today = today
	p.fx = pricing.NewFX(p.settings.BaseCurrency)
	if first, ok := p.firstDay(); ok {
		p.fx.Load(ctx, resolver, p.settings.FX, p.fetchStart(first), today, p.log)
	}

	errs := make([]error, len(p.assets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.settings.Workers)
	for i, a := range p.assets {
		i, a := i, a
		g.Go(func() error {
			errs[i] = p.refreshAsset(gctx, a, resolver, quoter, today)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("refresh cancelled: %w", err)
	}

	p.failures = map[string]error{}
	valued := 0
	for i, a := range p.assets {
		if errs[i] != nil {
			p.failures[a.Info.ID] = errs[i]
			if a.Status() != models.StatusUnresolved {
				p.log.Warnf("asset %s unvalued: %v", a.Info.ID, errs[i])
			}
			continue
		}
		valued++
	}
	p.refreshed = true
	p.log.WithFields(logrus.Fields{
		"assets":   len(p.assets),
		"valued":   valued,
		"degraded": len(p.assets) - valued,
		"today":    today.Format(models.DayLayout),
	}).Info("portfolio refreshed")
	return nil
}

func (p *Portfolio) refreshAsset(ctx context.Context, a *ledger.Asset, resolver pricing.Resolver, quoter pricing.LiveQuoter, today time.Time) error {
	if !p.resolved[a.Info.ID] {
		a.MarkUnvalued(models.StatusUnresolved)
		return &normalizer.UnresolvedAssetError{AssetID: a.Info.ID, Name: a.Info.Name}
	}
	ctx, cancel := context.WithTimeout(ctx, p.settings.Timeout())
	defer cancel()

	opts := p.options()
	live, liveOK := p.live(ctx, a, quoter, today)

	var key string
	if p.cache != nil {
		key = seriesKey(a, today, live, liveOK, opts)
		if s, ok := p.cache.get(key); ok {
			a.Restore(s)
			return nil
		}
	}

	first, _ := a.FirstDay()
	var lookup ledger.PriceLookup
	daily, err := p.history(ctx, resolver, a, first)
	switch {
	case err != nil && !liveOK:
		a.MarkUnvalued(models.StatusNoPriceData)
		return &ledger.NoPriceDataError{AssetID: a.Info.ID, Reason: err.Error()}
	case err != nil:
		p.log.Debugf("asset %s: no history, valuing from live quote: %v", a.Info.ID, err)
	case daily != nil:
		lookup = daily
	}

	s, err := a.Compute(lookup, live, liveOK, opts, today)
	if err != nil {
		return err
	}
	if p.cache != nil {
		p.cache.set(key, s)
	}
	return nil
}

// history fetches, fills and converts the price series of a from a few days
// before its first transaction, so a first day without a quote can reuse the
// previous close.
func (p *Portfolio) history(ctx context.Context, resolver pricing.Resolver, a *ledger.Asset, first time.Time) (*pricing.Daily, error) {
	series, err := resolver.Prices(ctx, a.Info, p.fetchStart(first))
	if err != nil {
		return nil, err
	}
	currency := series.Currency
	if a.Info.Currency != "" {
		currency = a.Info.Currency
	}
	daily := pricing.ForwardFill(series.Quotes, p.today)
	if daily == nil {
		return nil, pricing.ErrNoData
	}
	return p.fx.Convert(daily, currency)
}

// live returns today's quote in the base currency. Closed positions skip
// the lookup since their value no longer depends on the price.
func (p *Portfolio) live(ctx context.Context, a *ledger.Asset, quoter pricing.LiveQuoter, today time.Time) (float64, bool) {
	if quoter == nil || a.Quantity == 0 {
		return 0, false
	}
	price, currency, err := quoter.LastPrice(ctx, a.Info)
	if err != nil || price <= 0 {
		p.log.Debugf("asset %s: no live quote: %v", a.Info.ID, err)
		return 0, false
	}
	if a.Info.Currency != "" {
		currency = a.Info.Currency
	}
	converted, err := p.fx.ConvertValue(price, currency, today)
	if err != nil {
		p.log.Debugf("asset %s: live quote not converted: %v", a.Info.ID, err)
		return 0, false
	}
	return converted, true
}

// firstDay returns the earliest first day across assets.
func (p *Portfolio) firstDay() (time.Time, bool) {
	var first time.Time
	found := false
	for _, a := range p.assets {
		d, ok := a.FirstDay()
		if ok && (!found || d.Before(first)) {
			first, found = d, true
		}
	}
	return first, found
}

func (p *Portfolio) fetchStart(first time.Time) time.Time {
	return first.AddDate(0, 0, -p.settings.FetchPaddingDays)
}
