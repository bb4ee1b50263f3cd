package pricing

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"folio/internal/config"
	"folio/internal/models"

	"github.com/sirupsen/logrus"
)

// FX converts prices quoted in foreign currencies into the base currency using
// forward-filled "base units per foreign unit" series.
type FX struct {
	base  string
	rates map[string]*Daily
}

func NewFX(base string) *FX {
	return &FX{base: strings.ToUpper(base), rates: map[string]*Daily{}}
}

// Base returns the base currency.
func (f *FX) Base() string { return f.base }

// Set registers the rate series of currency.
func (f *FX) Set(currency string, rates *Daily) {
	if rates == nil {
		return
	}
	f.rates[strings.ToUpper(currency)] = rates
}

// Currencies lists the foreign currencies that can be converted.
func (f *FX) Currencies() []string {
	out := make([]string, 0, len(f.rates))
	for c := range f.rates {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Load fetches the rate series of every configured pair from start through
// today. A pair that cannot be fetched is logged and skipped; assets quoted in
// that currency then fail conversion with ErrUnsupportedCurrency.
func (f *FX) Load(ctx context.Context, resolver Resolver, pairs map[string]config.PriceRef, start, today time.Time, log *logrus.Logger) {
	for cur, ref := range pairs {
		cur = strings.ToUpper(cur)
		if cur == f.base {
			continue
		}
		pair := models.AssetInfo{
			ID:          "FX:" + cur,
			Name:        cur + "/" + f.base,
			Type:        "FX",
			Symbol:      ref.Symbol,
			PriceSource: ref.Source,
			Currency:    f.base,
		}
		series, err := resolver.Prices(ctx, pair, start)
		if err != nil {
			log.Warnf("fx %s: fetch %s failed: %v", cur, ref.Symbol, err)
			continue
		}
		daily := ForwardFill(series.Quotes, today)
		if daily == nil {
			log.Warnf("fx %s: no rates for %s", cur, ref.Symbol)
			continue
		}
		f.Set(cur, daily)
	}
}

// Convert returns prices expressed in the base currency. Days before the
// first known rate are dropped.
func (f *FX) Convert(prices *Daily, currency string) (*Daily, error) {
	currency = strings.ToUpper(currency)
	if currency == "" || currency == f.base {
		return prices, nil
	}
	rates, ok := f.rates[currency]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedCurrency, currency)
	}
	if prices == nil {
		return nil, nil
	}

	start := prices.start
	if rates.start.After(start) {
		start = rates.start
	}
	end := prices.start.AddDate(0, 0, len(prices.prices)-1)
	if end.Before(start) {
		return nil, nil
	}
	out := &Daily{start: start, prices: make([]float64, models.DaysBetween(start, end)+1)}
	for i := range out.prices {
		day := start.AddDate(0, 0, i)
		p, _ := prices.At(day)
		out.prices[i] = p * rates.rateAt(day)
	}
	return out, nil
}

// ConvertValue converts a single amount observed on day.
func (f *FX) ConvertValue(v float64, currency string, day time.Time) (float64, error) {
	currency = strings.ToUpper(currency)
	if currency == "" || currency == f.base {
		return v, nil
	}
	rates, ok := f.rates[currency]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedCurrency, currency)
	}
	if _, ok := rates.At(day); !ok && day.Before(rates.start) {
		return 0, fmt.Errorf("%w: no %s rate on %s", ErrNoData, currency, day.Format(models.DayLayout))
	}
	return v * rates.rateAt(day), nil
}

// rateAt is At with the last rate carried past the end of the series.
func (d *Daily) rateAt(day time.Time) float64 {
	if r, ok := d.At(day); ok {
		return r
	}
	return d.prices[len(d.prices)-1]
}
