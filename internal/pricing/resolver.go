// Package pricing resolves historical and live prices for assets and converts
// them to the base currency.
package pricing

import (
	"context"
	"errors"
	"math"
	"sort"
	"time"

	"folio/internal/models"
)

var (
	// ErrNoData means the source knows nothing about the asset.
	ErrNoData = errors.New("no price data")
	// ErrUnsupportedCurrency means no FX series converts the quote currency.
	ErrUnsupportedCurrency = errors.New("unsupported currency")
)

// Resolver returns the historical prices of an asset from start on. Quotes are
// ascending and may be sparse.
type Resolver interface {
	Prices(ctx context.Context, asset models.AssetInfo, start time.Time) (models.PriceSeries, error)
}

// LiveQuoter returns the current price of an asset in its quote currency.
type LiveQuoter interface {
	LastPrice(ctx context.Context, asset models.AssetInfo) (float64, string, error)
}

// Daily is a dense day-indexed price series.
type Daily struct {
	start  time.Time
	prices []float64
}

// ForwardFill expands sparse quotes into one price per day from the first
// quote through to, carrying the last known price into days without a quote.
// Non-positive and non-finite quotes are ignored.
func ForwardFill(quotes []models.Quote, to time.Time) *Daily {
	valid := make([]models.Quote, 0, len(quotes))
	for _, q := range quotes {
		if q.Price > 0 && !math.IsInf(q.Price, 0) && !math.IsNaN(q.Price) {
			valid = append(valid, q)
		}
	}
	if len(valid) == 0 {
		return nil
	}
	sort.SliceStable(valid, func(i, j int) bool { return valid[i].Date.Before(valid[j].Date) })

	start := models.Day(valid[0].Date)
	to = models.Day(to)
	if to.Before(start) {
		return nil
	}
	d := &Daily{start: start, prices: make([]float64, models.DaysBetween(start, to)+1)}
	next := 0
	last := valid[0].Price
	for i := range d.prices {
		day := start.AddDate(0, 0, i)
		for next < len(valid) && !models.Day(valid[next].Date).After(day) {
			last = valid[next].Price
			next++
		}
		d.prices[i] = last
	}
	return d
}

// At returns the price of day.
func (d *Daily) At(day time.Time) (float64, bool) {
	if d == nil {
		return 0, false
	}
	i := models.DaysBetween(d.start, day)
	if i < 0 || i >= len(d.prices) {
		return 0, false
	}
	return d.prices[i], true
}

// Start returns the first covered day.
func (d *Daily) Start() time.Time {
	if d == nil {
		return time.Time{}
	}
	return d.start
}

// Len returns the number of covered days.
func (d *Daily) Len() int {
	if d == nil {
		return 0
	}
	return len(d.prices)
}
