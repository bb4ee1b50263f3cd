package ledger

import (
	"fmt"
	"time"

	"folio/internal/models"
)

// PriceLookup answers the price of a calendar day in the base currency.
type PriceLookup interface {
	At(day time.Time) (float64, bool)
}

type noPrices struct{}

func (noPrices) At(time.Time) (float64, bool) { return 0, false }

// Options selects what the gain includes.
type Options struct {
	IncludeFees      bool
	IncludeDividends bool
}

// NoPriceDataError reports an asset that cannot be valued.
type NoPriceDataError struct {
	AssetID string
	Reason  string
}

func (e *NoPriceDataError) Error() string {
	return fmt.Sprintf("no price data for %s: %s", e.AssetID, e.Reason)
}

// Series is a contiguous run of daily points starting at Start.
type Series struct {
	Start  time.Time
	Points []models.DailyPoint
}

// At returns the point of day, if the series covers it.
func (s *Series) At(day time.Time) (models.DailyPoint, bool) {
	if s == nil || len(s.Points) == 0 {
		return models.DailyPoint{}, false
	}
	i := models.DaysBetween(s.Start, day)
	if i < 0 || i >= len(s.Points) {
		return models.DailyPoint{}, false
	}
	return s.Points[i], true
}

// Last returns the most recent point.
func (s *Series) Last() (models.DailyPoint, bool) {
	if s == nil || len(s.Points) == 0 {
		return models.DailyPoint{}, false
	}
	return s.Points[len(s.Points)-1], true
}

// Len returns the number of days covered.
func (s *Series) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Points)
}

// Compute values every day from the first owned day through today.
//
// prices must already be in the base currency. live, when ok, replaces the
// price of today. A missing quote on the first owned day leaves the asset
// unvalued; later gaps carry the last known price forward. The asset's derived
// state is replaced on every call.
func (a *Asset) Compute(prices PriceLookup, live float64, liveOK bool, opts Options, today time.Time) (*Series, error) {
	first, ok := a.FirstDay()
	if !ok {
		a.MarkUnvalued(models.StatusNoPriceData)
		return nil, &NoPriceDataError{AssetID: a.Info.ID, Reason: "no transactions"}
	}
	if prices == nil {
		if !liveOK {
			a.MarkUnvalued(models.StatusNoPriceData)
			return nil, &NoPriceDataError{AssetID: a.Info.ID, Reason: "no price series"}
		}
		prices = noPrices{}
	}
	today = models.Day(today)
	if first.After(today) {
		a.MarkUnvalued(models.StatusLeadingGap)
		return nil, &NoPriceDataError{AssetID: a.Info.ID, Reason: "first transaction after today"}
	}
	price, ok := prices.At(first)
	if !ok && !(liveOK && first.Equal(today)) {
		a.MarkUnvalued(models.StatusLeadingGap)
		return nil, &NoPriceDataError{AssetID: a.Info.ID, Reason: "no quote on first owned day " + first.Format(models.DayLayout)}
	}

	days := models.DaysBetween(first, today) + 1
	s := &Series{Start: first, Points: make([]models.DailyPoint, 0, days)}
	cursor := 0
	for day := first; !day.After(today); day = day.AddDate(0, 0, 1) {
		// the active record is the last one opened on or before day
		for cursor+1 < len(a.Records) && !models.Day(a.Records[cursor+1].Start).After(day) {
			cursor++
		}
		if p, ok := prices.At(day); ok {
			price = p
		}
		if liveOK && day.Equal(today) {
			price = live
		}
		s.Points = append(s.Points, point(day, price, a.Records[cursor], opts))
	}

	a.series = s
	a.status = models.StatusOK
	a.lastPrice = price
	a.priced = true
	return s, nil
}

func point(day time.Time, price float64, r models.Record, opts Options) models.DailyPoint {
	value := price * r.Quantity
	gain := value + r.Sell + r.Buy
	buyCost := r.Buy
	if opts.IncludeFees {
		gain += r.Fee
		buyCost += r.Fee
	}
	if opts.IncludeDividends {
		gain += r.Dividend
	}
	return models.DailyPoint{
		Date:     day,
		Gain:     gain,
		Value:    value,
		BuyCost:  buyCost,
		Price:    price,
		Fee:      r.Fee,
		Dividend: r.Dividend,
		Quantity: r.Quantity,
	}
}
