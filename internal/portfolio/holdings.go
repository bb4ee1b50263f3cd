package portfolio

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"folio/internal/ledger"
	"folio/internal/models"

	"github.com/shopspring/decimal"
)

// ErrUnknownWindow is returned for a window name outside All, 1Y, YTD, 1M,
// 1W and 1D.
var ErrUnknownWindow = errors.New("unknown window")

// WindowStart returns the first day of a lookback window relative to today.
func (p *Portfolio) WindowStart(window string) (time.Time, error) {
	today := p.today
	switch window {
	case "All":
		return p.start(), nil
	case "1Y":
		return today.AddDate(0, 0, -365), nil
	case "YTD":
		return time.Date(today.Year(), time.January, 1, 0, 0, 0, 0, time.UTC), nil
	case "1M":
		return today.AddDate(0, 0, -30), nil
	case "1W":
		return today.AddDate(0, 0, -7), nil
	case "1D":
		return today.AddDate(0, 0, -1), nil
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrUnknownWindow, window)
}

// windowBase returns the window start and whether deltas are measured
// against the state at the end of that day. All has no base and covers
// everything since inception.
func (p *Portfolio) windowBase(window string) (time.Time, bool, error) {
	since, err := p.WindowStart(window)
	if err != nil {
		return time.Time{}, false, err
	}
	return since, window != "All", nil
}

// sums accumulates a group row at full precision.
type sums struct {
	quantity, fee, buy, dividend, gain, value float64
}

// Holdings returns positions as of today with fee, dividend and gain
// measured since the end of the window start day. Unvalued assets are listed
// last with null gain, value and price and are left out of the group rows.
func (p *Portfolio) Holdings(window string) (*models.Snapshot, error) {
	if !p.refreshed {
		return nil, ErrNotRefreshed
	}
	since, hasBase, err := p.windowBase(window)
	if err != nil {
		return nil, err
	}

	groups := map[string]*sums{TotalKey: {}}
	for _, typ := range p.types() {
		groups[typ] = &sums{}
	}

	snap := &models.Snapshot{Window: window, Since: since}
	for _, a := range p.assets {
		row, s, valued := p.holding(a, since, hasBase)
		snap.Assets = append(snap.Assets, row)
		if !valued {
			continue
		}
		groups[TotalKey].add(s)
		if typ := p.typeOf(a); typ != "" {
			groups[typ].add(s)
		}
	}

	sort.SliceStable(snap.Assets, func(i, j int) bool {
		a, b := snap.Assets[i], snap.Assets[j]
		if a.Value.Valid != b.Value.Valid {
			return a.Value.Valid
		}
		if a.Value.Valid && !a.Value.Decimal.Equal(b.Value.Decimal) {
			return a.Value.Decimal.GreaterThan(b.Value.Decimal)
		}
		return a.Name < b.Name
	})

	for name, s := range groups {
		fractional := name == TotalKey || p.settings.Fractional(name)
		snap.Groups = append(snap.Groups, models.HoldingsRow{
			Name:        name,
			ShortName:   name,
			Type:        name,
			Group:       true,
			Quantity:    roundQuantity(s.quantity, fractional),
			Fee:         roundMoney(s.fee),
			Buy:         roundMoney(s.buy),
			Dividend:    roundMoney(s.dividend),
			Gain:        nullMoney(s.gain),
			GainPercent: nullMoney(percent(s.gain, s.buy)),
			Value:       nullMoney(s.value),
			Status:      models.StatusOK,
		})
	}
	sort.Slice(snap.Groups, func(i, j int) bool {
		a, b := snap.Groups[i], snap.Groups[j]
		if (a.Name == TotalKey) != (b.Name == TotalKey) {
			return a.Name == TotalKey
		}
		if !a.Value.Decimal.Equal(b.Value.Decimal) {
			return a.Value.Decimal.GreaterThan(b.Value.Decimal)
		}
		return a.Name < b.Name
	})
	return snap, nil
}

func (s *sums) add(o sums) {
	s.quantity += o.quantity
	s.fee += o.fee
	s.buy += o.buy
	s.dividend += o.dividend
	s.gain += o.gain
	s.value += o.value
}

// holding builds the row of one asset and reports whether it is valued.
// With a base, fee, dividend and gain are deltas against the asset's state at
// the end of base.
func (p *Portfolio) holding(a *ledger.Asset, base time.Time, hasBase bool) (models.HoldingsRow, sums, bool) {
	opts := p.options()
	now := stateOn(a, p.today)
	var then models.Record
	if hasBase {
		then = stateOn(a, base)
	}

	s := sums{
		quantity: a.Quantity,
		fee:      now.Fee - then.Fee,
		buy:      now.Buy,
		dividend: now.Dividend - then.Dividend,
	}
	if opts.IncludeFees {
		s.buy += now.Fee
	}
	row := models.HoldingsRow{
		Name:      a.Info.Name,
		ShortName: a.ShortName,
		Type:      p.typeOf(a),
		Symbol:    a.Info.Symbol,
		Quantity:  roundQuantity(a.Quantity, p.settings.Fractional(a.Info.Type)),
		Fee:       roundMoney(s.fee),
		Buy:       roundMoney(s.buy),
		Dividend:  roundMoney(s.dividend),
		Status:    a.Status(),
	}

	last, ok := a.Series().Last()
	if !ok {
		return row, s, false
	}
	s.value = last.Value
	s.gain = last.Gain
	if hasBase {
		if at, ok := a.Series().At(base); ok {
			s.gain -= at.Gain
		}
	}
	row.Gain = nullMoney(s.gain)
	row.GainPercent = nullMoney(percent(s.gain, s.buy))
	row.Value = nullMoney(s.value)
	row.Price = decimal.NullDecimal{Decimal: roundPrice(last.Price), Valid: true}
	return row, s, true
}

// stateOn returns the cumulative state at the end of day, zero before the
// first transaction.
func stateOn(a *ledger.Asset, day time.Time) models.Record {
	var out models.Record
	for _, r := range a.Records {
		if models.Day(r.Start).After(day) {
			break
		}
		out = r
	}
	return out
}

func roundQuantity(q float64, fractional bool) decimal.Decimal {
	d := decimal.NewFromFloat(q)
	if fractional {
		return d.Round(3)
	}
	return d.Truncate(0)
}
