// Package ledger replays the transactions of one asset into cumulative
// records and values them day by day against a price series.
package ledger

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"folio/internal/models"

	"github.com/zeebo/blake3"
)

// ErrOutOfOrder is returned when a transaction predates the last record.
var ErrOutOfOrder = errors.New("transaction out of chronological order")

// quantityEpsilon absorbs float residue when a position is sold out.
const quantityEpsilon = 1e-9

// Asset is the append-only history of one instrument and its derived state.
type Asset struct {
	Info         models.AssetInfo
	ShortName    string
	Transactions []models.Transaction
	Records      []models.Record

	Quantity     float64
	Buy          float64
	Sell         float64
	Fee          float64
	Dividend     float64
	LastDividend time.Time

	series    *Series
	status    models.Status
	lastPrice float64
	priced    bool
}

// NewAsset creates an empty ledger for the asset.
func NewAsset(info models.AssetInfo) *Asset {
	return &Asset{
		Info:      info,
		ShortName: ShortName(info.Name),
		status:    models.StatusOK,
	}
}

// AddTransaction applies t to the running totals, closes the previous record
// at t's timestamp and opens a new one.
func (a *Asset) AddTransaction(t models.Transaction) error {
	if n := len(a.Records); n > 0 && t.Timestamp.Before(a.Records[n-1].Start) {
		return fmt.Errorf("%w: %s at %s before %s", ErrOutOfOrder, a.Info.ID,
			t.Timestamp.Format(time.RFC3339), a.Records[n-1].Start.Format(time.RFC3339))
	}
	a.Transactions = append(a.Transactions, t)

	switch t.Kind {
	case models.KindDividend:
		a.Dividend += t.Value
		a.LastDividend = t.Timestamp
	default:
		a.Quantity += t.Quantity
		if math.Abs(a.Quantity) < quantityEpsilon {
			a.Quantity = 0
		}
		if t.Value < 0 {
			a.Buy += t.Value
		} else {
			a.Sell += t.Value
		}
		a.Fee += t.Fee
	}

	if n := len(a.Records); n > 0 {
		a.Records[n-1].End = t.Timestamp
	}
	a.Records = append(a.Records, models.Record{
		Start:    t.Timestamp,
		Quantity: a.Quantity,
		Buy:      a.Buy,
		Sell:     a.Sell,
		Fee:      a.Fee,
		Dividend: a.Dividend,
	})
	return nil
}

// RecordAt returns the record active at instant t.
func (a *Asset) RecordAt(t time.Time) (models.Record, bool) {
	for i := len(a.Records) - 1; i >= 0; i-- {
		r := a.Records[i]
		if r.Start.After(t) {
			continue
		}
		if r.Open() || t.Before(r.End) {
			return r, true
		}
		return models.Record{}, false
	}
	return models.Record{}, false
}

// FirstDay returns the calendar day of the first transaction.
func (a *Asset) FirstDay() (time.Time, bool) {
	if len(a.Records) == 0 {
		return time.Time{}, false
	}
	return models.Day(a.Records[0].Start), true
}

// ContentHash identifies the transaction list; equal hashes replay identically.
func (a *Asset) ContentHash() string {
	h := blake3.New()
	for _, t := range a.Transactions {
		fmt.Fprintf(h, "%s|%d|%s|%.8f|%.8f|%.8f;", t.ID, t.Timestamp.UnixNano(), t.Kind, t.Value, t.Quantity, t.Fee)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Status reports whether the asset could be valued in the last computation.
func (a *Asset) Status() models.Status { return a.status }

// MarkUnvalued records that no price data could be obtained for the asset.
func (a *Asset) MarkUnvalued(status models.Status) {
	a.series = nil
	a.status = status
	a.priced = false
	a.lastPrice = 0
}

// Restore reinstates a series computed earlier from the same transactions.
func (a *Asset) Restore(s *Series) {
	last, ok := s.Last()
	if !ok {
		a.MarkUnvalued(models.StatusNoPriceData)
		return
	}
	a.series = s
	a.status = models.StatusOK
	a.lastPrice = last.Price
	a.priced = true
}

// Series returns the derived daily series, nil when the asset is unvalued.
func (a *Asset) Series() *Series { return a.series }

// LastPrice returns the price used for today, if the asset is valued.
func (a *Asset) LastPrice() (float64, bool) { return a.lastPrice, a.priced }

// CurrentGain returns today's gain; ok is false when the gain is undefined.
func (a *Asset) CurrentGain() (gain float64, ok bool) {
	if a.series == nil {
		return 0, false
	}
	p, ok := a.series.Last()
	if !ok {
		return 0, false
	}
	return p.Gain, true
}

// ShortName strips fund family prefixes and caps the name for compact display.
func ShortName(name string) string {
	for _, prefix := range []string{"ISHARES ", "VANGUARD ", "LYXOR "} {
		name = strings.ReplaceAll(name, prefix, "")
	}
	if utf8.RuneCountInString(name) > 7 {
		return string([]rune(name)[:7]) + "..."
	}
	return name
}
