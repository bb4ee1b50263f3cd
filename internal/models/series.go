package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// DayLayout is the layout used for calendar days in tables and storage.
const DayLayout = "2006-01-02"

// Day truncates t to its calendar day at midnight UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the number of calendar days from a to b.
func DaysBetween(a, b time.Time) int {
	return int(Day(b).Sub(Day(a)).Hours() / 24)
}

// Record is the cumulative ledger state of one asset valid over [Start, End).
// A zero End means the record is still open.
type Record struct {
	Start    time.Time `json:"start_time"`
	End      time.Time `json:"end_time"`
	Quantity float64   `json:"quantity"`
	Buy      float64   `json:"cumulative_buy"`
	Sell     float64   `json:"cumulative_sell"`
	Fee      float64   `json:"cumulative_fee"`
	Dividend float64   `json:"cumulative_dividend"`
}

// Open reports whether the record has not been closed by a later transaction.
func (r Record) Open() bool { return r.End.IsZero() }

// Quote is one sampled price.
type Quote struct {
	Date  time.Time `json:"date"`
	Price float64   `json:"price"`
}

// PriceSeries is what a price resolver returns: ascending, possibly sparse quotes.
type PriceSeries struct {
	Quotes   []Quote
	Currency string
}

// DailyPoint is the derived state of one asset on one calendar day.
type DailyPoint struct {
	Date     time.Time `json:"date"`
	Gain     float64   `json:"gain"`
	Value    float64   `json:"value"`
	BuyCost  float64   `json:"buy_cost"`
	Price    float64   `json:"price"`
	Fee      float64   `json:"fee"`
	Dividend float64   `json:"dividend"`
	Quantity float64   `json:"quantity"`
}

// Status flags degraded assets in refresh outputs.
type Status string

const (
	StatusOK          Status = "ok"
	StatusNoPriceData Status = "no_price_data"
	StatusLeadingGap  Status = "leading_gap"
	StatusUnresolved  Status = "unresolved"
)

// HoldingsRow is one line of a holdings snapshot, either an asset or a group.
type HoldingsRow struct {
	Name        string              `db:"name" json:"name"`
	ShortName   string              `db:"short_name" json:"short_name"`
	Type        string              `db:"type" json:"type"`
	Symbol      string              `db:"symbol" json:"symbol"`
	Group       bool                `db:"is_group" json:"group"`
	Quantity    decimal.Decimal     `db:"quantity" json:"quantity"`
	Fee         decimal.Decimal     `db:"fee" json:"fee"`
	Buy         decimal.Decimal     `db:"buy" json:"buy"`
	Dividend    decimal.Decimal     `db:"dividend" json:"dividend"`
	Gain        decimal.NullDecimal `db:"gain" json:"gain"`
	GainPercent decimal.NullDecimal `db:"gain_percent" json:"gain_p"`
	Value       decimal.NullDecimal `db:"value" json:"value"`
	Price       decimal.NullDecimal `db:"price" json:"price"`
	Status      Status              `db:"status" json:"status"`
}

// Snapshot is the holdings view for one lookback window.
type Snapshot struct {
	Window string        `json:"window"`
	Since  time.Time     `json:"since"`
	Assets []HoldingsRow `json:"assets"`
	Groups []HoldingsRow `json:"groups"`
}

// TableRow is one day of a wide table; absent keys mean "no value that day".
type TableRow struct {
	Date   time.Time                  `json:"date"`
	Values map[string]decimal.Decimal `json:"values"`
}

// Table is a wide day-by-column table such as gains or values.
type Table struct {
	Name    string     `json:"name"`
	Columns []string   `json:"columns"`
	Rows    []TableRow `json:"rows"`
}

// Composition is a fund look-through as percentage weights.
type Composition struct {
	Countries map[string]float64 `json:"countries" yaml:"countries" toml:"countries"`
	Regions   map[string]float64 `json:"regions" yaml:"regions" toml:"regions"`
	Sectors   map[string]float64 `json:"sectors" yaml:"sectors" toml:"sectors"`
	Holdings  map[string]float64 `json:"holdings" yaml:"holdings" toml:"holdings"`
}

// Weight is one line of an exposure breakdown.
type Weight struct {
	Key    string          `json:"key"`
	Weight decimal.Decimal `json:"weight"`
}

// Exposure is a value-weighted breakdown of the portfolio.
type Exposure struct {
	Countries []Weight `json:"countries"`
	Regions   []Weight `json:"regions"`
	Sectors   []Weight `json:"sectors"`
	Holdings  []Weight `json:"holdings"`
}

// SummaryLine is one component of the cash/gain summary.
type SummaryLine struct {
	Name    string          `json:"name"`
	Amount  decimal.Decimal `json:"amount"`
	Display string          `json:"display"`
}

// Summary is the cash and total gain decomposition for a window.
type Summary struct {
	Window string        `json:"window"`
	Lines  []SummaryLine `json:"lines"`
}

// Issue flags one degraded asset or dropped row of a refresh.
type Issue struct {
	AssetID string `db:"asset_id" json:"asset_id"`
	Kind    string `db:"kind" json:"kind"`
	Message string `db:"message" json:"message"`
}
