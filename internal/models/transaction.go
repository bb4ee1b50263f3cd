package models

import "time"

// Kind classifies a canonical transaction.
type Kind string

const (
	KindBuy      Kind = "buy"
	KindSell     Kind = "sell"
	KindDividend Kind = "dividend"
)

// RawRow is one pre-parsed line of a transaction feed, before normalization.
type RawRow struct {
	Timestamp   time.Time
	AssetID     string
	AssetName   string
	Venue       string
	Value       float64
	Quantity    float64
	Fee         float64
	Description string
	Currency    string
	// Type and Symbol are set by sources that know them inline (exchange APIs).
	Type   string
	Symbol string
}

// Batch is the output of one feed source for one refresh.
type Batch struct {
	Source string
	Rows   []RawRow
}

// Transaction is an immutable, normalized ledger event.
type Transaction struct {
	ID          string    `db:"id" json:"id"`
	Timestamp   time.Time `db:"ts" json:"timestamp"`
	AssetID     string    `db:"asset_id" json:"asset_id"`
	Value       float64   `db:"value" json:"value"`
	Quantity    float64   `db:"quantity" json:"quantity"`
	Fee         float64   `db:"fee" json:"fee"`
	Kind        Kind      `db:"kind" json:"kind"`
	Source      string    `db:"source" json:"source"`
	Description string    `db:"description" json:"description"`
}

// AssetInfo is the identity and metadata of an asset.
type AssetInfo struct {
	ID          string `db:"id" json:"id" yaml:"id" toml:"id"`
	Name        string `db:"name" json:"name" yaml:"name" toml:"name"`
	Type        string `db:"type" json:"type" yaml:"type" toml:"type"`
	Symbol      string `db:"symbol" json:"symbol" yaml:"symbol" toml:"symbol"`
	Venue       string `db:"venue" json:"venue" yaml:"venue" toml:"venue"`
	PriceSource string `db:"price_source" json:"price_source" yaml:"price_source" toml:"price_source"`
	// Currency overrides the quote currency reported by the price source.
	Currency string `db:"currency" json:"currency" yaml:"currency" toml:"currency"`
}

// CashCategory names a component of the cash decomposition.
type CashCategory string

const (
	CashPurchases        CashCategory = "purchases"
	CashSales            CashCategory = "sales"
	CashDividend         CashCategory = "dividend"
	CashBrokerageFees    CashCategory = "brokerage_fees"
	CashNonProductFees   CashCategory = "non_product_fees"
	CashDeposit          CashCategory = "deposit"
	CashFundCompensation CashCategory = "cash_fund_compensation"
	CashInterest         CashCategory = "interest"
	CashOther            CashCategory = "other"
)

// CashMovement is an account movement that does not touch any asset position.
type CashMovement struct {
	Timestamp   time.Time    `db:"ts" json:"timestamp"`
	Category    CashCategory `db:"category" json:"category"`
	Amount      float64      `db:"amount" json:"amount"`
	Source      string       `db:"source" json:"source"`
	Description string       `db:"description" json:"description"`
}
