// Package database persists refresh outputs and the data read back across
// refreshes: asset metadata, manual prices and the normalized feed.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"folio/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// ErrNoReport means no refresh has completed yet.
var ErrNoReport = errors.New("no stored report")

type Repo struct {
	db  *sqlx.DB
	log *logrus.Logger
}

func New(db *sqlx.DB, log *logrus.Logger) *Repo {
	return &Repo{db: db, log: log}
}

const upsertAsset = `INSERT INTO assets (id, name, type, symbol, venue, price_source, currency)
VALUES (:id, :name, :type, :symbol, :venue, :price_source, :currency)
ON CONFLICT (id) DO UPDATE SET name = excluded.name, type = excluded.type, symbol = excluded.symbol,
venue = excluded.venue, price_source = excluded.price_source, currency = excluded.currency`

func (r *Repo) UpsertAsset(ctx context.Context, a models.AssetInfo) error {
	_, err := r.db.NamedExecContext(ctx, upsertAsset, a)
	return err
}

// UpsertAssets stores the metadata of every asset in one transaction.
func (r *Repo) UpsertAssets(ctx context.Context, assets []models.AssetInfo) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, a := range assets {
		if _, err := tx.NamedExecContext(ctx, upsertAsset, a); err != nil {
			return fmt.Errorf("upsert asset %s: %w", a.ID, err)
		}
	}
	return tx.Commit()
}

// LookupAsset returns stored metadata of id. Rows without a type do not
// count as resolved.
func (r *Repo) LookupAsset(ctx context.Context, id string) (models.AssetInfo, bool, error) {
	var a models.AssetInfo
	err := r.db.GetContext(ctx, &a, r.db.Rebind(`SELECT id, name, type, symbol, venue, price_source, currency FROM assets WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return models.AssetInfo{}, false, nil
	}
	if err != nil {
		return models.AssetInfo{}, false, err
	}
	return a, a.Type != "", nil
}

func (r *Repo) Assets(ctx context.Context) ([]models.AssetInfo, error) {
	res := []models.AssetInfo{}
	err := r.db.SelectContext(ctx, &res, `SELECT id, name, type, symbol, venue, price_source, currency FROM assets ORDER BY id`)
	return res, err
}

// UpsertPrice records the price of an asset on one day, replacing any
// earlier value for that day.
func (r *Repo) UpsertPrice(ctx context.Context, assetID string, day time.Time, price decimal.Decimal, currency string) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`INSERT INTO price_history (asset_id, day, price, currency) VALUES (?, ?, ?, ?)
ON CONFLICT (asset_id, day) DO UPDATE SET price = excluded.price, currency = excluded.currency`),
		assetID, models.Day(day).Format(models.DayLayout), price.StringFixed(4), strings.ToUpper(currency))
	return err
}

// PriceHistory returns stored quotes of an asset from from on, ascending.
// The currency is the most recent non-empty one.
func (r *Repo) PriceHistory(ctx context.Context, assetID string, from time.Time) ([]models.Quote, string, error) {
	rows, err := r.db.QueryxContext(ctx, r.db.Rebind(`SELECT day, price, currency FROM price_history WHERE asset_id = ? AND day >= ? ORDER BY day ASC`),
		assetID, models.Day(from).Format(models.DayLayout))
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	var (
		quotes   []models.Quote
		currency string
	)
	for rows.Next() {
		var (
			day   string
			price decimal.Decimal
			cur   string
		)
		if err := rows.Scan(&day, &price, &cur); err != nil {
			r.log.Warnf("scan price of %s failed: %v", assetID, err)
			continue
		}
		d, err := time.Parse(models.DayLayout, day)
		if err != nil {
			r.log.Warnf("price of %s has bad day %q", assetID, day)
			continue
		}
		f, _ := price.Float64()
		quotes = append(quotes, models.Quote{Date: d, Price: f})
		if cur != "" {
			currency = cur
		}
	}
	return quotes, currency, rows.Err()
}

// Transactions returns the normalized feed of the last successful refresh in
// its original order.
func (r *Repo) Transactions(ctx context.Context) ([]models.Transaction, error) {
	res := []models.Transaction{}
	err := r.db.SelectContext(ctx, &res, `SELECT id, ts, asset_id, value, quantity, fee, kind, source, description FROM transactions ORDER BY ord`)
	for i := range res {
		res[i].Timestamp = res[i].Timestamp.UTC()
	}
	return res, err
}

func (r *Repo) CashMovements(ctx context.Context) ([]models.CashMovement, error) {
	res := []models.CashMovement{}
	err := r.db.SelectContext(ctx, &res, `SELECT ts, category, amount, source, description FROM cash_movements ORDER BY ord`)
	for i := range res {
		res[i].Timestamp = res[i].Timestamp.UTC()
	}
	return res, err
}

// StartRefresh records a refresh attempt as running.
func (r *Repo) StartRefresh(ctx context.Context, id string, started time.Time) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`INSERT INTO refreshes (id, started_at, status) VALUES (?, ?, ?)`),
		id, started.UTC(), models.RefreshRunning)
	return err
}

// FinishRefresh stores the outcome of a refresh attempt.
func (r *Repo) FinishRefresh(ctx context.Context, run models.Refresh) error {
	finished := time.Now().UTC()
	if run.FinishedAt != nil {
		finished = run.FinishedAt.UTC()
	}
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`UPDATE refreshes SET finished_at = ?, today = ?, status = ?, transactions = ?, dropped = ?, missing = ?, error = ? WHERE id = ?`),
		finished, run.Today, run.Status, run.Transactions, run.Dropped, run.Missing, run.Error, run.ID)
	return err
}

// Refreshes lists the most recent refresh attempts first.
func (r *Repo) Refreshes(ctx context.Context, limit int) ([]models.Refresh, error) {
	res := []models.Refresh{}
	err := r.db.SelectContext(ctx, &res, r.db.Rebind(`SELECT id, started_at, finished_at, today, status, transactions, dropped, missing, error
FROM refreshes ORDER BY started_at DESC LIMIT ?`), limit)
	return res, err
}
