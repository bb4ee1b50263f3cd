package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"folio/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

// derived tables are replaced wholesale by every successful refresh
var derivedTables = []string{
	"transactions", "cash_movements", "daily_series", "series_columns",
	"holdings", "holdings_windows", "summaries", "exposures",
}

// SaveReport replaces every derived table with rep inside one transaction
// and stores the issues of its run.
func (r *Repo) SaveReport(ctx context.Context, rep *models.Report) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, table := range derivedTables {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	err = insertEach(ctx, tx, `INSERT INTO transactions (id, ord, ts, asset_id, value, quantity, fee, kind, source, description) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		len(rep.Transactions), func(i int) []interface{} {
			t := rep.Transactions[i]
			return []interface{}{t.ID, i, t.Timestamp.UTC(), t.AssetID, t.Value, t.Quantity, t.Fee, t.Kind, t.Source, t.Description}
		})
	if err != nil {
		return fmt.Errorf("save transactions: %w", err)
	}

	err = insertEach(ctx, tx, `INSERT INTO cash_movements (ord, ts, category, amount, source, description) VALUES (?, ?, ?, ?, ?, ?)`,
		len(rep.Cash), func(i int) []interface{} {
			m := rep.Cash[i]
			return []interface{}{i, m.Timestamp.UTC(), m.Category, m.Amount, m.Source, m.Description}
		})
	if err != nil {
		return fmt.Errorf("save cash movements: %w", err)
	}

	if err := saveTables(ctx, tx, rep.Tables); err != nil {
		return err
	}
	if err := saveHoldings(ctx, tx, rep.Holdings); err != nil {
		return err
	}

	type summaryLine struct {
		window string
		ord    int
		line   models.SummaryLine
	}
	var lines []summaryLine
	for _, s := range rep.Summaries {
		for i, l := range s.Lines {
			lines = append(lines, summaryLine{s.Window, i, l})
		}
	}
	err = insertEach(ctx, tx, `INSERT INTO summaries (window_name, ord, component, amount, display) VALUES (?, ?, ?, ?, ?)`,
		len(lines), func(i int) []interface{} {
			l := lines[i]
			return []interface{}{l.window, l.ord, l.line.Name, l.line.Amount, l.line.Display}
		})
	if err != nil {
		return fmt.Errorf("save summaries: %w", err)
	}

	type weight struct {
		dimension string
		ord       int
		w         models.Weight
	}
	var weights []weight
	for dim, ws := range exposureDimensions(&rep.Exposure) {
		for i, w := range *ws {
			weights = append(weights, weight{dim, i, w})
		}
	}
	err = insertEach(ctx, tx, `INSERT INTO exposures (dimension, ord, label, weight) VALUES (?, ?, ?, ?)`,
		len(weights), func(i int) []interface{} {
			w := weights[i]
			return []interface{}{w.dimension, w.ord, w.w.Key, w.w.Weight}
		})
	if err != nil {
		return fmt.Errorf("save exposure: %w", err)
	}

	if rep.RunID != "" {
		if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM refresh_issues WHERE refresh_id = ?`), rep.RunID); err != nil {
			return err
		}
		err = insertEach(ctx, tx, `INSERT INTO refresh_issues (refresh_id, ord, asset_id, kind, message) VALUES (?, ?, ?, ?, ?)`,
			len(rep.Issues), func(i int) []interface{} {
				is := rep.Issues[i]
				return []interface{}{rep.RunID, i, is.AssetID, is.Kind, is.Message}
			})
		if err != nil {
			return fmt.Errorf("save issues: %w", err)
		}
	}
	return tx.Commit()
}

func saveTables(ctx context.Context, tx *sqlx.Tx, tables []models.Table) error {
	type cell struct {
		series, day, col string
		amount           decimal.Decimal
	}
	type column struct {
		series         string
		seriesOrd, ord int
		col            string
	}
	var (
		cells   []cell
		columns []column
	)
	for ti, t := range tables {
		for ci, c := range t.Columns {
			columns = append(columns, column{t.Name, ti, ci, c})
		}
		for _, row := range t.Rows {
			day := row.Date.Format(models.DayLayout)
			for col, v := range row.Values {
				cells = append(cells, cell{t.Name, day, col, v})
			}
		}
	}
	err := insertEach(ctx, tx, `INSERT INTO series_columns (series, series_ord, ord, col) VALUES (?, ?, ?, ?)`,
		len(columns), func(i int) []interface{} {
			c := columns[i]
			return []interface{}{c.series, c.seriesOrd, c.ord, c.col}
		})
	if err != nil {
		return fmt.Errorf("save series columns: %w", err)
	}
	err = insertEach(ctx, tx, `INSERT INTO daily_series (series, day, col, amount) VALUES (?, ?, ?, ?)`,
		len(cells), func(i int) []interface{} {
			c := cells[i]
			return []interface{}{c.series, c.day, c.col, c.amount}
		})
	if err != nil {
		return fmt.Errorf("save daily series: %w", err)
	}
	return nil
}

func saveHoldings(ctx context.Context, tx *sqlx.Tx, snaps []models.Snapshot) error {
	type entry struct {
		window string
		ord    int
		row    models.HoldingsRow
	}
	var rows []entry
	for _, s := range snaps {
		n := 0
		for _, group := range [][]models.HoldingsRow{s.Assets, s.Groups} {
			for _, h := range group {
				rows = append(rows, entry{s.Window, n, h})
				n++
			}
		}
	}
	err := insertEach(ctx, tx, `INSERT INTO holdings_windows (window_name, ord, since) VALUES (?, ?, ?)`,
		len(snaps), func(i int) []interface{} {
			return []interface{}{snaps[i].Window, i, snaps[i].Since.Format(models.DayLayout)}
		})
	if err != nil {
		return fmt.Errorf("save holdings windows: %w", err)
	}
	err = insertEach(ctx, tx, `INSERT INTO holdings (window_name, ord, name, short_name, type, symbol, is_group, quantity, fee, buy, dividend, gain, gain_percent, value, price, status)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		len(rows), func(i int) []interface{} {
			e := rows[i]
			h := e.row
			return []interface{}{e.window, e.ord, h.Name, h.ShortName, h.Type, h.Symbol, h.Group,
				h.Quantity, h.Fee, h.Buy, h.Dividend, h.Gain, h.GainPercent, h.Value, h.Price, h.Status}
		})
	if err != nil {
		return fmt.Errorf("save holdings: %w", err)
	}
	return nil
}

// insertEach runs one prepared statement n times.
func insertEach(ctx context.Context, tx *sqlx.Tx, query string, n int, args func(i int) []interface{}) error {
	if n == 0 {
		return nil
	}
	stmt, err := tx.PreparexContext(ctx, tx.Rebind(query))
	if err != nil {
		return err
	}
	defer stmt.Close()
	for i := 0; i < n; i++ {
		if _, err := stmt.ExecContext(ctx, args(i)...); err != nil {
			return err
		}
	}
	return nil
}

func exposureDimensions(e *models.Exposure) map[string]*[]models.Weight {
	return map[string]*[]models.Weight{
		"countries": &e.Countries,
		"regions":   &e.Regions,
		"sectors":   &e.Sectors,
		"holdings":  &e.Holdings,
	}
}

// LoadReport reads back the report of the last successful refresh.
func (r *Repo) LoadReport(ctx context.Context) (*models.Report, error) {
	var run models.Refresh
	err := r.db.GetContext(ctx, &run, r.db.Rebind(`SELECT id, started_at, finished_at, today, status, transactions, dropped, missing, error
FROM refreshes WHERE status = ? ORDER BY started_at DESC LIMIT 1`), models.RefreshOK)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoReport
	}
	if err != nil {
		return nil, err
	}

	rep := &models.Report{RunID: run.ID}
	if run.FinishedAt != nil {
		rep.GeneratedAt = run.FinishedAt.UTC()
	}
	if today, err := time.Parse(models.DayLayout, run.Today); err == nil {
		rep.Today = today
	}
	if rep.Transactions, err = r.Transactions(ctx); err != nil {
		return nil, err
	}
	if rep.Cash, err = r.CashMovements(ctx); err != nil {
		return nil, err
	}
	if rep.Tables, err = r.loadTables(ctx); err != nil {
		return nil, err
	}
	if rep.Holdings, err = r.loadHoldings(ctx); err != nil {
		return nil, err
	}
	if rep.Summaries, err = r.loadSummaries(ctx); err != nil {
		return nil, err
	}
	if err := r.loadExposure(ctx, &rep.Exposure); err != nil {
		return nil, err
	}
	rep.Issues = []models.Issue{}
	err = r.db.SelectContext(ctx, &rep.Issues, r.db.Rebind(`SELECT asset_id, kind, message FROM refresh_issues WHERE refresh_id = ? ORDER BY ord`), run.ID)
	if err != nil {
		return nil, err
	}
	return rep, nil
}

func (r *Repo) loadTables(ctx context.Context) ([]models.Table, error) {
	var columns []struct {
		Series string `db:"series"`
		Col    string `db:"col"`
	}
	if err := r.db.SelectContext(ctx, &columns, `SELECT series, col FROM series_columns ORDER BY series_ord, ord`); err != nil {
		return nil, err
	}
	var cells []struct {
		Series string          `db:"series"`
		Day    string          `db:"day"`
		Col    string          `db:"col"`
		Amount decimal.Decimal `db:"amount"`
	}
	if err := r.db.SelectContext(ctx, &cells, `SELECT series, day, col, amount FROM daily_series`); err != nil {
		return nil, err
	}

	var tables []models.Table
	index := map[string]int{}
	for _, c := range columns {
		i, ok := index[c.Series]
		if !ok {
			i = len(tables)
			index[c.Series] = i
			tables = append(tables, models.Table{Name: c.Series})
		}
		tables[i].Columns = append(tables[i].Columns, c.Col)
	}

	// every table covers the same days, including days without any value
	values := map[string]map[string]map[string]decimal.Decimal{}
	days := map[string]bool{}
	for _, c := range cells {
		days[c.Day] = true
		if values[c.Series] == nil {
			values[c.Series] = map[string]map[string]decimal.Decimal{}
		}
		if values[c.Series][c.Day] == nil {
			values[c.Series][c.Day] = map[string]decimal.Decimal{}
		}
		values[c.Series][c.Day][c.Col] = c.Amount
	}
	sorted := make([]string, 0, len(days))
	for d := range days {
		sorted = append(sorted, d)
	}
	sort.Strings(sorted)

	for i := range tables {
		for _, d := range sorted {
			date, err := time.Parse(models.DayLayout, d)
			if err != nil {
				r.log.Warnf("daily series has bad day %q", d)
				continue
			}
			row := models.TableRow{Date: date, Values: values[tables[i].Name][d]}
			if row.Values == nil {
				row.Values = map[string]decimal.Decimal{}
			}
			tables[i].Rows = append(tables[i].Rows, row)
		}
	}
	return tables, nil
}

func (r *Repo) loadHoldings(ctx context.Context) ([]models.Snapshot, error) {
	var windows []struct {
		Window string `db:"window_name"`
		Since  string `db:"since"`
	}
	if err := r.db.SelectContext(ctx, &windows, `SELECT window_name, since FROM holdings_windows ORDER BY ord`); err != nil {
		return nil, err
	}
	rows, err := r.db.QueryxContext(ctx, `SELECT window_name, name, short_name, type, symbol, is_group, quantity, fee, buy, dividend, gain, gain_percent, value, price, status
FROM holdings ORDER BY window_name, ord`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byWindow := map[string]*models.Snapshot{}
	snaps := make([]models.Snapshot, len(windows))
	for i, w := range windows {
		since, _ := time.Parse(models.DayLayout, w.Since)
		snaps[i] = models.Snapshot{Window: w.Window, Since: since}
		byWindow[w.Window] = &snaps[i]
	}
	for rows.Next() {
		var h struct {
			Window string `db:"window_name"`
			models.HoldingsRow
		}
		if err := rows.StructScan(&h); err != nil {
			r.log.Warnf("scan holding failed: %v", err)
			continue
		}
		s, ok := byWindow[h.Window]
		if !ok {
			continue
		}
		if h.Group {
			s.Groups = append(s.Groups, h.HoldingsRow)
		} else {
			s.Assets = append(s.Assets, h.HoldingsRow)
		}
	}
	return snaps, rows.Err()
}

func (r *Repo) loadSummaries(ctx context.Context) ([]models.Summary, error) {
	var lines []struct {
		Window    string          `db:"window_name"`
		Component string          `db:"component"`
		Amount    decimal.Decimal `db:"amount"`
		Display   string          `db:"display"`
	}
	if err := r.db.SelectContext(ctx, &lines, `SELECT s.window_name, s.component, s.amount, s.display
FROM summaries s LEFT JOIN holdings_windows w ON w.window_name = s.window_name ORDER BY w.ord, s.window_name, s.ord`); err != nil {
		return nil, err
	}
	var out []models.Summary
	for _, l := range lines {
		if len(out) == 0 || out[len(out)-1].Window != l.Window {
			out = append(out, models.Summary{Window: l.Window})
		}
		s := &out[len(out)-1]
		s.Lines = append(s.Lines, models.SummaryLine{Name: l.Component, Amount: l.Amount, Display: l.Display})
	}
	return out, nil
}

func (r *Repo) loadExposure(ctx context.Context, e *models.Exposure) error {
	var weights []struct {
		Dimension string          `db:"dimension"`
		Label     string          `db:"label"`
		Weight    decimal.Decimal `db:"weight"`
	}
	if err := r.db.SelectContext(ctx, &weights, `SELECT dimension, label, weight FROM exposures ORDER BY dimension, ord`); err != nil {
		return err
	}
	dims := exposureDimensions(e)
	for _, w := range weights {
		if ws, ok := dims[w.Dimension]; ok {
			*ws = append(*ws, models.Weight{Key: w.Label, Weight: w.Weight})
		}
	}
	return nil
}
