// Package normalizer merges heterogeneous feed batches into one canonical,
// chronologically ordered transaction list plus the asset metadata table.
package normalizer

import (
	"context"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"folio/internal/config"
	"folio/internal/models"

	"github.com/sirupsen/logrus"
	"github.com/zeebo/blake3"
)

// Result is the output of one normalization.
type Result struct {
	Transactions []models.Transaction
	Assets       map[string]models.AssetInfo
	Missing      []*UnresolvedAssetError
	Dropped      []*MalformedTransactionError
	Cash         []models.CashMovement
}

// Resolved reports whether the asset has type/symbol metadata.
func (r *Result) Resolved(id string) bool {
	for _, m := range r.Missing {
		if m.AssetID == id {
			return false
		}
	}
	_, ok := r.Assets[id]
	return ok
}

type Normalizer struct {
	base     string
	classify *classifier
	meta     MetadataResolver
	log      *logrus.Logger
}

func New(s *config.Settings, meta MetadataResolver, log *logrus.Logger) *Normalizer {
	return &Normalizer{
		base:     s.BaseCurrency,
		classify: newClassifier(s.Classify),
		meta:     meta,
		log:      log,
	}
}

type fxCredit struct {
	ts    time.Time
	value float64
	used  bool
}

// Normalize merges batches in feed order. Malformed rows and assets without
// metadata are reported in the result instead of failing the call.
func (n *Normalizer) Normalize(ctx context.Context, batches []models.Batch) (*Result, error) {
	rows := 0
	for _, b := range batches {
		rows += len(b.Rows)
	}
	if rows == 0 {
		return nil, ErrEmptyFeed
	}

	res := &Result{Assets: map[string]models.AssetInfo{}}
	// rows carrying inline type/symbol win over bare ones
	sample := map[string]models.RawRow{}
	seen := map[string]bool{}
	var order []string
	for _, b := range batches {
		txs := n.normalizeBatch(b, res)
		for _, t := range txs {
			if !seen[t.AssetID] {
				seen[t.AssetID] = true
				order = append(order, t.AssetID)
			}
		}
		for _, r := range b.Rows {
			if r.AssetID == "" {
				continue
			}
			if prev, ok := sample[r.AssetID]; !ok || (prev.Type == "" && r.Type != "") {
				sample[r.AssetID] = r
			}
		}
		res.Transactions = append(res.Transactions, txs...)
	}
	if len(res.Transactions) == 0 && len(res.Cash) == 0 {
		return nil, fmt.Errorf("%w: all %d rows dropped", ErrEmptyFeed, len(res.Dropped))
	}

	for _, id := range order {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n.resolve(ctx, id, sample[id], res)
	}

	sort.SliceStable(res.Transactions, func(i, j int) bool {
		return res.Transactions[i].Timestamp.Before(res.Transactions[j].Timestamp)
	})
	sort.SliceStable(res.Cash, func(i, j int) bool {
		return res.Cash[i].Timestamp.Before(res.Cash[j].Timestamp)
	})

	n.log.WithFields(logrus.Fields{
		"sources":      len(batches),
		"transactions": len(res.Transactions),
		"cash":         len(res.Cash),
		"assets":       len(res.Assets),
		"missing":      len(res.Missing),
		"dropped":      len(res.Dropped),
	}).Info("feed normalized")
	return res, nil
}

func (n *Normalizer) normalizeBatch(b models.Batch, res *Result) []models.Transaction {
	var (
		txs     []models.Transaction
		credits []*fxCredit
		foreign []int
	)
	for i, r := range b.Rows {
		if reason := malformed(r); reason != "" {
			n.drop(res, b.Source, i, reason)
			continue
		}
		class, category := n.classify.classify(r)
		switch class {
		case classFXCredit:
			credits = append(credits, &fxCredit{ts: r.Timestamp, value: r.Value})
			continue
		case classFXDebit:
			continue
		case classCash:
			res.Cash = append(res.Cash, models.CashMovement{
				Timestamp:   r.Timestamp,
				Category:    category,
				Amount:      r.Value,
				Source:      b.Source,
				Description: r.Description,
			})
			continue
		}
		if r.AssetID == "" {
			n.drop(res, b.Source, i, "missing asset reference")
			continue
		}

		kind := models.KindBuy
		switch {
		case class == classDividend:
			kind = models.KindDividend
		case r.Quantity < 0:
			kind = models.KindSell
		}
		t := models.Transaction{
			ID:          transactionID(b.Source, i, r, kind),
			Timestamp:   r.Timestamp,
			AssetID:     r.AssetID,
			Value:       r.Value,
			Quantity:    r.Quantity,
			Fee:         r.Fee,
			Kind:        kind,
			Source:      b.Source,
			Description: r.Description,
		}
		if kind == models.KindDividend && r.Value > 0 && r.Currency != "" && !strings.EqualFold(r.Currency, n.base) {
			foreign = append(foreign, len(txs))
		}
		txs = append(txs, t)
	}

	if len(foreign) > 0 {
		matched := matchDividends(txs, foreign, credits)
		n.log.Debugf("%s: %d/%d foreign dividends matched to conversions", b.Source, matched, len(foreign))
	}
	return txs
}

// matchDividends replaces the amount of each foreign dividend with the nearest
// preceding conversion credit of the same day. Each credit is consumed once.
func matchDividends(txs []models.Transaction, foreign []int, credits []*fxCredit) int {
	sort.SliceStable(foreign, func(a, b int) bool {
		return txs[foreign[a]].Timestamp.Before(txs[foreign[b]].Timestamp)
	})
	matched := 0
	for _, i := range foreign {
		d := txs[i]
		var best *fxCredit
		for _, c := range credits {
			if c.used || c.ts.After(d.Timestamp) || !models.Day(c.ts).Equal(models.Day(d.Timestamp)) {
				continue
			}
			if best == nil || c.ts.After(best.ts) {
				best = c
			}
		}
		if best == nil {
			continue
		}
		best.used = true
		txs[i].Value = best.value
		matched++
	}
	return matched
}

func (n *Normalizer) resolve(ctx context.Context, id string, row models.RawRow, res *Result) {
	info, ok := models.AssetInfo{}, false
	if row.Type != "" && row.Symbol != "" {
		info, ok = models.AssetInfo{ID: id, Name: row.AssetName, Type: row.Type, Symbol: row.Symbol, Venue: row.Venue}, true
	} else if n.meta != nil {
		var err error
		info, ok, err = n.meta.LookupAsset(ctx, id)
		if err != nil {
			n.log.Warnf("asset metadata lookup for %s failed: %v", id, err)
		}
	}
	if !ok {
		missing := &UnresolvedAssetError{AssetID: id, Name: row.AssetName}
		n.log.Warn(missing.Error())
		res.Missing = append(res.Missing, missing)
		info = models.AssetInfo{Name: row.AssetName, Venue: row.Venue}
	}
	info.ID = id
	if info.Name == "" {
		info.Name = row.AssetName
	}
	if info.Name == "" {
		info.Name = id
	}
	if info.Venue == "" {
		info.Venue = row.Venue
	}
	res.Assets[id] = info
}

func (n *Normalizer) drop(res *Result, source string, row int, reason string) {
	e := &MalformedTransactionError{Source: source, Row: row, Reason: reason}
	n.log.Warn(e.Error())
	res.Dropped = append(res.Dropped, e)
}

func malformed(r models.RawRow) string {
	if r.Timestamp.IsZero() {
		return "invalid date"
	}
	for _, v := range []float64{r.Value, r.Quantity, r.Fee} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return "non-finite amount"
		}
	}
	return ""
}

// transactionID is stable across refreshes of the same feed.
func transactionID(source string, ordinal int, r models.RawRow, kind models.Kind) string {
	h := blake3.New()
	fmt.Fprintf(h, "%s|%d|%d|%s|%.8f|%.8f|%.8f|%s",
		source, ordinal, r.Timestamp.UnixNano(), r.AssetID, r.Value, r.Quantity, r.Fee, kind)
	sum := h.Sum(nil)
	return hex.EncodeToString(sum[:16])
}
