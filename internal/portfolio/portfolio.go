// Package portfolio combines asset ledgers into portfolio-wide daily tables,
// holdings snapshots, cash summaries and exposure breakdowns.
package portfolio

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"folio/internal/config"
	"folio/internal/ledger"
	"folio/internal/models"
	"folio/internal/normalizer"
	"folio/internal/pricing"

	"github.com/sirupsen/logrus"
)

// TotalKey is the column and group name of the whole portfolio.
const TotalKey = "Total"

// ErrNotRefreshed is returned by the report builders before Refresh succeeds.
var ErrNotRefreshed = errors.New("portfolio has not been refreshed")

// Portfolio owns one ledger per asset for the life of one refresh.
type Portfolio struct {
	settings *config.Settings
	assets   []*ledger.Asset
	byID     map[string]*ledger.Asset
	resolved map[string]bool
	columns  map[string]string
	cash     []models.CashMovement
	issues   []models.Issue
	failures map[string]error

	now       func() time.Time
	today     time.Time
	refreshed bool
	fx        *pricing.FX
	cache     *SeriesCache
	log       *logrus.Logger
}

// Option configures a Portfolio.
type Option func(*Portfolio)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(p *Portfolio) {
		p.now = now
	}
}

// WithSeriesCache reuses daily series of assets whose transactions did not
// change since an earlier refresh.
func WithSeriesCache(c *SeriesCache) Option {
	return func(p *Portfolio) {
		p.cache = c
	}
}

// New replays the normalized transactions into one ledger per asset.
func New(s *config.Settings, res *normalizer.Result, log *logrus.Logger, opts ...Option) (*Portfolio, error) {
	if res == nil {
		return nil, errors.New("portfolio: nil normalization result")
	}
	p := &Portfolio{
		settings: s,
		byID:     map[string]*ledger.Asset{},
		resolved: map[string]bool{},
		failures: map[string]error{},
		cash:     res.Cash,
		now:      time.Now,
		log:      log,
	}
	for _, o := range opts {
		o(p)
	}

	for _, t := range res.Transactions {
		a, ok := p.byID[t.AssetID]
		if !ok {
			info, known := res.Assets[t.AssetID]
			if !known {
				info = models.AssetInfo{ID: t.AssetID, Name: t.AssetID}
			}
			a = ledger.NewAsset(info)
			p.byID[t.AssetID] = a
			p.assets = append(p.assets, a)
			p.resolved[t.AssetID] = known && res.Resolved(t.AssetID)
		}
		if err := a.AddTransaction(t); err != nil {
			p.log.Warnf("skipping transaction %s: %v", t.ID, err)
			p.issues = append(p.issues, models.Issue{AssetID: t.AssetID, Kind: "malformed", Message: err.Error()})
		}
	}
	for _, d := range res.Dropped {
		p.issues = append(p.issues, models.Issue{Kind: "malformed", Message: d.Error()})
	}
	for _, m := range res.Missing {
		p.issues = append(p.issues, models.Issue{AssetID: m.AssetID, Kind: string(models.StatusUnresolved), Message: m.Error()})
	}
	p.assignColumns()
	return p, nil
}

// assignColumns keys each asset by its name, adding the id when the name is
// shared with another asset, a type or the total.
func (p *Portfolio) assignColumns() {
	taken := map[string]int{TotalKey: 1}
	for _, typ := range p.types() {
		taken[typ]++
	}
	for _, a := range p.assets {
		taken[a.Info.Name]++
	}
	p.columns = make(map[string]string, len(p.assets))
	for _, a := range p.assets {
		col := a.Info.Name
		if taken[col] > 1 {
			col = fmt.Sprintf("%s (%s)", a.Info.Name, a.Info.ID)
		}
		p.columns[a.Info.ID] = col
	}
}

// types returns the sorted asset types of resolved assets.
func (p *Portfolio) types() []string {
	seen := map[string]bool{}
	var out []string
	for _, a := range p.assets {
		if typ := p.typeOf(a); typ != "" && !seen[typ] {
			seen[typ] = true
			out = append(out, typ)
		}
	}
	sort.Strings(out)
	return out
}

// typeOf returns the group of an asset; unresolved assets have none.
func (p *Portfolio) typeOf(a *ledger.Asset) string {
	if !p.resolved[a.Info.ID] {
		return ""
	}
	return a.Info.Type
}

// Assets returns the ledgers in order of first transaction.
func (p *Portfolio) Assets() []*ledger.Asset { return p.assets }

// Asset returns the ledger of id.
func (p *Portfolio) Asset(id string) (*ledger.Asset, bool) {
	a, ok := p.byID[id]
	return a, ok
}

// Column returns the table column of an asset.
func (p *Portfolio) Column(id string) string { return p.columns[id] }

// Cash returns the account movements that touch no asset.
func (p *Portfolio) Cash() []models.CashMovement { return p.cash }

// Today returns the last day of the refreshed series.
func (p *Portfolio) Today() time.Time { return p.today }

// Issues lists everything degraded by normalization and the last refresh.
func (p *Portfolio) Issues() []models.Issue {
	out := append([]models.Issue(nil), p.issues...)
	for _, a := range p.assets {
		if err, ok := p.failures[a.Info.ID]; ok && a.Status() != models.StatusUnresolved {
			out = append(out, models.Issue{AssetID: a.Info.ID, Kind: string(a.Status()), Message: err.Error()})
		}
	}
	return out
}

func (p *Portfolio) options() ledger.Options {
	return ledger.Options{
		IncludeFees:      p.settings.IncludeFees,
		IncludeDividends: p.settings.IncludeDividends,
	}
}

// percent is gain relative to cost, or gain itself when nothing was paid.
func percent(gain, buyCost float64) float64 {
	if buyCost == 0 {
		return gain
	}
	return 100 * gain / -buyCost
}
