// Package service runs portfolio refreshes end to end and holds the report
// served between them.
package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"folio/internal/composition"
	"folio/internal/config"
	"folio/internal/database"
	"folio/internal/feed"
	"folio/internal/models"
	"folio/internal/normalizer"
	"folio/internal/portfolio"
	"folio/internal/pricing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

var (
	// ErrRefreshInProgress is returned when a refresh is requested while
	// another one is running.
	ErrRefreshInProgress = errors.New("refresh already in progress")
	// ErrNoSnapshot means no refresh has succeeded yet.
	ErrNoSnapshot = errors.New("no portfolio snapshot available")
	// ErrInvalidPrice rejects manual quotes that are not positive.
	ErrInvalidPrice = errors.New("price must be positive")
)

// seriesTTL bounds how long computed asset series survive between refreshes.
const seriesTTL = 6 * time.Hour

// Prices is the price lookup used by a refresh: history for every asset plus
// an optional live quote.
type Prices interface {
	pricing.Resolver
	pricing.LiveQuoter
}

type Refresher struct {
	settings *config.Settings
	repo     *database.Repo
	sources  []feed.Source
	prices   Prices
	comps    composition.Resolver
	series   *portfolio.SeriesCache
	now      func() time.Time
	log      *logrus.Logger

	running sync.Mutex
	mu      sync.RWMutex
	current *models.Report
}

type Option func(*Refresher)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Refresher) { r.now = now }
}

func NewRefresher(s *config.Settings, repo *database.Repo, sources []feed.Source, prices Prices, comps composition.Resolver, log *logrus.Logger, opts ...Option) *Refresher {
	r := &Refresher{
		settings: s,
		repo:     repo,
		sources:  sources,
		prices:   prices,
		comps:    comps,
		series:   portfolio.NewSeriesCache(seriesTTL),
		now:      time.Now,
		log:      log,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// NewFromSettings wires the configured feed sources, price router and
// composition chain around repo.
func NewFromSettings(s *config.Settings, repo *database.Repo, log *logrus.Logger, opts ...Option) (*Refresher, error) {
	sources, err := feed.FromSettings(s, repo, log)
	if err != nil {
		return nil, err
	}
	if len(sources) == 0 {
		log.Warn("no feed sources configured; refreshes will fail until one is added")
	}
	router := pricing.NewRouterFromSettings(s, repo, log)
	return NewRefresher(s, repo, sources, router, composition.NewFromSettings(s, log), log, opts...), nil
}

// Load makes the last stored report current so it is served before the
// first refresh of this process.
func (r *Refresher) Load(ctx context.Context) error {
	rep, err := r.repo.LoadReport(ctx)
	if errors.Is(err, database.ErrNoReport) {
		r.log.Info("no stored report; waiting for first refresh")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load report: %w", err)
	}
	r.setCurrent(rep)
	r.log.WithFields(logrus.Fields{"run": rep.RunID, "today": rep.Today.Format(models.DayLayout)}).Info("stored report loaded")
	return nil
}

// Current returns the report of the last successful refresh.
func (r *Refresher) Current() (*models.Report, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.current == nil {
		return nil, ErrNoSnapshot
	}
	return r.current, nil
}

func (r *Refresher) setCurrent(rep *models.Report) {
	r.mu.Lock()
	r.current = rep
	r.mu.Unlock()
}

// Refresh replays the whole feed and revalues every asset. On failure the
// previous report stays current and the failed run is recorded.
func (r *Refresher) Refresh(ctx context.Context) (*models.Report, error) {
	if !r.running.TryLock() {
		return nil, ErrRefreshInProgress
	}
	defer r.running.Unlock()

	run := models.Refresh{ID: uuid.NewString(), StartedAt: r.now(), Status: models.RefreshFailed}
	if err := r.repo.StartRefresh(ctx, run.ID, run.StartedAt); err != nil {
		return nil, fmt.Errorf("record refresh start: %w", err)
	}
	log := r.log.WithField("run", run.ID)

	rep, err := r.run(ctx, &run)
	finished := r.now()
	run.FinishedAt = &finished
	if err == nil {
		run.Status = models.RefreshOK
	} else {
		run.Error = err.Error()
	}
	// the outcome is recorded even when ctx was cancelled
	if ferr := r.repo.FinishRefresh(context.WithoutCancel(ctx), run); ferr != nil {
		log.Errorf("record refresh outcome failed: %v", ferr)
	}
	if err != nil {
		log.Errorf("refresh failed: %v", err)
		return nil, err
	}

	r.setCurrent(rep)
	log.WithFields(logrus.Fields{
		"transactions": run.Transactions,
		"dropped":      run.Dropped,
		"missing":      run.Missing,
		"issues":       len(rep.Issues),
		"took":         finished.Sub(run.StartedAt).String(),
	}).Info("refresh completed")
	return rep, nil
}

func (r *Refresher) run(ctx context.Context, run *models.Refresh) (*models.Report, error) {
	batches, err := feed.FetchAll(ctx, r.sources, r.log)
	if err != nil {
		return nil, err
	}
	meta := normalizer.NewChain(r.log, normalizer.FromSettings(r.settings), r.repo)
	res, err := normalizer.New(r.settings, meta, r.log).Normalize(ctx, batches)
	if err != nil {
		return nil, fmt.Errorf("normalize: %w", err)
	}
	run.Transactions = len(res.Transactions)
	run.Dropped = len(res.Dropped)
	run.Missing = len(res.Missing)

	if err := r.repo.UpsertAssets(ctx, resolvedAssets(res)); err != nil {
		return nil, fmt.Errorf("store assets: %w", err)
	}

	p, err := portfolio.New(r.settings, res, r.log, portfolio.WithClock(r.now), portfolio.WithSeriesCache(r.series))
	if err != nil {
		return nil, err
	}
	if err := p.Refresh(ctx, r.prices, r.prices); err != nil {
		return nil, err
	}

	rep := &models.Report{
		RunID:        run.ID,
		Today:        p.Today(),
		GeneratedAt:  r.now(),
		Transactions: res.Transactions,
		Cash:         res.Cash,
	}
	run.Today = p.Today().Format(models.DayLayout)
	if rep.Tables, err = p.DailyTables(); err != nil {
		return nil, err
	}
	for _, w := range r.settings.Windows {
		snap, err := p.Holdings(w)
		if err != nil {
			return nil, err
		}
		sum, err := p.Summary(w)
		if err != nil {
			return nil, err
		}
		rep.Holdings = append(rep.Holdings, *snap)
		rep.Summaries = append(rep.Summaries, *sum)
	}
	if rep.Exposure, err = p.Exposure(ctx, r.comps); err != nil {
		return nil, err
	}
	rep.Issues = p.Issues()

	if err := r.repo.SaveReport(ctx, rep); err != nil {
		return nil, fmt.Errorf("save report: %w", err)
	}
	return rep, nil
}

func resolvedAssets(res *normalizer.Result) []models.AssetInfo {
	out := make([]models.AssetInfo, 0, len(res.Assets))
	for id, info := range res.Assets {
		if res.Resolved(id) {
			out = append(out, info)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// RecordPrice stores a manual quote for an asset priced from the database.
// Cached series are dropped so the next refresh revalues with it.
func (r *Refresher) RecordPrice(ctx context.Context, assetID string, day time.Time, price decimal.Decimal, currency string) error {
	if !price.IsPositive() {
		return ErrInvalidPrice
	}
	if currency == "" {
		currency = r.settings.BaseCurrency
	}
	if err := r.repo.UpsertPrice(ctx, assetID, day, price, currency); err != nil {
		return err
	}
	r.series.Flush()
	r.log.WithFields(logrus.Fields{"asset": assetID, "day": day.Format(models.DayLayout), "price": price.String()}).Info("manual price recorded")
	return nil
}

// Refreshes lists recent refresh attempts, newest first.
func (r *Refresher) Refreshes(ctx context.Context, limit int) ([]models.Refresh, error) {
	return r.repo.Refreshes(ctx, limit)
}
