package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"folio/internal/composition"
	"folio/internal/config"
	"folio/internal/database"
	"folio/internal/feed"
	"folio/internal/models"
	"folio/internal/normalizer"
	"folio/internal/pricing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var d0 = time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)

type staticSource struct {
	name string
	rows []models.RawRow
	err  error
}

func (s *staticSource) Name() string { return s.name }

func (s *staticSource) Fetch(ctx context.Context) (models.Batch, error) {
	if s.err != nil {
		return models.Batch{}, s.err
	}
	return models.Batch{Source: s.name, Rows: s.rows}, nil
}

// flatPrices quotes every asset at the same price from d0 on. When gate is
// set, Prices blocks until it is closed.
type flatPrices struct {
	price   float64
	entered chan struct{}
	gate    chan struct{}
}

func (f *flatPrices) Prices(ctx context.Context, asset models.AssetInfo, _ time.Time) (models.PriceSeries, error) {
	if f.gate != nil {
		select {
		case f.entered <- struct{}{}:
		default:
		}
		select {
		case <-f.gate:
		case <-ctx.Done():
			return models.PriceSeries{}, ctx.Err()
		}
	}
	return models.PriceSeries{Currency: "EUR", Quotes: []models.Quote{{Date: d0, Price: f.price}}}, nil
}

func (f *flatPrices) LastPrice(context.Context, models.AssetInfo) (float64, string, error) {
	return 0, "", pricing.ErrNoData
}

func testSettings(t *testing.T) *config.Settings {
	t.Helper()
	s := config.Default()
	s.CreationDate = d0.Format(models.DayLayout)
	require.NoError(t, s.Validate())
	return s
}

func testRepo(t *testing.T) *database.Repo {
	t.Helper()
	ctx := context.Background()
	db, err := database.Open(ctx, "")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	repo := database.New(db, config.NewSilentLogger())
	require.NoError(t, repo.Migrate(ctx))
	return repo
}

func brokerRows() []models.RawRow {
	return []models.RawRow{
		{Timestamp: d0.Add(9 * time.Hour), Value: 1500, Description: "Deposit", Currency: "EUR"},
		{Timestamp: d0.Add(10 * time.Hour), AssetID: "IE00B4L5Y983", AssetName: "World ETF", Value: -1000, Quantity: 10, Fee: -5,
			Description: "Buy", Currency: "EUR", Type: "etf", Symbol: "IWDA"},
		{Timestamp: d0.Add(11 * time.Hour), AssetID: "MYSTERY", AssetName: "Mystery Fund", Value: -100, Quantity: 1, Currency: "EUR"},
	}
}

func newRefresher(t *testing.T, repo *database.Repo, src feed.Source, prices Prices) *Refresher {
	t.Helper()
	now := func() time.Time { return d0.AddDate(0, 0, 2).Add(15 * time.Hour) }
	comps := composition.Static{"IE00B4L5Y983": {Countries: map[string]float64{"US": 70, "JP": 30}}}
	return NewRefresher(testSettings(t), repo, []feed.Source{src}, prices, comps, config.NewSilentLogger(), WithClock(now))
}

func TestRefreshProducesAndStoresReport(t *testing.T) {
	ctx := context.Background()
	repo := testRepo(t)
	r := newRefresher(t, repo, &staticSource{name: "broker", rows: brokerRows()}, &flatPrices{price: 110})

	_, err := r.Current()
	assert.ErrorIs(t, err, ErrNoSnapshot)

	rep, err := r.Refresh(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, rep.RunID)
	assert.Equal(t, d0.AddDate(0, 0, 2), rep.Today)
	assert.Len(t, rep.Transactions, 2)
	require.Len(t, rep.Cash, 1)
	assert.Equal(t, models.CashDeposit, rep.Cash[0].Category)
	assert.Len(t, rep.Tables, 4)
	assert.Len(t, rep.Holdings, 6)
	assert.Len(t, rep.Summaries, 6)

	snap, ok := rep.Snapshot("All")
	require.True(t, ok)
	require.NotEmpty(t, snap.Groups)
	assert.Equal(t, "Total", snap.Groups[0].Name)
	assert.True(t, decimal.NewFromInt(1100).Equal(snap.Groups[0].Value.Decimal))

	require.Len(t, rep.Issues, 1)
	assert.Equal(t, "MYSTERY", rep.Issues[0].AssetID)
	require.Len(t, rep.Exposure.Countries, 2)
	assert.Equal(t, "US", rep.Exposure.Countries[0].Key)

	cur, err := r.Current()
	require.NoError(t, err)
	assert.Same(t, rep, cur)

	info, ok, err := repo.LookupAsset(ctx, "IE00B4L5Y983")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "IWDA", info.Symbol)
	_, ok, err = repo.LookupAsset(ctx, "MYSTERY")
	require.NoError(t, err)
	assert.False(t, ok, "unresolved assets are not stored")

	stored, err := repo.LoadReport(ctx)
	require.NoError(t, err)
	assert.Equal(t, rep.RunID, stored.RunID)

	runs, err := r.Refreshes(ctx, 5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, models.RefreshOK, runs[0].Status)
	assert.Equal(t, 2, runs[0].Transactions)
	assert.Equal(t, 1, runs[0].Missing)
}

func TestFailedRefreshKeepsPreviousReport(t *testing.T) {
	ctx := context.Background()
	repo := testRepo(t)
	src := &staticSource{name: "broker", rows: brokerRows()}
	r := newRefresher(t, repo, src, &flatPrices{price: 110})

	first, err := r.Refresh(ctx)
	require.NoError(t, err)

	src.err = errors.New("export unreadable")
	_, err = r.Refresh(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "export unreadable")

	cur, err := r.Current()
	require.NoError(t, err)
	assert.Equal(t, first.RunID, cur.RunID)

	runs, err := r.Refreshes(ctx, 5)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	statuses := []string{runs[0].Status, runs[1].Status}
	assert.ElementsMatch(t, []string{models.RefreshOK, models.RefreshFailed}, statuses)

	stored, err := repo.LoadReport(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.RunID, stored.RunID)
}

func TestEmptyFeedFailsRefresh(t *testing.T) {
	r := newRefresher(t, testRepo(t), &staticSource{name: "broker"}, &flatPrices{price: 110})
	_, err := r.Refresh(context.Background())
	assert.ErrorIs(t, err, normalizer.ErrEmptyFeed)
	_, err = r.Current()
	assert.ErrorIs(t, err, ErrNoSnapshot)
}

func TestConcurrentRefreshFailsFast(t *testing.T) {
	prices := &flatPrices{price: 110, entered: make(chan struct{}, 1), gate: make(chan struct{})}
	r := newRefresher(t, testRepo(t), &staticSource{name: "broker", rows: brokerRows()}, prices)

	done := make(chan error, 1)
	go func() {
		_, err := r.Refresh(context.Background())
		done <- err
	}()

	select {
	case <-prices.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("first refresh never reached the price lookup")
	}
	_, err := r.Refresh(context.Background())
	assert.ErrorIs(t, err, ErrRefreshInProgress)

	close(prices.gate)
	require.NoError(t, <-done)
}

func TestCancelledRefreshIsRecorded(t *testing.T) {
	prices := &flatPrices{price: 110, entered: make(chan struct{}, 1), gate: make(chan struct{})}
	repo := testRepo(t)
	r := newRefresher(t, repo, &staticSource{name: "broker", rows: brokerRows()}, prices)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-prices.entered
		cancel()
	}()
	_, err := r.Refresh(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	runs, err := r.Refreshes(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, models.RefreshFailed, runs[0].Status)
	assert.NotEmpty(t, runs[0].Error)
}

func TestLoadServesStoredReport(t *testing.T) {
	ctx := context.Background()
	repo := testRepo(t)
	src := &staticSource{name: "broker", rows: brokerRows()}

	empty := newRefresher(t, repo, src, &flatPrices{price: 110})
	require.NoError(t, empty.Load(ctx))
	_, err := empty.Current()
	assert.ErrorIs(t, err, ErrNoSnapshot)

	rep, err := empty.Refresh(ctx)
	require.NoError(t, err)

	restarted := newRefresher(t, repo, src, &flatPrices{price: 110})
	require.NoError(t, restarted.Load(ctx))
	cur, err := restarted.Current()
	require.NoError(t, err)
	assert.Equal(t, rep.RunID, cur.RunID)
	assert.Len(t, cur.Tables, len(rep.Tables))
}

func TestRecordPrice(t *testing.T) {
	ctx := context.Background()
	repo := testRepo(t)
	r := newRefresher(t, repo, &staticSource{name: "broker", rows: brokerRows()}, &flatPrices{price: 110})

	_, err := r.Refresh(ctx)
	require.NoError(t, err)
	require.Positive(t, r.series.Len())

	assert.ErrorIs(t, r.RecordPrice(ctx, "HOUSE", d0, decimal.Zero, "EUR"), ErrInvalidPrice)

	require.NoError(t, r.RecordPrice(ctx, "HOUSE", d0, decimal.NewFromInt(250000), ""))
	assert.Zero(t, r.series.Len())

	quotes, currency, err := repo.PriceHistory(ctx, "HOUSE", time.Time{})
	require.NoError(t, err)
	require.Len(t, quotes, 1)
	assert.Equal(t, 250000.0, quotes[0].Price)
	assert.Equal(t, "EUR", currency)
}
