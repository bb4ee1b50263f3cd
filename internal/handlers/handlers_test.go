package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"folio/internal/config"
	"folio/internal/models"
	"folio/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeService struct {
	current    *models.Report
	refreshErr error
	next       *models.Report
	prices     []string
}

func (f *fakeService) Refresh(context.Context) (*models.Report, error) {
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	f.current = f.next
	return f.next, nil
}

func (f *fakeService) Current() (*models.Report, error) {
	if f.current == nil {
		return nil, service.ErrNoSnapshot
	}
	return f.current, nil
}

func (f *fakeService) RecordPrice(_ context.Context, assetID string, day time.Time, price decimal.Decimal, currency string) error {
	if !price.IsPositive() {
		return service.ErrInvalidPrice
	}
	f.prices = append(f.prices, assetID+"|"+day.Format(models.DayLayout)+"|"+price.String()+"|"+currency)
	return nil
}

func (f *fakeService) Refreshes(context.Context, int) ([]models.Refresh, error) {
	return []models.Refresh{{ID: "run-1", Status: models.RefreshOK}}, nil
}

func report() *models.Report {
	d := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	return &models.Report{
		RunID: "run-1",
		Today: d,
		Transactions: []models.Transaction{
			{ID: "t1", AssetID: "A", Value: -1000, Quantity: 10, Kind: models.KindBuy},
			{ID: "t2", AssetID: "B", Value: -50, Quantity: 1, Kind: models.KindBuy},
		},
		Tables: []models.Table{{
			Name:    "values",
			Columns: []string{"Total", "A"},
			Rows:    []models.TableRow{{Date: d, Values: map[string]decimal.Decimal{"Total": decimal.NewFromInt(1100), "A": decimal.NewFromInt(1100)}}},
		}},
		Holdings: []models.Snapshot{{
			Window: "All",
			Since:  d,
			Assets: []models.HoldingsRow{
				{Name: "A", Value: decimal.NullDecimal{Decimal: decimal.NewFromInt(1100), Valid: true}, Status: models.StatusOK},
				{Name: "B", Status: models.StatusNoPriceData},
			},
		}},
		Summaries: []models.Summary{{Window: "All", Lines: []models.SummaryLine{{Name: "total", Amount: decimal.NewFromInt(1615), Display: "€1,615.00"}}}},
		Exposure:  models.Exposure{Countries: []models.Weight{{Key: "US", Weight: decimal.NewFromInt(100)}}},
		Issues:    []models.Issue{{AssetID: "B", Kind: "no_price_data", Message: "no price data"}},
	}
}

func setupRouter(svc Refresher) *gin.Engine {
	gin.SetMode(gin.TestMode)
	rg := gin.New()
	NewHandler(svc, config.NewSilentLogger()).Register(rg)
	return rg
}

func do(rg *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	rg.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v))
}

func TestHealth(t *testing.T) {
	rg := setupRouter(&fakeService{current: report()})
	w := do(rg, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]interface{}
	decode(t, w, &body)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "run-1", body["run_id"])
	assert.Equal(t, "2024-03-05", body["today"])
}

func TestReadsBeforeFirstRefresh(t *testing.T) {
	rg := setupRouter(&fakeService{})
	for _, path := range []string{"/series/values", "/holdings/All", "/summary/All", "/exposure", "/transactions", "/issues"} {
		w := do(rg, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code, path)
	}
}

func TestGetSeries(t *testing.T) {
	rg := setupRouter(&fakeService{current: report()})

	w := do(rg, http.MethodGet, "/series/values", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var table struct {
		Name    string   `json:"name"`
		Columns []string `json:"columns"`
		Rows    []struct {
			Values map[string]string `json:"values"`
		} `json:"rows"`
	}
	decode(t, w, &table)
	assert.Equal(t, []string{"Total", "A"}, table.Columns)
	require.Len(t, table.Rows, 1)
	assert.Equal(t, "1100", table.Rows[0].Values["A"])

	w = do(rg, http.MethodGet, "/series/nope", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetHoldingsKeepsDegradedNulls(t *testing.T) {
	rg := setupRouter(&fakeService{current: report()})

	w := do(rg, http.MethodGet, "/holdings/All", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var snap struct {
		Assets []map[string]interface{} `json:"assets"`
	}
	decode(t, w, &snap)
	require.Len(t, snap.Assets, 2)
	assert.Equal(t, "1100", snap.Assets[0]["value"])
	assert.Nil(t, snap.Assets[1]["value"])
	assert.Equal(t, "no_price_data", snap.Assets[1]["status"])

	w = do(rg, http.MethodGet, "/holdings/2W", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetSummaryAndExposure(t *testing.T) {
	rg := setupRouter(&fakeService{current: report()})

	w := do(rg, http.MethodGet, "/summary/All", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "€1,615.00")

	w = do(rg, http.MethodGet, "/summary/1Y", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(rg, http.MethodGet, "/exposure", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var exp models.Exposure
	decode(t, w, &exp)
	require.Len(t, exp.Countries, 1)
	assert.Equal(t, "US", exp.Countries[0].Key)
}

func TestGetTransactionsFiltersByAsset(t *testing.T) {
	rg := setupRouter(&fakeService{current: report()})

	var txs []models.Transaction
	w := do(rg, http.MethodGet, "/transactions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &txs)
	assert.Len(t, txs, 2)

	w = do(rg, http.MethodGet, "/transactions?asset=B", nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &txs)
	require.Len(t, txs, 1)
	assert.Equal(t, "t2", txs[0].ID)
}

func TestGetIssues(t *testing.T) {
	rg := setupRouter(&fakeService{current: report()})
	w := do(rg, http.MethodGet, "/issues", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		RunID  string         `json:"run_id"`
		Issues []models.Issue `json:"issues"`
	}
	decode(t, w, &body)
	assert.Equal(t, "run-1", body.RunID)
	require.Len(t, body.Issues, 1)
	assert.Equal(t, "B", body.Issues[0].AssetID)
}

func TestPostRefresh(t *testing.T) {
	svc := &fakeService{next: report()}
	rg := setupRouter(svc)

	w := do(rg, http.MethodPost, "/refresh", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]interface{}
	decode(t, w, &body)
	assert.Equal(t, "run-1", body["run_id"])
	assert.EqualValues(t, 2, body["transactions"])

	svc.refreshErr = service.ErrRefreshInProgress
	w = do(rg, http.MethodPost, "/refresh", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	svc.refreshErr = errors.New("fetch broker: file missing")
	w = do(rg, http.MethodPost, "/refresh", nil)
	require.Equal(t, http.StatusBadGateway, w.Code)
	decode(t, w, &body)
	assert.Equal(t, "run-1", body["serving"])

	w = do(rg, http.MethodGet, "/holdings/All", nil)
	assert.Equal(t, http.StatusOK, w.Code, "previous snapshot still served")
}

func TestPostPrice(t *testing.T) {
	svc := &fakeService{}
	rg := setupRouter(svc)

	w := do(rg, http.MethodPost, "/prices", PriceRequest{AssetID: "HOUSE", Date: "2024-03-01", Price: "250000.50", Currency: "eur"})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, []string{"HOUSE|2024-03-01|250000.5|EUR"}, svc.prices)

	tests := []struct {
		name string
		body interface{}
	}{
		{"missing asset", PriceRequest{Date: "2024-03-01", Price: "1"}},
		{"bad date", PriceRequest{AssetID: "HOUSE", Date: "01/03/2024", Price: "1"}},
		{"bad price", PriceRequest{AssetID: "HOUSE", Date: "2024-03-01", Price: "abc"}},
		{"negative price", PriceRequest{AssetID: "HOUSE", Date: "2024-03-01", Price: "-3"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(rg, http.MethodPost, "/prices", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestGetRefreshes(t *testing.T) {
	rg := setupRouter(&fakeService{})
	w := do(rg, http.MethodGet, "/refreshes?limit=5", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "run-1")

	w = do(rg, http.MethodGet, "/refreshes?limit=zero", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
