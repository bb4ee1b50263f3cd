package pricing

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"folio/internal/clients/eodhd"
	"folio/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestYahooPrices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v8/finance/chart/AAPL", r.URL.Path)
		assert.Equal(t, "1d", r.URL.Query().Get("interval"))
		w.Write([]byte(`{"chart":{"result":[{
			"meta":{"currency":"USD","regularMarketPrice":190.5},
			"timestamp":[1704463200,1704722400,1704808800],
			"indicators":{"quote":[{"close":[181.2,null,185.6]}]}
		}],"error":null}}`))
	}))
	defer srv.Close()

	y := NewYahoo(srv.URL, 100)
	series, err := y.Prices(context.Background(), models.AssetInfo{ID: "US0378331005", Symbol: "AAPL"}, day(0))
	require.NoError(t, err)
	assert.Equal(t, "USD", series.Currency)
	require.Len(t, series.Quotes, 2)
	assert.Equal(t, 181.2, series.Quotes[0].Price)
	assert.Equal(t, models.Day(series.Quotes[0].Date), series.Quotes[0].Date)

	p, cur, err := y.LastPrice(context.Background(), models.AssetInfo{Symbol: "AAPL"})
	require.NoError(t, err)
	assert.Equal(t, 190.5, p)
	assert.Equal(t, "USD", cur)
}

func TestYahooChartError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found, symbol may be delisted"}}}`))
	}))
	defer srv.Close()

	_, err := NewYahoo(srv.URL, 100).Prices(context.Background(), models.AssetInfo{Symbol: "GONE"}, day(0))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "delisted")

	_, err = NewYahoo(srv.URL, 100).Prices(context.Background(), models.AssetInfo{ID: "x"}, day(0))
	assert.ErrorIs(t, err, ErrNoData)
}

func TestEODHDPricesUseExchangeCurrency(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/eod/IWDA.AS":
			w.Write([]byte(`[{"date":"2024-01-05","close":85.1},{"date":"2024-01-08","close":85.9}]`))
		case "/real-time/IWDA.AS":
			w.Write([]byte(`{"code":"IWDA.AS","timestamp":1704902400,"close":"NA"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	e := NewEODHD(eodhd.NewClient("k", eodhd.WithBaseURL(srv.URL)))
	series, err := e.Prices(context.Background(), models.AssetInfo{ID: "IE00B4L5Y983", Symbol: "IWDA.AS"}, day(0))
	require.NoError(t, err)
	assert.Equal(t, "EUR", series.Currency)
	assert.Len(t, series.Quotes, 2)

	_, _, err = e.LastPrice(context.Background(), models.AssetInfo{Symbol: "IWDA.AS"})
	assert.ErrorIs(t, err, ErrNoData)
}

func TestQuoteCurrency(t *testing.T) {
	cases := map[string]string{
		"AAPL.US":      "USD",
		"IWDA.AS":      "EUR",
		"BTC-EUR.CC":   "EUR",
		"USDEUR.FOREX": "EUR",
		"VUSA.LSE":     "GBP",
		"PLAIN":        "",
		"X.UNKNOWN":    "",
	}
	for sym, want := range cases {
		assert.Equal(t, want, quoteCurrency(models.AssetInfo{Symbol: sym}), sym)
	}
	assert.Equal(t, "CHF", quoteCurrency(models.AssetInfo{Symbol: "AAPL.US", Currency: "CHF"}))
}

func TestJSONQuoter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/chart":
			w.Write([]byte(`{"points":[{"x":1,"y":42.5},{"x":2,"y":43.0}]}`))
		case "/text":
			w.Write([]byte(`{"last":"12,75"}`))
		case "/empty":
			w.Write([]byte(`{"points":[]}`))
		}
	}))
	defer srv.Close()

	ctx := context.Background()
	p, cur, err := NewJSONQuoter(srv.URL+"/chart", "$.points[*].y", "eur").LastPrice(ctx, models.AssetInfo{ID: "a"})
	require.NoError(t, err)
	assert.Equal(t, 42.5, p)
	assert.Equal(t, "EUR", cur)

	p, cur, err = NewJSONQuoter(srv.URL+"/text", "$.last", "").LastPrice(ctx, models.AssetInfo{ID: "a", Currency: "USD"})
	require.NoError(t, err)
	assert.Equal(t, 12.75, p)
	assert.Equal(t, "USD", cur)

	_, _, err = NewJSONQuoter(srv.URL+"/empty", "$.points[*].y", "").LastPrice(ctx, models.AssetInfo{ID: "a"})
	assert.ErrorIs(t, err, ErrNoData)
}
