package eodhd

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetEOD_SortsAscendingAndSendsParams(t *testing.T) {
	var query map[string][]string
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		query = r.URL.Query()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode([]map[string]interface{}{
			{"date": "2024-03-05", "close": 101.5, "adjusted_close": 101.5},
			{"date": "not-a-date", "close": 1},
			{"date": "2024-03-04", "close": "100.25", "adjusted_close": "NA"},
		})
	}))
	defer srv.Close()

	c := NewClient("key", WithBaseURL(srv.URL))
	bars, err := c.GetEOD(context.Background(), "IWDA.AS", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	assert.Equal(t, "/eod/IWDA.AS", path)
	assert.Equal(t, "2024-03-01", query["from"][0])
	assert.Equal(t, "key", query["api_token"][0])
	require.Len(t, bars, 2)
	assert.Equal(t, 100.25, bars[0].Close)
	assert.Zero(t, bars[0].AdjustedClose)
	assert.Equal(t, 101.5, bars[1].Close)
}

func TestGetRealTimeQuote_ParsesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/real-time/AAPL.US", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"code":      "AAPL.US",
			"timestamp": int64(1711670340),
			"close":     171.48,
		})
	}))
	defer srv.Close()

	q, err := NewClient("key", WithBaseURL(srv.URL)).GetRealTimeQuote(context.Background(), "AAPL.US")
	require.NoError(t, err)
	assert.Equal(t, "AAPL.US", q.Code)
	assert.Equal(t, 171.48, q.Close)
	assert.True(t, q.Timestamp.Equal(time.Unix(1711670340, 0)))
}

func TestGetFundamentals_ETFWeights(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"General": {"Code": "IWDA", "Type": "ETF"},
			"ETF_Data": {
				"Holdings": {
					"AAPL.US": {"Name": "Apple Inc", "Assets_%": 4.8},
					"MSFT.US": {"Name": "Microsoft Corp", "Assets_%": "4.2"}
				},
				"Sector_Weights": {
					"Technology": {"Equity_%": "24.1"},
					"Energy": {"Equity_%": 0}
				},
				"World_Regions": {
					"North America": {"Equity_%": 72.5},
					"Europe Developed": {"Equity_%": 15.3}
				}
			}
		}`))
	}))
	defer srv.Close()

	f, err := NewClient("key", WithBaseURL(srv.URL)).GetFundamentals(context.Background(), "IWDA.AS")
	require.NoError(t, err)
	assert.Equal(t, "ETF", f.Type)
	assert.Equal(t, 4.8, f.Holdings["Apple Inc"])
	assert.Equal(t, 4.2, f.Holdings["Microsoft Corp"])
	assert.Equal(t, map[string]float64{"Technology": 24.1}, f.Sectors)
	assert.Len(t, f.Regions, 2)
}

func TestAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Ticker Not Found.", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewClient("key", WithBaseURL(srv.URL)).GetEOD(context.Background(), "NOPE.US", time.Time{})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "/eod/NOPE.US", apiErr.Endpoint)
}
