package composition

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"folio/internal/clients/eodhd"
	"folio/internal/models"

	"github.com/patrickmn/go-cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func weightOf(ws []models.Weight, key string) float64 {
	for _, w := range ws {
		if w.Key == key {
			f, _ := w.Weight.Float64()
			return f
		}
	}
	return 0
}

func TestWeighByValue(t *testing.T) {
	world := &models.Composition{
		Regions:  map[string]float64{"North America": 70, "Europe": 30},
		Sectors:  map[string]float64{"Technology": 25, "Financials": 15},
		Holdings: map[string]float64{"Apple Inc": 5},
	}
	exp := Weigh([]Position{
		{Asset: models.AssetInfo{ID: "w", Name: "WORLD ETF"}, Value: 750, Composition: world},
		{Asset: models.AssetInfo{ID: "a", Name: "APPLE INC"}, Value: 250},
		{Asset: models.AssetInfo{ID: "z", Name: "SOLD"}, Value: 0},
	})

	assert.Equal(t, 52.5, weightOf(exp.Regions, "North America"))
	assert.Equal(t, 22.5, weightOf(exp.Regions, "Europe"))
	assert.Equal(t, 25.0, weightOf(exp.Regions, "Unknown"))
	assert.Equal(t, 18.75, weightOf(exp.Sectors, "Technology"))
	assert.Equal(t, 45.0+25.0, weightOf(exp.Sectors, "Unknown"), "unassigned fund sectors plus the direct stock")
	assert.Equal(t, 3.75, weightOf(exp.Holdings, "Apple Inc"))
	assert.Equal(t, 25.0, weightOf(exp.Holdings, "APPLE INC"))
	assert.Equal(t, 71.25, weightOf(exp.Holdings, "Other"))
	assert.Equal(t, 100.0, weightOf(exp.Countries, "Unknown"))
	assert.Zero(t, weightOf(exp.Holdings, "SOLD"))

	require.NotEmpty(t, exp.Regions)
	assert.Equal(t, "North America", exp.Regions[0].Key, "sorted by weight")
}

func TestWeighEmpty(t *testing.T) {
	assert.Equal(t, models.Exposure{}, Weigh(nil))
}

func TestSpreadScalesOverweight(t *testing.T) {
	acc := map[string]float64{}
	spread(acc, map[string]float64{"a": 60, "b": 60}, 1, keyOther)
	assert.InDelta(t, 0.5, acc["a"], 1e-9)
	assert.InDelta(t, 0.5, acc["b"], 1e-9)
	assert.Zero(t, acc[keyOther])
}

func TestEODHDCompositionCached(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		if r.URL.Path == "/fundamentals/AAPL.US" {
			w.Write([]byte(`{"General":{"Type":"Common Stock"}}`))
			return
		}
		w.Write([]byte(`{"General":{"Type":"ETF"},"ETF_Data":{
			"Sector_Weights":{"Technology":{"Equity_%":"23.5"}},
			"World_Regions":{"North America":{"Equity_%":"71"}}}}`))
	}))
	defer srv.Close()

	r := NewEODHD(eodhd.NewClient("k", eodhd.WithBaseURL(srv.URL)), cache.New(time.Hour, time.Hour))
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		c, err := r.Composition(ctx, models.AssetInfo{ID: "IE00B4L5Y983", Symbol: "IWDA.AS"})
		require.NoError(t, err)
		assert.Equal(t, 23.5, c.Sectors["Technology"])
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	_, err := r.Composition(ctx, models.AssetInfo{ID: "US0378331005", Symbol: "AAPL.US"})
	assert.ErrorIs(t, err, ErrNoComposition)
}

func TestChainFallsThrough(t *testing.T) {
	static := Static{"x": {Countries: map[string]float64{"France": 100}}}
	chain := Chain{Static{}, static}
	c, err := chain.Composition(context.Background(), models.AssetInfo{ID: "x"})
	require.NoError(t, err)
	assert.Equal(t, 100.0, c.Countries["France"])

	_, err = chain.Composition(context.Background(), models.AssetInfo{ID: "y"})
	assert.ErrorIs(t, err, ErrNoComposition)
	_, err = Chain{}.Composition(context.Background(), models.AssetInfo{ID: "y"})
	assert.ErrorIs(t, err, ErrNoComposition)
}
