package pricing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"folio/internal/clients/eodhd"
	"folio/internal/models"
)

// EODHD serves daily closes and delayed live quotes from the EODHD API.
type EODHD struct {
	client *eodhd.Client
}

func NewEODHD(client *eodhd.Client) *EODHD {
	return &EODHD{client: client}
}

func (e *EODHD) Prices(ctx context.Context, asset models.AssetInfo, start time.Time) (models.PriceSeries, error) {
	if asset.Symbol == "" {
		return models.PriceSeries{}, fmt.Errorf("%w: %s has no symbol", ErrNoData, asset.ID)
	}
	bars, err := e.client.GetEOD(ctx, asset.Symbol, start)
	if err != nil {
		return models.PriceSeries{}, fmt.Errorf("eodhd %s: %w", asset.Symbol, err)
	}
	if len(bars) == 0 {
		return models.PriceSeries{}, fmt.Errorf("%w: eodhd returned no bars for %s", ErrNoData, asset.Symbol)
	}
	quotes := make([]models.Quote, len(bars))
	for i, b := range bars {
		quotes[i] = models.Quote{Date: b.Date, Price: b.Close}
	}
	return models.PriceSeries{Quotes: quotes, Currency: quoteCurrency(asset)}, nil
}

func (e *EODHD) LastPrice(ctx context.Context, asset models.AssetInfo) (float64, string, error) {
	q, err := e.client.GetRealTimeQuote(ctx, asset.Symbol)
	if err != nil {
		return 0, "", fmt.Errorf("eodhd real-time %s: %w", asset.Symbol, err)
	}
	if q.Close <= 0 {
		return 0, "", fmt.Errorf("%w: no live quote for %s", ErrNoData, asset.Symbol)
	}
	return q.Close, quoteCurrency(asset), nil
}

var exchangeCurrency = map[string]string{
	"US": "USD", "AS": "EUR", "PA": "EUR", "XETRA": "EUR", "F": "EUR", "MI": "EUR",
	"MC": "EUR", "BR": "EUR", "LS": "EUR", "VI": "EUR", "HE": "EUR", "IR": "EUR",
	"LSE": "GBP", "SW": "CHF", "TO": "CAD", "AU": "AUD",
}

// quoteCurrency derives the currency of an EODHD ticker from its exchange
// suffix unless the asset overrides it.
func quoteCurrency(asset models.AssetInfo) string {
	if asset.Currency != "" {
		return asset.Currency
	}
	i := strings.LastIndex(asset.Symbol, ".")
	if i < 0 {
		return ""
	}
	code, exchange := asset.Symbol[:i], strings.ToUpper(asset.Symbol[i+1:])
	switch exchange {
	case "CC":
		// BTC-EUR.CC
		if j := strings.LastIndex(code, "-"); j >= 0 {
			return strings.ToUpper(code[j+1:])
		}
		return "USD"
	case "FOREX":
		// USDEUR.FOREX
		if len(code) == 6 {
			return strings.ToUpper(code[3:])
		}
		return ""
	}
	return exchangeCurrency[exchange]
}
