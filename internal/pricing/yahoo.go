package pricing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"folio/internal/models"

	"golang.org/x/time/rate"
)

var ErrYahooNoResult = errors.New("yahoo: no result")

// Yahoo reads daily closes from the Yahoo Finance v8 chart API.
type Yahoo struct {
	baseURL string
	cli     *http.Client
	limiter *rate.Limiter
}

func NewYahoo(baseURL string, requestsPerSecond int) *Yahoo {
	if baseURL == "" {
		baseURL = "https://query2.finance.yahoo.com"
	}
	if requestsPerSecond <= 0 {
		requestsPerSecond = 5
	}
	return &Yahoo{
		baseURL: strings.TrimRight(baseURL, "/"),
		cli:     &http.Client{Timeout: 15 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond),
	}
}

type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Currency           string  `json:"currency"`
				RegularMarketPrice float64 `json:"regularMarketPrice"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Close []*float64 `json:"close"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

func (y *Yahoo) chart(ctx context.Context, symbol string, params url.Values) (*chartResponse, error) {
	if err := y.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}
	u := fmt.Sprintf("%s/v8/finance/chart/%s?%s", y.baseURL, url.PathEscape(symbol), params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "folio/1.0")

	resp, err := y.cli.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("yahoo http %d for %s", resp.StatusCode, symbol)
	}

	var raw chartResponse
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, err
	}
	if raw.Chart.Error != nil {
		return nil, fmt.Errorf("yahoo %s: %s", symbol, raw.Chart.Error.Description)
	}
	if len(raw.Chart.Result) == 0 {
		return nil, ErrYahooNoResult
	}
	return &raw, nil
}

func (y *Yahoo) Prices(ctx context.Context, asset models.AssetInfo, start time.Time) (models.PriceSeries, error) {
	if asset.Symbol == "" {
		return models.PriceSeries{}, fmt.Errorf("%w: %s has no symbol", ErrNoData, asset.ID)
	}
	params := url.Values{}
	params.Set("interval", "1d")
	params.Set("period1", strconv.FormatInt(start.Unix(), 10))
	params.Set("period2", strconv.FormatInt(time.Now().Unix(), 10))

	raw, err := y.chart(ctx, asset.Symbol, params)
	if err != nil {
		return models.PriceSeries{}, err
	}
	r := raw.Chart.Result[0]
	var quotes []models.Quote
	if len(r.Indicators.Quote) > 0 {
		closes := r.Indicators.Quote[0].Close
		for i, ts := range r.Timestamp {
			if i >= len(closes) || closes[i] == nil {
				continue
			}
			quotes = append(quotes, models.Quote{Date: models.Day(time.Unix(ts, 0)), Price: *closes[i]})
		}
	}
	if len(quotes) == 0 {
		return models.PriceSeries{}, fmt.Errorf("%w: yahoo returned no closes for %s", ErrNoData, asset.Symbol)
	}
	currency := asset.Currency
	if currency == "" {
		currency = strings.ToUpper(r.Meta.Currency)
	}
	return models.PriceSeries{Quotes: quotes, Currency: currency}, nil
}

func (y *Yahoo) LastPrice(ctx context.Context, asset models.AssetInfo) (float64, string, error) {
	params := url.Values{}
	params.Set("interval", "1m")
	params.Set("range", "1d")
	raw, err := y.chart(ctx, asset.Symbol, params)
	if err != nil {
		return 0, "", err
	}
	meta := raw.Chart.Result[0].Meta
	if meta.RegularMarketPrice <= 0 {
		return 0, "", fmt.Errorf("%w: no live quote for %s", ErrNoData, asset.Symbol)
	}
	currency := asset.Currency
	if currency == "" {
		currency = strings.ToUpper(meta.Currency)
	}
	return meta.RegularMarketPrice, currency, nil
}
