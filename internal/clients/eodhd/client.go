// Package eodhd is a small client for the EODHD market data API.
package eodhd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"folio/internal/config"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL   = "https://eodhd.com/api"
	DefaultTimeout   = 30 * time.Second
	DefaultRateLimit = 10 // requests per second
)

// flexFloat64 accepts numbers, numeric strings and "NA".
type flexFloat64 float64

func (f *flexFloat64) UnmarshalJSON(data []byte) error {
	var num float64
	if err := json.Unmarshal(data, &num); err == nil {
		*f = flexFloat64(num)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		num, err := strconv.ParseFloat(s, 64)
		if err != nil {
			*f = 0
			return nil
		}
		*f = flexFloat64(num)
		return nil
	}
	return fmt.Errorf("cannot unmarshal %s into float64", string(data))
}

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	log        *logrus.Logger
	limiter    *rate.Limiter
}

// ClientOption configures the client.
type ClientOption func(*Client)

func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		if baseURL != "" {
			c.baseURL = baseURL
		}
	}
}

func WithLogger(log *logrus.Logger) ClientOption {
	return func(c *Client) {
		c.log = log
	}
}

// WithRateLimit sets the rate limit in requests per second.
func WithRateLimit(requestsPerSecond int) ClientOption {
	return func(c *Client) {
		if requestsPerSecond > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
		}
	}
}

func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

func NewClient(apiKey string, opts ...ClientOption) *Client {
	log := logrus.New()
	log.SetOutput(io.Discard)
	c := &Client{
		baseURL:    DefaultBaseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		limiter:    rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
		log:        log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// APIError is a non-200 answer from the API.
type APIError struct {
	StatusCode int
	Message    string
	Endpoint   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("EODHD API error: %s (status: %d, endpoint: %s)", e.Message, e.StatusCode, e.Endpoint)
}

// get performs a rate-limited GET request and decodes the JSON body.
func (c *Client) get(ctx context.Context, path string, params url.Values, result interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	if params == nil {
		params = url.Values{}
	}
	params.Set("api_token", c.apiKey)
	params.Set("fmt", "json")

	reqURL := fmt.Sprintf("%s%s?%s", c.baseURL, path, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	c.log.WithField("url", c.baseURL+path).Debug("EODHD API request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Message: string(body), Endpoint: path}
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// Bar is one end-of-day price.
type Bar struct {
	Date          time.Time
	Close         float64
	AdjustedClose float64
}

type eodBarResponse struct {
	Date          string      `json:"date"`
	Close         flexFloat64 `json:"close"`
	AdjustedClose flexFloat64 `json:"adjusted_close"`
}

// GetEOD returns daily bars from from (inclusive) in ascending date order.
func (c *Client) GetEOD(ctx context.Context, ticker string, from time.Time) ([]Bar, error) {
	params := url.Values{}
	params.Set("period", "d")
	params.Set("order", "a")
	if !from.IsZero() {
		params.Set("from", from.Format("2006-01-02"))
	}

	var raw []eodBarResponse
	if err := c.get(ctx, "/eod/"+ticker, params, &raw); err != nil {
		return nil, err
	}
	bars := make([]Bar, 0, len(raw))
	for _, b := range raw {
		d, err := time.Parse("2006-01-02", b.Date)
		if err != nil {
			c.log.Warnf("eodhd %s: skipping bar with bad date %q", ticker, b.Date)
			continue
		}
		bars = append(bars, Bar{Date: d, Close: float64(b.Close), AdjustedClose: float64(b.AdjustedClose)})
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })
	return bars, nil
}

// RealTimeQuote is the delayed live quote of a ticker.
type RealTimeQuote struct {
	Code      string
	Timestamp time.Time
	Close     float64
}

type realTimeResponse struct {
	Code      string      `json:"code"`
	Timestamp flexFloat64 `json:"timestamp"`
	Close     flexFloat64 `json:"close"`
}

func (c *Client) GetRealTimeQuote(ctx context.Context, ticker string) (*RealTimeQuote, error) {
	var raw realTimeResponse
	if err := c.get(ctx, "/real-time/"+ticker, nil, &raw); err != nil {
		return nil, err
	}
	return &RealTimeQuote{
		Code:      raw.Code,
		Timestamp: time.Unix(int64(raw.Timestamp), 0),
		Close:     float64(raw.Close),
	}, nil
}

// Fundamentals holds the look-through weights of an ETF, in percent.
type Fundamentals struct {
	Type     string
	Holdings map[string]float64
	Sectors  map[string]float64
	Regions  map[string]float64
}

type fundamentalsResponse struct {
	General struct {
		Code string `json:"Code"`
		Name string `json:"Name"`
		Type string `json:"Type"`
	} `json:"General"`
	ETFData struct {
		Holdings map[string]struct {
			Name          string      `json:"Name"`
			AssetsPercent flexFloat64 `json:"Assets_%"`
		} `json:"Holdings"`
		SectorWeights map[string]struct {
			EquityPercent flexFloat64 `json:"Equity_%"`
		} `json:"Sector_Weights"`
		WorldRegions map[string]struct {
			EquityPercent flexFloat64 `json:"Equity_%"`
		} `json:"World_Regions"`
	} `json:"ETF_Data"`
}

func (c *Client) GetFundamentals(ctx context.Context, ticker string) (*Fundamentals, error) {
	var resp fundamentalsResponse
	if err := c.get(ctx, "/fundamentals/"+ticker, nil, &resp); err != nil {
		return nil, err
	}
	f := &Fundamentals{
		Type:     resp.General.Type,
		Holdings: make(map[string]float64, len(resp.ETFData.Holdings)),
		Sectors:  make(map[string]float64, len(resp.ETFData.SectorWeights)),
		Regions:  make(map[string]float64, len(resp.ETFData.WorldRegions)),
	}
	for code, h := range resp.ETFData.Holdings {
		name := h.Name
		if name == "" {
			name = code
		}
		f.Holdings[name] += float64(h.AssetsPercent)
	}
	for sector, w := range resp.ETFData.SectorWeights {
		if float64(w.EquityPercent) > 0 {
			f.Sectors[sector] = float64(w.EquityPercent)
		}
	}
	for region, w := range resp.ETFData.WorldRegions {
		if float64(w.EquityPercent) > 0 {
			f.Regions[region] = float64(w.EquityPercent)
		}
	}
	return f, nil
}

// NewFromConfig builds a client from the eodhd settings section.
func NewFromConfig(cfg config.EODHDConfig, log *logrus.Logger) *Client {
	return NewClient(cfg.APIKey,
		WithBaseURL(cfg.BaseURL),
		WithRateLimit(cfg.RateLimit),
		WithTimeout(cfg.GetTimeout()),
		WithLogger(log),
	)
}
