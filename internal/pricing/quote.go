package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"folio/internal/models"

	"github.com/PaesslerAG/jsonpath"
)

// JSONQuoter reads a live price out of any JSON endpoint with a jsonpath
// expression, e.g. "$.points[-1:].y" on an exchange's intraday chart.
type JSONQuoter struct {
	url      string
	path     string
	currency string
	cli      *http.Client
}

func NewJSONQuoter(url, path, currency string) *JSONQuoter {
	return &JSONQuoter{
		url:      url,
		path:     path,
		currency: strings.ToUpper(currency),
		cli:      &http.Client{Timeout: 10 * time.Second},
	}
}

func (q *JSONQuoter) LastPrice(ctx context.Context, asset models.AssetInfo) (float64, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, q.url, nil)
	if err != nil {
		return 0, "", err
	}
	resp, err := q.cli.Do(req)
	if err != nil {
		return 0, "", fmt.Errorf("live quote %s: %w", asset.ID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, "", fmt.Errorf("live quote %s: http %d", asset.ID, resp.StatusCode)
	}

	var doc interface{}
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return 0, "", fmt.Errorf("live quote %s: %w", asset.ID, err)
	}
	val, err := jsonpath.Get(q.path, doc)
	if err != nil {
		return 0, "", fmt.Errorf("live quote %s: evaluating %q: %w", asset.ID, q.path, err)
	}
	// a filter or slice yields a list; keep its first element
	if list, ok := val.([]interface{}); ok {
		if len(list) == 0 {
			return 0, "", fmt.Errorf("%w: %q matched nothing for %s", ErrNoData, q.path, asset.ID)
		}
		val = list[0]
	}

	var price float64
	switch v := val.(type) {
	case float64:
		price = v
	case string:
		price, err = strconv.ParseFloat(strings.ReplaceAll(v, ",", "."), 64)
		if err != nil {
			return 0, "", fmt.Errorf("live quote %s: %q is not a number", asset.ID, v)
		}
	default:
		return 0, "", fmt.Errorf("live quote %s: %q is not a number: %v", asset.ID, q.path, val)
	}
	if price <= 0 {
		return 0, "", fmt.Errorf("%w: non-positive live quote for %s", ErrNoData, asset.ID)
	}

	currency := q.currency
	if currency == "" {
		currency = asset.Currency
	}
	return price, currency, nil
}
