package feed

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"folio/internal/models"

	"github.com/sirupsen/logrus"
)

var dateLayouts = []string{
	"02-01-2006 15:04",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006-01-02",
}

// CSVSource reads a transaction export with a header row. Recognised columns
// are date, asset, id, exchange, quantity, value, fees, description,
// currency, type and symbol; date, id and value are required.
type CSVSource struct {
	name    string
	path    string
	decimal string
	log     *logrus.Logger
}

// CSVOption configures a CSVSource.
type CSVOption func(*CSVSource)

// WithDecimalMark fixes the decimal separator of amounts to "," or ".".
// Without it the separator is guessed per amount.
func WithDecimalMark(mark string) CSVOption {
	return func(s *CSVSource) { s.decimal = mark }
}

func NewCSVSource(name, path string, log *logrus.Logger, opts ...CSVOption) *CSVSource {
	if name == "" {
		name = path
	}
	s := &CSVSource{name: name, path: path, log: log}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *CSVSource) Name() string { return s.name }

func (s *CSVSource) Fetch(ctx context.Context) (models.Batch, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return models.Batch{}, err
	}
	defer f.Close()
	rows, err := s.parse(ctx, f)
	if err != nil {
		return models.Batch{}, fmt.Errorf("%s: %w", s.path, err)
	}
	return models.Batch{Source: s.name, Rows: rows}, nil
}

func (s *CSVSource) parse(ctx context.Context, r io.Reader) ([]models.RawRow, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	cols := map[string]int{}
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	for _, required := range []string{"date", "id", "value"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("missing column %q", required)
		}
	}

	var rows []models.RawRow
	for line := 2; ; line++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		field := func(name string) string {
			i, ok := cols[name]
			if !ok || i >= len(rec) {
				return ""
			}
			return strings.TrimSpace(rec[i])
		}

		amount := func(name string) float64 {
			v, ambiguous := parseAmount(field(name), s.decimal)
			if ambiguous {
				s.log.Warnf("%s line %d: %s %q read as a decimal comma; set the source's decimal mark to be sure", s.name, line, name, field(name))
			}
			return v
		}

		ts, ok := parseDate(field("date"))
		if !ok {
			s.log.Warnf("%s line %d: unparseable date %q", s.name, line, field("date"))
		}
		rows = append(rows, models.RawRow{
			Timestamp:   ts,
			AssetID:     field("id"),
			AssetName:   field("asset"),
			Venue:       field("exchange"),
			Value:       amount("value"),
			Quantity:    amount("quantity"),
			Fee:         amount("fees"),
			Description: field("description"),
			Currency:    strings.ToUpper(field("currency")),
			Type:        field("type"),
			Symbol:      field("symbol"),
		})
	}
	return rows, nil
}

// parseDate returns the zero time when no layout matches; the normalizer
// drops such rows as malformed.
func parseDate(v string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// parseAmount reads an amount whose decimal mark is "," or ".", or guessed
// when mark is empty. Guessing takes the last separator as the decimal mark
// unless it repeats. A lone comma followed by exactly three digits, as in
// "1,234", could be either and is reported as ambiguous. Empty is zero;
// garbage is NaN so the row is dropped downstream.
func parseAmount(v, mark string) (float64, bool) {
	v = strings.ReplaceAll(strings.TrimSpace(v), " ", "")
	if v == "" {
		return 0, false
	}
	ambiguous := false
	if mark == "" {
		mark, ambiguous = guessDecimalMark(v)
	}
	switch mark {
	case ",":
		v = strings.ReplaceAll(v, ".", "")
		v = strings.Replace(v, ",", ".", 1)
	default:
		v = strings.ReplaceAll(v, ",", "")
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return math.NaN(), false
	}
	return f, ambiguous
}

func guessDecimalMark(v string) (string, bool) {
	dots, commas := strings.Count(v, "."), strings.Count(v, ",")
	switch {
	case dots > 0 && commas > 0:
		if strings.LastIndex(v, ",") > strings.LastIndex(v, ".") {
			return ",", false
		}
		return ".", false
	case commas > 1:
		return ".", false
	case dots > 1:
		return ",", false
	case commas == 1:
		return ",", len(v)-strings.Index(v, ",")-1 == 3
	}
	return ".", false
}
