package feed

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"folio/internal/config"
	"folio/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "transactions.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

const export = `date,asset,id,exchange,quantity,value,fees,description,currency
04-03-2024 10:15,ISHARES CORE MSCI WORLD,IE00B4L5Y983,EAM,10,"-1000,50","-2,00",Achat 10 @ 100,EUR
05-03-2024 09:00,,,,0,1500,0,Versement de fonds,EUR
2024-03-06 12:00:00,APPLE INC,US0378331005,NDQ,0,"1,234.56",0,Dividende,USD
not a date,APPLE INC,US0378331005,NDQ,1,-150,0,Achat,USD
`

func TestCSVSourceParsesExport(t *testing.T) {
	src := NewCSVSource("degiro", writeFile(t, export), config.NewSilentLogger())
	assert.Equal(t, "degiro", src.Name())

	b, err := src.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "degiro", b.Source)
	require.Len(t, b.Rows, 4)

	first := b.Rows[0]
	assert.Equal(t, time.Date(2024, 3, 4, 10, 15, 0, 0, time.UTC), first.Timestamp)
	assert.Equal(t, "IE00B4L5Y983", first.AssetID)
	assert.Equal(t, "ISHARES CORE MSCI WORLD", first.AssetName)
	assert.Equal(t, "EAM", first.Venue)
	assert.InDelta(t, -1000.50, first.Value, 1e-9)
	assert.InDelta(t, 10, first.Quantity, 1e-9)
	assert.InDelta(t, -2, first.Fee, 1e-9)
	assert.Equal(t, "EUR", first.Currency)

	assert.Empty(t, b.Rows[1].AssetID)
	assert.InDelta(t, 1234.56, b.Rows[2].Value, 1e-9)
	assert.Equal(t, "USD", b.Rows[2].Currency)

	assert.True(t, b.Rows[3].Timestamp.IsZero(), "bad dates are kept for the normalizer to drop")
}

func TestCSVSourceMissingColumn(t *testing.T) {
	src := NewCSVSource("", writeFile(t, "date,asset,quantity\n"), config.NewSilentLogger())
	_, err := src.Fetch(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), `missing column "id"`)
}

func TestCSVSourceMissingFile(t *testing.T) {
	src := NewCSVSource("manual", filepath.Join(t.TempDir(), "nope.csv"), config.NewSilentLogger())
	_, err := src.Fetch(context.Background())
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in, mark  string
		want      float64
		ambiguous bool
	}{
		{"", "", 0, false},
		{"12", "", 12, false},
		{"-12.5", "", -12.5, false},
		{"-12,5", "", -12.5, false},
		{"1.234,56", "", 1234.56, false},
		{"1,234.56", "", 1234.56, false},
		{" 1 234,5 ", "", 1234.5, false},
		{"1,234,567", "", 1234567, false},
		{"1.234.567", "", 1234567, false},
		{"1,234", "", 1.234, true},
		{"1,234", ".", 1234, false},
		{"1,234", ",", 1.234, false},
		{"1.234,5", ",", 1234.5, false},
		{"1,234,567.25", ".", 1234567.25, false},
	}
	for _, tt := range tests {
		got, ambiguous := parseAmount(tt.in, tt.mark)
		assert.InDelta(t, tt.want, got, 1e-9, "%q with mark %q", tt.in, tt.mark)
		assert.Equal(t, tt.ambiguous, ambiguous, "%q with mark %q", tt.in, tt.mark)
	}
	got, _ := parseAmount("n/a", "")
	assert.True(t, math.IsNaN(got))
}

func TestCSVSourceDecimalMark(t *testing.T) {
	path := writeFile(t, "date,id,quantity,value\n2024-03-04,US0378331005,1,\"-1,234\"\n")

	b, err := NewCSVSource("broker", path, config.NewSilentLogger(), WithDecimalMark(".")).Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, b.Rows, 1)
	assert.InDelta(t, -1234, b.Rows[0].Value, 1e-9)

	b, err = NewCSVSource("broker", path, config.NewSilentLogger()).Fetch(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, -1.234, b.Rows[0].Value, 1e-9)
}

func TestParseDateLayouts(t *testing.T) {
	want := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	for _, in := range []string{"04-03-2024 00:00", "2024-03-04 00:00:00", "2024-03-04T00:00:00Z", "2024-03-04"} {
		got, ok := parseDate(in)
		require.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}
	_, ok := parseDate("03/04/2024")
	assert.False(t, ok)
}

type memStore struct {
	txs  []models.Transaction
	cash []models.CashMovement
	err  error
}

func (m memStore) Transactions(context.Context) ([]models.Transaction, error) { return m.txs, m.err }

func (m memStore) CashMovements(context.Context) ([]models.CashMovement, error) { return m.cash, m.err }

func TestStoredSourceReplaysInOrder(t *testing.T) {
	d := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)
	store := memStore{
		txs: []models.Transaction{
			{Timestamp: d.Add(2 * time.Hour), AssetID: "A", Value: 5, Kind: models.KindDividend, Description: "Dividend"},
			{Timestamp: d, AssetID: "A", Value: -100, Quantity: 1, Fee: -1, Kind: models.KindBuy},
		},
		cash: []models.CashMovement{{Timestamp: d.Add(-time.Hour), Category: models.CashDeposit, Amount: 200, Description: "Deposit"}},
	}
	b, err := NewStoredSource("", store).Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, KindStored, b.Source)
	require.Len(t, b.Rows, 3)
	assert.Equal(t, "Deposit", b.Rows[0].Description)
	assert.Equal(t, "A", b.Rows[1].AssetID)
	assert.InDelta(t, -1, b.Rows[1].Fee, 1e-9)
	assert.Equal(t, "Dividend", b.Rows[2].Description)
}

type failingSource struct{}

func (failingSource) Name() string { return "broken" }

func (failingSource) Fetch(context.Context) (models.Batch, error) {
	return models.Batch{}, errors.New("boom")
}

func TestFetchAllFailsOnAnySource(t *testing.T) {
	ok := NewStoredSource("stored", memStore{})
	_, err := FetchAll(context.Background(), []Source{ok, failingSource{}}, config.NewSilentLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fetch broken")
}

func TestFromSettings(t *testing.T) {
	s := config.Default()
	s.Sources = []config.SourceConfig{
		{Name: "degiro", Kind: KindCSV, Path: "degiro.csv", Decimal: ","},
		{Name: "db", Kind: KindStored},
	}
	sources, err := FromSettings(s, memStore{}, config.NewSilentLogger())
	require.NoError(t, err)
	require.Len(t, sources, 2)
	assert.Equal(t, "degiro", sources[0].Name())
	assert.Equal(t, "db", sources[1].Name())
	csvSource, ok := sources[0].(*CSVSource)
	require.True(t, ok)
	assert.Equal(t, ",", csvSource.decimal)

	_, err = FromSettings(s, nil, config.NewSilentLogger())
	assert.Error(t, err)

	s.Sources = []config.SourceConfig{{Name: "x", Kind: "ftp"}}
	_, err = FromSettings(s, nil, config.NewSilentLogger())
	assert.Error(t, err)
}
