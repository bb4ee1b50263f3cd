package portfolio

import (
	"time"

	"folio/internal/models"

	"github.com/shopspring/decimal"
)

// Names of the daily tables.
const (
	TableGains        = "gains"
	TableGainsPercent = "gains_percent"
	TableValues       = "values"
	TablePrices       = "prices"
)

// TableNames lists the daily tables in the order DailyTables returns them.
var TableNames = []string{TableGains, TableGainsPercent, TableValues, TablePrices}

type bucket struct {
	gain, value, buyCost float64
}

func (b *bucket) add(pt models.DailyPoint) {
	b.gain += pt.Gain
	b.value += pt.Value
	b.buyCost += pt.BuyCost
}

// DailyTables builds one row per day from the creation date through today.
// Total and type columns are present every day, asset columns only on days
// the asset has a value. Sums use full precision and are rounded once.
func (p *Portfolio) DailyTables() ([]models.Table, error) {
	if !p.refreshed {
		return nil, ErrNotRefreshed
	}
	types := p.types()
	groups := append([]string{TotalKey}, types...)
	columns := append([]string(nil), groups...)
	for _, a := range p.assets {
		if a.Series() != nil {
			columns = append(columns, p.columns[a.Info.ID])
		}
	}
	priceColumns := columns[len(groups):]

	gains := models.Table{Name: TableGains, Columns: columns}
	percents := models.Table{Name: TableGainsPercent, Columns: columns}
	values := models.Table{Name: TableValues, Columns: columns}
	prices := models.Table{Name: TablePrices, Columns: priceColumns}

	for day := p.start(); !day.After(p.today); day = day.AddDate(0, 0, 1) {
		sums := make(map[string]*bucket, len(groups))
		for _, g := range groups {
			sums[g] = &bucket{}
		}
		g := models.TableRow{Date: day, Values: map[string]decimal.Decimal{}}
		gp := models.TableRow{Date: day, Values: map[string]decimal.Decimal{}}
		v := models.TableRow{Date: day, Values: map[string]decimal.Decimal{}}
		pr := models.TableRow{Date: day, Values: map[string]decimal.Decimal{}}

		for _, a := range p.assets {
			pt, ok := a.Series().At(day)
			if !ok {
				continue
			}
			sums[TotalKey].add(pt)
			if typ := p.typeOf(a); typ != "" {
				sums[typ].add(pt)
			}
			col := p.columns[a.Info.ID]
			g.Values[col] = roundMoney(pt.Gain)
			gp.Values[col] = roundMoney(percent(pt.Gain, pt.BuyCost))
			v.Values[col] = roundMoney(pt.Value)
			pr.Values[col] = roundPrice(pt.Price)
		}
		for _, name := range groups {
			b := sums[name]
			g.Values[name] = roundMoney(b.gain)
			gp.Values[name] = roundMoney(percent(b.gain, b.buyCost))
			v.Values[name] = roundMoney(b.value)
		}

		gains.Rows = append(gains.Rows, g)
		percents.Rows = append(percents.Rows, gp)
		values.Rows = append(values.Rows, v)
		prices.Rows = append(prices.Rows, pr)
	}
	return []models.Table{gains, percents, values, prices}, nil
}

// start is the creation date, or the first transaction when none is set.
func (p *Portfolio) start() time.Time {
	if c := p.settings.Creation(); !c.IsZero() {
		return models.Day(c)
	}
	if first, ok := p.firstDay(); ok {
		return first
	}
	return p.today
}

func roundMoney(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v).Round(2)
}

func roundPrice(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v).Round(4)
}

func nullMoney(v float64) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: roundMoney(v), Valid: true}
}
