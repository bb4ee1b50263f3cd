package portfolio

import (
	"time"

	"folio/internal/models"

	"github.com/Rhymond/go-money"
)

// Summary line names besides the configured cash components.
const (
	LineCash        = "cash"
	LinePortfolio   = "portfolio"
	LineTotal       = "total"
	LineGains       = "gains"
	LineWindowGains = "window_gains"
)

// Summary decomposes the account into the configured cash components, each
// as its flow after the window start day, followed by cash, portfolio value,
// total and the gain over deposits both overall and within the window.
func (p *Portfolio) Summary(window string) (*models.Summary, error) {
	if !p.refreshed {
		return nil, ErrNotRefreshed
	}
	since, hasBase, err := p.windowBase(window)
	if err != nil {
		return nil, err
	}

	allTime := p.flows(time.Time{}, p.today)
	inWindow := allTime
	startEquity := 0.0
	if hasBase {
		inWindow = p.flows(since.AddDate(0, 0, 1), p.today)
		atStart := p.flows(time.Time{}, since)
		startEquity = p.valueOn(since) + p.cashOf(atStart) - atStart[models.CashDeposit]
	}

	out := &models.Summary{Window: window}
	for _, c := range p.settings.Cash.Components {
		out.Lines = append(out.Lines, p.line(c, inWindow[models.CashCategory(c)]))
	}

	cash := p.cashOf(allTime)
	value := p.valueOn(p.today)
	total := value + cash
	gains := total - allTime[models.CashDeposit]

	out.Lines = append(out.Lines,
		p.line(LineCash, cash),
		p.line(LinePortfolio, value),
		p.line(LineTotal, total),
		p.line(LineGains, gains),
		p.line(LineWindowGains, gains-startEquity),
	)
	return out, nil
}

func (p *Portfolio) line(name string, amount float64) models.SummaryLine {
	return models.SummaryLine{
		Name:    name,
		Amount:  roundMoney(amount),
		Display: money.NewFromFloat(amount, p.settings.BaseCurrency).Display(),
	}
}

// flows sums every cash component over the days [from, to]. A zero from
// starts at the first movement.
func (p *Portfolio) flows(from, to time.Time) map[models.CashCategory]float64 {
	out := map[models.CashCategory]float64{}
	within := func(ts time.Time) bool {
		day := models.Day(ts)
		return (from.IsZero() || !day.Before(from)) && !day.After(to)
	}
	for _, a := range p.assets {
		for _, t := range a.Transactions {
			if !within(t.Timestamp) {
				continue
			}
			switch {
			case t.Kind == models.KindDividend:
				out[models.CashDividend] += t.Value
			case t.Value < 0:
				out[models.CashPurchases] += t.Value
				out[models.CashBrokerageFees] += t.Fee
			default:
				out[models.CashSales] += t.Value
				out[models.CashBrokerageFees] += t.Fee
			}
		}
	}
	for _, m := range p.cash {
		if within(m.Timestamp) {
			out[m.Category] += m.Amount
		}
	}
	return out
}

func (p *Portfolio) cashOf(flows map[models.CashCategory]float64) float64 {
	cash := 0.0
	for _, c := range p.settings.Cash.Components {
		cash += flows[models.CashCategory(c)]
	}
	return cash
}

// valueOn sums the value of valued assets on day.
func (p *Portfolio) valueOn(day time.Time) float64 {
	v := 0.0
	for _, a := range p.assets {
		if pt, ok := a.Series().At(day); ok {
			v += pt.Value
		}
	}
	return v
}
