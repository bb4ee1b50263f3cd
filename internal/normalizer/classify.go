package normalizer

import (
	"sort"
	"strings"

	"folio/internal/config"
	"folio/internal/models"
)

type rowClass int

const (
	classTrade rowClass = iota
	classDividend
	classFXCredit
	classFXDebit
	classCash
)

// classifier matches lower-cased descriptions against configured substrings.
type classifier struct {
	dividend []string
	fxCredit []string
	cash     []cashPattern
}

type cashPattern struct {
	category models.CashCategory
	needles  []string
}

func newClassifier(c config.ClassifyConfig) *classifier {
	cl := &classifier{
		dividend: lower(c.Dividend),
		fxCredit: lower(c.FXCredit),
	}
	keys := make([]string, 0, len(c.Cash))
	for k := range c.Cash {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		cl.cash = append(cl.cash, cashPattern{category: models.CashCategory(k), needles: lower(c.Cash[k])})
	}
	return cl
}

func (c *classifier) classify(r models.RawRow) (rowClass, models.CashCategory) {
	desc := strings.ToLower(r.Description)
	if r.Quantity != 0 {
		return classTrade, ""
	}
	if containsAny(desc, c.fxCredit) {
		if r.Value > 0 {
			return classFXCredit, ""
		}
		return classFXDebit, ""
	}
	if containsAny(desc, c.dividend) {
		return classDividend, ""
	}
	for _, p := range c.cash {
		if containsAny(desc, p.needles) {
			return classCash, p.category
		}
	}
	return classCash, models.CashOther
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if n != "" && strings.Contains(s, n) {
			return true
		}
	}
	return false
}

func lower(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(s)
	}
	return out
}
