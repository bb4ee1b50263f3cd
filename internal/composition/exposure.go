package composition

import (
	"sort"

	"folio/internal/models"

	"github.com/shopspring/decimal"
)

const (
	keyOther   = "Other"
	keyUnknown = "Unknown"
)

// Position is one valued asset and its look-through, if any.
type Position struct {
	Asset       models.AssetInfo
	Value       float64
	Composition *models.Composition
}

// Weigh combines position compositions weighted by current value into
// percentages of the total. Weights that add up to less than 100 leave the
// remainder in "Unknown", or "Other" for holdings. A position without
// composition is its own holding and "Unknown" elsewhere.
func Weigh(positions []Position) models.Exposure {
	total := 0.0
	for _, p := range positions {
		if p.Value > 0 {
			total += p.Value
		}
	}
	if total == 0 {
		return models.Exposure{}
	}

	countries := map[string]float64{}
	regions := map[string]float64{}
	sectors := map[string]float64{}
	holdings := map[string]float64{}
	for _, p := range positions {
		if p.Value <= 0 {
			continue
		}
		share := p.Value / total
		if p.Composition == nil {
			countries[keyUnknown] += share
			regions[keyUnknown] += share
			sectors[keyUnknown] += share
			holdings[p.Asset.Name] += share
			continue
		}
		spread(countries, p.Composition.Countries, share, keyUnknown)
		spread(regions, p.Composition.Regions, share, keyUnknown)
		spread(sectors, p.Composition.Sectors, share, keyUnknown)
		if len(p.Composition.Holdings) == 0 {
			holdings[p.Asset.Name] += share
		} else {
			spread(holdings, p.Composition.Holdings, share, keyOther)
		}
	}
	return models.Exposure{
		Countries: ranked(countries),
		Regions:   ranked(regions),
		Sectors:   ranked(sectors),
		Holdings:  ranked(holdings),
	}
}

// spread adds share × weight/100 for each key of weights into acc.
func spread(acc, weights map[string]float64, share float64, rest string) {
	sum := 0.0
	for _, w := range weights {
		if w > 0 {
			sum += w
		}
	}
	if sum == 0 {
		acc[rest] += share
		return
	}
	scale := 100.0
	if sum > scale {
		scale = sum
	}
	for k, w := range weights {
		if w > 0 {
			acc[k] += share * w / scale
		}
	}
	if sum < scale {
		acc[rest] += share * (scale - sum) / scale
	}
}

func ranked(m map[string]float64) []models.Weight {
	out := make([]models.Weight, 0, len(m))
	for k, v := range m {
		out = append(out, models.Weight{Key: k, Weight: decimal.NewFromFloat(v * 100).Round(2)})
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].Weight.Cmp(out[j].Weight); c != 0 {
			return c > 0
		}
		return out[i].Key < out[j].Key
	})
	return out
}
