package portfolio

import (
	"context"
	"errors"

	"folio/internal/composition"
	"folio/internal/models"
)

// Exposure weighs the look-through of every valued position by its current
// value. Assets the resolver knows nothing about count as held directly.
func (p *Portfolio) Exposure(ctx context.Context, resolver composition.Resolver) (models.Exposure, error) {
	if !p.refreshed {
		return models.Exposure{}, ErrNotRefreshed
	}
	var positions []composition.Position
	for _, a := range p.assets {
		last, ok := a.Series().Last()
		if !ok || last.Value <= 0 {
			continue
		}
		pos := composition.Position{Asset: a.Info, Value: last.Value}
		if resolver != nil {
			c, err := resolver.Composition(ctx, a.Info)
			switch {
			case err == nil:
				pos.Composition = &c
			case ctx.Err() != nil:
				return models.Exposure{}, ctx.Err()
			case !errors.Is(err, composition.ErrNoComposition):
				p.log.Warnf("composition of %s: %v", a.Info.ID, err)
			}
		}
		positions = append(positions, pos)
	}
	return composition.Weigh(positions), nil
}
