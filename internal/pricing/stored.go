package pricing

import (
	"context"
	"fmt"
	"time"

	"folio/internal/models"
)

// PriceStore reads recorded quotes, such as manual valuations of illiquid
// holdings.
type PriceStore interface {
	PriceHistory(ctx context.Context, assetID string, from time.Time) ([]models.Quote, string, error)
}

// Stored serves prices recorded in the repository.
type Stored struct {
	store PriceStore
}

func NewStored(store PriceStore) *Stored {
	return &Stored{store: store}
}

func (s *Stored) Prices(ctx context.Context, asset models.AssetInfo, start time.Time) (models.PriceSeries, error) {
	// quotes recorded before start still seed the forward fill
	quotes, currency, err := s.store.PriceHistory(ctx, asset.ID, time.Time{})
	if err != nil {
		return models.PriceSeries{}, fmt.Errorf("stored prices %s: %w", asset.ID, err)
	}
	if len(quotes) == 0 {
		return models.PriceSeries{}, fmt.Errorf("%w: no recorded prices for %s", ErrNoData, asset.ID)
	}
	if asset.Currency != "" {
		currency = asset.Currency
	}
	return models.PriceSeries{Quotes: quotes, Currency: currency}, nil
}
