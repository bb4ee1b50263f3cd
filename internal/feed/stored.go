package feed

import (
	"context"
	"sort"

	"folio/internal/models"
)

// Store reads back what an earlier refresh persisted.
type Store interface {
	Transactions(ctx context.Context) ([]models.Transaction, error)
	CashMovements(ctx context.Context) ([]models.CashMovement, error)
}

// StoredSource replays persisted transactions and cash movements, so prices
// can be refreshed without reading the original exports again. Dividend
// amounts were already converted when they were stored.
type StoredSource struct {
	name  string
	store Store
}

func NewStoredSource(name string, store Store) *StoredSource {
	if name == "" {
		name = KindStored
	}
	return &StoredSource{name: name, store: store}
}

func (s *StoredSource) Name() string { return s.name }

func (s *StoredSource) Fetch(ctx context.Context) (models.Batch, error) {
	txs, err := s.store.Transactions(ctx)
	if err != nil {
		return models.Batch{}, err
	}
	cash, err := s.store.CashMovements(ctx)
	if err != nil {
		return models.Batch{}, err
	}

	rows := make([]models.RawRow, 0, len(txs)+len(cash))
	for _, t := range txs {
		rows = append(rows, models.RawRow{
			Timestamp:   t.Timestamp,
			AssetID:     t.AssetID,
			Value:       t.Value,
			Quantity:    t.Quantity,
			Fee:         t.Fee,
			Description: t.Description,
		})
	}
	for _, m := range cash {
		rows = append(rows, models.RawRow{
			Timestamp:   m.Timestamp,
			Value:       m.Amount,
			Description: m.Description,
		})
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Timestamp.Before(rows[j].Timestamp) })
	return models.Batch{Source: s.name, Rows: rows}, nil
}
