// Package feed reads raw transaction batches from the configured sources.
package feed

import (
	"context"
	"fmt"

	"folio/internal/config"
	"folio/internal/models"

	"github.com/sirupsen/logrus"
)

// Source kinds accepted in settings.
const (
	KindCSV    = "csv"
	KindStored = "stored"
)

// Source produces one batch of raw rows per refresh.
type Source interface {
	Name() string
	Fetch(ctx context.Context) (models.Batch, error)
}

// FromSettings builds the configured sources in order. store backs the
// stored kind and may be nil when no such source is configured.
func FromSettings(s *config.Settings, store Store, log *logrus.Logger) ([]Source, error) {
	var out []Source
	for _, sc := range s.Sources {
		switch sc.Kind {
		case KindCSV, "":
			if sc.Path == "" {
				return nil, fmt.Errorf("source %q: path is required", sc.Name)
			}
			var opts []CSVOption
			if sc.Decimal != "" {
				opts = append(opts, WithDecimalMark(sc.Decimal))
			}
			out = append(out, NewCSVSource(sc.Name, sc.Path, log, opts...))
		case KindStored:
			if store == nil {
				return nil, fmt.Errorf("source %q: no database configured", sc.Name)
			}
			out = append(out, NewStoredSource(sc.Name, store))
		default:
			return nil, fmt.Errorf("source %q: unknown kind %q", sc.Name, sc.Kind)
		}
	}
	return out, nil
}

// FetchAll reads every source in order. Any failing source fails the whole
// fetch since a partial feed would misstate every position it touches.
func FetchAll(ctx context.Context, sources []Source, log *logrus.Logger) ([]models.Batch, error) {
	batches := make([]models.Batch, 0, len(sources))
	for _, src := range sources {
		b, err := src.Fetch(ctx)
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w", src.Name(), err)
		}
		log.WithFields(logrus.Fields{"source": src.Name(), "rows": len(b.Rows)}).Debug("feed fetched")
		batches = append(batches, b)
	}
	return batches, nil
}
