package normalizer

import (
	"context"

	"folio/internal/config"
	"folio/internal/models"

	"github.com/sirupsen/logrus"
)

// MetadataResolver maps an asset id to its type and symbol.
type MetadataResolver interface {
	LookupAsset(ctx context.Context, id string) (models.AssetInfo, bool, error)
}

// StaticMetadata is a fixed id → metadata table, typically the curated assets
// of the settings file.
type StaticMetadata map[string]models.AssetInfo

// FromSettings builds the curated metadata table of s.
func FromSettings(s *config.Settings) StaticMetadata {
	m := make(StaticMetadata, len(s.Assets))
	for id, a := range s.Assets {
		m[id] = a.Info(id)
	}
	return m
}

func (m StaticMetadata) LookupAsset(_ context.Context, id string) (models.AssetInfo, bool, error) {
	info, ok := m[id]
	if !ok || info.Type == "" {
		return models.AssetInfo{}, false, nil
	}
	return info, true, nil
}

// Chain tries each resolver in order and returns the first match. A failing
// resolver is logged and skipped.
type Chain struct {
	resolvers []MetadataResolver
	log       *logrus.Logger
}

func NewChain(log *logrus.Logger, resolvers ...MetadataResolver) *Chain {
	return &Chain{resolvers: resolvers, log: log}
}

func (c *Chain) LookupAsset(ctx context.Context, id string) (models.AssetInfo, bool, error) {
	for _, r := range c.resolvers {
		if r == nil {
			continue
		}
		info, ok, err := r.LookupAsset(ctx, id)
		if err != nil {
			c.log.Warnf("asset metadata lookup for %s failed: %v", id, err)
			continue
		}
		if ok {
			return info, true, nil
		}
	}
	return models.AssetInfo{}, false, nil
}
