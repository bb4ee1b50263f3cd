package pricing

import (
	"time"

	"folio/internal/clients/eodhd"
	"folio/internal/config"

	"github.com/sirupsen/logrus"
)

// Source names usable in price_source and default_sources.
const (
	SourceEODHD  = "eodhd"
	SourceYahoo  = "yahoo"
	SourceStored = "stored"
)

// cacheTTL bounds how long a fetched history is reused across refreshes.
const cacheTTL = 30 * time.Minute

// NewRouterFromSettings wires every configured source. EODHD is only
// registered when an API key is present.
func NewRouterFromSettings(s *config.Settings, store PriceStore, log *logrus.Logger) *Router {
	defaults := map[string]string{"default": SourceYahoo}
	for typ, src := range s.DefaultSources {
		defaults[typ] = src
	}
	r := NewRouter(defaults)

	r.Register(SourceYahoo, NewCached(SourceYahoo, NewYahoo(s.Yahoo.BaseURL, s.Yahoo.RateLimit), cacheTTL))
	if s.EODHD.APIKey != "" {
		client := eodhd.NewFromConfig(s.EODHD, log)
		r.Register(SourceEODHD, NewCached(SourceEODHD, NewEODHD(client), cacheTTL))
	} else {
		log.Debug("eodhd api key not set; eodhd price source disabled")
	}
	if store != nil {
		r.Register(SourceStored, NewStored(store))
	}

	for id, a := range s.Assets {
		if a.Quote.URL != "" && a.Quote.Path != "" {
			r.RegisterQuoter(id, NewJSONQuoter(a.Quote.URL, a.Quote.Path, a.Currency))
		}
	}
	return r
}
