// Package config loads the Settings that drive a refresh.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"folio/internal/models"

	"github.com/Rhymond/go-money"
	"github.com/joho/godotenv"
	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Settings holds all configuration for a portfolio refresh.
type Settings struct {
	CreationDate     string   `yaml:"creation_date" toml:"creation_date"`
	BaseCurrency     string   `yaml:"base_currency" toml:"base_currency"`
	IncludeFees      bool     `yaml:"include_fees" toml:"include_fees"`
	IncludeDividends bool     `yaml:"include_dividends" toml:"include_dividends"`
	FractionalTypes  []string `yaml:"fractional_types" toml:"fractional_types"`
	FetchTimeout     string   `yaml:"fetch_timeout" toml:"fetch_timeout"`
	FetchPaddingDays int      `yaml:"fetch_padding_days" toml:"fetch_padding_days"`
	Workers          int      `yaml:"workers" toml:"workers"`

	DatabaseURL string `yaml:"database_url" toml:"database_url"`
	Port        string `yaml:"port" toml:"port"`
	LogLevel    string `yaml:"log_level" toml:"log_level"`
	LogFormat   string `yaml:"log_format" toml:"log_format"`

	EODHD EODHDConfig `yaml:"eodhd" toml:"eodhd"`
	Yahoo YahooConfig `yaml:"yahoo" toml:"yahoo"`

	// FX maps a foreign currency to the pair quoting base units per foreign unit.
	FX map[string]PriceRef `yaml:"fx" toml:"fx"`
	// DefaultSources maps an asset type to a price source name.
	DefaultSources map[string]string      `yaml:"default_sources" toml:"default_sources"`
	Assets         map[string]AssetConfig `yaml:"assets" toml:"assets"`
	Sources        []SourceConfig         `yaml:"sources" toml:"sources"`
	Classify       ClassifyConfig         `yaml:"classify" toml:"classify"`
	Cash           CashConfig             `yaml:"cash" toml:"cash"`
	Windows        []string               `yaml:"windows" toml:"windows"`

	creation time.Time
}

// EODHDConfig holds EODHD API configuration.
type EODHDConfig struct {
	APIKey    string `yaml:"api_key" toml:"api_key"`
	BaseURL   string `yaml:"base_url" toml:"base_url"`
	RateLimit int    `yaml:"rate_limit" toml:"rate_limit"`
	Timeout   string `yaml:"timeout" toml:"timeout"`
}

// GetTimeout parses and returns the timeout duration.
func (c EODHDConfig) GetTimeout() time.Duration {
	return parseDuration(c.Timeout, 30*time.Second)
}

// YahooConfig holds Yahoo chart API configuration.
type YahooConfig struct {
	BaseURL   string `yaml:"base_url" toml:"base_url"`
	RateLimit int    `yaml:"rate_limit" toml:"rate_limit"`
}

// PriceRef points at a price series through a named source.
type PriceRef struct {
	Source string `yaml:"source" toml:"source"`
	Symbol string `yaml:"symbol" toml:"symbol"`
}

// QuoteConfig configures a live last-price lookup.
type QuoteConfig struct {
	URL  string `yaml:"url" toml:"url"`
	Path string `yaml:"path" toml:"path"`
}

// AssetConfig is the curated metadata of one asset.
type AssetConfig struct {
	Name        string              `yaml:"name" toml:"name"`
	Type        string              `yaml:"type" toml:"type"`
	Symbol      string              `yaml:"symbol" toml:"symbol"`
	Venue       string              `yaml:"venue" toml:"venue"`
	PriceSource string              `yaml:"price_source" toml:"price_source"`
	Currency    string              `yaml:"currency" toml:"currency"`
	Quote       QuoteConfig         `yaml:"quote" toml:"quote"`
	Composition *models.Composition `yaml:"composition" toml:"composition"`
}

// Info returns the asset metadata for id.
func (a AssetConfig) Info(id string) models.AssetInfo {
	return models.AssetInfo{
		ID:          id,
		Name:        a.Name,
		Type:        a.Type,
		Symbol:      a.Symbol,
		Venue:       a.Venue,
		PriceSource: a.PriceSource,
		Currency:    strings.ToUpper(a.Currency),
	}
}

// SourceConfig declares one transaction feed.
type SourceConfig struct {
	Name string `yaml:"name" toml:"name"`
	Kind string `yaml:"kind" toml:"kind"`
	Path string `yaml:"path" toml:"path"`
	// Decimal is the decimal mark of csv amounts, "," or "."; empty guesses.
	Decimal string `yaml:"decimal" toml:"decimal"`
}

// ClassifyConfig holds case-insensitive description patterns.
type ClassifyConfig struct {
	Dividend []string            `yaml:"dividend" toml:"dividend"`
	FXCredit []string            `yaml:"fx_credit" toml:"fx_credit"`
	Cash     map[string][]string `yaml:"cash" toml:"cash"`
}

// CashConfig selects which components add up to cash.
type CashConfig struct {
	Components []string `yaml:"components" toml:"components"`
}

// Default returns the settings used when a key is absent from the file.
func Default() *Settings {
	return &Settings{
		BaseCurrency:     "EUR",
		IncludeFees:      true,
		IncludeDividends: true,
		FractionalTypes:  []string{"crypto"},
		FetchTimeout:     "20s",
		FetchPaddingDays: 7,
		Workers:          4,
		Port:             "8080",
		LogLevel:         "info",
		LogFormat:        "text",
		EODHD: EODHDConfig{
			BaseURL:   "https://eodhd.com/api",
			RateLimit: 10,
			Timeout:   "30s",
		},
		Yahoo: YahooConfig{
			BaseURL:   "https://query2.finance.yahoo.com",
			RateLimit: 5,
		},
		DefaultSources: map[string]string{},
		Classify: ClassifyConfig{
			Dividend: []string{"dividend", "dividende", "dividendo"},
			FXCredit: []string{"opération de change", "currency conversion", "fx credit"},
			Cash: map[string][]string{
				string(models.CashDeposit):          {"versement de fonds", "deposit"},
				string(models.CashNonProductFees):   {"frais de connexion", "connectivity", "custo de conectividade"},
				string(models.CashFundCompensation): {"fonds monétaires", "money market"},
				string(models.CashInterest):         {"flatex interest", "interest"},
			},
		},
		Cash: CashConfig{Components: []string{
			string(models.CashPurchases),
			string(models.CashDividend),
			string(models.CashBrokerageFees),
			string(models.CashSales),
			string(models.CashNonProductFees),
			string(models.CashDeposit),
			string(models.CashFundCompensation),
			string(models.CashInterest),
		}},
		Windows: []string{"All", "1Y", "YTD", "1M", "1W", "1D"},
	}
}

// Load reads settings from path (.yaml, .yml or .toml), then applies
// environment overrides. A .env file in the working directory is honoured.
func Load(path string) (*Settings, error) {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	s := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read settings %s: %w", path, err)
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".toml":
			err = toml.Unmarshal(b, s)
		case ".yaml", ".yml":
			err = yaml.Unmarshal(b, s)
		default:
			return nil, fmt.Errorf("unsupported settings format %q", filepath.Ext(path))
		}
		if err != nil {
			return nil, fmt.Errorf("decode settings %s: %w", path, err)
		}
	}
	s.applyEnv()
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Settings) applyEnv() {
	if v := os.Getenv("POSTGRES_URL"); v != "" {
		s.DatabaseURL = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		s.DatabaseURL = v
	}
	if v := os.Getenv("PORT"); v != "" {
		s.Port = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		s.LogLevel = v
	}
	if v := os.Getenv("EODHD_API_KEY"); v != "" {
		s.EODHD.APIKey = v
	}
}

// Validate checks the settings and caches parsed values.
func (s *Settings) Validate() error {
	if s.CreationDate == "" {
		return errors.New("creation_date is required")
	}
	on, err := time.Parse(models.DayLayout, s.CreationDate)
	if err != nil {
		return fmt.Errorf("invalid creation_date %q: %w", s.CreationDate, err)
	}
	s.creation = on
	s.BaseCurrency = strings.ToUpper(s.BaseCurrency)
	if money.GetCurrency(s.BaseCurrency) == nil {
		return fmt.Errorf("unknown base_currency %q", s.BaseCurrency)
	}
	for cur := range s.FX {
		if money.GetCurrency(strings.ToUpper(cur)) == nil {
			return fmt.Errorf("unknown fx currency %q", cur)
		}
	}
	if s.Workers <= 0 {
		return fmt.Errorf("workers must be positive, got %d", s.Workers)
	}
	if s.FetchPaddingDays < 0 {
		return fmt.Errorf("fetch_padding_days must not be negative, got %d", s.FetchPaddingDays)
	}
	for _, src := range s.Sources {
		if src.Decimal != "" && src.Decimal != "," && src.Decimal != "." {
			return fmt.Errorf("source %q: decimal must be \",\" or \".\", got %q", src.Name, src.Decimal)
		}
	}
	for _, c := range s.Cash.Components {
		if !knownComponent(c) {
			return fmt.Errorf("unknown cash component %q", c)
		}
	}
	return nil
}

func knownComponent(c string) bool {
	switch models.CashCategory(c) {
	case models.CashPurchases, models.CashSales, models.CashDividend, models.CashBrokerageFees,
		models.CashNonProductFees, models.CashDeposit, models.CashFundCompensation, models.CashInterest,
		models.CashOther:
		return true
	}
	return false
}

// Creation returns the account creation day.
func (s *Settings) Creation() time.Time { return s.creation }

// Timeout returns the per-asset price fetch timeout.
func (s *Settings) Timeout() time.Duration {
	return parseDuration(s.FetchTimeout, 20*time.Second)
}

// Fractional reports whether quantities of the asset type are kept fractional.
func (s *Settings) Fractional(typ string) bool {
	for _, t := range s.FractionalTypes {
		if strings.EqualFold(t, typ) {
			return true
		}
	}
	return false
}

func parseDuration(v string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
