package provider

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Quote is the normalized shape returned by all price providers.
type Quote struct {
	Symbol   string          `json:"symbol"`
	Price    decimal.Decimal `json:"price"`
	Currency string          `json:"currency"`
	Source   string          `json:"source"`
	AsOf     time.Time       `json:"as_of"`
}

// Quotes maps a requested symbol (coin id, ticker, metal code) to its quote.
// A missing key means the symbol is unavailable this cycle.
type Quotes map[string]Quote

// Weather is a single site's current conditions.
type Weather struct {
	Site         string          `json:"site"`
	TemperatureC decimal.Decimal `json:"temperature_c"`
	Description  string          `json:"description"`
	AsOf         time.Time       `json:"as_of"`
}

// Site identifies a weather location. Country is an optional ISO code.
type Site struct {
	City    string `json:"city" yaml:"city"`
	Country string `json:"country,omitempty" yaml:"country,omitempty"`
}

// Key is the site's display and map key, "City" or "City,CC".
func (s Site) Key() string {
	if s.Country == "" {
		return s.City
	}
	return s.City + "," + s.Country
}

// Provider fetches quotes for a list of symbols.
type Provider interface {
	Name() string
	Fetch(ctx context.Context, symbols []string) (Quotes, error)
}

// RateProvider fetches exchange rates quoted against base.
type RateProvider interface {
	Name() string
	Fetch(ctx context.Context, base string, codes []string) (map[string]decimal.Decimal, error)
}

// WeatherProvider fetches conditions per site. A failed site is present with
// a nil value.
type WeatherProvider interface {
	Name() string
	Fetch(ctx context.Context, sites []Site) (map[string]*Weather, error)
}

// Pair is a fixed asset/currency pair, e.g. tether/idr.
type Pair struct {
	Asset    string `yaml:"asset"`
	Currency string `yaml:"currency"`
}

func (p Pair) String() string { return p.Asset + "/" + p.Currency }

// PairRateProvider fetches a single scalar rate for a pair.
type PairRateProvider interface {
	Name() string
	Fetch(ctx context.Context, pair Pair) (decimal.Decimal, error)
}
