// Package config loads marketpulse settings from YAML with environment
// overrides for secrets.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"

	"marketpulse/internal/provider"
)

type Cache struct {
	TTL      time.Duration `yaml:"ttl"`
	MaxItems int           `yaml:"max_items"`
}

type HTTP struct {
	Timeout   time.Duration `yaml:"timeout"`
	UserAgent string        `yaml:"user_agent"`
}

type Failover struct {
	// MaxRetries is the number of attempts per endpoint, including the first.
	MaxRetries      int           `yaml:"max_retries"`
	Delay           time.Duration `yaml:"delay"`
	RotateOnTimeout bool          `yaml:"rotate_on_timeout"`
}

// Crypto selects the crypto source: "coingecko", "binance", or "both"
// (merged, newest quote wins). Binance needs a pair for every id in
// BinanceSymbols.
type Crypto struct {
	Enabled          bool              `yaml:"enabled"`
	Source           string            `yaml:"source"`
	IDs              []string          `yaml:"ids"`
	CoinGeckoAPIKey  string            `yaml:"coingecko_api_key"`
	BinanceEndpoints []string          `yaml:"binance_endpoints"`
	BinanceSymbols   map[string]string `yaml:"binance_symbols"`
}

// Stocks selects "finnhub" or "alphavantage". A zero Delay uses the
// source's own pacing.
type Stocks struct {
	Enabled            bool          `yaml:"enabled"`
	Source             string        `yaml:"source"`
	Symbols            []string      `yaml:"symbols"`
	FinnhubAPIKey      string        `yaml:"finnhub_api_key"`
	AlphaVantageAPIKey string        `yaml:"alphavantage_api_key"`
	Delay              time.Duration `yaml:"delay"`
}

type Metals struct {
	Enabled bool     `yaml:"enabled"`
	Codes   []string `yaml:"codes"`
	APIKey  string   `yaml:"api_key"`
}

// FX works without an API key through the keyless endpoint.
type FX struct {
	Enabled bool     `yaml:"enabled"`
	Base    string   `yaml:"base"`
	Codes   []string `yaml:"codes"`
	APIKey  string   `yaml:"api_key"`
}

type Weather struct {
	Enabled bool            `yaml:"enabled"`
	Sites   []provider.Site `yaml:"sites"`
	// Country is applied to sites given without one.
	Country string        `yaml:"country"`
	APIKey  string        `yaml:"api_key"`
	Delay   time.Duration `yaml:"delay"`
}

// Local is the stablecoin pair used to price everything in the local
// currency, e.g. tether/idr.
type Local struct {
	Enabled  bool   `yaml:"enabled"`
	Asset    string `yaml:"asset"`
	Currency string `yaml:"currency"`
}

func (l Local) Pair() provider.Pair { return provider.Pair{Asset: l.Asset, Currency: l.Currency} }

type TerminalSink struct {
	Enabled bool `yaml:"enabled"`
}

type ChatSink struct {
	Enabled bool   `yaml:"enabled"`
	BaseURL string `yaml:"base_url"`
	To      string `yaml:"to"`
}

type RedisSink struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	Key      string        `yaml:"key"`
	Channel  string        `yaml:"channel"`
	TTL      time.Duration `yaml:"ttl"`
}

type KafkaSink struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type HTTPSink struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

type Sinks struct {
	Terminal TerminalSink `yaml:"terminal"`
	Chat     ChatSink     `yaml:"chat"`
	Redis    RedisSink    `yaml:"redis"`
	Kafka    KafkaSink    `yaml:"kafka"`
	HTTP     HTTPSink     `yaml:"http"`
}

// Log configures the process logger. Output is "stderr", "file" or "both".
type Log struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	Output     string `yaml:"output"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

type Config struct {
	Interval time.Duration `yaml:"interval"`
	Timezone string        `yaml:"timezone"`

	Cache    Cache    `yaml:"cache"`
	HTTP     HTTP     `yaml:"http"`
	Failover Failover `yaml:"failover"`

	Crypto  Crypto  `yaml:"crypto"`
	Stocks  Stocks  `yaml:"stocks"`
	Metals  Metals  `yaml:"metals"`
	FX      FX      `yaml:"fx"`
	Weather Weather `yaml:"weather"`
	Local   Local   `yaml:"local"`

	Sinks Sinks `yaml:"sinks"`
	Log   Log   `yaml:"log"`
}

// Location resolves Timezone, falling back to the local zone.
func (c Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// DefaultPath is $XDG_CONFIG_HOME/marketpulse/config.yaml when it exists,
// otherwise ./config.yaml.
func DefaultPath() string {
	p := filepath.Join(xdg.ConfigHome, "marketpulse", "config.yaml")
	if _, err := os.Stat(p); err == nil {
		return p
	}
	return "config.yaml"
}

// Load reads YAML config over the defaults, expanding ${VAR} references. A
// missing file yields the defaults. Environment variables then override secrets
// and a few scheduling knobs.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		path = DefaultPath()
	}
	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	for i := range cfg.Weather.Sites {
		if cfg.Weather.Sites[i].Country == "" {
			cfg.Weather.Sites[i].Country = cfg.Weather.Country
		}
	}
	return cfg, nil
}
