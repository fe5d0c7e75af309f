package config

import (
	"maps"
	"slices"
	"time"

	"marketpulse/internal/provider"
)

const (
	DefaultInterval       = 60 * time.Second
	DefaultCacheTTL       = 5 * time.Minute
	DefaultCacheMaxItems  = 1000
	DefaultHTTPTimeout    = provider.RequestTimeout
	DefaultMaxRetries     = 3
	DefaultRetryDelay     = 2 * time.Second
	DefaultCryptoSource   = "coingecko"
	DefaultStockSource    = "finnhub"
	DefaultFXBase         = "USD"
	DefaultWeatherCountry = "ID"
	DefaultPacing         = 500 * time.Millisecond
	DefaultLocalAsset     = "tether"
	DefaultLocalCurrency  = "idr"
	DefaultRedisKey       = "marketpulse:snapshot"
	DefaultRedisChannel   = "marketpulse.snapshots"
	DefaultKafkaTopic     = "marketpulse.snapshots"
	DefaultHTTPAddr       = ":8080"
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "console"
	DefaultLogOutput      = "stderr"
	DefaultLogFile        = "marketpulse.log"
)

var (
	DefaultCryptoIDs = []string{
		"bitcoin", "ethereum", "binancecoin", "solana", "ripple",
		"cardano", "dogecoin", "tron", "avalanche-2", "shiba-inu",
	}
	DefaultStockSymbols = []string{
		"AAPL", "MSFT", "JPM", "V", "WMT",
		"PG", "JNJ", "HD", "KO", "MRK",
	}
	// DefaultBinanceSymbols maps DefaultCryptoIDs to Binance USDT pairs.
	DefaultBinanceSymbols = map[string]string{
		"bitcoin":     "BTCUSDT",
		"ethereum":    "ETHUSDT",
		"binancecoin": "BNBUSDT",
		"solana":      "SOLUSDT",
		"ripple":      "XRPUSDT",
		"cardano":     "ADAUSDT",
		"dogecoin":    "DOGEUSDT",
		"tron":        "TRXUSDT",
		"avalanche-2": "AVAXUSDT",
		"shiba-inu":   "SHIBUSDT",
	}
	DefaultMetalCodes = []string{"XAU", "XAG", "XPT", "XPD"}
	DefaultFXCodes    = []string{"EUR", "GBP", "JPY", "IDR"}
)

// Default returns a Config with every default applied. Load decodes the
// file over it, so an explicit zero in the file is kept and left to
// Validate.
func Default() Config {
	c := Config{
		Crypto: Crypto{Enabled: true, BinanceSymbols: maps.Clone(DefaultBinanceSymbols)},
		FX:     FX{Enabled: true},
		Local:  Local{Enabled: true},
		Sinks:  Sinks{Terminal: TerminalSink{Enabled: true}},
	}
	c.applyDefaults()
	return c
}

func (c *Config) applyDefaults() {
	if c.Interval == 0 {
		c.Interval = DefaultInterval
	}
	if c.Cache.TTL == 0 {
		c.Cache.TTL = DefaultCacheTTL
	}
	if c.Cache.MaxItems == 0 {
		c.Cache.MaxItems = DefaultCacheMaxItems
	}
	if c.HTTP.Timeout == 0 {
		c.HTTP.Timeout = DefaultHTTPTimeout
	}
	if c.Failover.MaxRetries == 0 {
		c.Failover.MaxRetries = DefaultMaxRetries
	}
	if c.Failover.Delay == 0 {
		c.Failover.Delay = DefaultRetryDelay
	}

	if c.Crypto.Source == "" {
		c.Crypto.Source = DefaultCryptoSource
	}
	if c.Crypto.IDs == nil {
		c.Crypto.IDs = slices.Clone(DefaultCryptoIDs)
	}
	if c.Stocks.Source == "" {
		c.Stocks.Source = DefaultStockSource
	}
	if c.Stocks.Symbols == nil {
		c.Stocks.Symbols = slices.Clone(DefaultStockSymbols)
	}
	if c.Metals.Codes == nil {
		c.Metals.Codes = slices.Clone(DefaultMetalCodes)
	}
	if c.FX.Base == "" {
		c.FX.Base = DefaultFXBase
	}
	if c.FX.Codes == nil {
		c.FX.Codes = slices.Clone(DefaultFXCodes)
	}
	if c.Weather.Country == "" {
		c.Weather.Country = DefaultWeatherCountry
	}
	if c.Weather.Delay == 0 {
		c.Weather.Delay = DefaultPacing
	}
	if c.Local.Asset == "" {
		c.Local.Asset = DefaultLocalAsset
	}
	if c.Local.Currency == "" {
		c.Local.Currency = DefaultLocalCurrency
	}

	if c.Sinks.Redis.Key == "" {
		c.Sinks.Redis.Key = DefaultRedisKey
	}
	if c.Sinks.Redis.Channel == "" {
		c.Sinks.Redis.Channel = DefaultRedisChannel
	}
	if c.Sinks.Redis.TTL == 0 {
		c.Sinks.Redis.TTL = c.Cache.TTL
	}
	if c.Sinks.Kafka.Topic == "" {
		c.Sinks.Kafka.Topic = DefaultKafkaTopic
	}
	if c.Sinks.HTTP.Addr == "" {
		c.Sinks.HTTP.Addr = DefaultHTTPAddr
	}

	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}
	if c.Log.Output == "" {
		c.Log.Output = DefaultLogOutput
	}
	if c.Log.File == "" {
		c.Log.File = DefaultLogFile
	}
}
