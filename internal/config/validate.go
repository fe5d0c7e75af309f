package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/rs/zerolog"

	"marketpulse/internal/chat"
	"marketpulse/internal/provider/cache"
	"marketpulse/internal/provider/ratelimit"
)

// Validate reports every invalid field, joined.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) { errs = append(errs, fmt.Errorf(format, args...)) }

	if c.Interval <= 0 {
		add("interval must be positive, got %s", c.Interval)
	}
	if c.Cache.TTL < cache.MinTTL || c.Cache.TTL > cache.MaxTTL {
		add("cache.ttl must be between %s and %s, got %s", cache.MinTTL, cache.MaxTTL, c.Cache.TTL)
	}
	if c.Cache.MaxItems < 0 {
		add("cache.max_items must be >= 0")
	}
	if c.HTTP.Timeout <= 0 {
		add("http.timeout must be positive, got %s", c.HTTP.Timeout)
	}
	if c.Failover.MaxRetries < 1 {
		add("failover.max_retries must be >= 1, got %d", c.Failover.MaxRetries)
	}
	if c.Failover.Delay < 0 {
		add("failover.delay must be >= 0")
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}

	if c.Crypto.Enabled {
		if !slices.Contains([]string{"coingecko", "binance", "both"}, c.Crypto.Source) {
			add("crypto.source must be coingecko, binance or both, got %q", c.Crypto.Source)
		}
		if len(c.Crypto.IDs) == 0 {
			add("crypto.ids is required")
		}
		if c.Crypto.Source == "binance" || c.Crypto.Source == "both" {
			for _, id := range c.Crypto.IDs {
				if c.Crypto.BinanceSymbols[id] == "" {
					add("crypto.binance_symbols has no pair for %q", id)
				}
			}
		}
	}
	if c.Stocks.Enabled {
		switch c.Stocks.Source {
		case "finnhub":
			if c.Stocks.FinnhubAPIKey == "" {
				add("stocks.finnhub_api_key is required (or FINNHUB_API_KEY)")
			}
		case "alphavantage":
			if c.Stocks.AlphaVantageAPIKey == "" {
				add("stocks.alphavantage_api_key is required (or ALPHAVANTAGE_API_KEY)")
			}
		default:
			add("stocks.source must be finnhub or alphavantage, got %q", c.Stocks.Source)
		}
		if c.Stocks.Delay != 0 && c.Stocks.Delay < ratelimit.MinDelay {
			add("stocks.delay must be >= %s, got %s", ratelimit.MinDelay, c.Stocks.Delay)
		}
		if len(c.Stocks.Symbols) == 0 {
			add("stocks.symbols is required")
		}
	}
	if c.Metals.Enabled && c.Metals.APIKey == "" {
		add("metals.api_key is required (or METALPRICE_API_KEY)")
	}
	if c.FX.Enabled && len(c.FX.Codes) == 0 {
		add("fx.codes is required")
	}
	if c.Weather.Enabled {
		if c.Weather.APIKey == "" {
			add("weather.api_key is required (or OPENWEATHER_API_KEY)")
		}
		if len(c.Weather.Sites) == 0 {
			add("weather.sites is required (or CITIES)")
		}
		if c.Weather.Delay < ratelimit.MinDelay {
			add("weather.delay must be >= %s, got %s", ratelimit.MinDelay, c.Weather.Delay)
		}
	}

	if s := c.Sinks.Chat; s.Enabled {
		if s.BaseURL == "" {
			add("sinks.chat.base_url is required")
		}
		if !chat.ValidRecipient(s.To) {
			add("sinks.chat.to %q: %w", s.To, chat.ErrInvalidRecipient)
		}
	}
	if s := c.Sinks.Redis; s.Enabled {
		if s.Addr == "" {
			add("sinks.redis.addr is required")
		}
		if s.TTL <= 0 {
			add("sinks.redis.ttl must be positive")
		}
	}
	if s := c.Sinks.Kafka; s.Enabled && len(s.Brokers) == 0 {
		add("sinks.kafka.brokers is required")
	}
	if s := c.Sinks.HTTP; s.Enabled && s.Addr == "" {
		add("sinks.http.addr is required")
	}

	if _, err := zerolog.ParseLevel(strings.ToLower(c.Log.Level)); err != nil {
		add("log.level %q: %w", c.Log.Level, err)
	}
	if !slices.Contains([]string{"console", "json"}, c.Log.Format) {
		add("log.format must be console or json, got %q", c.Log.Format)
	}
	if !slices.Contains([]string{"stderr", "file", "both"}, c.Log.Output) {
		add("log.output must be stderr, file or both, got %q", c.Log.Output)
	}

	return errors.Join(errs...)
}
