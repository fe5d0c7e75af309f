package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"marketpulse/internal/provider"
)

// applyEnv overrides secrets and scheduling knobs from the environment.
func applyEnv(cfg *Config) error {
	if v := os.Getenv("FINNHUB_API_KEY"); v != "" {
		cfg.Stocks.FinnhubAPIKey = v
	}
	if v := os.Getenv("ALPHAVANTAGE_API_KEY"); v != "" {
		cfg.Stocks.AlphaVantageAPIKey = v
	}
	if v := os.Getenv("COINGECKO_API_KEY"); v != "" {
		cfg.Crypto.CoinGeckoAPIKey = v
	}
	if v := os.Getenv("METALPRICE_API_KEY"); v != "" {
		cfg.Metals.APIKey = v
	}
	if v := os.Getenv("EXCHANGE_RATE_API_KEY"); v != "" {
		cfg.FX.APIKey = v
	}
	if v := os.Getenv("OPENWEATHER_API_KEY"); v != "" {
		cfg.Weather.APIKey = v
	}
	if v := os.Getenv("WHATSAPP_TO"); v != "" {
		cfg.Sinks.Chat.To = v
	}
	if v := os.Getenv("CITIES"); v != "" {
		cfg.Weather.Sites = parseSites(v, cfg.Weather.Country)
	}
	if v := os.Getenv("MARKETPULSE_INTERVAL"); v != "" {
		d, err := parseDuration(v)
		if err != nil {
			return fmt.Errorf("MARKETPULSE_INTERVAL: %w", err)
		}
		cfg.Interval = d
	}
	if v := os.Getenv("MARKETPULSE_CACHE_TTL"); v != "" {
		d, err := parseDuration(v)
		if err != nil {
			return fmt.Errorf("MARKETPULSE_CACHE_TTL: %w", err)
		}
		cfg.Cache.TTL = d
	}
	return nil
}

// parseDuration accepts Go durations ("90s") or whole seconds ("90").
func parseDuration(s string) (time.Duration, error) {
	if n, err := strconv.Atoi(s); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	return time.ParseDuration(s)
}

// parseSites reads "Jakarta,Bandung:ID,Paris:FR".
func parseSites(s, country string) []provider.Site {
	var out []provider.Site
	for _, part := range splitCSV(s) {
		city, cc, ok := strings.Cut(part, ":")
		if !ok || strings.TrimSpace(cc) == "" {
			cc = country
		}
		out = append(out, provider.Site{City: strings.TrimSpace(city), Country: strings.ToUpper(strings.TrimSpace(cc))})
	}
	return out
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
