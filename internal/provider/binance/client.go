// Package binance fetches crypto prices from the Binance ticker API, failing
// over between the public mirror hosts.
package binance

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"marketpulse/internal/httpx"
	"marketpulse/internal/provider"
	"marketpulse/internal/provider/cache"
	"marketpulse/internal/provider/failover"
)

const Name = "binance"

// DefaultEndpoints are the equivalent public API hosts, tried in order.
var DefaultEndpoints = []string{
	"https://api.binance.com",
	"https://api1.binance.com",
	"https://api2.binance.com",
	"https://api3.binance.com",
}

// Client maps coin ids to USDT trading pairs and fetches them in one call.
type Client struct {
	endpoints  []string
	symbols    map[string]string
	httpClient httpx.Doer
	cache      *cache.Cache
	policy     failover.Policy
	logger     zerolog.Logger
	now        func() time.Time
}

type Option func(*Client)

// WithEndpoints replaces the mirror list.
func WithEndpoints(endpoints ...string) Option {
	return func(c *Client) {
		c.endpoints = c.endpoints[:0]
		for _, e := range endpoints {
			c.endpoints = append(c.endpoints, strings.TrimRight(e, "/"))
		}
	}
}

// WithSymbols sets explicit coin id to pair mappings, e.g. "ripple": "XRPUSDT".
func WithSymbols(symbols map[string]string) Option {
	return func(c *Client) {
		for id, s := range symbols {
			c.symbols[id] = strings.ToUpper(s)
		}
	}
}

func WithHTTPClient(httpClient httpx.Doer) Option {
	return func(c *Client) { c.httpClient = httpClient }
}

func WithCache(ch *cache.Cache) Option { return func(c *Client) { c.cache = ch } }

func WithPolicy(p failover.Policy) Option { return func(c *Client) { c.policy = p } }

func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.logger = l.With().Str("provider", Name).Logger() }
}

func New(options ...Option) *Client {
	c := &Client{
		endpoints:  append([]string(nil), DefaultEndpoints...),
		symbols:    map[string]string{},
		httpClient: http.DefaultClient,
		policy:     failover.Policy{MaxRetries: failover.DefaultMaxRetries, Delay: failover.DefaultDelay},
		logger:     zerolog.Nop(),
		now:        time.Now,
	}
	for _, option := range options {
		option(c)
	}
	c.policy.Logger = c.logger
	return c
}

func (c *Client) Name() string { return Name }

// Symbol returns the trading pair used for id.
func (c *Client) Symbol(id string) string {
	if s, ok := c.symbols[id]; ok {
		return s
	}
	return strings.ToUpper(id) + "USDT"
}

type tickerPrice struct {
	Symbol string           `json:"symbol"`
	Price  *decimal.Decimal `json:"price"`
}

// Fetch returns USD quotes keyed by coin id. USDT pairs are reported as USD.
func (c *Client) Fetch(ctx context.Context, ids []string) (provider.Quotes, error) {
	if len(ids) == 0 {
		return provider.Quotes{}, nil
	}
	pairs := make([]string, len(ids))
	for i, id := range ids {
		pairs[i] = c.Symbol(id)
	}
	return cache.GetOrFetch(ctx, c.cache, cache.Key(Name, pairs...), func(ctx context.Context) (provider.Quotes, error) {
		raw, err := json.Marshal(pairs)
		if err != nil {
			return nil, provider.Wrap(Name, err)
		}
		q := url.Values{}
		q.Set("symbols", string(raw))

		prices, err := failover.Do(ctx, c.policy, c.endpoints, func(ctx context.Context, endpoint string) ([]tickerPrice, error) {
			var out []tickerPrice
			if err := provider.GetJSON(ctx, c.httpClient, provider.Request{
				Provider: Name,
				URL:      endpoint + "/api/v3/ticker/price?" + q.Encode(),
			}, &out); err != nil {
				return nil, err
			}
			if len(out) == 0 {
				return nil, provider.Schema(Name, "empty ticker list")
			}
			return out, nil
		})
		if err != nil {
			c.logger.Warn().Err(err).Msg("crypto fetch failed")
			return nil, provider.Wrap(Name, err)
		}

		bySymbol := make(map[string]decimal.Decimal, len(prices))
		for _, p := range prices {
			if p.Price != nil && p.Price.IsPositive() {
				bySymbol[p.Symbol] = *p.Price
			}
		}
		asOf := c.now().UTC()
		out := make(provider.Quotes, len(ids))
		for i, id := range ids {
			if price, ok := bySymbol[pairs[i]]; ok {
				out[id] = provider.Quote{Symbol: id, Price: price, Currency: "USD", Source: Name, AsOf: asOf}
			}
		}
		if len(out) == 0 {
			return nil, provider.Schema(Name, "no prices for requested symbols")
		}
		return out, nil
	}, nil)
}
