// Package coingecko fetches crypto USD prices and stable-coin local-currency
// rates from the CoinGecko simple/price API.
package coingecko

import (
	"context"
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

const (
	Name           = "coingecko"
	DefaultBaseURL = "https://api.coingecko.com/api/v3"
)

// Client talks to CoinGecko. The single base URL is still run through the
// failover policy so unreachable errors are retried in place.
type Client struct {
	baseURL    string
	httpClient httpx.Doer
	header     http.Header
	cache      *cache.Cache
	policy     failover.Policy
	logger     zerolog.Logger
	now        func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API root.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(baseURL, "/") }
}

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(httpClient httpx.Doer) Option {
	return func(c *Client) { c.httpClient = httpClient }
}

// WithAPIKey sends key as the demo API key header.
func WithAPIKey(key string) Option {
	return func(c *Client) {
		if key != "" {
			c.header.Set("x-cg-demo-api-key", key)
		}
	}
}

func WithCache(ch *cache.Cache) Option { return func(c *Client) { c.cache = ch } }

func WithPolicy(p failover.Policy) Option { return func(c *Client) { c.policy = p } }

func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.logger = l.With().Str("provider", Name).Logger() }
}

// New creates a CoinGecko client.
func New(options ...Option) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		httpClient: http.DefaultClient,
		header:     http.Header{},
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

// simplePrice is the /simple/price body: id -> currency -> price.
type simplePrice map[string]map[string]*decimal.Decimal

func (c *Client) simplePrice(ctx context.Context, ids []string, vs string) (simplePrice, error) {
	q := url.Values{}
	q.Set("ids", strings.Join(ids, ","))
	q.Set("vs_currencies", vs)

	body, err := failover.Do(ctx, c.policy, []string{c.baseURL}, func(ctx context.Context, base string) (simplePrice, error) {
		var out simplePrice
		err := provider.GetJSON(ctx, c.httpClient, provider.Request{
			Provider: Name,
			URL:      base + "/simple/price?" + q.Encode(),
			Header:   c.header,
		}, &out)
		return out, err
	})
	if err != nil {
		return nil, provider.Wrap(Name, err)
	}
	return body, nil
}

// Fetch returns USD quotes keyed by CoinGecko coin id. Ids missing from the
// response are absent from the result.
func (c *Client) Fetch(ctx context.Context, ids []string) (provider.Quotes, error) {
	if len(ids) == 0 {
		return provider.Quotes{}, nil
	}
	return cache.GetOrFetch(ctx, c.cache, cache.Key(Name, "usd", strings.Join(ids, ",")), func(ctx context.Context) (provider.Quotes, error) {
		body, err := c.simplePrice(ctx, ids, "usd")
		if err != nil {
			c.logger.Warn().Err(err).Msg("crypto fetch failed")
			return nil, err
		}
		asOf := c.now().UTC()
		out := make(provider.Quotes, len(ids))
		for _, id := range ids {
			p := body[id]["usd"]
			if p == nil || !p.IsPositive() {
				c.logger.Debug().Str("id", id).Msg("no usd price in response")
				continue
			}
			out[id] = provider.Quote{Symbol: id, Price: *p, Currency: "USD", Source: Name, AsOf: asOf}
		}
		if len(out) == 0 {
			return nil, provider.Schema(Name, "no usd price for any of %d ids", len(ids))
		}
		return out, nil
	}, nil)
}

// Stablecoin returns a PairRateProvider backed by this client, e.g. for the
// tether/idr rate.
func (c *Client) Stablecoin() provider.PairRateProvider {
	return stablecoin{c: c}
}

type stablecoin struct{ c *Client }

func (s stablecoin) Name() string { return Name }

func (s stablecoin) Fetch(ctx context.Context, pair provider.Pair) (decimal.Decimal, error) {
	asset, vs := strings.ToLower(pair.Asset), strings.ToLower(pair.Currency)
	return cache.GetOrFetch(ctx, s.c.cache, cache.Key(Name, asset, vs), func(ctx context.Context) (decimal.Decimal, error) {
		body, err := s.c.simplePrice(ctx, []string{asset}, vs)
		if err != nil {
			s.c.logger.Warn().Err(err).Stringer("pair", pair).Msg("rate fetch failed")
			return decimal.Zero, err
		}
		p := body[asset][vs]
		if p == nil || !p.IsPositive() {
			return decimal.Zero, provider.Schema(Name, "missing %s rate for %s", vs, asset)
		}
		return *p, nil
	}, nil)
}
