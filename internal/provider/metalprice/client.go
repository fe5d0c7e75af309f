// Package metalprice fetches precious-metal prices from MetalpriceAPI.
package metalprice

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
)

const (
	Name           = "metalprice"
	DefaultBaseURL = "https://api.metalpriceapi.com/v1"
)

// Names maps the metal codes to display names.
var Names = map[string]string{
	"XAU": "Gold",
	"XAG": "Silver",
	"XPT": "Platinum",
	"XPD": "Palladium",
}

type Client struct {
	baseURL    string
	apiKey     string
	httpClient httpx.Doer
	cache      *cache.Cache
	logger     zerolog.Logger
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(baseURL, "/") }
}

func WithHTTPClient(httpClient httpx.Doer) Option {
	return func(c *Client) { c.httpClient = httpClient }
}

func WithCache(ch *cache.Cache) Option { return func(c *Client) { c.cache = ch } }

func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.logger = l.With().Str("provider", Name).Logger() }
}

func New(apiKey string, options ...Option) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		apiKey:     apiKey,
		httpClient: http.DefaultClient,
		logger:     zerolog.Nop(),
	}
	for _, option := range options {
		option(c)
	}
	return c
}

func (c *Client) Name() string { return Name }

type latestResponse struct {
	Success   *bool                       `json:"success"`
	Timestamp int64                       `json:"timestamp"`
	Rates     map[string]*decimal.Decimal `json:"rates"`
	Error     *struct {
		StatusCode int    `json:"statusCode"`
		Message    string `json:"message"`
	} `json:"error"`
}

// Fetch returns the USD price of one unit of each metal code. The API quotes
// units per dollar, so prices are the reciprocal of the returned rates.
func (c *Client) Fetch(ctx context.Context, codes []string) (provider.Quotes, error) {
	if len(codes) == 0 {
		return provider.Quotes{}, nil
	}
	return cache.GetOrFetch(ctx, c.cache, cache.Key(Name, codes...), func(ctx context.Context) (provider.Quotes, error) {
		q := url.Values{}
		q.Set("api_key", c.apiKey)
		q.Set("base", "USD")
		q.Set("currencies", strings.Join(codes, ","))

		var body latestResponse
		if err := provider.GetJSON(ctx, c.httpClient, provider.Request{
			Provider: Name,
			URL:      c.baseURL + "/latest?" + q.Encode(),
		}, &body); err != nil {
			c.logger.Warn().Err(err).Msg("metals fetch failed")
			return nil, err
		}
		if body.Success == nil || !*body.Success {
			msg := "success flag not set"
			if body.Error != nil && body.Error.Message != "" {
				msg = body.Error.Message
			}
			err := provider.Rejected(Name, "%s", msg)
			c.logger.Warn().Err(err).Msg("metals fetch rejected")
			return nil, err
		}

		asOf := time.Now().UTC()
		if body.Timestamp > 0 {
			asOf = time.Unix(body.Timestamp, 0).UTC()
		}
		out := make(provider.Quotes, len(codes))
		for _, code := range codes {
			rate := body.Rates[code]
			if rate == nil || !rate.IsPositive() {
				c.logger.Debug().Str("metal", code).Msg("no usable rate")
				continue
			}
			out[code] = provider.Quote{
				Symbol:   code,
				Price:    decimal.NewFromInt(1).DivRound(*rate, 8),
				Currency: "USD",
				Source:   Name,
				AsOf:     asOf,
			}
		}
		if len(out) == 0 {
			return nil, provider.Schema(Name, "no usable rates for %s", strings.Join(codes, ","))
		}
		return out, nil
	}, nil)
}
