// Package exchangerate fetches currency rates from ExchangeRate-API, falling
// back to the keyless open.er-api.com endpoint.
package exchangerate

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
	Name           = "exchangerate"
	DefaultBaseURL = "https://v6.exchangerate-api.com/v6"
	OpenBaseURL    = "https://open.er-api.com/v6"
)

type Client struct {
	baseURL    string
	openURL    string
	apiKey     string
	httpClient httpx.Doer
	cache      *cache.Cache
	policy     failover.Policy
	logger     zerolog.Logger
}

type Option func(*Client)

// WithBaseURL overrides the keyed API root.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(baseURL, "/") }
}

// WithOpenURL overrides the keyless API root. An empty value disables it.
func WithOpenURL(openURL string) Option {
	return func(c *Client) { c.openURL = strings.TrimRight(openURL, "/") }
}

func WithHTTPClient(httpClient httpx.Doer) Option {
	return func(c *Client) { c.httpClient = httpClient }
}

func WithCache(ch *cache.Cache) Option { return func(c *Client) { c.cache = ch } }

func WithPolicy(p failover.Policy) Option { return func(c *Client) { c.policy = p } }

func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.logger = l.With().Str("provider", Name).Logger() }
}

// New creates a client. With an empty apiKey only the keyless endpoint is used.
func New(apiKey string, options ...Option) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		openURL:    OpenBaseURL,
		apiKey:     apiKey,
		httpClient: http.DefaultClient,
		policy:     failover.Policy{MaxRetries: failover.DefaultMaxRetries, Delay: failover.DefaultDelay},
		logger:     zerolog.Nop(),
	}
	for _, option := range options {
		option(c)
	}
	c.policy.Logger = c.logger
	return c
}

func (c *Client) Name() string { return Name }

// Endpoints lists the URLs tried for base, keyed first.
func (c *Client) Endpoints(base string) []string {
	var out []string
	if c.apiKey != "" && c.baseURL != "" {
		out = append(out, c.baseURL+"/"+url.PathEscape(c.apiKey)+"/latest/"+url.PathEscape(base))
	}
	if c.openURL != "" {
		out = append(out, c.openURL+"/latest/"+url.PathEscape(base))
	}
	return out
}

// The keyed API names the map conversion_rates, the open one rates.
type latestResponse struct {
	Result          string                      `json:"result"`
	ErrorType       string                      `json:"error-type"`
	TimeLastUpdate  int64                       `json:"time_last_update_unix"`
	ConversionRates map[string]*decimal.Decimal `json:"conversion_rates"`
	Rates           map[string]*decimal.Decimal `json:"rates"`
}

func (r latestResponse) rates() map[string]*decimal.Decimal {
	if r.ConversionRates != nil {
		return r.ConversionRates
	}
	return r.Rates
}

// Fetch returns rates for codes quoted against base (1 base = rate code).
// Codes the service does not know are left out.
func (c *Client) Fetch(ctx context.Context, base string, codes []string) (map[string]decimal.Decimal, error) {
	base = strings.ToUpper(base)
	return cache.GetOrFetch(ctx, c.cache, cache.Key(Name, append([]string{base}, codes...)...), func(ctx context.Context) (map[string]decimal.Decimal, error) {
		body, err := failover.Do(ctx, c.policy, c.Endpoints(base), func(ctx context.Context, endpoint string) (latestResponse, error) {
			var out latestResponse
			if err := provider.GetJSON(ctx, c.httpClient, provider.Request{Provider: Name, URL: endpoint}, &out); err != nil {
				return out, err
			}
			if out.Result != "" && out.Result != "success" {
				return out, provider.Rejected(Name, "result %q: %s", out.Result, out.ErrorType)
			}
			if out.rates() == nil {
				return out, provider.Schema(Name, "missing rates object")
			}
			return out, nil
		})
		if err != nil {
			c.logger.Warn().Err(err).Msg("rates fetch failed")
			return nil, provider.Wrap(Name, err)
		}

		rates := body.rates()
		out := make(map[string]decimal.Decimal, len(codes))
		for _, code := range codes {
			code = strings.ToUpper(code)
			if r := rates[code]; r != nil && r.IsPositive() {
				out[code] = *r
			}
		}
		if len(out) == 0 && len(codes) > 0 {
			return nil, provider.Schema(Name, "none of %s present", strings.Join(codes, ","))
		}
		if body.TimeLastUpdate > 0 {
			c.logger.Debug().Time("updated", time.Unix(body.TimeLastUpdate, 0)).Msg("rates fetched")
		}
		return out, nil
	}, nil)
}
