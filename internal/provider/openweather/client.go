// Package openweather fetches current conditions per city.
package openweather

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
	"marketpulse/internal/provider/ratelimit"
)

const (
	Name           = "openweather"
	DefaultBaseURL = "https://api.openweathermap.org"
	DefaultDelay   = 500 * time.Millisecond
)

type Client struct {
	baseURL    string
	apiKey     string
	httpClient httpx.Doer
	cache      *cache.Cache
	seq        *ratelimit.Sequencer
	logger     zerolog.Logger
	now        func() time.Time
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(baseURL, "/") }
}

func WithHTTPClient(httpClient httpx.Doer) Option {
	return func(c *Client) { c.httpClient = httpClient }
}

func WithCache(ch *cache.Cache) Option { return func(c *Client) { c.cache = ch } }

func WithDelay(d time.Duration) Option {
	return func(c *Client) { c.seq = ratelimit.NewSequencer(d) }
}

func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.logger = l.With().Str("provider", Name).Logger() }
}

func New(apiKey string, options ...Option) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		apiKey:     apiKey,
		httpClient: http.DefaultClient,
		seq:        ratelimit.NewSequencer(DefaultDelay),
		logger:     zerolog.Nop(),
		now:        time.Now,
	}
	for _, option := range options {
		option(c)
	}
	return c
}

func (c *Client) Name() string { return Name }

type weatherResponse struct {
	Name string `json:"name"`
	Dt   int64  `json:"dt"`
	Main *struct {
		Temp *decimal.Decimal `json:"temp"`
	} `json:"main"`
	Weather []struct {
		Description string `json:"description"`
	} `json:"weather"`
}

// Current fetches conditions for one site in metric units.
func (c *Client) Current(ctx context.Context, site provider.Site) (*provider.Weather, error) {
	q := url.Values{}
	q.Set("q", site.Key())
	q.Set("units", "metric")
	q.Set("appid", c.apiKey)

	var body weatherResponse
	if err := provider.GetJSON(ctx, c.httpClient, provider.Request{
		Provider: Name,
		URL:      c.baseURL + "/data/2.5/weather?" + q.Encode(),
	}, &body); err != nil {
		return nil, err
	}
	if body.Main == nil || body.Main.Temp == nil || len(body.Weather) == 0 {
		return nil, provider.Schema(Name, "missing main or weather for %s", site.Key())
	}
	asOf := c.now().UTC()
	if body.Dt > 0 {
		asOf = time.Unix(body.Dt, 0).UTC()
	}
	return &provider.Weather{
		Site:         site.Key(),
		TemperatureC: *body.Main.Temp,
		Description:  body.Weather[0].Description,
		AsOf:         asOf,
	}, nil
}

// Fetch queries each site in turn. A failed site stays in the result with a
// nil value so it can still be named.
func (c *Client) Fetch(ctx context.Context, sites []provider.Site) (map[string]*provider.Weather, error) {
	keys := make([]string, len(sites))
	bySite := make(map[string]provider.Site, len(sites))
	for i, s := range sites {
		keys[i] = s.Key()
		bySite[keys[i]] = s
	}
	return cache.GetOrFetch(ctx, c.cache, cache.Key(Name, keys...), func(ctx context.Context) (map[string]*provider.Weather, error) {
		res := ratelimit.Run(ctx, c.seq, keys, func(ctx context.Context, key string) (*provider.Weather, error) {
			return c.Current(ctx, bySite[key])
		})
		out := make(map[string]*provider.Weather, len(keys))
		for key, err := range res.Errors {
			c.logger.Warn().Err(err).Str("site", key).Msg("weather failed")
			out[key] = nil
		}
		for key, w := range res.Values {
			out[key] = w
		}
		return out, nil
	}, func(m map[string]*provider.Weather) bool {
		for _, w := range m {
			if w != nil {
				return true
			}
		}
		return false
	})
}
