// Package finnhub fetches stock quotes one symbol at a time.
package finnhub

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
	Name           = "finnhub"
	DefaultBaseURL = "https://finnhub.io/api/v1"
	DefaultDelay   = 500 * time.Millisecond
)

type Client struct {
	baseURL    string
	token      string
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

// WithDelay sets the pause between per-symbol calls.
func WithDelay(d time.Duration) Option {
	return func(c *Client) { c.seq = ratelimit.NewSequencer(d) }
}

func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.logger = l.With().Str("provider", Name).Logger() }
}

// New creates a Finnhub client authenticated with token.
func New(token string, options ...Option) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		token:      token,
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

type quoteResponse struct {
	Current *decimal.Decimal `json:"c"`
	Time    int64            `json:"t"`
}

// Quote fetches a single symbol.
func (c *Client) Quote(ctx context.Context, symbol string) (provider.Quote, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("token", c.token)

	var body quoteResponse
	if err := provider.GetJSON(ctx, c.httpClient, provider.Request{
		Provider: Name,
		URL:      c.baseURL + "/quote?" + q.Encode(),
	}, &body); err != nil {
		return provider.Quote{}, err
	}
	if body.Current == nil || !body.Current.IsPositive() {
		return provider.Quote{}, provider.Schema(Name, "no current price for %s", symbol)
	}
	asOf := c.now().UTC()
	if body.Time > 0 {
		asOf = time.Unix(body.Time, 0).UTC()
	}
	return provider.Quote{Symbol: symbol, Price: *body.Current, Currency: "USD", Source: Name, AsOf: asOf}, nil
}

// Fetch quotes each symbol in turn. Failed symbols are logged and left out;
// a result with no successes is returned empty and not cached.
func (c *Client) Fetch(ctx context.Context, symbols []string) (provider.Quotes, error) {
	return cache.GetOrFetch(ctx, c.cache, cache.Key(Name, symbols...), func(ctx context.Context) (provider.Quotes, error) {
		res := ratelimit.Run(ctx, c.seq, symbols, c.Quote)
		for sym, err := range res.Errors {
			c.logger.Warn().Err(err).Str("symbol", sym).Msg("quote failed")
		}
		return provider.Quotes(res.Values), nil
	}, func(q provider.Quotes) bool { return len(q) > 0 })
}
