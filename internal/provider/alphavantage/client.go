// Package alphavantage fetches stock quotes through the GLOBAL_QUOTE function.
package alphavantage

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
	Name           = "alphavantage"
	DefaultBaseURL = "https://www.alphavantage.co"
	DefaultDelay   = time.Second
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

type globalQuoteResponse struct {
	GlobalQuote *struct {
		Symbol string           `json:"01. symbol"`
		Price  *decimal.Decimal `json:"05. price"`
		Day    string           `json:"07. latest trading day"`
	} `json:"Global Quote"`
	// Throttled or invalid requests come back as 200 with one of these set.
	Note         string `json:"Note"`
	Information  string `json:"Information"`
	ErrorMessage string `json:"Error Message"`
}

// Quote fetches a single symbol.
func (c *Client) Quote(ctx context.Context, symbol string) (provider.Quote, error) {
	q := url.Values{}
	q.Set("function", "GLOBAL_QUOTE")
	q.Set("symbol", symbol)
	q.Set("apikey", c.apiKey)

	var body globalQuoteResponse
	if err := provider.GetJSON(ctx, c.httpClient, provider.Request{
		Provider: Name,
		URL:      c.baseURL + "/query?" + q.Encode(),
	}, &body); err != nil {
		return provider.Quote{}, err
	}
	for _, msg := range []string{body.ErrorMessage, body.Note, body.Information} {
		if msg != "" {
			return provider.Quote{}, provider.Rejected(Name, "%s: %s", symbol, msg)
		}
	}
	if body.GlobalQuote == nil || body.GlobalQuote.Price == nil || !body.GlobalQuote.Price.IsPositive() {
		return provider.Quote{}, provider.Schema(Name, "missing Global Quote for %s", symbol)
	}
	asOf := c.now().UTC()
	if d, err := time.Parse(time.DateOnly, body.GlobalQuote.Day); err == nil {
		asOf = d
	}
	return provider.Quote{Symbol: symbol, Price: *body.GlobalQuote.Price, Currency: "USD", Source: Name, AsOf: asOf}, nil
}

// Fetch quotes each symbol in turn with the same partial-result rules as the
// other per-symbol providers.
func (c *Client) Fetch(ctx context.Context, symbols []string) (provider.Quotes, error) {
	return cache.GetOrFetch(ctx, c.cache, cache.Key(Name, symbols...), func(ctx context.Context) (provider.Quotes, error) {
		res := ratelimit.Run(ctx, c.seq, symbols, c.Quote)
		for sym, err := range res.Errors {
			c.logger.Warn().Err(err).Str("symbol", sym).Msg("quote failed")
		}
		return provider.Quotes(res.Values), nil
	}, func(q provider.Quotes) bool { return len(q) > 0 })
}
