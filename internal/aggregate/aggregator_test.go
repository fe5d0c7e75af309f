package aggregate_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"marketpulse/internal/aggregate"
	"marketpulse/internal/clock"
	"marketpulse/internal/metrics"
	"marketpulse/internal/provider"
	"marketpulse/internal/provider/cache"
)

type quotesFunc struct {
	name string
	fn   func(ctx context.Context, symbols []string) (provider.Quotes, error)
}

func (f quotesFunc) Name() string { return f.name }
func (f quotesFunc) Fetch(ctx context.Context, s []string) (provider.Quotes, error) {
	return f.fn(ctx, s)
}

type ratesFunc func(ctx context.Context, base string, codes []string) (map[string]decimal.Decimal, error)

func (ratesFunc) Name() string { return "fx" }
func (f ratesFunc) Fetch(ctx context.Context, base string, codes []string) (map[string]decimal.Decimal, error) {
	return f(ctx, base, codes)
}

type weatherFunc func(ctx context.Context, sites []provider.Site) (map[string]*provider.Weather, error)

func (weatherFunc) Name() string { return "weather" }
func (f weatherFunc) Fetch(ctx context.Context, sites []provider.Site) (map[string]*provider.Weather, error) {
	return f(ctx, sites)
}

type pairFunc func(ctx context.Context, p provider.Pair) (decimal.Decimal, error)

func (pairFunc) Name() string { return "local" }
func (f pairFunc) Fetch(ctx context.Context, p provider.Pair) (decimal.Decimal, error) {
	return f(ctx, p)
}

type recordingSink struct {
	name string
	err  error

	mu    sync.Mutex
	snaps []aggregate.Snapshot
}

func (s *recordingSink) Name() string { return s.name }
func (s *recordingSink) Publish(_ context.Context, snap aggregate.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.snaps = append(s.snaps, snap)
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.snaps)
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func staticQuotes(name string, prices map[string]string) quotesFunc {
	return quotesFunc{name: name, fn: func(context.Context, []string) (provider.Quotes, error) {
		out := provider.Quotes{}
		for k, v := range prices {
			out[k] = provider.Quote{Symbol: k, Price: d(v), Currency: "USD", Source: name}
		}
		return out, nil
	}}
}

func failing(name string, kind provider.Kind) quotesFunc {
	return quotesFunc{name: name, fn: func(context.Context, []string) (provider.Quotes, error) {
		return nil, &provider.FetchError{Provider: name, Kind: kind, Err: errors.New("down")}
	}}
}

func TestCollect_SingleFailureNullsOnlyThatSection(t *testing.T) {
	agg := aggregate.New(aggregate.Sources{
		Crypto:       staticQuotes("crypto", map[string]string{"bitcoin": "65000"}),
		CryptoIDs:    []string{"bitcoin"},
		Stocks:       failing("stocks", provider.KindHTTPStatus),
		StockSymbols: []string{"AAPL"},
	})

	snap := agg.Collect(t.Context())

	require.NotNil(t, snap.Crypto)
	require.Nil(t, snap.Stocks)
	require.Equal(t, "http_status", snap.Reason(aggregate.SectionStocks))
	require.Empty(t, snap.Reason(aggregate.SectionCrypto))
	require.NotEqual(t, [16]byte{}, [16]byte(snap.ID))
}

func TestCollect_LocalConversion(t *testing.T) {
	src := aggregate.Sources{
		Crypto:    staticQuotes("crypto", map[string]string{"bitcoin": "100"}),
		CryptoIDs: []string{"bitcoin"},
		Local:     pairFunc(func(context.Context, provider.Pair) (decimal.Decimal, error) { return d("16000"), nil }),
		LocalPair: provider.Pair{Asset: "tether", Currency: "idr"},
	}
	snap := aggregate.New(src).Collect(t.Context())
	require.Equal(t, "IDR", snap.LocalCurrency)
	require.NotNil(t, snap.Crypto["bitcoin"].Local)
	require.True(t, d("1600000").Equal(*snap.Crypto["bitcoin"].Local))

	src.Local = pairFunc(func(context.Context, provider.Pair) (decimal.Decimal, error) {
		return decimal.Zero, provider.Schema("local", "missing")
	})
	snap = aggregate.New(src).Collect(t.Context())
	require.Nil(t, snap.LocalRate)
	require.Nil(t, snap.Crypto["bitcoin"].Local, "no local price without a rate")
	require.True(t, d("100").Equal(snap.Crypto["bitcoin"].Price))
}

func TestCollect_PanicIsRecovered(t *testing.T) {
	agg := aggregate.New(aggregate.Sources{
		Metals: quotesFunc{name: "metals", fn: func(context.Context, []string) (provider.Quotes, error) {
			panic("nil map")
		}},
		Crypto: staticQuotes("crypto", map[string]string{"bitcoin": "1"}),
	})
	snap := agg.Collect(t.Context())
	require.Nil(t, snap.Metals)
	require.Equal(t, "unknown", snap.Reason(aggregate.SectionMetals))
	require.NotNil(t, snap.Crypto)
}

func TestCollect_SlowProviderDoesNotBlockOthers(t *testing.T) {
	slow := quotesFunc{name: "slow", fn: func(context.Context, []string) (provider.Quotes, error) {
		time.Sleep(50 * time.Millisecond)
		return provider.Quotes{}, nil
	}}
	agg := aggregate.New(aggregate.Sources{Crypto: slow, Stocks: slow, Metals: slow})

	start := time.Now()
	agg.Collect(t.Context())
	require.Less(t, time.Since(start), 140*time.Millisecond, "providers run concurrently")
}

func TestCollect_TotalOutageStillProducesSnapshot(t *testing.T) {
	agg := aggregate.New(aggregate.Sources{
		Crypto: failing("c", provider.KindNetworkUnreachable),
		Stocks: failing("s", provider.KindTimeout),
		Metals: failing("m", provider.KindRejected),
		FX: ratesFunc(func(context.Context, string, []string) (map[string]decimal.Decimal, error) {
			return nil, errors.New("boom")
		}),
		Weather: weatherFunc(func(context.Context, []provider.Site) (map[string]*provider.Weather, error) {
			return nil, provider.Schema("w", "x")
		}),
		Local: pairFunc(func(context.Context, provider.Pair) (decimal.Decimal, error) {
			return decimal.Zero, provider.Schema("l", "x")
		}),
	})
	snap := agg.Collect(t.Context())
	require.Len(t, snap.Unavailable, 6)
	require.Nil(t, snap.Crypto)
	require.Nil(t, snap.FX)
	require.Nil(t, snap.Weather)
	require.Equal(t, "boom", snap.Reason(aggregate.SectionFX))
}

func TestRun_MixedOutcomesPublishToAllSinks(t *testing.T) {
	// Arrange: crypto ok, stocks all failed (empty), metals timeout,
	// fx ok, weather partial.
	src := aggregate.Sources{
		Crypto:       staticQuotes("crypto", map[string]string{"bitcoin": "65000", "ethereum": "3200"}),
		CryptoIDs:    []string{"bitcoin", "ethereum"},
		Stocks:       staticQuotes("stocks", map[string]string{}),
		StockSymbols: []string{"AAPL"},
		Metals:       failing("metals", provider.KindTimeout),
		MetalCodes:   []string{"XAU"},
		FX: ratesFunc(func(_ context.Context, base string, codes []string) (map[string]decimal.Decimal, error) {
			require.Equal(t, "USD", base)
			return map[string]decimal.Decimal{"EUR": d("0.92")}, nil
		}),
		FXBase:  "USD",
		FXCodes: []string{"EUR"},
		Weather: weatherFunc(func(context.Context, []provider.Site) (map[string]*provider.Weather, error) {
			return map[string]*provider.Weather{
				"Jakarta": {Site: "Jakarta", TemperatureC: d("31"), Description: "haze"},
				"Bandung": nil,
			}, nil
		}),
		Sites: []provider.Site{{City: "Jakarta"}, {City: "Bandung"}},
		Local: pairFunc(func(context.Context, provider.Pair) (decimal.Decimal, error) { return d("16000"), nil }),
		LocalPair: provider.Pair{Asset: "tether", Currency: "IDR"},
	}
	terminal := &recordingSink{name: "terminal"}
	chat := &recordingSink{name: "chat", err: aggregate.ErrSinkUnavailable}
	broken := &recordingSink{name: "redis", err: errors.New("connection refused")}
	last := &recordingSink{name: "http"}
	m := metrics.New()

	clk := clock.NewFake(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	ch, err := cache.New(cache.Options{TTL: time.Minute, Clock: clk})
	require.NoError(t, err)
	ch.Put("stale", 1)
	clk.Advance(2 * time.Minute)

	agg := aggregate.New(src,
		aggregate.WithSinks(terminal, chat, broken, last),
		aggregate.WithMetrics(m),
		aggregate.WithCache(ch),
		aggregate.WithClock(clk),
	)

	// Act
	snap := agg.Run(t.Context())

	// Assert: the snapshot shape.
	require.Len(t, snap.Crypto, 2)
	require.True(t, d("1040000000").Equal(*snap.Crypto["bitcoin"].Local))
	require.NotNil(t, snap.Stocks)
	require.Empty(t, snap.Stocks)
	require.Nil(t, snap.Metals)
	require.Equal(t, "timeout", snap.Reason(aggregate.SectionMetals))
	require.True(t, d("0.92").Equal(snap.FX["EUR"]))
	require.Len(t, snap.Weather, 2)
	require.Nil(t, snap.Weather["Bandung"])
	require.Equal(t, []string{"Jakarta", "Bandung"}, snap.Keys(aggregate.SectionWeather, nil))

	// Assert: every sink saw the cycle; failures did not stop later sinks.
	require.Equal(t, 1, terminal.count())
	require.Equal(t, 1, last.count())
	require.Equal(t, 1.0, testutil.ToFloat64(m.SinkPublishes.WithLabelValues("chat", "unavailable")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.SinkPublishes.WithLabelValues("redis", "error")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.CacheSwept))
	require.Equal(t, 1.0, testutil.ToFloat64(m.ProviderFetches.WithLabelValues("metals", "timeout")))

	// Act: the chat channel comes back for the next cycle.
	chat.mu.Lock()
	chat.err = nil
	chat.mu.Unlock()
	agg.Run(t.Context())

	require.Equal(t, 1, chat.count())
	require.Equal(t, 2, terminal.count())
}
