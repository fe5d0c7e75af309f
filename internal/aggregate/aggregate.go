// Package aggregate builds a Snapshot from every configured provider each
// cycle and hands it to the sinks.
package aggregate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"marketpulse/internal/clock"
	"marketpulse/internal/metrics"
	"marketpulse/internal/provider"
	"marketpulse/internal/provider/cache"
)

// ErrSinkUnavailable marks a sink that cannot deliver this cycle.
var ErrSinkUnavailable = errors.New("sink unavailable")

// Sink receives each Snapshot.
type Sink interface {
	Name() string
	Publish(ctx context.Context, snap Snapshot) error
}

// Sources lists the providers and their parameters. A nil provider disables
// its section.
type Sources struct {
	Crypto    provider.Provider
	CryptoIDs []string

	Stocks       provider.Provider
	StockSymbols []string

	Metals     provider.Provider
	MetalCodes []string

	FX      provider.RateProvider
	FXBase  string
	FXCodes []string

	Weather provider.WeatherProvider
	Sites   []provider.Site

	Local     provider.PairRateProvider
	LocalPair provider.Pair
}

type Aggregator struct {
	src     Sources
	sinks   []Sink
	cache   *cache.Cache
	metrics *metrics.Metrics
	clock   clock.Clock
	logger  zerolog.Logger
}

type Option func(*Aggregator)

func WithSinks(sinks ...Sink) Option {
	return func(a *Aggregator) { a.sinks = append(a.sinks, sinks...) }
}

// WithCache sets the shared provider cache swept at the start of each Run.
func WithCache(c *cache.Cache) Option { return func(a *Aggregator) { a.cache = c } }

func WithMetrics(m *metrics.Metrics) Option { return func(a *Aggregator) { a.metrics = m } }

func WithClock(c clock.Clock) Option { return func(a *Aggregator) { a.clock = c } }

func WithLogger(l zerolog.Logger) Option {
	return func(a *Aggregator) { a.logger = l.With().Str("component", "aggregate").Logger() }
}

func New(src Sources, options ...Option) *Aggregator {
	a := &Aggregator{
		src:    src,
		clock:  clock.Real(),
		logger: zerolog.Nop(),
	}
	for _, option := range options {
		option(a)
	}
	return a
}

// Sinks returns the configured sinks in publish order.
func (a *Aggregator) Sinks() []Sink { return a.sinks }

// Run sweeps the cache, collects a Snapshot and publishes it.
func (a *Aggregator) Run(ctx context.Context) Snapshot {
	if a.cache != nil {
		n := a.cache.Sweep()
		a.metrics.AddSwept(n)
		if n > 0 {
			a.logger.Debug().Int("removed", n).Msg("cache swept")
		}
	}
	snap := a.Collect(ctx)
	a.Publish(ctx, snap)
	return snap
}

// result is one provider's outcome.
type result[T any] struct {
	val T
	err error
}

// call runs fn, turning a panic into a FetchError and recording metrics.
func call[T any](ctx context.Context, a *Aggregator, name string, fn func(context.Context) (T, error)) (res result[T]) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error().Str("provider", name).Interface("panic", r).Msg("provider panicked")
			res = result[T]{err: &provider.FetchError{Provider: name, Kind: provider.KindUnknown, Err: fmt.Errorf("panic: %v", r)}}
		}
		outcome := "ok"
		if res.err != nil {
			outcome = provider.KindOf(res.err).String()
		}
		a.metrics.ObserveProvider(name, outcome, time.Since(start))
	}()
	v, err := fn(ctx)
	return result[T]{val: v, err: err}
}

// Collect queries every configured provider concurrently. It always returns
// a Snapshot; failed sections are nil with a reason in Unavailable.
func (a *Aggregator) Collect(ctx context.Context) Snapshot {
	start := a.clock.Now()
	src := a.src

	var (
		g       errgroup.Group
		crypto  result[provider.Quotes]
		stocks  result[provider.Quotes]
		metals  result[provider.Quotes]
		fx      result[map[string]decimal.Decimal]
		weather result[map[string]*provider.Weather]
		local   result[decimal.Decimal]
	)
	if p := src.Crypto; p != nil {
		g.Go(func() error {
			crypto = call(ctx, a, p.Name(), func(ctx context.Context) (provider.Quotes, error) { return p.Fetch(ctx, src.CryptoIDs) })
			return nil
		})
	}
	if p := src.Stocks; p != nil {
		g.Go(func() error {
			stocks = call(ctx, a, p.Name(), func(ctx context.Context) (provider.Quotes, error) { return p.Fetch(ctx, src.StockSymbols) })
			return nil
		})
	}
	if p := src.Metals; p != nil {
		g.Go(func() error {
			metals = call(ctx, a, p.Name(), func(ctx context.Context) (provider.Quotes, error) { return p.Fetch(ctx, src.MetalCodes) })
			return nil
		})
	}
	if p := src.FX; p != nil {
		g.Go(func() error {
			fx = call(ctx, a, p.Name(), func(ctx context.Context) (map[string]decimal.Decimal, error) {
				return p.Fetch(ctx, src.FXBase, src.FXCodes)
			})
			return nil
		})
	}
	if p := src.Weather; p != nil {
		g.Go(func() error {
			weather = call(ctx, a, p.Name(), func(ctx context.Context) (map[string]*provider.Weather, error) {
				return p.Fetch(ctx, src.Sites)
			})
			return nil
		})
	}
	if p := src.Local; p != nil {
		g.Go(func() error {
			local = call(ctx, a, p.Name(), func(ctx context.Context) (decimal.Decimal, error) { return p.Fetch(ctx, src.LocalPair) })
			return nil
		})
	}
	_ = g.Wait()

	snap := Snapshot{
		ID:          uuid.New(),
		GeneratedAt: a.clock.Now().UTC(),
		Unavailable: map[string]string{},
		Order: map[Section][]string{
			SectionCrypto: src.CryptoIDs,
			SectionStocks: src.StockSymbols,
			SectionMetals: src.MetalCodes,
			SectionFX:     src.FXCodes,
		},
	}
	siteKeys := make([]string, len(src.Sites))
	for i, s := range src.Sites {
		siteKeys[i] = s.Key()
	}
	snap.Order[SectionWeather] = siteKeys

	if src.Local != nil {
		snap.LocalCurrency = strings.ToUpper(src.LocalPair.Currency)
		if !a.failed(&snap, SectionLocalRate, local.err) {
			r := local.val
			snap.LocalRate = &r
		}
	}
	if src.Crypto != nil && !a.failed(&snap, SectionCrypto, crypto.err) {
		snap.Crypto = priced(nonNil(crypto.val), snap.LocalRate)
	}
	if src.Stocks != nil && !a.failed(&snap, SectionStocks, stocks.err) {
		snap.Stocks = priced(nonNil(stocks.val), snap.LocalRate)
	}
	if src.Metals != nil && !a.failed(&snap, SectionMetals, metals.err) {
		snap.Metals = priced(nonNil(metals.val), snap.LocalRate)
	}
	if src.FX != nil && !a.failed(&snap, SectionFX, fx.err) {
		snap.FXBase = src.FXBase
		snap.FX = fx.val
		if snap.FX == nil {
			snap.FX = map[string]decimal.Decimal{}
		}
	}
	if src.Weather != nil && !a.failed(&snap, SectionWeather, weather.err) {
		snap.Weather = weather.val
		if snap.Weather == nil {
			snap.Weather = map[string]*provider.Weather{}
		}
	}

	a.metrics.ObserveCycle(a.clock.Now().Sub(start), snap.GeneratedAt)
	a.logger.Info().
		Str("snapshot", snap.ID.String()).
		Int("unavailable", len(snap.Unavailable)).
		Dur("took", a.clock.Now().Sub(start)).
		Msg("snapshot collected")
	return snap
}

// failed records err against section and reports whether there was one.
func (a *Aggregator) failed(snap *Snapshot, section Section, err error) bool {
	if err == nil {
		return false
	}
	reason := err.Error()
	var fe *provider.FetchError
	if errors.As(err, &fe) {
		reason = fe.Reason()
	}
	snap.Unavailable[string(section)] = reason
	a.logger.Warn().Err(err).Str("section", string(section)).Msg("section unavailable")
	return true
}

func nonNil(q provider.Quotes) provider.Quotes {
	if q == nil {
		return provider.Quotes{}
	}
	return q
}

// Publish hands snap to each sink in order. Failures are logged and the
// remaining sinks still run.
func (a *Aggregator) Publish(ctx context.Context, snap Snapshot) {
	for _, s := range a.sinks {
		err := publish(ctx, s, snap)
		log := a.logger.With().Str("sink", s.Name()).Str("snapshot", snap.ID.String()).Logger()
		switch {
		case err == nil:
			a.metrics.ObserveSink(s.Name(), "ok")
			log.Debug().Msg("published")
		case errors.Is(err, ErrSinkUnavailable):
			a.metrics.ObserveSink(s.Name(), "unavailable")
			log.Info().Err(err).Msg("sink unavailable, skipped this cycle")
		default:
			a.metrics.ObserveSink(s.Name(), "error")
			log.Error().Err(err).Msg("publish failed")
		}
	}
}

func publish(ctx context.Context, s Sink, snap Snapshot) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sink %s panicked: %v", s.Name(), r)
		}
	}()
	return s.Publish(ctx, snap)
}
