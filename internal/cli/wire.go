package cli

import (
	"errors"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"marketpulse/internal/aggregate"
	"marketpulse/internal/chat"
	"marketpulse/internal/config"
	"marketpulse/internal/httpx"
	"marketpulse/internal/metrics"
	"marketpulse/internal/provider"
	"marketpulse/internal/provider/alphavantage"
	"marketpulse/internal/provider/binance"
	"marketpulse/internal/provider/cache"
	"marketpulse/internal/provider/coingecko"
	"marketpulse/internal/provider/exchangerate"
	"marketpulse/internal/provider/failover"
	"marketpulse/internal/provider/finnhub"
	"marketpulse/internal/provider/metalprice"
	"marketpulse/internal/provider/openweather"
	"marketpulse/internal/server"
	"marketpulse/internal/sink"
)

// pipeline is everything one process needs to run cycles.
type pipeline struct {
	loc     *time.Location
	metrics *metrics.Metrics
	latest  *server.Latest
	agg     *aggregate.Aggregator
	closers []io.Closer
}

func (p *pipeline) Close() error {
	var errs []error
	for _, c := range p.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

// newPipeline wires providers, the shared cache and, when withSinks is set,
// every enabled sink. Terminal output goes to stdout.
func newPipeline(cfg config.Config, logger zerolog.Logger, stdout io.Writer, withSinks bool) (*pipeline, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	ch, err := cache.New(cache.Options{TTL: cfg.Cache.TTL, MaxItems: cfg.Cache.MaxItems})
	if err != nil {
		return nil, err
	}
	doer := httpx.New(cfg.HTTP.Timeout)
	if cfg.HTTP.UserAgent != "" {
		doer.UserAgent = cfg.HTTP.UserAgent
	}

	p := &pipeline{loc: loc, metrics: metrics.New(), latest: &server.Latest{}}
	options := []aggregate.Option{
		aggregate.WithCache(ch),
		aggregate.WithMetrics(p.metrics),
		aggregate.WithLogger(logger),
	}
	if withSinks {
		sinks, closers := newSinks(cfg, doer, loc, logger, stdout)
		if cfg.Sinks.HTTP.Enabled {
			sinks = append(sinks, p.latest)
		}
		p.closers = closers
		options = append(options, aggregate.WithSinks(sinks...))
	}
	p.agg = aggregate.New(newSources(cfg, doer, ch, logger), options...)
	return p, nil
}

func newSources(cfg config.Config, doer httpx.Doer, ch *cache.Cache, logger zerolog.Logger) aggregate.Sources {
	policy := failover.Policy{
		MaxRetries: cfg.Failover.MaxRetries,
		Delay:      cfg.Failover.Delay,
		Classify:   failover.DefaultClassifier(cfg.Failover.RotateOnTimeout),
	}
	gecko := coingecko.New(
		coingecko.WithHTTPClient(doer),
		coingecko.WithAPIKey(cfg.Crypto.CoinGeckoAPIKey),
		coingecko.WithCache(ch),
		coingecko.WithPolicy(policy),
		coingecko.WithLogger(logger),
	)

	var src aggregate.Sources
	if cfg.Crypto.Enabled {
		var bn *binance.Client
		if cfg.Crypto.Source != "coingecko" {
			opts := []binance.Option{
				binance.WithHTTPClient(doer),
				binance.WithSymbols(cfg.Crypto.BinanceSymbols),
				binance.WithCache(ch),
				binance.WithPolicy(policy),
				binance.WithLogger(logger),
			}
			if len(cfg.Crypto.BinanceEndpoints) > 0 {
				opts = append(opts, binance.WithEndpoints(cfg.Crypto.BinanceEndpoints...))
			}
			bn = binance.New(opts...)
		}
		switch cfg.Crypto.Source {
		case "binance":
			src.Crypto = bn
		case "both":
			src.Crypto = aggregate.Merged{Providers: []provider.Provider{gecko, bn}}
		default:
			src.Crypto = gecko
		}
		src.CryptoIDs = cfg.Crypto.IDs
	}

	if cfg.Stocks.Enabled {
		switch cfg.Stocks.Source {
		case "alphavantage":
			opts := []alphavantage.Option{
				alphavantage.WithHTTPClient(doer),
				alphavantage.WithCache(ch),
				alphavantage.WithLogger(logger),
			}
			if cfg.Stocks.Delay > 0 {
				opts = append(opts, alphavantage.WithDelay(cfg.Stocks.Delay))
			}
			src.Stocks = alphavantage.New(cfg.Stocks.AlphaVantageAPIKey, opts...)
		default:
			opts := []finnhub.Option{
				finnhub.WithHTTPClient(doer),
				finnhub.WithCache(ch),
				finnhub.WithLogger(logger),
			}
			if cfg.Stocks.Delay > 0 {
				opts = append(opts, finnhub.WithDelay(cfg.Stocks.Delay))
			}
			src.Stocks = finnhub.New(cfg.Stocks.FinnhubAPIKey, opts...)
		}
		src.StockSymbols = cfg.Stocks.Symbols
	}

	if cfg.Metals.Enabled {
		src.Metals = metalprice.New(cfg.Metals.APIKey,
			metalprice.WithHTTPClient(doer),
			metalprice.WithCache(ch),
			metalprice.WithLogger(logger),
		)
		src.MetalCodes = cfg.Metals.Codes
	}

	if cfg.FX.Enabled {
		src.FX = exchangerate.New(cfg.FX.APIKey,
			exchangerate.WithHTTPClient(doer),
			exchangerate.WithCache(ch),
			exchangerate.WithPolicy(policy),
			exchangerate.WithLogger(logger),
		)
		src.FXBase = cfg.FX.Base
		src.FXCodes = cfg.FX.Codes
	}

	if cfg.Weather.Enabled {
		src.Weather = openweather.New(cfg.Weather.APIKey,
			openweather.WithHTTPClient(doer),
			openweather.WithCache(ch),
			openweather.WithDelay(cfg.Weather.Delay),
			openweather.WithLogger(logger),
		)
		src.Sites = cfg.Weather.Sites
	}

	if cfg.Local.Enabled {
		src.Local = gecko.Stablecoin()
		src.LocalPair = cfg.Local.Pair()
	}
	return src
}

// newSinks builds the enabled sinks in publish order: terminal, redis,
// kafka, chat. The HTTP latest sink is added by the caller.
func newSinks(cfg config.Config, doer httpx.Doer, loc *time.Location, logger zerolog.Logger, stdout io.Writer) ([]aggregate.Sink, []io.Closer) {
	var (
		sinks   []aggregate.Sink
		closers []io.Closer
	)
	if cfg.Sinks.Terminal.Enabled {
		sinks = append(sinks, sink.NewTerminal(stdout, loc))
	}
	if s := cfg.Sinks.Redis; s.Enabled {
		client := redis.NewClient(&redis.Options{Addr: s.Addr, Password: s.Password, DB: s.DB})
		closers = append(closers, client)
		sinks = append(sinks, sink.NewRedis(client, s.Key, s.Channel, s.TTL))
	}
	if s := cfg.Sinks.Kafka; s.Enabled {
		w := sink.NewKafkaWriter(s.Brokers, s.Topic)
		closers = append(closers, w)
		sinks = append(sinks, sink.NewKafka(w))
	}
	if s := cfg.Sinks.Chat; s.Enabled {
		bridge := chat.NewBridge(s.BaseURL, chat.WithHTTPClient(doer), chat.WithLogger(logger))
		sinks = append(sinks, sink.NewChat(bridge, s.To, loc))
	}
	return sinks, closers
}
