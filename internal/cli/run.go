package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"marketpulse/internal/scheduler"
	"marketpulse/internal/server"
)

func newRunCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Publish a snapshot now and then every interval until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.load(cmd, true); err != nil {
				return err
			}
			return a.run(cmd)
		},
	}
}

func (a *app) run(cmd *cobra.Command) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, err := newPipeline(a.cfg, a.logger, cmd.OutOrStdout(), true)
	if err != nil {
		return err
	}
	defer func() {
		if err := p.Close(); err != nil {
			a.logger.Warn().Err(err).Msg("closing sinks")
		}
	}()

	sched, err := scheduler.New(a.cfg.Interval, func(ctx context.Context) { p.agg.Run(ctx) },
		scheduler.WithLogger(a.logger))
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	if a.cfg.Sinks.HTTP.Enabled {
		srv := server.New(p.latest,
			server.WithMetrics(p.metrics),
			server.WithLocation(p.loc),
			server.WithLogger(a.logger))
		g.Go(func() error { return srv.ListenAndServe(gctx, a.cfg.Sinks.HTTP.Addr) })
	}
	if err := sched.Start(ctx); err != nil {
		return err
	}
	a.logger.Info().Dur("interval", a.cfg.Interval).Int("sinks", len(p.agg.Sinks())).Msg("marketpulse running")

	<-gctx.Done()
	a.logger.Info().Msg("shutting down")
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*a.cfg.HTTP.Timeout)
	defer cancel()
	if err := sched.Stop(stopCtx); err != nil {
		a.logger.Warn().Err(err).Msg("scheduler stop")
	}
	return g.Wait()
}
