// Package cli holds the cobra commands of the marketpulse binary.
package cli

import (
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"marketpulse/internal/config"
	"marketpulse/internal/logging"
)

type app struct {
	version    string
	configPath string
	logLevel   string

	cfg    config.Config
	logger zerolog.Logger
	closer io.Closer
}

// NewRootCmd builds the command tree.
func NewRootCmd(version string) *cobra.Command {
	a := &app{version: version, logger: zerolog.Nop()}
	cmd := &cobra.Command{
		Use:          "marketpulse",
		Short:        "Periodic market and weather snapshot publisher",
		Long:         "marketpulse polls crypto, stock, metal, FX and weather APIs on a fixed interval and publishes one snapshot per cycle to the terminal, a chat gateway, Redis, Kafka and HTTP.",
		Version:      version,
		SilenceUsage: true,
		PersistentPostRunE: func(*cobra.Command, []string) error {
			if a.closer != nil {
				return a.closer.Close()
			}
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&a.configPath, "config", "", "path to config file (default $XDG_CONFIG_HOME/marketpulse/config.yaml)")
	cmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "override log.level (trace, debug, info, warn, error)")

	cmd.AddCommand(newRunCmd(a), newFetchCmd(a), newConfigCmd(a), newVersionCmd(a))
	return cmd
}

// load reads the configuration and builds the logger. validate rejects
// invalid configs up front.
func (a *app) load(cmd *cobra.Command, validate bool) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if validate {
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
	}
	logger, closer, err := logging.New(cfg.Log, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	a.cfg, a.logger, a.closer = cfg, logger, closer
	return nil
}

func newVersionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "marketpulse %s\n", a.version)
		},
	}
}
