package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"marketpulse/internal/config"
)

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration file and environment",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.load(cmd, true); err != nil {
				return err
			}
			path := a.configPath
			if path == "" {
				path = config.DefaultPath()
			}
			fmt.Fprintf(cmd.OutOrStdout(), "configuration OK (%s)\n", path)
			return nil
		},
	})
	return cmd
}
