package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"marketpulse/internal/format"
)

func newFetchCmd(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Collect one snapshot and print it",
		Example: `  marketpulse fetch
  marketpulse fetch --json | jq .crypto`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.load(cmd, true); err != nil {
				return err
			}
			p, err := newPipeline(a.cfg, a.logger, cmd.OutOrStdout(), false)
			if err != nil {
				return err
			}
			snap := p.agg.Collect(cmd.Context())

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(snap)
			}
			_, err = fmt.Fprintln(out, format.Message(snap, p.loc))
			return err
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the snapshot as JSON")
	return cmd
}
