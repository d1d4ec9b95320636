package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

// NewRemindCommand creates the remind command.
func NewRemindCommand(rootOpts *RootOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "remind",
		Short: "Run one reminder cycle now",
		Long: `Send reminders for every pending cart whose delay has elapsed, then exit.
Useful from cron when the service runs without its own scheduler.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(rootOpts)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, token := localAdmin(cmd.Context())
			res, err := a.srv.Service().RunCycleNow(ctx, token)
			if err != nil {
				return fmt.Errorf("reminder cycle: %w", err)
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			}
			fmt.Fprintf(out, "due=%d sent=%d recovered=%d failed=%d elapsed=%s\n",
				res.Due, res.Sent, res.Recovered, res.Failed, res.Elapsed)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the cycle result as JSON")
	return cmd
}
