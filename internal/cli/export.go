package cli

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/dukerupert/mailbeforecart/internal/recovery"
)

type exportOptions struct {
	status string
	from   string
	to     string
	output string
}

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &exportOptions{}

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export captured carts as CSV",
		Long: `Write captured carts as CSV, newest first.

Without --output the CSV goes to stdout. --output auto writes to the
default download filename in the current directory.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(cmd, rootOpts, opts)
		},
	}

	cmd.Flags().StringVar(&opts.status, "status", "", "only records in this state (pending|purchased)")
	cmd.Flags().StringVar(&opts.from, "from", "", "first capture day, YYYY-MM-DD")
	cmd.Flags().StringVar(&opts.to, "to", "", "last capture day, YYYY-MM-DD")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "output file, or \"auto\"")
	return cmd
}

func runExport(cmd *cobra.Command, rootOpts *RootOptions, opts *exportOptions) error {
	f, err := recovery.ParseFilter(opts.status, opts.from, opts.to)
	if err != nil {
		return err
	}

	a, err := loadApp(rootOpts)
	if err != nil {
		return err
	}
	defer a.Close()

	var w io.Writer = cmd.OutOrStdout()
	path := opts.output
	if path == "auto" {
		path = recovery.ExportFilename(f, time.Now())
	}
	if path != "" {
		file, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("create export file: %w", err)
		}
		defer file.Close()
		w = file
	}

	ctx, _ := localAdmin(cmd.Context())
	n, err := a.srv.Service().ExportCSV(ctx, f, w)
	if err != nil {
		return err
	}
	if path != "" {
		fmt.Fprintf(cmd.ErrOrStderr(), "exported %d records to %s\n", n, path)
	}
	return nil
}
