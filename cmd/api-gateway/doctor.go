package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/lgulliver/docdesk/internal/tools"
	"github.com/spf13/cobra"
)

var doctorStrict bool

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check the external binaries the tools need",
	Long: `Look up every configured binary, run its version flag and check the
reported version against the minimum the tools need.

Examples:
  api-gateway doctor                 Report binary status
  api-gateway doctor --strict        Fail when any binary is missing or too old`,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)

	doctorCmd.Flags().BoolVar(&doctorStrict, "strict", false, "Exit non-zero when a binary is unusable")
}

func runDoctor(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	results := tools.Probe(ctx, &cfg.Tools, tools.NewCommandRunner())
	unusable := printProbe(cmd.OutOrStdout(), results)

	if doctorStrict && unusable > 0 {
		return fmt.Errorf("%d of %d binaries are missing or unsupported", unusable, len(results))
	}
	return nil
}

func printProbe(w io.Writer, results []tools.ToolStatus) int {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TOOL\tBINARY\tVERSION\tREQUIRED\tSTATUS")

	unusable := 0
	for _, r := range results {
		status := "ok"
		switch {
		case !r.Available:
			status = "missing: " + r.Error
			unusable++
		case !r.Supported:
			status = "unsupported"
			if r.Error != "" {
				status += ": " + r.Error
			}
			unusable++
		}
		version := r.Version
		if version == "" {
			version = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.Name, r.Binary, version, r.Constraint, status)
	}
	tw.Flush()

	return unusable
}

