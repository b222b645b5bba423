package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/erlaaaand/dentizy/patientcode"
	"github.com/spf13/cobra"
)

func newCodesCmd(load configLoader) *cobra.Command {
	codesCmd := &cobra.Command{
		Use:   "codes",
		Short: "Inspect patient codes",
	}
	codesCmd.AddCommand(newCodesStatsCmd(load), newCodesValidateCmd())
	return codesCmd
}

func newCodesStatsCmd(load configLoader) *cobra.Command {
	var date string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show how many codes were issued on a day",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var day time.Time
			if date != "" {
				parsed, err := time.Parse("2006-01-02", date)
				if err != nil {
					return fmt.Errorf("invalid --date %q, expected YYYY-MM-DD", date)
				}
				day = parsed
			}

			app, err := newApplication(load())
			if err != nil {
				return err
			}
			defer app.close()
			if err := app.migrate(); err != nil {
				return err
			}

			stats, err := app.allocator.GetDailyStatistics(cmd.Context(), day)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
			_, _ = fmt.Fprintln(w, "DATE\tTOTAL\tREMAINING\tUSED")
			_, _ = fmt.Fprintf(w, "%s\t%d\t%d\t%.2f%%\n", stats.Date, stats.Total, stats.Remaining, stats.Percentage)
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "day to report (YYYY-MM-DD), defaults to today")
	return cmd
}

func newCodesValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <code>",
		Short: "Check that a patient code is well formed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			code := args[0]
			date, seq, ok := patientcode.Parse(code)
			if !ok {
				return fmt.Errorf("%q is not a valid patient code", code)
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s is valid: issued on %s, sequence %d of %d\n",
				code, date.Format("2006-01-02"), seq, patientcode.MaxSequence)
			return nil
		},
	}
}
