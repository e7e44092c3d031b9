package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var runsLimit int

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect archived analysis runs (requires BIGQUERY_PROJECT)",
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the most recent runs of --owner",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, ctx, err := services(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		if s.Archive == nil {
			return fmt.Errorf("run archive is disabled, set BIGQUERY_PROJECT")
		}

		runs, err := s.Archive.ListRecentRuns(ctx, owner, runsLimit)
		if err != nil {
			return err
		}
		if asJSON {
			return printJSON(runs)
		}

		fmt.Printf("\n=== Runs (%d) ===\n", len(runs))
		for _, r := range runs {
			fmt.Printf("%s  %s  %-8s  %s\n", r.RunID, r.StartedTS.Format(time.DateTime), r.Status, r.Filename)
			if r.ItemCount.Valid {
				fmt.Printf("   Items: %d  Monthly: R$ %.2f\n", r.ItemCount.Int64, r.TotalMonthly.Float64)
			}
			if r.ErrorMessage != "" {
				fmt.Printf("   Error: %s\n", r.ErrorMessage)
			}
		}
		fmt.Println()
		return nil
	},
}

func init() {
	runsListCmd.Flags().IntVar(&runsLimit, "limit", 20, "Maximum number of runs")
	runsCmd.AddCommand(runsListCmd)
}
