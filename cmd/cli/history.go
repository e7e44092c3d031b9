package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dvloznov/quantoda/internal/history"
)

var (
	compareFrom string
	compareTo   string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect or clear the analysis history of --owner",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List past analyses, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, ctx, err := services(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		records, err := s.History.List(ctx, owner)
		if err != nil {
			return err
		}
		if asJSON {
			return printJSON(records)
		}

		fmt.Printf("\n=== History of %s (%d) ===\n", owner, len(records))
		for _, r := range records {
			fmt.Printf("%s  %s  %2d subscriptions  R$ %9.2f/month\n",
				r.ID, r.CreatedAt.Format(time.DateTime), r.SubscriptionCount, r.TotalMonthly)
		}
		fmt.Println()
		return nil
	},
}

var historyTrendCmd = &cobra.Command{
	Use:   "trend",
	Short: "Show how monthly spending evolved",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, ctx, err := services(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		records, err := s.History.List(ctx, owner)
		if err != nil {
			return err
		}
		trend := history.BuildTrend(records)
		if asJSON {
			return printJSON(trend)
		}

		fmt.Println("\n=== Trend ===")
		for _, p := range trend.Points {
			fmt.Printf("%s  R$ %9.2f  (%+.2f)\n", p.CreatedAt.Format(time.DateOnly), p.TotalMonthly, p.Delta)
		}
		if trend.Saving {
			fmt.Printf("\nSaving R$ %.2f per month since the first analysis.\n\n", trend.TotalSavings)
		} else {
			fmt.Printf("\nSpending changed by R$ %+.2f per month since the first analysis.\n\n", -trend.TotalSavings)
		}
		return nil
	},
}

var historyCompareCmd = &cobra.Command{
	Use:   "compare",
	Short: "Compare two analyses",
	RunE: func(cmd *cobra.Command, args []string) error {
		if compareFrom == "" || compareTo == "" {
			return fmt.Errorf("--from and --to are required")
		}

		s, ctx, err := services(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		from, ok, err := s.History.Get(ctx, owner, compareFrom)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("analysis %s not found", compareFrom)
		}
		to, ok, err := s.History.Get(ctx, owner, compareTo)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("analysis %s not found", compareTo)
		}

		c := history.Compare(from, to)
		if asJSON {
			return printJSON(c)
		}
		fmt.Printf("\nMonthly: %+.2f  Yearly: %+.2f\n", c.DeltaMonthly, c.DeltaYearly)
		for _, name := range c.Added {
			fmt.Printf("+ %s\n", name)
		}
		for _, name := range c.Removed {
			fmt.Printf("- %s\n", name)
		}
		fmt.Println()
		return nil
	},
}

var historyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete the history of --owner, including archived runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, ctx, err := services(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		if err := s.History.Clear(ctx, owner); err != nil {
			return err
		}
		if s.Archive != nil {
			if err := s.Archive.DeleteOwnerRuns(ctx, owner); err != nil {
				return err
			}
		}
		log.Info().Str("owner", owner).Msg("History cleared")
		return nil
	},
}

func init() {
	historyCompareCmd.Flags().StringVar(&compareFrom, "from", "", "Older analysis id")
	historyCompareCmd.Flags().StringVar(&compareTo, "to", "", "Newer analysis id")

	historyCmd.AddCommand(historyListCmd, historyTrendCmd, historyCompareCmd, historyClearCmd)
}
