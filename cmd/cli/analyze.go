package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/dvloznov/quantoda/internal/aggregator"
	"github.com/dvloznov/quantoda/internal/domain"
	"github.com/dvloznov/quantoda/internal/normalizer"
)

var (
	analyzeFile   string
	analyzeSample bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Analyze a statement file and store the result in history",
	Example: `  quantoda analyze --file extrato.pdf
  quantoda analyze --sample --json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if analyzeFile == "" && !analyzeSample {
			return fmt.Errorf("either --file or --sample is required")
		}

		in := normalizer.Input{Override: normalizer.SampleStatement}
		if !analyzeSample {
			data, err := os.ReadFile(analyzeFile)
			if err != nil {
				return fmt.Errorf("reading statement: %w", err)
			}
			in = normalizer.Input{Data: data, Filename: filepath.Base(analyzeFile)}
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
		defer cancel()

		s, ctx, err := services(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		log.Info().Str("owner", owner).Str("file", analyzeFile).Bool("sample", analyzeSample).Msg("Starting analysis")

		record, err := s.Analyzer.Analyze(ctx, owner, in)
		if err != nil {
			return fmt.Errorf("%s (%w)", domain.UserMessage(err), err)
		}

		if asJSON {
			return printJSON(record)
		}
		printRecord(*record)
		return nil
	},
}

func init() {
	analyzeCmd.Flags().StringVarP(&analyzeFile, "file", "f", "", "Statement file (csv, txt, xlsx, pdf)")
	analyzeCmd.Flags().BoolVar(&analyzeSample, "sample", false, "Analyze the built-in example statement")
}

func printRecord(r domain.HistoryRecord) {
	fmt.Printf("\n=== Analysis %s ===\n", r.ID)
	fmt.Printf("Created:       %s\n", r.CreatedAt.Format(time.RFC3339))
	fmt.Printf("Subscriptions: %d\n", r.SubscriptionCount)
	fmt.Printf("Monthly:       R$ %.2f\n", r.TotalMonthly)
	fmt.Printf("Yearly:        R$ %.2f\n", r.TotalYearly)

	for i, it := range r.Items {
		fmt.Printf("\n%d. %s\n", i+1, it.Name)
		fmt.Printf("   Amount:     R$ %.2f (%s)\n", it.Amount, it.Frequency)
		fmt.Printf("   Monthly:    R$ %.2f\n", aggregator.MonthlyAmount(it))
		fmt.Printf("   Category:   %s\n", it.Category)
		fmt.Printf("   Confidence: %.0f%%\n", it.Confidence*100)
		if it.Recommendation != "" {
			fmt.Printf("   Tip:        %s\n", it.Recommendation)
		}
	}

	if len(r.CategoryBreakdown) > 0 {
		fmt.Println("\n=== Categories ===")
		for _, c := range r.CategoryBreakdown {
			fmt.Printf("%-20s R$ %.2f\n", c.Category, c.Amount)
		}
	}

	if len(r.Insights) > 0 {
		fmt.Println("\n=== Insights ===")
		for _, in := range r.Insights {
			fmt.Printf("- %s\n", in)
		}
	}
	fmt.Println()
}
