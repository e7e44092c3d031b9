package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/dvloznov/quantoda/internal/app"
	"github.com/dvloznov/quantoda/internal/config"
	"github.com/dvloznov/quantoda/internal/logger"
)

var (
	owner   string
	verbose bool
	asJSON  bool

	cfg *config.Config
	log zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "quantoda",
	Short: "QuantoDá? - find the subscriptions hidden in a bank statement",
	Long: `quantoda analyzes bank statements locally with the same pipeline as the
API server and manages the analysis history of one owner.

Configuration is read from the environment and an optional .env file.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := "info"
		if verbose {
			level = "debug"
		}
		log = logger.NewWithLevel(os.Stderr, level, "console")
		cfg = config.Load(log)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&owner, "owner", "local@quantoda", "History owner (email)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&asJSON, "json", false, "Print results as JSON")

	rootCmd.AddCommand(analyzeCmd, historyCmd, exportNotionCmd, runsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// services builds the shared stack and a context carrying the logger.
func services(ctx context.Context) (*app.Services, context.Context, error) {
	ctx = logger.WithContext(ctx, log)
	s, err := app.Build(ctx, cfg, log)
	if err != nil {
		return nil, ctx, err
	}
	return s, ctx, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
