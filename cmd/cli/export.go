package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dvloznov/quantoda/internal/notionsync"
)

var (
	exportAnalysisID string
	exportDryRun     bool
	exportRefresh    bool
)

var exportNotionCmd = &cobra.Command{
	Use:   "export-notion",
	Short: "Export one analysis to the Notion subscriptions database",
	Long: `Writes one Notion page per subscription of the analysis. Running it again
skips pages that already exist; --refresh rewrites them instead.

Requires NOTION_TOKEN and NOTION_DATABASE_ID.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if exportAnalysisID == "" {
			return fmt.Errorf("--analysis-id is required")
		}
		if cfg.NotionToken == "" || cfg.NotionDatabaseID == "" {
			return fmt.Errorf("NOTION_TOKEN and NOTION_DATABASE_ID must be set")
		}

		s, ctx, err := services(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		record, ok, err := s.History.Get(ctx, owner, exportAnalysisID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("analysis %s not found for %s", exportAnalysisID, owner)
		}

		client := notionsync.NewNotionClient(cfg.NotionToken)
		res, err := notionsync.ExportAnalysis(ctx, client, cfg.NotionDatabaseID, record, notionsync.ExportOptions{
			DryRun:  exportDryRun,
			Refresh: exportRefresh,
		})
		if err != nil {
			return err
		}

		if asJSON {
			return printJSON(res)
		}
		fmt.Printf("Created %d, updated %d, skipped %d, archived %d\n", res.Created, res.Updated, res.Skipped, res.Archived)
		return nil
	},
}

func init() {
	exportNotionCmd.Flags().StringVar(&exportAnalysisID, "analysis-id", "", "Analysis to export")
	exportNotionCmd.Flags().BoolVar(&exportDryRun, "dry-run", false, "Log changes without writing to Notion")
	exportNotionCmd.Flags().BoolVar(&exportRefresh, "refresh", false, "Rewrite pages that already exist")
}
