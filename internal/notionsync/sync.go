// Package notionsync exports analysis results to a Notion database, one
// page per detected subscription.
package notionsync

import (
	"context"
	"fmt"

	"github.com/jomei/notionapi"

	"github.com/dvloznov/quantoda/internal/domain"
	"github.com/dvloznov/quantoda/internal/logger"
)

// ExportOptions tunes ExportAnalysis.
type ExportOptions struct {
	// DryRun logs what would change without calling the write endpoints.
	DryRun bool
	// Refresh rewrites pages that already exist instead of skipping them.
	Refresh bool
}

// ExportResult counts what ExportAnalysis did.
type ExportResult struct {
	Created  int `json:"created"`
	Updated  int `json:"updated"`
	Skipped  int `json:"skipped"`
	Archived int `json:"archived"`
}

// ExportAnalysis writes record's items to the database. It is idempotent
// per analysis: items already exported are skipped, and pages of the same
// analysis that no longer match an item are archived.
func ExportAnalysis(ctx context.Context, notionClient NotionService, notionDBID string, record domain.HistoryRecord, opts ExportOptions) (ExportResult, error) {
	log := logger.FromContext(ctx).With().
		Str("analysis_id", record.ID).
		Bool("dry_run", opts.DryRun).
		Logger()

	var res ExportResult
	if record.ID == "" {
		return res, fmt.Errorf("ExportAnalysis: record has no id")
	}

	log.Info().Int("items", len(record.Items)).Msg("Starting analysis export to Notion")

	pages, err := queryAnalysisPages(ctx, notionClient, notionDBID, record.ID)
	if err != nil {
		return res, fmt.Errorf("ExportAnalysis: %w", err)
	}

	wanted := make(map[string]int, len(record.Items))
	for i := range record.Items {
		wanted[ItemKey(record.ID, i)] = i
	}

	existing := make(map[string]notionapi.Page, len(pages))
	for _, page := range pages {
		key := extractItemKey(page)
		if _, ok := wanted[key]; !ok {
			if opts.DryRun {
				log.Info().Str("page_id", string(page.ID)).Msg("[DRY RUN] Would archive stale Notion page")
				res.Archived++
				continue
			}
			if err := notionClient.ArchivePage(ctx, string(page.ID)); err != nil {
				log.Warn().Err(err).Str("page_id", string(page.ID)).Msg("Failed to archive stale Notion page")
				continue
			}
			res.Archived++
			continue
		}
		existing[key] = page
	}

	for i := range record.Items {
		key := ItemKey(record.ID, i)
		props := ItemToNotionProperties(record, i)

		page, found := existing[key]
		switch {
		case found && !opts.Refresh:
			res.Skipped++

		case found:
			if opts.DryRun {
				log.Info().Str("item_key", key).Msg("[DRY RUN] Would update Notion page")
				res.Updated++
				continue
			}
			if _, err := notionClient.UpdatePage(ctx, string(page.ID), props); err != nil {
				return res, fmt.Errorf("ExportAnalysis: updating %s: %w", key, err)
			}
			res.Updated++

		default:
			if opts.DryRun {
				log.Info().Str("item_key", key).Str("name", record.Items[i].Name).Msg("[DRY RUN] Would create Notion page")
				res.Created++
				continue
			}
			if _, err := notionClient.CreatePage(ctx, notionDBID, props); err != nil {
				return res, fmt.Errorf("ExportAnalysis: creating %s: %w", key, err)
			}
			res.Created++
		}
	}

	log.Info().
		Int("created", res.Created).
		Int("updated", res.Updated).
		Int("skipped", res.Skipped).
		Int("archived", res.Archived).
		Msg("Analysis export completed")

	return res, nil
}

// queryAnalysisPages returns every page of the database tagged with
// analysisID, following pagination.
func queryAnalysisPages(ctx context.Context, notionClient NotionService, databaseID, analysisID string) ([]notionapi.Page, error) {
	var allPages []notionapi.Page
	var cursor notionapi.Cursor

	for {
		req := &notionapi.DatabaseQueryRequest{
			Filter: &notionapi.PropertyFilter{
				Property: PropAnalysisID,
				RichText: &notionapi.TextFilterCondition{
					Equals: analysisID,
				},
			},
			PageSize: 100,
		}

		// Only set StartCursor if we have a cursor value
		if cursor != "" {
			req.StartCursor = cursor
		}

		resp, err := notionClient.QueryDatabase(ctx, databaseID, req)
		if err != nil {
			return nil, fmt.Errorf("queryAnalysisPages: %w", err)
		}

		allPages = append(allPages, resp.Results...)

		if !resp.HasMore {
			break
		}
		cursor = resp.NextCursor
	}

	return allPages, nil
}
