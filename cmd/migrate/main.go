package main

import (
	"context"
	"flag"
	"os"

	"github.com/dvloznov/quantoda/internal/config"
	infraBQ "github.com/dvloznov/quantoda/internal/infra/bigquery"
	"github.com/dvloznov/quantoda/internal/logger"
)

var (
	projectID = flag.String("project", "", "GCP project ID (defaults to BIGQUERY_PROJECT)")
	datasetID = flag.String("dataset", infraBQ.DefaultDataset, "BigQuery dataset ID")
	appliedBy = flag.String("applied-by", "migrate-cli", "Name of the tool applying migrations")
	dryRun    = flag.Bool("dry-run", false, "List migrations without applying them")
)

func main() {
	flag.Parse()

	log := logger.New()
	cfg := config.Load(log)
	if *projectID == "" {
		*projectID = cfg.BigQueryProject
	}
	if *projectID == "" {
		log.Fatal().Msg("-project flag or BIGQUERY_PROJECT is required")
	}

	migrations, err := infraBQ.EmbeddedMigrations(*projectID, *datasetID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read migrations")
	}
	log.Info().Int("count", len(migrations)).Msg("Found migration files")

	if *dryRun {
		for _, m := range migrations {
			log.Info().Int("version", m.Version).Str("name", m.Name).Str("checksum", m.Checksum[:12]).Msg("[DRY RUN] Migration")
		}
		return
	}

	ctx := logger.WithContext(context.Background(), log)

	archive, err := infraBQ.NewArchive(ctx, *projectID, *datasetID, cfg.GeminiModel)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create BigQuery client")
	}
	defer archive.Close()

	log.Info().Str("project", *projectID).Str("dataset", *datasetID).Msg("Connected to BigQuery")

	applied, err := archive.Migrate(ctx, migrations, *appliedBy, log)
	if err != nil {
		log.Error().Err(err).Int("applied", applied).Msg("Migration failed")
		archive.Close()
		os.Exit(1)
	}

	if applied == 0 {
		log.Info().Msg("No new migrations to apply. Archive is up to date.")
		return
	}
	log.Info().Int("applied", applied).Msg("Migrations applied")
}
