// Package bigquery archives analysis runs and raw model outputs in
// BigQuery for offline inspection of classifier behaviour.
package bigquery

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"

	"github.com/dvloznov/quantoda/internal/logger"
)

const (
	// DefaultDataset holds the archive tables.
	DefaultDataset = "quantoda"

	analysisRunsTable = "analysis_runs"
	modelOutputsTable = "model_outputs"

	maxErrorLen = 2000
)

// Archive records analysis runs. It implements pipeline.RunRecorder.
type Archive struct {
	client    *bigquery.Client
	projectID string
	datasetID string
	modelName string
	now       func() time.Time
}

// NewArchive creates an Archive with its own BigQuery client.
func NewArchive(ctx context.Context, projectID, datasetID, modelName string) (*Archive, error) {
	if projectID == "" {
		return nil, fmt.Errorf("NewArchive: project id is required")
	}
	if datasetID == "" {
		datasetID = DefaultDataset
	}
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("NewArchive: creating client: %w", err)
	}
	return &Archive{
		client:    client,
		projectID: projectID,
		datasetID: datasetID,
		modelName: modelName,
		now:       time.Now,
	}, nil
}

// Close closes the BigQuery client connection.
func (a *Archive) Close() error {
	if a.client != nil {
		return a.client.Close()
	}
	return nil
}

func (a *Archive) table(name string) string {
	return "`" + a.projectID + "." + a.datasetID + "." + name + "`"
}

// StartRun inserts a RUNNING row and returns the generated run id.
func (a *Archive) StartRun(ctx context.Context, owner, filename, mimeType string) (string, error) {
	runID := uuid.NewString()

	q := a.client.Query(`
		INSERT INTO ` + a.table(analysisRunsTable) + ` (
			run_id, owner_hash, started_ts, filename, mime_type, status
		)
		VALUES (
			@run_id, @owner_hash, @started_ts, @filename, @mime_type, @status
		)
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "run_id", Value: runID},
		{Name: "owner_hash", Value: OwnerHash(owner)},
		{Name: "started_ts", Value: a.now()},
		{Name: "filename", Value: filename},
		{Name: "mime_type", Value: mimeType},
		{Name: "status", Value: StatusRunning},
	}

	if err := runDML(ctx, q); err != nil {
		return "", fmt.Errorf("StartRun: %w", err)
	}
	return runID, nil
}

// StoreModelOutput inserts the raw classifier answer for a run.
func (a *Archive) StoreModelOutput(ctx context.Context, runID, schema, rawJSON string, tokensInput, tokensOutput int64) error {
	row := &ModelOutputRow{
		OutputID:     uuid.NewString(),
		RunID:        runID,
		ModelName:    a.modelName,
		Schema:       schema,
		RawJSON:      bigquery.NullJSON{JSONVal: rawJSON, Valid: rawJSON != ""},
		TokensInput:  bigquery.NullInt64{Int64: tokensInput, Valid: tokensInput > 0},
		TokensOutput: bigquery.NullInt64{Int64: tokensOutput, Valid: tokensOutput > 0},
		CreatedTS:    a.now(),
	}

	q := a.client.Query(`
		INSERT INTO ` + a.table(modelOutputsTable) + ` (
			output_id, run_id, model_name, schema, raw_json,
			tokens_input, tokens_output, created_ts
		)
		VALUES (
			@output_id, @run_id, @model_name, @schema, PARSE_JSON(@raw_json),
			@tokens_input, @tokens_output, @created_ts
		)
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "output_id", Value: row.OutputID},
		{Name: "run_id", Value: row.RunID},
		{Name: "model_name", Value: row.ModelName},
		{Name: "schema", Value: row.Schema},
		{Name: "raw_json", Value: row.RawJSON.JSONVal},
		{Name: "tokens_input", Value: row.TokensInput},
		{Name: "tokens_output", Value: row.TokensOutput},
		{Name: "created_ts", Value: row.CreatedTS},
	}

	if err := runDML(ctx, q); err != nil {
		return fmt.Errorf("StoreModelOutput: %w", err)
	}
	return nil
}

// MarkRunSucceeded sets status=SUCCESS with the result summary.
func (a *Archive) MarkRunSucceeded(ctx context.Context, runID string, itemCount int, totalMonthly float64) error {
	q := a.client.Query(`
		UPDATE ` + a.table(analysisRunsTable) + `
		SET status = @status,
		    finished_ts = @finished_ts,
		    error_message = "",
		    item_count = @item_count,
		    total_monthly = @total_monthly
		WHERE run_id = @run_id
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "status", Value: StatusSuccess},
		{Name: "finished_ts", Value: a.now()},
		{Name: "item_count", Value: itemCount},
		{Name: "total_monthly", Value: totalMonthly},
		{Name: "run_id", Value: runID},
	}

	if err := runDML(ctx, q); err != nil {
		return fmt.Errorf("MarkRunSucceeded: %w", err)
	}
	return nil
}

// MarkRunFailed sets status=FAILED. Errors are logged, not returned, so
// that the original analysis error stays the one reported.
func (a *Archive) MarkRunFailed(ctx context.Context, runID string, runErr error) {
	log := logger.FromContext(ctx)

	q := a.client.Query(`
		UPDATE ` + a.table(analysisRunsTable) + `
		SET status = @status,
		    finished_ts = @finished_ts,
		    error_message = @error_message
		WHERE run_id = @run_id
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "status", Value: StatusFailed},
		{Name: "finished_ts", Value: a.now()},
		{Name: "error_message", Value: errorMessage(runErr)},
		{Name: "run_id", Value: runID},
	}

	if err := runDML(ctx, q); err != nil {
		log.Error().
			Err(err).
			Str("run_id", runID).
			Msg("MarkRunFailed: updating run")
	}
}

// ListRecentRuns returns the newest runs of owner, at most limit.
func (a *Archive) ListRecentRuns(ctx context.Context, owner string, limit int) ([]*AnalysisRunRow, error) {
	if limit <= 0 {
		limit = 20
	}

	q := a.client.Query(`
		SELECT
			run_id, owner_hash, started_ts, finished_ts, filename, mime_type,
			status, error_message, item_count, total_monthly
		FROM ` + a.table(analysisRunsTable) + `
		WHERE owner_hash = @owner_hash
		ORDER BY started_ts DESC
		LIMIT @limit
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "owner_hash", Value: OwnerHash(owner)},
		{Name: "limit", Value: limit},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListRecentRuns: reading query: %w", err)
	}

	var runs []*AnalysisRunRow
	for {
		var row AnalysisRunRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListRecentRuns: iterating: %w", err)
		}
		runs = append(runs, &row)
	}

	return runs, nil
}

// DeleteOwnerRuns removes every archived run and model output of owner.
func (a *Archive) DeleteOwnerRuns(ctx context.Context, owner string) error {
	hash := OwnerHash(owner)

	outputs := a.client.Query(`
		DELETE FROM ` + a.table(modelOutputsTable) + `
		WHERE run_id IN (
			SELECT run_id FROM ` + a.table(analysisRunsTable) + ` WHERE owner_hash = @owner_hash
		)
	`)
	outputs.Parameters = []bigquery.QueryParameter{{Name: "owner_hash", Value: hash}}
	if err := runDML(ctx, outputs); err != nil {
		return fmt.Errorf("DeleteOwnerRuns: model outputs: %w", err)
	}

	runs := a.client.Query(`
		DELETE FROM ` + a.table(analysisRunsTable) + `
		WHERE owner_hash = @owner_hash
	`)
	runs.Parameters = []bigquery.QueryParameter{{Name: "owner_hash", Value: hash}}
	if err := runDML(ctx, runs); err != nil {
		return fmt.Errorf("DeleteOwnerRuns: runs: %w", err)
	}

	return nil
}

func runDML(ctx context.Context, q *bigquery.Query) error {
	job, err := q.Run(ctx)
	if err != nil {
		return fmt.Errorf("run query: %w", err)
	}

	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("wait for job: %w", err)
	}

	if err := status.Err(); err != nil {
		return fmt.Errorf("job error: %w", err)
	}

	return nil
}

// OwnerHash is the pseudonymous owner key stored in the archive.
func OwnerHash(owner string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(owner))))
	return hex.EncodeToString(sum[:])
}

func errorMessage(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if len(msg) > maxErrorLen {
		msg = msg[:maxErrorLen]
	}
	return msg
}
