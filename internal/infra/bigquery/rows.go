package bigquery

import (
	"time"

	"cloud.google.com/go/bigquery"
)

// Run statuses stored in analysis_runs.status.
const (
	StatusRunning = "RUNNING"
	StatusSuccess = "SUCCESS"
	StatusFailed  = "FAILED"
)

type AnalysisRunRow struct {
	RunID     string `bigquery:"run_id"`     // REQUIRED
	OwnerHash string `bigquery:"owner_hash"` // REQUIRED

	StartedTS  time.Time              `bigquery:"started_ts"`  // REQUIRED
	FinishedTS bigquery.NullTimestamp `bigquery:"finished_ts"` // NULLABLE

	Filename string `bigquery:"filename"`  // NULLABLE
	MIMEType string `bigquery:"mime_type"` // NULLABLE

	Status       string `bigquery:"status"`        // REQUIRED
	ErrorMessage string `bigquery:"error_message"` // NULLABLE

	ItemCount    bigquery.NullInt64   `bigquery:"item_count"`    // NULLABLE
	TotalMonthly bigquery.NullFloat64 `bigquery:"total_monthly"` // NULLABLE
}

type ModelOutputRow struct {
	OutputID string `bigquery:"output_id"` // REQUIRED
	RunID    string `bigquery:"run_id"`    // REQUIRED

	ModelName string `bigquery:"model_name"` // REQUIRED
	Schema    string `bigquery:"schema"`     // REQUIRED ("canonical" or "legacy")

	RawJSON bigquery.NullJSON `bigquery:"raw_json"` // REQUIRED (JSON)

	TokensInput  bigquery.NullInt64 `bigquery:"tokens_input"`  // NULLABLE
	TokensOutput bigquery.NullInt64 `bigquery:"tokens_output"` // NULLABLE

	CreatedTS time.Time `bigquery:"created_ts"` // REQUIRED
}
