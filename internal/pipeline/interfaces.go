package pipeline

import (
	"context"

	"github.com/dvloznov/quantoda/internal/domain"
	"github.com/dvloznov/quantoda/internal/normalizer"
)

// TextNormalizer turns an uploaded statement into plain text.
type TextNormalizer interface {
	Normalize(ctx context.Context, in normalizer.Input) (string, error)
}

// HistoryAppender persists a finished analysis for an owner.
type HistoryAppender interface {
	Append(ctx context.Context, owner string, result domain.AnalysisResult) (domain.HistoryRecord, error)
}

// RunRecorder archives analysis runs and the raw model output.
// Implementations must tolerate being called with an empty run id.
type RunRecorder interface {
	StartRun(ctx context.Context, owner, filename, mimeType string) (string, error)
	StoreModelOutput(ctx context.Context, runID, schema, rawJSON string, tokensInput, tokensOutput int64) error
	MarkRunSucceeded(ctx context.Context, runID string, itemCount int, totalMonthly float64) error
	MarkRunFailed(ctx context.Context, runID string, runErr error)
}

// NopRecorder is the RunRecorder used when no archive is configured.
type NopRecorder struct{}

func (NopRecorder) StartRun(ctx context.Context, owner, filename, mimeType string) (string, error) {
	return "", nil
}

func (NopRecorder) StoreModelOutput(ctx context.Context, runID, schema, rawJSON string, tokensInput, tokensOutput int64) error {
	return nil
}

func (NopRecorder) MarkRunSucceeded(ctx context.Context, runID string, itemCount int, totalMonthly float64) error {
	return nil
}

func (NopRecorder) MarkRunFailed(ctx context.Context, runID string, runErr error) {}
