package pipeline

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/dvloznov/quantoda/internal/aggregator"
	"github.com/dvloznov/quantoda/internal/classifier"
	"github.com/dvloznov/quantoda/internal/domain"
	"github.com/dvloznov/quantoda/internal/logger"
	"github.com/dvloznov/quantoda/internal/normalizer"
)

// EmptyStatementInsight is returned when the statement has no text.
const EmptyStatementInsight = "Não encontramos conteúdo no arquivo enviado. Envie um extrato válido em CSV, TXT, XLSX ou PDF."

// PipelineStep represents a single step in the analysis pipeline.
type PipelineStep interface {
	Execute(ctx context.Context, state *AnalysisState) error
}

// AnalysisState holds the shared state across all pipeline steps.
type AnalysisState struct {
	Owner          string
	Input          normalizer.Input
	RunID          string
	Text           string
	Classification *classifier.Classification
	Result         domain.AnalysisResult
	Record         *domain.HistoryRecord
}

// Step 1: StartRunStep opens an archive run (status=RUNNING).
type StartRunStep struct {
	Recorder RunRecorder
}

func (s *StartRunStep) Execute(ctx context.Context, state *AnalysisState) error {
	runID, err := s.Recorder.StartRun(ctx, state.Owner, state.Input.Filename, state.Input.MIMEType)
	if err != nil {
		return fmt.Errorf("StartRunStep: %w", err)
	}
	state.RunID = runID
	return nil
}

// Step 2: NormalizeInputStep extracts the statement text.
type NormalizeInputStep struct {
	Normalizer TextNormalizer
	Recorder   RunRecorder
}

func (s *NormalizeInputStep) Execute(ctx context.Context, state *AnalysisState) error {
	text, err := s.Normalizer.Normalize(ctx, state.Input)
	if err != nil {
		s.Recorder.MarkRunFailed(ctx, state.RunID, err)
		return err
	}
	state.Text = text
	return nil
}

// Step 3: ClassifyStep sends the text to the classifier under a deadline.
// Empty text never reaches the classifier.
type ClassifyStep struct {
	Classifier classifier.Classifier
	Recorder   RunRecorder
	Timeout    time.Duration
}

func (s *ClassifyStep) Execute(ctx context.Context, state *AnalysisState) error {
	if strings.TrimSpace(state.Text) == "" {
		state.Classification = &classifier.Classification{
			Items:    []domain.SubscriptionItem{},
			Insights: []string{EmptyStatementInsight},
		}
		return nil
	}

	callCtx := ctx
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	cls, err := s.Classifier.Classify(callCtx, state.Text)
	if err != nil {
		s.Recorder.MarkRunFailed(ctx, state.RunID, err)
		return err
	}
	state.Classification = cls
	return nil
}

// Step 4: StoreModelOutputStep archives the raw model JSON.
type StoreModelOutputStep struct {
	Recorder RunRecorder
}

func (s *StoreModelOutputStep) Execute(ctx context.Context, state *AnalysisState) error {
	cls := state.Classification
	if cls == nil || cls.RawJSON == "" {
		return nil
	}
	if err := s.Recorder.StoreModelOutput(ctx, state.RunID, cls.Schema, cls.RawJSON, cls.TokensInput, cls.TokensOutput); err != nil {
		s.Recorder.MarkRunFailed(ctx, state.RunID, err)
		return fmt.Errorf("StoreModelOutputStep: %w", err)
	}
	return nil
}

// Step 5: AggregateStep derives totals from the items.
type AggregateStep struct{}

func (s *AggregateStep) Execute(ctx context.Context, state *AnalysisState) error {
	cls := state.Classification
	if cls == nil {
		return fmt.Errorf("AggregateStep: no classification in state")
	}

	state.Result = aggregator.Aggregate(cls.Items, cls.Insights)
	logReportedMismatch(ctx, cls, state.Result)
	return nil
}

// logReportedMismatch warns when the model's own totals disagree with the
// item-derived ones.
func logReportedMismatch(ctx context.Context, cls *classifier.Classification, result domain.AnalysisResult) {
	log := logger.FromContext(ctx)

	const tolerance = 0.01
	if cls.ReportedTotalMonthly != nil && math.Abs(*cls.ReportedTotalMonthly-result.TotalMonthly) > tolerance {
		log.Warn().
			Float64("reported", *cls.ReportedTotalMonthly).
			Float64("derived", result.TotalMonthly).
			Msg("Classifier monthly total disagrees with items")
	}
	if cls.ReportedTotalYearly != nil && math.Abs(*cls.ReportedTotalYearly-result.TotalYearly) > tolerance {
		log.Warn().
			Float64("reported", *cls.ReportedTotalYearly).
			Float64("derived", result.TotalYearly).
			Msg("Classifier yearly total disagrees with items")
	}
	if cls.ReportedCount != nil && *cls.ReportedCount != result.SubscriptionCount {
		log.Warn().
			Int("reported", *cls.ReportedCount).
			Int("derived", result.SubscriptionCount).
			Msg("Classifier subscription count disagrees with items")
	}
}

// Step 6: RecordHistoryStep appends the result to the owner's history.
type RecordHistoryStep struct {
	History  HistoryAppender
	Recorder RunRecorder
}

func (s *RecordHistoryStep) Execute(ctx context.Context, state *AnalysisState) error {
	record, err := s.History.Append(ctx, state.Owner, state.Result)
	if err != nil {
		s.Recorder.MarkRunFailed(ctx, state.RunID, err)
		return fmt.Errorf("RecordHistoryStep: %w", err)
	}
	state.Record = &record
	return nil
}

// Step 7: MarkSuccessStep closes the archive run as SUCCESS. The record
// is already in history at this point, so an archive failure is only
// logged and the analysis still succeeds.
type MarkSuccessStep struct {
	Recorder RunRecorder
}

func (s *MarkSuccessStep) Execute(ctx context.Context, state *AnalysisState) error {
	if err := s.Recorder.MarkRunSucceeded(ctx, state.RunID, state.Result.SubscriptionCount, state.Result.TotalMonthly); err != nil {
		log := logger.FromContext(ctx)
		log.Warn().
			Err(err).
			Str("run_id", state.RunID).
			Msg("MarkSuccessStep: archive not updated")
	}
	return nil
}

// Pipeline executes a sequence of steps in order.
type Pipeline struct {
	steps []PipelineStep
}

// NewPipeline creates a new pipeline with the given steps.
func NewPipeline(steps ...PipelineStep) *Pipeline {
	return &Pipeline{steps: steps}
}

// Execute runs all steps in the pipeline sequentially.
func (p *Pipeline) Execute(ctx context.Context, state *AnalysisState) error {
	for i, step := range p.steps {
		if err := step.Execute(ctx, state); err != nil {
			return fmt.Errorf("pipeline step %d failed: %w", i+1, err)
		}
	}
	return nil
}
