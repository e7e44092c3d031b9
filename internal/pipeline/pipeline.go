// Package pipeline runs one statement analysis end to end:
// normalize, classify, aggregate and record.
package pipeline

import (
	"context"
	"time"

	"github.com/dvloznov/quantoda/internal/classifier"
	"github.com/dvloznov/quantoda/internal/domain"
	"github.com/dvloznov/quantoda/internal/logger"
	"github.com/dvloznov/quantoda/internal/normalizer"
)

// DefaultClassifierTimeout bounds a single classifier call.
const DefaultClassifierTimeout = 45 * time.Second

// Analyzer wires the analysis steps to their dependencies.
type Analyzer struct {
	normalizer TextNormalizer
	classifier classifier.Classifier
	history    HistoryAppender
	recorder   RunRecorder
	timeout    time.Duration
}

// NewAnalyzer creates an Analyzer. A nil recorder disables archiving and a
// non-positive timeout selects DefaultClassifierTimeout.
func NewAnalyzer(n TextNormalizer, c classifier.Classifier, h HistoryAppender, r RunRecorder, timeout time.Duration) *Analyzer {
	if r == nil {
		r = NopRecorder{}
	}
	if timeout <= 0 {
		timeout = DefaultClassifierTimeout
	}
	return &Analyzer{
		normalizer: n,
		classifier: c,
		history:    h,
		recorder:   r,
		timeout:    timeout,
	}
}

// NewAnalysisPipeline creates the standard 7-step pipeline.
func (a *Analyzer) NewAnalysisPipeline() *Pipeline {
	return NewPipeline(
		&StartRunStep{Recorder: a.recorder},
		&NormalizeInputStep{Normalizer: a.normalizer, Recorder: a.recorder},
		&ClassifyStep{Classifier: a.classifier, Recorder: a.recorder, Timeout: a.timeout},
		&StoreModelOutputStep{Recorder: a.recorder},
		&AggregateStep{},
		&RecordHistoryStep{History: a.history, Recorder: a.recorder},
		&MarkSuccessStep{Recorder: a.recorder},
	)
}

// Analyze runs the pipeline for one statement. On error nothing is added
// to the owner's history.
func (a *Analyzer) Analyze(ctx context.Context, owner string, in normalizer.Input) (*domain.HistoryRecord, error) {
	log := logger.FromContext(ctx).With().
		Str("owner", owner).
		Str("filename", in.Filename).
		Logger()
	ctx = logger.WithContext(ctx, log)

	start := time.Now()
	state := &AnalysisState{Owner: owner, Input: in}

	if err := a.NewAnalysisPipeline().Execute(ctx, state); err != nil {
		log.Error().Err(err).Str("run_id", state.RunID).Msg("Analysis failed")
		return nil, err
	}

	log.Info().
		Str("run_id", state.RunID).
		Str("analysis_id", state.Record.ID).
		Int("subscriptions", state.Result.SubscriptionCount).
		Float64("total_monthly", state.Result.TotalMonthly).
		Dur("duration", time.Since(start)).
		Msg("Analysis completed")

	return state.Record, nil
}
