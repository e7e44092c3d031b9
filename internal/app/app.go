// Package app assembles the analysis stack shared by the API server and
// the CLI from a Config.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/dvloznov/quantoda/internal/classifier"
	"github.com/dvloznov/quantoda/internal/config"
	"github.com/dvloznov/quantoda/internal/domain"
	"github.com/dvloznov/quantoda/internal/history"
	infraBQ "github.com/dvloznov/quantoda/internal/infra/bigquery"
	"github.com/dvloznov/quantoda/internal/normalizer"
	"github.com/dvloznov/quantoda/internal/pipeline"
)

// Services are the long lived dependencies of an analysis process.
type Services struct {
	History  *history.Store
	Analyzer *pipeline.Analyzer
	// Archive is nil when BIGQUERY_PROJECT is not set.
	Archive *infraBQ.Archive

	closers []io.Closer
}

// Build opens the history backend, the classifier and the optional run
// archive. Call Close when done.
func Build(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Services, error) {
	s := &Services{}

	blobs, closer, err := history.Open(ctx, cfg.History)
	if err != nil {
		return nil, fmt.Errorf("Build: opening history backend: %w", err)
	}
	s.closers = append(s.closers, closer)
	s.History = history.NewStore(blobs)
	log.Info().Str("backend", cfg.History.Backend).Msg("History backend ready")

	profile := classifier.DefaultProfile()
	if cfg.PromptProfilePath != "" {
		profile, err = classifier.LoadProfile(cfg.PromptProfilePath)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("Build: %w", err)
		}
		log.Info().Str("path", cfg.PromptProfilePath).Msg("Loaded prompt profile")
	}

	var cls classifier.Classifier
	gen, genErr := classifier.NewGeminiGenerator(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
	if genErr != nil {
		log.Warn().Err(genErr).Msg("Classifier unavailable, analyses will fail")
		cls = classifier.Func(func(ctx context.Context, text string) (*classifier.Classification, error) {
			return nil, fmt.Errorf("%w: %w", domain.ErrClassification, genErr)
		})
	} else {
		cls = classifier.New(gen, profile, classifier.WithRetries(cfg.ClassifierRetries))
	}

	var recorder pipeline.RunRecorder
	if cfg.BigQueryProject != "" {
		archive, err := infraBQ.NewArchive(ctx, cfg.BigQueryProject, infraBQ.DefaultDataset, cfg.GeminiModel)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("Build: %w", err)
		}
		s.Archive = archive
		s.closers = append(s.closers, archive)
		recorder = archive
		log.Info().Str("project", cfg.BigQueryProject).Msg("Run archive enabled")
	}

	norm := normalizer.New(normalizer.WithMaxChars(cfg.MaxStatementChars))
	s.Analyzer = pipeline.NewAnalyzer(norm, cls, s.History, recorder, cfg.ClassifierTimeout)

	return s, nil
}

// Close releases every backend opened by Build.
func (s *Services) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}
