package app

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/dvloznov/quantoda/internal/config"
	"github.com/dvloznov/quantoda/internal/domain"
	"github.com/dvloznov/quantoda/internal/history"
	"github.com/dvloznov/quantoda/internal/normalizer"
)

func TestBuild_WithoutGeminiKey(t *testing.T) {
	cfg := &config.Config{
		History: history.BackendConfig{Backend: history.BackendFile, Dir: t.TempDir()},
	}

	s, err := Build(context.Background(), cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	defer s.Close()

	if s.Archive != nil {
		t.Error("archive should be disabled without a project")
	}

	_, err = s.Analyzer.Analyze(context.Background(), "ana@example.com", normalizer.Input{Override: normalizer.SampleStatement})
	if !errors.Is(err, domain.ErrClassification) {
		t.Fatalf("Analyze() error = %v, want ErrClassification", err)
	}

	records, err := s.History.List(context.Background(), "ana@example.com")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(records) != 0 {
		t.Errorf("failed analysis was stored: %d records", len(records))
	}
}

func TestBuild_Errors(t *testing.T) {
	tests := []struct {
		name string
		cfg  *config.Config
	}{
		{
			name: "unknown backend",
			cfg:  &config.Config{History: history.BackendConfig{Backend: "s3"}},
		},
		{
			name: "missing profile",
			cfg: &config.Config{
				History:           history.BackendConfig{Backend: history.BackendFile, Dir: t.TempDir()},
				PromptProfilePath: "does-not-exist.yaml",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Build(context.Background(), tt.cfg, zerolog.Nop()); err == nil {
				t.Error("expected error")
			}
		})
	}
}
