// Package classifier extracts recurring subscription charges from statement
// text using an LLM and normalizes the model output into domain items.
package classifier

import (
	"context"

	"github.com/dvloznov/quantoda/internal/domain"
)

// Classifier finds subscriptions in statement text.
type Classifier interface {
	Classify(ctx context.Context, text string) (*Classification, error)
}

// Classification is the normalized classifier output. Reported* fields are
// the totals the model claimed; they are informational only and never
// used as the source of truth.
type Classification struct {
	Items    []domain.SubscriptionItem
	Insights []string

	ReportedTotalMonthly *float64
	ReportedTotalYearly  *float64
	ReportedCount        *int

	// RawJSON is the model text after fence stripping, kept for archiving.
	RawJSON string
	// Schema is "canonical" or "legacy".
	Schema string

	TokensInput  int64
	TokensOutput int64
}

// Func adapts a plain function to the Classifier interface.
type Func func(ctx context.Context, text string) (*Classification, error)

// Classify calls f.
func (f Func) Classify(ctx context.Context, text string) (*Classification, error) {
	return f(ctx, text)
}
