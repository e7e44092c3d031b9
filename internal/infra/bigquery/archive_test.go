package bigquery

import (
	"errors"
	"strings"
	"testing"

	"github.com/dvloznov/quantoda/internal/pipeline"
)

var _ pipeline.RunRecorder = (*Archive)(nil)

func TestOwnerHash(t *testing.T) {
	a := OwnerHash("Ana@Example.com ")
	b := OwnerHash("ana@example.com")
	if a != b {
		t.Errorf("OwnerHash should ignore case and surrounding space: %s != %s", a, b)
	}
	if len(a) != 64 || strings.Contains(a, "ana") {
		t.Errorf("OwnerHash() = %q", a)
	}
	if OwnerHash("bia@example.com") == a {
		t.Error("different owners share a hash")
	}
}

func TestErrorMessage(t *testing.T) {
	if errorMessage(nil) != "" {
		t.Error("nil error should give empty message")
	}
	long := errors.New(strings.Repeat("x", maxErrorLen+50))
	if got := errorMessage(long); len(got) != maxErrorLen {
		t.Errorf("errorMessage() kept %d bytes, want %d", len(got), maxErrorLen)
	}
}

func TestTableName(t *testing.T) {
	a := &Archive{projectID: "proj", datasetID: DefaultDataset}
	if got := a.table(analysisRunsTable); got != "`proj.quantoda.analysis_runs`" {
		t.Errorf("table() = %s", got)
	}
}
