package notionsync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jomei/notionapi"

	"github.com/dvloznov/quantoda/internal/domain"
)

// MockNotionService is a mock implementation of NotionService.
type MockNotionService struct {
	CreatePageFunc    func(ctx context.Context, databaseID string, properties notionapi.Properties) (*notionapi.Page, error)
	UpdatePageFunc    func(ctx context.Context, pageID string, properties notionapi.Properties) (*notionapi.Page, error)
	QueryDatabaseFunc func(ctx context.Context, databaseID string, filter *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error)
	ArchivePageFunc   func(ctx context.Context, pageID string) error

	created  []notionapi.Properties
	updated  []string
	archived []string
}

func (m *MockNotionService) CreatePage(ctx context.Context, databaseID string, properties notionapi.Properties) (*notionapi.Page, error) {
	m.created = append(m.created, properties)
	if m.CreatePageFunc != nil {
		return m.CreatePageFunc(ctx, databaseID, properties)
	}
	return &notionapi.Page{ID: "new"}, nil
}

func (m *MockNotionService) UpdatePage(ctx context.Context, pageID string, properties notionapi.Properties) (*notionapi.Page, error) {
	m.updated = append(m.updated, pageID)
	if m.UpdatePageFunc != nil {
		return m.UpdatePageFunc(ctx, pageID, properties)
	}
	return &notionapi.Page{ID: notionapi.ObjectID(pageID)}, nil
}

func (m *MockNotionService) QueryDatabase(ctx context.Context, databaseID string, filter *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	if m.QueryDatabaseFunc != nil {
		return m.QueryDatabaseFunc(ctx, databaseID, filter)
	}
	return &notionapi.DatabaseQueryResponse{}, nil
}

func (m *MockNotionService) ArchivePage(ctx context.Context, pageID string) error {
	m.archived = append(m.archived, pageID)
	if m.ArchivePageFunc != nil {
		return m.ArchivePageFunc(ctx, pageID)
	}
	return nil
}

func testRecord() domain.HistoryRecord {
	return domain.HistoryRecord{
		ID:        "an-1",
		CreatedAt: time.Date(2024, 5, 30, 12, 0, 0, 0, time.UTC),
		AnalysisResult: domain.AnalysisResult{
			Items: []domain.SubscriptionItem{
				{Name: "Netflix", Amount: 55.90, Frequency: domain.FrequencyMonthly, Category: "Streaming", Confidence: 0.95},
				{Name: "Adobe", Amount: 1200, Frequency: domain.FrequencyYearly, Category: "Software", Confidence: 0.8, Recommendation: "Avalie o plano mensal"},
			},
		},
	}
}

func pageWithKey(id, key string) notionapi.Page {
	return notionapi.Page{
		ID: notionapi.ObjectID(id),
		Properties: notionapi.Properties{
			PropItemKey: &notionapi.RichTextProperty{
				RichText: []notionapi.RichText{{PlainText: key}},
			},
		},
	}
}

func TestExportAnalysis_CreatesMissingPages(t *testing.T) {
	mock := &MockNotionService{}

	res, err := ExportAnalysis(context.Background(), mock, "db", testRecord(), ExportOptions{})
	if err != nil {
		t.Fatalf("ExportAnalysis() error = %v", err)
	}
	if res.Created != 2 || res.Skipped != 0 {
		t.Errorf("result = %+v", res)
	}
	if len(mock.created) != 2 {
		t.Fatalf("created %d pages", len(mock.created))
	}

	monthly, ok := mock.created[1][PropMonthlyAmount].(notionapi.NumberProperty)
	if !ok || monthly.Number != 100 {
		t.Errorf("monthly amount property = %#v", mock.created[1][PropMonthlyAmount])
	}
	if _, ok := mock.created[0][PropRecommendation]; ok {
		t.Error("empty recommendation should not be mapped")
	}
}

func TestExportAnalysis_Idempotent(t *testing.T) {
	mock := &MockNotionService{
		QueryDatabaseFunc: func(ctx context.Context, databaseID string, filter *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
			return &notionapi.DatabaseQueryResponse{
				Results: []notionapi.Page{
					pageWithKey("p0", ItemKey("an-1", 0)),
					pageWithKey("p-stale", ItemKey("an-1", 7)),
				},
			}, nil
		},
	}

	res, err := ExportAnalysis(context.Background(), mock, "db", testRecord(), ExportOptions{})
	if err != nil {
		t.Fatalf("ExportAnalysis() error = %v", err)
	}
	if res.Skipped != 1 || res.Created != 1 || res.Archived != 1 {
		t.Errorf("result = %+v", res)
	}
	if len(mock.archived) != 1 || mock.archived[0] != "p-stale" {
		t.Errorf("archived = %v", mock.archived)
	}

	res, err = ExportAnalysis(context.Background(), mock, "db", testRecord(), ExportOptions{Refresh: true})
	if err != nil {
		t.Fatalf("ExportAnalysis() refresh error = %v", err)
	}
	if res.Updated != 1 || len(mock.updated) != 1 || mock.updated[0] != "p0" {
		t.Errorf("refresh result = %+v, updated = %v", res, mock.updated)
	}
}

func TestExportAnalysis_Pagination(t *testing.T) {
	calls := 0
	mock := &MockNotionService{
		QueryDatabaseFunc: func(ctx context.Context, databaseID string, filter *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
			calls++
			if calls == 1 {
				if filter.StartCursor != "" {
					t.Errorf("first query has cursor %q", filter.StartCursor)
				}
				return &notionapi.DatabaseQueryResponse{
					Results:    []notionapi.Page{pageWithKey("p0", ItemKey("an-1", 0))},
					HasMore:    true,
					NextCursor: "next",
				}, nil
			}
			if filter.StartCursor != "next" {
				t.Errorf("second query cursor = %q", filter.StartCursor)
			}
			return &notionapi.DatabaseQueryResponse{
				Results: []notionapi.Page{pageWithKey("p1", ItemKey("an-1", 1))},
			}, nil
		},
	}

	res, err := ExportAnalysis(context.Background(), mock, "db", testRecord(), ExportOptions{})
	if err != nil {
		t.Fatalf("ExportAnalysis() error = %v", err)
	}
	if calls != 2 || res.Skipped != 2 || res.Created != 0 {
		t.Errorf("calls = %d, result = %+v", calls, res)
	}
}

func TestExportAnalysis_DryRun(t *testing.T) {
	mock := &MockNotionService{}

	res, err := ExportAnalysis(context.Background(), mock, "db", testRecord(), ExportOptions{DryRun: true})
	if err != nil {
		t.Fatalf("ExportAnalysis() error = %v", err)
	}
	if res.Created != 2 || len(mock.created) != 0 {
		t.Errorf("dry run wrote pages: result = %+v, created = %d", res, len(mock.created))
	}
}

func TestExportAnalysis_Errors(t *testing.T) {
	if _, err := ExportAnalysis(context.Background(), &MockNotionService{}, "db", domain.HistoryRecord{}, ExportOptions{}); err == nil {
		t.Error("expected error for record without id")
	}

	mock := &MockNotionService{
		QueryDatabaseFunc: func(ctx context.Context, databaseID string, filter *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
			return nil, errors.New("unauthorized")
		},
	}
	if _, err := ExportAnalysis(context.Background(), mock, "db", testRecord(), ExportOptions{}); err == nil {
		t.Error("expected query error")
	}

	mock = &MockNotionService{
		CreatePageFunc: func(ctx context.Context, databaseID string, properties notionapi.Properties) (*notionapi.Page, error) {
			return nil, errors.New("validation_error")
		},
	}
	res, err := ExportAnalysis(context.Background(), mock, "db", testRecord(), ExportOptions{})
	if err == nil || res.Created != 0 {
		t.Errorf("expected create error, got res %+v err %v", res, err)
	}
}

func TestItemKey(t *testing.T) {
	if got := ItemKey("an-1", 3); got != "an-1#3" {
		t.Errorf("ItemKey() = %q", got)
	}
	if got := extractItemKey(notionapi.Page{}); got != "" {
		t.Errorf("extractItemKey() on empty page = %q", got)
	}
}
