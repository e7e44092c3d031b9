package history

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/dvloznov/quantoda/internal/domain"
)

// memoryBlobStore is an in-memory BlobStore with an injectable Put failure.
type memoryBlobStore struct {
	mu      sync.Mutex
	data    map[string][]byte
	PutFunc func(key string, data []byte) error
	puts    int
}

func newMemoryBlobStore() *memoryBlobStore {
	return &memoryBlobStore{data: make(map[string][]byte)}
}

func (m *memoryBlobStore) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.data[key]
	if !ok {
		return nil, ErrBlobNotFound
	}
	return d, nil
}

func (m *memoryBlobStore) Put(ctx context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.puts++
	if m.PutFunc != nil {
		if err := m.PutFunc(key, data); err != nil {
			return err
		}
	}
	m.data[key] = data
	return nil
}

func (m *memoryBlobStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[key]; !ok {
		return ErrBlobNotFound
	}
	delete(m.data, key)
	return nil
}

func newTestStore(blobs BlobStore) *Store {
	s := NewStore(blobs)
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	n := 0
	s.now = func() time.Time {
		n++
		return base.Add(time.Duration(n) * time.Hour)
	}
	ids := 0
	s.newID = func() string {
		ids++
		return fmt.Sprintf("rec-%d", ids)
	}
	return s
}

func result(monthly float64) domain.AnalysisResult {
	return domain.AnalysisResult{
		TotalMonthly:      monthly,
		TotalYearly:       monthly * 12,
		SubscriptionCount: 1,
		Items: []domain.SubscriptionItem{
			{Name: "Netflix", Amount: monthly, Frequency: domain.FrequencyMonthly, Category: "Streaming"},
		},
		Insights: []string{},
	}
}

func TestStore_AppendNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(newMemoryBlobStore())

	first, err := s.Append(ctx, "ana", result(100))
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	second, err := s.Append(ctx, "ana", result(80))
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	if first.ID == "" || first.CreatedAt.IsZero() {
		t.Errorf("record not stamped: %+v", first)
	}

	list, err := s.List(ctx, "ana")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 2 || list[0].ID != second.ID || list[1].ID != first.ID {
		t.Errorf("List() order = %v, want newest first", []string{list[0].ID, list[1].ID})
	}

	other, _ := s.List(ctx, "bruno")
	if len(other) != 0 {
		t.Errorf("owners share history: %v", other)
	}
}

func TestStore_FailedWriteLeavesHistoryUnchanged(t *testing.T) {
	ctx := context.Background()
	blobs := newMemoryBlobStore()
	s := newTestStore(blobs)

	if _, err := s.Append(ctx, "ana", result(100)); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	blobs.PutFunc = func(key string, data []byte) error { return errors.New("quota exceeded") }
	if _, err := s.Append(ctx, "ana", result(50)); err == nil {
		t.Fatal("expected write error")
	}

	list, _ := s.List(ctx, "ana")
	if len(list) != 1 || list[0].TotalMonthly != 100 {
		t.Errorf("history changed after failed write: %+v", list)
	}
}

func TestStore_PersistsAcrossInstances(t *testing.T) {
	ctx := context.Background()
	blobs, err := NewFileBlobStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileBlobStore() error = %v", err)
	}

	if _, err := newTestStore(blobs).Append(ctx, "ana@example.com", result(42)); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	list, err := NewStore(blobs).List(ctx, "ana@example.com")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 1 || list[0].TotalMonthly != 42 || len(list[0].Items) != 1 {
		t.Errorf("reloaded history = %+v", list)
	}
}

func TestStore_Clear(t *testing.T) {
	ctx := context.Background()
	blobs := newMemoryBlobStore()
	s := newTestStore(blobs)

	if err := s.Clear(ctx, "ana"); err != nil {
		t.Fatalf("Clear() on empty history error = %v", err)
	}

	_, _ = s.Append(ctx, "ana", result(10))
	if err := s.Clear(ctx, "ana"); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if _, err := blobs.Get(ctx, Key("ana")); !errors.Is(err, ErrBlobNotFound) {
		t.Errorf("key still present after Clear: %v", err)
	}
	list, _ := s.List(ctx, "ana")
	if len(list) != 0 {
		t.Errorf("List() after Clear = %d records", len(list))
	}
}

func TestStore_CorruptDocument(t *testing.T) {
	ctx := context.Background()
	blobs := newMemoryBlobStore()
	blobs.data[Key("ana")] = []byte("{not json")

	if _, err := NewStore(blobs).List(ctx, "ana"); err == nil {
		t.Error("expected decode error")
	}
}

func TestStore_Get(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(newMemoryBlobStore())
	rec, _ := s.Append(ctx, "ana", result(10))

	got, ok, err := s.Get(ctx, "ana", rec.ID)
	if err != nil || !ok || got.ID != rec.ID {
		t.Errorf("Get() = %+v, %v, %v", got, ok, err)
	}
	if _, ok, _ := s.Get(ctx, "ana", "missing"); ok {
		t.Error("Get() found a missing record")
	}
}

func TestKey(t *testing.T) {
	if got := Key("ana@example.com"); got != "quantoda_history/ana@example.com" {
		t.Errorf("Key() = %q", got)
	}
	if got := Key("../etc"); got != "quantoda_history/..%2Fetc" {
		t.Errorf("Key() = %q", got)
	}
}

func TestFileBlobStore(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	f, err := NewFileBlobStore(dir)
	if err != nil {
		t.Fatalf("NewFileBlobStore() error = %v", err)
	}

	if _, err := f.Get(ctx, "quantoda_history/x"); !errors.Is(err, ErrBlobNotFound) {
		t.Errorf("Get() missing = %v", err)
	}
	if err := f.Put(ctx, "quantoda_history/x", []byte(`[]`)); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "quantoda_history", "x.json")); err != nil {
		t.Errorf("file not written: %v", err)
	}
	data, err := f.Get(ctx, "quantoda_history/x")
	if err != nil || string(data) != "[]" {
		t.Errorf("Get() = %q, %v", data, err)
	}
	if err := f.Delete(ctx, "quantoda_history/x"); err != nil {
		t.Errorf("Delete() error = %v", err)
	}
	if err := f.Delete(ctx, "quantoda_history/x"); !errors.Is(err, ErrBlobNotFound) {
		t.Errorf("second Delete() = %v", err)
	}
}

func TestOpen_UnknownBackend(t *testing.T) {
	if _, _, err := Open(context.Background(), BackendConfig{Backend: "redis"}); err == nil {
		t.Error("expected error for unknown backend")
	}
}

func TestBuildTrend(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	records := []domain.HistoryRecord{
		{ID: "c", CreatedAt: base.AddDate(0, 2, 0), AnalysisResult: domain.AnalysisResult{TotalMonthly: 300}},
		{ID: "b", CreatedAt: base.AddDate(0, 1, 0), AnalysisResult: domain.AnalysisResult{TotalMonthly: 420}},
		{ID: "a", CreatedAt: base, AnalysisResult: domain.AnalysisResult{TotalMonthly: 450}},
	}

	trend := BuildTrend(records)
	if len(trend.Points) != 3 || trend.Points[0].ID != "a" || trend.Points[2].ID != "c" {
		t.Fatalf("points not chronological: %+v", trend.Points)
	}
	if trend.Points[0].Delta != 0 || trend.Points[1].Delta != -30 || trend.Points[2].Delta != -120 {
		t.Errorf("unexpected deltas: %+v", trend.Points)
	}
	if trend.TotalSavings != 150 || !trend.Saving {
		t.Errorf("TotalSavings = %v, Saving = %v", trend.TotalSavings, trend.Saving)
	}

	empty := BuildTrend(nil)
	if len(empty.Points) != 0 || empty.Saving {
		t.Errorf("empty trend = %+v", empty)
	}
}

func TestCompare(t *testing.T) {
	from := domain.HistoryRecord{ID: "a", AnalysisResult: domain.AnalysisResult{
		TotalMonthly: 100,
		Items:        []domain.SubscriptionItem{{Name: "Netflix"}, {Name: "Spotify"}},
	}}
	to := domain.HistoryRecord{ID: "b", AnalysisResult: domain.AnalysisResult{
		TotalMonthly: 70,
		Items:        []domain.SubscriptionItem{{Name: "Spotify"}, {Name: "Max"}},
	}}

	c := Compare(from, to)
	if c.DeltaMonthly != -30 {
		t.Errorf("DeltaMonthly = %v", c.DeltaMonthly)
	}
	if len(c.Added) != 1 || c.Added[0] != "Max" || len(c.Removed) != 1 || c.Removed[0] != "Netflix" {
		t.Errorf("Added = %v, Removed = %v", c.Added, c.Removed)
	}
}
