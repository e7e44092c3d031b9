// Package history keeps the per-owner list of past analyses. The whole list
// is stored as one JSON document under a namespaced key and rewritten on
// every change.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/dvloznov/quantoda/internal/domain"
	"github.com/dvloznov/quantoda/internal/logger"
	"github.com/google/uuid"
)

// Namespace prefixes every history key.
const Namespace = "quantoda_history"

// ErrBlobNotFound is returned by a BlobStore when the key does not exist.
var ErrBlobNotFound = errors.New("blob not found")

// BlobStore is a minimal key/value store for history documents.
type BlobStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
}

// Key returns the storage key for owner.
func Key(owner string) string {
	return Namespace + "/" + url.PathEscape(owner)
}

// Store serializes history reads and writes per process. Lists are cached
// after the first load.
type Store struct {
	blobs BlobStore
	now   func() time.Time
	newID func() string

	mu    sync.Mutex
	cache map[string][]domain.HistoryRecord
}

// NewStore creates a Store on top of blobs.
func NewStore(blobs BlobStore) *Store {
	return &Store{
		blobs: blobs,
		now:   time.Now,
		newID: uuid.NewString,
		cache: make(map[string][]domain.HistoryRecord),
	}
}

// Append stamps result with an id and creation time and prepends it to the
// owner's history. If the write fails the history is left unchanged.
func (s *Store) Append(ctx context.Context, owner string, result domain.AnalysisResult) (domain.HistoryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.load(ctx, owner)
	if err != nil {
		return domain.HistoryRecord{}, fmt.Errorf("Append: %w", err)
	}

	record := domain.HistoryRecord{
		AnalysisResult: result,
		ID:             s.newID(),
		CreatedAt:      s.now().UTC(),
	}

	updated := make([]domain.HistoryRecord, 0, len(current)+1)
	updated = append(updated, record)
	updated = append(updated, current...)

	data, err := json.Marshal(updated)
	if err != nil {
		return domain.HistoryRecord{}, fmt.Errorf("Append: encoding history: %w", err)
	}
	if err := s.blobs.Put(ctx, Key(owner), data); err != nil {
		return domain.HistoryRecord{}, fmt.Errorf("Append: writing history: %w", err)
	}

	s.cache[owner] = updated

	log := logger.FromContext(ctx)
	log.Debug().
		Str("analysis_id", record.ID).
		Int("history_size", len(updated)).
		Msg("History record appended")

	return record, nil
}

// List returns the owner's history, newest first.
func (s *Store) List(ctx context.Context, owner string) ([]domain.HistoryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("List: %w", err)
	}

	out := make([]domain.HistoryRecord, len(records))
	copy(out, records)
	return out, nil
}

// Get returns one record by id.
func (s *Store) Get(ctx context.Context, owner, id string) (domain.HistoryRecord, bool, error) {
	records, err := s.List(ctx, owner)
	if err != nil {
		return domain.HistoryRecord{}, false, err
	}
	for _, r := range records {
		if r.ID == id {
			return r, true, nil
		}
	}
	return domain.HistoryRecord{}, false, nil
}

// Clear deletes the owner's whole history.
func (s *Store) Clear(ctx context.Context, owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.blobs.Delete(ctx, Key(owner)); err != nil && !errors.Is(err, ErrBlobNotFound) {
		return fmt.Errorf("Clear: %w", err)
	}
	s.cache[owner] = []domain.HistoryRecord{}
	return nil
}

// load must be called with s.mu held.
func (s *Store) load(ctx context.Context, owner string) ([]domain.HistoryRecord, error) {
	if records, ok := s.cache[owner]; ok {
		return records, nil
	}

	data, err := s.blobs.Get(ctx, Key(owner))
	if errors.Is(err, ErrBlobNotFound) {
		s.cache[owner] = []domain.HistoryRecord{}
		return s.cache[owner], nil
	}
	if err != nil {
		return nil, fmt.Errorf("load: reading history: %w", err)
	}

	var records []domain.HistoryRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("load: decoding history for %q: %w", owner, err)
	}
	if records == nil {
		records = []domain.HistoryRecord{}
	}

	s.cache[owner] = records
	return records, nil
}
