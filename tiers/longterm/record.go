package longterm

import (
	"context"
	"sync"
	"time"

	"github.com/contextcache/hybridmemory/types"
)

// Record is the persisted Long-Term id record (spec §6 "Persisted state
// layout"). It carries Content in addition to the spec's named fields
// because reindexing the Keyword Index and resubmitting to the vector
// store — which the spec requires the record to make possible — needs the
// original text; a record without it could not reconstruct retrievability.
type Record struct {
	ID            string
	Content       string
	CreatedAt     time.Time
	Priority      types.Priority
	Kind          types.Kind
	Metadata      types.Metadata
	TokenEstimate int
}

// RecordStore persists Records for the Long-Term tier.
type RecordStore interface {
	Put(ctx context.Context, record Record) error
	Get(ctx context.Context, id string) (Record, bool, error)
	Delete(ctx context.Context, id string) error
	Scan(ctx context.Context) ([]Record, error)
}

// MemoryRecordStore is a mutex-guarded in-memory RecordStore: the default
// for tests and for callers who don't need Redis persistence.
type MemoryRecordStore struct {
	mu      sync.RWMutex
	records map[string]Record
}

// NewMemoryRecordStore constructs an empty MemoryRecordStore.
func NewMemoryRecordStore() *MemoryRecordStore {
	return &MemoryRecordStore{records: make(map[string]Record)}
}

// Put implements RecordStore.
func (s *MemoryRecordStore) Put(_ context.Context, record Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.ID] = record
	return nil
}

// Get implements RecordStore.
func (s *MemoryRecordStore) Get(_ context.Context, id string) (Record, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[id]
	return r, ok, nil
}

// Delete implements RecordStore.
func (s *MemoryRecordStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, id)
	return nil
}

// Scan implements RecordStore.
func (s *MemoryRecordStore) Scan(_ context.Context) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Record, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r)
	}
	return out, nil
}
