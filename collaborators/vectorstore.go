package collaborators

import (
	"context"
	"sort"
	"sync"

	"github.com/contextcache/hybridmemory/similarity"
)

// VectorMatch is one (id, similarity) result from VectorStore.Search.
type VectorMatch struct {
	ID         string
	Similarity float64
}

// VectorStore is the vector-database collaborator (spec §6). Search reports
// each match's similarity as the backing metric computes it; scores are not
// rescaled to [0,1]. InMemoryVectorStore reports its comparator's raw value
// (cosine and pearson in [-1,1], dot product unbounded, euclidean and
// manhattan in (0,1]), and the Qdrant adapter reports Qdrant's own score.
type VectorStore interface {
	Upsert(ctx context.Context, id string, vector []float32, metadata map[string]any) error
	Delete(ctx context.Context, id string) error
	Search(ctx context.Context, vector []float32, k int, filter map[string]any) ([]VectorMatch, error)
}

// InMemoryVectorStore is a brute-force reference VectorStore built on the
// similarity package, for tests and standalone use without an external
// vector database.
type InMemoryVectorStore struct {
	mu      sync.RWMutex
	compare similarity.SimilarityFunc

	vectors  map[string][]float32
	metadata map[string]map[string]any
}

// NewInMemoryVectorStore constructs a store using compare to rank matches;
// a nil compare defaults to similarity.CosineSimilarity.
func NewInMemoryVectorStore(compare similarity.SimilarityFunc) *InMemoryVectorStore {
	if compare == nil {
		compare = similarity.CosineSimilarity
	}
	return &InMemoryVectorStore{
		compare:  compare,
		vectors:  make(map[string][]float32),
		metadata: make(map[string]map[string]any),
	}
}

// Upsert implements VectorStore.
func (s *InMemoryVectorStore) Upsert(_ context.Context, id string, vector []float32, metadata map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vectors[id] = vector
	s.metadata[id] = metadata
	return nil
}

// Delete implements VectorStore.
func (s *InMemoryVectorStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.vectors, id)
	delete(s.metadata, id)
	return nil
}

// Search implements VectorStore, applying filter as exact-match metadata
// equality before ranking.
func (s *InMemoryVectorStore) Search(_ context.Context, vector []float32, k int, filter map[string]any) ([]VectorMatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matches := make([]VectorMatch, 0, len(s.vectors))
	for id, v := range s.vectors {
		if !passesFilter(s.metadata[id], filter) {
			continue
		}
		matches = append(matches, VectorMatch{ID: id, Similarity: float64(s.compare(vector, v))})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Similarity != matches[j].Similarity {
			return matches[i].Similarity > matches[j].Similarity
		}
		return matches[i].ID < matches[j].ID
	})
	if k > 0 && len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

func passesFilter(metadata map[string]any, filter map[string]any) bool {
	if len(filter) == 0 {
		return true
	}
	if metadata == nil {
		return false
	}
	for key, want := range filter {
		got, ok := metadata[key]
		if !ok || got != want {
			return false
		}
	}
	return true
}
