package longterm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/contextcache/hybridmemory/chunker"
	"github.com/contextcache/hybridmemory/collaborators"
	"github.com/contextcache/hybridmemory/keyword"
	"github.com/contextcache/hybridmemory/types"
)

type failingVectorStore struct {
	*collaborators.InMemoryVectorStore
	failAfter int
	upserts   int
}

func (f *failingVectorStore) Upsert(ctx context.Context, id string, vector []float32, metadata map[string]any) error {
	f.upserts++
	if f.upserts > f.failAfter {
		return errors.New("simulated collaborator failure")
	}
	return f.InMemoryVectorStore.Upsert(ctx, id, vector, metadata)
}

func newTier() *Tier {
	idx := keyword.New(keyword.DefaultK1, keyword.DefaultB)
	vectors := collaborators.NewInMemoryVectorStore(nil)
	embedder := collaborators.NewHashEmbedder(16)
	store := NewMemoryRecordStore()
	return New(chunker.NewChunker(), chunker.DefaultParams(), idx, vectors, nil, embedder, store)
}

func TestAddIndexesChunksAndPersistsRecord(t *testing.T) {
	ctx := context.Background()
	tier := newTier()

	item := &types.ContextItem{
		ID:        "doc1",
		Content:   "python is great for machine learning and data science projects",
		Kind:      types.KindDocument,
		Priority:  types.PriorityNormal,
		CreatedAt: time.Unix(0, 0),
	}
	if err := tier.Add(ctx, item); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, ok, err := tier.Get(ctx, "doc1")
	if err != nil || !ok {
		t.Fatalf("expected record to be retrievable, got ok=%v err=%v", ok, err)
	}
	if got.Content != item.Content {
		t.Fatalf("expected reconstructed content to match, got %q", got.Content)
	}
}

func TestAddRollsBackOnVectorStoreFailure(t *testing.T) {
	ctx := context.Background()
	idx := keyword.New(keyword.DefaultK1, keyword.DefaultB)
	inner := collaborators.NewInMemoryVectorStore(nil)
	vectors := &failingVectorStore{InMemoryVectorStore: inner, failAfter: 0}
	embedder := collaborators.NewHashEmbedder(16)
	store := NewMemoryRecordStore()
	tier := New(chunker.NewChunker(), chunker.DefaultParams(), idx, vectors, nil, embedder, store)

	item := &types.ContextItem{
		ID:        "doc1",
		Content:   "this content will fail to upsert into the vector store",
		Kind:      types.KindDocument,
		CreatedAt: time.Unix(0, 0),
	}
	err := tier.Add(ctx, item)
	if err == nil {
		t.Fatalf("expected an error from the failing vector store")
	}

	if _, ok, _ := tier.Get(ctx, "doc1"); ok {
		t.Fatalf("expected record to not be persisted after rollback")
	}
	results := idx.Search("content fail upsert vector store", 10, nil)
	if len(results) != 0 {
		t.Fatalf("expected keyword postings to be rolled back, got %d", len(results))
	}
}

func TestParentOfResolvesChunkToOwningItem(t *testing.T) {
	ctx := context.Background()
	tier := newTier()
	item := &types.ContextItem{
		ID:        "doc1",
		Content:   "alpha beta gamma delta epsilon zeta eta theta",
		Kind:      types.KindDocument,
		CreatedAt: time.Unix(0, 0),
	}
	if err := tier.Add(ctx, item); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	chunkIDs := tier.chunkIDs["doc1"]
	if len(chunkIDs) == 0 {
		t.Fatalf("expected at least one chunk id to be tracked")
	}
	parent, ok := tier.ParentOf(chunkIDs[0])
	if !ok || parent != "doc1" {
		t.Fatalf("expected chunk to resolve back to doc1, got %q ok=%v", parent, ok)
	}

	if err := tier.Delete(ctx, "doc1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := tier.ParentOf(chunkIDs[0]); ok {
		t.Fatalf("expected parentOf mapping to be cleared after delete")
	}
}

func TestDeleteCascades(t *testing.T) {
	ctx := context.Background()
	tier := newTier()
	item := &types.ContextItem{
		ID:        "doc1",
		Content:   "alpha beta gamma delta epsilon zeta",
		Kind:      types.KindNote,
		CreatedAt: time.Unix(0, 0),
	}
	if err := tier.Add(ctx, item); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := tier.Delete(ctx, "doc1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok, _ := tier.Get(ctx, "doc1"); ok {
		t.Fatalf("expected record gone after delete")
	}
}

func TestAddUpsertsGraphEntitiesWhenGraphStoreProvided(t *testing.T) {
	ctx := context.Background()
	idx := keyword.New(keyword.DefaultK1, keyword.DefaultB)
	vectors := collaborators.NewInMemoryVectorStore(nil)
	embedder := collaborators.NewHashEmbedder(16)
	store := NewMemoryRecordStore()
	graph := collaborators.NewInMemoryGraphStore()
	tier := New(chunker.NewChunker(), chunker.DefaultParams(), idx, vectors, graph, embedder, store)

	item := &types.ContextItem{
		ID:        "doc1",
		Content:   "graph entities should be upserted for this document and its chunks",
		Kind:      types.KindDocument,
		CreatedAt: time.Unix(0, 0),
	}
	if err := tier.Add(ctx, item); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	matches, err := graph.Search(ctx, "doc1", 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("expected the parent entity to be discoverable in the graph store")
	}
}

func TestScanAppliesFilter(t *testing.T) {
	ctx := context.Background()
	tier := newTier()
	_ = tier.Add(ctx, &types.ContextItem{ID: "d1", Content: "alpha beta gamma", Kind: types.KindNote, CreatedAt: time.Unix(0, 0)})
	_ = tier.Add(ctx, &types.ContextItem{ID: "d2", Content: "delta epsilon zeta", Kind: types.KindFact, CreatedAt: time.Unix(0, 0)})

	got, err := tier.Scan(ctx, func(item *types.ContextItem) bool { return item.Kind == types.KindFact })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].ID != "d2" {
		t.Fatalf("expected only d2 to pass filter, got %+v", got)
	}
}
