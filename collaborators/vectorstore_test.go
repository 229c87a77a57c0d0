package collaborators

import (
	"context"
	"testing"

	"github.com/contextcache/hybridmemory/similarity"
)

func TestInMemoryVectorStoreSearchRanksBySimilarity(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryVectorStore(nil)

	_ = store.Upsert(ctx, "a", []float32{1, 0, 0}, nil)
	_ = store.Upsert(ctx, "b", []float32{0, 1, 0}, nil)
	_ = store.Upsert(ctx, "c", []float32{0.9, 0.1, 0}, nil)

	results, err := store.Search(ctx, []float32{1, 0, 0}, 2, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected top-2, got %d", len(results))
	}
	if results[0].ID != "a" || results[1].ID != "c" {
		t.Fatalf("expected order [a, c], got [%s, %s]", results[0].ID, results[1].ID)
	}
}

// TestInMemoryVectorStoreComparatorChangesRanking shows a non-default
// comparator isn't just accepted but actually drives ranking: "near" is
// closer in direction to the query but "far" has a much larger magnitude,
// so cosine and dot_product disagree on which ranks first.
func TestInMemoryVectorStoreComparatorChangesRanking(t *testing.T) {
	ctx := context.Background()
	query := []float32{1, 0}
	near := []float32{0.5, 0}
	far := []float32{10, 1}

	cosine := NewInMemoryVectorStore(nil)
	_ = cosine.Upsert(ctx, "near", near, nil)
	_ = cosine.Upsert(ctx, "far", far, nil)
	cosineResults, err := cosine.Search(ctx, query, 2, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cosineResults[0].ID != "near" {
		t.Fatalf("expected cosine to rank the same-direction vector first, got %+v", cosineResults)
	}

	dot, err := similarity.ByName("dot_product")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	dotProduct := NewInMemoryVectorStore(dot)
	_ = dotProduct.Upsert(ctx, "near", near, nil)
	_ = dotProduct.Upsert(ctx, "far", far, nil)
	dotResults, err := dotProduct.Search(ctx, query, 2, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dotResults[0].ID != "far" {
		t.Fatalf("expected dot_product to rank the larger-magnitude vector first, got %+v", dotResults)
	}
}

func TestInMemoryVectorStoreDelete(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryVectorStore(nil)
	_ = store.Upsert(ctx, "a", []float32{1, 0}, nil)
	_ = store.Delete(ctx, "a")

	results, _ := store.Search(ctx, []float32{1, 0}, 10, nil)
	if len(results) != 0 {
		t.Fatalf("expected no results after delete, got %d", len(results))
	}
}

func TestInMemoryVectorStoreFilter(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryVectorStore(nil)
	_ = store.Upsert(ctx, "a", []float32{1, 0}, map[string]any{"kind": "note"})
	_ = store.Upsert(ctx, "b", []float32{1, 0}, map[string]any{"kind": "task"})

	results, _ := store.Search(ctx, []float32{1, 0}, 10, map[string]any{"kind": "task"})
	if len(results) != 1 || results[0].ID != "b" {
		t.Fatalf("expected only b to pass filter, got %+v", results)
	}
}
