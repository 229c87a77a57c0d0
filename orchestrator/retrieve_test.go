package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/contextcache/hybridmemory/collaborators"
	"github.com/contextcache/hybridmemory/config"
	"github.com/contextcache/hybridmemory/tiers/longterm"
	"github.com/contextcache/hybridmemory/types"
)

func TestRetrieveEmptyQueryYieldsEmptyResponseNotError(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	resp, err := o.Retrieve(context.Background(), types.Request{Query: "", MaxResults: 10, Strategy: types.StrategyHybrid})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.Items) != 0 {
		t.Fatalf("expected empty response, got %d items", len(resp.Items))
	}
}

func TestRetrieveMaxResultsZeroYieldsEmptyResponse(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	ctx := context.Background()
	_, _, _ = o.Store(ctx, "python is great for data science", nil, "", "")
	resp, err := o.Retrieve(ctx, types.Request{Query: "python", MaxResults: 0, Strategy: types.StrategyHybrid})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.Items) != 0 {
		t.Fatalf("expected empty response for max_results=0, got %d items", len(resp.Items))
	}
}

func TestRetrieveRecencyReturnsImmediateItemsNewestFirst(t *testing.T) {
	ctx := context.Background()
	clock := collaborators.NewFakeClock(time.Unix(0, 0))
	vectors := collaborators.NewInMemoryVectorStore(nil)
	embedder := collaborators.NewHashEmbedder(16)
	store := longterm.NewMemoryRecordStore()
	o := New(config.Default(), clock, vectors, embedder, store)

	for _, content := range []string{"a", "b", "c"} {
		if _, _, err := o.Store(ctx, content, nil, "", ""); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		clock.Advance(time.Second)
	}

	resp, err := o.Retrieve(ctx, types.Request{Strategy: types.StrategyRecency, MaxResults: 10})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.Items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(resp.Items))
	}
	if resp.Items[0].Item.Content != "c" || resp.Items[2].Item.Content != "a" {
		t.Fatalf("expected newest-first ordering, got %+v", resp.Items)
	}
}

func TestRetrieveKeywordFindsLongTermItem(t *testing.T) {
	ctx := context.Background()
	o, _ := newTestOrchestrator(t)
	metadata := types.Metadata{types.MetaType: string(types.KindFact)}
	id, _, err := o.Store(ctx, "the capital of France is Paris", metadata, "", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	resp, err := o.Retrieve(ctx, types.Request{Query: "capital France Paris", Strategy: types.StrategyKeyword, MaxResults: 5})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	found := false
	for _, it := range resp.Items {
		if it.Item.ID == id {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected the stored fact to be retrievable via keyword strategy, got %+v", resp.Items)
	}
}

func TestRetrieveTokenBudgetAlwaysIncludesAtLeastOneItem(t *testing.T) {
	ctx := context.Background()
	o, _ := newTestOrchestrator(t)
	longContent := ""
	for i := 0; i < 2000; i++ {
		longContent += "x"
	}
	if _, _, err := o.Store(ctx, longContent+" keyword", nil, "", ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	resp, err := o.Retrieve(ctx, types.Request{Query: "keyword", Strategy: types.StrategyKeyword, MaxResults: 5, MaxTokens: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.Items) != 1 {
		t.Fatalf("expected exactly one item despite exceeding the token budget, got %d", len(resp.Items))
	}
}

func TestRetrieveCacheHitReturnsDeepCopy(t *testing.T) {
	ctx := context.Background()
	o, _ := newTestOrchestrator(t)
	_, _, _ = o.Store(ctx, "python is a popular language", nil, "", "")

	req := types.Request{Query: "python", Strategy: types.StrategyKeyword, MaxResults: 5}
	first, err := o.Retrieve(ctx, req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.CacheHit {
		t.Fatalf("expected first retrieve to be a cache miss")
	}

	second, err := o.Retrieve(ctx, req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !second.CacheHit {
		t.Fatalf("expected second identical retrieve to be a cache hit")
	}
	if len(second.Items) > 0 {
		second.Items[0].Item.Content = "mutated"
	}

	third, err := o.Retrieve(ctx, req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(third.Items) > 0 && third.Items[0].Item.Content == "mutated" {
		t.Fatalf("expected cache entries to be immune to caller mutation")
	}
}

// TestConcurrentStoreAndRetrieve is scenario S6: one worker stores items
// tagged with a shared conversation id while another concurrently retrieves
// against that conversation. No retrieve may see a partially initialized
// item, every id it returns must correspond to a completed store, and the
// session tier's per-conversation size must never exceed its capacity.
func TestConcurrentStoreAndRetrieve(t *testing.T) {
	ctx := context.Background()
	cfg := config.Default()
	clock := collaborators.SystemClock{}
	vectors := collaborators.NewInMemoryVectorStore(nil)
	embedder := collaborators.NewHashEmbedder(16)
	store := longterm.NewMemoryRecordStore()
	o := New(cfg, clock, vectors, embedder, store)

	const conversationID = "c"
	const n = 200

	completed := make(map[string]bool)
	var completedMu sync.Mutex
	var unmatched []string

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			id, _, err := o.Store(ctx, fmt.Sprintf("test item number %d", i), nil, conversationID, "")
			if err != nil {
				t.Errorf("unexpected store error: %v", err)
				return
			}
			completedMu.Lock()
			completed[id] = true
			completedMu.Unlock()

			if o.session.Len(conversationID) > cfg.SessionCapacityPerConv {
				t.Errorf("session size %d exceeded capacity %d", o.session.Len(conversationID), cfg.SessionCapacityPerConv)
				return
			}
		}
	}()

	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			resp, err := o.Retrieve(ctx, types.Request{
				Query:          "test",
				Strategy:       types.StrategyRelevance,
				ConversationID: conversationID,
				MaxResults:     50,
			})
			if err != nil {
				continue
			}
			for _, it := range resp.Items {
				if it.Item == nil || it.Item.ID == "" || it.Item.Content == "" {
					t.Errorf("retrieve returned a partially initialized item: %+v", it)
				}
				completedMu.Lock()
				ok := completed[it.Item.ID]
				completedMu.Unlock()
				if !ok {
					// A store is visible to retrieve before Store returns and
					// its id is recorded, so unmatched ids are checked again
					// once every store has completed.
					unmatched = append(unmatched, it.Item.ID)
				}
			}
		}
	}()

	wg.Wait()

	for _, id := range unmatched {
		if !completed[id] {
			t.Fatalf("retrieve returned id %q that no completed store produced", id)
		}
	}
	if o.session.Len(conversationID) > cfg.SessionCapacityPerConv {
		t.Fatalf("session size %d exceeded capacity %d after completion", o.session.Len(conversationID), cfg.SessionCapacityPerConv)
	}
}
