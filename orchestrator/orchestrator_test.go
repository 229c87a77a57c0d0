package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/contextcache/hybridmemory/collaborators"
	"github.com/contextcache/hybridmemory/config"
	"github.com/contextcache/hybridmemory/ctxerr"
	"github.com/contextcache/hybridmemory/tiers/longterm"
	"github.com/contextcache/hybridmemory/types"
)

func newTestOrchestrator(t *testing.T) (*Orchestrator, *collaborators.FakeClock) {
	t.Helper()
	clock := collaborators.NewFakeClock(time.Unix(0, 0))
	vectors := collaborators.NewInMemoryVectorStore(nil)
	embedder := collaborators.NewHashEmbedder(16)
	store := longterm.NewMemoryRecordStore()
	return New(config.Default(), clock, vectors, embedder, store), clock
}

func TestStoreRejectsEmptyContent(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	_, _, err := o.Store(context.Background(), "", nil, "", "")
	if !ctxerr.Is(err, ctxerr.KindInvalidInput) {
		t.Fatalf("expected invalid_input, got %v", err)
	}
}

func TestStoreAlwaysAdmitsImmediate(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	id, tier, err := o.Store(context.Background(), "a plain note with no special metadata", nil, "", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tier != types.TierImmediate {
		t.Fatalf("expected immediate admission, got %v", tier)
	}
	if _, ok := o.immediate.Get(id); !ok {
		t.Fatalf("expected item to be retrievable from immediate")
	}
}

func TestStoreWithConversationIDAdmitsSession(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	id, tier, err := o.Store(context.Background(), "a chat turn", nil, "conv-1", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tier != types.TierSession {
		t.Fatalf("expected session admission, got %v", tier)
	}
	if _, ok := o.session.Get("conv-1", id); !ok {
		t.Fatalf("expected item to be retrievable from session")
	}
}

func TestStoreHighPriorityAdmitsLongTerm(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	metadata := types.Metadata{types.MetaImportance: "critical"}
	id, tier, err := o.Store(context.Background(), "a critical fact about the user", metadata, "", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tier != types.TierLongTerm {
		t.Fatalf("expected long_term admission, got %v", tier)
	}
	if _, ok, _ := o.longterm.Get(context.Background(), id); !ok {
		t.Fatalf("expected item to be retrievable from long-term")
	}
}

func TestStoreFactKindAdmitsLongTermRegardlessOfPriority(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	metadata := types.Metadata{types.MetaType: string(types.KindFact)}
	_, tier, err := o.Store(context.Background(), "the user's timezone is UTC-5", metadata, "", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tier != types.TierLongTerm {
		t.Fatalf("expected long_term admission for a fact, got %v", tier)
	}
}

func TestStoreHonorsExplicitTierHint(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	metadata := types.Metadata{types.MetaImportance: "critical"}
	_, tier, err := o.Store(context.Background(), "would normally be long-term", metadata, "", types.TierImmediate)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tier != types.TierImmediate {
		t.Fatalf("expected tier_hint to override routing, got %v", tier)
	}
}

func TestDeleteRemovesFromEveryTier(t *testing.T) {
	ctx := context.Background()
	o, _ := newTestOrchestrator(t)
	metadata := types.Metadata{types.MetaImportance: "critical"}
	id, _, err := o.Store(ctx, "a critical fact", metadata, "conv-1", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	found, err := o.Delete(ctx, id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !found {
		t.Fatalf("expected delete to report found")
	}
	if _, ok := o.immediate.Get(id); ok {
		t.Fatalf("expected item gone from immediate")
	}
	if _, ok := o.session.Get("conv-1", id); ok {
		t.Fatalf("expected item gone from session")
	}
	if _, ok, _ := o.longterm.Get(ctx, id); ok {
		t.Fatalf("expected item gone from long-term")
	}
}

func TestDeleteOfUnknownIDReportsNotFound(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	found, err := o.Delete(context.Background(), "never-stored")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found {
		t.Fatalf("expected not-found for an id that was never stored")
	}
}

func TestClearImmediateOnlyLeavesSessionIntact(t *testing.T) {
	ctx := context.Background()
	o, _ := newTestOrchestrator(t)
	_, _, _ = o.Store(ctx, "turn one", nil, "conv-1", "")

	n, err := o.Clear(Scope{Kind: ScopeImmediate})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 item cleared, got %d", n)
	}
	if o.immediate.Len() != 0 {
		t.Fatalf("expected immediate to be empty")
	}
	if o.session.Len("conv-1") != 1 {
		t.Fatalf("expected session to be untouched")
	}
}

func TestClearAllEmptiesImmediateAndSession(t *testing.T) {
	ctx := context.Background()
	o, _ := newTestOrchestrator(t)
	_, _, _ = o.Store(ctx, "turn one", nil, "conv-1", "")
	_, _, _ = o.Store(ctx, "turn two", nil, "conv-2", "")

	n, err := o.Clear(Scope{Kind: ScopeAll})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 items cleared, got %d", n)
	}
	if o.immediate.Len() != 0 || o.session.Len("conv-1") != 0 || o.session.Len("conv-2") != 0 {
		t.Fatalf("expected immediate and every session conversation to be empty")
	}
}

func TestImmediateTierSizeNeverExceedsCapacity(t *testing.T) {
	ctx := context.Background()
	cfg := config.Default()
	clock := collaborators.NewFakeClock(time.Unix(0, 0))
	vectors := collaborators.NewInMemoryVectorStore(nil)
	embedder := collaborators.NewHashEmbedder(16)
	store := longterm.NewMemoryRecordStore()
	o := New(cfg, clock, vectors, embedder, store)

	for i := 0; i < 50; i++ {
		if _, _, err := o.Store(ctx, "a short immediate item", nil, "", ""); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if o.immediate.Len() > cfg.ImmediateCapacity {
			t.Fatalf("immediate size %d exceeded capacity %d", o.immediate.Len(), cfg.ImmediateCapacity)
		}
	}
}

func TestStatsReflectsActivity(t *testing.T) {
	ctx := context.Background()
	o, _ := newTestOrchestrator(t)
	if _, _, err := o.Store(ctx, "an item", nil, "", ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	stats, err := o.Stats(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.Stores != 1 {
		t.Fatalf("expected 1 store recorded, got %d", stats.Stores)
	}
	if stats.ImmediateItems != 1 {
		t.Fatalf("expected 1 immediate item, got %d", stats.ImmediateItems)
	}
}
