// Package immediate implements the Immediate Tier (spec §4.3): a
// fixed-capacity FIFO ring with a token-budget cap and a TTL, scored for
// retrieval by exponential recency decay with a weak keyword-overlap bonus.
package immediate

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/contextcache/hybridmemory/collaborators"
	"github.com/contextcache/hybridmemory/keyword"
	"github.com/contextcache/hybridmemory/types"
)

const defaultHalfLife = 1800 * time.Second

// Options configures a Tier's capacity, token cap, and TTL (spec §6:
// immediate.capacity, immediate.ttl_seconds, immediate.token_cap).
type Options struct {
	Capacity int
	TTL      time.Duration
	TokenCap int
	HalfLife time.Duration
}

// DefaultOptions returns the spec §6 defaults.
func DefaultOptions() Options {
	return Options{
		Capacity: 10,
		TTL:      3600 * time.Second,
		TokenCap: 2048,
		HalfLife: defaultHalfLife,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Capacity <= 0 {
		o.Capacity = d.Capacity
	}
	if o.TTL <= 0 {
		o.TTL = d.TTL
	}
	if o.TokenCap <= 0 {
		o.TokenCap = d.TokenCap
	}
	if o.HalfLife <= 0 {
		o.HalfLife = d.HalfLife
	}
	return o
}

// Tier is the Immediate Tier: a single mutex guards the ring; reads take a
// read lock except where they mutate access stats.
type Tier struct {
	mu    sync.RWMutex
	clock collaborators.Clock
	opts  Options

	// items is kept oldest-first; Add appends, eviction removes from the
	// front, so the slice doubles as the FIFO ring.
	items []*types.ContextItem
}

// New constructs an empty Tier.
func New(clock collaborators.Clock, opts Options) *Tier {
	return &Tier{clock: clock, opts: opts.withDefaults()}
}

// Add appends item, lazily evicting expired entries first, then evicting
// from the head until both the capacity and token_cap invariants hold.
func (t *Tier) Add(item *types.ContextItem) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock.Now()
	t.evictExpiredLocked(now)
	t.items = append(t.items, item.Clone())
	t.evictForCapsLocked()
}

// evictExpiredLocked drops items whose age exceeds TTL. Caller holds t.mu.
func (t *Tier) evictExpiredLocked(now time.Time) {
	if len(t.items) == 0 {
		return
	}
	kept := t.items[:0]
	for _, it := range t.items {
		if now.Sub(it.CreatedAt) <= t.opts.TTL {
			kept = append(kept, it)
		}
	}
	t.items = kept
}

// evictForCapsLocked evicts from the head until size and token sum both
// hold. Caller holds t.mu.
func (t *Tier) evictForCapsLocked() {
	for len(t.items) > t.opts.Capacity {
		t.items = t.items[1:]
	}
	for t.sumTokensLocked() > t.opts.TokenCap && len(t.items) > 0 {
		t.items = t.items[1:]
	}
}

func (t *Tier) sumTokensLocked() int {
	sum := 0
	for _, it := range t.items {
		sum += it.TokenEstimate
	}
	return sum
}

// Get returns a clone of the item with id, bumping its access stats, if
// present and unexpired.
func (t *Tier) Get(id string) (*types.ContextItem, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock.Now()
	t.evictExpiredLocked(now)
	for _, it := range t.items {
		if it.ID == id {
			it.AccessCount++
			it.LastAccessedAt = now
			return it.Clone(), true
		}
	}
	return nil, false
}

// Delete removes id, reporting whether it was present.
func (t *Tier) Delete(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i, it := range t.items {
		if it.ID == id {
			t.items = append(t.items[:i], t.items[i+1:]...)
			return true
		}
	}
	return false
}

// Len reports the current item count.
func (t *Tier) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.items)
}

// List returns unexpired items passing filter (nil = no filter),
// newest-first.
func (t *Tier) List(filter func(*types.ContextItem) bool) []*types.ContextItem {
	t.mu.RLock()
	defer t.mu.RUnlock()

	now := t.clock.Now()
	out := make([]*types.ContextItem, 0, len(t.items))
	for i := len(t.items) - 1; i >= 0; i-- {
		it := t.items[i]
		if now.Sub(it.CreatedAt) > t.opts.TTL {
			continue
		}
		if filter != nil && !filter(it) {
			continue
		}
		out = append(out, it.Clone())
	}
	return out
}

// Score computes the spec §4.3 recency score for item against queryTerms:
// exp(-Δt/half_life) plus a weak 0.1·jaccard keyword-overlap bonus.
func (t *Tier) Score(item *types.ContextItem, now time.Time, queryTerms map[string]bool) float64 {
	delta := now.Sub(item.LastAccessedAt).Seconds()
	if delta < 0 {
		delta = 0
	}
	recency := math.Exp(-delta / t.opts.HalfLife.Seconds())
	bonus := 0.1 * keyword.Jaccard(queryTerms, keyword.TermSet(item.Content))
	return recency + bonus
}

// Search scores every unexpired item passing filter against queryTerms and
// returns them sorted by descending score, ties broken by descending
// last_accessed_at then ascending id.
func (t *Tier) Search(queryTerms map[string]bool, filter func(*types.ContextItem) bool) []types.ScoredItem {
	now := t.clock.Now()
	items := t.List(filter)
	out := make([]types.ScoredItem, 0, len(items))
	for _, it := range items {
		out = append(out, types.ScoredItem{Item: it, Score: t.Score(it, now, queryTerms), SourceTier: types.TierImmediate})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if !out[i].Item.LastAccessedAt.Equal(out[j].Item.LastAccessedAt) {
			return out[i].Item.LastAccessedAt.After(out[j].Item.LastAccessedAt)
		}
		return out[i].Item.ID < out[j].Item.ID
	})
	return out
}

// Clear removes every item and reports how many were removed.
func (t *Tier) Clear() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := len(t.items)
	t.items = nil
	return n
}

// ByRecency returns unexpired items passing filter sorted by
// last_accessed_at desc (ties broken by id asc), bypassing scoring
// entirely — used by strategy=recency retrieval (spec §4.7 step 3).
func (t *Tier) ByRecency(filter func(*types.ContextItem) bool) []*types.ContextItem {
	items := t.List(filter)
	sort.SliceStable(items, func(i, j int) bool {
		if !items[i].LastAccessedAt.Equal(items[j].LastAccessedAt) {
			return items[i].LastAccessedAt.After(items[j].LastAccessedAt)
		}
		return items[i].ID < items[j].ID
	})
	return items
}
