// Package session implements the Session Tier (spec §4.4): a per-
// conversation LRU store with importance-weighted eviction, jaccard+
// recency+priority scoring, and plain-concatenation consolidation.
package session

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/contextcache/hybridmemory/collaborators"
	"github.com/contextcache/hybridmemory/keyword"
	"github.com/contextcache/hybridmemory/types"
)

// State is the per-entry promotion state machine (spec §4.4).
type State string

const (
	StateFresh State = "fresh"
	StateWarm  State = "warm"
	StateHot   State = "hot"
)

// EntryState derives the current state of item.
func EntryState(item *types.ContextItem) State {
	if item.AccessCount >= 10 && item.Priority.AtLeast(types.PriorityHigh) {
		return StateHot
	}
	if item.AccessCount >= 3 {
		return StateWarm
	}
	return StateFresh
}

// Options configures a Tier (spec §6: session.capacity_per_conv,
// session.consolidation_threshold, session.half_life_seconds).
type Options struct {
	CapacityPerConv        int
	ConsolidationThreshold int
	HalfLife               time.Duration
}

// DefaultOptions returns the spec §6 defaults.
func DefaultOptions() Options {
	return Options{
		CapacityPerConv:        50,
		ConsolidationThreshold: 20,
		HalfLife:               1800 * time.Second,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.CapacityPerConv <= 0 {
		o.CapacityPerConv = d.CapacityPerConv
	}
	if o.ConsolidationThreshold <= 0 {
		o.ConsolidationThreshold = d.ConsolidationThreshold
	}
	if o.HalfLife <= 0 {
		o.HalfLife = d.HalfLife
	}
	return o
}

// conversation is one per-conversation LRU list, front = most recently used.
type conversation struct {
	mu    sync.RWMutex
	items []*types.ContextItem
}

// Tier is the Session Tier: one lock per conversation so cross-conversation
// traffic proceeds in parallel; global operations acquire every
// conversation's lock in sorted conversation_id order.
type Tier struct {
	registryMu sync.RWMutex
	convs      map[string]*conversation

	clock collaborators.Clock
	opts  Options
}

// New constructs an empty Tier.
func New(clock collaborators.Clock, opts Options) *Tier {
	return &Tier{
		convs: make(map[string]*conversation),
		clock: clock,
		opts:  opts.withDefaults(),
	}
}

func (t *Tier) conversationFor(id string) *conversation {
	t.registryMu.RLock()
	c, ok := t.convs[id]
	t.registryMu.RUnlock()
	if ok {
		return c
	}

	t.registryMu.Lock()
	defer t.registryMu.Unlock()
	if c, ok = t.convs[id]; ok {
		return c
	}
	c = &conversation{}
	t.convs[id] = c
	return c
}

// Add inserts or moves item to the front of conversationID's LRU list,
// evicting the minimum-weight item on overflow (spec §4.4 eviction rule).
func (t *Tier) Add(item *types.ContextItem, conversationID string) {
	c := t.conversationFor(conversationID)
	c.mu.Lock()
	defer c.mu.Unlock()

	clone := item.Clone()
	c.items = removeByID(c.items, clone.ID)
	c.items = append([]*types.ContextItem{clone}, c.items...)

	if len(c.items) > t.opts.CapacityPerConv {
		t.evictOneLocked(c)
	}
}

// evictOneLocked removes the globally minimum-weight item. Caller holds c.mu.
func (t *Tier) evictOneLocked(c *conversation) {
	now := t.clock.Now()
	worst := -1
	var worstWeight float64
	for i, it := range c.items {
		w := t.weight(it, now)
		if worst == -1 ||
			w < worstWeight ||
			(w == worstWeight && isEvictionTieWinner(it, c.items[worst])) {
			worst = i
			worstWeight = w
		}
	}
	if worst >= 0 {
		c.items = append(c.items[:worst], c.items[worst+1:]...)
	}
}

// isEvictionTieWinner reports whether candidate should replace current as
// the eviction target under a weight tie: oldest last_accessed_at first,
// then smallest id.
func isEvictionTieWinner(candidate, current *types.ContextItem) bool {
	if !candidate.LastAccessedAt.Equal(current.LastAccessedAt) {
		return candidate.LastAccessedAt.Before(current.LastAccessedAt)
	}
	return candidate.ID < current.ID
}

// weight implements spec §4.4's eviction weight formula.
func (t *Tier) weight(item *types.ContextItem, now time.Time) float64 {
	return item.Priority.Weight() * (1 + math.Log1p(float64(item.AccessCount))) * t.recencyDecay(item, now)
}

func (t *Tier) recencyDecay(item *types.ContextItem, now time.Time) float64 {
	delta := now.Sub(item.LastAccessedAt).Seconds()
	if delta < 0 {
		delta = 0
	}
	return math.Exp(-delta / (2 * t.opts.HalfLife.Seconds()))
}

// Touch bumps id to the front of conversationID's list, incrementing its
// access_count and last_accessed_at.
func (t *Tier) Touch(conversationID, id string) bool {
	c := t.conversationFor(conversationID)
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, it := range c.items {
		if it.ID == id {
			it.AccessCount++
			it.LastAccessedAt = t.clock.Now()
			c.items = append(c.items[:i], c.items[i+1:]...)
			c.items = append([]*types.ContextItem{it}, c.items...)
			return true
		}
	}
	return false
}

// Get returns a clone of id within conversationID, without touching it.
func (t *Tier) Get(conversationID, id string) (*types.ContextItem, bool) {
	c := t.conversationFor(conversationID)
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, it := range c.items {
		if it.ID == id {
			return it.Clone(), true
		}
	}
	return nil, false
}

// Len reports conversationID's current item count.
func (t *Tier) Len(conversationID string) int {
	c := t.conversationFor(conversationID)
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Search scores every item in conversationID passing filter against query,
// per spec §4.4's relevance formula.
func (t *Tier) Search(conversationID, query string, filter func(*types.ContextItem) bool) []types.ScoredItem {
	c := t.conversationFor(conversationID)
	c.mu.RLock()
	defer c.mu.RUnlock()

	now := t.clock.Now()
	queryTerms := keyword.TermSet(query)

	out := make([]types.ScoredItem, 0, len(c.items))
	for _, it := range c.items {
		if filter != nil && !filter(it) {
			continue
		}
		score := t.relevance(it, now, queryTerms)
		out = append(out, types.ScoredItem{
			Item:       it.Clone(),
			Score:      score,
			SourceTier: types.TierSession,
		})
	}
	return out
}

// ByRecency returns conversationID's items passing filter sorted by
// last_accessed_at desc, ties broken by id asc — used by strategy=recency
// retrieval, which bypasses fusion entirely (spec §4.7 step 3).
func (t *Tier) ByRecency(conversationID string, filter func(*types.ContextItem) bool) []*types.ContextItem {
	c := t.conversationFor(conversationID)
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]*types.ContextItem, 0, len(c.items))
	for _, it := range c.items {
		if filter == nil || filter(it) {
			out = append(out, it.Clone())
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].LastAccessedAt.Equal(out[j].LastAccessedAt) {
			return out[i].LastAccessedAt.After(out[j].LastAccessedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// relevance implements spec §4.4's scoring formula.
func (t *Tier) relevance(item *types.ContextItem, now time.Time, queryTerms map[string]bool) float64 {
	jac := keyword.Jaccard(queryTerms, keyword.TermSet(item.Content))
	return 0.5*jac + 0.3*t.recencyDecay(item, now) + 0.2*item.Priority.Weight()/1.5
}

// Delete removes id from conversationID, reporting whether it was present.
func (t *Tier) Delete(conversationID, id string) bool {
	c := t.conversationFor(conversationID)
	c.mu.Lock()
	defer c.mu.Unlock()
	before := len(c.items)
	c.items = removeByID(c.items, id)
	return len(c.items) != before
}

// Clear removes every item from conversationID, or from every conversation
// when conversationID is empty, acquiring per-conversation locks in sorted
// order per spec §5's deadlock-avoidance rule.
func (t *Tier) Clear(conversationID string) int {
	if conversationID != "" {
		c := t.conversationFor(conversationID)
		c.mu.Lock()
		defer c.mu.Unlock()
		n := len(c.items)
		c.items = nil
		return n
	}

	t.registryMu.RLock()
	ids := make([]string, 0, len(t.convs))
	convs := make([]*conversation, 0, len(t.convs))
	for id, c := range t.convs {
		ids = append(ids, id)
		convs = append(convs, c)
	}
	t.registryMu.RUnlock()

	sort.Sort(byConvID{ids: ids, convs: convs})
	total := 0
	for _, c := range convs {
		c.mu.Lock()
	}
	for _, c := range convs {
		total += len(c.items)
		c.items = nil
	}
	for i := len(convs) - 1; i >= 0; i-- {
		convs[i].mu.Unlock()
	}
	return total
}

// Consolidate folds maximal contiguous runs of kind ∈ {conversation, note}
// into a single synthesized item per run, when conversationID holds at
// least ConsolidationThreshold such items (spec §4.4, §9: plain
// concatenation, no external model on the hot path).
func (t *Tier) Consolidate(conversationID string) int {
	c := t.conversationFor(conversationID)
	c.mu.Lock()
	defer c.mu.Unlock()

	eligible := 0
	for _, it := range c.items {
		if isConsolidationKind(it.Kind) {
			eligible++
		}
	}
	if eligible < t.opts.ConsolidationThreshold {
		return 0
	}

	var out []*types.ContextItem
	folded := 0
	i := 0
	for i < len(c.items) {
		if !isConsolidationKind(c.items[i].Kind) {
			out = append(out, c.items[i])
			i++
			continue
		}
		j := i
		for j < len(c.items) && isConsolidationKind(c.items[j].Kind) {
			j++
		}
		run := c.items[i:j]
		if len(run) < 2 {
			out = append(out, run[0])
		} else {
			out = append(out, t.synthesize(run))
			folded += len(run)
		}
		i = j
	}
	c.items = out
	return folded
}

func isConsolidationKind(k types.Kind) bool {
	return k == types.KindConversation || k == types.KindNote
}

// synthesize builds the folded item for a run: content concatenated with a
// separator, priority the maximum by weight, positioned at the run's
// highest (most-recently-used) slot.
func (t *Tier) synthesize(run []*types.ContextItem) *types.ContextItem {
	var content string
	best := run[0].Priority
	for i, it := range run {
		if i > 0 {
			content += "\n---\n"
		}
		content += it.Content
		if it.Priority.Weight() > best.Weight() {
			best = it.Priority
		}
	}
	return &types.ContextItem{
		ID:             "consolidated-" + uuid.NewString(),
		Content:        content,
		Kind:           run[0].Kind,
		Priority:       best,
		Metadata:       run[0].Metadata,
		CreatedAt:      run[0].CreatedAt,
		LastAccessedAt: t.clock.Now(),
		TokenEstimate:  types.EstimateTokens(content),
		TierHint:       types.TierSession,
	}
}

func removeByID(items []*types.ContextItem, id string) []*types.ContextItem {
	out := items[:0:0]
	for _, it := range items {
		if it.ID != id {
			out = append(out, it)
		}
	}
	return out
}

type byConvID struct {
	ids   []string
	convs []*conversation
}

func (b byConvID) Len() int      { return len(b.ids) }
func (b byConvID) Swap(i, j int) { b.ids[i], b.ids[j] = b.ids[j], b.ids[i]; b.convs[i], b.convs[j] = b.convs[j], b.convs[i] }
func (b byConvID) Less(i, j int) bool { return b.ids[i] < b.ids[j] }
