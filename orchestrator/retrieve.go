package orchestrator

import (
	"context"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/contextcache/hybridmemory/ctxerr"
	"github.com/contextcache/hybridmemory/fusion"
	"github.com/contextcache/hybridmemory/keyword"
	"github.com/contextcache/hybridmemory/types"
)

// Retrieve implements spec §4.7's retrieval fan-out: cache check, concurrent
// per-source queries, Hybrid Fusion merge (or a recency-only bypass),
// token-budget truncation, and promotion side effects.
func (o *Orchestrator) Retrieve(ctx context.Context, req types.Request) (*types.Response, error) {
	if req.MaxResults < 0 {
		return nil, ctxerr.Invalid("orchestrator.Retrieve", "max_results must be non-negative")
	}
	// Boundary behaviors (spec §8): an empty query against anything but a
	// recency retrieval, or an explicit max_results=0, always yields an
	// empty response rather than an error.
	if req.MaxResults == 0 || (req.Query == "" && req.Strategy != types.StrategyRecency) {
		return &types.Response{PerTierCounts: map[types.Tier]int{}}, nil
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = o.cfg.RetrieveMaxTokens
	}

	now := o.clock.Now()
	key := cacheKey(req)
	if cached, ok := o.cache.get(key, now); ok {
		o.metrics.cacheHits.Add(1)
		cached.CacheHit = true
		return cached, nil
	}
	o.metrics.cacheMisses.Add(1)

	filter := buildFilter(req)

	var resp *types.Response
	var err error
	if req.Strategy == types.StrategyRecency {
		resp, err = o.retrieveRecency(ctx, req, filter, maxTokens)
	} else {
		resp, err = o.retrieveFused(ctx, req, filter, maxTokens)
	}
	if err != nil {
		return nil, err
	}

	if resp.Degraded {
		o.metrics.degraded.Add(1)
	}
	o.cache.put(key, resp, now)
	return resp, nil
}

// buildFilter turns a Request's kinds/since/until into the filter predicate
// every tier's scan/search operations accept.
func buildFilter(req types.Request) func(*types.ContextItem) bool {
	return func(item *types.ContextItem) bool {
		if len(req.Kinds) > 0 {
			match := false
			for _, k := range req.Kinds {
				if item.Kind == k {
					match = true
					break
				}
			}
			if !match {
				return false
			}
		}
		if req.Since != nil && item.CreatedAt.Before(*req.Since) {
			return false
		}
		if req.Until != nil && item.CreatedAt.After(*req.Until) {
			return false
		}
		return true
	}
}

// retrieveRecency bypasses Hybrid Fusion entirely, returning Immediate and
// Session items sorted by last_accessed_at desc (spec §4.7 step 3's
// strategy==recency exception).
func (o *Orchestrator) retrieveRecency(ctx context.Context, req types.Request, filter func(*types.ContextItem) bool, maxTokens int) (*types.Response, error) {
	var all []types.ScoredItem
	for _, it := range o.immediate.ByRecency(filter) {
		all = append(all, types.ScoredItem{Item: it, SourceTier: types.TierImmediate})
	}
	if req.ConversationID != "" {
		for _, it := range o.session.ByRecency(req.ConversationID, filter) {
			all = append(all, types.ScoredItem{Item: it, SourceTier: types.TierSession})
		}
	}
	sort.SliceStable(all, func(i, j int) bool {
		if !all[i].Item.LastAccessedAt.Equal(all[j].Item.LastAccessedAt) {
			return all[i].Item.LastAccessedAt.After(all[j].Item.LastAccessedAt)
		}
		return all[i].Item.ID < all[j].Item.ID
	})
	if len(all) > req.MaxResults {
		all = all[:req.MaxResults]
	}
	all = enforceTokenBudget(all, maxTokens)
	all = o.applyPromotions(ctx, all, req.ConversationID)

	return &types.Response{
		Items:          all,
		TotalRetrieved: len(all),
		PerTierCounts:  perTierCounts(all),
	}, nil
}

// fanoutResult collects each source's raw candidates under a single mutex,
// plus a count of sources that errored.
type fanoutResult struct {
	mu sync.Mutex

	immediate []types.ScoredItem
	session   []types.ScoredItem
	keyword   []fusion.Candidate
	semantic  []fusion.Candidate
	graph     []fusion.Candidate

	attempted int
	failures  int
}

// retrieveFused runs the concurrent per-source fan-out and merges results
// through Hybrid Fusion (spec §4.7 steps 2-3).
func (o *Orchestrator) retrieveFused(ctx context.Context, req types.Request, filter func(*types.ContextItem) bool, maxTokens int) (*types.Response, error) {
	deadline := time.Duration(o.cfg.RetrieveDeadlineMs) * time.Millisecond
	fctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	wantImmediateSession := req.Strategy != types.StrategySemantic
	wantKeyword := req.Strategy == "" || req.Strategy == types.StrategyKeyword || req.Strategy == types.StrategyHybrid || req.Strategy == types.StrategyRelevance
	wantSemantic := req.Strategy == types.StrategySemantic || req.Strategy == types.StrategyHybrid
	wantGraph := req.Strategy == types.StrategyGraph || req.Strategy == types.StrategyHybrid

	queryTerms := keyword.TermSet(req.Query)
	var fr fanoutResult
	g, gctx := errgroup.WithContext(fctx)

	if wantImmediateSession {
		fr.attempted++
		g.Go(func() error {
			items := o.immediate.Search(queryTerms, filter)
			fr.mu.Lock()
			fr.immediate = items
			fr.mu.Unlock()
			return nil
		})
		if req.ConversationID != "" {
			fr.attempted++
			g.Go(func() error {
				items := o.session.Search(req.ConversationID, req.Query, filter)
				fr.mu.Lock()
				fr.session = items
				fr.mu.Unlock()
				return nil
			})
		}
	}

	if wantKeyword {
		fr.attempted++
		g.Go(func() error {
			results := o.index.Search(req.Query, req.MaxResults*4, nil)
			cands := make([]fusion.Candidate, 0, len(results))
			for _, r := range results {
				cands = append(cands, fusion.Candidate{ID: r.DocID, Score: r.Score})
			}
			fr.mu.Lock()
			fr.keyword = cands
			fr.mu.Unlock()
			return nil
		})
	}

	if wantSemantic && o.embedder != nil && o.vectors != nil {
		fr.attempted++
		g.Go(func() error {
			vectors, err := o.embedder.Embed(gctx, []string{req.Query})
			if err != nil {
				o.logSubqueryFailure("semantic", err)
				fr.mu.Lock()
				fr.failures++
				fr.mu.Unlock()
				return nil
			}
			matches, err := o.vectors.Search(gctx, vectors[0], req.MaxResults*4, nil)
			if err != nil {
				o.logSubqueryFailure("semantic", err)
				fr.mu.Lock()
				fr.failures++
				fr.mu.Unlock()
				return nil
			}
			cands := make([]fusion.Candidate, 0, len(matches))
			for _, m := range matches {
				cands = append(cands, fusion.Candidate{ID: m.ID, Score: m.Similarity})
			}
			fr.mu.Lock()
			fr.semantic = cands
			fr.mu.Unlock()
			return nil
		})
	}

	if wantGraph && o.graph != nil {
		fr.attempted++
		g.Go(func() error {
			matches, err := o.graph.Search(gctx, req.Query, 2)
			if err != nil {
				o.logSubqueryFailure("graph", err)
				fr.mu.Lock()
				fr.failures++
				fr.mu.Unlock()
				return nil
			}
			cands := make([]fusion.Candidate, 0, len(matches))
			for _, m := range matches {
				cands = append(cands, fusion.Candidate{ID: m.ID, Score: m.Score})
			}
			fr.mu.Lock()
			fr.graph = cands
			fr.mu.Unlock()
			return nil
		})
	}

	_ = g.Wait() // sub-errors never propagate here: they're logged + counted above

	fr.mu.Lock()
	collected := len(fr.immediate) + len(fr.session) + len(fr.keyword) + len(fr.semantic) + len(fr.graph)
	failures := fr.failures
	attempted := fr.attempted
	fr.mu.Unlock()

	if fctx.Err() != nil && collected == 0 {
		return nil, ctxerr.New("orchestrator.Retrieve", ctxerr.KindDeadlineExceeded, fctx.Err())
	}

	immMap := scoredItemsByID(fr.immediate)
	sessMap := scoredItemsByID(fr.session)

	weights := o.cfg.FusionWeights()
	lists := []namedList{
		{name: "keyword", weight: weights.Keyword, candidates: resolveParents(o.longterm, fr.keyword)},
		{name: "semantic", weight: weights.Semantic, candidates: resolveParents(o.longterm, fr.semantic)},
		{name: "graph", weight: weights.Graph, candidates: resolveParents(o.longterm, fr.graph)},
		{name: "recency", weight: weights.Keyword / 2, candidates: toCandidates(fr.immediate)},
		{name: "recency", weight: weights.Keyword / 2, candidates: toCandidates(fr.session)},
	}
	combined := combine(lists, req.MinScore, req.MaxResults)

	items := make([]types.ScoredItem, 0, len(combined))
	for _, c := range combined {
		item, tier, ok := o.resolveItem(ctx, c.id, immMap, sessMap)
		if !ok {
			continue
		}
		items = append(items, types.ScoredItem{
			Item:            item,
			Score:           c.score,
			SourceTier:      tier,
			ComponentScores: c.components,
		})
	}
	if len(items) > req.MaxResults {
		items = items[:req.MaxResults]
	}
	items = enforceTokenBudget(items, maxTokens)
	items = o.applyPromotions(ctx, items, req.ConversationID)

	degraded := len(items) == 0 && failures > 0 && failures == attempted

	return &types.Response{
		Items:          items,
		TotalRetrieved: len(items),
		Degraded:       degraded,
		PerTierCounts:  perTierCounts(items),
	}, nil
}

func (o *Orchestrator) logSubqueryFailure(source string, err error) {
	o.logger.Warn().Err(err).Str("source", source).Msg("retrieval subquery failed")
}

// resolveItem finds the ContextItem behind a fused id, preferring the
// in-memory Immediate/Session copies (already touched this request) before
// falling back to the Long-Term record store.
func (o *Orchestrator) resolveItem(ctx context.Context, id string, immMap, sessMap map[string]*types.ContextItem) (*types.ContextItem, types.Tier, bool) {
	if it, ok := immMap[id]; ok {
		return it, types.TierImmediate, true
	}
	if it, ok := sessMap[id]; ok {
		return it, types.TierSession, true
	}
	if it, ok, _ := o.longterm.Get(ctx, id); ok {
		return it, types.TierLongTerm, true
	}
	return nil, "", false
}

func scoredItemsByID(items []types.ScoredItem) map[string]*types.ContextItem {
	out := make(map[string]*types.ContextItem, len(items))
	for _, it := range items {
		out[it.Item.ID] = it.Item
	}
	return out
}

func toCandidates(items []types.ScoredItem) []fusion.Candidate {
	out := make([]fusion.Candidate, len(items))
	for i, it := range items {
		out[i] = fusion.Candidate{ID: it.Item.ID, Score: it.Score}
	}
	return out
}

// resolveParents maps chunk-level candidate ids from the Keyword Index or
// vector store back to their owning ContextItem id, deduplicating by
// keeping the maximum score per parent (spec §4.5 owns the id → chunk
// mapping; Hybrid Fusion operates on whole-item ids).
func resolveParents(lt parentResolver, cands []fusion.Candidate) []fusion.Candidate {
	if len(cands) == 0 {
		return nil
	}
	best := make(map[string]float64, len(cands))
	order := make([]string, 0, len(cands))
	for _, c := range cands {
		id := c.ID
		if parent, ok := lt.ParentOf(c.ID); ok {
			id = parent
		}
		cur, exists := best[id]
		if !exists {
			order = append(order, id)
		}
		if !exists || c.Score > cur {
			best[id] = c.Score
		}
	}
	out := make([]fusion.Candidate, len(order))
	for i, id := range order {
		out[i] = fusion.Candidate{ID: id, Score: best[id]}
	}
	return out
}

// parentResolver is the slice of *longterm.Tier retrieveFused needs,
// narrowed for testability.
type parentResolver interface {
	ParentOf(chunkID string) (string, bool)
}

// enforceTokenBudget walks items accumulating token_estimate, stopping
// before the sum would exceed maxTokens; the first item is always kept even
// if it alone exceeds the budget (spec §4.7 step 4's explicit exception).
func enforceTokenBudget(items []types.ScoredItem, maxTokens int) []types.ScoredItem {
	if len(items) == 0 {
		return items
	}
	out := make([]types.ScoredItem, 0, len(items))
	sum := 0
	for i, it := range items {
		est := it.Item.TokenEstimate
		if i == 0 {
			out = append(out, it)
			sum = est
			continue
		}
		if sum+est > maxTokens {
			break
		}
		out = append(out, it)
		sum += est
	}
	return out
}

func perTierCounts(items []types.ScoredItem) map[types.Tier]int {
	counts := make(map[types.Tier]int)
	for _, it := range items {
		counts[it.SourceTier]++
	}
	return counts
}

// applyPromotions bumps access stats for Immediate/Session-sourced items
// and promotes any that cross a threshold, per spec §4.7 step 5 / §3's
// copy-on-promote rule. Tier locks are touched in the fixed Immediate →
// Session → Long-Term order (spec §5).
func (o *Orchestrator) applyPromotions(ctx context.Context, items []types.ScoredItem, conversationID string) []types.ScoredItem {
	out := make([]types.ScoredItem, len(items))
	copy(out, items)

	for i, si := range out {
		switch si.SourceTier {
		case types.TierImmediate:
			updated, ok := o.immediate.Get(si.Item.ID)
			if !ok {
				continue
			}
			out[i].Item = updated
			if updated.AccessCount == o.cfg.PromotionImmediateToSessionAccess && conversationID != "" {
				o.session.Add(updated, conversationID)
				o.metrics.promotions.Add(1)
			}
		case types.TierSession:
			if !o.session.Touch(conversationID, si.Item.ID) {
				continue
			}
			updated, ok := o.session.Get(conversationID, si.Item.ID)
			if !ok {
				continue
			}
			out[i].Item = updated
			if updated.AccessCount == o.cfg.PromotionSessionToLongtermAccess && updated.Priority.AtLeast(types.PriorityHigh) {
				if err := o.longterm.Add(ctx, updated); err == nil {
					o.metrics.promotions.Add(1)
				}
			}
		}
	}
	return out
}
