package orchestrator

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/contextcache/hybridmemory/types"
)

// responseCacheSize bounds the number of distinct (query, strategy,
// conversation, filters) keys retained; eviction beyond this is plain LRU,
// independent of the TTL expiry below.
const responseCacheSize = 1024

// cacheEntry pairs a cached Response with the time it was stored, so get
// can apply the TTL from spec §6's cache.ttl_seconds on top of LRU's own
// capacity-based eviction (grounded on the teacher's
// backends/inmemory/lru.go, which has no TTL of its own).
type cacheEntry struct {
	response *types.Response
	storedAt time.Time
}

// responseCache is the Orchestrator's retrieve response cache (spec §4.7
// step 1): keyed by (normalized_query, strategy, conversation_id, filters),
// TTL default 300s.
type responseCache struct {
	mu    sync.Mutex
	ttl   time.Duration
	cache *lru.Cache[string, cacheEntry]
}

// newResponseCache constructs a responseCache with the given TTL; ttl <= 0
// disables expiry (entries live until evicted by capacity).
func newResponseCache(ttl time.Duration) *responseCache {
	c, _ := lru.New[string, cacheEntry](responseCacheSize)
	return &responseCache{ttl: ttl, cache: c}
}

// get returns a deep copy of the cached response for key, if present and
// unexpired as of now.
func (rc *responseCache) get(key string, now time.Time) (*types.Response, bool) {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	entry, ok := rc.cache.Get(key)
	if !ok {
		return nil, false
	}
	if rc.ttl > 0 && now.Sub(entry.storedAt) > rc.ttl {
		rc.cache.Remove(key)
		return nil, false
	}
	return deepCopyResponse(entry.response), true
}

// put stores a deep copy of resp under key, stamped with now.
func (rc *responseCache) put(key string, resp *types.Response, now time.Time) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.cache.Add(key, cacheEntry{response: deepCopyResponse(resp), storedAt: now})
}

// cacheKey builds the deterministic composite key spec §4.7 step 1
// requires: (normalized_query, strategy, conversation_id, filters).
func cacheKey(req types.Request) string {
	var b strings.Builder
	b.WriteString(normalizeQuery(req.Query))
	b.WriteByte('\x1f')
	b.WriteString(string(req.Strategy))
	b.WriteByte('\x1f')
	b.WriteString(req.ConversationID)
	b.WriteByte('\x1f')

	kinds := make([]string, len(req.Kinds))
	for i, k := range req.Kinds {
		kinds[i] = string(k)
	}
	sort.Strings(kinds)
	b.WriteString(strings.Join(kinds, ","))
	b.WriteByte('\x1f')
	fmt.Fprintf(&b, "%g", req.MinScore)
	b.WriteByte('\x1f')
	if req.Since != nil {
		b.WriteString(req.Since.UTC().Format(time.RFC3339Nano))
	}
	b.WriteByte('\x1f')
	if req.Until != nil {
		b.WriteString(req.Until.UTC().Format(time.RFC3339Nano))
	}
	return b.String()
}

func normalizeQuery(q string) string {
	return strings.ToLower(strings.TrimSpace(q))
}

// deepCopyResponse clones resp so cache hits never hand out aliased
// ContextItem pointers a caller could mutate.
func deepCopyResponse(r *types.Response) *types.Response {
	if r == nil {
		return nil
	}
	items := make([]types.ScoredItem, len(r.Items))
	for i, it := range r.Items {
		clone := it
		if it.Item != nil {
			clone.Item = it.Item.Clone()
		}
		items[i] = clone
	}
	tierCounts := make(map[types.Tier]int, len(r.PerTierCounts))
	for k, v := range r.PerTierCounts {
		tierCounts[k] = v
	}
	return &types.Response{
		Items:          items,
		TotalRetrieved: r.TotalRetrieved,
		CacheHit:       r.CacheHit,
		Degraded:       r.Degraded,
		PerTierCounts:  tierCounts,
	}
}
