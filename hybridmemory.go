// Package hybridmemory is the public surface of the multi-tier context
// cache: construct a Memory with New, then call Store/Retrieve/Delete/
// Clear/Stats. Internal concerns (tiers, the keyword index, hybrid fusion,
// collaborators, configuration) live in focused subpackages, the way the
// teacher splits semanticcache's root SemanticCache[K,V] from its
// backends/options/chunker/similarity subpackages.
package hybridmemory

import (
	"context"

	"github.com/contextcache/hybridmemory/collaborators"
	"github.com/contextcache/hybridmemory/config"
	"github.com/contextcache/hybridmemory/orchestrator"
	"github.com/contextcache/hybridmemory/tiers/longterm"
	"github.com/contextcache/hybridmemory/tokenizer"
	"github.com/contextcache/hybridmemory/types"
)

// Re-exported so callers depend only on the root package for everyday use.
type (
	Request         = types.Request
	Response        = types.Response
	ContextItem     = types.ContextItem
	Metadata        = types.Metadata
	Kind            = types.Kind
	Priority        = types.Priority
	Tier            = types.Tier
	Strategy        = types.Strategy
	ScoredItem      = types.ScoredItem
	ComponentScores = types.ComponentScores
	Scope           = orchestrator.Scope
	ScopeKind       = orchestrator.ScopeKind
	Metrics         = orchestrator.Metrics
	Option          = orchestrator.Option
	Options         = config.Options
	ConfigOption    = config.Option
	TokenEstimator  = tokenizer.Estimator
)

const (
	TierImmediate = types.TierImmediate
	TierSession   = types.TierSession
	TierLongTerm  = types.TierLongTerm
	TierAuto      = types.TierAuto

	ScopeImmediate = orchestrator.ScopeImmediate
	ScopeSession   = orchestrator.ScopeSession
	ScopeAll       = orchestrator.ScopeAll

	StrategyRecency   = types.StrategyRecency
	StrategyRelevance = types.StrategyRelevance
	StrategyHybrid    = types.StrategyHybrid
	StrategySemantic  = types.StrategySemantic
	StrategyKeyword   = types.StrategyKeyword
	StrategyGraph     = types.StrategyGraph
)

var (
	WithLogger         = orchestrator.WithLogger
	WithGraphStore     = orchestrator.WithGraphStore
	WithTokenEstimator = orchestrator.WithTokenEstimator
)

// Memory is the multi-tier context cache: Immediate, Session, and
// Long-Term tiers behind one Orchestrator.
type Memory struct {
	*orchestrator.Orchestrator
}

// New constructs a Memory. cfg may be nil (config.Default() applies).
// vectors/embedder/recordStore may be nil for a purely in-memory instance
// suitable for tests: vectors nil defaults to a
// collaborators.InMemoryVectorStore ranked by cfg's comparator, embedder
// nil to a 16-dimension collaborators.HashEmbedder, and recordStore nil to
// an in-memory longterm.MemoryRecordStore.
func New(cfg *config.Options, clock collaborators.Clock, vectors collaborators.VectorStore, embedder collaborators.Embedder, recordStore longterm.RecordStore, opts ...Option) *Memory {
	if cfg == nil {
		cfg = config.Default()
	}
	if recordStore == nil {
		recordStore = longterm.NewMemoryRecordStore()
	}
	if clock == nil {
		clock = collaborators.SystemClock{}
	}
	if vectors == nil {
		comparator, err := cfg.Comparator()
		if err != nil {
			comparator = nil // NewInMemoryVectorStore defaults to cosine
		}
		vectors = collaborators.NewInMemoryVectorStore(comparator)
	}
	if embedder == nil {
		embedder = collaborators.NewHashEmbedder(16)
	}
	return &Memory{Orchestrator: orchestrator.New(cfg, clock, vectors, embedder, recordStore, opts...)}
}

// Store admits content to the tiers spec §4.7's routing rules select.
func (m *Memory) Store(ctx context.Context, content string, metadata Metadata, conversationID string, tierHint Tier) (string, Tier, error) {
	return m.Orchestrator.Store(ctx, content, metadata, conversationID, tierHint)
}

// Retrieve fans out across tiers and collaborators per the request's
// strategy, merges through Hybrid Fusion, and enforces the token budget.
func (m *Memory) Retrieve(ctx context.Context, req Request) (*Response, error) {
	return m.Orchestrator.Retrieve(ctx, req)
}

// Delete removes id from every tier holding it.
func (m *Memory) Delete(ctx context.Context, id string) (bool, error) {
	return m.Orchestrator.Delete(ctx, id)
}

// Clear empties the requested scope.
func (m *Memory) Clear(scope Scope) (int, error) {
	return m.Orchestrator.Clear(scope)
}

// Stats returns a point-in-time metrics snapshot.
func (m *Memory) Stats(ctx context.Context) (Metrics, error) {
	return m.Orchestrator.Stats(ctx)
}
