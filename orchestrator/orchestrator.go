// Package orchestrator implements the Orchestrator (spec §4.7): the public
// API that routes writes across tiers, fans out reads, enforces the token
// budget, caches responses, and promotes hot items between tiers.
package orchestrator

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/contextcache/hybridmemory/chunker"
	"github.com/contextcache/hybridmemory/collaborators"
	"github.com/contextcache/hybridmemory/config"
	"github.com/contextcache/hybridmemory/ctxerr"
	"github.com/contextcache/hybridmemory/keyword"
	"github.com/contextcache/hybridmemory/tiers/immediate"
	"github.com/contextcache/hybridmemory/tiers/longterm"
	"github.com/contextcache/hybridmemory/tiers/session"
	"github.com/contextcache/hybridmemory/tokenizer"
	"github.com/contextcache/hybridmemory/types"
)

// ScopeKind names a clear() target (spec §4.7: "clear(scope) — scope ∈
// {immediate, session(conv_id?), all}").
type ScopeKind string

const (
	ScopeImmediate ScopeKind = "immediate"
	ScopeSession   ScopeKind = "session"
	ScopeAll       ScopeKind = "all"
)

// Scope is the input to Clear. ConversationID is only meaningful for
// ScopeSession; empty clears every conversation.
type Scope struct {
	Kind           ScopeKind
	ConversationID string
}

// metrics are the atomic counters behind Stats.
type metrics struct {
	cacheHits   atomic.Int64
	cacheMisses atomic.Int64
	degraded    atomic.Int64
	promotions  atomic.Int64
	stores      atomic.Int64
	deletes     atomic.Int64
}

// Metrics is a point-in-time snapshot returned by Stats.
type Metrics struct {
	CacheHits          int64
	CacheMisses        int64
	DegradedRetrievals int64
	Promotions         int64
	Stores             int64
	Deletes            int64
	ImmediateItems     int
}

// Option configures an Orchestrator at construction time, mirroring the
// teacher's functional-options pattern ([[config.Option]]).
type Option func(*Orchestrator)

// WithLogger attaches a structured logger; the default is zerolog.Nop().
func WithLogger(logger zerolog.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// WithGraphStore attaches the optional graph collaborator (spec §4.5
// "graph_ids?"); omitted, the Long-Term tier never touches a graph store.
func WithGraphStore(graph collaborators.GraphStore) Option {
	return func(o *Orchestrator) { o.graph = graph }
}

// WithTokenEstimator swaps the cheap ⌈chars/4⌉ approximation
// ([[types.EstimateTokens]]) used on every Store for a provider-accurate
// one; omitted, the approximation is used for every item.
func WithTokenEstimator(estimator tokenizer.Estimator) Option {
	return func(o *Orchestrator) { o.tokenEstimator = estimator }
}

// Orchestrator is the system's only public entry point: it owns the three
// tiers, the shared Keyword Index, the collaborators, the response cache,
// and the per-id write-serialization locks (spec §5).
type Orchestrator struct {
	cfg   *config.Options
	clock collaborators.Clock

	index     *keyword.Index
	immediate *immediate.Tier
	session   *session.Tier
	longterm  *longterm.Tier

	vectors  collaborators.VectorStore
	embedder collaborators.Embedder
	graph    collaborators.GraphStore

	cache          *responseCache
	idLocks        *idLockRegistry
	tokenEstimator tokenizer.Estimator

	convMu sync.RWMutex
	idConv map[string]string // item id -> conversation_id, for delete/promotion routing

	logger  zerolog.Logger
	metrics metrics
}

// New constructs an Orchestrator wiring every tier over cfg (nil uses
// config.Default()), clock, and the supplied collaborators. Options are
// applied before the Long-Term tier is constructed, so WithGraphStore takes
// effect.
func New(cfg *config.Options, clock collaborators.Clock, vectors collaborators.VectorStore, embedder collaborators.Embedder, recordStore longterm.RecordStore, opts ...Option) *Orchestrator {
	if cfg == nil {
		cfg = config.Default()
	}
	if clock == nil {
		clock = collaborators.SystemClock{}
	}

	o := &Orchestrator{
		cfg:      cfg,
		clock:    clock,
		vectors:  vectors,
		embedder: embedder,
		logger:   zerolog.Nop(),
		idLocks:  newIDLockRegistry(),
		idConv:   make(map[string]string),
	}
	for _, opt := range opts {
		opt(o)
	}

	o.index = keyword.New(cfg.KeywordK1, cfg.KeywordB)
	o.immediate = immediate.New(clock, cfg.ImmediateOptions())
	o.session = session.New(clock, cfg.SessionOptions())
	o.longterm = longterm.New(chunker.NewChunker(), cfg.ChunkerParams(), o.index, vectors, o.graph, embedder, recordStore)
	o.cache = newResponseCache(time.Duration(cfg.CacheTTLSeconds) * time.Second)
	return o
}

// derivePriority reads the reserved "importance" metadata key (spec §4.7
// step 2), defaulting to normal.
func derivePriority(metadata types.Metadata) types.Priority {
	if metadata != nil {
		if s, ok := metadata.String(types.MetaImportance); ok {
			switch p := types.Priority(s); p {
			case types.PriorityCritical, types.PriorityHigh, types.PriorityNormal, types.PriorityLow, types.PriorityMinimal:
				return p
			}
		}
	}
	return types.PriorityNormal
}

// deriveKind reads the reserved "type" metadata key (spec §4.7 step 2),
// defaulting to note.
func deriveKind(metadata types.Metadata) types.Kind {
	if metadata != nil {
		if s, ok := metadata.String(types.MetaType); ok {
			switch k := types.Kind(s); k {
			case types.KindPreference, types.KindFact, types.KindTask, types.KindNote, types.KindConversation, types.KindDocument, types.KindCode:
				return k
			}
		}
	}
	return types.KindNote
}

// Store admits content to one or more tiers per spec §4.7's routing rules
// and returns the new id plus the highest tier it was actually admitted to.
func (o *Orchestrator) Store(ctx context.Context, content string, metadata types.Metadata, conversationID string, tierHint types.Tier) (string, types.Tier, error) {
	if content == "" {
		return "", "", ctxerr.Invalid("orchestrator.Store", "content must be non-empty")
	}

	id := uuid.NewString()
	lock := o.idLocks.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	now := o.clock.Now()
	priority := derivePriority(metadata)
	kind := deriveKind(metadata)

	item := &types.ContextItem{
		ID:             id,
		Content:        content,
		Kind:           kind,
		Priority:       priority,
		Metadata:       metadata,
		CreatedAt:      now,
		LastAccessedAt: now,
		TokenEstimate:  o.estimateTokens(ctx, content),
		TierHint:       tierHint,
	}
	if conversationID != "" {
		if item.Metadata == nil {
			item.Metadata = types.Metadata{}
		}
		item.Metadata[types.MetaConversationID] = conversationID
	}

	admitted, err := o.admit(ctx, item, conversationID, priority, kind, tierHint)
	if err != nil {
		return "", "", err
	}

	if conversationID != "" {
		o.convMu.Lock()
		o.idConv[id] = conversationID
		o.convMu.Unlock()
	}
	o.metrics.stores.Add(1)
	return id, admitted, nil
}

// estimateTokens prefers the configured provider-accurate Estimator,
// falling back to the cheap chars/4 approximation when none is wired or the
// call fails (a Store must never fail solely because token counting did).
func (o *Orchestrator) estimateTokens(ctx context.Context, content string) int {
	if o.tokenEstimator != nil {
		if n, err := o.tokenEstimator.EstimateTokens(ctx, content); err == nil {
			return n
		}
		o.logger.Warn().Msg("token estimator failed, falling back to chars/4 approximation")
	}
	return types.EstimateTokens(content)
}

// admit implements spec §4.7's tier-routing rules, returning the highest
// tier the item actually landed in.
func (o *Orchestrator) admit(ctx context.Context, item *types.ContextItem, conversationID string, priority types.Priority, kind types.Kind, tierHint types.Tier) (types.Tier, error) {
	if tierHint != "" && tierHint != types.TierAuto {
		switch tierHint {
		case types.TierImmediate:
			o.immediate.Add(item)
		case types.TierSession:
			if conversationID == "" {
				return "", ctxerr.Invalid("orchestrator.Store", "tier_hint=session requires a conversation_id")
			}
			o.session.Add(item, conversationID)
		case types.TierLongTerm:
			if err := o.longterm.Add(ctx, item); err != nil {
				return "", err
			}
		default:
			return "", ctxerr.Invalid("orchestrator.Store", "unrecognized tier_hint")
		}
		return tierHint, nil
	}

	admitted := types.TierImmediate
	o.immediate.Add(item)

	if conversationID != "" {
		o.session.Add(item, conversationID)
		admitted = types.TierSession
	}

	if priority.AtLeast(types.PriorityHigh) || kind == types.KindPreference || kind == types.KindFact {
		if err := o.longterm.Add(ctx, item); err != nil {
			return "", err
		}
		admitted = types.TierLongTerm
	}
	return admitted, nil
}

// Delete removes id from every tier holding it, reporting whether it was
// found anywhere.
func (o *Orchestrator) Delete(ctx context.Context, id string) (bool, error) {
	lock := o.idLocks.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	found := o.immediate.Delete(id)

	o.convMu.RLock()
	conversationID, hasConv := o.idConv[id]
	o.convMu.RUnlock()
	if hasConv && o.session.Delete(conversationID, id) {
		found = true
	}

	if _, ok, err := o.longterm.Get(ctx, id); err != nil {
		return found, err
	} else if ok {
		if err := o.longterm.Delete(ctx, id); err != nil {
			return found, err
		}
		found = true
	}

	o.convMu.Lock()
	delete(o.idConv, id)
	o.convMu.Unlock()

	o.metrics.deletes.Add(1)
	return found, nil
}

// Clear empties the requested scope, acquiring tier locks in the fixed
// Immediate → Session order spec §5 requires.
func (o *Orchestrator) Clear(scope Scope) (int, error) {
	switch scope.Kind {
	case ScopeImmediate:
		return o.immediate.Clear(), nil
	case ScopeSession:
		return o.session.Clear(scope.ConversationID), nil
	case ScopeAll:
		n := o.immediate.Clear()
		n += o.session.Clear("")
		return n, nil
	default:
		return 0, ctxerr.Invalid("orchestrator.Clear", "scope.Kind must be one of immediate, session, all")
	}
}

// Stats returns a point-in-time metrics snapshot.
func (o *Orchestrator) Stats(_ context.Context) (Metrics, error) {
	return Metrics{
		CacheHits:          o.metrics.cacheHits.Load(),
		CacheMisses:        o.metrics.cacheMisses.Load(),
		DegradedRetrievals: o.metrics.degraded.Load(),
		Promotions:         o.metrics.promotions.Load(),
		Stores:             o.metrics.stores.Load(),
		Deletes:            o.metrics.deletes.Load(),
		ImmediateItems:     o.immediate.Len(),
	}, nil
}

// idLockRegistry serializes writes to the same id (spec §5: "serialize on
// id hash"), lazily creating one *sync.Mutex per id.
type idLockRegistry struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newIDLockRegistry() *idLockRegistry {
	return &idLockRegistry{locks: make(map[string]*sync.Mutex)}
}

func (r *idLockRegistry) lockFor(id string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[id]
	if !ok {
		l = &sync.Mutex{}
		r.locks[id] = l
	}
	return l
}
