// Package config generalizes the teacher's functional-options pattern
// (options.Option[K,V] / options.Config[K,V]) into a single Options struct
// covering every tunable in spec §6's "Configuration options" table, with
// the same defaults-then-apply-then-validate shape.
package config

import (
	"fmt"
	"time"

	"github.com/contextcache/hybridmemory/chunker"
	"github.com/contextcache/hybridmemory/fusion"
	"github.com/contextcache/hybridmemory/keyword"
	"github.com/contextcache/hybridmemory/similarity"
	"github.com/contextcache/hybridmemory/tiers/immediate"
	"github.com/contextcache/hybridmemory/tiers/session"
)

// Option mutates an Options during construction, mirroring the teacher's
// Option[K, V] func(*Config[K, V]) error shape.
type Option func(*Options) error

// Options is every spec §6 tunable in one place.
type Options struct {
	ImmediateCapacity   int
	ImmediateTTLSeconds int
	ImmediateTokenCap   int

	SessionCapacityPerConv        int
	SessionConsolidationThreshold int
	SessionHalfLifeSeconds        int

	KeywordK1 float64
	KeywordB  float64

	ChunkerTarget      int
	ChunkerMin         int
	ChunkerMax         int
	ChunkerBaseOverlap int

	FusionSemanticWeight float64
	FusionKeywordWeight  float64
	FusionGraphWeight    float64

	RetrieveMaxTokens  int
	RetrieveDeadlineMs int

	CacheTTLSeconds int

	PromotionImmediateToSessionAccess int
	PromotionSessionToLongtermAccess  int

	// VectorComparator names the InMemoryVectorStore's ranking function:
	// one of "cosine", "dot_product", "euclidean", "manhattan", "pearson"
	// (spec §6 vector.comparator). Only the reference in-memory store
	// honors this; a production VectorStore (e.g. collaborators/qdrant)
	// picks its own metric at the database level.
	VectorComparator string
}

// Default returns the spec §6 defaults.
func Default() *Options {
	return &Options{
		ImmediateCapacity:   10,
		ImmediateTTLSeconds: 3600,
		ImmediateTokenCap:   2048,

		SessionCapacityPerConv:        50,
		SessionConsolidationThreshold: 20,
		SessionHalfLifeSeconds:        1800,

		KeywordK1: keyword.DefaultK1,
		KeywordB:  keyword.DefaultB,

		ChunkerTarget:      512,
		ChunkerMin:         100,
		ChunkerMax:         1024,
		ChunkerBaseOverlap: 50,

		FusionSemanticWeight: fusion.DefaultWeights().Semantic,
		FusionKeywordWeight:  fusion.DefaultWeights().Keyword,
		FusionGraphWeight:    fusion.DefaultWeights().Graph,

		RetrieveMaxTokens:  4096,
		RetrieveDeadlineMs: 2000,

		CacheTTLSeconds: 300,

		PromotionImmediateToSessionAccess: 3,
		PromotionSessionToLongtermAccess:  5,

		VectorComparator: "cosine",
	}
}

// Apply applies opts in order over a Default() base, matching the
// teacher's Config.Apply.
func Apply(opts ...Option) (*Options, error) {
	cfg := Default()
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations that would violate a documented
// invariant (e.g. chunker.min > chunker.target, weights summing to zero).
func (o *Options) Validate() error {
	if o.ImmediateCapacity <= 0 {
		return fmt.Errorf("immediate.capacity must be positive, got %d", o.ImmediateCapacity)
	}
	if o.ImmediateTTLSeconds <= 0 {
		return fmt.Errorf("immediate.ttl_seconds must be positive, got %d", o.ImmediateTTLSeconds)
	}
	if o.ImmediateTokenCap <= 0 {
		return fmt.Errorf("immediate.token_cap must be positive, got %d", o.ImmediateTokenCap)
	}
	if o.SessionCapacityPerConv <= 0 {
		return fmt.Errorf("session.capacity_per_conv must be positive, got %d", o.SessionCapacityPerConv)
	}
	if o.SessionConsolidationThreshold <= 0 {
		return fmt.Errorf("session.consolidation_threshold must be positive, got %d", o.SessionConsolidationThreshold)
	}
	if o.SessionHalfLifeSeconds <= 0 {
		return fmt.Errorf("session.half_life_seconds must be positive, got %d", o.SessionHalfLifeSeconds)
	}
	if o.KeywordK1 < 0 {
		return fmt.Errorf("keyword.k1 must be non-negative, got %v", o.KeywordK1)
	}
	if o.KeywordB < 0 || o.KeywordB > 1 {
		return fmt.Errorf("keyword.b must be in [0,1], got %v", o.KeywordB)
	}
	if o.ChunkerMin <= 0 || o.ChunkerTarget <= 0 || o.ChunkerMax < o.ChunkerTarget || o.ChunkerMin > o.ChunkerTarget {
		return fmt.Errorf("chunker sizes must satisfy 0 < min <= target <= max, got min=%d target=%d max=%d", o.ChunkerMin, o.ChunkerTarget, o.ChunkerMax)
	}
	if o.ChunkerBaseOverlap < 0 || o.ChunkerBaseOverlap >= o.ChunkerTarget {
		return fmt.Errorf("chunker.base_overlap must be in [0,target), got %d", o.ChunkerBaseOverlap)
	}
	if o.FusionSemanticWeight < 0 || o.FusionKeywordWeight < 0 || o.FusionGraphWeight < 0 {
		return fmt.Errorf("fusion weights must be non-negative")
	}
	if o.FusionSemanticWeight+o.FusionKeywordWeight+o.FusionGraphWeight <= 0 {
		return fmt.Errorf("at least one fusion weight must be positive")
	}
	if o.RetrieveMaxTokens <= 0 {
		return fmt.Errorf("retrieve.max_tokens must be positive, got %d", o.RetrieveMaxTokens)
	}
	if o.RetrieveDeadlineMs <= 0 {
		return fmt.Errorf("retrieve.deadline_ms must be positive, got %d", o.RetrieveDeadlineMs)
	}
	if o.CacheTTLSeconds < 0 {
		return fmt.Errorf("cache.ttl_seconds must be non-negative, got %d", o.CacheTTLSeconds)
	}
	if o.PromotionImmediateToSessionAccess <= 0 {
		return fmt.Errorf("promotion.immediate_to_session_access must be positive, got %d", o.PromotionImmediateToSessionAccess)
	}
	if o.PromotionSessionToLongtermAccess <= 0 {
		return fmt.Errorf("promotion.session_to_longterm_access must be positive, got %d", o.PromotionSessionToLongtermAccess)
	}
	if _, err := similarity.ByName(o.VectorComparator); err != nil {
		return fmt.Errorf("vector.comparator: %w", err)
	}
	return nil
}

// ImmediateOptions projects the Immediate tier's slice of Options. Its
// recency half-life isn't a spec §6 tunable, so it's left at the tier's
// own default (immediate.DefaultOptions().HalfLife).
func (o *Options) ImmediateOptions() immediate.Options {
	d := immediate.DefaultOptions()
	return immediate.Options{
		Capacity: o.ImmediateCapacity,
		TTL:      time.Duration(o.ImmediateTTLSeconds) * time.Second,
		TokenCap: o.ImmediateTokenCap,
		HalfLife: d.HalfLife,
	}
}

// SessionOptions projects the Session tier's slice of Options.
func (o *Options) SessionOptions() session.Options {
	return session.Options{
		CapacityPerConv:        o.SessionCapacityPerConv,
		ConsolidationThreshold: o.SessionConsolidationThreshold,
		HalfLife:               time.Duration(o.SessionHalfLifeSeconds) * time.Second,
	}
}

// ChunkerParams projects the Chunker's slice of Options.
func (o *Options) ChunkerParams() chunker.Params {
	return chunker.Params{
		Target:      o.ChunkerTarget,
		Min:         o.ChunkerMin,
		Max:         o.ChunkerMax,
		BaseOverlap: o.ChunkerBaseOverlap,
		Adaptive:    true,
	}
}

// Comparator resolves the configured vector comparator to the
// similarity.SimilarityFunc an InMemoryVectorStore ranks matches with.
func (o *Options) Comparator() (similarity.SimilarityFunc, error) {
	return similarity.ByName(o.VectorComparator)
}

// FusionWeights projects the Hybrid Fusion weights.
func (o *Options) FusionWeights() fusion.Weights {
	return fusion.Weights{
		Semantic: o.FusionSemanticWeight,
		Keyword:  o.FusionKeywordWeight,
		Graph:    o.FusionGraphWeight,
	}
}

// WithImmediateLimits overrides the Immediate tier's capacity, TTL, and
// token cap (spec §6: immediate.capacity, immediate.ttl_seconds,
// immediate.token_cap).
func WithImmediateLimits(capacity, ttlSeconds, tokenCap int) Option {
	return func(o *Options) error {
		o.ImmediateCapacity = capacity
		o.ImmediateTTLSeconds = ttlSeconds
		o.ImmediateTokenCap = tokenCap
		return nil
	}
}

// WithSessionLimits overrides the Session tier's per-conversation capacity,
// consolidation threshold, and half-life.
func WithSessionLimits(capacityPerConv, consolidationThreshold, halfLifeSeconds int) Option {
	return func(o *Options) error {
		o.SessionCapacityPerConv = capacityPerConv
		o.SessionConsolidationThreshold = consolidationThreshold
		o.SessionHalfLifeSeconds = halfLifeSeconds
		return nil
	}
}

// WithKeywordParams overrides BM25's k1/b.
func WithKeywordParams(k1, b float64) Option {
	return func(o *Options) error {
		o.KeywordK1 = k1
		o.KeywordB = b
		return nil
	}
}

// WithChunkerParams overrides the Chunker's target/min/max/base_overlap.
func WithChunkerParams(target, min, max, baseOverlap int) Option {
	return func(o *Options) error {
		o.ChunkerTarget = target
		o.ChunkerMin = min
		o.ChunkerMax = max
		o.ChunkerBaseOverlap = baseOverlap
		return nil
	}
}

// WithFusionWeights overrides Hybrid Fusion's default per-signal weights.
func WithFusionWeights(semantic, keyword, graph float64) Option {
	return func(o *Options) error {
		o.FusionSemanticWeight = semantic
		o.FusionKeywordWeight = keyword
		o.FusionGraphWeight = graph
		return nil
	}
}

// WithRetrieveLimits overrides retrieve's token budget and overall deadline.
func WithRetrieveLimits(maxTokens, deadlineMs int) Option {
	return func(o *Options) error {
		o.RetrieveMaxTokens = maxTokens
		o.RetrieveDeadlineMs = deadlineMs
		return nil
	}
}

// WithCacheTTL overrides the response cache's TTL.
func WithCacheTTL(ttlSeconds int) Option {
	return func(o *Options) error {
		o.CacheTTLSeconds = ttlSeconds
		return nil
	}
}

// WithVectorComparator overrides the InMemoryVectorStore's ranking
// function (spec §6 vector.comparator): one of "cosine", "dot_product",
// "euclidean", "manhattan", "pearson".
func WithVectorComparator(name string) Option {
	return func(o *Options) error {
		o.VectorComparator = name
		return nil
	}
}

// WithPromotionThresholds overrides the access-count thresholds that
// promote an item from Immediate to Session and from Session to Long-Term.
func WithPromotionThresholds(immediateToSession, sessionToLongterm int) Option {
	return func(o *Options) error {
		o.PromotionImmediateToSessionAccess = immediateToSession
		o.PromotionSessionToLongtermAccess = sessionToLongterm
		return nil
	}
}
