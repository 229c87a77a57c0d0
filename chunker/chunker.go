// Package chunker splits long ContextItem content into overlapping chunks
// that honor sentence and paragraph boundaries, for indexing in the
// keyword index and embedding by the vector collaborator.
package chunker

import "github.com/contextcache/hybridmemory/types"

// Chunker defines the interface for text chunking strategies. The default
// (and only) implementation is the sentence/paragraph-aware SentenceChunker
// in sentence.go;
// the interface exists so callers can substitute a different strategy in
// tests without depending on the concrete type.
type Chunker interface {
	// Chunk splits text into an ordered sequence of chunks. It never
	// returns an error: empty input yields an empty sequence.
	Chunk(parentID, text string, params Params) []types.Chunk
}

// Params configures chunking behavior. When Chunk runs, non-positive
// Target, Min, Max and BaseOverlap are replaced with DefaultParams()'s
// values; Adaptive is used as given.
type Params struct {
	// Target is the preferred chunk size in characters.
	Target int

	// Min is the minimum acceptable chunk size; chunks shorter are merged
	// with the predecessor.
	Min int

	// Max is the hard upper bound; a chunk must never exceed this.
	Max int

	// BaseOverlap is the baseline character overlap between adjacent chunks.
	BaseOverlap int

	// Adaptive, if true, scales overlap with sentence density (§4.1 step 3).
	Adaptive bool
}

// DefaultParams returns the spec §4.1 / §6 defaults.
func DefaultParams() Params {
	return Params{
		Target:      512,
		Min:         100,
		Max:         1024,
		BaseOverlap: 50,
		Adaptive:    true,
	}
}

// withDefaults fills zero fields with DefaultParams()'s values.
func (p Params) withDefaults() Params {
	d := DefaultParams()
	if p.Target <= 0 {
		p.Target = d.Target
	}
	if p.Min <= 0 {
		p.Min = d.Min
	}
	if p.Max <= 0 {
		p.Max = d.Max
	}
	if p.BaseOverlap <= 0 {
		p.BaseOverlap = d.BaseOverlap
	}
	return p
}

// Validate checks parameter consistency.
func (p Params) Validate() error {
	if p.Min <= 0 {
		return ErrInvalidChunkSize
	}
	if p.Target <= 0 {
		return ErrInvalidChunkSize
	}
	if p.Max <= 0 || p.Max < p.Target {
		return ErrChunkSizeExceedsMax
	}
	if p.BaseOverlap < 0 {
		return ErrInvalidOverlap
	}
	if p.BaseOverlap >= p.Target {
		return ErrOverlapTooLarge
	}
	return nil
}

// maxOverlap caps overlap at min(max/3, 200), per spec §4.1 step 3.
func (p Params) maxOverlap() int {
	limit := p.Max / 3
	if limit > 200 {
		limit = 200
	}
	return limit
}
