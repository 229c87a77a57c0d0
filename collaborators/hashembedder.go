package collaborators

import (
	"context"
	"hash/fnv"
	"math"

	"github.com/contextcache/hybridmemory/keyword"
)

// HashEmbedder is a deterministic reference Embedder for tests: it hashes
// each token into a fixed-width vector so identical inputs always produce
// identical vectors without calling an external API.
type HashEmbedder struct {
	dims int
}

// NewHashEmbedder constructs a HashEmbedder with the given vector width.
func NewHashEmbedder(dims int) *HashEmbedder {
	if dims <= 0 {
		dims = 64
	}
	return &HashEmbedder{dims: dims}
}

// Embed implements Embedder.
func (e *HashEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = e.embedOne(text)
	}
	return out, nil
}

func (e *HashEmbedder) embedOne(text string) []float32 {
	vec := make([]float32, e.dims)
	for _, tok := range keyword.Tokenize(text) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(tok))
		idx := int(h.Sum32()) % e.dims
		if idx < 0 {
			idx += e.dims
		}
		vec[idx]++
	}
	normalize(vec)
	return vec
}

func normalize(vec []float32) {
	var mag float32
	for _, v := range vec {
		mag += v * v
	}
	if mag == 0 {
		return
	}
	scale := float32(1) / float32(math.Sqrt(float64(mag)))
	for i := range vec {
		vec[i] *= scale
	}
}

// Dimensions implements Embedder.
func (e *HashEmbedder) Dimensions() int { return e.dims }
