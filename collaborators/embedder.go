package collaborators

import "context"

// Embedder is the embedding-provider collaborator (spec §6): batch-capable,
// returns fixed-dimension float vectors, never called on the hot read path
// unless the request's strategy requires semantic retrieval.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
}
