// Package tokenizer provides optional, provider-accurate token estimators
// that a caller can swap in for the cheap ⌈chars/4⌉ approximation
// ([[types.EstimateTokens]]) used by default when content is stored.
package tokenizer

import "context"

// Estimator computes a token count for a single piece of content. All three
// implementations in this package satisfy it; [[collaborators.Embedder]] and
// [[collaborators.VectorStore]] are the other optional, pluggable accuracy
// upgrades a deployment can wire in over the package's defaults.
type Estimator interface {
	EstimateTokens(ctx context.Context, content string) (int, error)
}
