// Package openai adapts OpenAI's embeddings API to the
// collaborators.Embedder interface.
package openai

import (
	"context"
	"errors"
	"os"

	openai "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
)

const DefaultModel = openai.EmbeddingModelTextEmbedding3Small

var modelDimensions = map[string]int{
	openai.EmbeddingModelTextEmbedding3Small: 1536,
	openai.EmbeddingModelTextEmbedding3Large: 3072,
	openai.EmbeddingModelTextEmbeddingAda002: 1536,
}

// Config configures the Embedder.
type Config struct {
	APIKey  string
	BaseURL string
	OrgID   string
	Model   string
}

// Embedder implements collaborators.Embedder against OpenAI's API.
type Embedder struct {
	client *openai.Client
	model  string
}

// New constructs an Embedder, reading OPENAI_API_KEY when config.APIKey is
// unset.
func New(config Config) (*Embedder, error) {
	apiKey := config.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
		if apiKey == "" {
			return nil, errors.New("OpenAI API key is required")
		}
	}

	model := config.Model
	if model == "" {
		model = DefaultModel
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}
	if config.OrgID != "" {
		opts = append(opts, option.WithOrganization(config.OrgID))
	}

	client := openai.NewClient(opts...)
	return &Embedder{client: &client, model: model}, nil
}

// Embed implements collaborators.Embedder, batching every text into a
// single API call (OpenAI supports up to 2048 inputs per request).
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, errors.New("no texts provided for embedding")
	}
	if len(texts) > 2048 {
		return nil, errors.New("batch size exceeds OpenAI limit of 2048 texts")
	}

	resp, err := e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(e.model),
		Input: openai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: texts,
		},
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Data) != len(texts) {
		return nil, errors.New("number of embeddings returned does not match number of texts")
	}

	out := make([][]float32, len(resp.Data))
	for i, data := range resp.Data {
		vec := make([]float32, len(data.Embedding))
		for j, f := range data.Embedding {
			vec[j] = float32(f)
		}
		out[i] = vec
	}
	return out, nil
}

// Dimensions implements collaborators.Embedder.
func (e *Embedder) Dimensions() int {
	if d, ok := modelDimensions[e.model]; ok {
		return d
	}
	return 1536
}
