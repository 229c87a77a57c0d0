package tokenizer

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// GeminiEstimator counts tokens via Gemini's token-counting endpoint.
type GeminiEstimator struct {
	client *genai.Client
	model  string
}

// NewGeminiEstimator builds a GeminiEstimator bound to client and model.
func NewGeminiEstimator(client *genai.Client, model string) *GeminiEstimator {
	return &GeminiEstimator{client: client, model: model}
}

// EstimateTokens wraps content as a single text part and asks Gemini to
// count it.
func (t *GeminiEstimator) EstimateTokens(ctx context.Context, content string) (int, error) {
	if content == "" {
		return 0, nil
	}
	if t.client == nil {
		return 0, fmt.Errorf("tokenizer: gemini client is required for token counting")
	}
	if t.model == "" {
		return 0, fmt.Errorf("tokenizer: gemini model is required for token counting")
	}

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{{Text: content}}, genai.RoleUser),
	}
	result, err := t.client.Models.CountTokens(ctx, t.model, contents, nil)
	if err != nil {
		return 0, fmt.Errorf("tokenizer: gemini token counting failed: %w", err)
	}
	return int(result.TotalTokens), nil
}
