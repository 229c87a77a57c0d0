package tokenizer

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
)

// AnthropicEstimator counts tokens via Anthropic's token-counting endpoint,
// for deployments that want estimates to match the model actually serving
// the conversation rather than a generic approximation.
type AnthropicEstimator struct {
	client *anthropic.Client
	model  anthropic.Model
}

// NewAnthropicEstimator builds an AnthropicEstimator bound to client and
// model (used only for the count-tokens call, never to generate text).
func NewAnthropicEstimator(client *anthropic.Client, model anthropic.Model) *AnthropicEstimator {
	return &AnthropicEstimator{client: client, model: model}
}

// EstimateTokens wraps content as a single user turn and asks Anthropic to
// count it.
func (t *AnthropicEstimator) EstimateTokens(ctx context.Context, content string) (int, error) {
	if content == "" {
		return 0, nil
	}
	if t.client == nil {
		return 0, fmt.Errorf("tokenizer: anthropic client is required for token counting")
	}

	result, err := t.client.Messages.CountTokens(ctx, anthropic.MessageCountTokensParams{
		Model: t.model,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(content)),
		},
	})
	if err != nil {
		return 0, fmt.Errorf("tokenizer: anthropic token counting failed: %w", err)
	}
	return int(result.InputTokens), nil
}
