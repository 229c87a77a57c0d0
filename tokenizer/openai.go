package tokenizer

import (
	"context"

	tiktoken "github.com/tiktoken-go/tokenizer"
)

// TiktokenEstimator counts tokens locally with the cl100k encoding. It makes
// no network call, so it is the cheapest accurate estimator to wire in.
type TiktokenEstimator struct {
	enc tiktoken.Codec
}

// NewTiktokenEstimator builds a TiktokenEstimator, failing if the cl100k
// encoding tables can't be loaded.
func NewTiktokenEstimator() (*TiktokenEstimator, error) {
	enc, err := tiktoken.Get(tiktoken.Cl100kBase)
	if err != nil {
		return nil, err
	}
	return &TiktokenEstimator{enc: enc}, nil
}

// EstimateTokens encodes content and returns the token count.
func (t *TiktokenEstimator) EstimateTokens(_ context.Context, content string) (int, error) {
	if content == "" {
		return 0, nil
	}
	ids, _, err := t.enc.Encode(content)
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}
