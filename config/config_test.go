package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultMatchesSpecDefaults(t *testing.T) {
	o := Default()
	assert.Equal(t, 10, o.ImmediateCapacity)
	assert.Equal(t, 3600, o.ImmediateTTLSeconds)
	assert.Equal(t, 2048, o.ImmediateTokenCap)
	assert.Equal(t, 50, o.SessionCapacityPerConv)
	assert.Equal(t, 20, o.SessionConsolidationThreshold)
	assert.Equal(t, 1800, o.SessionHalfLifeSeconds)
	assert.Equal(t, 1.5, o.KeywordK1)
	assert.Equal(t, 0.75, o.KeywordB)
	assert.Equal(t, 0.5, o.FusionSemanticWeight)
	assert.Equal(t, 0.3, o.FusionKeywordWeight)
	assert.Equal(t, 0.2, o.FusionGraphWeight)
	require.NoError(t, o.Validate())
}

func TestApplyAPpliesOptionsOverDefaults(t *testing.T) {
	cfg, err := Apply(
		WithImmediateLimits(5, 60, 1024),
		WithFusionWeights(0.6, 0.3, 0.1),
	)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.ImmediateCapacity)
	assert.Equal(t, 60, cfg.ImmediateTTLSeconds)
	assert.Equal(t, 1024, cfg.ImmediateTokenCap)
	assert.Equal(t, 0.6, cfg.FusionSemanticWeight)
	assert.Equal(t, 50, cfg.SessionCapacityPerConv, "untouched session default should survive")
}

func TestValidateRejectsInvalidChunkerSizes(t *testing.T) {
	_, err := Apply(WithChunkerParams(512, 600, 1024, 50))
	require.Error(t, err, "min > target should be rejected")
}

func TestValidateRejectsAllZeroFusionWeights(t *testing.T) {
	_, err := Apply(WithFusionWeights(0, 0, 0))
	require.Error(t, err, "all-zero fusion weights should be rejected")
}

func TestValidateRejectsNonPositiveCapacities(t *testing.T) {
	_, err := Apply(WithImmediateLimits(0, 3600, 2048))
	require.Error(t, err, "zero capacity should be rejected")
}

func TestVectorComparatorDefaultsToCosineAndIsOverridable(t *testing.T) {
	o := Default()
	assert.Equal(t, "cosine", o.VectorComparator)

	cfg, err := Apply(WithVectorComparator("dot_product"))
	require.NoError(t, err)
	fn, err := cfg.Comparator()
	require.NoError(t, err)
	assert.NotNil(t, fn)
}

func TestValidateRejectsUnknownVectorComparator(t *testing.T) {
	_, err := Apply(WithVectorComparator("manhattan-distance-typo"))
	require.Error(t, err, "unknown comparator name should be rejected")
}

func TestProjectionsCarryOverriddenValues(t *testing.T) {
	cfg, err := Apply(WithKeywordParams(2.0, 0.6), WithChunkerParams(400, 80, 900, 40))
	require.NoError(t, err)
	params := cfg.ChunkerParams()
	assert.Equal(t, 400, params.Target)
	assert.Equal(t, 80, params.Min)
	assert.Equal(t, 900, params.Max)
	assert.Equal(t, 40, params.BaseOverlap)
}
