package ml

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func scorePtr(v float64) *float64 { return &v }

func TestBlendWithoutScoreKeepsRuleConfidence(t *testing.T) {
	got := Blend(0.65, ScoreResult{Score: nil, ModelSamples: 1000})
	assert.InDelta(t, 0.65, got, 1e-9)
}

func TestBlendWeightGrowsWithSamples(t *testing.T) {
	// 250 样本 → w=0.5：0.6×0.5 + 0.8×0.5 = 0.70。
	got := Blend(0.6, ScoreResult{Score: scorePtr(0.8), ModelSamples: 250})
	assert.InDelta(t, 0.70, got, 1e-9)

	// 样本不足时模型几乎没有话语权。
	got = Blend(0.6, ScoreResult{Score: scorePtr(0.9), ModelSamples: 50})
	assert.InDelta(t, 0.6*0.9+0.9*0.1, got, 1e-9)
}

func TestBlendWeightCappedAtMax(t *testing.T) {
	// 样本再多权重也不超过 0.6。
	got := Blend(0.6, ScoreResult{Score: scorePtr(0.9), ModelSamples: 100000})
	assert.InDelta(t, 0.6*0.4+0.9*0.6, got, 1e-9)
}

func TestBlendNegativeSamplesClamped(t *testing.T) {
	got := Blend(0.6, ScoreResult{Score: scorePtr(0.9), ModelSamples: -5})
	assert.InDelta(t, 0.6, got, 1e-9)
}
