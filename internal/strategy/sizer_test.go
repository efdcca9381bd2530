package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"hypertrader/internal/gateway/exchange"
)

func TestSizePositionBaseCase(t *testing.T) {
	sig := Signal{Coin: "BTC", Side: exchange.SideLong, Rule: RuleR1MeanReversion, Category: CategoryMeanReversion}
	res, ok := SizePosition(1000, sig, 50000, 3, 20, 3)

	assert.True(t, ok)
	assert.InDelta(t, 200, res.Margin, 1e-9)
	assert.InDelta(t, 600, res.Notional, 1e-9)
	assert.InDelta(t, 0.012, res.Size, 1e-9)
}

func TestSizePositionBelowMinNotional(t *testing.T) {
	sig := Signal{Coin: "BTC", Rule: RuleR1MeanReversion}
	_, ok := SizePosition(10, sig, 50000, 3, 20, 3)
	assert.False(t, ok, "名义价值 6 USD 低于下限 10 USD")
}

func TestSizePositionRoundsDown(t *testing.T) {
	sig := Signal{Coin: "DOGE", Rule: RuleR3Trend}
	// 333.33.../0.1 = 3333.3... → 0 位精度向下取整。
	res, ok := SizePosition(555.555, sig, 0.1, 3, 20, 0)
	assert.True(t, ok)
	assert.InDelta(t, 3333, res.Size, 1e-9)
}

func TestSizePositionMonotonicInBalance(t *testing.T) {
	sig := Signal{Coin: "BTC", Rule: RuleR3Trend}
	prev := 0.0
	for _, balance := range []float64{100, 500, 1000, 5000, 20000} {
		res, ok := SizePosition(balance, sig, 50000, 3, 20, 4)
		if !ok {
			continue
		}
		assert.GreaterOrEqual(t, res.Size, prev, "余额增大时仓位不应缩小")
		prev = res.Size
	}
}

func TestScaleFactors(t *testing.T) {
	assert.InDelta(t, 1.0, ScaleFactorFor(Signal{Rule: RuleR1MeanReversion}), 1e-9)
	assert.InDelta(t, 0.9, ScaleFactorFor(Signal{Rule: RuleR4Trend}), 1e-9)
	assert.InDelta(t, 0.7, ScaleFactorFor(Signal{Rule: RuleR5Breakout}), 1e-9)
	assert.InDelta(t, 0.6, ScaleFactorFor(Signal{Rule: RuleR6Sentiment}), 1e-9)
	assert.InDelta(t, 0.5, ScaleFactorFor(Signal{
		Rule:     ContrarianPrefix + RuleR3Trend,
		Category: CategoryContrarian,
	}), 1e-9)
	assert.InDelta(t, 1.0, ScaleFactorFor(Signal{Rule: "unknown"}), 1e-9)
}

func TestSizePositionInvalidInputs(t *testing.T) {
	sig := Signal{Rule: RuleR1MeanReversion}
	_, ok := SizePosition(0, sig, 50000, 3, 20, 3)
	assert.False(t, ok)
	_, ok = SizePosition(1000, sig, 0, 3, 20, 3)
	assert.False(t, ok)
	_, ok = SizePosition(1000, sig, 50000, 0, 20, 3)
	assert.False(t, ok)
}
