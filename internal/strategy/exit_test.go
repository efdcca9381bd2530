package strategy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"hypertrader/internal/gateway/exchange"
	"hypertrader/internal/indicator"
)

func longPosition(rule string, category Category) Position {
	return Position{
		Coin:       "BTC",
		Side:       exchange.SideLong,
		EntryPrice: 50000,
		Size:       0.01,
		Leverage:   3,
		OpenedAt:   time.Now().Add(-time.Hour),
		Rule:       rule,
		Category:   category,
	}
}

func priceAtPnl(entry, pnlPct float64) float64 {
	return entry * (1 + pnlPct/100)
}

func TestTrailingStopUsesVolatileThresholds(t *testing.T) {
	pos := longPosition(RuleR3Trend, CategoryTrend)
	in := ExitInput{
		Position:     pos,
		Price:        priceAtPnl(pos.EntryPrice, 0.4),
		PeakPnlPct:   2.5,
		VolatileCoin: true,
		Now:          time.Now(),
	}
	sig := EvaluateExit(in)
	if assert.NotNil(t, sig) {
		assert.Equal(t, ExitRuleTrailing, sig.Rule)
	}

	// 同样的峰值回落在普通币上也触发，但未武装时不触发。
	in.VolatileCoin = false
	in.PeakPnlPct = 1.0
	in.Price = priceAtPnl(pos.EntryPrice, 0.4)
	assert.Nil(t, EvaluateExit(in), "峰值未达武装线不应追踪止盈")
}

func TestTakeProfitWhenStillAbovePeakTrigger(t *testing.T) {
	pos := longPosition(RuleR3Trend, CategoryTrend)
	// PnL 仍在追踪触发线之上，追踪不命中，硬止盈接手。
	in := ExitInput{
		Position:   pos,
		Price:      priceAtPnl(pos.EntryPrice, 5.5),
		PeakPnlPct: 6.0,
		Now:        time.Now(),
	}
	sig := EvaluateExit(in)
	if assert.NotNil(t, sig) {
		assert.Equal(t, ExitRuleTakeProfit, sig.Rule)
	}
}

func TestStopLossNormalAndWeakRule(t *testing.T) {
	pos := longPosition(RuleR3Trend, CategoryTrend)
	in := ExitInput{Position: pos, Price: priceAtPnl(pos.EntryPrice, -1.6), Now: time.Now()}
	assert.Nil(t, EvaluateExit(in), "未到普通止损线 -2")

	weak := longPosition(RuleR6Sentiment, CategorySentiment)
	in = ExitInput{Position: weak, Price: priceAtPnl(weak.EntryPrice, -1.6), Now: time.Now()}
	sig := EvaluateExit(in)
	if assert.NotNil(t, sig) {
		assert.Equal(t, ExitRuleStopLoss, sig.Rule)
	}
}

func TestContrarianTighterParams(t *testing.T) {
	pos := longPosition(ContrarianPrefix+RuleR3Trend, CategoryContrarian)

	// 3.2% 触发反向仓位的 3% 止盈。
	in := ExitInput{Position: pos, Price: priceAtPnl(pos.EntryPrice, 3.2), Now: time.Now()}
	sig := EvaluateExit(in)
	if assert.NotNil(t, sig) {
		assert.Equal(t, ExitRuleTakeProfit, sig.Rule)
	}

	// -1.6% 触发反向仓位的 -1.5% 止损。
	in = ExitInput{Position: pos, Price: priceAtPnl(pos.EntryPrice, -1.6), Now: time.Now()}
	sig = EvaluateExit(in)
	if assert.NotNil(t, sig) {
		assert.Equal(t, ExitRuleStopLoss, sig.Rule)
	}
}

func TestReversalExitForTrendPositions(t *testing.T) {
	pos := longPosition(RuleR3Trend, CategoryTrend)
	h := &indicator.Snapshot{
		RSI: 55,
		ADX: indicator.ADX{Value: 15, PlusDI: 20, MinusDI: 10},
	}
	in := ExitInput{Position: pos, Price: priceAtPnl(pos.EntryPrice, 1.0), H1: h, Now: time.Now()}
	sig := EvaluateExit(in)
	if assert.NotNil(t, sig) {
		assert.Equal(t, ExitRuleReversal, sig.Rule)
	}

	// DI 翻转同样触发。
	h2 := &indicator.Snapshot{
		RSI: 55,
		ADX: indicator.ADX{Value: 30, PlusDI: 10, MinusDI: 25},
	}
	in.H1 = h2
	sig = EvaluateExit(in)
	if assert.NotNil(t, sig) {
		assert.Equal(t, ExitRuleReversal, sig.Rule)
	}

	// 反向翻转来的趋势仓位沿用趋势失效判定。
	cpos := longPosition(ContrarianPrefix+RuleR4Trend, CategoryContrarian)
	in = ExitInput{Position: cpos, Price: priceAtPnl(cpos.EntryPrice, 1.0), H1: h, Now: time.Now()}
	sig = EvaluateExit(in)
	if assert.NotNil(t, sig) {
		assert.Equal(t, ExitRuleReversal, sig.Rule)
	}
}

func TestReversalRSIExtremeForAnyPosition(t *testing.T) {
	pos := longPosition(RuleR1MeanReversion, CategoryMeanReversion)
	h := &indicator.Snapshot{
		RSI: 76,
		ADX: indicator.ADX{Value: 30, PlusDI: 25, MinusDI: 10},
	}
	in := ExitInput{Position: pos, Price: priceAtPnl(pos.EntryPrice, 1.0), H1: h, Now: time.Now()}
	sig := EvaluateExit(in)
	if assert.NotNil(t, sig) {
		assert.Equal(t, ExitRuleReversal, sig.Rule)
	}
}

func TestTimeStopOnFlatPosition(t *testing.T) {
	pos := longPosition(RuleR1MeanReversion, CategoryMeanReversion)
	pos.OpenedAt = time.Now().Add(-9 * time.Hour)

	in := ExitInput{Position: pos, Price: priceAtPnl(pos.EntryPrice, 0.1), Now: time.Now()}
	sig := EvaluateExit(in)
	if assert.NotNil(t, sig) {
		assert.Equal(t, ExitRuleTimeStop, sig.Rule)
	}

	// PnL 在 ±0.3% 横盘带之外则不触发。
	in.Price = priceAtPnl(pos.EntryPrice, 0.5)
	assert.Nil(t, EvaluateExit(in))

	// 持仓未超时也不触发。
	pos.OpenedAt = time.Now().Add(-2 * time.Hour)
	in = ExitInput{Position: pos, Price: priceAtPnl(pos.EntryPrice, 0.1), Now: time.Now()}
	assert.Nil(t, EvaluateExit(in))
}

func TestShortPositionPnlSign(t *testing.T) {
	pos := longPosition(RuleR2MeanReversion, CategoryMeanReversion)
	pos.Side = exchange.SideShort

	assert.InDelta(t, 2.0, pos.PnlPct(priceAtPnl(pos.EntryPrice, -2.0)), 1e-9)
	assert.InDelta(t, -2.0, pos.PnlPct(priceAtPnl(pos.EntryPrice, 2.0)), 1e-9)
}

func TestAgentStatePeakTracking(t *testing.T) {
	st := NewAgentState()
	st.OnEntry("BTC", time.Now())
	st.UpdatePeak("BTC", 1.2)
	st.UpdatePeak("BTC", 0.8)
	assert.InDelta(t, 1.2, st.PeakPnlByCoin["BTC"], 1e-9)

	st.OnExit("BTC")
	_, ok := st.PeakPnlByCoin["BTC"]
	assert.False(t, ok)
}
