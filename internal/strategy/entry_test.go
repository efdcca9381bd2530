package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"hypertrader/internal/gateway/exchange"
	"hypertrader/internal/indicator"
	"hypertrader/internal/sentiment"
)

func quietSnapshot(rsi float64) indicator.Snapshot {
	return indicator.Snapshot{
		Coin:     "BTC",
		Interval: "1h",
		Price:    50000,
		RSI:      rsi,
		Regime:   indicator.RegimeQuiet,
		ADX:      indicator.ADX{Value: 15, PlusDI: 18, MinusDI: 17},
		Bollinger: indicator.Bollinger{
			Upper: 51000, Middle: 50000, Lower: 49000, Width: 0.04,
		},
	}
}

func trendingSnapshot() indicator.Snapshot {
	return indicator.Snapshot{
		Coin:      "BTC",
		Interval:  "1h",
		Price:     50000,
		RSI:       55,
		Regime:    indicator.RegimeTrending,
		ADX:       indicator.ADX{Value: 30, PlusDI: 25, MinusDI: 10},
		MACD:      indicator.MACD{Histogram: 0.01},
		Bollinger: indicator.Bollinger{Upper: 51000, Middle: 50000, Lower: 49000, Width: 0.03},
	}
}

func newEvaluator() *EntryEvaluator {
	e := NewEntryEvaluator(0)
	e.Rand = func() float64 { return 0.99 }
	return e
}

func TestMeanReversionLongOnOversoldQuietMarket(t *testing.T) {
	e := newEvaluator()
	res := e.Evaluate(EntryInput{Coin: "BTC", H1: quietSnapshot(25)})

	if assert.NotNil(t, res.Signal) {
		assert.Equal(t, RuleR1MeanReversion, res.Signal.Rule)
		assert.Equal(t, exchange.SideLong, res.Signal.Side)
		assert.InDelta(t, 0.60, res.Signal.Confidence, 1e-9)
	}
}

func TestMeanReversion15mConfirmationBonus(t *testing.T) {
	e := newEvaluator()
	m15 := quietSnapshot(28)
	res := e.Evaluate(EntryInput{Coin: "BTC", H1: quietSnapshot(25), M15: &m15})

	if assert.NotNil(t, res.Signal) {
		assert.InDelta(t, 0.65, res.Signal.Confidence, 1e-9)
	}
}

func TestTrendLongWithDISpreadBonus(t *testing.T) {
	e := newEvaluator()
	res := e.Evaluate(EntryInput{Coin: "BTC", H1: trendingSnapshot()})

	if assert.NotNil(t, res.Signal) {
		assert.Equal(t, RuleR3Trend, res.Signal.Rule)
		assert.Equal(t, exchange.SideLong, res.Signal.Side)
		// DI 差 15 落在 [10,20) 档，加 0.05。
		assert.InDelta(t, 0.65, res.Signal.Confidence, 1e-9)
	}
}

func TestTrendShortTransitionalBand(t *testing.T) {
	e := newEvaluator()
	h := trendingSnapshot()
	h.RSI = 40
	h.MACD.Histogram = -0.02
	h.ADX = indicator.ADX{Value: 22, PlusDI: 10, MinusDI: 24}
	res := e.Evaluate(EntryInput{Coin: "BTC", H1: h})

	if assert.NotNil(t, res.Signal) {
		assert.Equal(t, RuleR4Trend, res.Signal.Rule)
		assert.Equal(t, exchange.SideShort, res.Signal.Side)
		// 基础 0.60 + DI 差档 0.05 − 过渡带折扣 0.03。
		assert.InDelta(t, 0.62, res.Signal.Confidence, 1e-9)
	}
}

func TestTrendShortBelowTransitionalBandRejected(t *testing.T) {
	e := newEvaluator()
	h := trendingSnapshot()
	h.RSI = 40
	h.MACD.Histogram = -0.02
	h.ADX = indicator.ADX{Value: 19, PlusDI: 10, MinusDI: 30}
	res := e.Evaluate(EntryInput{Coin: "BTC", H1: h})

	assert.Nil(t, res.Signal)
}

func TestBreakoutLatchThenTrigger(t *testing.T) {
	e := newEvaluator()

	// 第一阶段：收口，置位闩锁，无信号。
	h := quietSnapshot(50)
	h.Bollinger.Width = 0.01
	res := e.Evaluate(EntryInput{Coin: "BTC", H1: h})
	assert.Nil(t, res.Signal)
	assert.True(t, res.SqueezeForming)

	// 第二阶段：扩张且价格破上轨。R5 基础置信度低于门槛，按近失丢弃。
	h2 := quietSnapshot(50)
	h2.Bollinger.Width = 0.05
	h2.Price = h2.Bollinger.Upper + 100
	h2.Regime = indicator.RegimeRanging
	res2 := e.Evaluate(EntryInput{Coin: "BTC", H1: h2, SqueezeForming: true})
	assert.Nil(t, res2.Signal)
	assert.False(t, res2.SqueezeForming, "触发后闩锁应复位")
	if assert.Len(t, res2.NearMisses, 1) {
		assert.Equal(t, RuleR5Breakout, res2.NearMisses[0].Rule)
		assert.Equal(t, "min-confidence", res2.NearMisses[0].BlockedBy)
	}
}

func TestSentimentOnlyFiresWhenNoTechnicalCandidate(t *testing.T) {
	e := newEvaluator()
	h := quietSnapshot(50)
	snap := &sentiment.Snapshot{Coin: "BTC", GalaxyScore: 75, SentimentPct: 85}
	res := e.Evaluate(EntryInput{Coin: "BTC", H1: h, Sentiment: snap})

	if assert.NotNil(t, res.Signal) {
		assert.Equal(t, RuleR6Sentiment, res.Signal.Rule)
		assert.Equal(t, exchange.SideLong, res.Signal.Side)
		assert.InDelta(t, 0.56, res.Signal.Confidence, 1e-9)
	}
}

func TestSentimentOnlySkippedWhenTechnicalCandidateExists(t *testing.T) {
	e := newEvaluator()
	snap := &sentiment.Snapshot{Coin: "BTC", GalaxyScore: 75, SentimentPct: 85}
	res := e.Evaluate(EntryInput{Coin: "BTC", H1: trendingSnapshot(), Sentiment: snap})

	if assert.NotNil(t, res.Signal) {
		assert.Equal(t, RuleR3Trend, res.Signal.Rule)
	}
}

func TestContrarianFlipDiscountsConfidence(t *testing.T) {
	e := NewEntryEvaluator(100)
	e.Rand = func() float64 { return 0 }

	// 多头候选但 RSI 未同向拉伸（25 < 70），不翻转。
	m15 := quietSnapshot(28)
	h := quietSnapshot(25)
	snap := &sentiment.Snapshot{Coin: "BTC", GalaxyScore: 75, SentimentPct: 85}
	res := e.Evaluate(EntryInput{Coin: "BTC", H1: h, M15: &m15, Sentiment: snap})
	if assert.NotNil(t, res.Signal) {
		assert.Equal(t, RuleR1MeanReversion, res.Signal.Rule)
	}

	// R4 空头候选 + 极端看空 + RSI<30 同向拉伸 → 翻转为反向多头。
	h4 := trendingSnapshot()
	h4.RSI = 20
	h4.MACD.Histogram = -0.02
	h4.ADX = indicator.ADX{Value: 30, PlusDI: 8, MinusDI: 30}
	fear := &sentiment.Snapshot{Coin: "BTC", GalaxyScore: 80, SentimentPct: 10}
	res4 := e.Evaluate(EntryInput{Coin: "BTC", H1: h4, Sentiment: fear})
	if assert.NotNil(t, res4.Signal) {
		assert.Equal(t, ContrarianPrefix+RuleR4Trend, res4.Signal.Rule)
		assert.Equal(t, exchange.SideLong, res4.Signal.Side)
		assert.Equal(t, CategoryContrarian, res4.Signal.Category)
		// 原始 0.60 + DI差档 0.10 + 情绪放宽 0.03，折后 ×0.8。
		assert.InDelta(t, 0.73*0.8, res4.Signal.Confidence, 1e-9)
	}
}

func TestContrarianFloorDiscardsAsNearMiss(t *testing.T) {
	e := NewEntryEvaluator(100)
	e.Rand = func() float64 { return 0 }

	// R1 多头 0.60，但 RSI 需要 >70 才满足多头拉伸，构造不了；用 R6 多头
	// 0.56 × 0.8 = 0.448 < 0.50 → contrarian-floor 近失。
	h := quietSnapshot(75)
	h.Regime = indicator.RegimeTrending // 避开 R2 超买
	h.ADX = indicator.ADX{Value: 15, PlusDI: 20, MinusDI: 10}
	snap := &sentiment.Snapshot{Coin: "BTC", GalaxyScore: 80, SentimentPct: 90}
	res := e.Evaluate(EntryInput{Coin: "BTC", H1: h, Sentiment: snap})

	assert.Nil(t, res.Signal)
	if assert.Len(t, res.NearMisses, 1) {
		assert.Equal(t, "contrarian-floor", res.NearMisses[0].BlockedBy)
		assert.Equal(t, ContrarianPrefix+RuleR6Sentiment, res.NearMisses[0].Rule)
	}
}

func TestNearMissOnlyForOneOrTwoFailedGates(t *testing.T) {
	e := newEvaluator()
	// 安静行情 RSI 50：R1/R2 各差一个条件 → 两条近失；
	// R3/R4 失败条件 ≥3 → 不记录。
	res := e.Evaluate(EntryInput{Coin: "BTC", H1: quietSnapshot(50)})

	assert.Nil(t, res.Signal)
	rules := make([]string, 0, len(res.NearMisses))
	for _, nm := range res.NearMisses {
		rules = append(rules, nm.Rule)
	}
	assert.ElementsMatch(t, []string{RuleR1MeanReversion, RuleR2MeanReversion}, rules)
}

func TestPickBestKeepsFirstOnTie(t *testing.T) {
	a := Signal{Rule: "a", Confidence: 0.6}
	b := Signal{Rule: "b", Confidence: 0.6}
	best := pickBest([]Signal{a, b})
	if assert.NotNil(t, best) {
		assert.Equal(t, "a", best.Rule)
	}
}
