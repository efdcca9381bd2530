package volatility

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func feed(t *Tracker, coin string, values ...float64) {
	for _, v := range values {
		t.Observe(coin, v)
	}
}

func TestClassifyNeedsMinimumSamples(t *testing.T) {
	tr := NewTracker()
	feed(tr, "BTC", 10, 10, 10, 10)
	assert.Equal(t, ClassNormal, tr.Classify("BTC"), "样本不足按 normal")
}

func TestClassifyRatios(t *testing.T) {
	tr := NewTracker()
	// 均值约 10 的基线，最后一个读数决定级别。
	feed(tr, "SPIKE", 10, 10, 10, 10, 50)
	assert.Equal(t, ClassSpike, tr.Classify("SPIKE"))

	feed(tr, "ELEV", 10, 10, 10, 10, 20)
	assert.Equal(t, ClassElevated, tr.Classify("ELEV"))

	feed(tr, "CALM", 10, 10, 10, 10, 5)
	assert.Equal(t, ClassCalm, tr.Classify("CALM"))

	feed(tr, "NORM", 10, 10, 10, 10, 10)
	assert.Equal(t, ClassNormal, tr.Classify("NORM"))
}

func TestObserveIgnoresNonPositive(t *testing.T) {
	tr := NewTracker()
	feed(tr, "BTC", 10, 0, -1, 10, 10, 10, 10)
	assert.Equal(t, ClassNormal, tr.Classify("BTC"))
}

func TestWindowEviction(t *testing.T) {
	tr := NewTracker()
	// 前 20 个大读数被后续 20 个小读数完全挤出窗口。
	for i := 0; i < windowSize; i++ {
		tr.Observe("BTC", 100)
	}
	for i := 0; i < windowSize; i++ {
		tr.Observe("BTC", 10)
	}
	assert.Equal(t, ClassNormal, tr.Classify("BTC"))
}

func TestCoinKeysMatchAnyCase(t *testing.T) {
	// 配置里的币名可能是小写，观察端写入的是大写键。
	tr := NewTracker()
	feed(tr, "BTC", 10, 10, 10, 10, 10, 10, 10, 10, 10, 50)
	assert.Equal(t, ClassSpike, tr.Classify("btc"))
	assert.Equal(t, GlobalSpike, tr.UpdateGlobal([]string{"btc"}))

	tr2 := NewTracker()
	feed(tr2, "eth", 10, 10, 10, 10, 20)
	assert.Equal(t, ClassElevated, tr2.Classify("ETH"))
}

func TestGlobalStateMachine(t *testing.T) {
	tr := NewTracker()
	var transitions []string
	tr.OnTransition = func(from, to GlobalState) {
		transitions = append(transitions, string(from)+"->"+string(to))
	}
	coins := []string{"BTC", "ETH", "SOL", "DOGE"}

	assert.Equal(t, GlobalNormal, tr.UpdateGlobal(coins))
	assert.Empty(t, transitions, "无变化不触发边沿回调")

	// 一个 elevated 币 → elevated。
	feed(tr, "BTC", 10, 10, 10, 10, 20)
	assert.Equal(t, GlobalElevated, tr.UpdateGlobal(coins))

	// 任一 spike 币 → spike。
	feed(tr, "ETH", 10, 10, 10, 10, 50)
	assert.Equal(t, GlobalSpike, tr.UpdateGlobal(coins))

	assert.Equal(t, []string{"normal->elevated", "elevated->spike"}, transitions)
}

func TestThreeHotCoinsMeanSpike(t *testing.T) {
	tr := NewTracker()
	for _, coin := range []string{"BTC", "ETH", "SOL"} {
		feed(tr, coin, 10, 10, 10, 10, 20)
	}
	assert.Equal(t, GlobalSpike, tr.UpdateGlobal([]string{"BTC", "ETH", "SOL", "DOGE"}))
	assert.InDelta(t, 1.0/3, tr.Multiplier(), 1e-9)
}

func TestMultiplierByState(t *testing.T) {
	tr := NewTracker()
	assert.InDelta(t, 1.0, tr.Multiplier(), 1e-9)

	feed(tr, "BTC", 10, 10, 10, 10, 20)
	tr.UpdateGlobal([]string{"BTC"})
	assert.InDelta(t, 0.5, tr.Multiplier(), 1e-9)

	feed(tr, "BTC", 100)
	tr.UpdateGlobal([]string{"BTC"})
	assert.InDelta(t, 1.0/3, tr.Multiplier(), 1e-9)
}
