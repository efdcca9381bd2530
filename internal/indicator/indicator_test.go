package indicator

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"hypertrader/internal/market"
)

func TestComputeRejectsShortHistory(t *testing.T) {
	candles := make([]market.Candle, MinCandles-1)
	_, err := Compute("BTC", "1h", candles)
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestComputeProducesSnapshot(t *testing.T) {
	candles := make([]market.Candle, 120)
	price := 100.0
	for i := range candles {
		// 缓慢上行加小幅波动，保证各指标有非零输出。
		price += 0.5
		if i%7 == 0 {
			price -= 1.2
		}
		candles[i] = market.Candle{
			Open:  price - 0.3,
			High:  price + 0.8,
			Low:   price - 0.8,
			Close: price,
		}
	}
	snap, err := Compute("BTC", "1h", candles)
	assert.NoError(t, err)

	assert.Equal(t, "BTC", snap.Coin)
	assert.Equal(t, "1h", snap.Interval)
	assert.InDelta(t, price, snap.Price, 1e-9)
	assert.Greater(t, snap.RSI, 50.0, "持续上行 RSI 应偏多")
	assert.Greater(t, snap.ATR, 0.0)
	assert.Greater(t, snap.ADX.PlusDI, snap.ADX.MinusDI)
	assert.Greater(t, snap.Bollinger.Upper, snap.Bollinger.Lower)
	assert.NotEmpty(t, snap.Regime)
}

func TestClassifyRegime(t *testing.T) {
	assert.Equal(t, RegimeVolatileTrend, classifyRegime(30, 0.06))
	assert.Equal(t, RegimeTrending, classifyRegime(30, 0.03))
	assert.Equal(t, RegimeQuiet, classifyRegime(15, 0.01))
	assert.Equal(t, RegimeRanging, classifyRegime(15, 0.03))
}

func TestLastValidSkipsWarmupValues(t *testing.T) {
	assert.InDelta(t, 3.5, lastValid([]float64{1, 2, 3.5, math.NaN(), 0}), 1e-9)
	assert.InDelta(t, 0, lastValid([]float64{math.NaN(), 0}), 1e-9)
	assert.InDelta(t, 0, lastValid(nil), 1e-9)
}
