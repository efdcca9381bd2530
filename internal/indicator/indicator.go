// Package indicator 基于 go-talib 计算单币种、单周期的技术指标快照，
// 并给出粗粒度的行情状态分类。
package indicator

import (
	"errors"
	"math"

	"github.com/markcheno/go-talib"

	"hypertrader/internal/market"
)

// ErrInsufficientData 表示历史 K 线不足，调用方按"本轮跳过该币"处理。
var ErrInsufficientData = errors.New("insufficient candle history")

// MinCandles 是产出快照所需的最少 K 线数（受 EMA/ADX 预热期约束）。
const MinCandles = 50

type Regime string

const (
	RegimeQuiet         Regime = "quiet"
	RegimeRanging       Regime = "ranging"
	RegimeTrending      Regime = "trending"
	RegimeVolatileTrend Regime = "volatile_trend"
)

type MACD struct {
	Line      float64
	Signal    float64
	Histogram float64
}

type Bollinger struct {
	Upper  float64
	Middle float64
	Lower  float64
	Width  float64
}

type ADX struct {
	Value   float64
	PlusDI  float64
	MinusDI float64
}

// Snapshot 是一次评估周期内某币种的全部指标输入，生成后不再修改。
type Snapshot struct {
	Coin      string
	Interval  string
	Price     float64
	RSI       float64
	MACD      MACD
	Bollinger Bollinger
	ATR       float64
	ADX       ADX
	Regime    Regime
}

// Compute 由 K 线序列计算快照。K 线不足时返回 ErrInsufficientData。
func Compute(coin, interval string, candles []market.Candle) (Snapshot, error) {
	if len(candles) < MinCandles {
		return Snapshot{}, ErrInsufficientData
	}
	closes := make([]float64, len(candles))
	highs := make([]float64, len(candles))
	lows := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
		highs[i] = c.High
		lows[i] = c.Low
	}

	rsi := lastValid(talib.Rsi(closes, 14))
	macdLine, macdSignal, macdHist := talib.Macd(closes, 12, 26, 9)
	upper, middle, lower := talib.BBands(closes, 20, 2, 2, talib.SMA)
	atr := lastValid(talib.Atr(highs, lows, closes, 14))
	adx := lastValid(talib.Adx(highs, lows, closes, 14))
	plusDI := lastValid(talib.PlusDI(highs, lows, closes, 14))
	minusDI := lastValid(talib.MinusDI(highs, lows, closes, 14))

	bb := Bollinger{
		Upper:  lastValid(upper),
		Middle: lastValid(middle),
		Lower:  lastValid(lower),
	}
	if bb.Middle > 0 {
		bb.Width = (bb.Upper - bb.Lower) / bb.Middle
	}

	snap := Snapshot{
		Coin:     coin,
		Interval: interval,
		Price:    closes[len(closes)-1],
		RSI:      rsi,
		MACD: MACD{
			Line:      lastValid(macdLine),
			Signal:    lastValid(macdSignal),
			Histogram: lastValid(macdHist),
		},
		Bollinger: bb,
		ATR:       math.Max(atr, 0),
		ADX: ADX{
			Value:   adx,
			PlusDI:  plusDI,
			MinusDI: minusDI,
		},
	}
	snap.Regime = classifyRegime(snap.ADX.Value, snap.Bollinger.Width)
	return snap, nil
}

// classifyRegime 按 ADX 与布林带宽分类行情状态。
func classifyRegime(adx, bbWidth float64) Regime {
	switch {
	case adx >= 25 && bbWidth >= 0.05:
		return RegimeVolatileTrend
	case adx >= 25:
		return RegimeTrending
	case bbWidth < 0.02:
		return RegimeQuiet
	default:
		return RegimeRanging
	}
}

// lastValid 返回序列末端最后一个非 NaN、非零预热值。
func lastValid(series []float64) float64 {
	for i := len(series) - 1; i >= 0; i-- {
		v := series[i]
		if !math.IsNaN(v) && !math.IsInf(v, 0) && v != 0 {
			return v
		}
	}
	return 0
}
