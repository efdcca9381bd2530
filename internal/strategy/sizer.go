package strategy

import (
	"strings"

	"github.com/shopspring/decimal"
)

// minNotionalUSD 是交易所允许的最小名义价值下限。
const minNotionalUSD = 10.0

// 各规则族的仓位折减系数，反映回测可靠度差异。
var ruleScaleFactors = map[string]float64{
	RuleR1MeanReversion: 1.0,
	RuleR2MeanReversion: 1.0,
	RuleR3Trend:         1.0,
	RuleR4Trend:         0.9,
	RuleR5Breakout:      0.7,
	RuleR6Sentiment:     0.6,
}

const contrarianScaleFactor = 0.5

// ScaleFactorFor 返回某信号的仓位折减系数。
func ScaleFactorFor(sig Signal) float64 {
	if sig.IsContrarian() {
		return contrarianScaleFactor
	}
	if f, ok := ruleScaleFactors[strings.TrimPrefix(sig.Rule, ContrarianPrefix)]; ok {
		return f
	}
	return 1.0
}

// SizeResult 是仓位测算结果。
type SizeResult struct {
	Size     float64
	Notional float64
	Margin   float64
}

// SizePosition 由可用余额与分配上限推导下单数量。
// 名义价值低于下限或数量舍入后非正时返回 false（放弃本次信号）。
func SizePosition(availableBalance float64, sig Signal, price float64, leverage int, maxAllocPct float64, sizeDecimals int) (SizeResult, bool) {
	if availableBalance <= 0 || price <= 0 || leverage <= 0 {
		return SizeResult{}, false
	}
	margin := availableBalance * maxAllocPct / 100 * ScaleFactorFor(sig)
	notional := margin * float64(leverage)
	if notional < minNotionalUSD {
		return SizeResult{}, false
	}
	size, _ := decimal.NewFromFloat(notional / price).
		RoundDown(int32(sizeDecimals)).
		Float64()
	if size <= 0 {
		return SizeResult{}, false
	}
	return SizeResult{Size: size, Notional: notional, Margin: margin}, true
}
