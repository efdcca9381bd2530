package strategy

import (
	"fmt"
	"strings"
	"time"

	"hypertrader/internal/gateway/exchange"
	"hypertrader/internal/indicator"
)

// 出场规则标识，编号即优先级。
const (
	ExitRuleTrailing   = "EXIT-1-trailing"
	ExitRuleTakeProfit = "EXIT-2-takeprofit"
	ExitRuleStopLoss   = "EXIT-3-stoploss"
	ExitRuleReversal   = "EXIT-4-reversal"
	ExitRuleTimeStop   = "EXIT-5-timestop"
)

// ExitParams 是一组平仓阈值（均为 PnL%）。
type ExitParams struct {
	ArmPct        float64
	TriggerPct    float64
	TakeProfitPct float64
	StopLossPct   float64
	TimeStop      time.Duration
}

var (
	normalExitParams   = ExitParams{ArmPct: 1.5, TriggerPct: 0.5, TakeProfitPct: 5.0, StopLossPct: -2.0, TimeStop: 8 * time.Hour}
	volatileExitParams = ExitParams{ArmPct: 2.0, TriggerPct: 0.8, TakeProfitPct: 8.0, StopLossPct: -3.0, TimeStop: 8 * time.Hour}
	// 反向仓位全程收紧：更早落袋、更小容错、更短持仓。
	contrarianExitParams = ExitParams{ArmPct: 1.0, TriggerPct: 0.3, TakeProfitPct: 3.0, StopLossPct: -1.5, TimeStop: 4 * time.Hour}
)

// weakRuleStopLoss：已知偏弱的入场规则给更少的回撤空间。
const weakRuleStopLoss = -1.5

const (
	reversalADXFloor = 18.0
	reversalRSIHigh  = 75.0
	reversalRSILow   = 25.0
	flatBandPct      = 0.3
)

// ExitInput 是一次平仓评估的全部输入；评估是纯函数，可重复调用。
type ExitInput struct {
	Position     Position
	Price        float64
	H1           *indicator.Snapshot
	PeakPnlPct   float64
	VolatileCoin bool
	Now          time.Time
}

type exitCheck struct {
	rule  string
	match func(in ExitInput, p ExitParams, pnl float64) (bool, string)
}

// exitChecks 按固定优先级排列，首个命中者生效。
var exitChecks = []exitCheck{
	{ExitRuleTrailing, matchTrailing},
	{ExitRuleTakeProfit, matchTakeProfit},
	{ExitRuleStopLoss, matchStopLoss},
	{ExitRuleReversal, matchReversal},
	{ExitRuleTimeStop, matchTimeStop},
}

// EvaluateExit 对单个持仓跑有序出场检查，无命中返回 nil。
func EvaluateExit(in ExitInput) *ExitSignal {
	p := exitParamsFor(in)
	pnl := in.Position.PnlPct(in.Price)
	for _, check := range exitChecks {
		if ok, reason := check.match(in, p, pnl); ok {
			return &ExitSignal{Rule: check.rule, Reason: reason}
		}
	}
	return nil
}

func exitParamsFor(in ExitInput) ExitParams {
	if in.Position.Category == CategoryContrarian {
		return contrarianExitParams
	}
	p := normalExitParams
	if in.VolatileCoin {
		p = volatileExitParams
	} else if in.Position.Rule == RuleR6Sentiment {
		p.StopLossPct = weakRuleStopLoss
	}
	return p
}

func matchTrailing(in ExitInput, p ExitParams, pnl float64) (bool, string) {
	if in.PeakPnlPct < p.ArmPct || pnl >= p.TriggerPct {
		return false, ""
	}
	return true, fmt.Sprintf("峰值 %.2f%% 回落到 %.2f%%（触发线 %.2f%%）", in.PeakPnlPct, pnl, p.TriggerPct)
}

func matchTakeProfit(in ExitInput, p ExitParams, pnl float64) (bool, string) {
	if pnl < p.TakeProfitPct {
		return false, ""
	}
	return true, fmt.Sprintf("PnL %.2f%% 达到硬止盈 %.2f%%", pnl, p.TakeProfitPct)
}

func matchStopLoss(in ExitInput, p ExitParams, pnl float64) (bool, string) {
	if pnl > p.StopLossPct {
		return false, ""
	}
	return true, fmt.Sprintf("PnL %.2f%% 触发止损 %.2f%%", pnl, p.StopLossPct)
}

func matchReversal(in ExitInput, p ExitParams, pnl float64) (bool, string) {
	h := in.H1
	if h == nil {
		return false, ""
	}
	pos := in.Position
	if trendOrigin(pos.Rule) {
		if h.ADX.Value < reversalADXFloor {
			return true, fmt.Sprintf("ADX=%.1f 跌破 %.0f，趋势失效", h.ADX.Value, reversalADXFloor)
		}
		diAgainst := (pos.Side == exchange.SideLong && h.ADX.MinusDI > h.ADX.PlusDI) ||
			(pos.Side == exchange.SideShort && h.ADX.PlusDI > h.ADX.MinusDI)
		if diAgainst {
			return true, "DI 方向翻转，与持仓相反"
		}
	}
	if pos.Side == exchange.SideLong && h.RSI >= reversalRSIHigh {
		return true, fmt.Sprintf("RSI=%.1f 达到反向极值", h.RSI)
	}
	if pos.Side == exchange.SideShort && h.RSI <= reversalRSILow {
		return true, fmt.Sprintf("RSI=%.1f 达到反向极值", h.RSI)
	}
	return false, ""
}

func matchTimeStop(in ExitInput, p ExitParams, pnl float64) (bool, string) {
	if in.Position.OpenedAt.IsZero() {
		return false, ""
	}
	held := in.Now.Sub(in.Position.OpenedAt)
	if held <= p.TimeStop {
		return false, ""
	}
	if pnl >= flatBandPct || pnl <= -flatBandPct {
		return false, ""
	}
	return true, fmt.Sprintf("持仓 %s 且 PnL %.2f%% 持续横盘", held.Truncate(time.Minute), pnl)
}

// trendOrigin 判断仓位是否来自趋势类规则（含被翻转的趋势信号）。
func trendOrigin(rule string) bool {
	base := strings.TrimPrefix(rule, ContrarianPrefix)
	return base == RuleR3Trend || base == RuleR4Trend
}
