// Package strategy 实现入场/出场规则评估与仓位测算。评估函数是
// 纯函数：输入指标快照与每币状态，输出信号，不做任何 I/O。
package strategy

import (
	"time"

	"hypertrader/internal/gateway/exchange"
	"hypertrader/internal/indicator"
)

// 规则标识。命名与历史回测数据、ML 评分器的特征编码保持一致。
const (
	RuleR1MeanReversion = "R1-mean-reversion"
	RuleR2MeanReversion = "R2-mean-reversion"
	RuleR3Trend         = "R3-trend"
	RuleR4Trend         = "R4-trend"
	RuleR5Breakout      = "R5-breakout"
	RuleR6Sentiment     = "R6-sentiment"

	// ContrarianPrefix 标记被反向翻转的信号，如 "C-R3-trend"。
	ContrarianPrefix = "C-"
)

type Category string

const (
	CategoryTrend         Category = "trend"
	CategoryMeanReversion Category = "mean-reversion"
	CategoryBreakout      Category = "breakout"
	CategorySentiment     Category = "sentiment-confirmed"
	CategoryContrarian    Category = "contrarian"
)

// Signal 是一次入场候选，生命周期不超过一个评估周期。
type Signal struct {
	Coin       string
	Side       exchange.Side
	Rule       string
	Category   Category
	Confidence float64
	Reason     string
}

// IsContrarian 判断信号是否为反向信号。
func (s Signal) IsContrarian() bool {
	return s.Category == CategoryContrarian
}

// ExitSignal 是一次平仓决定。
type ExitSignal struct {
	Rule   string
	Reason string
}

// Position 是控制循环视角的持仓：交易所数据加策略溯源。
type Position struct {
	Coin       string
	Side       exchange.Side
	EntryPrice float64
	Size       float64
	Leverage   int
	OpenedAt   time.Time
	Rule       string
	Category   Category
}

// PnlPct 返回以开仓价为基准的价格涨跌百分比（多头为正向）。
func (p Position) PnlPct(price float64) float64 {
	if p.EntryPrice <= 0 {
		return 0
	}
	pct := (price - p.EntryPrice) / p.EntryPrice * 100
	if p.Side == exchange.SideShort {
		pct = -pct
	}
	return pct
}

// NearMiss 记录一次"差一点就成交"的被拦截信号，用于事后复盘
// 过滤器的判断是否正确。
type NearMiss struct {
	Coin      string
	Side      exchange.Side
	Rule      string
	Price     float64
	Timestamp time.Time
	Reason    string
	BlockedBy string
	Snapshot  indicator.Snapshot
}

// NearMissOutcome 是等待期结束后对近失信号的反事实结算。
type NearMissOutcome struct {
	NearMiss
	ResolvedAt   time.Time
	PnlPct       float64
	WouldHaveWon bool
}

// AgentState 保存跨周期的每币状态，仅由控制循环写入。
type AgentState struct {
	PeakPnlByCoin    map[string]float64
	SqueezeFormingBy map[string]bool
	EntryTimeByCoin  map[string]time.Time
}

func NewAgentState() *AgentState {
	return &AgentState{
		PeakPnlByCoin:    map[string]float64{},
		SqueezeFormingBy: map[string]bool{},
		EntryTimeByCoin:  map[string]time.Time{},
	}
}

// OnEntry 在开仓成交后重置该币的峰值与入场时间。
func (st *AgentState) OnEntry(coin string, at time.Time) {
	st.PeakPnlByCoin[coin] = 0
	st.EntryTimeByCoin[coin] = at
}

// OnExit 在平仓成交后清理该币的全部状态。
func (st *AgentState) OnExit(coin string) {
	delete(st.PeakPnlByCoin, coin)
	delete(st.EntryTimeByCoin, coin)
}

// UpdatePeak 抬升该币的未实现盈亏高水位。
func (st *AgentState) UpdatePeak(coin string, pnlPct float64) {
	if pnlPct > st.PeakPnlByCoin[coin] {
		st.PeakPnlByCoin[coin] = pnlPct
	}
}
