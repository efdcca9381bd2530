package strategy

import (
	"fmt"
	"math/rand"
	"strings"

	"hypertrader/internal/gateway/exchange"
	"hypertrader/internal/indicator"
	"hypertrader/internal/sentiment"
)

// 入场阈值。R5 的基础置信度刻意低于全局门槛：结构保留但默认不触发，
// 重新调参前不会产生实际交易。
const (
	MinEntryConfidence = 0.55

	baseMeanReversion = 0.60
	baseTrend         = 0.60
	baseBreakout      = 0.50
	baseSentimentOnly = 0.56

	confirm15mBonus    = 0.05
	sentimentRelaxStep = 5.0
	sentimentBonus     = 0.03
	diSpreadBonusSmall = 0.05
	diSpreadBonusLarge = 0.10
	transitionalMalus  = 0.03

	rsiOversold   = 30.0
	rsiOverbought = 70.0
	rsiMidpoint   = 50.0

	adxStrict       = 25.0
	adxTransitional = 20.0
	diSpreadSmall   = 10.0
	diSpreadLarge   = 20.0
	diSpreadRelaxed = 12.0

	squeezeWidth  = 0.015
	breakoutWidth = 0.040

	contrarianDiscount = 0.8
	contrarianFloor    = 0.50
)

// nearMissMaxFailures：差 1~2 个条件算"近失"，更多视为根本不接近。
const nearMissMaxFailures = 2

// EntryInput 汇总单币种一次入场评估需要的全部输入。
type EntryInput struct {
	Coin           string
	H1             indicator.Snapshot
	M15            *indicator.Snapshot
	Sentiment      *sentiment.Snapshot
	SqueezeForming bool
}

// EntryResult 的 SqueezeForming 是布林带收口闩锁的新值，由控制循环
// 写回 AgentState（评估本身不改状态）。
type EntryResult struct {
	Signal         *Signal
	NearMisses     []NearMiss
	SqueezeForming bool
}

// EntryEvaluator 持有入场评估的可调参数。
type EntryEvaluator struct {
	MinConfidence float64
	ContrarianPct float64
	Rand          func() float64
}

func NewEntryEvaluator(contrarianPct float64) *EntryEvaluator {
	return &EntryEvaluator{
		MinConfidence: MinEntryConfidence,
		ContrarianPct: contrarianPct,
		Rand:          rand.Float64,
	}
}

// Evaluate 按固定顺序跑全部入场规则，返回最多一个信号。
// 多条规则命中时取调整后置信度最高者，平手保留先命中的。
func (e *EntryEvaluator) Evaluate(in EntryInput) EntryResult {
	result := EntryResult{SqueezeForming: in.SqueezeForming}
	var candidates []Signal

	if c := e.meanReversionLong(in); c != nil {
		candidates = append(candidates, *c)
	}
	if c := e.meanReversionShort(in); c != nil {
		candidates = append(candidates, *c)
	}
	if c := e.trendLong(in); c != nil {
		candidates = append(candidates, *c)
	}
	if c := e.trendShort(in); c != nil {
		candidates = append(candidates, *c)
	}
	breakoutSig, latch := e.breakout(in)
	result.SqueezeForming = latch
	if breakoutSig != nil {
		candidates = append(candidates, *breakoutSig)
	}
	if len(candidates) == 0 {
		if c := e.sentimentOnly(in); c != nil {
			candidates = append(candidates, *c)
		}
	}

	best := pickBest(candidates)
	if best == nil {
		result.NearMisses = e.collectNearMisses(in)
		return result
	}
	if best.Confidence < e.MinConfidence {
		result.NearMisses = append(result.NearMisses, nearMissFromSignal(*best, in, "min-confidence"))
		return result
	}
	final, discardedAsNearMiss := e.maybeContrarian(*best, in)
	if final == nil {
		result.NearMisses = append(result.NearMisses, *discardedAsNearMiss)
		return result
	}
	result.Signal = final
	return result
}

func (e *EntryEvaluator) meanReversionLong(in EntryInput) *Signal {
	h := in.H1
	if !rangebound(h.Regime) || h.RSI >= rsiOversold {
		return nil
	}
	conf := baseMeanReversion
	reason := fmt.Sprintf("1h RSI=%.1f 超卖（%s 行情）", h.RSI, h.Regime)
	if in.M15 != nil && in.M15.RSI < rsiOversold+5 {
		conf += confirm15mBonus
		reason += fmt.Sprintf("，15m RSI=%.1f 确认", in.M15.RSI)
	}
	return &Signal{
		Coin:       in.Coin,
		Side:       exchange.SideLong,
		Rule:       RuleR1MeanReversion,
		Category:   CategoryMeanReversion,
		Confidence: conf,
		Reason:     reason,
	}
}

func (e *EntryEvaluator) meanReversionShort(in EntryInput) *Signal {
	h := in.H1
	if !rangebound(h.Regime) || h.RSI <= rsiOverbought {
		return nil
	}
	conf := baseMeanReversion
	reason := fmt.Sprintf("1h RSI=%.1f 超买（%s 行情）", h.RSI, h.Regime)
	if in.M15 != nil && in.M15.RSI > rsiOverbought-5 {
		conf += confirm15mBonus
		reason += fmt.Sprintf("，15m RSI=%.1f 确认", in.M15.RSI)
	}
	return &Signal{
		Coin:       in.Coin,
		Side:       exchange.SideShort,
		Rule:       RuleR2MeanReversion,
		Category:   CategoryMeanReversion,
		Confidence: conf,
		Reason:     reason,
	}
}

func (e *EntryEvaluator) trendLong(in EntryInput) *Signal {
	h := in.H1
	if !trendy(h.Regime) {
		return nil
	}
	if h.ADX.Value <= adxStrict || h.ADX.PlusDI <= h.ADX.MinusDI {
		return nil
	}
	rsiFloor := rsiMidpoint
	sentimentAssist := in.Sentiment != nil && in.Sentiment.ExtremeGreed()
	if sentimentAssist {
		rsiFloor -= sentimentRelaxStep
	}
	if h.RSI <= rsiFloor || h.MACD.Histogram <= 0 {
		return nil
	}
	spread := h.ADX.PlusDI - h.ADX.MinusDI
	conf := baseTrend + spreadBonus(spread)
	reason := fmt.Sprintf("ADX=%.1f 多头趋势，DI差=%.1f，MACD柱=%.4f", h.ADX.Value, spread, h.MACD.Histogram)
	if sentimentAssist {
		conf += sentimentBonus
		reason += "，极端看多情绪放宽 RSI 下限"
	}
	return &Signal{
		Coin:       in.Coin,
		Side:       exchange.SideLong,
		Rule:       RuleR3Trend,
		Category:   CategoryTrend,
		Confidence: conf,
		Reason:     reason,
	}
}

func (e *EntryEvaluator) trendShort(in EntryInput) *Signal {
	h := in.H1
	if !trendy(h.Regime) {
		return nil
	}
	if h.ADX.MinusDI <= h.ADX.PlusDI {
		return nil
	}
	spread := h.ADX.MinusDI - h.ADX.PlusDI
	// 空头趋势允许"过渡带"：ADX 略低于严格阈值时，足够宽的 DI 差
	// 仍然放行，但置信度打折。
	transitional := false
	switch {
	case h.ADX.Value > adxStrict:
	case h.ADX.Value > adxTransitional && spread >= diSpreadRelaxed:
		transitional = true
	default:
		return nil
	}
	rsiCeil := rsiMidpoint
	sentimentAssist := in.Sentiment != nil && in.Sentiment.ExtremeFear()
	if sentimentAssist {
		rsiCeil += sentimentRelaxStep
	}
	if h.RSI >= rsiCeil || h.MACD.Histogram >= 0 {
		return nil
	}
	conf := baseTrend + spreadBonus(spread)
	reason := fmt.Sprintf("ADX=%.1f 空头趋势，DI差=%.1f，MACD柱=%.4f", h.ADX.Value, spread, h.MACD.Histogram)
	if transitional {
		conf -= transitionalMalus
		reason += "（ADX 过渡带，DI 差确认）"
	}
	if sentimentAssist {
		conf += sentimentBonus
		reason += "，极端看空情绪放宽 RSI 上限"
	}
	return &Signal{
		Coin:       in.Coin,
		Side:       exchange.SideShort,
		Rule:       RuleR4Trend,
		Category:   CategoryTrend,
		Confidence: conf,
		Reason:     reason,
	}
}

// breakout 实现两段式闩锁：先收口置位，后扩张且价格突破布林带才触发。
// 返回新的闩锁值。
func (e *EntryEvaluator) breakout(in EntryInput) (*Signal, bool) {
	h := in.H1
	latch := in.SqueezeForming
	if h.Bollinger.Width > 0 && h.Bollinger.Width < squeezeWidth {
		return nil, true
	}
	if !latch || h.Bollinger.Width <= breakoutWidth {
		return nil, latch
	}
	var side exchange.Side
	switch {
	case h.Price > h.Bollinger.Upper:
		side = exchange.SideLong
	case h.Price < h.Bollinger.Lower:
		side = exchange.SideShort
	default:
		return nil, latch
	}
	return &Signal{
		Coin:       in.Coin,
		Side:       side,
		Rule:       RuleR5Breakout,
		Category:   CategoryBreakout,
		Confidence: baseBreakout,
		Reason:     fmt.Sprintf("布林带收口后扩张（宽=%.4f），价格突破%s轨", h.Bollinger.Width, bandName(side)),
	}, false
}

func (e *EntryEvaluator) sentimentOnly(in EntryInput) *Signal {
	s := in.Sentiment
	if s == nil {
		return nil
	}
	h := in.H1
	if s.ExtremeGreed() && h.ADX.PlusDI > h.ADX.MinusDI {
		return &Signal{
			Coin:       in.Coin,
			Side:       exchange.SideLong,
			Rule:       RuleR6Sentiment,
			Category:   CategorySentiment,
			Confidence: baseSentimentOnly,
			Reason:     fmt.Sprintf("极端看多情绪（galaxy=%.0f, 多空=%.0f%%）+DI 偏多", s.GalaxyScore, s.SentimentPct),
		}
	}
	if s.ExtremeFear() && h.ADX.MinusDI > h.ADX.PlusDI {
		return &Signal{
			Coin:       in.Coin,
			Side:       exchange.SideShort,
			Rule:       RuleR6Sentiment,
			Category:   CategorySentiment,
			Confidence: baseSentimentOnly,
			Reason:     fmt.Sprintf("极端看空情绪（galaxy=%.0f, 多空=%.0f%%）+DI 偏空", s.GalaxyScore, s.SentimentPct),
		}
	}
	return nil
}

// maybeContrarian 以配置概率把候选信号反向：要求情绪极端且 RSI 与
// 候选方向同向拉伸。折扣后低于下限的候选弃用并记为近失。
func (e *EntryEvaluator) maybeContrarian(sig Signal, in EntryInput) (*Signal, *NearMiss) {
	s := in.Sentiment
	if s == nil || e.ContrarianPct <= 0 {
		return &sig, nil
	}
	stretched := (sig.Side == exchange.SideLong && s.ExtremeGreed() && in.H1.RSI > rsiOverbought) ||
		(sig.Side == exchange.SideShort && s.ExtremeFear() && in.H1.RSI < rsiOversold)
	if !stretched {
		return &sig, nil
	}
	if e.Rand() >= e.ContrarianPct/100 {
		return &sig, nil
	}
	flipped := sig
	flipped.Side = sig.Side.Opposite()
	flipped.Rule = ContrarianPrefix + sig.Rule
	flipped.Category = CategoryContrarian
	flipped.Confidence = sig.Confidence * contrarianDiscount
	flipped.Reason = fmt.Sprintf("反向翻转 %s：情绪与 RSI 同向极端（原因：%s）", sig.Rule, sig.Reason)
	if flipped.Confidence < contrarianFloor {
		nm := nearMissFromSignal(flipped, in, "contrarian-floor")
		return nil, &nm
	}
	return &flipped, nil
}

// collectNearMisses 在无信号的周期里检查各规则族"差一点"的方向。
// 失败条件超过两个按"不接近"忽略。
func (e *EntryEvaluator) collectNearMisses(in EntryInput) []NearMiss {
	h := in.H1
	var out []NearMiss

	record := func(rule string, side exchange.Side, failed []string) {
		if len(failed) == 0 || len(failed) > nearMissMaxFailures {
			return
		}
		out = append(out, NearMiss{
			Coin:      in.Coin,
			Side:      side,
			Rule:      rule,
			Price:     h.Price,
			Reason:    fmt.Sprintf("差 %d 个条件未触发", len(failed)),
			BlockedBy: strings.Join(failed, ","),
			Snapshot:  h,
		})
	}

	var failed []string
	if !rangebound(h.Regime) {
		failed = append(failed, "regime")
	}
	if h.RSI >= rsiOversold {
		failed = append(failed, "rsi-oversold")
	}
	record(RuleR1MeanReversion, exchange.SideLong, failed)

	failed = nil
	if !rangebound(h.Regime) {
		failed = append(failed, "regime")
	}
	if h.RSI <= rsiOverbought {
		failed = append(failed, "rsi-overbought")
	}
	record(RuleR2MeanReversion, exchange.SideShort, failed)

	failed = nil
	if !trendy(h.Regime) {
		failed = append(failed, "regime")
	}
	if h.ADX.Value <= adxStrict {
		failed = append(failed, "adx")
	}
	if h.ADX.PlusDI <= h.ADX.MinusDI {
		failed = append(failed, "di-direction")
	}
	if h.RSI <= rsiMidpoint {
		failed = append(failed, "rsi-midpoint")
	}
	if h.MACD.Histogram <= 0 {
		failed = append(failed, "macd-histogram")
	}
	record(RuleR3Trend, exchange.SideLong, failed)

	failed = nil
	if !trendy(h.Regime) {
		failed = append(failed, "regime")
	}
	shortSpread := h.ADX.MinusDI - h.ADX.PlusDI
	if h.ADX.Value <= adxStrict && !(h.ADX.Value > adxTransitional && shortSpread >= diSpreadRelaxed) {
		failed = append(failed, "adx")
	}
	if h.ADX.MinusDI <= h.ADX.PlusDI {
		failed = append(failed, "di-direction")
	}
	if h.RSI >= rsiMidpoint {
		failed = append(failed, "rsi-midpoint")
	}
	if h.MACD.Histogram >= 0 {
		failed = append(failed, "macd-histogram")
	}
	record(RuleR4Trend, exchange.SideShort, failed)

	if s := in.Sentiment; s != nil {
		failed = nil
		if !s.ExtremeGreed() {
			failed = append(failed, "sentiment-extreme")
		}
		if h.ADX.PlusDI <= h.ADX.MinusDI {
			failed = append(failed, "di-lean")
		}
		record(RuleR6Sentiment, exchange.SideLong, failed)

		failed = nil
		if !s.ExtremeFear() {
			failed = append(failed, "sentiment-extreme")
		}
		if h.ADX.MinusDI <= h.ADX.PlusDI {
			failed = append(failed, "di-lean")
		}
		record(RuleR6Sentiment, exchange.SideShort, failed)
	}
	return out
}

func nearMissFromSignal(sig Signal, in EntryInput, blockedBy string) NearMiss {
	return NearMiss{
		Coin:      sig.Coin,
		Side:      sig.Side,
		Rule:      sig.Rule,
		Price:     in.H1.Price,
		Reason:    sig.Reason,
		BlockedBy: blockedBy,
		Snapshot:  in.H1,
	}
}

func pickBest(candidates []Signal) *Signal {
	var best *Signal
	for i := range candidates {
		if best == nil || candidates[i].Confidence > best.Confidence {
			best = &candidates[i]
		}
	}
	return best
}

func spreadBonus(spread float64) float64 {
	switch {
	case spread >= diSpreadLarge:
		return diSpreadBonusLarge
	case spread >= diSpreadSmall:
		return diSpreadBonusSmall
	default:
		return 0
	}
}

func rangebound(r indicator.Regime) bool {
	return r == indicator.RegimeQuiet || r == indicator.RegimeRanging
}

func trendy(r indicator.Regime) bool {
	return r == indicator.RegimeTrending || r == indicator.RegimeVolatileTrend
}

func bandName(side exchange.Side) string {
	if side == exchange.SideLong {
		return "上"
	}
	return "下"
}
