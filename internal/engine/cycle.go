package engine

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"hypertrader/internal/gateway/exchange"
	"hypertrader/internal/indicator"
	"hypertrader/internal/logger"
	"hypertrader/internal/market"
	"hypertrader/internal/ml"
	"hypertrader/internal/pkg/retry"
	"hypertrader/internal/risk"
	"hypertrader/internal/sentiment"
	"hypertrader/internal/store"
	"hypertrader/internal/strategy"
)

// scanConcurrency 限制同时拉取 K 线的币种数。
const scanConcurrency = 4

type coinScan struct {
	h1  indicator.Snapshot
	m15 *indicator.Snapshot
	err error
}

// cycle 执行一个完整评估周期。返回非空 StopReason 表示风控要求终止；
// 返回 error 表示周期失败（账户状态都拿不到，什么也没做成）。
func (e *Engine) cycle(ctx context.Context) (risk.StopReason, error) {
	e.mu.Lock()
	e.session.NoteCycle()
	cycleNo := e.session.Cycles
	e.mu.Unlock()
	logger.Debugf("[engine] 周期 #%d 开始", cycleNo)

	balance, err := retry.Do2(ctx, "刷新余额", retry.DefaultAttempts, retry.DefaultDelay,
		func(ctx context.Context) (exchange.Balance, error) { return e.gw.FetchBalance(ctx) })
	if err != nil {
		return risk.StopNone, fmt.Errorf("刷新余额失败: %w", err)
	}
	positions, err := retry.Do2(ctx, "刷新持仓", retry.DefaultAttempts, retry.DefaultDelay,
		func(ctx context.Context) ([]exchange.Position, error) { return e.gw.FetchPositions(ctx) })
	if err != nil {
		return risk.StopNone, fmt.Errorf("刷新持仓失败: %w", err)
	}
	tracked := e.reconcilePositions(positions)

	scans := e.scanCoins(ctx)
	if e.cfg.Agent.VolatilityDetection {
		e.tracker.UpdateGlobal(e.cfg.Agent.Coins)
	}
	e.mu.Lock()
	e.volState = e.tracker.Global()
	e.pollMult = e.multiplier()
	e.mu.Unlock()

	e.evaluateExits(ctx, tracked, scans)

	now := e.clock()
	e.mu.Lock()
	stop := e.governor.Check(e.session, now)
	e.mu.Unlock()
	if stop != risk.StopNone {
		return stop, nil
	}

	e.tryEnter(ctx, balance, scans)

	if now.Sub(e.lastReconcile) >= reconcileEvery {
		e.lastReconcile = now
		e.recorder.Reconcile(ctx, e.price)
		e.flushLessons()
	}
	return risk.StopNone, nil
}

// scanCoins 并发拉取各币 1h/15m K 线并计算指标快照。单币失败只跳过
// 该币；ATR 观察在收集完成后按配置顺序单线程写入。
func (e *Engine) scanCoins(ctx context.Context) map[string]coinScan {
	coins := e.cfg.Agent.Coins
	results := make([]coinScan, len(coins))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(scanConcurrency)
	for i, coin := range coins {
		i, coin := i, coin
		g.Go(func() error {
			results[i] = e.scanOne(gctx, coin)
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[string]coinScan, len(coins))
	for i, coin := range coins {
		sc := results[i]
		if sc.err != nil {
			logger.Warnf("[engine] %s 本周期跳过: %v", coin, sc.err)
			continue
		}
		key := strings.ToUpper(coin)
		out[key] = sc
		e.tracker.Observe(key, sc.h1.ATR)
		e.prices.Set(key, sc.h1.Price)
	}
	return out
}

func (e *Engine) scanOne(ctx context.Context, coin string) coinScan {
	candles1h, err := retry.Do2(ctx, "拉取 1h K线 "+coin, retry.DefaultAttempts, retry.DefaultDelay,
		func(ctx context.Context) ([]market.Candle, error) {
			return e.gw.FetchCandles(ctx, coin, "1h", candleLimit1h)
		})
	if err != nil {
		return coinScan{err: err}
	}
	h1, err := indicator.Compute(coin, "1h", candles1h)
	if err != nil {
		return coinScan{err: err}
	}
	sc := coinScan{h1: h1}

	// 15m 仅用作确认项，失败不影响主流程。
	candles15m, err := e.gw.FetchCandles(ctx, coin, "15m", candleLimit15m)
	if err == nil {
		if m15, err := indicator.Compute(coin, "15m", candles15m); err == nil {
			sc.m15 = &m15
		}
	} else {
		logger.Debugf("[engine] %s 15m K线拉取失败，跳过确认: %v", coin, err)
	}
	return sc
}

// reconcilePositions 用交易所持仓校准本地溯源表：数量与开仓价以交易所
// 为准，规则归属以本地为准。外部平掉的仓位清理状态；本进程之外开的
// 仓位按普通仓位收养。
func (e *Engine) reconcilePositions(positions []exchange.Position) []strategy.Position {
	now := e.clock()
	onExchange := make(map[string]exchange.Position, len(positions))
	for _, p := range positions {
		onExchange[strings.ToUpper(p.Coin)] = p
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for coin := range e.meta {
		if _, ok := onExchange[coin]; !ok {
			logger.Warnf("[engine] %s 持仓已在外部被平掉，清理本地状态", coin)
			e.state.OnExit(coin)
			delete(e.meta, coin)
			delete(e.tradeIDs, coin)
			delete(e.lastPnl, coin)
		}
	}
	out := make([]strategy.Position, 0, len(onExchange))
	for coin, p := range onExchange {
		m, ok := e.meta[coin]
		if !ok {
			openedAt := p.OpenedAt
			if openedAt.IsZero() {
				openedAt = now
			}
			m = strategy.Position{Coin: coin, OpenedAt: openedAt}
			e.state.OnEntry(coin, openedAt)
			logger.Warnf("[engine] 收养外部持仓 %s %s size=%.6f（按普通仓位管理）", coin, p.Side, p.Size)
		}
		m.Coin = coin
		m.Side = p.Side
		m.EntryPrice = p.EntryPrice
		m.Size = p.Size
		if p.Leverage > 0 {
			m.Leverage = p.Leverage
		}
		e.meta[coin] = m
		out = append(out, m)
	}
	return out
}

// trackedPosition 把交易所持仓换成带规则溯源的本地视图。
func (e *Engine) trackedPosition(p exchange.Position) strategy.Position {
	coin := strings.ToUpper(p.Coin)
	e.mu.RLock()
	m, ok := e.meta[coin]
	e.mu.RUnlock()
	if ok {
		return m
	}
	return strategy.Position{
		Coin:       coin,
		Side:       p.Side,
		EntryPrice: p.EntryPrice,
		Size:       p.Size,
		Leverage:   p.Leverage,
		OpenedAt:   p.OpenedAt,
	}
}

// evaluateExits 逐仓跑出场规则，首个命中即平仓。
func (e *Engine) evaluateExits(ctx context.Context, tracked []strategy.Position, scans map[string]coinScan) {
	now := e.clock()
	for _, pos := range tracked {
		price, err := e.price(ctx, pos.Coin)
		if err != nil {
			logger.Warnf("[engine] %s 取价失败，本周期跳过出场检查: %v", pos.Coin, err)
			continue
		}
		pnl := pos.PnlPct(price)
		e.mu.Lock()
		e.state.UpdatePeak(pos.Coin, pnl)
		peak := e.state.PeakPnlByCoin[pos.Coin]
		e.lastPnl[pos.Coin] = pnl
		e.mu.Unlock()

		var h1 *indicator.Snapshot
		if sc, ok := scans[pos.Coin]; ok {
			snap := sc.h1
			h1 = &snap
		}
		sig := strategy.EvaluateExit(strategy.ExitInput{
			Position:     pos,
			Price:        price,
			H1:           h1,
			PeakPnlPct:   peak,
			VolatileCoin: e.cfg.Agent.IsVolatileCoin(pos.Coin),
			Now:          now,
		})
		if sig == nil {
			continue
		}
		logger.Infof("[engine] %s 触发出场 %s: %s", pos.Coin, sig.Rule, sig.Reason)
		res, err := retry.Do2(ctx, "平仓 "+pos.Coin, retry.DefaultAttempts, retry.DefaultDelay,
			func(ctx context.Context) (exchange.OrderResult, error) { return e.gw.ClosePosition(ctx, pos.Coin) })
		if err != nil {
			logger.Errorf("[engine] 平仓 %s 失败，下周期重试: %v", pos.Coin, err)
			continue
		}
		e.settleClose(pos, res, sig.Rule, sig.Reason)
	}
}

// settleClose 把一次平仓成交记入会话、状态与数据库。
func (e *Engine) settleClose(pos strategy.Position, res exchange.OrderResult, exitRule, reason string) {
	fill := res.FilledPx
	if fill <= 0 {
		fill = pos.EntryPrice
	}
	pnlPct := pos.PnlPct(fill)
	pnlUSD := (fill - pos.EntryPrice) * pos.Size
	if pos.Side == exchange.SideShort {
		pnlUSD = -pnlUSD
	}
	contrarian := pos.Category == strategy.CategoryContrarian

	e.mu.Lock()
	e.session.RecordClose(pnlUSD, contrarian)
	e.state.OnExit(pos.Coin)
	tradeID := e.tradeIDs[pos.Coin]
	delete(e.meta, pos.Coin)
	delete(e.tradeIDs, pos.Coin)
	delete(e.lastPnl, pos.Coin)
	total := e.session.RealizedPnlUSD
	e.mu.Unlock()

	logger.Infof("[engine] 平仓成交 %s %s px=%.4f pnl=%+.2f USD (%+.2f%%)，会话累计 %+.2f USD",
		pos.Coin, pos.Side, fill, pnlUSD, pnlPct, total)
	e.tg.Notify(fmt.Sprintf("📕 平仓 %s %s @%.4f\n规则: %s\n原因: %s\n盈亏: %+.2f USD (%+.2f%%)",
		pos.Coin, pos.Side, fill, exitRule, reason, pnlUSD, pnlPct))
	if e.db != nil && tradeID > 0 {
		if err := e.db.LogTradeClose(tradeID, exitRule, fill, pnlUSD, pnlPct, e.clock()); err != nil {
			logger.Warnf("[engine] 平仓落库失败: %v", err)
		}
	}
}

// tryEnter 单决策点：全币评估后至多开一仓。
func (e *Engine) tryEnter(ctx context.Context, balance exchange.Balance, scans map[string]coinScan) {
	a := e.cfg.Agent
	e.mu.RLock()
	open := len(e.meta)
	e.mu.RUnlock()
	if a.MaxPositions > 0 && open >= a.MaxPositions {
		logger.Debugf("[engine] 持仓已满（%d/%d），跳过入场", open, a.MaxPositions)
		return
	}

	var sentiments map[string]sentiment.Snapshot
	if e.sent != nil {
		sentiments = e.sent.Fetch(ctx, a.Coins)
	}

	var best *strategy.Signal
	var bestScan coinScan
	for _, coin := range a.Coins {
		key := strings.ToUpper(coin)
		sc, ok := scans[key]
		if !ok {
			continue
		}
		e.mu.RLock()
		_, hasPosition := e.meta[key]
		squeeze := e.state.SqueezeFormingBy[key]
		e.mu.RUnlock()
		if hasPosition {
			continue
		}

		in := strategy.EntryInput{
			Coin:           key,
			H1:             sc.h1,
			M15:            sc.m15,
			SqueezeForming: squeeze,
		}
		if snap, ok := sentiments[key]; ok {
			s := snap
			in.Sentiment = &s
		}
		res := e.entry.Evaluate(in)
		e.mu.Lock()
		e.state.SqueezeFormingBy[key] = res.SqueezeForming
		e.mu.Unlock()
		e.recorder.RecordAll(res.NearMisses)
		if res.Signal == nil {
			continue
		}

		sig := *res.Signal
		blended := e.blend(ctx, sig, sc, in.Sentiment)
		if blended < e.entry.MinConfidence {
			logger.Infof("[engine] %s %s 融合后置信度 %.3f 低于门槛，放弃", key, sig.Rule, blended)
			e.recorder.Record(strategy.NearMiss{
				Coin:      key,
				Side:      sig.Side,
				Rule:      sig.Rule,
				Price:     sc.h1.Price,
				Reason:    sig.Reason,
				BlockedBy: "ml-blend",
				Snapshot:  sc.h1,
			})
			continue
		}
		sig.Confidence = blended
		if best == nil || sig.Confidence > best.Confidence {
			s := sig
			best = &s
			bestScan = sc
		}
	}
	if best == nil {
		return
	}

	price, err := e.price(ctx, best.Coin)
	if err != nil {
		logger.Warnf("[engine] %s 取价失败，放弃本次入场: %v", best.Coin, err)
		return
	}
	sizing, ok := strategy.SizePosition(balance.Available, *best, price,
		a.Leverage, a.MaxAllocPct, a.SizeDecimalsFor(best.Coin))
	if !ok {
		logger.Infof("[engine] %s %s 仓位测算不满足最小名义价值，放弃（余额 %.2f）",
			best.Coin, best.Rule, balance.Available)
		return
	}

	logger.Infof("[engine] 入场决策 %s %s %s conf=%.3f size=%.6f notional=%.2f: %s",
		best.Coin, best.Side, best.Rule, best.Confidence, sizing.Size, sizing.Notional, best.Reason)
	res, err := retry.Do2(ctx, "开仓 "+best.Coin, retry.DefaultAttempts, retry.DefaultDelay,
		func(ctx context.Context) (exchange.OrderResult, error) {
			return e.gw.PlaceMarketOrder(ctx, exchange.OrderRequest{
				Coin:        best.Coin,
				Side:        best.Side,
				Size:        sizing.Size,
				Leverage:    a.Leverage,
				SlippageBps: a.SlippageBps,
			})
		})
	if err != nil {
		logger.Errorf("[engine] 开仓 %s 失败: %v", best.Coin, err)
		return
	}

	now := e.clock()
	fill := res.FilledPx
	if fill <= 0 {
		fill = price
	}
	pos := strategy.Position{
		Coin:       best.Coin,
		Side:       best.Side,
		EntryPrice: fill,
		Size:       res.FilledSz,
		Leverage:   a.Leverage,
		OpenedAt:   now,
		Rule:       best.Rule,
		Category:   best.Category,
	}
	if pos.Size <= 0 {
		pos.Size = sizing.Size
	}
	e.mu.Lock()
	e.meta[best.Coin] = pos
	e.state.OnEntry(best.Coin, now)
	e.mu.Unlock()

	logger.Infof("[engine] 开仓成交 %s %s px=%.4f size=%.6f", best.Coin, best.Side, fill, pos.Size)
	e.tg.Notify(fmt.Sprintf("📗 开仓 %s %s @%.4f\n规则: %s (conf=%.3f)\n数量: %.6f（名义 %.2f USD）\n%s",
		best.Coin, best.Side, fill, best.Rule, best.Confidence, pos.Size, sizing.Notional, best.Reason))
	if e.db != nil {
		tradeID, err := e.db.LogTradeOpen(store.TradeOpen{
			SessionID:  e.session.ID,
			Signal:     *best,
			EntryPrice: fill,
			Size:       pos.Size,
			Leverage:   a.Leverage,
			Notional:   sizing.Notional,
			Snapshot:   bestScan.h1,
			OpenedAt:   now,
			Simulated:  res.Simulated,
		})
		if err != nil {
			logger.Warnf("[engine] 开仓落库失败: %v", err)
		} else {
			e.mu.Lock()
			e.tradeIDs[best.Coin] = tradeID
			e.mu.Unlock()
		}
	}
}

// blend 调用外部评分器融合置信度；评分器不可用时原样返回。
func (e *Engine) blend(ctx context.Context, sig strategy.Signal, sc coinScan, snap *sentiment.Snapshot) float64 {
	if e.scorer == nil {
		return sig.Confidence
	}
	h := sc.h1
	req := ml.ScoreRequest{
		Coin:          sig.Coin,
		Side:          string(sig.Side),
		Rule:          sig.Rule,
		ADX:           h.ADX.Value,
		PlusDI:        h.ADX.PlusDI,
		MinusDI:       h.ADX.MinusDI,
		RSI:           h.RSI,
		MACDHistogram: h.MACD.Histogram,
		BBWidth:       h.Bollinger.Width,
		Regime:        string(h.Regime),
	}
	if h.Price > 0 {
		req.ATRPct = h.ATR / h.Price * 100
	}
	if snap != nil {
		req.GalaxyScore = snap.GalaxyScore
		req.SentimentPct = snap.SentimentPct
		req.AltRank = snap.AltRank
	}
	res, err := e.scorer.Score(ctx, req)
	if err != nil {
		logger.Warnf("[engine] 评分器调用失败，沿用规则置信度: %v", err)
		return sig.Confidence
	}
	return ml.Blend(sig.Confidence, res)
}
