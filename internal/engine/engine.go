// Package engine 实现单线程周期控制循环：刷新账户 → 出场 → 风控 →
// 入场 → 波动节奏调整 → 休眠。所有交易决策都发生在循环线程内，
// 其他 goroutine（行情推送、状态接口）只做只读或写缓存。
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"hypertrader/internal/config"
	"hypertrader/internal/gateway/exchange"
	"hypertrader/internal/logger"
	"hypertrader/internal/market"
	"hypertrader/internal/ml"
	"hypertrader/internal/nearmiss"
	"hypertrader/internal/notifier"
	"hypertrader/internal/pkg/retry"
	"hypertrader/internal/risk"
	"hypertrader/internal/sentiment"
	"hypertrader/internal/store"
	"hypertrader/internal/strategy"
	statushttp "hypertrader/internal/transport/http"
	"hypertrader/internal/volatility"
)

const (
	minSleep         = time.Second
	reconcileEvery   = time.Hour
	freshPriceMaxAge = 2 * time.Minute

	// 连续失败熔切：3 个周期全部失败后冷却 5 分钟再继续。
	maxConsecutiveFailures = 3
	failureCooldown        = 5 * time.Minute

	candleLimit1h  = 200
	candleLimit15m = 100
)

// StopShutdown 表示收到进程信号的正常退出（非风控触发）。
const StopShutdown = risk.StopReason("shutdown")

// Deps 汇总控制循环的全部协作方。Sentiment、Scorer、Store、Notifier
// 均可为 nil，对应能力降级关闭。
type Deps struct {
	Config    *config.Config
	Gateway   exchange.Gateway
	Prices    *market.PriceCache
	Sentiment *sentiment.Service
	Scorer    *ml.Scorer
	Store     *store.Store
	Notifier  *notifier.Telegram
}

// Engine 是控制循环本体。
type Engine struct {
	cfg      *config.Config
	gw       exchange.Gateway
	prices   *market.PriceCache
	sent     *sentiment.Service
	scorer   *ml.Scorer
	db       *store.Store
	tg       *notifier.Telegram
	entry    *strategy.EntryEvaluator
	tracker  *volatility.Tracker
	recorder *nearmiss.Recorder
	governor *risk.Governor

	clock func() time.Time

	// mu 保护会话统计与持仓溯源，供状态接口并发读取。
	mu       sync.RWMutex
	session  *risk.Session
	state    *strategy.AgentState
	meta     map[string]strategy.Position
	tradeIDs map[string]int64
	lastPnl  map[string]float64
	stopped  risk.StopReason

	// tracker 只在循环线程读写；状态接口读这两个缓存字段。
	volState volatility.GlobalState
	pollMult float64

	lastReconcile time.Time
}

func New(d Deps) *Engine {
	e := &Engine{
		cfg:      d.Config,
		gw:       d.Gateway,
		prices:   d.Prices,
		sent:     d.Sentiment,
		scorer:   d.Scorer,
		db:       d.Store,
		tg:       d.Notifier,
		entry:    strategy.NewEntryEvaluator(d.Config.Agent.ContrarianPct),
		tracker:  volatility.NewTracker(),
		recorder: nearmiss.NewRecorder(),
		governor: risk.NewGovernor(d.Config.Agent.CircuitBreakerUSD,
			time.Duration(d.Config.Agent.SessionHours*float64(time.Hour))),
		clock:    time.Now,
		session:  risk.NewSession(time.Now()),
		state:    strategy.NewAgentState(),
		meta:     make(map[string]strategy.Position),
		tradeIDs: make(map[string]int64),
		lastPnl:  make(map[string]float64),
		volState: volatility.GlobalNormal,
		pollMult: 1.0,
	}
	e.lastReconcile = e.clock()
	e.tracker.OnTransition = func(from, to volatility.GlobalState) {
		e.tg.Notify(fmt.Sprintf("⚡ 波动状态切换: %s → %s", from, to))
	}
	return e
}

// Run 启动控制循环，直到风控终止或 ctx 取消。正常终止返回 nil。
func (e *Engine) Run(ctx context.Context) error {
	a := e.cfg.Agent
	logger.Infof("[engine] 会话 %s 启动 dry_run=%v coins=%v interval=%dm max_positions=%d",
		e.session.ID, a.DryRun, a.Coins, a.IntervalMinutes, a.MaxPositions)
	if e.db != nil {
		if err := e.db.RegisterSession(e.session, a.DryRun); err != nil {
			logger.Warnf("[engine] 会话落库失败: %v", err)
		}
	}
	interval := time.Duration(a.IntervalMinutes) * time.Minute

	for {
		if ctx.Err() != nil {
			e.finish(context.Background(), StopShutdown)
			return nil
		}
		start := e.clock()
		stop, err := e.cycle(ctx)
		if err != nil {
			if ctx.Err() != nil {
				e.finish(context.Background(), StopShutdown)
				return nil
			}
			e.mu.Lock()
			e.session.NoteCycleError()
			failures := e.session.ConsecutiveErrors
			e.mu.Unlock()
			logger.Errorf("[engine] 周期失败（连续 %d 次）: %v", failures, err)
			if failures >= maxConsecutiveFailures {
				logger.Warnf("[engine] 连续 %d 个周期失败，冷却 %s", failures, failureCooldown)
				e.tg.Notify(fmt.Sprintf("⚠️ 连续 %d 个周期失败，进入 %s 冷却", failures, failureCooldown))
				if !sleepCtx(ctx, failureCooldown) {
					e.finish(context.Background(), StopShutdown)
					return nil
				}
				e.mu.Lock()
				e.session.ResetCycleErrors()
				e.mu.Unlock()
			}
		} else {
			e.mu.Lock()
			e.session.ResetCycleErrors()
			e.mu.Unlock()
		}
		if stop != risk.StopNone {
			e.finish(ctx, stop)
			return nil
		}

		sleep := time.Duration(float64(interval)*e.multiplier()) - e.clock().Sub(start)
		if sleep < minSleep {
			sleep = minSleep
		}
		logger.Debugf("[engine] 本周期结束，休眠 %s（倍率 %.2f）", sleep.Truncate(time.Second), e.multiplier())
		if !sleepCtx(ctx, sleep) {
			e.finish(context.Background(), StopShutdown)
			return nil
		}
	}
}

func (e *Engine) multiplier() float64 {
	if !e.cfg.Agent.VolatilityDetection {
		return 1.0
	}
	return e.tracker.Multiplier()
}

// finish 执行终止序列：熔断时尽力清仓，然后落盘复盘与会话终态。
func (e *Engine) finish(ctx context.Context, reason risk.StopReason) {
	desc := e.governor.Describe(e.session)
	if desc == "" {
		desc = string(reason)
	}
	logger.Warnf("[engine] 会话终止: %s", desc)
	e.tg.Notify("🛑 会话终止: " + desc)

	if reason == risk.StopCircuitBreaker {
		e.closeAll(ctx)
	}
	e.flushLessons()
	e.mu.Lock()
	e.stopped = reason
	e.mu.Unlock()
	if e.db != nil {
		if err := e.db.CloseSession(e.session, reason, e.clock()); err != nil {
			logger.Warnf("[engine] 会话终态落库失败: %v", err)
		}
		if err := e.db.Close(); err != nil {
			logger.Warnf("[engine] 关闭数据库失败: %v", err)
		}
	}
}

// closeAll 尽力平掉所有持仓。失败只记日志，不阻塞终止流程。
func (e *Engine) closeAll(ctx context.Context) {
	positions, err := retry.Do2(ctx, "清仓前查询持仓", retry.DefaultAttempts, retry.DefaultDelay,
		func(ctx context.Context) ([]exchange.Position, error) { return e.gw.FetchPositions(ctx) })
	if err != nil {
		logger.Errorf("[engine] 清仓前查询持仓失败: %v", err)
		return
	}
	for _, pos := range positions {
		tracked := e.trackedPosition(pos)
		// 先撤掉挂单，避免市价平仓后残单重新开仓。
		if err := e.gw.CancelOpenOrders(ctx, pos.Coin); err != nil {
			logger.Warnf("[engine] 撤销 %s 挂单失败: %v", pos.Coin, err)
		}
		res, err := retry.Do2(ctx, "熔断清仓 "+pos.Coin, retry.DefaultAttempts, retry.DefaultDelay,
			func(ctx context.Context) (exchange.OrderResult, error) { return e.gw.ClosePosition(ctx, pos.Coin) })
		if err != nil {
			logger.Errorf("[engine] 熔断清仓 %s 失败: %v", pos.Coin, err)
			continue
		}
		e.settleClose(tracked, res, "circuit-breaker", "熔断强制清仓")
	}
}

// flushLessons 输出并持久化近失复盘报告。
func (e *Engine) flushLessons() {
	report := e.recorder.Lessons()
	if len(report.Rules) == 0 {
		return
	}
	logger.Infof("[engine] %s", report.Render())
	if e.db != nil {
		if err := e.db.SaveLessons(e.session.ID, report); err != nil {
			logger.Warnf("[engine] 复盘报告落库失败: %v", err)
		}
	}
}

// price 优先取 WS 缓存的新鲜中间价，失效时回退 REST。
func (e *Engine) price(ctx context.Context, coin string) (float64, error) {
	if px, ok := e.prices.Get(coin, freshPriceMaxAge); ok {
		return px, nil
	}
	return retry.Do2(ctx, "拉取中间价 "+coin, retry.DefaultAttempts, retry.DefaultDelay,
		func(ctx context.Context) (float64, error) { return e.gw.MidPrice(ctx, coin) })
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// StatusSnapshot 实现状态接口的只读视图。
func (e *Engine) StatusSnapshot() statushttp.Status {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return statushttp.Status{
		SessionID:         e.session.ID,
		StartedAt:         e.session.StartedAt.Format(time.RFC3339),
		DryRun:            e.cfg.Agent.DryRun,
		Cycles:            e.session.Cycles,
		RealizedPnlUSD:    e.session.RealizedPnlUSD,
		Wins:              e.session.Wins,
		Losses:            e.session.Losses,
		ContrarianWins:    e.session.ContrarianWins,
		ContrarianLosses:  e.session.ContrarianLosses,
		VolatilityState:   string(e.volState),
		IntervalMinutes:   e.cfg.Agent.IntervalMinutes,
		PollMultiplier:    e.pollMult,
		ConsecutiveErrors: e.session.ConsecutiveErrors,
		Stopped:           e.stopped != risk.StopNone,
		StopReason:        string(e.stopped),
	}
}

func (e *Engine) PositionSnapshot() []statushttp.PositionView {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]statushttp.PositionView, 0, len(e.meta))
	for coin, pos := range e.meta {
		out = append(out, statushttp.PositionView{
			Coin:       coin,
			Side:       string(pos.Side),
			Rule:       pos.Rule,
			Category:   string(pos.Category),
			EntryPrice: pos.EntryPrice,
			Size:       pos.Size,
			Leverage:   pos.Leverage,
			PnlPct:     e.lastPnl[coin],
			PeakPnlPct: e.state.PeakPnlByCoin[coin],
			OpenedAt:   pos.OpenedAt.Format(time.RFC3339),
		})
	}
	return out
}

func (e *Engine) NearMissSnapshot() statushttp.NearMissView {
	report := e.recorder.Lessons()
	view := statushttp.NearMissView{
		Pending:  e.recorder.PendingCount(),
		Resolved: e.recorder.OutcomeCount(),
	}
	for _, l := range report.Rules {
		view.Rules = append(view.Rules, statushttp.NearMissLesson{
			Rule:            l.Rule,
			Resolved:        l.Resolved,
			WouldHaveWon:    l.WouldHaveWon,
			RightToSkipRate: l.RightToSkipRate,
		})
	}
	return view
}

var _ statushttp.StatusSource = (*Engine)(nil)
