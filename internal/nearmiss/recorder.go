// Package nearmiss 记录"差一点成交"的被拦截信号，并在观察期后用
// 实际价格走势反事实结算，衡量入场过滤器拦得对不对。
package nearmiss

import (
	"context"
	"sync"
	"time"

	"hypertrader/internal/gateway/exchange"
	"hypertrader/internal/logger"
	"hypertrader/internal/strategy"
)

const (
	maxPending  = 200
	maxOutcomes = 500

	// minAge：近失信号至少观察这么久才结算反事实盈亏。
	minAge = time.Hour
)

// PriceFunc 查询币种当前价（由交易所网关提供）。
type PriceFunc func(ctx context.Context, coin string) (float64, error)

// Recorder 持有未结算近失与已结算结果，双端都有容量上限，
// 超限淘汰最旧记录。
type Recorder struct {
	mu       sync.RWMutex
	pending  []strategy.NearMiss
	outcomes []strategy.NearMissOutcome
	clock    func() time.Time
}

func NewRecorder() *Recorder {
	return &Recorder{clock: time.Now}
}

// Record 追加一条近失记录。
func (r *Recorder) Record(nm strategy.NearMiss) {
	if nm.Timestamp.IsZero() {
		nm.Timestamp = r.clock()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending = append(r.pending, nm)
	if len(r.pending) > maxPending {
		r.pending = r.pending[len(r.pending)-maxPending:]
	}
}

// RecordAll 批量追加。
func (r *Recorder) RecordAll(items []strategy.NearMiss) {
	for _, nm := range items {
		r.Record(nm)
	}
}

// PendingCount / OutcomeCount 供状态接口只读展示。
func (r *Recorder) PendingCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.pending)
}

func (r *Recorder) OutcomeCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.outcomes)
}

// Outcomes 返回结算结果的拷贝。
func (r *Recorder) Outcomes() []strategy.NearMissOutcome {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]strategy.NearMissOutcome, len(r.outcomes))
	copy(out, r.outcomes)
	return out
}

// Reconcile 结算所有超过观察期的近失：按当前价计算"假如当时开仓"
// 的盈亏并分类胜负。取价失败的条目保留到下一轮。返回结算条数。
func (r *Recorder) Reconcile(ctx context.Context, price PriceFunc) int {
	now := r.clock()

	r.mu.Lock()
	var due []strategy.NearMiss
	var keep []strategy.NearMiss
	for _, nm := range r.pending {
		if now.Sub(nm.Timestamp) >= minAge {
			due = append(due, nm)
		} else {
			keep = append(keep, nm)
		}
	}
	r.pending = keep
	r.mu.Unlock()

	resolved := 0
	for _, nm := range due {
		px, err := price(ctx, nm.Coin)
		if err != nil || px <= 0 || nm.Price <= 0 {
			if err != nil {
				logger.Warnf("[nearmiss] %s 取价失败，延后结算: %v", nm.Coin, err)
			}
			r.Record(nm) // 回到队列等待下一轮
			continue
		}
		pnl := (px - nm.Price) / nm.Price * 100
		if nm.Side == exchange.SideShort {
			pnl = -pnl
		}
		outcome := strategy.NearMissOutcome{
			NearMiss:     nm,
			ResolvedAt:   now,
			PnlPct:       pnl,
			WouldHaveWon: pnl > 0,
		}
		r.mu.Lock()
		r.outcomes = append(r.outcomes, outcome)
		if len(r.outcomes) > maxOutcomes {
			r.outcomes = r.outcomes[len(r.outcomes)-maxOutcomes:]
		}
		r.mu.Unlock()
		resolved++
	}
	if resolved > 0 {
		logger.Infof("[nearmiss] 本轮结算 %d 条近失信号", resolved)
	}
	return resolved
}
