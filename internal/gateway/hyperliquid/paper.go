package hyperliquid

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"hypertrader/internal/gateway/exchange"
	"hypertrader/internal/logger"
	"hypertrader/internal/market"
)

// PaperGateway 使用真实行情、模拟账户的 dry-run 网关。
// 成交价按中间价加半个滑点档模拟，已实现盈亏直接回写余额。
type PaperGateway struct {
	info *InfoClient

	mu        sync.Mutex
	balance   float64
	positions map[string]exchange.Position
}

func NewPaperGateway(info *InfoClient, startBalance float64) *PaperGateway {
	if startBalance <= 0 {
		startBalance = 10000
	}
	return &PaperGateway{
		info:      info,
		balance:   startBalance,
		positions: make(map[string]exchange.Position),
	}
}

func (g *PaperGateway) FetchCandles(ctx context.Context, coin, interval string, limit int) ([]market.Candle, error) {
	return g.info.FetchCandles(ctx, coin, interval, limit)
}

func (g *PaperGateway) MidPrice(ctx context.Context, coin string) (float64, error) {
	return g.info.MidPrice(ctx, coin)
}

func (g *PaperGateway) FetchPositions(ctx context.Context) ([]exchange.Position, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]exchange.Position, 0, len(g.positions))
	for _, p := range g.positions {
		out = append(out, p)
	}
	return out, nil
}

func (g *PaperGateway) FetchBalance(ctx context.Context) (exchange.Balance, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	margin := 0.0
	for _, p := range g.positions {
		if p.Leverage > 0 {
			margin += p.EntryPrice * p.Size / float64(p.Leverage)
		}
	}
	return exchange.Balance{
		Available:    g.balance - margin,
		AccountValue: g.balance,
		MarginUsed:   margin,
	}, nil
}

func (g *PaperGateway) PlaceMarketOrder(ctx context.Context, req exchange.OrderRequest) (exchange.OrderResult, error) {
	mid, err := g.info.MidPrice(ctx, req.Coin)
	if err != nil {
		return exchange.OrderResult{}, err
	}
	fill := applySlippage(mid, req.Side, req.SlippageBps)
	coin := strings.ToUpper(req.Coin)

	g.mu.Lock()
	defer g.mu.Unlock()
	if req.ReduceOnly {
		return g.reduceLocked(coin, fill, req.Size)
	}
	if _, exists := g.positions[coin]; exists {
		return exchange.OrderResult{}, fmt.Errorf("paper: position already open for %s", coin)
	}
	g.positions[coin] = exchange.Position{
		Coin:       coin,
		Side:       req.Side,
		EntryPrice: fill,
		Size:       req.Size,
		Leverage:   req.Leverage,
		OpenedAt:   time.Now(),
	}
	logger.Infof("[paper] 模拟开仓 %s %s size=%.6f px=%.4f", coin, req.Side, req.Size, fill)
	return exchange.OrderResult{
		OrderID:   uuid.NewString(),
		Coin:      coin,
		Side:      req.Side,
		FilledPx:  fill,
		FilledSz:  req.Size,
		Simulated: true,
	}, nil
}

func (g *PaperGateway) ClosePosition(ctx context.Context, coin string) (exchange.OrderResult, error) {
	coin = strings.ToUpper(coin)
	g.mu.Lock()
	pos, ok := g.positions[coin]
	g.mu.Unlock()
	if !ok {
		return exchange.OrderResult{}, fmt.Errorf("paper: no open position for %s", coin)
	}
	mid, err := g.info.MidPrice(ctx, coin)
	if err != nil {
		return exchange.OrderResult{}, err
	}
	fill := applySlippage(mid, pos.Side.Opposite(), 0)
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.reduceLocked(coin, fill, pos.Size)
}

func (g *PaperGateway) CancelOpenOrders(ctx context.Context, coin string) error {
	// 模拟盘市价即成，无挂单可撤。
	return nil
}

func (g *PaperGateway) reduceLocked(coin string, fill, size float64) (exchange.OrderResult, error) {
	pos, ok := g.positions[coin]
	if !ok {
		return exchange.OrderResult{}, fmt.Errorf("paper: no open position for %s", coin)
	}
	if size > pos.Size {
		size = pos.Size
	}
	pnl := (fill - pos.EntryPrice) * size
	if pos.Side == exchange.SideShort {
		pnl = -pnl
	}
	g.balance += pnl
	pos.Size -= size
	if pos.Size <= 1e-12 {
		delete(g.positions, coin)
	} else {
		g.positions[coin] = pos
	}
	logger.Infof("[paper] 模拟平仓 %s size=%.6f px=%.4f pnl=%+.2f", coin, size, fill, pnl)
	return exchange.OrderResult{
		OrderID:   uuid.NewString(),
		Coin:      coin,
		Side:      pos.Side.Opposite(),
		FilledPx:  fill,
		FilledSz:  size,
		Simulated: true,
	}, nil
}

func applySlippage(mid float64, side exchange.Side, bps int) float64 {
	if bps <= 0 {
		return mid
	}
	slip := mid * float64(bps) / 10000 / 2
	if side == exchange.SideLong {
		return mid + slip
	}
	return mid - slip
}

var _ exchange.Gateway = (*PaperGateway)(nil)
