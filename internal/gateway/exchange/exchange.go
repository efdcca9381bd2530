// Package exchange 定义交易所协作方的接口边界。具体接入（Hyperliquid
// REST + 外部执行服务）在 gateway/hyperliquid 中实现。
package exchange

import (
	"context"
	"time"

	"hypertrader/internal/market"
)

type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

// Opposite 返回反方向。
func (s Side) Opposite() Side {
	if s == SideLong {
		return SideShort
	}
	return SideLong
}

// Position 是交易所视角的持仓（不含策略溯源信息）。
type Position struct {
	Coin          string
	Side          Side
	EntryPrice    float64
	Size          float64
	Leverage      int
	UnrealizedPnl float64
	OpenedAt      time.Time
}

type Balance struct {
	Available    float64
	AccountValue float64
	MarginUsed   float64
}

type OrderRequest struct {
	Coin        string
	Side        Side
	Size        float64
	Leverage    int
	SlippageBps int
	ReduceOnly  bool
}

type OrderResult struct {
	OrderID   string
	Coin      string
	Side      Side
	FilledPx  float64
	FilledSz  float64
	Simulated bool
}

// Gateway 汇总控制循环需要的全部交易所操作。除行情外均可能失败，
// 调用方统一经过 retry 包装。
type Gateway interface {
	FetchCandles(ctx context.Context, coin, interval string, limit int) ([]market.Candle, error)
	FetchPositions(ctx context.Context) ([]Position, error)
	FetchBalance(ctx context.Context) (Balance, error)
	MidPrice(ctx context.Context, coin string) (float64, error)
	PlaceMarketOrder(ctx context.Context, req OrderRequest) (OrderResult, error)
	ClosePosition(ctx context.Context, coin string) (OrderResult, error)
	CancelOpenOrders(ctx context.Context, coin string) error
}
