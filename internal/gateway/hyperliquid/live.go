package hyperliquid

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"hypertrader/internal/gateway/exchange"
	"hypertrader/internal/market"
	"hypertrader/internal/pkg/text"
)

// LiveGateway 组合 /info 只读查询与外部执行服务。订单签名与上链提交
// 由执行服务完成，本进程只发送受 token 保护的执行指令。
type LiveGateway struct {
	info     *InfoClient
	execBase string
	token    string
	client   *http.Client
}

func NewLiveGateway(info *InfoClient, executorURL, token string, timeout time.Duration) *LiveGateway {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &LiveGateway{
		info:     info,
		execBase: strings.TrimRight(executorURL, "/"),
		token:    token,
		client:   &http.Client{Timeout: timeout},
	}
}

func (g *LiveGateway) FetchCandles(ctx context.Context, coin, interval string, limit int) ([]market.Candle, error) {
	return g.info.FetchCandles(ctx, coin, interval, limit)
}

func (g *LiveGateway) MidPrice(ctx context.Context, coin string) (float64, error) {
	return g.info.MidPrice(ctx, coin)
}

func (g *LiveGateway) FetchPositions(ctx context.Context) ([]exchange.Position, error) {
	state, err := g.info.ClearinghouseState(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]exchange.Position, 0, len(state.Positions))
	for _, raw := range state.Positions {
		side := exchange.SideLong
		if raw.Side == "short" {
			side = exchange.SideShort
		}
		out = append(out, exchange.Position{
			Coin:          raw.Coin,
			Side:          side,
			EntryPrice:    raw.EntryPrice,
			Size:          raw.Size,
			Leverage:      raw.Leverage,
			UnrealizedPnl: raw.UnrealizedPnl,
		})
	}
	return out, nil
}

func (g *LiveGateway) FetchBalance(ctx context.Context) (exchange.Balance, error) {
	state, err := g.info.ClearinghouseState(ctx)
	if err != nil {
		return exchange.Balance{}, err
	}
	return exchange.Balance{
		Available:    state.Withdrawable,
		AccountValue: state.AccountValue,
		MarginUsed:   state.MarginUsed,
	}, nil
}

func (g *LiveGateway) PlaceMarketOrder(ctx context.Context, req exchange.OrderRequest) (exchange.OrderResult, error) {
	payload := map[string]any{
		"coin":         strings.ToUpper(req.Coin),
		"side":         string(req.Side),
		"size":         req.Size,
		"leverage":     req.Leverage,
		"slippage_bps": req.SlippageBps,
		"reduce_only":  req.ReduceOnly,
	}
	raw, err := g.execPost(ctx, "/orders/market", payload)
	if err != nil {
		return exchange.OrderResult{}, err
	}
	root := gjson.ParseBytes(raw)
	return exchange.OrderResult{
		OrderID:  root.Get("order_id").String(),
		Coin:     strings.ToUpper(req.Coin),
		Side:     req.Side,
		FilledPx: root.Get("filled_px").Float(),
		FilledSz: root.Get("filled_sz").Float(),
	}, nil
}

func (g *LiveGateway) ClosePosition(ctx context.Context, coin string) (exchange.OrderResult, error) {
	raw, err := g.execPost(ctx, "/positions/close", map[string]any{"coin": strings.ToUpper(coin)})
	if err != nil {
		return exchange.OrderResult{}, err
	}
	root := gjson.ParseBytes(raw)
	side := exchange.SideLong
	if root.Get("side").String() == "short" {
		side = exchange.SideShort
	}
	return exchange.OrderResult{
		OrderID:  root.Get("order_id").String(),
		Coin:     strings.ToUpper(coin),
		Side:     side,
		FilledPx: root.Get("filled_px").Float(),
		FilledSz: root.Get("filled_sz").Float(),
	}, nil
}

func (g *LiveGateway) CancelOpenOrders(ctx context.Context, coin string) error {
	_, err := g.execPost(ctx, "/orders/cancel", map[string]any{"coin": strings.ToUpper(coin)})
	return err
}

func (g *LiveGateway) execPost(ctx context.Context, path string, payload map[string]any) ([]byte, error) {
	if g.execBase == "" {
		return nil, fmt.Errorf("executor url not configured")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.execBase+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.token)
	resp, err := g.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("executor %s status=%d body=%s", path, resp.StatusCode, text.TruncateBytes(raw, 200))
	}
	return raw, nil
}

var _ exchange.Gateway = (*LiveGateway)(nil)
