// Package hyperliquid 接入 Hyperliquid 公共行情（/info）与外部执行服务。
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

	"hypertrader/internal/market"
	"hypertrader/internal/pkg/text"
)

// InfoClient 封装 Hyperliquid /info 查询。所有响应用 gjson 解析，
// 字段缺失按零值处理。
type InfoClient struct {
	baseURL string
	account string
	client  *http.Client
}

func NewInfoClient(baseURL, account string, timeout time.Duration) *InfoClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &InfoClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		account: strings.TrimSpace(account),
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *InfoClient) post(ctx context.Context, payload map[string]any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/info", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("hyperliquid info status=%d body=%s", resp.StatusCode, text.TruncateBytes(raw, 200))
	}
	return raw, nil
}

// FetchCandles 拉取最近 limit 根 K 线。interval 形如 "1h"/"15m"。
func (c *InfoClient) FetchCandles(ctx context.Context, coin, interval string, limit int) ([]market.Candle, error) {
	if limit <= 0 {
		limit = 100
	}
	dur, ok := intervalDuration(interval)
	if !ok {
		return nil, fmt.Errorf("unsupported interval %q", interval)
	}
	end := time.Now()
	start := end.Add(-time.Duration(limit+1) * dur)
	raw, err := c.post(ctx, map[string]any{
		"type": "candleSnapshot",
		"req": map[string]any{
			"coin":      strings.ToUpper(coin),
			"interval":  interval,
			"startTime": start.UnixMilli(),
			"endTime":   end.UnixMilli(),
		},
	})
	if err != nil {
		return nil, err
	}
	arr := gjson.ParseBytes(raw).Array()
	candles := make([]market.Candle, 0, len(arr))
	for _, item := range arr {
		candles = append(candles, market.Candle{
			OpenTime:  item.Get("t").Int(),
			CloseTime: item.Get("T").Int(),
			Open:      item.Get("o").Float(),
			High:      item.Get("h").Float(),
			Low:       item.Get("l").Float(),
			Close:     item.Get("c").Float(),
			Volume:    item.Get("v").Float(),
			Trades:    item.Get("n").Int(),
		})
	}
	if len(candles) > limit {
		candles = candles[len(candles)-limit:]
	}
	return candles, nil
}

// AllMids 返回全市场最新中间价。
func (c *InfoClient) AllMids(ctx context.Context) (map[string]float64, error) {
	raw, err := c.post(ctx, map[string]any{"type": "allMids"})
	if err != nil {
		return nil, err
	}
	mids := make(map[string]float64)
	gjson.ParseBytes(raw).ForEach(func(key, value gjson.Result) bool {
		mids[strings.ToUpper(key.String())] = value.Float()
		return true
	})
	return mids, nil
}

// MidPrice 返回单个币种中间价。
func (c *InfoClient) MidPrice(ctx context.Context, coin string) (float64, error) {
	mids, err := c.AllMids(ctx)
	if err != nil {
		return 0, err
	}
	px, ok := mids[strings.ToUpper(coin)]
	if !ok || px <= 0 {
		return 0, fmt.Errorf("no mid price for %s", coin)
	}
	return px, nil
}

// ClearinghouseState 返回账户余额与持仓。
func (c *InfoClient) ClearinghouseState(ctx context.Context) (AccountState, error) {
	if c.account == "" {
		return AccountState{}, fmt.Errorf("account address not configured")
	}
	raw, err := c.post(ctx, map[string]any{"type": "clearinghouseState", "user": c.account})
	if err != nil {
		return AccountState{}, err
	}
	root := gjson.ParseBytes(raw)
	state := AccountState{
		AccountValue: root.Get("marginSummary.accountValue").Float(),
		MarginUsed:   root.Get("marginSummary.totalMarginUsed").Float(),
		Withdrawable: root.Get("withdrawable").Float(),
	}
	for _, item := range root.Get("assetPositions").Array() {
		pos := item.Get("position")
		szi := pos.Get("szi").Float()
		if szi == 0 {
			continue
		}
		side := "long"
		size := szi
		if szi < 0 {
			side = "short"
			size = -szi
		}
		state.Positions = append(state.Positions, RawPosition{
			Coin:          strings.ToUpper(pos.Get("coin").String()),
			Side:          side,
			Size:          size,
			EntryPrice:    pos.Get("entryPx").Float(),
			Leverage:      int(pos.Get("leverage.value").Int()),
			UnrealizedPnl: pos.Get("unrealizedPnl").Float(),
		})
	}
	return state, nil
}

type AccountState struct {
	AccountValue float64
	MarginUsed   float64
	Withdrawable float64
	Positions    []RawPosition
}

type RawPosition struct {
	Coin          string
	Side          string
	Size          float64
	EntryPrice    float64
	Leverage      int
	UnrealizedPnl float64
}

func intervalDuration(interval string) (time.Duration, bool) {
	switch strings.ToLower(strings.TrimSpace(interval)) {
	case "1m":
		return time.Minute, true
	case "5m":
		return 5 * time.Minute, true
	case "15m":
		return 15 * time.Minute, true
	case "1h":
		return time.Hour, true
	case "4h":
		return 4 * time.Hour, true
	case "1d":
		return 24 * time.Hour, true
	default:
		return 0, false
	}
}
