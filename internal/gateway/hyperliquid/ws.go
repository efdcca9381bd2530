package hyperliquid

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"

	"hypertrader/internal/logger"
	"hypertrader/internal/market"
)

const (
	wsDialTimeout    = 10 * time.Second
	wsReadDeadline   = 90 * time.Second
	wsReconnectDelay = 5 * time.Second
	wsPingInterval   = 30 * time.Second
)

// MidsUpdater 订阅 allMids 推送，把最新中间价写入 PriceCache。
// 断线后固定间隔重连，行情推送失败只降级为 REST 拉取，不影响主循环。
type MidsUpdater struct {
	url   string
	cache *market.PriceCache
}

func NewMidsUpdater(url string, cache *market.PriceCache) *MidsUpdater {
	return &MidsUpdater{url: url, cache: cache}
}

// Start 在独立 goroutine 中运行，ctx 结束时退出。
func (u *MidsUpdater) Start(ctx context.Context) {
	go u.loop(ctx)
}

func (u *MidsUpdater) loop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		if err := u.runOnce(ctx); err != nil && ctx.Err() == nil {
			logger.Warnf("[ws] allMids 连接中断: %v，%s 后重连", err, wsReconnectDelay)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(wsReconnectDelay):
		}
	}
}

func (u *MidsUpdater) runOnce(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: wsDialTimeout}
	conn, _, err := dialer.DialContext(ctx, u.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	sub := map[string]any{
		"method":       "subscribe",
		"subscription": map[string]any{"type": "allMids"},
	}
	if err := conn.WriteJSON(sub); err != nil {
		return err
	}
	logger.Infof("[ws] allMids 订阅已建立 url=%s", u.url)

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(wsPingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				conn.Close()
				return
			case <-done:
				return
			case <-ticker.C:
				msg, _ := json.Marshal(map[string]string{"method": "ping"})
				_ = conn.WriteMessage(websocket.TextMessage, msg)
			}
		}
	}()

	for {
		_ = conn.SetReadDeadline(time.Now().Add(wsReadDeadline))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		root := gjson.ParseBytes(raw)
		if root.Get("channel").String() != "allMids" {
			continue
		}
		root.Get("data.mids").ForEach(func(key, value gjson.Result) bool {
			u.cache.Set(key.String(), value.Float())
			return true
		})
	}
}
