package market

import (
	"strings"
	"sync"
	"time"
)

// PriceCache 缓存各币种最新中间价（WS 推送写入，REST 拉取兜底）。
type PriceCache struct {
	mu    sync.RWMutex
	mids  map[string]float64
	stamp map[string]time.Time
}

func NewPriceCache() *PriceCache {
	return &PriceCache{
		mids:  make(map[string]float64),
		stamp: make(map[string]time.Time),
	}
}

func (c *PriceCache) Set(coin string, price float64) {
	if price <= 0 {
		return
	}
	coin = strings.ToUpper(coin)
	c.mu.Lock()
	c.mids[coin] = price
	c.stamp[coin] = time.Now()
	c.mu.Unlock()
}

// Get 返回缓存价与是否在 maxAge 内仍然新鲜。
func (c *PriceCache) Get(coin string, maxAge time.Duration) (float64, bool) {
	coin = strings.ToUpper(coin)
	c.mu.RLock()
	defer c.mu.RUnlock()
	px, ok := c.mids[coin]
	if !ok {
		return 0, false
	}
	if maxAge > 0 && time.Since(c.stamp[coin]) > maxAge {
		return px, false
	}
	return px, true
}
