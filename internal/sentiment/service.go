// Package sentiment 拉取社媒情绪数据（LunarCrush 风格指标：galaxy score、
// 多空情绪百分比、alt rank）。情绪属于咨询型子系统：失败只记日志并降级，
// 绝不阻塞交易决策。
package sentiment

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"

	"hypertrader/internal/logger"
)

type Snapshot struct {
	Coin         string
	GalaxyScore  float64
	SentimentPct float64
	AltRank      float64
	UpdatedAt    time.Time
}

// ExtremeGreed / ExtremeFear 是情绪规则分支共用的极值判定。
func (s Snapshot) ExtremeGreed() bool { return s.GalaxyScore >= 70 && s.SentimentPct >= 80 }
func (s Snapshot) ExtremeFear() bool  { return s.GalaxyScore >= 70 && s.SentimentPct <= 20 }

type cacheEntry struct {
	at   time.Time
	data Snapshot
}

// Service 带 TTL 缓存的情绪服务。
type Service struct {
	apiURL string
	apiKey string
	ttl    time.Duration
	client *http.Client

	mu    sync.RWMutex
	cache map[string]cacheEntry
	clock func() time.Time
}

func NewService(apiURL, apiKey string, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Service{
		apiURL: strings.TrimRight(apiURL, "/"),
		apiKey: apiKey,
		ttl:    ttl,
		client: &http.Client{Timeout: 8 * time.Second},
		cache:  make(map[string]cacheEntry),
		clock:  time.Now,
	}
}

// Fetch 返回各币种的情绪快照；缓存新鲜则直接命中。任何失败只返回
// 已有缓存里仍可用的部分。
func (s *Service) Fetch(ctx context.Context, coins []string) map[string]Snapshot {
	out := make(map[string]Snapshot, len(coins))
	var missing []string
	now := s.clock()
	s.mu.RLock()
	for _, coin := range coins {
		key := strings.ToUpper(coin)
		if entry, ok := s.cache[key]; ok && now.Sub(entry.at) < s.ttl {
			out[key] = entry.data
		} else {
			missing = append(missing, key)
		}
	}
	s.mu.RUnlock()
	if len(missing) == 0 {
		return out
	}

	fetched, err := s.fetchRemote(ctx, missing)
	if err != nil {
		logger.Warnf("[sentiment] 拉取失败（降级为纯技术面）: %v", err)
		return out
	}
	s.mu.Lock()
	for coin, snap := range fetched {
		s.cache[coin] = cacheEntry{at: now, data: snap}
		out[coin] = snap
	}
	s.mu.Unlock()
	return out
}

func (s *Service) fetchRemote(ctx context.Context, coins []string) (map[string]Snapshot, error) {
	endpoint := fmt.Sprintf("%s/coins?symbols=%s", s.apiURL, url.QueryEscape(strings.Join(coins, ",")))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("sentiment api status=%d", resp.StatusCode)
	}
	out := make(map[string]Snapshot)
	now := s.clock()
	for _, item := range gjson.GetBytes(raw, "data").Array() {
		coin := strings.ToUpper(item.Get("symbol").String())
		if coin == "" {
			continue
		}
		out[coin] = Snapshot{
			Coin:         coin,
			GalaxyScore:  item.Get("galaxy_score").Float(),
			SentimentPct: item.Get("sentiment").Float(),
			AltRank:      item.Get("alt_rank").Float(),
			UpdatedAt:    now,
		}
	}
	return out, nil
}
