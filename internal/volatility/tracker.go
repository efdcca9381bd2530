// Package volatility 维护各币种 ATR 滚动窗口，把市场波动水平折算成
// 全局轮询节奏倍率：波动越高，扫描越密。
package volatility

import (
	"strings"

	"hypertrader/internal/logger"
)

type Class string

const (
	ClassCalm     Class = "calm"
	ClassNormal   Class = "normal"
	ClassElevated Class = "elevated"
	ClassSpike    Class = "spike"
)

type GlobalState string

const (
	GlobalNormal   GlobalState = "normal"
	GlobalElevated GlobalState = "elevated"
	GlobalSpike    GlobalState = "spike"
)

const (
	windowSize = 20
	minSamples = 5

	spikeRatio    = 2.5
	elevatedRatio = 1.5
	calmRatio     = 1.0

	multiplierNormal   = 1.0
	multiplierElevated = 0.5
	multiplierSpike    = 1.0 / 3

	hotCoinsForSpike = 3
)

// Tracker 只被控制循环读写，无需加锁。
type Tracker struct {
	atrByCoin map[string][]float64
	global    GlobalState

	// OnTransition 仅在全局状态变化的边沿触发（通知/日志用）。
	OnTransition func(from, to GlobalState)
}

func NewTracker() *Tracker {
	return &Tracker{
		atrByCoin: make(map[string][]float64),
		global:    GlobalNormal,
	}
}

// Observe 追加一个 ATR 读数，窗口满后淘汰最旧值。币名统一大写入表，
// 避免调用方传入配置原始大小写时查不到窗口。
func (t *Tracker) Observe(coin string, atr float64) {
	if atr <= 0 {
		return
	}
	coin = strings.ToUpper(coin)
	window := append(t.atrByCoin[coin], atr)
	if len(window) > windowSize {
		window = window[len(window)-windowSize:]
	}
	t.atrByCoin[coin] = window
}

// Classify 返回该币当前波动级别；样本不足时按 normal 处理。
func (t *Tracker) Classify(coin string) Class {
	window := t.atrByCoin[strings.ToUpper(coin)]
	if len(window) < minSamples {
		return ClassNormal
	}
	sum := 0.0
	for _, v := range window {
		sum += v
	}
	mean := sum / float64(len(window))
	if mean <= 0 {
		return ClassNormal
	}
	ratio := window[len(window)-1] / mean
	switch {
	case ratio > spikeRatio:
		return ClassSpike
	case ratio > elevatedRatio:
		return ClassElevated
	case ratio < calmRatio:
		return ClassCalm
	default:
		return ClassNormal
	}
}

// UpdateGlobal 聚合所有币的级别并推进全局状态机：
// 任一币 spike 或热币（elevated+spike）≥3 → spike；任一热币 → elevated。
func (t *Tracker) UpdateGlobal(coins []string) GlobalState {
	spikes, hot := 0, 0
	for _, coin := range coins {
		switch t.Classify(coin) {
		case ClassSpike:
			spikes++
			hot++
		case ClassElevated:
			hot++
		}
	}
	next := GlobalNormal
	switch {
	case spikes > 0 || hot >= hotCoinsForSpike:
		next = GlobalSpike
	case hot > 0:
		next = GlobalElevated
	}
	if next != t.global {
		from := t.global
		t.global = next
		logger.Infof("[volatility] 全局波动状态 %s -> %s（spike=%d hot=%d）", from, next, spikes, hot)
		if t.OnTransition != nil {
			t.OnTransition(from, next)
		}
	}
	return t.global
}

// Global 返回当前全局状态。
func (t *Tracker) Global() GlobalState { return t.global }

// Multiplier 返回作用于轮询间隔的倍率。
func (t *Tracker) Multiplier() float64 {
	switch t.global {
	case GlobalSpike:
		return multiplierSpike
	case GlobalElevated:
		return multiplierElevated
	default:
		return multiplierNormal
	}
}
