// Package ml 调用外部 python 置信度评分器（stdin JSON → stdout JSON）。
// 评分器是咨询型依赖：返回 null 或出错时只放弃本次置信度融合。
package ml

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"time"
)

// maxBlendWeight 限制模型影响力上限；样本越多权重越大。
const (
	maxBlendWeight   = 0.6
	samplesForFullW  = 500
	defaultScoreTime = 10 * time.Second
)

// ScoreRequest 的字段名与评分器的特征工程保持一致。
type ScoreRequest struct {
	Coin          string  `json:"coin"`
	Side          string  `json:"side"`
	Rule          string  `json:"rule"`
	ADX           float64 `json:"adx"`
	PlusDI        float64 `json:"plus_di"`
	MinusDI       float64 `json:"minus_di"`
	RSI           float64 `json:"rsi"`
	MACDHistogram float64 `json:"macd_histogram"`
	BBWidth       float64 `json:"bb_width"`
	ATRPct        float64 `json:"atr_pct"`
	Regime        string  `json:"regime"`
	GalaxyScore   float64 `json:"galaxy_score,omitempty"`
	SentimentPct  float64 `json:"sentiment_pct,omitempty"`
	AltRank       float64 `json:"alt_rank,omitempty"`
}

type ScoreResult struct {
	Score        *float64 `json:"score"`
	ModelSamples int      `json:"modelSamples"`
	Error        string   `json:"error,omitempty"`
}

// Scorer 以子进程方式运行 ml/scorer.py --mode score。
type Scorer struct {
	pythonBin  string
	scriptPath string
	timeout    time.Duration
}

func NewScorer(pythonBin, scriptPath string, timeout time.Duration) *Scorer {
	if timeout <= 0 {
		timeout = defaultScoreTime
	}
	return &Scorer{pythonBin: pythonBin, scriptPath: scriptPath, timeout: timeout}
}

// Score 评估单个候选信号。任何失败都由调用方按"放弃融合"处理。
func (s *Scorer) Score(ctx context.Context, req ScoreRequest) (ScoreResult, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return ScoreResult{}, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, s.pythonBin, s.scriptPath, "--mode", "score")
	cmd.Stdin = bytes.NewReader(payload)
	out, err := cmd.Output()
	if err != nil {
		return ScoreResult{}, fmt.Errorf("scorer run failed: %w", err)
	}
	var result ScoreResult
	if err := json.Unmarshal(bytes.TrimSpace(out), &result); err != nil {
		return ScoreResult{}, fmt.Errorf("scorer output invalid: %w", err)
	}
	return result, nil
}

// Blend 按训练样本量加权融合规则置信度与模型胜率：
// w = min(samples/500, 0.6)，final = rule×(1−w) + score×w。
func Blend(ruleConfidence float64, result ScoreResult) float64 {
	if result.Score == nil {
		return ruleConfidence
	}
	w := float64(result.ModelSamples) / samplesForFullW
	if w > maxBlendWeight {
		w = maxBlendWeight
	}
	if w < 0 {
		w = 0
	}
	return ruleConfidence*(1-w) + *result.Score*w
}
