package risk

import (
	"fmt"
	"time"
)

// StopReason 标识终止原因；空值表示继续运行。
type StopReason string

const (
	StopNone           StopReason = ""
	StopCircuitBreaker StopReason = "circuit_breaker"
	StopSessionTimeout StopReason = "session_timeout"
)

// Governor 每周期检查一次终止条件。熔断与超时都是单向开关：
// 触发后 Check 始终返回同一原因。
type Governor struct {
	CircuitBreakerUSD float64
	SessionDuration   time.Duration

	tripped StopReason
}

func NewGovernor(circuitBreakerUSD float64, sessionDuration time.Duration) *Governor {
	return &Governor{
		CircuitBreakerUSD: circuitBreakerUSD,
		SessionDuration:   sessionDuration,
	}
}

// Check 返回当前应否终止。熔断是纯阈值判断：
// 累计已实现亏损超过 -CircuitBreakerUSD 即触发。
func (g *Governor) Check(s *Session, now time.Time) StopReason {
	if g.tripped != StopNone {
		return g.tripped
	}
	if g.CircuitBreakerUSD > 0 && s.RealizedPnlUSD < -g.CircuitBreakerUSD {
		g.tripped = StopCircuitBreaker
		return g.tripped
	}
	if g.SessionDuration > 0 && s.Elapsed(now) > g.SessionDuration {
		g.tripped = StopSessionTimeout
		return g.tripped
	}
	return StopNone
}

// Describe 输出适合日志/通知的终止说明。
func (g *Governor) Describe(s *Session) string {
	switch g.tripped {
	case StopCircuitBreaker:
		return fmt.Sprintf("熔断触发：会话已实现盈亏 %.2f USD 低于 -%.2f", s.RealizedPnlUSD, g.CircuitBreakerUSD)
	case StopSessionTimeout:
		return fmt.Sprintf("会话超时：已运行超过 %s", g.SessionDuration)
	default:
		return ""
	}
}
