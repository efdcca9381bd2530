package risk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSessionRecordClose(t *testing.T) {
	s := NewSession(time.Now())
	s.RecordClose(50, false)
	s.RecordClose(-30, false)
	s.RecordClose(20, true)
	s.RecordClose(-10, true)

	assert.InDelta(t, 30, s.RealizedPnlUSD, 1e-9)
	assert.Equal(t, 2, s.Wins)
	assert.Equal(t, 2, s.Losses)
	assert.Equal(t, 1, s.ContrarianWins)
	assert.Equal(t, 1, s.ContrarianLosses)
}

func TestCircuitBreakerThreshold(t *testing.T) {
	now := time.Now()
	s := NewSession(now)
	g := NewGovernor(100, 24*time.Hour)

	s.RealizedPnlUSD = -99
	assert.Equal(t, StopNone, g.Check(s, now))

	s.RealizedPnlUSD = -100
	assert.Equal(t, StopNone, g.Check(s, now), "恰好等于阈值不触发")

	s.RealizedPnlUSD = -100.01
	assert.Equal(t, StopCircuitBreaker, g.Check(s, now))
	assert.Contains(t, g.Describe(s), "熔断")
}

func TestGovernorIsOneWay(t *testing.T) {
	now := time.Now()
	s := NewSession(now)
	g := NewGovernor(100, 24*time.Hour)

	s.RealizedPnlUSD = -150
	assert.Equal(t, StopCircuitBreaker, g.Check(s, now))

	// 之后盈利回补也不解除。
	s.RealizedPnlUSD = 50
	assert.Equal(t, StopCircuitBreaker, g.Check(s, now))
}

func TestSessionTimeout(t *testing.T) {
	start := time.Now()
	s := NewSession(start)
	g := NewGovernor(100, 24*time.Hour)

	assert.Equal(t, StopNone, g.Check(s, start.Add(23*time.Hour)))
	assert.Equal(t, StopSessionTimeout, g.Check(s, start.Add(25*time.Hour)))
	assert.Contains(t, g.Describe(s), "超时")
}

func TestGovernorDisabledLimits(t *testing.T) {
	now := time.Now()
	s := NewSession(now)
	s.RealizedPnlUSD = -1e9
	g := NewGovernor(0, 0)
	assert.Equal(t, StopNone, g.Check(s, now.Add(1000*time.Hour)))
}

func TestCycleErrorCounter(t *testing.T) {
	s := NewSession(time.Now())
	s.NoteCycleError()
	s.NoteCycleError()
	assert.Equal(t, 2, s.ConsecutiveErrors)
	s.ResetCycleErrors()
	assert.Equal(t, 0, s.ConsecutiveErrors)
}
