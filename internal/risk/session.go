// Package risk 维护会话级盈亏统计，并实现两个终止性风控条件：
// 累计亏损熔断与会话超时。两者一旦触发在本进程内不可恢复。
package risk

import (
	"time"

	"github.com/google/uuid"
)

// Session 是进程生命周期内的交易会话聚合。
type Session struct {
	ID        string
	StartedAt time.Time

	RealizedPnlUSD   float64
	Wins             int
	Losses           int
	ContrarianWins   int
	ContrarianLosses int

	Cycles            int
	ConsecutiveErrors int
}

func NewSession(now time.Time) *Session {
	return &Session{ID: uuid.NewString(), StartedAt: now}
}

// RecordClose 记入一笔已实现盈亏。
func (s *Session) RecordClose(pnlUSD float64, contrarian bool) {
	s.RealizedPnlUSD += pnlUSD
	won := pnlUSD >= 0
	if won {
		s.Wins++
	} else {
		s.Losses++
	}
	if contrarian {
		if won {
			s.ContrarianWins++
		} else {
			s.ContrarianLosses++
		}
	}
}

func (s *Session) NoteCycle() { s.Cycles++ }

func (s *Session) NoteCycleError() { s.ConsecutiveErrors++ }

func (s *Session) ResetCycleErrors() { s.ConsecutiveErrors = 0 }

// Elapsed 返回会话已运行时长。
func (s *Session) Elapsed(now time.Time) time.Duration { return now.Sub(s.StartedAt) }
