// Package statushttp 提供只读的运行状态 HTTP 接口。它不承载任何
// 交易操作，所有写路径都只在控制循环内部。
package statushttp

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"hypertrader/internal/logger"
)

// StatusSource 是控制循环暴露给状态接口的只读快照视图。
type StatusSource interface {
	StatusSnapshot() Status
	PositionSnapshot() []PositionView
	NearMissSnapshot() NearMissView
}

// Status 是 /api/status 的响应体。
type Status struct {
	SessionID         string  `json:"session_id"`
	StartedAt         string  `json:"started_at"`
	DryRun            bool    `json:"dry_run"`
	Cycles            int     `json:"cycles"`
	RealizedPnlUSD    float64 `json:"realized_pnl_usd"`
	Wins              int     `json:"wins"`
	Losses            int     `json:"losses"`
	ContrarianWins    int     `json:"contrarian_wins"`
	ContrarianLosses  int     `json:"contrarian_losses"`
	VolatilityState   string  `json:"volatility_state"`
	IntervalMinutes   int     `json:"interval_minutes"`
	PollMultiplier    float64 `json:"poll_multiplier"`
	ConsecutiveErrors int     `json:"consecutive_errors"`
	Stopped           bool    `json:"stopped"`
	StopReason        string  `json:"stop_reason,omitempty"`
}

// PositionView 是 /api/positions 里的单个持仓。
type PositionView struct {
	Coin       string  `json:"coin"`
	Side       string  `json:"side"`
	Rule       string  `json:"rule"`
	Category   string  `json:"category"`
	EntryPrice float64 `json:"entry_price"`
	Size       float64 `json:"size"`
	Leverage   int     `json:"leverage"`
	PnlPct     float64 `json:"pnl_pct"`
	PeakPnlPct float64 `json:"peak_pnl_pct"`
	OpenedAt   string  `json:"opened_at"`
}

// NearMissView 是 /api/nearmiss 的响应体。
type NearMissView struct {
	Pending  int              `json:"pending"`
	Resolved int              `json:"resolved"`
	Rules    []NearMissLesson `json:"rules"`
}

type NearMissLesson struct {
	Rule            string  `json:"rule"`
	Resolved        int     `json:"resolved"`
	WouldHaveWon    int     `json:"would_have_won"`
	RightToSkipRate float64 `json:"right_to_skip_rate"`
}

// Server 是只读状态服务。
type Server struct {
	addr   string
	router *gin.Engine
}

func NewServer(addr string, src StatusSource) *Server {
	if addr == "" {
		addr = ":9980"
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	api := router.Group("/api")
	api.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, src.StatusSnapshot())
	})
	api.GET("/positions", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"positions": src.PositionSnapshot()})
	})
	api.GET("/nearmiss", func(c *gin.Context) {
		c.JSON(http.StatusOK, src.NearMissSnapshot())
	})

	return &Server{addr: addr, router: router}
}

// Addr 返回监听地址。
func (s *Server) Addr() string {
	if s == nil {
		return ""
	}
	return s.addr
}

// Start 启动 HTTP 服务，直到 ctx 取消或监听出错。
func (s *Server) Start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	srv := &http.Server{Addr: s.addr, Handler: s.router}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		return err
	}
}

// requestLogger 记录接口访问，便于排查人工轮询。
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debugf("HTTP %s %s status=%d ip=%s dur=%s",
			c.Request.Method, c.Request.URL.Path, c.Writer.Status(), c.ClientIP(), time.Since(start))
	}
}
