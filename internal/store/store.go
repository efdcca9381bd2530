// Package store 负责会话、成交与近失复盘的落库（gorm + SQLite）。
// 持久化失败只记日志，绝不反向阻塞交易决策。
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"hypertrader/internal/indicator"
	"hypertrader/internal/nearmiss"
	"hypertrader/internal/risk"
	"hypertrader/internal/strategy"
)

type Store struct {
	db *gorm.DB
}

// Open 打开（必要时创建）SQLite 库并迁移表结构。
func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("store: 数据库路径不能为空")
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&SessionModel{}, &TradeModel{}, &LessonModel{}); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// 单写者 + 状态接口少量并发读。
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// RegisterSession 在会话启动时落一行记录。
func (s *Store) RegisterSession(sess *risk.Session, dryRun bool) error {
	row := SessionModel{
		SessionID:     sess.ID,
		StartedAtUnix: sess.StartedAt.Unix(),
		DryRun:        boolToInt(dryRun),
	}
	return s.db.Create(&row).Error
}

// CloseSession 回写会话终态。
func (s *Store) CloseSession(sess *risk.Session, reason risk.StopReason, endedAt time.Time) error {
	updates := map[string]any{
		"ended_at":          endedAt.Unix(),
		"stop_reason":       string(reason),
		"realized_pnl_usd":  sess.RealizedPnlUSD,
		"wins":              sess.Wins,
		"losses":            sess.Losses,
		"contrarian_wins":   sess.ContrarianWins,
		"contrarian_losses": sess.ContrarianLosses,
		"cycles":            sess.Cycles,
	}
	return s.db.Model(&SessionModel{}).
		Where("session_id = ?", sess.ID).
		Updates(updates).Error
}

// TradeOpen 描述一笔新开仓。
type TradeOpen struct {
	SessionID  string
	Signal     strategy.Signal
	EntryPrice float64
	Size       float64
	Leverage   int
	Notional   float64
	Snapshot   indicator.Snapshot
	OpenedAt   time.Time
	Simulated  bool
}

// LogTradeOpen 记录开仓，返回 trade id 供平仓时关联。
func (s *Store) LogTradeOpen(open TradeOpen) (int64, error) {
	snapJSON, err := json.Marshal(open.Snapshot)
	if err != nil {
		snapJSON = []byte("{}")
	}
	row := TradeModel{
		SessionID:    open.SessionID,
		Coin:         open.Signal.Coin,
		Side:         string(open.Signal.Side),
		Rule:         open.Signal.Rule,
		Category:     string(open.Signal.Category),
		Confidence:   open.Signal.Confidence,
		EntryPrice:   open.EntryPrice,
		Size:         open.Size,
		Leverage:     open.Leverage,
		NotionalUSD:  open.Notional,
		SnapshotJSON: snapJSON,
		OpenedAtUnix: open.OpenedAt.Unix(),
		Simulated:    boolToInt(open.Simulated),
	}
	if err := s.db.Create(&row).Error; err != nil {
		return 0, err
	}
	return row.ID, nil
}

// LogTradeClose 回写平仓信息。
func (s *Store) LogTradeClose(tradeID int64, exitRule string, exitPrice, pnlUSD, pnlPct float64, closedAt time.Time) error {
	return s.db.Model(&TradeModel{}).
		Where("id = ?", tradeID).
		Updates(map[string]any{
			"closed_at":    closedAt.Unix(),
			"exit_rule":    exitRule,
			"exit_price":   exitPrice,
			"realized_usd": pnlUSD,
			"realized_pct": pnlPct,
		}).Error
}

// SaveLessons 持久化一份近失复盘报告。
func (s *Store) SaveLessons(sessionID string, report nearmiss.LessonsReport) error {
	reportJSON, err := json.Marshal(report)
	if err != nil {
		return err
	}
	row := LessonModel{
		SessionID:     sessionID,
		GeneratedUnix: report.GeneratedAt.Unix(),
		ReportJSON:    reportJSON,
		ReportText:    report.Render(),
	}
	return s.db.Create(&row).Error
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
