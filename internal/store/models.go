package store

import "gorm.io/datatypes"

type SessionModel struct {
	ID               int64   `gorm:"column:id;primaryKey"`
	SessionID        string  `gorm:"column:session_id;uniqueIndex"`
	StartedAtUnix    int64   `gorm:"column:started_at"`
	EndedAtUnix      int64   `gorm:"column:ended_at"`
	StopReason       string  `gorm:"column:stop_reason"`
	RealizedPnlUSD   float64 `gorm:"column:realized_pnl_usd"`
	Wins             int     `gorm:"column:wins"`
	Losses           int     `gorm:"column:losses"`
	ContrarianWins   int     `gorm:"column:contrarian_wins"`
	ContrarianLosses int     `gorm:"column:contrarian_losses"`
	Cycles           int     `gorm:"column:cycles"`
	DryRun           int     `gorm:"column:dry_run"`
}

func (SessionModel) TableName() string { return "sessions" }

type TradeModel struct {
	ID           int64          `gorm:"column:id;primaryKey"`
	SessionID    string         `gorm:"column:session_id;index"`
	Coin         string         `gorm:"column:coin;index"`
	Side         string         `gorm:"column:side"`
	Rule         string         `gorm:"column:rule"`
	Category     string         `gorm:"column:category"`
	Confidence   float64        `gorm:"column:confidence"`
	EntryPrice   float64        `gorm:"column:entry_price"`
	Size         float64        `gorm:"column:size"`
	Leverage     int            `gorm:"column:leverage"`
	NotionalUSD  float64        `gorm:"column:notional_usd"`
	SnapshotJSON datatypes.JSON `gorm:"column:snapshot_json;type:TEXT"`
	OpenedAtUnix int64          `gorm:"column:opened_at"`
	ClosedAtUnix int64          `gorm:"column:closed_at"`
	ExitRule     string         `gorm:"column:exit_rule"`
	ExitPrice    float64        `gorm:"column:exit_price"`
	RealizedUSD  float64        `gorm:"column:realized_usd"`
	RealizedPct  float64        `gorm:"column:realized_pct"`
	Simulated    int            `gorm:"column:simulated"`
}

func (TradeModel) TableName() string { return "trades" }

type LessonModel struct {
	ID            int64          `gorm:"column:id;primaryKey"`
	SessionID     string         `gorm:"column:session_id;index"`
	GeneratedUnix int64          `gorm:"column:generated_at"`
	ReportJSON    datatypes.JSON `gorm:"column:report_json;type:TEXT"`
	ReportText    string         `gorm:"column:report_text"`
}

func (LessonModel) TableName() string { return "lessons" }
