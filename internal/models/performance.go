package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// StrategyPerformance is a periodic snapshot of a wallet's trading results.
type StrategyPerformance struct {
	gorm.Model
	Wallet      string          `gorm:"index;not null" json:"wallet"`
	Strategy    string          `json:"strategy"`
	TotalTrades int64           `json:"total_trades"`
	FailedCount int64           `json:"failed_trades"`
	ClosedCount int64           `json:"closed_trades"`
	WinCount    int64           `json:"win_count"`
	WinRate     float64         `json:"win_rate"`
	Volume      decimal.Decimal `gorm:"type:text" json:"volume"`
	RealizedPnl decimal.Decimal `gorm:"type:text" json:"realized_pnl"`
	RecordedAt  time.Time       `gorm:"index" json:"recorded_at"`
}
