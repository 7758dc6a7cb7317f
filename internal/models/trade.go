package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Trade is a settled or failed trade of an agent wallet.
// TradeID is unique so a settlement can only be stored once.
type Trade struct {
	gorm.Model
	TradeID        string          `gorm:"uniqueIndex;not null" json:"trade_id"`
	Wallet         string          `gorm:"index;not null" json:"wallet"`
	Token          string          `gorm:"index;not null" json:"token"`
	Action         string          `json:"action"` // "buy" or "sell"
	Success        bool            `json:"success"`
	TxHash         string          `json:"tx_hash,omitempty"`
	AmountIn       decimal.Decimal `gorm:"type:text" json:"amount_in"`
	AmountOut      decimal.Decimal `gorm:"type:text" json:"amount_out"`
	EffectivePrice decimal.Decimal `gorm:"type:text" json:"effective_price"`
	RealizedPnl    decimal.Decimal `gorm:"type:text" json:"realized_pnl"`
	Error          string          `json:"error,omitempty"`
	IsSimulation   bool            `json:"is_simulation"`
	SettledAt      time.Time       `gorm:"index" json:"settled_at"`
}
