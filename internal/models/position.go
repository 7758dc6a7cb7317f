package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Position is the stored holding of one token by one wallet.
type Position struct {
	gorm.Model
	Wallet        string          `gorm:"uniqueIndex:idx_wallet_token;not null"`
	Token         string          `gorm:"uniqueIndex:idx_wallet_token;not null"`
	Balance       decimal.Decimal `gorm:"type:text"`
	CostBasis     decimal.Decimal `gorm:"type:text"`
	EntryPrice    decimal.Decimal `gorm:"type:text"`
	LastFillPrice decimal.Decimal `gorm:"type:text"`
	RealizedPnl   decimal.Decimal `gorm:"type:text"`
	LastTradeAt   time.Time
}
