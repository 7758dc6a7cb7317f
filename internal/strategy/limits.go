package strategy

import (
	"time"

	"github.com/shopspring/decimal"
)

// Slippage bounds in basis points.
type Slippage struct {
	DefaultBps          int
	HighVolatilityBps   int
	MaxBps              int
	VolatilityThreshold float64 // percent price move that switches to HighVolatilityBps
}

// PositionLimits caps the size of a single position.
type PositionLimits struct {
	MaxPositionMON     decimal.Decimal
	MaxPositionPercent decimal.Decimal
}

// Transaction holds submission timing.
type Transaction struct {
	Deadline   time.Duration
	MaxRetries int
	RetryDelay time.Duration
}

// TradingLimits are the process-wide trading constants.
type TradingLimits struct {
	Slippage    Slippage
	Position    PositionLimits
	Transaction Transaction
}

// DefaultLimits returns the built-in trading constants.
func DefaultLimits() TradingLimits {
	return TradingLimits{
		Slippage: Slippage{
			DefaultBps:          100,
			HighVolatilityBps:   300,
			MaxBps:              500,
			VolatilityThreshold: 25,
		},
		Position: PositionLimits{
			MaxPositionMON:     decimal.RequireFromString("0.1"),
			MaxPositionPercent: decimal.NewFromInt(20),
		},
		Transaction: Transaction{
			Deadline:   5 * time.Minute,
			MaxRetries: 3,
			RetryDelay: 2 * time.Second,
		},
	}
}

// SlippageFor picks the slippage bound for a signal's volatility.
func (l TradingLimits) SlippageFor(volatility float64) int {
	bps := l.Slippage.DefaultBps
	if l.Slippage.VolatilityThreshold > 0 && volatility >= l.Slippage.VolatilityThreshold {
		bps = l.Slippage.HighVolatilityBps
	}
	if l.Slippage.MaxBps > 0 && bps > l.Slippage.MaxBps {
		bps = l.Slippage.MaxBps
	}
	return bps
}
