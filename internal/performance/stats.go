// Package performance computes trading statistics and records periodic snapshots.
package performance

import (
	"time"

	"monad-trade-agent-go/internal/domain"
	"monad-trade-agent-go/internal/models"

	"github.com/shopspring/decimal"
)

// StatsDetail holds calculated statistics for a given period.
type StatsDetail struct {
	TotalTrades      int64           `json:"total_trades"`
	FailedTrades     int64           `json:"failed_trades"`
	ClosedTrades     int64           `json:"closed_trades"`
	ProfitableTrades int64           `json:"profitable_trades"`
	WinRate          float64         `json:"win_rate"`
	Volume           decimal.Decimal `json:"volume"`
	RealizedPnl      decimal.Decimal `json:"realized_pnl"`
}

// Statistics is the statistics of the last 24 hours and of all time.
type Statistics struct {
	Since24h StatsDetail `json:"since_24h"`
	AllTime  StatsDetail `json:"all_time"`
}

func newDetail() StatsDetail {
	return StatsDetail{Volume: decimal.Zero, RealizedPnl: decimal.Zero}
}

func (s *StatsDetail) add(t models.Trade) {
	s.TotalTrades++
	if !t.Success {
		s.FailedTrades++
		return
	}
	// MON is the amount in on buys and the amount out on sells.
	if t.Action == string(domain.ActionBuy) {
		s.Volume = s.Volume.Add(t.AmountIn)
		return
	}
	s.Volume = s.Volume.Add(t.AmountOut)
	s.ClosedTrades++
	s.RealizedPnl = s.RealizedPnl.Add(t.RealizedPnl)
	if t.RealizedPnl.IsPositive() {
		s.ProfitableTrades++
	}
}

func (s *StatsDetail) finish() {
	if s.ClosedTrades > 0 {
		s.WinRate = float64(s.ProfitableTrades) / float64(s.ClosedTrades)
	}
}

// Calculate derives statistics from trades. A win is a settled sell with
// positive realized pnl; the win rate is over settled sells.
func Calculate(trades []models.Trade, now time.Time) Statistics {
	since24h := now.Add(-24 * time.Hour)
	stats := Statistics{Since24h: newDetail(), AllTime: newDetail()}

	for _, trade := range trades {
		stats.AllTime.add(trade)
		if trade.SettledAt.After(since24h) {
			stats.Since24h.add(trade)
		}
	}

	stats.AllTime.finish()
	stats.Since24h.finish()
	return stats
}
