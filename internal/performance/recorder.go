package performance

import (
	"context"
	"fmt"
	"time"

	"monad-trade-agent-go/internal/database"
	"monad-trade-agent-go/internal/models"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Store reads trades and stores performance snapshots.
type Store interface {
	ListTrades(ctx context.Context, filter database.TradeFilter) ([]models.Trade, error)
	SavePerformance(ctx context.Context, p *models.StrategyPerformance) error
}

// WalletStrategy names the strategy a wallet trades.
type WalletStrategy struct {
	Wallet   string
	Strategy string
}

// Recorder snapshots the all-time statistics of every wallet on a cron schedule.
type Recorder struct {
	store   Store
	wallets []WalletStrategy
	logger  *zap.Logger
	now     func() time.Time
}

// NewRecorder creates a recorder for wallets.
func NewRecorder(store Store, wallets []WalletStrategy, logger *zap.Logger) *Recorder {
	return &Recorder{
		store:   store,
		wallets: wallets,
		logger:  logger.Named("performance"),
		now:     time.Now,
	}
}

// Snapshot records one StrategyPerformance row per wallet.
func (r *Recorder) Snapshot(ctx context.Context) error {
	at := r.now()
	for _, w := range r.wallets {
		trades, err := r.store.ListTrades(ctx, database.TradeFilter{Wallet: w.Wallet})
		if err != nil {
			return fmt.Errorf("could not list trades of %s: %w", w.Wallet, err)
		}
		stats := Calculate(trades, at).AllTime
		row := &models.StrategyPerformance{
			Wallet:      w.Wallet,
			Strategy:    w.Strategy,
			TotalTrades: stats.TotalTrades,
			FailedCount: stats.FailedTrades,
			ClosedCount: stats.ClosedTrades,
			WinCount:    stats.ProfitableTrades,
			WinRate:     stats.WinRate,
			Volume:      stats.Volume,
			RealizedPnl: stats.RealizedPnl,
			RecordedAt:  at,
		}
		if err := r.store.SavePerformance(ctx, row); err != nil {
			return fmt.Errorf("could not save performance of %s: %w", w.Wallet, err)
		}
		r.logger.Info("Recorded performance",
			zap.String("wallet", w.Wallet),
			zap.Int64("trades", stats.TotalTrades),
			zap.Float64("win_rate", stats.WinRate),
			zap.String("realized_pnl", stats.RealizedPnl.String()))
	}
	return nil
}

// Start schedules Snapshot and stops the schedule when ctx is done.
func (r *Recorder) Start(ctx context.Context, schedule string) (*cron.Cron, error) {
	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		if err := r.Snapshot(ctx); err != nil {
			r.logger.Error("Failed to record performance", zap.Error(err))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid performance schedule %q: %w", schedule, err)
	}

	r.logger.Info("Performance recorder started", zap.String("schedule", schedule))
	c.Start()
	go func() {
		<-ctx.Done()
		<-c.Stop().Done()
	}()
	return c, nil
}
