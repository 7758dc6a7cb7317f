package trader

import (
	"errors"
	"fmt"

	"monad-trade-agent-go/internal/domain"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	reasonStopLoss   = "stop_loss"
	reasonTakeProfit = "take_profit"
)

// ExitStrategy sells open positions that cross the profile's stop-loss or
// take-profit thresholds.
type ExitStrategy struct{}

func (s *ExitStrategy) Name() string {
	return "Exit"
}

func (s *ExitStrategy) Initialize(ctx StrategyContext) error {
	if ctx.Positions == nil {
		return fmt.Errorf("exit strategy needs a position reader")
	}
	ctx.Logger.Info("ExitStrategy initialized",
		zap.String("stop_loss_percent", ctx.Wallet.Profile.StopLossPercent.String()),
		zap.String("take_profit_percent", ctx.Wallet.Profile.TakeProfitPercent.String()))
	return nil
}

func (s *ExitStrategy) Scout(ctx StrategyContext) error {
	wallet := ctx.Wallet.Address()
	l := ctx.Logger.With(zap.String("strategy", s.Name()), zap.String("wallet", wallet))

	positions, err := ctx.Positions.Positions(ctx.Ctx, wallet)
	if errors.Is(err, domain.ErrWalletNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("could not list positions: %w", err)
	}

	profile := ctx.Wallet.Profile
	at := clock(ctx)
	for _, p := range positions {
		if !p.Open() || p.CurrentPrice.IsZero() {
			continue
		}
		reason := exitReason(p, profile.StopLossPercent, profile.TakeProfitPercent)
		if reason == "" {
			continue
		}
		sig := exitSignal(ctx, p, reason, at)
		outcome := ctx.Dispatcher.Dispatch(ctx.Ctx, ctx.Wallet, sig)
		l.Info("Exit threshold crossed",
			zap.String("token", p.Token),
			zap.String("reason", reason),
			zap.String("pnl_percent", p.UnrealizedPnlPercent.StringFixed(2)),
			zap.String("outcome", string(outcome)))
	}
	return nil
}

// exitReason reports which threshold p crossed, if any. A zero threshold is disabled.
func exitReason(p domain.Position, stopLoss, takeProfit decimal.Decimal) string {
	pct := p.UnrealizedPnlPercent
	switch {
	case stopLoss.IsPositive() && pct.LessThanOrEqual(stopLoss.Neg()):
		return reasonStopLoss
	case takeProfit.IsPositive() && pct.GreaterThanOrEqual(takeProfit):
		return reasonTakeProfit
	default:
		return ""
	}
}
