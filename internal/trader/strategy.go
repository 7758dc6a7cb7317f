package trader

import (
	"context"
	"time"

	"monad-trade-agent-go/internal/config"
	"monad-trade-agent-go/internal/domain"
	"monad-trade-agent-go/internal/signal"
	"monad-trade-agent-go/internal/social"

	"go.uber.org/zap"
)

// Dispatcher accepts trade signals for a wallet.
type Dispatcher interface {
	Dispatch(ctx context.Context, w Wallet, sig domain.TradeSignal) DispatchOutcome
}

// PositionReader lists the valued positions of a wallet.
type PositionReader interface {
	Positions(ctx context.Context, wallet string) ([]domain.Position, error)
}

// StrategyContext provides the strategy with access to the core components.
type StrategyContext struct {
	Ctx        context.Context
	Logger     *zap.Logger
	Cfg        *config.Config
	Wallet     Wallet
	Dispatcher Dispatcher
	Positions  PositionReader
	Social     social.Source
	Evaluator  *signal.Evaluator
	Now        func() time.Time
}

// Strategy defines the interface for a trading strategy.
type Strategy interface {
	// Name returns the unique name of the strategy.
	Name() string

	// Initialize gives the strategy a chance to perform setup tasks.
	Initialize(ctx StrategyContext) error

	// Scout is the main logic of the strategy, called periodically by the engine.
	Scout(ctx StrategyContext) error
}

// DefaultStrategies returns a fresh strategy set for one wallet.
func DefaultStrategies() []Strategy {
	return []Strategy{&SocialSignalStrategy{}, &ExitStrategy{}}
}
