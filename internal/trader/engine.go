package trader

import (
	"context"
	"fmt"
	"sync"
	"time"

	"monad-trade-agent-go/internal/config"
	"monad-trade-agent-go/internal/signal"
	"monad-trade-agent-go/internal/social"
	"monad-trade-agent-go/internal/strategy"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Status describes a running engine.
type Status struct {
	UUID       string       `json:"uuid"`
	Name       string       `json:"name"`
	Strategies []string     `json:"strategies"`
	Wallets    []string     `json:"wallets"`
	StartTime  time.Time    `json:"start_time"`
	Uptime     string       `json:"uptime"`
	Pairs      []PairStatus `json:"pairs"`
}

// Engine runs the strategies of every managed wallet on a ticker.
type Engine struct {
	UUID      string
	Name      string
	StartTime time.Time

	logger     *zap.Logger
	cfg        *config.Config
	dispatcher Dispatcher
	positions  PositionReader
	social     social.Source
	evaluator  *signal.Evaluator
	wallets    []Wallet

	// NewStrategies builds the strategy set of one wallet.
	NewStrategies func() []Strategy

	mu         sync.Mutex
	strategies []string
}

// NewEngine creates a new trading engine.
func NewEngine(logger *zap.Logger, cfg *config.Config, dispatcher Dispatcher, positions PositionReader, source social.Source, evaluator *signal.Evaluator, wallets []Wallet) *Engine {
	return &Engine{
		UUID:          uuid.NewString(),
		Name:          "monad-trade-agent",
		StartTime:     time.Now(),
		logger:        logger.Named("engine"),
		cfg:           cfg,
		dispatcher:    dispatcher,
		positions:     positions,
		social:        source,
		evaluator:     evaluator,
		wallets:       wallets,
		NewStrategies: DefaultStrategies,
	}
}

// Run starts one scout loop per wallet and blocks until ctx is done and
// in-flight trades have finished.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("Initializing trading engine...", zap.Int("wallets", len(e.wallets)))
	if len(e.wallets) == 0 {
		return fmt.Errorf("no wallets configured")
	}

	type worker struct {
		sctx       StrategyContext
		strategies []Strategy
		interval   time.Duration
	}
	workers := make([]worker, 0, len(e.wallets))
	for _, w := range e.wallets {
		sctx := StrategyContext{
			Ctx:        ctx,
			Logger:     e.logger.With(zap.String("wallet_name", w.Name), zap.String("wallet", w.Address())),
			Cfg:        e.cfg,
			Wallet:     w,
			Dispatcher: e.dispatcher,
			Positions:  e.positions,
			Social:     e.social,
			Evaluator:  e.evaluator,
		}
		strategies := e.NewStrategies()
		for _, s := range strategies {
			if err := s.Initialize(sctx); err != nil {
				return fmt.Errorf("failed to initialize strategy %s for wallet %s: %w", s.Name(), w.Name, err)
			}
		}
		workers = append(workers, worker{sctx: sctx, strategies: strategies, interval: e.interval(w)})
		e.recordStrategies(strategies)
	}
	e.logger.Info("Engine initialized successfully.")

	var wg sync.WaitGroup
	for _, wk := range workers {
		wg.Add(1)
		go func(wk worker) {
			defer wg.Done()
			e.loop(ctx, wk.sctx, wk.strategies, wk.interval)
		}(wk)
	}
	wg.Wait()

	e.logger.Info("Stopping trading engine, waiting for in-flight trades...")
	if waiter, ok := e.dispatcher.(interface{ Wait() }); ok {
		waiter.Wait()
	}
	return nil
}

// interval is the tick of a wallet. The legacy profile polls on its own interval.
func (e *Engine) interval(w Wallet) time.Duration {
	if w.Profile.Tier == strategy.Legacy && w.Profile.RebalanceInterval > 0 {
		return w.Profile.RebalanceInterval
	}
	if e.cfg != nil && e.cfg.Trading.TickInterval > 0 {
		return e.cfg.Trading.TickInterval
	}
	return 30 * time.Second
}

func (e *Engine) loop(ctx context.Context, sctx StrategyContext, strategies []Strategy, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	sctx.Logger.Info("Starting scout loop", zap.Duration("interval", interval))
	e.scout(sctx, strategies)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.scout(sctx, strategies)
		}
	}
}

func (e *Engine) scout(sctx StrategyContext, strategies []Strategy) {
	for _, s := range strategies {
		if sctx.Ctx.Err() != nil {
			return
		}
		if err := s.Scout(sctx); err != nil {
			sctx.Logger.Error("Scout failed", zap.String("strategy", s.Name()), zap.Error(err))
		}
	}
}

func (e *Engine) recordStrategies(strategies []Strategy) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, s := range strategies {
		known := false
		for _, name := range e.strategies {
			if name == s.Name() {
				known = true
				break
			}
		}
		if !known {
			e.strategies = append(e.strategies, s.Name())
		}
	}
}

// Status returns the engine's identity, uptime and the state of every pair.
func (e *Engine) Status() Status {
	e.mu.Lock()
	names := append([]string(nil), e.strategies...)
	e.mu.Unlock()

	wallets := make([]string, 0, len(e.wallets))
	for _, w := range e.wallets {
		wallets = append(wallets, w.Address())
	}
	st := Status{
		UUID:       e.UUID,
		Name:       e.Name,
		Strategies: names,
		Wallets:    wallets,
		StartTime:  e.StartTime,
		Uptime:     time.Since(e.StartTime).Round(time.Second).String(),
	}
	if c, ok := e.dispatcher.(interface{ States() []PairStatus }); ok {
		st.Pairs = c.States()
	}
	return st
}
