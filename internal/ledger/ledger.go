package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"monad-trade-agent-go/internal/domain"
	"monad-trade-agent-go/internal/wallet"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Settlement is one applied trade together with the position it produced.
type Settlement struct {
	Wallet      string
	Result      domain.TradeResult
	Position    domain.Position
	RealizedPnl decimal.Decimal
}

// Store persists positions and settled trades.
type Store interface {
	LoadPosition(ctx context.Context, wallet, token string) (domain.Position, bool, error)
	ListPositions(ctx context.Context, wallet string) ([]domain.Position, error)
	HasSettlement(ctx context.Context, tradeID string) (bool, error)
	// SaveSettlement stores the trade and the new position atomically.
	SaveSettlement(ctx context.Context, s Settlement) error
	RecordFailure(ctx context.Context, wallet string, result domain.TradeResult) error
	WalletExists(ctx context.Context, wallet string) (bool, error)
}

// PriceSource returns the current MON price of a token.
type PriceSource interface {
	Price(ctx context.Context, token string) (decimal.Decimal, error)
}

type key struct {
	wallet string
	token  string
}

// Ledger tracks positions under the average-cost policy. Writes to one
// (wallet, token) are serialized and every trade id is applied at most once;
// the store's settled trade ids are the record of what was applied.
type Ledger struct {
	store  Store
	prices PriceSource
	logger *zap.Logger
	now    func() time.Time

	mu    sync.Mutex
	locks map[key]*sync.Mutex
}

// New creates a ledger backed by store. prices may be nil, in which case
// positions are valued at their last fill.
func New(store Store, prices PriceSource, logger *zap.Logger) *Ledger {
	return &Ledger{
		store:  store,
		prices: prices,
		logger: logger.Named("ledger"),
		now:    time.Now,
		locks:  make(map[key]*sync.Mutex),
	}
}

// canonicalToken keys positions by checksummed address, so one token written
// in different letter case is one position.
func canonicalToken(token string) string {
	return wallet.CanonicalAddress(token)
}

func (l *Ledger) lock(wallet, token string) func() {
	l.mu.Lock()
	m, ok := l.locks[key{wallet, token}]
	if !ok {
		m = &sync.Mutex{}
		l.locks[key{wallet, token}] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}

func (l *Ledger) load(ctx context.Context, wallet, token string) (domain.Position, error) {
	pos, ok, err := l.store.LoadPosition(ctx, wallet, token)
	if err != nil {
		return domain.Position{}, fmt.Errorf("failed to load position %s/%s: %w", wallet, token, err)
	}
	if !ok {
		pos = domain.Position{
			Wallet:        wallet,
			Token:         token,
			Balance:       decimal.Zero,
			CostBasis:     decimal.Zero,
			EntryPrice:    decimal.Zero,
			LastFillPrice: decimal.Zero,
			RealizedPnl:   decimal.Zero,
		}
	}
	return pos, nil
}

// ApplySettledTrade folds a settled trade into the (wallet, token) position.
// Failed results are recorded and leave the position untouched. A trade id
// that was already applied returns the current position and
// domain.ErrDuplicateSettlement.
func (l *Ledger) ApplySettledTrade(ctx context.Context, wallet, token string, result domain.TradeResult) (domain.Position, error) {
	token = canonicalToken(token)
	if result.Token != "" && canonicalToken(result.Token) != token {
		return domain.Position{}, fmt.Errorf("trade %s is for %s, not %s", result.TradeID, result.Token, token)
	}
	result.Token = token

	unlock := l.lock(wallet, token)
	defer unlock()

	current, err := l.load(ctx, wallet, token)
	if err != nil {
		return domain.Position{}, err
	}

	if !result.Success {
		if err := l.store.RecordFailure(ctx, wallet, result); err != nil {
			l.logger.Error("Failed to record failed trade", zap.String("trade_id", result.TradeID), zap.Error(err))
		}
		return l.mark(ctx, current), nil
	}

	done, err := l.store.HasSettlement(ctx, result.TradeID)
	if err != nil {
		return domain.Position{}, fmt.Errorf("failed to check settlement %s: %w", result.TradeID, err)
	}
	if done {
		return l.mark(ctx, current), fmt.Errorf("trade %s: %w", result.TradeID, domain.ErrDuplicateSettlement)
	}

	next, realized, err := apply(current, result)
	if err != nil {
		return l.mark(ctx, current), err
	}
	next.UpdatedAt = result.SettledAt
	if next.UpdatedAt.IsZero() {
		next.UpdatedAt = l.now()
	}

	if err := l.store.SaveSettlement(ctx, Settlement{Wallet: wallet, Result: result, Position: next, RealizedPnl: realized}); err != nil {
		return l.mark(ctx, current), fmt.Errorf("failed to save settlement %s: %w", result.TradeID, err)
	}

	l.logger.Info("Applied settled trade",
		zap.String("trade_id", result.TradeID),
		zap.String("wallet", wallet),
		zap.String("token", token),
		zap.String("action", string(result.Action)),
		zap.String("balance", next.Balance.String()),
		zap.String("cost_basis", next.CostBasis.String()),
		zap.String("realized_pnl", realized.String()),
	)
	return l.mark(ctx, next), nil
}

// apply computes the position after a fill. Buys spend AmountIn MON for
// AmountOut tokens; sells spend AmountIn tokens for AmountOut MON.
func apply(pos domain.Position, r domain.TradeResult) (domain.Position, decimal.Decimal, error) {
	if !r.AmountIn.IsPositive() || !r.AmountOut.IsPositive() {
		return pos, decimal.Zero, fmt.Errorf("trade %s has non-positive fill amounts", r.TradeID)
	}

	switch r.Action {
	case domain.ActionBuy:
		tokens, spent := r.AmountOut, r.AmountIn
		price := spent.Div(tokens)
		newBalance := pos.Balance.Add(tokens)
		if !pos.Balance.IsPositive() {
			pos.EntryPrice = price
		}
		pos.CostBasis = pos.CostBasis.Mul(pos.Balance).Add(spent).Div(newBalance)
		pos.Balance = newBalance
		pos.LastFillPrice = price
		return pos, decimal.Zero, nil

	case domain.ActionSell:
		tokens, received := r.AmountIn, r.AmountOut
		if tokens.GreaterThan(pos.Balance) {
			return pos, decimal.Zero, fmt.Errorf("sell %s of %s with %s held: %w", tokens, pos.Token, pos.Balance, domain.ErrInsufficientBalance)
		}
		realized := received.Sub(pos.CostBasis.Mul(tokens))
		pos.RealizedPnl = pos.RealizedPnl.Add(realized)
		pos.Balance = pos.Balance.Sub(tokens)
		pos.LastFillPrice = received.Div(tokens)
		if pos.Balance.IsZero() {
			pos.CostBasis = decimal.Zero
			pos.EntryPrice = decimal.Zero
		}
		return pos, realized, nil

	default:
		return pos, decimal.Zero, fmt.Errorf("trade %s: action %q cannot settle", r.TradeID, r.Action)
	}
}

// CheckSell fails with domain.ErrInsufficientBalance when amount exceeds the held balance.
func (l *Ledger) CheckSell(ctx context.Context, wallet, token string, amount decimal.Decimal) error {
	token = canonicalToken(token)
	pos, err := l.load(ctx, wallet, token)
	if err != nil {
		return err
	}
	if amount.GreaterThan(pos.Balance) {
		return fmt.Errorf("sell %s of %s with %s held: %w", amount, token, pos.Balance, domain.ErrInsufficientBalance)
	}
	return nil
}

// Position returns the (wallet, token) position valued at the current price.
func (l *Ledger) Position(ctx context.Context, wallet, token string) (domain.Position, error) {
	pos, err := l.load(ctx, wallet, canonicalToken(token))
	if err != nil {
		return domain.Position{}, err
	}
	return l.mark(ctx, pos), nil
}

// Positions returns every position of wallet, closed ones included, ordered
// by current value descending and then by token.
func (l *Ledger) Positions(ctx context.Context, wallet string) ([]domain.Position, error) {
	ok, err := l.store.WalletExists(ctx, wallet)
	if err != nil {
		return nil, fmt.Errorf("failed to look up wallet %s: %w", wallet, err)
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w", wallet, domain.ErrWalletNotFound)
	}

	stored, err := l.store.ListPositions(ctx, wallet)
	if err != nil {
		return nil, fmt.Errorf("failed to list positions of %s: %w", wallet, err)
	}

	positions := make([]domain.Position, len(stored))
	for i, p := range stored {
		positions[i] = l.mark(ctx, p)
	}
	sort.SliceStable(positions, func(i, j int) bool {
		if c := positions[i].CurrentValue.Cmp(positions[j].CurrentValue); c != 0 {
			return c > 0
		}
		return positions[i].Token < positions[j].Token
	})
	return positions, nil
}

// Summary aggregates the positions of wallet.
func (l *Ledger) Summary(ctx context.Context, wallet string) (domain.PortfolioSummary, error) {
	positions, err := l.Positions(ctx, wallet)
	if err != nil {
		return domain.PortfolioSummary{}, err
	}
	return domain.Summarize(wallet, positions, l.now()), nil
}

// PortfolioValue is the marked value of the open positions of wallet.
// Unknown wallets have no value.
func (l *Ledger) PortfolioValue(ctx context.Context, wallet string) (decimal.Decimal, error) {
	stored, err := l.store.ListPositions(ctx, wallet)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to list positions of %s: %w", wallet, err)
	}
	total := decimal.Zero
	for _, p := range stored {
		total = total.Add(l.mark(ctx, p).CurrentValue)
	}
	return total, nil
}

// mark values pos at the latest price, falling back to the last fill.
func (l *Ledger) mark(ctx context.Context, pos domain.Position) domain.Position {
	if !pos.Open() {
		return pos.Mark(decimal.Zero)
	}
	price := pos.LastFillPrice
	if l.prices != nil {
		p, err := l.prices.Price(ctx, pos.Token)
		if err == nil && p.IsPositive() {
			price = p
		} else if err != nil {
			l.logger.Debug("No live price, using last fill",
				zap.String("token", pos.Token),
				zap.String("price", price.String()),
				zap.Error(err),
			)
		}
	}
	return pos.Mark(price)
}
