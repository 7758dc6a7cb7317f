package risk

import (
	"fmt"
	"time"

	"monad-trade-agent-go/internal/domain"
	"monad-trade-agent-go/internal/strategy"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var hundred = decimal.NewFromInt(100)

// Request is everything the gate needs to size one signal.
type Request struct {
	Signal   domain.TradeSignal
	Strategy strategy.Profile
	// Position is the current holding of the signal's token, if any.
	Position *domain.Position
	// WalletBalance is the free MON balance of the wallet.
	WalletBalance decimal.Decimal
	// PortfolioValue is the marked value of all open positions of the wallet.
	PortfolioValue decimal.Decimal
}

// Authorization is an approved, sized trade.
type Authorization struct {
	Action          domain.Action
	Amount          decimal.Decimal
	RequestedAmount decimal.Decimal
	Clamped         bool
	SlippageBps     int
}

// Gate authorizes signals against a strategy profile and the trading limits.
type Gate struct {
	limits strategy.TradingLimits
	logger *zap.Logger
	now    func() time.Time
}

// NewGate creates a gate enforcing limits.
func NewGate(limits strategy.TradingLimits, logger *zap.Logger) *Gate {
	return &Gate{limits: limits, logger: logger.Named("risk"), now: time.Now}
}

// Authorize runs the checks in order and returns the first failure.
// Rejections are *domain.RiskRejectedError; oversized trades fail with
// domain.ErrInsufficientBalance.
func (g *Gate) Authorize(req Request) (Authorization, error) {
	sig := req.Signal
	profile := req.Strategy

	if sig.Confidence < profile.MinConfidence {
		return Authorization{}, domain.RiskRejected(domain.ReasonLowConfidence,
			fmt.Sprintf("%.2f < %.2f for %s", sig.Confidence, profile.MinConfidence, profile.Tier))
	}

	if now := g.now(); sig.Expired(now) {
		return Authorization{}, domain.RiskRejected(domain.ReasonExpired,
			fmt.Sprintf("expired at %s", sig.ExpiresAt.Format(time.RFC3339)))
	}

	if sig.Action != domain.ActionBuy && sig.Action != domain.ActionSell {
		return Authorization{}, fmt.Errorf("signal %s: action %q: %w", sig.ID, sig.Action, domain.ErrInsufficientConfidence)
	}

	auth := Authorization{
		Action:      sig.Action,
		SlippageBps: g.limits.SlippageFor(sig.Volatility),
	}

	if sig.Action == domain.ActionSell {
		held := decimal.Zero
		if req.Position != nil {
			held = req.Position.Balance
		}
		auth.RequestedAmount = domain.AmountOrDefault(sig, held)
		auth.Amount = auth.RequestedAmount
		if !held.IsPositive() || auth.Amount.GreaterThan(held) {
			return Authorization{}, fmt.Errorf("sell %s of %s with %s held: %w", auth.Amount, sig.Token, held, domain.ErrInsufficientBalance)
		}
		return auth, nil
	}

	auth.RequestedAmount = domain.AmountOrDefault(sig, profile.MaxTradeAmount)
	ceiling := decimal.Min(profile.MaxTradeAmount, g.limits.Position.MaxPositionMON)
	auth.Amount = auth.RequestedAmount
	if auth.Amount.GreaterThan(ceiling) {
		auth.Amount = ceiling
		auth.Clamped = true
		g.logger.Info("Clamped buy amount",
			zap.String("signal_id", sig.ID),
			zap.String("requested", auth.RequestedAmount.String()),
			zap.String("amount", auth.Amount.String()),
		)
	}
	if !auth.Amount.IsPositive() {
		return Authorization{}, fmt.Errorf("buy %s: no amount to trade: %w", sig.Token, domain.ErrInsufficientBalance)
	}
	if auth.Amount.GreaterThan(req.WalletBalance) {
		return Authorization{}, fmt.Errorf("buy %s MON with %s MON available: %w", auth.Amount, req.WalletBalance, domain.ErrInsufficientBalance)
	}

	if pct := g.positionPercent(req, auth.Amount); pct.GreaterThan(g.limits.Position.MaxPositionPercent) {
		return Authorization{}, domain.RiskRejected(domain.ReasonPositionLimit,
			fmt.Sprintf("%s%% of portfolio > %s%%", pct.StringFixed(2), g.limits.Position.MaxPositionPercent))
	}

	if !profile.Allows(sig.Risk) {
		return Authorization{}, domain.RiskRejected(domain.ReasonRiskTier,
			fmt.Sprintf("%s not allowed for %s", sig.Risk, profile.Tier))
	}

	return auth, nil
}

// positionPercent is the share of total holdings the position would take after buying amount.
func (g *Gate) positionPercent(req Request, amount decimal.Decimal) decimal.Decimal {
	total := req.WalletBalance.Add(req.PortfolioValue)
	if !total.IsPositive() {
		return hundred
	}
	after := amount
	if req.Position != nil {
		after = after.Add(req.Position.CurrentValue)
	}
	return after.Div(total).Mul(hundred)
}
