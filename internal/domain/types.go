package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Action is the trade direction proposed by a signal.
type Action string

const (
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"
	ActionHold Action = "hold"
)

// Route tags where a quote can be executed.
type Route string

const (
	RouteBondingCurve Route = "bonding_curve"
	RouteDEX          Route = "dex"
)

// RiskLevel is the declared risk tier of a token.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// ParseRiskLevel maps a free-form tier onto a RiskLevel. Unknown tiers are high.
func ParseRiskLevel(s string) RiskLevel {
	switch RiskLevel(s) {
	case RiskLow, RiskMedium:
		return RiskLevel(s)
	default:
		return RiskHigh
	}
}

// TradeSignal is a scored, expiring trade proposal.
type TradeSignal struct {
	ID              string           `json:"id"`
	Token           string           `json:"token"`
	Action          Action           `json:"action"`
	Confidence      float64          `json:"confidence"`
	Reason          string           `json:"reason"`
	SuggestedAmount *decimal.Decimal `json:"suggested_amount,omitempty"`
	Risk            RiskLevel        `json:"risk"`
	Volatility      float64          `json:"volatility"`
	Source          string           `json:"source"`
	CreatedAt       time.Time        `json:"created_at"`
	ExpiresAt       time.Time        `json:"expires_at"`
}

// Expired reports whether the signal can no longer be acted on at now.
func (s TradeSignal) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Validate checks the structural invariants of a signal.
func (s TradeSignal) Validate() error {
	if s.Token == "" {
		return fmt.Errorf("signal %s has no token", s.ID)
	}
	if s.Confidence < 0 || s.Confidence > 1 {
		return fmt.Errorf("signal %s confidence %.4f outside [0,1]", s.ID, s.Confidence)
	}
	if !s.ExpiresAt.After(s.CreatedAt) {
		return fmt.Errorf("signal %s expires before it is created", s.ID)
	}
	return nil
}

// Quote is an executable price for one decision cycle.
type Quote struct {
	Token       string          `json:"token"`
	Direction   Action          `json:"direction"`
	AmountIn    decimal.Decimal `json:"amount_in"`
	AmountOut   decimal.Decimal `json:"amount_out"`
	PriceImpact decimal.Decimal `json:"price_impact"`
	Fee         decimal.Decimal `json:"fee"`
	Route       Route           `json:"route"`
	ResolvedAt  time.Time       `json:"resolved_at"`
}

// Price returns MON per token implied by the quote.
func (q Quote) Price() decimal.Decimal {
	if q.Direction == ActionBuy {
		if q.AmountOut.IsZero() {
			return decimal.Zero
		}
		return q.AmountIn.Div(q.AmountOut)
	}
	if q.AmountIn.IsZero() {
		return decimal.Zero
	}
	return q.AmountOut.Div(q.AmountIn)
}

// TradeParams is a submitted trade request.
type TradeParams struct {
	TradeID           string          `json:"trade_id"`
	Action            Action          `json:"action"`
	Token             string          `json:"token"`
	AmountIn          decimal.Decimal `json:"amount_in"`
	ExpectedAmountOut decimal.Decimal `json:"expected_amount_out"`
	MinAmountOut      decimal.Decimal `json:"min_amount_out"`
	SlippageBps       int             `json:"slippage_bps"`
	Recipient         string          `json:"recipient"`
	Deadline          time.Time       `json:"deadline"`
	Route             Route           `json:"route"`
}

// Validate checks the params are submittable at now.
func (p TradeParams) Validate(now time.Time) error {
	if p.Action != ActionBuy && p.Action != ActionSell {
		return fmt.Errorf("trade %s: action %q is not executable", p.TradeID, p.Action)
	}
	if !p.AmountIn.IsPositive() {
		return fmt.Errorf("trade %s: amount in must be positive", p.TradeID)
	}
	if p.SlippageBps < 0 || p.SlippageBps > 10000 {
		return fmt.Errorf("trade %s: slippage %d bps out of range", p.TradeID, p.SlippageBps)
	}
	if !p.Deadline.After(now) {
		return fmt.Errorf("trade %s: %w", p.TradeID, ErrDeadlineExceeded)
	}
	return nil
}

// MinOut applies a slippage bound in basis points to an expected amount.
func MinOut(expected decimal.Decimal, slippageBps int) decimal.Decimal {
	factor := decimal.NewFromInt(int64(10000 - slippageBps)).Div(decimal.NewFromInt(10000))
	return expected.Mul(factor)
}

// TradeResult is the settlement outcome of a trade.
type TradeResult struct {
	TradeID        string          `json:"trade_id"`
	Action         Action          `json:"action"`
	Token          string          `json:"token"`
	Success        bool            `json:"success"`
	TxHash         string          `json:"tx_hash,omitempty"`
	AmountIn       decimal.Decimal `json:"amount_in"`
	AmountOut      decimal.Decimal `json:"amount_out"`
	EffectivePrice decimal.Decimal `json:"effective_price"`
	Error          string          `json:"error,omitempty"`
	Simulated      bool            `json:"simulated,omitempty"`
	SettledAt      time.Time       `json:"settled_at"`
}

// FailedResult builds a terminal failure result for a trade.
func FailedResult(tradeID string, action Action, token string, err error, at time.Time) TradeResult {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return TradeResult{
		TradeID:   tradeID,
		Action:    action,
		Token:     token,
		Success:   false,
		Error:     msg,
		SettledAt: at,
	}
}

// Position is the per (wallet, token) holding.
type Position struct {
	Wallet               string          `json:"wallet"`
	Token                string          `json:"token"`
	Balance              decimal.Decimal `json:"balance"`
	CostBasis            decimal.Decimal `json:"cost_basis"`
	EntryPrice           decimal.Decimal `json:"entry_price"`
	LastFillPrice        decimal.Decimal `json:"-"`
	CurrentPrice         decimal.Decimal `json:"current_price"`
	CurrentValue         decimal.Decimal `json:"current_value"`
	UnrealizedPnl        decimal.Decimal `json:"unrealized_pnl"`
	UnrealizedPnlPercent decimal.Decimal `json:"unrealized_pnl_percent"`
	RealizedPnl          decimal.Decimal `json:"realized_pnl"`
	UpdatedAt            time.Time       `json:"updated_at"`
}

// Open reports whether the position still holds tokens.
func (p Position) Open() bool {
	return p.Balance.IsPositive()
}

// Invested is the cost of the held balance.
func (p Position) Invested() decimal.Decimal {
	return p.CostBasis.Mul(p.Balance)
}

// Mark returns a copy valued at price.
func (p Position) Mark(price decimal.Decimal) Position {
	p.CurrentPrice = price
	p.CurrentValue = price.Mul(p.Balance)
	p.UnrealizedPnl = price.Sub(p.CostBasis).Mul(p.Balance)
	p.UnrealizedPnlPercent = decimal.Zero
	if invested := p.Invested(); invested.IsPositive() {
		p.UnrealizedPnlPercent = p.UnrealizedPnl.Div(invested).Mul(decimal.NewFromInt(100))
	}
	return p
}

// PortfolioSummary aggregates the positions of one wallet.
type PortfolioSummary struct {
	Wallet             string          `json:"wallet"`
	TotalValue         decimal.Decimal `json:"total_value"`
	TotalCostBasis     decimal.Decimal `json:"total_cost_basis"`
	TotalUnrealizedPnl decimal.Decimal `json:"total_unrealized_pnl"`
	TotalRealizedPnl   decimal.Decimal `json:"total_realized_pnl"`
	OpenPositions      int             `json:"open_positions"`
	LastUpdated        time.Time       `json:"last_updated"`
}

// Summarize derives a summary from marked positions.
func Summarize(wallet string, positions []Position, now time.Time) PortfolioSummary {
	s := PortfolioSummary{
		Wallet:             wallet,
		TotalValue:         decimal.Zero,
		TotalCostBasis:     decimal.Zero,
		TotalUnrealizedPnl: decimal.Zero,
		TotalRealizedPnl:   decimal.Zero,
		LastUpdated:        now,
	}
	for _, p := range positions {
		s.TotalValue = s.TotalValue.Add(p.CurrentValue)
		s.TotalCostBasis = s.TotalCostBasis.Add(p.Invested())
		s.TotalUnrealizedPnl = s.TotalUnrealizedPnl.Add(p.UnrealizedPnl)
		s.TotalRealizedPnl = s.TotalRealizedPnl.Add(p.RealizedPnl)
		if p.Open() {
			s.OpenPositions++
		}
	}
	return s
}
