package risk

import (
	"errors"
	"testing"
	"time"

	"monad-trade-agent-go/internal/domain"
	"monad-trade-agent-go/internal/strategy"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var now = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestGate() *Gate {
	g := NewGate(strategy.DefaultLimits(), zap.NewNop())
	g.now = func() time.Time { return now }
	return g
}

func amount(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func buySignal(conf float64, suggested *decimal.Decimal) domain.TradeSignal {
	return domain.TradeSignal{
		ID:              "sig-1",
		Token:           "0xtoken",
		Action:          domain.ActionBuy,
		Confidence:      conf,
		SuggestedAmount: suggested,
		Risk:            domain.RiskLow,
		CreatedAt:       now.Add(-time.Minute),
		ExpiresAt:       now.Add(4 * time.Minute),
	}
}

func profile(t *testing.T, tier strategy.Tier) strategy.Profile {
	p, err := strategy.DefaultTable().Lookup(string(tier))
	require.NoError(t, err)
	return p
}

func TestAuthorize_LowConfidenceAlwaysRejected(t *testing.T) {
	gate := newTestGate()
	for _, tier := range strategy.DefaultTable().Tiers() {
		p := profile(t, tier)
		for _, action := range []domain.Action{domain.ActionBuy, domain.ActionSell, domain.ActionHold} {
			for _, delta := range []float64{0.001, 0.1, p.MinConfidence} {
				sig := buySignal(p.MinConfidence-delta, nil)
				sig.Action = action
				// Even expired signals report low confidence first.
				sig.ExpiresAt = now.Add(-time.Second)

				_, err := gate.Authorize(Request{Signal: sig, Strategy: p, WalletBalance: decimal.NewFromInt(10)})

				assert.ErrorIs(t, err, domain.ErrRiskRejected)
				assert.Equal(t, domain.ReasonLowConfidence, domain.RejectionReason(err), "tier %s action %s", tier, action)
			}
		}
	}
}

func TestAuthorize_ClampsToMaxPosition(t *testing.T) {
	// Arrange
	gate := newTestGate()
	req := Request{
		Signal:         buySignal(0.9, amount("0.2")),
		Strategy:       profile(t, strategy.Balanced),
		WalletBalance:  decimal.NewFromInt(10),
		PortfolioValue: decimal.Zero,
	}

	// Act
	auth, err := gate.Authorize(req)

	// Assert
	require.NoError(t, err)
	assert.True(t, auth.Amount.Equal(decimal.RequireFromString("0.1")))
	assert.True(t, auth.RequestedAmount.Equal(decimal.RequireFromString("0.2")))
	assert.True(t, auth.Clamped)
	assert.Equal(t, domain.ActionBuy, auth.Action)
	assert.Equal(t, 100, auth.SlippageBps)
}

func TestAuthorize_DefaultsToProfileAmount(t *testing.T) {
	gate := newTestGate()

	auth, err := gate.Authorize(Request{
		Signal:        buySignal(0.9, nil),
		Strategy:      profile(t, strategy.Conservative),
		WalletBalance: decimal.NewFromInt(10),
	})

	require.NoError(t, err)
	assert.True(t, auth.Amount.Equal(decimal.RequireFromString("0.05")))
	assert.False(t, auth.Clamped)
}

func TestAuthorize_SellAboveBalance(t *testing.T) {
	gate := newTestGate()
	sig := buySignal(0.9, amount("50"))
	sig.Action = domain.ActionSell
	pos := &domain.Position{Wallet: "0xw", Token: "0xtoken", Balance: decimal.NewFromInt(30)}

	_, err := gate.Authorize(Request{Signal: sig, Strategy: profile(t, strategy.Balanced), Position: pos})

	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)
	assert.True(t, pos.Balance.Equal(decimal.NewFromInt(30)))
}

func TestAuthorize_SellWholePosition(t *testing.T) {
	gate := newTestGate()
	sig := buySignal(0.9, nil)
	sig.Action = domain.ActionSell
	sig.Risk = domain.RiskHigh // risk tier does not restrict exits

	auth, err := gate.Authorize(Request{
		Signal:   sig,
		Strategy: profile(t, strategy.Conservative),
		Position: &domain.Position{Balance: decimal.NewFromInt(30)},
	})

	require.NoError(t, err)
	assert.True(t, auth.Amount.Equal(decimal.NewFromInt(30)))
}

func TestAuthorize_Rejections(t *testing.T) {
	gate := newTestGate()

	tests := []struct {
		name    string
		req     func() Request
		reason  string
		wantErr error
	}{
		{
			name: "Expired",
			req: func() Request {
				sig := buySignal(0.9, nil)
				sig.ExpiresAt = now
				return Request{Signal: sig, Strategy: profile(t, strategy.Balanced), WalletBalance: decimal.NewFromInt(10)}
			},
			reason: domain.ReasonExpired,
		},
		{
			name: "PositionLimit",
			req: func() Request {
				return Request{
					Signal:         buySignal(0.9, amount("0.1")),
					Strategy:       profile(t, strategy.Balanced),
					WalletBalance:  decimal.RequireFromString("0.3"),
					PortfolioValue: decimal.RequireFromString("0.1"),
				}
			},
			reason: domain.ReasonPositionLimit,
		},
		{
			name: "RiskTier",
			req: func() Request {
				sig := buySignal(0.9, nil)
				sig.Risk = domain.RiskHigh
				return Request{Signal: sig, Strategy: profile(t, strategy.Balanced), WalletBalance: decimal.NewFromInt(10)}
			},
			reason: domain.ReasonRiskTier,
		},
		{
			name: "BuyAboveWalletBalance",
			req: func() Request {
				return Request{Signal: buySignal(0.9, nil), Strategy: profile(t, strategy.Balanced), WalletBalance: decimal.RequireFromString("0.01")}
			},
			wantErr: domain.ErrInsufficientBalance,
		},
		{
			name: "Hold",
			req: func() Request {
				sig := buySignal(0.9, nil)
				sig.Action = domain.ActionHold
				return Request{Signal: sig, Strategy: profile(t, strategy.Balanced), WalletBalance: decimal.NewFromInt(10)}
			},
			wantErr: domain.ErrInsufficientConfidence,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := gate.Authorize(tt.req())
			require.Error(t, err)
			if tt.reason != "" {
				assert.Equal(t, tt.reason, domain.RejectionReason(err))
			}
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
			}
		})
	}
}

func TestAuthorize_VolatileSlippage(t *testing.T) {
	gate := newTestGate()
	sig := buySignal(0.9, nil)
	sig.Volatility = 40

	auth, err := gate.Authorize(Request{Signal: sig, Strategy: profile(t, strategy.Aggressive), WalletBalance: decimal.NewFromInt(10)})

	require.NoError(t, err)
	assert.Equal(t, 300, auth.SlippageBps)
}
