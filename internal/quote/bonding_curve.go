package quote

import (
	"context"
	"errors"
	"fmt"

	"monad-trade-agent-go/internal/chain"
	"monad-trade-agent-go/internal/domain"

	"github.com/shopspring/decimal"
)

var bpsDenominator = decimal.NewFromInt(10000)

// CurveFill is the simulated outcome of a swap against a constant-product curve.
type CurveFill struct {
	AmountOut   decimal.Decimal
	Fee         decimal.Decimal
	PriceBefore decimal.Decimal
	PriceAfter  decimal.Decimal
	PriceImpact decimal.Decimal
}

// SimulateCurve prices amountIn against virtual reserves. Buys pay MON in and
// the fee is taken from the input; sells pay tokens in and the fee is taken
// from the MON output.
func SimulateCurve(direction domain.Action, amountIn, vNative, vToken decimal.Decimal, feeBps int) (CurveFill, error) {
	if !vNative.IsPositive() || !vToken.IsPositive() {
		return CurveFill{}, fmt.Errorf("%w: empty reserves", ErrNoLiquidity)
	}
	if !amountIn.IsPositive() {
		return CurveFill{}, errors.New("amount in must be positive")
	}

	feeRate := decimal.NewFromInt(int64(feeBps)).Div(bpsDenominator)
	k := vNative.Mul(vToken)
	priceBefore := vNative.Div(vToken)

	var fill CurveFill
	var newNative, newToken decimal.Decimal
	switch direction {
	case domain.ActionBuy:
		fill.Fee = amountIn.Mul(feeRate)
		newNative = vNative.Add(amountIn.Sub(fill.Fee))
		newToken = k.Div(newNative)
		fill.AmountOut = vToken.Sub(newToken)
	case domain.ActionSell:
		newToken = vToken.Add(amountIn)
		newNative = k.Div(newToken)
		gross := vNative.Sub(newNative)
		fill.Fee = gross.Mul(feeRate)
		fill.AmountOut = gross.Sub(fill.Fee)
	default:
		return CurveFill{}, fmt.Errorf("cannot price action %q", direction)
	}

	fill.PriceBefore = priceBefore
	fill.PriceAfter = newNative.Div(newToken)
	fill.PriceImpact = fill.PriceAfter.Sub(priceBefore).Div(priceBefore).Abs()
	return fill, nil
}

// CurveSource quotes tokens still trading on their bonding curve.
type CurveSource struct {
	gateway chain.Gateway
}

// NewCurveSource creates a bonding curve source backed by the chain gateway.
func NewCurveSource(gw chain.Gateway) *CurveSource {
	return &CurveSource{gateway: gw}
}

func (s *CurveSource) Route() domain.Route { return domain.RouteBondingCurve }

func (s *CurveSource) Quote(ctx context.Context, token string, direction domain.Action, amount decimal.Decimal) (domain.Quote, error) {
	state, err := s.gateway.GetCurveState(ctx, token)
	if err != nil {
		if errors.Is(err, chain.ErrNotFound) {
			return domain.Quote{}, fmt.Errorf("%w: %s has no curve", ErrNoLiquidity, token)
		}
		return domain.Quote{}, err
	}
	if state.Graduated {
		return domain.Quote{}, fmt.Errorf("%w: %s curve graduated", ErrNoLiquidity, token)
	}

	fill, err := SimulateCurve(direction, amount, state.VirtualNative, state.VirtualToken, state.FeeBps)
	if err != nil {
		return domain.Quote{}, err
	}
	return domain.Quote{
		Token:       token,
		Direction:   direction,
		AmountIn:    amount,
		AmountOut:   fill.AmountOut,
		PriceImpact: fill.PriceImpact,
		Fee:         fill.Fee,
		Route:       domain.RouteBondingCurve,
	}, nil
}
