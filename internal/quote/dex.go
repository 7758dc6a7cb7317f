package quote

import (
	"context"
	"fmt"
	"net/http"

	"monad-trade-agent-go/internal/domain"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
)

// NativeToken is the identifier of MON in aggregator requests.
const NativeToken = "native"

// DexQuoteResponse is the aggregator quote payload.
type DexQuoteResponse struct {
	TokenIn     string          `json:"tokenIn"`
	TokenOut    string          `json:"tokenOut"`
	AmountIn    decimal.Decimal `json:"amountIn"`
	AmountOut   decimal.Decimal `json:"amountOut"`
	PriceImpact decimal.Decimal `json:"priceImpact"`
	Fee         decimal.Decimal `json:"fee"`
}

// DexSource quotes tokens through a DEX aggregator HTTP API.
type DexSource struct {
	client *resty.Client
}

// NewDexSource creates a DEX source for the aggregator at baseURL.
func NewDexSource(baseURL string) *DexSource {
	return &DexSource{client: resty.New().SetBaseURL(baseURL)}
}

func (s *DexSource) Route() domain.Route { return domain.RouteDEX }

func (s *DexSource) Quote(ctx context.Context, token string, direction domain.Action, amount decimal.Decimal) (domain.Quote, error) {
	tokenIn, tokenOut := NativeToken, token
	if direction == domain.ActionSell {
		tokenIn, tokenOut = token, NativeToken
	}

	var result DexQuoteResponse
	resp, err := s.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"tokenIn":  tokenIn,
			"tokenOut": tokenOut,
			"amount":   amount.String(),
		}).
		SetResult(&result).
		Get("/quote")
	if err != nil {
		return domain.Quote{}, fmt.Errorf("dex quote request failed: %w", err)
	}
	switch {
	case resp.StatusCode() == http.StatusNotFound:
		return domain.Quote{}, fmt.Errorf("%w: %s not listed", ErrNoLiquidity, token)
	case resp.IsError():
		return domain.Quote{}, fmt.Errorf("dex quote failed with status %s: %s", resp.Status(), resp.String())
	}
	if !result.AmountOut.IsPositive() {
		return domain.Quote{}, fmt.Errorf("%w: %s has no dex liquidity", ErrNoLiquidity, token)
	}

	return domain.Quote{
		Token:       token,
		Direction:   direction,
		AmountIn:    amount,
		AmountOut:   result.AmountOut,
		PriceImpact: result.PriceImpact,
		Fee:         result.Fee,
		Route:       domain.RouteDEX,
	}, nil
}
