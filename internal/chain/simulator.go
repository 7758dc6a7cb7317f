package chain

import (
	"context"
	"fmt"
	"sync"
	"time"

	"monad-trade-agent-go/internal/domain"

	"go.uber.org/zap"
)

// Simulator fills trades at their expected amount without broadcasting them.
// Reads are served by the wrapped gateway.
type Simulator struct {
	Gateway
	logger *zap.Logger

	mu       sync.Mutex
	receipts map[string]*Receipt
}

// NewSimulator wraps gw for dry-run trading.
func NewSimulator(gw Gateway, logger *zap.Logger) *Simulator {
	return &Simulator{
		Gateway:  gw,
		logger:   logger.Named("dry-run"),
		receipts: make(map[string]*Receipt),
	}
}

// SubmitTrade records a confirmed fill at the expected output.
func (s *Simulator) SubmitTrade(_ context.Context, signer Signer, params domain.TradeParams) (*Receipt, error) {
	s.logger.Warn("[Dry Run] Simulating trade",
		zap.String("trade_id", params.TradeID),
		zap.String("wallet", signer.Address()),
		zap.String("action", string(params.Action)),
		zap.String("token", params.Token),
		zap.String("amount_in", params.AmountIn.String()),
		zap.String("amount_out", params.ExpectedAmountOut.String()),
	)

	receipt := &Receipt{
		TradeID:   params.TradeID,
		TxHash:    fmt.Sprintf("dryrun-%s", params.TradeID),
		Status:    StatusConfirmed,
		AmountIn:  params.AmountIn,
		AmountOut: params.ExpectedAmountOut,
		BlockTime: time.Now().UnixMilli(),
		Simulated: true,
	}

	s.mu.Lock()
	s.receipts[params.TradeID] = receipt
	s.mu.Unlock()
	return receipt, nil
}

// GetTrade returns a simulated receipt.
func (s *Simulator) GetTrade(_ context.Context, tradeID string) (*Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.receipts[tradeID]
	if !ok {
		return nil, fmt.Errorf("trade %s: %w", tradeID, ErrNotFound)
	}
	return r, nil
}
