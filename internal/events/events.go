// Package events delivers settled and failed trade results to outside listeners.
package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"monad-trade-agent-go/internal/domain"

	"go.uber.org/zap"
)

// TradeEvent is the published form of a trade result.
type TradeEvent struct {
	Wallet      string             `json:"wallet"`
	Result      domain.TradeResult `json:"result"`
	PublishedAt time.Time          `json:"published_at"`
}

// NewTradeEvent wraps a result for publishing.
func NewTradeEvent(wallet string, result domain.TradeResult) TradeEvent {
	return TradeEvent{Wallet: wallet, Result: result, PublishedAt: time.Now().UTC()}
}

// Sink receives trade results.
type Sink interface {
	Publish(ctx context.Context, wallet string, result domain.TradeResult) error
}

// Noop drops every result.
type Noop struct{}

func (Noop) Publish(context.Context, string, domain.TradeResult) error { return nil }

// Fanout publishes to every sink. One failing sink does not stop the others.
type Fanout struct {
	sinks  []Sink
	logger *zap.Logger
}

// NewFanout creates a fan-out over sinks. Nil sinks are skipped.
func NewFanout(logger *zap.Logger, sinks ...Sink) *Fanout {
	f := &Fanout{logger: logger.Named("events")}
	for _, s := range sinks {
		if s != nil {
			f.sinks = append(f.sinks, s)
		}
	}
	return f
}

// Len returns the number of attached sinks.
func (f *Fanout) Len() int {
	return len(f.sinks)
}

func (f *Fanout) Publish(ctx context.Context, wallet string, result domain.TradeResult) error {
	var errs []error
	for _, s := range f.sinks {
		if err := s.Publish(ctx, wallet, result); err != nil {
			f.logger.Warn("Sink failed to publish trade result",
				zap.String("sink", fmt.Sprintf("%T", s)),
				zap.String("trade_id", result.TradeID),
				zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
