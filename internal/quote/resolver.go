package quote

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"monad-trade-agent-go/internal/domain"
	"monad-trade-agent-go/internal/retry"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ErrNoLiquidity means a route cannot execute the trade at all. It is not retried.
var ErrNoLiquidity = errors.New("no liquidity on route")

// Source prices a trade on one route.
type Source interface {
	Route() domain.Route
	Quote(ctx context.Context, token string, direction domain.Action, amount decimal.Decimal) (domain.Quote, error)
}

// Resolver picks the best executable quote across its sources.
type Resolver struct {
	sources []Source
	policy  retry.Policy
	logger  *zap.Logger
	now     func() time.Time
}

// NewResolver creates a resolver. Every source call runs under policy.
func NewResolver(policy retry.Policy, logger *zap.Logger, sources ...Source) *Resolver {
	policy.Retryable = func(err error) bool {
		return !errors.Is(err, ErrNoLiquidity) && !errors.Is(err, context.Canceled)
	}
	return &Resolver{
		sources: sources,
		policy:  policy,
		logger:  logger.Named("quote"),
		now:     time.Now,
	}
}

type routeResult struct {
	quote domain.Quote
	err   error
}

// Resolve quotes amount of token on every route and returns the one with the
// largest output. It fails with domain.ErrQuoteUnavailable when no route is viable.
func (r *Resolver) Resolve(ctx context.Context, token string, direction domain.Action, amount decimal.Decimal) (domain.Quote, error) {
	if direction != domain.ActionBuy && direction != domain.ActionSell {
		return domain.Quote{}, fmt.Errorf("%w: cannot quote %q", domain.ErrQuoteUnavailable, direction)
	}
	if !amount.IsPositive() {
		return domain.Quote{}, fmt.Errorf("%w: amount must be positive", domain.ErrQuoteUnavailable)
	}

	results := make([]routeResult, len(r.sources))
	var wg sync.WaitGroup
	for i, src := range r.sources {
		wg.Add(1)
		go func(i int, src Source) {
			defer wg.Done()
			var q domain.Quote
			err := r.policy.Do(ctx, func(attempt int) error {
				var err error
				q, err = src.Quote(ctx, token, direction, amount)
				return err
			})
			results[i] = routeResult{quote: q, err: err}
		}(i, src)
	}
	wg.Wait()

	var best *domain.Quote
	var errs []error
	for i := range results {
		res := results[i]
		if res.err != nil {
			r.logger.Debug("Route unavailable",
				zap.String("route", string(r.sources[i].Route())),
				zap.String("token", token),
				zap.Error(res.err),
			)
			errs = append(errs, res.err)
			continue
		}
		if !res.quote.AmountOut.IsPositive() {
			continue
		}
		if best == nil || res.quote.AmountOut.GreaterThan(best.AmountOut) {
			q := res.quote
			best = &q
		}
	}

	if best == nil {
		if len(errs) == 0 {
			return domain.Quote{}, fmt.Errorf("%w for %s %s", domain.ErrQuoteUnavailable, direction, token)
		}
		return domain.Quote{}, fmt.Errorf("%w for %s %s: %w", domain.ErrQuoteUnavailable, direction, token, errors.Join(errs...))
	}

	best.ResolvedAt = r.now()
	r.logger.Debug("Resolved quote",
		zap.String("token", token),
		zap.String("route", string(best.Route)),
		zap.String("amount_in", best.AmountIn.String()),
		zap.String("amount_out", best.AmountOut.String()),
	)
	return *best, nil
}

// Price returns the current MON price of one token, quoted as a unit sell.
func (r *Resolver) Price(ctx context.Context, token string) (decimal.Decimal, error) {
	q, err := r.Resolve(ctx, token, domain.ActionSell, decimal.NewFromInt(1))
	if err != nil {
		return decimal.Zero, err
	}
	return q.Price(), nil
}
