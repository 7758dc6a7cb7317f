package trader

import (
	"fmt"
	"strings"
	"time"

	"monad-trade-agent-go/internal/signal"

	"go.uber.org/zap"
)

// SocialSignalStrategy turns new posts of watched accounts into trade signals.
type SocialSignalStrategy struct {
	cursors map[string]time.Time
	seen    map[string]time.Time
}

func (s *SocialSignalStrategy) Name() string {
	return "SocialSignal"
}

func (s *SocialSignalStrategy) Initialize(ctx StrategyContext) error {
	if ctx.Social == nil || ctx.Evaluator == nil {
		return fmt.Errorf("social signal strategy needs a social source and an evaluator")
	}
	s.cursors = make(map[string]time.Time)
	s.seen = make(map[string]time.Time)

	var accounts []string
	if ctx.Cfg != nil {
		accounts = ctx.Cfg.Social.WatchedAccounts
	}
	if len(accounts) == 0 {
		ctx.Logger.Warn("No watched accounts configured. SocialSignalStrategy will not be able to trade.")
		return nil
	}

	// Look back one expiry horizon so fresh posts are not missed on start.
	start := clock(ctx).Add(-s.horizon(ctx))
	for _, a := range accounts {
		a = strings.TrimPrefix(strings.TrimSpace(a), "@")
		if a != "" {
			s.cursors[a] = start
		}
	}
	ctx.Logger.Info("SocialSignalStrategy initialized", zap.Int("accounts", len(s.cursors)))
	return nil
}

func (s *SocialSignalStrategy) horizon(ctx StrategyContext) time.Duration {
	if ctx.Cfg != nil && ctx.Cfg.Signal.ExpiryHorizon > 0 {
		return ctx.Cfg.Signal.ExpiryHorizon
	}
	return 5 * time.Minute
}

func (s *SocialSignalStrategy) Scout(ctx StrategyContext) error {
	l := ctx.Logger.With(zap.String("strategy", s.Name()), zap.String("wallet", ctx.Wallet.Address()))
	if len(s.cursors) == 0 {
		return nil
	}

	dispatched := 0
	for _, batch := range collectPosts(ctx, s.cursors) {
		for _, post := range batch.Posts {
			observedAt := clock(ctx)
			for _, token := range signal.ExtractTokens(post.Text) {
				key := post.ID + "/" + strings.ToLower(token)
				if _, ok := s.seen[key]; ok {
					continue
				}
				s.seen[key] = post.CreatedAt

				sig := ctx.Evaluator.Evaluate(signal.Observation{
					PostID:     post.ID,
					Author:     post.Author,
					Text:       post.Text,
					PostedAt:   post.CreatedAt,
					ObservedAt: observedAt,
					Token:      token,
					TokenRisk:  tokenRisk(ctx, token),
				})
				outcome := ctx.Dispatcher.Dispatch(ctx.Ctx, ctx.Wallet, sig)
				l.Info("Dispatched signal",
					zap.String("signal_id", sig.ID),
					zap.String("token", sig.Token),
					zap.String("action", string(sig.Action)),
					zap.Float64("confidence", sig.Confidence),
					zap.String("outcome", string(outcome)))
				dispatched++
			}
			if post.CreatedAt.After(s.cursors[batch.Account]) {
				s.cursors[batch.Account] = post.CreatedAt
			}
		}
	}

	s.prune(clock(ctx).Add(-2 * s.horizon(ctx)))
	if dispatched == 0 {
		l.Debug("No new signals in this cycle.")
	}
	return nil
}

// prune forgets posts older than cutoff. Cursors keep them from coming back.
func (s *SocialSignalStrategy) prune(cutoff time.Time) {
	for k, postedAt := range s.seen {
		if postedAt.Before(cutoff) {
			delete(s.seen, k)
		}
	}
}
