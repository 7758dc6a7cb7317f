package trader

import (
	"sort"
	"strings"
	"sync"
	"time"

	"monad-trade-agent-go/internal/domain"
	"monad-trade-agent-go/internal/social"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// exitNamespace seeds the ids of exit signals.
var exitNamespace = uuid.MustParse("0b7e3c94-6a21-4f5d-8e0c-2d4a9b61f3c7")

// accountPosts holds the posts fetched for one watched account.
type accountPosts struct {
	Account string
	Posts   []social.Post
}

// collectPosts fetches the posts of every account newer than its cursor.
// Accounts that fail are logged and skipped.
func collectPosts(ctx StrategyContext, cursors map[string]time.Time) []accountPosts {
	var wg sync.WaitGroup
	results := make(chan accountPosts, len(cursors))

	for account, since := range cursors {
		wg.Add(1)
		go func(account string, since time.Time) {
			defer wg.Done()
			posts, err := ctx.Social.GetRecentPosts(ctx.Ctx, account, since)
			if err != nil {
				ctx.Logger.Warn("Failed to fetch posts", zap.String("account", account), zap.Error(err))
				return
			}
			results <- accountPosts{Account: account, Posts: posts}
		}(account, since)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	var out []accountPosts
	for r := range results {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Account < out[j].Account })
	return out
}

// tokenRisk returns the configured risk tier of token, or "" when undeclared.
func tokenRisk(ctx StrategyContext, token string) domain.RiskLevel {
	if ctx.Cfg == nil {
		return ""
	}
	tier, ok := ctx.Cfg.Signal.TokenRisk[strings.ToLower(token)]
	if !ok {
		return ""
	}
	return domain.ParseRiskLevel(strings.ToLower(tier))
}

// exitSignal builds a full-exit sell for an open position. The id is stable
// for a given position state within one rebalance window.
func exitSignal(ctx StrategyContext, p domain.Position, reason string, at time.Time) domain.TradeSignal {
	window := ctx.Wallet.Profile.RebalanceInterval
	bucket := at
	if window > 0 {
		bucket = at.Truncate(window)
	}
	name := strings.Join([]string{
		p.Wallet,
		strings.ToLower(p.Token),
		p.UpdatedAt.UTC().Format(time.RFC3339Nano),
		reason,
		bucket.UTC().Format(time.RFC3339),
	}, "\x1f")

	horizon := 5 * time.Minute
	if ctx.Cfg != nil && ctx.Cfg.Signal.ExpiryHorizon > 0 {
		horizon = ctx.Cfg.Signal.ExpiryHorizon
	}

	return domain.TradeSignal{
		ID:         uuid.NewSHA1(exitNamespace, []byte(name)).String(),
		Token:      p.Token,
		Action:     domain.ActionSell,
		Confidence: 1,
		Reason:     reason,
		Risk:       domain.RiskLow,
		Source:     "exit",
		CreatedAt:  at,
		ExpiresAt:  at.Add(horizon),
	}
}

func clock(ctx StrategyContext) time.Time {
	if ctx.Now != nil {
		return ctx.Now()
	}
	return time.Now()
}
