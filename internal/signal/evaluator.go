package signal

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"monad-trade-agent-go/internal/config"
	"monad-trade-agent-go/internal/domain"
	"monad-trade-agent-go/internal/wallet"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// namespace seeds name-based signal ids.
var namespace = uuid.MustParse("6f1c2a5e-4b7d-4e0a-9a53-0c1d8f2b7e41")

var tokenPattern = regexp.MustCompile(`0x[0-9a-fA-F]{40}`)

// Observation is one social post seen at a point in time, tied to a token.
type Observation struct {
	PostID          string
	Author          string
	Text            string
	PostedAt        time.Time
	ObservedAt      time.Time
	Token           string
	TokenRisk       domain.RiskLevel
	Volatility      float64
	SuggestedAmount *decimal.Decimal
}

// Evaluator scores observations into trade signals. It holds no clock;
// every timestamp comes from the observation.
type Evaluator struct {
	cfg     config.Signal
	buy     []string
	sell    []string
	watched map[string]struct{}
}

// NewEvaluator creates an evaluator with the scoring parameters of cfg.
// Posts from watched accounts get the watched trust boost.
func NewEvaluator(cfg config.Signal, watched []string) *Evaluator {
	e := &Evaluator{
		cfg:     cfg,
		buy:     normalize(cfg.BuyKeywords),
		sell:    normalize(cfg.SellKeywords),
		watched: make(map[string]struct{}, len(watched)),
	}
	for _, w := range watched {
		e.watched[normalizeHandle(w)] = struct{}{}
	}
	return e
}

func normalize(words []string) []string {
	out := make([]string, 0, len(words))
	for _, w := range words {
		if w = strings.ToLower(strings.TrimSpace(w)); w != "" {
			out = append(out, w)
		}
	}
	return out
}

func normalizeHandle(h string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(h), "@"))
}

// Evaluate turns an observation into a signal. Identical observations yield identical signals.
func (e *Evaluator) Evaluate(obs Observation) domain.TradeSignal {
	obs.Token = wallet.CanonicalAddress(obs.Token)
	text := strings.ToLower(obs.Text)
	buyHits := countHits(text, e.buy)
	sellHits := countHits(text, e.sell)

	action := domain.ActionHold
	dominant := 0
	switch {
	case buyHits > sellHits:
		action, dominant = domain.ActionBuy, buyHits-sellHits
	case sellHits > buyHits:
		action, dominant = domain.ActionSell, sellHits-buyHits
	}

	keyword := e.keywordScore(dominant)
	trust := e.trustScore(obs.Author)
	recency := e.recencyScore(obs.PostedAt, obs.ObservedAt)
	confidence := clamp01(e.cfg.KeywordWeight*keyword + e.cfg.TrustWeight*trust + e.cfg.RecencyWeight*recency)
	confidence = math.Round(confidence*1e6) / 1e6

	reason := fmt.Sprintf("@%s: %d buy / %d sell keywords, trust %.2f, recency %.2f", obs.Author, buyHits, sellHits, trust, recency)
	if action != domain.ActionHold && confidence < e.cfg.ConfidenceFloor {
		reason = fmt.Sprintf("%s; confidence %.2f under floor %.2f", reason, confidence, e.cfg.ConfidenceFloor)
		action = domain.ActionHold
	}

	risk := obs.TokenRisk
	if risk == "" {
		risk = domain.ParseRiskLevel(e.cfg.DefaultTokenRisk)
	}

	return domain.TradeSignal{
		ID:              signalID(obs).String(),
		Token:           obs.Token,
		Action:          action,
		Confidence:      confidence,
		Reason:          reason,
		SuggestedAmount: obs.SuggestedAmount,
		Risk:            risk,
		Volatility:      obs.Volatility,
		Source:          obs.PostID,
		CreatedAt:       obs.ObservedAt,
		ExpiresAt:       obs.ObservedAt.Add(e.cfg.ExpiryHorizon),
	}
}

func countHits(text string, keywords []string) int {
	hits := 0
	for _, k := range keywords {
		hits += strings.Count(text, k)
	}
	return hits
}

func (e *Evaluator) keywordScore(hits int) float64 {
	if hits <= 0 {
		return 0
	}
	saturate := e.cfg.KeywordSaturate
	if saturate < 1 {
		saturate = 1
	}
	return math.Min(float64(hits), float64(saturate)) / float64(saturate)
}

func (e *Evaluator) trustScore(author string) float64 {
	if _, ok := e.watched[normalizeHandle(author)]; ok {
		return clamp01(e.cfg.WatchedBoost)
	}
	return clamp01(e.cfg.BaseTrust)
}

func (e *Evaluator) recencyScore(postedAt, observedAt time.Time) float64 {
	if e.cfg.RecencyHalfLife <= 0 {
		return 1
	}
	age := observedAt.Sub(postedAt)
	if age < 0 {
		age = 0
	}
	return math.Pow(0.5, float64(age)/float64(e.cfg.RecencyHalfLife))
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func signalID(obs Observation) uuid.UUID {
	amount := ""
	if obs.SuggestedAmount != nil {
		amount = obs.SuggestedAmount.String()
	}
	name := strings.Join([]string{
		obs.PostID,
		obs.Author,
		obs.Token,
		obs.Text,
		obs.PostedAt.UTC().Format(time.RFC3339Nano),
		obs.ObservedAt.UTC().Format(time.RFC3339Nano),
		string(obs.TokenRisk),
		amount,
	}, "\x1f")
	return uuid.NewSHA1(namespace, []byte(name))
}

// ExtractTokens returns the distinct token addresses mentioned in text, in
// order and in checksummed form.
func ExtractTokens(text string) []string {
	seen := make(map[string]struct{})
	var tokens []string
	for _, m := range tokenPattern.FindAllString(text, -1) {
		addr := wallet.CanonicalAddress(m)
		if _, ok := seen[addr]; ok {
			continue
		}
		seen[addr] = struct{}{}
		tokens = append(tokens, addr)
	}
	return tokens
}
