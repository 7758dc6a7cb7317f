package signal

import (
	"strings"
	"testing"
	"time"

	"monad-trade-agent-go/internal/config"
	"monad-trade-agent-go/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const token = "0x1111111111111111111111111111111111111111"

func testConfig() config.Signal {
	return config.Signal{
		BuyKeywords:      []string{"buy", "moon", "ape"},
		SellKeywords:     []string{"sell", "rug", "dump"},
		KeywordWeight:    0.5,
		TrustWeight:      0.3,
		RecencyWeight:    0.2,
		KeywordSaturate:  3,
		BaseTrust:        0.3,
		WatchedBoost:     0.7,
		RecencyHalfLife:  10 * time.Minute,
		ConfidenceFloor:  0.4,
		ExpiryHorizon:    5 * time.Minute,
		DefaultTokenRisk: "high",
	}
}

func observation(text, author string) Observation {
	posted := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return Observation{
		PostID:     "post-1",
		Author:     author,
		Text:       text,
		PostedAt:   posted,
		ObservedAt: posted,
		Token:      token,
	}
}

func TestEvaluate_Deterministic(t *testing.T) {
	e := NewEvaluator(testConfig(), []string{"@alpha"})
	obs := observation("ape in, buy now, moon soon", "alpha")

	first := e.Evaluate(obs)
	second := NewEvaluator(testConfig(), []string{"alpha"}).Evaluate(obs)

	assert.Equal(t, first, second)
	assert.NotEmpty(t, first.ID)
}

func TestEvaluate_Scoring(t *testing.T) {
	e := NewEvaluator(testConfig(), []string{"alpha"})

	t.Run("WatchedBuyPost", func(t *testing.T) {
		sig := e.Evaluate(observation("ape in, buy now, moon soon", "Alpha"))

		// 0.5*1 + 0.3*0.7 + 0.2*1
		assert.Equal(t, domain.ActionBuy, sig.Action)
		assert.InDelta(t, 0.91, sig.Confidence, 1e-9)
		assert.Equal(t, domain.RiskHigh, sig.Risk)
		assert.Equal(t, sig.CreatedAt.Add(5*time.Minute), sig.ExpiresAt)
		require.NoError(t, sig.Validate())
	})

	t.Run("SellPost", func(t *testing.T) {
		sig := e.Evaluate(observation("total rug, dump it", "alpha"))

		assert.Equal(t, domain.ActionSell, sig.Action)
	})

	t.Run("BalancedPostHolds", func(t *testing.T) {
		sig := e.Evaluate(observation("buy or sell?", "alpha"))

		assert.Equal(t, domain.ActionHold, sig.Action)
	})

	t.Run("UnderFloorHolds", func(t *testing.T) {
		obs := observation("buy", "nobody")
		obs.ObservedAt = obs.PostedAt.Add(time.Hour)

		// 0.5/3 + 0.3*0.3 + 0.2*0.5^6
		sig := e.Evaluate(obs)

		assert.Equal(t, domain.ActionHold, sig.Action)
		assert.Less(t, sig.Confidence, 0.4)
	})

	t.Run("RecencyDecays", func(t *testing.T) {
		fresh := observation("buy buy buy", "alpha")
		stale := fresh
		stale.ObservedAt = stale.PostedAt.Add(10 * time.Minute)

		assert.InDelta(t, 0.1, e.Evaluate(fresh).Confidence-e.Evaluate(stale).Confidence, 1e-9)
	})
}

func TestExtractTokens(t *testing.T) {
	other := "0x2222222222222222222222222222222222222222"
	text := "loading " + token + " and " + other + ", again " + token

	assert.Equal(t, []string{token, other}, ExtractTokens(text))
	assert.Empty(t, ExtractTokens("no contracts here"))
}

func TestExtractTokens_CaseVariantsCollapse(t *testing.T) {
	lower := "0xf39fd6e51aad88f6f4ce6ab8827279cfffb92266"
	checksummed := "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
	text := "buy 0x" + strings.ToUpper(lower[2:]) + ", " + lower + " then " + checksummed

	assert.Equal(t, []string{checksummed}, ExtractTokens(text))
}

func TestEvaluate_ChecksumsToken(t *testing.T) {
	e := NewEvaluator(testConfig(), nil)
	lower := observation("buy", "whale")
	lower.Token = "0xf39fd6e51aad88f6f4ce6ab8827279cfffb92266"
	checksummed := lower
	checksummed.Token = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"

	a := e.Evaluate(lower)
	b := e.Evaluate(checksummed)

	assert.Equal(t, checksummed.Token, a.Token)
	assert.Equal(t, a, b)
}
