package strategy

import (
	"fmt"
	"strings"
	"time"

	"monad-trade-agent-go/internal/domain"

	"github.com/shopspring/decimal"
)

// Tier names a strategy profile.
type Tier string

const (
	Conservative Tier = "CONSERVATIVE"
	Balanced     Tier = "BALANCED"
	Aggressive   Tier = "AGGRESSIVE"
	Legacy       Tier = "LEGACY"
)

// Profile holds the limits a strategy tier trades under.
type Profile struct {
	Tier              Tier
	MinConfidence     float64
	MaxTradeAmount    decimal.Decimal
	AllowedRiskLevels []domain.RiskLevel
	StopLossPercent   decimal.Decimal
	TakeProfitPercent decimal.Decimal
	RebalanceInterval time.Duration
}

// Allows reports whether tokens of the given risk level may be bought.
func (p Profile) Allows(level domain.RiskLevel) bool {
	for _, l := range p.AllowedRiskLevels {
		if l == level {
			return true
		}
	}
	return false
}

// Table is the immutable lookup of strategy profiles.
type Table struct {
	profiles map[Tier]Profile
}

// DefaultTable returns the built-in CONSERVATIVE, BALANCED and AGGRESSIVE profiles.
func DefaultTable() *Table {
	return &Table{profiles: map[Tier]Profile{
		Conservative: {
			Tier:              Conservative,
			MinConfidence:     0.85,
			MaxTradeAmount:    decimal.RequireFromString("0.05"),
			AllowedRiskLevels: []domain.RiskLevel{domain.RiskLow},
			StopLossPercent:   decimal.NewFromInt(5),
			TakeProfitPercent: decimal.NewFromInt(15),
			RebalanceInterval: time.Hour,
		},
		Balanced: {
			Tier:              Balanced,
			MinConfidence:     0.7,
			MaxTradeAmount:    decimal.RequireFromString("0.5"),
			AllowedRiskLevels: []domain.RiskLevel{domain.RiskLow, domain.RiskMedium},
			StopLossPercent:   decimal.NewFromInt(10),
			TakeProfitPercent: decimal.NewFromInt(30),
			RebalanceInterval: 30 * time.Minute,
		},
		Aggressive: {
			Tier:              Aggressive,
			MinConfidence:     0.55,
			MaxTradeAmount:    decimal.NewFromInt(1),
			AllowedRiskLevels: []domain.RiskLevel{domain.RiskLow, domain.RiskMedium, domain.RiskHigh},
			StopLossPercent:   decimal.NewFromInt(20),
			TakeProfitPercent: decimal.NewFromInt(100),
			RebalanceInterval: 10 * time.Minute,
		},
	}}
}

// WithProfile returns a copy of the table that also holds p.
func (t *Table) WithProfile(p Profile) *Table {
	profiles := make(map[Tier]Profile, len(t.profiles)+1)
	for k, v := range t.profiles {
		profiles[k] = v
	}
	profiles[p.Tier] = p
	return &Table{profiles: profiles}
}

// Lookup returns the profile for a tier name, case-insensitively.
func (t *Table) Lookup(name string) (Profile, error) {
	p, ok := t.profiles[Tier(strings.ToUpper(strings.TrimSpace(name)))]
	if !ok {
		return Profile{}, fmt.Errorf("unknown strategy %q", name)
	}
	return p, nil
}

// Tiers lists the tiers held by the table.
func (t *Table) Tiers() []Tier {
	tiers := make([]Tier, 0, len(t.profiles))
	for _, tier := range []Tier{Conservative, Balanced, Aggressive, Legacy} {
		if _, ok := t.profiles[tier]; ok {
			tiers = append(tiers, tier)
		}
	}
	return tiers
}

// LegacyProfile builds the profile of the simple poll-interval bot. It trades
// any risk tier with a fixed confidence floor and its own buy cap.
func LegacyProfile(minConfidence float64, maxBuy decimal.Decimal, pollInterval time.Duration) Profile {
	return Profile{
		Tier:              Legacy,
		MinConfidence:     minConfidence,
		MaxTradeAmount:    maxBuy,
		AllowedRiskLevels: []domain.RiskLevel{domain.RiskLow, domain.RiskMedium, domain.RiskHigh},
		StopLossPercent:   decimal.NewFromInt(15),
		TakeProfitPercent: decimal.NewFromInt(50),
		RebalanceInterval: pollInterval,
	}
}
