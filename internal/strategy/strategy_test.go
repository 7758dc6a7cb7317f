package strategy

import (
	"testing"
	"time"

	"monad-trade-agent-go/internal/domain"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTableLookup(t *testing.T) {
	table := DefaultTable()

	p, err := table.Lookup("balanced")
	require.NoError(t, err)
	assert.Equal(t, Balanced, p.Tier)
	assert.Equal(t, 0.7, p.MinConfidence)
	assert.True(t, p.Allows(domain.RiskMedium))
	assert.False(t, p.Allows(domain.RiskHigh))

	_, err = table.Lookup("YOLO")
	assert.Error(t, err)
}

func TestTableWithProfileDoesNotMutate(t *testing.T) {
	base := DefaultTable()
	extended := base.WithProfile(LegacyProfile(0.6, decimal.RequireFromString("0.2"), time.Minute))

	_, err := base.Lookup("LEGACY")
	assert.Error(t, err)

	p, err := extended.Lookup("LEGACY")
	require.NoError(t, err)
	assert.True(t, p.MaxTradeAmount.Equal(decimal.RequireFromString("0.2")))
	assert.Equal(t, []Tier{Conservative, Balanced, Aggressive, Legacy}, extended.Tiers())
}

func TestSlippageFor(t *testing.T) {
	limits := DefaultLimits()

	assert.Equal(t, 100, limits.SlippageFor(3))
	assert.Equal(t, 300, limits.SlippageFor(25))

	limits.Slippage.HighVolatilityBps = 900
	assert.Equal(t, 500, limits.SlippageFor(40), "bound is capped at MaxBps")
}
