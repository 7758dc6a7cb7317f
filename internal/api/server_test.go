package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"monad-trade-agent-go/internal/config"
	"monad-trade-agent-go/internal/database"
	"monad-trade-agent-go/internal/domain"
	"monad-trade-agent-go/internal/ledger"
	"monad-trade-agent-go/internal/models"
	"monad-trade-agent-go/internal/performance"
	"monad-trade-agent-go/internal/trader"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	walletAddr = "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"
	tokenLow   = "0x1111111111111111111111111111111111111111"
	tokenHigh  = "0x2222222222222222222222222222222222222222"
)

type stubStatus struct{}

func (stubStatus) Status() trader.Status {
	return trader.Status{Name: "monad-trade-agent", Pairs: []trader.PairStatus{{Wallet: walletAddr, Token: tokenLow, State: trader.StateIdle}}}
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// setupTest creates a server over an in-memory database holding two positions.
func setupTest(t *testing.T, cfg config.Server) (*Server, *database.Repository) {
	db, err := database.NewDatabase(&config.Database{DSN: "file::memory:"})
	require.NoError(t, err)
	repo := database.NewRepository(db)
	l := ledger.New(repo, nil, zap.NewNop())

	ctx := context.Background()
	settledAt := time.Now().Add(-time.Hour)
	for _, r := range []domain.TradeResult{
		{TradeID: "t1", Action: domain.ActionBuy, Token: tokenLow, AmountIn: d("0.1"), AmountOut: d("1000")},
		{TradeID: "t2", Action: domain.ActionBuy, Token: tokenHigh, AmountIn: d("0.5"), AmountOut: d("100")},
		{TradeID: "t3", Action: domain.ActionSell, Token: tokenHigh, AmountIn: d("50"), AmountOut: d("0.3")},
	} {
		r.Success = true
		r.SettledAt = settledAt
		_, err := l.ApplySettledTrade(ctx, walletAddr, r.Token, r)
		require.NoError(t, err)
	}

	s := NewServer(cfg, Deps{
		Positions: l,
		Trades:    repo,
		Status:    stubStatus{},
		Stream:    func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusAccepted) },
	}, zap.NewNop())
	return s, repo
}

func get(s *Server, path string, header ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if len(header) == 2 {
		req.Header.Set(header[0], header[1])
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	s, _ := setupTest(t, config.Server{})

	rec := get(s, "/health")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestPositions_OrderedByValue(t *testing.T) {
	// Arrange
	s, _ := setupTest(t, config.Server{})

	// Act
	rec := get(s, "/positions/"+strings.ToLower(walletAddr))

	// Assert
	require.Equal(t, http.StatusOK, rec.Code)
	var positions []domain.Position
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &positions))
	require.Len(t, positions, 2)
	// 50 tokens at 0.006 are worth more than 1000 at 0.0001.
	assert.Equal(t, tokenHigh, positions[0].Token)
	assert.Equal(t, tokenLow, positions[1].Token)
	assert.True(t, positions[0].CurrentValue.GreaterThan(positions[1].CurrentValue))
}

func TestPositions_UnknownAndInvalidWallets(t *testing.T) {
	s, _ := setupTest(t, config.Server{})

	rec := get(s, "/positions/0x0000000000000000000000000000000000000001")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())

	rec = get(s, "/positions/not-an-address")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSummary(t *testing.T) {
	// Arrange
	s, _ := setupTest(t, config.Server{})

	// Act
	rec := get(s, "/positions/"+walletAddr+"/summary")
	missing := get(s, "/positions/0x0000000000000000000000000000000000000001/summary")

	// Assert
	require.Equal(t, http.StatusOK, rec.Code)
	var summary domain.PortfolioSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, walletAddr, summary.Wallet)
	assert.Equal(t, 2, summary.OpenPositions)
	assert.True(t, summary.TotalValue.Equal(d("0.4")), "total %s", summary.TotalValue)
	assert.True(t, summary.TotalRealizedPnl.Equal(d("0.05")), "realized %s", summary.TotalRealizedPnl)

	assert.Equal(t, http.StatusNotFound, missing.Code)
}

func TestTradesAndStatistics(t *testing.T) {
	s, _ := setupTest(t, config.Server{})

	rec := get(s, "/trades?limit=2&wallet="+strings.ToLower(walletAddr))
	require.Equal(t, http.StatusOK, rec.Code)
	var trades []models.Trade
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &trades))
	assert.Len(t, trades, 2)

	rec = get(s, "/trades?token="+strings.ToUpper(tokenHigh))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &trades))
	assert.Len(t, trades, 2)

	assert.Equal(t, http.StatusBadRequest, get(s, "/trades?limit=zero").Code)
	assert.Equal(t, http.StatusBadRequest, get(s, "/trades?since=yesterday").Code)

	rec = get(s, "/statistics")
	require.Equal(t, http.StatusOK, rec.Code)
	var stats performance.Statistics
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, int64(3), stats.AllTime.TotalTrades)
	assert.Equal(t, int64(1), stats.Since24h.ClosedTrades)
	assert.Equal(t, 1.0, stats.Since24h.WinRate)
}

func TestPerformance(t *testing.T) {
	s, repo := setupTest(t, config.Server{})
	require.NoError(t, repo.SavePerformance(context.Background(), &models.StrategyPerformance{
		Wallet: walletAddr, Strategy: "BALANCED", TotalTrades: 3, RecordedAt: time.Now(),
	}))

	rec := get(s, "/performance")

	require.Equal(t, http.StatusOK, rec.Code)
	var rows []models.StrategyPerformance
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, int64(3), rows[0].TotalTrades)
}

func TestStatus_RequiresTokenWhenSecretSet(t *testing.T) {
	// Arrange
	s, _ := setupTest(t, config.Server{JWTSecret: "s3cret"})
	valid, err := IssueToken("s3cret", "operator", time.Hour)
	require.NoError(t, err)
	forged, err := IssueToken("other", "operator", time.Hour)
	require.NoError(t, err)
	expired, err := IssueToken("s3cret", "operator", -time.Minute)
	require.NoError(t, err)

	// Act & Assert
	assert.Equal(t, http.StatusUnauthorized, get(s, "/status").Code)
	assert.Equal(t, http.StatusUnauthorized, get(s, "/status", "Authorization", "Bearer "+forged).Code)
	assert.Equal(t, http.StatusUnauthorized, get(s, "/status", "Authorization", "Bearer "+expired).Code)

	rec := get(s, "/status", "Authorization", "Bearer "+valid)
	require.Equal(t, http.StatusOK, rec.Code)
	var status trader.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	require.Len(t, status.Pairs, 1)
	assert.Equal(t, trader.StateIdle, status.Pairs[0].State)

	assert.Equal(t, http.StatusAccepted, get(s, "/ws/trades?token="+valid).Code)
	// Public routes stay open.
	assert.Equal(t, http.StatusOK, get(s, "/health").Code)
}

func TestStatus_Unavailable(t *testing.T) {
	s := NewServer(config.Server{}, Deps{}, zap.NewNop())

	assert.Equal(t, http.StatusServiceUnavailable, get(s, "/status").Code)
	assert.Equal(t, http.StatusServiceUnavailable, get(s, "/ws/trades").Code)
}

func TestRateLimiter(t *testing.T) {
	s, _ := setupTest(t, config.Server{RateLimit: 1, RateLimitBurst: 2})

	assert.Equal(t, http.StatusOK, get(s, "/health").Code)
	assert.Equal(t, http.StatusOK, get(s, "/health").Code)
	rec := get(s, "/health")

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, rec.Body.String(), "retry_after")
}

func TestRateLimiterMap_EvictsIdle(t *testing.T) {
	rl := newRateLimiterMap(RateLimiterConfig{RequestsPerSecond: 1, Burst: 1})
	at := time.Now()
	rl.now = func() time.Time { return at }
	rl.getLimiter("1.1.1.1")

	at = at.Add(time.Hour)
	rl.getLimiter("2.2.2.2")
	rl.evictIdle(10 * time.Minute)

	assert.Len(t, rl.limiters, 1)
	assert.Contains(t, rl.limiters, "2.2.2.2")
}
