package trader

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"monad-trade-agent-go/internal/config"
	"monad-trade-agent-go/internal/domain"
	"monad-trade-agent-go/internal/signal"
	"monad-trade-agent-go/internal/social"
	"monad-trade-agent-go/internal/strategy"
	"monad-trade-agent-go/internal/wallet"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// MockSource is a mock implementation of social.Source.
type MockSource struct {
	mock.Mock
}

func (m *MockSource) GetProfile(ctx context.Context, username string) (*social.Profile, error) {
	args := m.Called(ctx, username)
	if p := args.Get(0); p != nil {
		return p.(*social.Profile), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockSource) GetRecentPosts(ctx context.Context, username string, since time.Time) ([]social.Post, error) {
	args := m.Called(ctx, username, since)
	if p := args.Get(0); p != nil {
		return p.([]social.Post), args.Error(1)
	}
	return nil, args.Error(1)
}

// recordingDispatcher remembers every dispatched signal.
type recordingDispatcher struct {
	mu      sync.Mutex
	signals []domain.TradeSignal
	waited  bool
}

func (r *recordingDispatcher) Dispatch(_ context.Context, _ Wallet, sig domain.TradeSignal) DispatchOutcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.signals = append(r.signals, sig)
	return OutcomeStarted
}

func (r *recordingDispatcher) Wait() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.waited = true
}

func (r *recordingDispatcher) all() []domain.TradeSignal {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.TradeSignal(nil), r.signals...)
}

type stubPositions struct {
	positions []domain.Position
	err       error
}

func (s stubPositions) Positions(context.Context, string) ([]domain.Position, error) {
	return s.positions, s.err
}

const (
	tokenA = "0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"
	tokenB = "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
)

var scoutStart = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func testConfig(accounts ...string) *config.Config {
	return &config.Config{
		Social: config.Social{WatchedAccounts: accounts},
		Signal: config.Signal{
			BuyKeywords:      []string{"buy", "moon"},
			SellKeywords:     []string{"sell", "rug"},
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
			TokenRisk:        map[string]string{"0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa": "low"},
		},
	}
}

func strategyContext(t *testing.T, cfg *config.Config, src social.Source, positions PositionReader, disp Dispatcher) StrategyContext {
	profile, err := strategy.DefaultTable().Lookup("AGGRESSIVE")
	require.NoError(t, err)
	return StrategyContext{
		Ctx:        context.Background(),
		Logger:     zap.NewNop(),
		Cfg:        cfg,
		Wallet:     Wallet{Name: "alpha", Signer: stubSigner{addr: testWallet}, Profile: profile},
		Dispatcher: disp,
		Positions:  positions,
		Social:     src,
		Evaluator:  signal.NewEvaluator(cfg.Signal, cfg.Social.WatchedAccounts),
		Now:        func() time.Time { return scoutStart },
	}
}

func TestSocialSignalStrategy_DispatchesEachTokenOnce(t *testing.T) {
	// Arrange
	cfg := testConfig("whale")
	src := new(MockSource)
	disp := &recordingDispatcher{}
	ctx := strategyContext(t, cfg, src, nil, disp)

	posted := scoutStart.Add(-time.Minute)
	posts := []social.Post{{ID: "p1", Author: "whale", Text: "buy " + tokenA + " and " + tokenB + " to the moon", CreatedAt: posted}}
	src.On("GetRecentPosts", mock.Anything, "whale", scoutStart.Add(-5*time.Minute)).Return(posts, nil).Once()
	src.On("GetRecentPosts", mock.Anything, "whale", posted).Return(posts, nil).Once()

	s := &SocialSignalStrategy{}
	require.NoError(t, s.Initialize(ctx))

	// Act
	require.NoError(t, s.Scout(ctx))
	require.NoError(t, s.Scout(ctx))

	// Assert
	sigs := disp.all()
	require.Len(t, sigs, 2)
	assert.Equal(t, wallet.CanonicalAddress(tokenA), sigs[0].Token)
	assert.Equal(t, domain.RiskLow, sigs[0].Risk)
	assert.Equal(t, wallet.CanonicalAddress(tokenB), sigs[1].Token)
	assert.Equal(t, domain.RiskHigh, sigs[1].Risk)
	for _, sig := range sigs {
		assert.Equal(t, domain.ActionBuy, sig.Action)
		assert.Equal(t, "p1", sig.Source)
		assert.True(t, sig.ExpiresAt.Equal(scoutStart.Add(5*time.Minute)))
	}
	src.AssertExpectations(t)
}

func TestSocialSignalStrategy_FailingAccountDoesNotBlockOthers(t *testing.T) {
	// Arrange
	cfg := testConfig("@broken", "whale")
	src := new(MockSource)
	disp := &recordingDispatcher{}
	ctx := strategyContext(t, cfg, src, nil, disp)

	src.On("GetRecentPosts", mock.Anything, "broken", mock.Anything).Return(nil, errors.New("boom"))
	src.On("GetRecentPosts", mock.Anything, "whale", mock.Anything).
		Return([]social.Post{{ID: "p2", Author: "whale", Text: "sell " + tokenB, CreatedAt: scoutStart}}, nil)

	s := &SocialSignalStrategy{}
	require.NoError(t, s.Initialize(ctx))

	// Act
	err := s.Scout(ctx)

	// Assert
	assert.NoError(t, err)
	sigs := disp.all()
	require.Len(t, sigs, 1)
	assert.Equal(t, domain.ActionSell, sigs[0].Action)
}

func TestSocialSignalStrategy_NoAccounts(t *testing.T) {
	// Arrange
	src := new(MockSource)
	disp := &recordingDispatcher{}
	ctx := strategyContext(t, testConfig(), src, nil, disp)
	s := &SocialSignalStrategy{}

	// Act
	require.NoError(t, s.Initialize(ctx))
	err := s.Scout(ctx)

	// Assert
	assert.NoError(t, err)
	assert.Empty(t, disp.all())
	src.AssertNotCalled(t, "GetRecentPosts", mock.Anything, mock.Anything, mock.Anything)
}

func marked(token, cost, price string) domain.Position {
	return domain.Position{
		Wallet:    testWallet,
		Token:     token,
		Balance:   d("100"),
		CostBasis: d(cost),
		UpdatedAt: scoutStart.Add(-time.Hour),
	}.Mark(d(price))
}

func TestExitStrategy_SellsPositionsPastThresholds(t *testing.T) {
	// Arrange
	closed := marked("0xclosed", "1", "0.1")
	closed.Balance = d("0")
	positions := stubPositions{positions: []domain.Position{
		marked("0xloser", "1", "0.75"), // -25%, past the 20% stop
		marked("0xwinner", "1", "2.5"), // +150%, past the 100% target
		marked("0xflat", "1", "1.05"),  // +5%
		closed,
	}}
	disp := &recordingDispatcher{}
	ctx := strategyContext(t, testConfig(), nil, positions, disp)
	s := &ExitStrategy{}
	require.NoError(t, s.Initialize(ctx))

	// Act
	require.NoError(t, s.Scout(ctx))

	// Assert
	sigs := disp.all()
	require.Len(t, sigs, 2)
	assert.Equal(t, "0xloser", sigs[0].Token)
	assert.Equal(t, reasonStopLoss, sigs[0].Reason)
	assert.Equal(t, "0xwinner", sigs[1].Token)
	assert.Equal(t, reasonTakeProfit, sigs[1].Reason)
	for _, sig := range sigs {
		assert.Equal(t, domain.ActionSell, sig.Action)
		assert.Equal(t, 1.0, sig.Confidence)
		assert.Nil(t, sig.SuggestedAmount)
		assert.NoError(t, sig.Validate())
	}
}

func TestExitStrategy_StableIDsWithinWindow(t *testing.T) {
	// Arrange
	positions := stubPositions{positions: []domain.Position{marked("0xloser", "1", "0.5")}}
	disp := &recordingDispatcher{}
	ctx := strategyContext(t, testConfig(), nil, positions, disp)
	s := &ExitStrategy{}

	// Act
	require.NoError(t, s.Scout(ctx))
	require.NoError(t, s.Scout(ctx))
	ctx.Now = func() time.Time { return scoutStart.Add(ctx.Wallet.Profile.RebalanceInterval) }
	require.NoError(t, s.Scout(ctx))

	// Assert
	sigs := disp.all()
	require.Len(t, sigs, 3)
	assert.Equal(t, sigs[0].ID, sigs[1].ID)
	assert.NotEqual(t, sigs[0].ID, sigs[2].ID)
}

func TestExitStrategy_UnknownWallet(t *testing.T) {
	// Arrange
	disp := &recordingDispatcher{}
	ctx := strategyContext(t, testConfig(), nil, stubPositions{err: domain.ErrWalletNotFound}, disp)
	s := &ExitStrategy{}

	// Act
	err := s.Scout(ctx)

	// Assert
	assert.NoError(t, err)
	assert.Empty(t, disp.all())
}

func TestExitReason(t *testing.T) {
	testCases := []struct {
		name     string
		pct      string
		expected string
	}{
		{"at stop", "-10", reasonStopLoss},
		{"below stop", "-40", reasonStopLoss},
		{"inside band", "9.99", ""},
		{"at target", "30", reasonTakeProfit},
		{"small loss", "-9.99", ""},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			p := domain.Position{UnrealizedPnlPercent: d(tc.pct)}
			assert.Equal(t, tc.expected, exitReason(p, d("10"), d("30")))
		})
	}

	t.Run("zero thresholds disable exits", func(t *testing.T) {
		p := domain.Position{UnrealizedPnlPercent: d("-99")}
		assert.Equal(t, "", exitReason(p, d("0"), d("0")))
	})
}
