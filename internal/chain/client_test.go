package chain

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"monad-trade-agent-go/internal/domain"
	"monad-trade-agent-go/internal/retry"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type stubSigner struct{}

func (stubSigner) Address() string                     { return "0xabc" }
func (stubSigner) Sign(payload []byte) (string, error) { return "0xsig", nil }

// setupTestServer creates a new test server and a Client configured to use it.
func setupTestServer(handler http.Handler) (*Client, *httptest.Server) {
	server := httptest.NewServer(handler)

	policy := retry.Fixed(3, 0)
	policy.Sleep = func(context.Context, time.Duration) error { return nil }

	c := &Client{
		client:  resty.New().SetBaseURL(server.URL),
		apiKey:  "test_api_key",
		logger:  zap.NewNop(),
		limiter: rate.NewLimiter(rate.Inf, 1), // Allow all requests in tests
		policy:  policy,
	}
	return c, server
}

func TestGetTime(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		expected := time.UnixMilli(1700000000000)
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/time", r.URL.Path)
			assert.Equal(t, "test_api_key", r.Header.Get("X-API-KEY"))
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"timestamp": 1700000000000}`))
		})

		c, server := setupTestServer(handler)
		defer server.Close()

		got, err := c.GetTime(context.Background())

		assert.NoError(t, err)
		assert.True(t, expected.Equal(got))
	})

	t.Run("RetriesServerErrors", func(t *testing.T) {
		var calls int32
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if atomic.AddInt32(&calls, 1) < 3 {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"timestamp": 1}`))
		})

		c, server := setupTestServer(handler)
		defer server.Close()

		_, err := c.GetTime(context.Background())

		assert.NoError(t, err)
		assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	})

	t.Run("APIError", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"msg": "Internal error"}`))
		})

		c, server := setupTestServer(handler)
		defer server.Close()

		_, err := c.GetTime(context.Background())

		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to get block time")
		assert.ErrorIs(t, err, retry.ErrExhausted)
	})
}

func TestGetBalanceAndCurve(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/accounts/0xabc/balance":
			_, _ = w.Write([]byte(`{"balance": "12.5"}`))
		case "/curves/0xtoken":
			_, _ = w.Write([]byte(`{"token":"0xtoken","virtualNative":"30","virtualToken":"1073000000","feeBps":100,"graduated":false}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	c, server := setupTestServer(handler)
	defer server.Close()

	bal, err := c.GetBalance(context.Background(), "0xabc")
	require.NoError(t, err)
	assert.True(t, bal.Equal(decimal.RequireFromString("12.5")))

	curve, err := c.GetCurveState(context.Background(), "0xtoken")
	require.NoError(t, err)
	assert.Equal(t, 100, curve.FeeBps)
	assert.True(t, curve.VirtualNative.Equal(decimal.NewFromInt(30)))

	_, err = c.GetCurveState(context.Background(), "0xmissing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSubmitTrade(t *testing.T) {
	params := domain.TradeParams{
		TradeID:  "trade-1",
		Action:   domain.ActionBuy,
		Token:    "0xtoken",
		AmountIn: decimal.RequireFromString("0.1"),
		Deadline: time.Now().Add(time.Minute),
	}

	t.Run("Signed", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "0xabc", r.Header.Get("X-SIGNER"))
			assert.Equal(t, "0xsig", r.Header.Get("X-SIGNATURE"))

			body, _ := io.ReadAll(r.Body)
			var got domain.TradeParams
			assert.NoError(t, json.Unmarshal(body, &got))
			assert.Equal(t, "trade-1", got.TradeID)

			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"tradeId":"trade-1","txHash":"0xhash","status":"confirmed","amountIn":"0.1","amountOut":"1000"}`))
		})

		c, server := setupTestServer(handler)
		defer server.Close()

		receipt, err := c.SubmitTrade(context.Background(), stubSigner{}, params)
		require.NoError(t, err)
		assert.Equal(t, StatusConfirmed, receipt.Status)
		assert.True(t, receipt.AmountOut.Equal(decimal.NewFromInt(1000)))
	})

	t.Run("RejectedIsNotRetryable", func(t *testing.T) {
		var calls int32
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"msg":"bad deadline"}`))
		})

		c, server := setupTestServer(handler)
		defer server.Close()

		_, err := c.SubmitTrade(context.Background(), stubSigner{}, params)
		assert.True(t, errors.Is(err, ErrRejected))
		assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	})
}

func TestSimulator(t *testing.T) {
	sim := NewSimulator(nil, zap.NewNop())
	params := domain.TradeParams{
		TradeID:           "t1",
		Action:            domain.ActionBuy,
		AmountIn:          decimal.RequireFromString("0.1"),
		ExpectedAmountOut: decimal.NewFromInt(500),
	}

	receipt, err := sim.SubmitTrade(context.Background(), stubSigner{}, params)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, receipt.Status)

	again, err := sim.GetTrade(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, receipt, again)

	_, err = sim.GetTrade(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
