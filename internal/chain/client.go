package chain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"monad-trade-agent-go/internal/config"
	"monad-trade-agent-go/internal/domain"
	"monad-trade-agent-go/internal/retry"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Transaction statuses reported by the gateway.
const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusReverted  = "reverted"
)

var (
	// ErrNotFound is returned when the gateway does not know a trade.
	ErrNotFound = errors.New("not found")
	// ErrRejected is returned when the gateway refuses a request outright.
	ErrRejected = errors.New("rejected by gateway")
)

// Signer signs submission payloads for a wallet.
type Signer interface {
	Address() string
	Sign(payload []byte) (string, error)
}

// Gateway defines the chain collaborator used by the engine.
type Gateway interface {
	GetTime(ctx context.Context) (time.Time, error)
	GetBalance(ctx context.Context, address string) (decimal.Decimal, error)
	GetCurveState(ctx context.Context, token string) (*CurveState, error)
	SubmitTrade(ctx context.Context, signer Signer, params domain.TradeParams) (*Receipt, error)
	GetTrade(ctx context.Context, tradeID string) (*Receipt, error)
}

// CurveState is the bonding curve of a token launched on the curve.
type CurveState struct {
	Token         string          `json:"token"`
	VirtualNative decimal.Decimal `json:"virtualNative"`
	VirtualToken  decimal.Decimal `json:"virtualToken"`
	FeeBps        int             `json:"feeBps"`
	Graduated     bool            `json:"graduated"`
}

// Receipt is the gateway's view of a submitted trade.
type Receipt struct {
	TradeID   string          `json:"tradeId"`
	TxHash    string          `json:"txHash"`
	Status    string          `json:"status"`
	AmountIn  decimal.Decimal `json:"amountIn"`
	AmountOut decimal.Decimal `json:"amountOut"`
	Error     string          `json:"error,omitempty"`
	BlockTime int64           `json:"blockTime"`
	Simulated bool            `json:"-"`
}

// Client is a client for the chain gateway REST API.
// It implements the Gateway interface.
type Client struct {
	client  *resty.Client
	apiKey  string
	logger  *zap.Logger
	limiter *rate.Limiter
	policy  retry.Policy
}

// ensure Client implements the interface
var _ Gateway = (*Client)(nil)

// NewClient creates a new chain gateway client. Reads are retried under policy;
// submissions are attempted once and left to the caller's own policy.
func NewClient(cfg *config.Chain, policy retry.Policy, logger *zap.Logger) *Client {
	client := resty.New().
		SetBaseURL(cfg.RPCURL).
		SetTimeout(cfg.Timeout)

	return &Client{
		client:  client,
		apiKey:  cfg.ApiKey,
		logger:  logger.Named("chain"),
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimitBurst),
		policy:  policy,
	}
}

type requestError struct {
	status int
	body   string
}

func (e *requestError) Error() string {
	return fmt.Sprintf("request failed with status %d: %s", e.status, e.body)
}

// retryable reports whether a failed request is worth another attempt.
func retryable(err error) bool {
	var re *requestError
	if errors.As(err, &re) {
		return re.status == http.StatusTooManyRequests || re.status == 418 || re.status >= 500
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// execute runs one request after waiting on the limiter.
func (c *Client) execute(ctx context.Context, method, url string, req *resty.Request) (*resty.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait failed: %w", err)
	}
	c.logger.Debug("Executing request", zap.String("method", method), zap.String("url", c.client.BaseURL+url))

	resp, err := req.SetContext(ctx).SetHeader("X-API-KEY", c.apiKey).Execute(method, url)
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return resp, &requestError{status: resp.StatusCode(), body: resp.String()}
	}
	return resp, nil
}

// doRequest executes a read request under the client's retry policy.
// newReq is called per attempt since resty requests are not reusable after a failure.
func (c *Client) doRequest(ctx context.Context, method, url string, newReq func() *resty.Request) (*resty.Response, error) {
	policy := c.policy
	policy.Retryable = retryable

	var resp *resty.Response
	err := policy.Do(ctx, func(attempt int) error {
		var err error
		resp, err = c.execute(ctx, method, url, newReq())
		if err != nil && attempt < policy.MaxAttempts && retryable(err) {
			c.logger.Warn("Request failed, retrying...",
				zap.Int("attempt", attempt),
				zap.Duration("retry_after", policy.DelayFor(attempt-1)),
				zap.Error(err),
			)
		}
		return err
	})
	if err != nil {
		var re *requestError
		if errors.As(err, &re) && re.status == http.StatusNotFound {
			return resp, fmt.Errorf("%s: %w", url, ErrNotFound)
		}
		return resp, err
	}
	return resp, nil
}

// GetTime fetches the gateway block time.
// This is a good endpoint to test connectivity.
func (c *Client) GetTime(ctx context.Context) (time.Time, error) {
	type timeResponse struct {
		Timestamp int64 `json:"timestamp"`
	}

	resp, err := c.doRequest(ctx, http.MethodGet, "/time", func() *resty.Request {
		return c.client.R().SetResult(&timeResponse{})
	})
	if err != nil {
		c.logger.Error("Failed to get block time", zap.Error(err))
		return time.Time{}, fmt.Errorf("failed to get block time: %w", err)
	}

	result := resp.Result().(*timeResponse)
	return time.UnixMilli(result.Timestamp), nil
}

// GetBalance returns the native MON balance of address.
func (c *Client) GetBalance(ctx context.Context, address string) (decimal.Decimal, error) {
	type balanceResponse struct {
		Balance decimal.Decimal `json:"balance"`
	}

	resp, err := c.doRequest(ctx, http.MethodGet, "/accounts/"+address+"/balance", func() *resty.Request {
		return c.client.R().SetResult(&balanceResponse{})
	})
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to get balance of %s: %w", address, err)
	}
	return resp.Result().(*balanceResponse).Balance, nil
}

// GetCurveState returns the bonding curve reserves of token.
func (c *Client) GetCurveState(ctx context.Context, token string) (*CurveState, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/curves/"+token, func() *resty.Request {
		return c.client.R().SetResult(&CurveState{})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get curve state of %s: %w", token, err)
	}
	return resp.Result().(*CurveState), nil
}

// SubmitTrade signs and submits params once. A timeout here does not mean the
// trade failed; callers resolve it with GetTrade.
func (c *Client) SubmitTrade(ctx context.Context, signer Signer, params domain.TradeParams) (*Receipt, error) {
	body, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("failed to encode trade: %w", err)
	}
	signature, err := signer.Sign(body)
	if err != nil {
		return nil, err
	}

	req := c.client.R().
		SetHeader("Content-Type", "application/json").
		SetHeader("X-SIGNER", signer.Address()).
		SetHeader("X-SIGNATURE", signature).
		SetBody(body).
		SetResult(&Receipt{})

	resp, err := c.execute(ctx, http.MethodPost, "/trades", req)
	if err != nil {
		c.logger.Error("Failed to submit trade",
			zap.String("trade_id", params.TradeID),
			zap.String("token", params.Token),
			zap.Error(err),
		)
		var re *requestError
		if errors.As(err, &re) && !retryable(err) {
			return nil, fmt.Errorf("%w: %s", ErrRejected, re.Error())
		}
		return nil, fmt.Errorf("failed to submit trade %s: %w", params.TradeID, err)
	}

	result := resp.Result().(*Receipt)
	c.logger.Info("Submitted trade",
		zap.String("trade_id", params.TradeID),
		zap.String("tx_hash", result.TxHash),
		zap.String("status", result.Status),
	)
	return result, nil
}

// GetTrade looks up a submitted trade by its id.
func (c *Client) GetTrade(ctx context.Context, tradeID string) (*Receipt, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/trades/"+tradeID, func() *resty.Request {
		return c.client.R().SetResult(&Receipt{})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get trade %s: %w", tradeID, err)
	}
	return resp.Result().(*Receipt), nil
}
