package trader

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"monad-trade-agent-go/internal/chain"
	"monad-trade-agent-go/internal/domain"
	"monad-trade-agent-go/internal/retry"
	"monad-trade-agent-go/internal/risk"
	"monad-trade-agent-go/internal/strategy"
	"monad-trade-agent-go/internal/wallet"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// State is the lifecycle stage of a (wallet, token) pair.
type State string

const (
	StateIdle        State = "Idle"
	StateEvaluating  State = "Evaluating"
	StateAuthorizing State = "Authorizing"
	StateQuoting     State = "Quoting"
	StateSubmitting  State = "Submitting"
	StateSettling    State = "Settling"
	StateFailed      State = "Failed"
)

// DispatchOutcome reports what happened to a dispatched signal.
type DispatchOutcome string

const (
	// OutcomeStarted means the signal became the pair's active instruction.
	OutcomeStarted DispatchOutcome = "started"
	// OutcomeQueued means the signal waits behind the active instruction.
	OutcomeQueued DispatchOutcome = "queued"
	// OutcomeReplaced means the signal took the queue slot of an earlier one.
	OutcomeReplaced DispatchOutcome = "replaced"
	// OutcomeDiscarded means the signal will never be acted on.
	OutcomeDiscarded DispatchOutcome = "discarded"
)

// Wallet is an agent-managed wallet and the strategy it trades.
type Wallet struct {
	Name    string
	Signer  chain.Signer
	Profile strategy.Profile
}

// Address returns the wallet address.
func (w Wallet) Address() string {
	return w.Signer.Address()
}

// Quoter resolves executable quotes.
type Quoter interface {
	Resolve(ctx context.Context, token string, direction domain.Action, amount decimal.Decimal) (domain.Quote, error)
}

// Authorizer sizes and checks signals.
type Authorizer interface {
	Authorize(req risk.Request) (risk.Authorization, error)
}

// Book is the position ledger as seen by the coordinator.
type Book interface {
	Position(ctx context.Context, wallet, token string) (domain.Position, error)
	PortfolioValue(ctx context.Context, wallet string) (decimal.Decimal, error)
	CheckSell(ctx context.Context, wallet, token string, amount decimal.Decimal) error
	ApplySettledTrade(ctx context.Context, wallet, token string, result domain.TradeResult) (domain.Position, error)
}

// Executor submits trades and reports their status.
type Executor interface {
	GetBalance(ctx context.Context, address string) (decimal.Decimal, error)
	SubmitTrade(ctx context.Context, signer chain.Signer, params domain.TradeParams) (*chain.Receipt, error)
	GetTrade(ctx context.Context, tradeID string) (*chain.Receipt, error)
}

// ResultSink receives every terminal trade result.
type ResultSink interface {
	Publish(ctx context.Context, wallet string, result domain.TradeResult) error
}

// PairStatus is a snapshot of one pair slot.
type PairStatus struct {
	Wallet       string    `json:"wallet"`
	Token        string    `json:"token"`
	State        State     `json:"state"`
	ActiveSignal string    `json:"active_signal,omitempty"`
	QueuedSignal string    `json:"queued_signal,omitempty"`
	LastTradeID  string    `json:"last_trade_id,omitempty"`
	LastError    string    `json:"last_error,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type pairKey struct {
	wallet string
	token  string
}

type instruction struct {
	wallet Wallet
	signal domain.TradeSignal
}

type slot struct {
	state     State
	active    *instruction
	queued    *instruction
	lastTrade string
	lastErr   string
	updatedAt time.Time
}

// Options tune the coordinator.
type Options struct {
	Limits strategy.TradingLimits
	// PollInterval is the wait between status checks of a pending trade.
	PollInterval time.Duration
	// Sleep overrides the wait used for retries and polling.
	Sleep retry.Sleeper
}

// Coordinator drives signals through authorization, quoting, submission and
// settlement. Each (wallet, token) pair runs at most one instruction at a
// time; one more waits in a latest-wins slot.
type Coordinator struct {
	quotes Quoter
	gate   Authorizer
	book   Book
	exec   Executor
	sink   ResultSink
	logger *zap.Logger

	limits       strategy.TradingLimits
	policy       retry.Policy
	pollInterval time.Duration
	sleep        retry.Sleeper
	now          func() time.Time
	newTradeID   func() string

	mu         sync.Mutex
	slots      map[pairKey]*slot
	consumed   map[string]time.Time
	lastPruned time.Time
	wg         sync.WaitGroup
}

// NewCoordinator creates a coordinator.
func NewCoordinator(quotes Quoter, gate Authorizer, book Book, exec Executor, sink ResultSink, opts Options, logger *zap.Logger) *Coordinator {
	sleep := opts.Sleep
	if sleep == nil {
		sleep = retry.SleepContext
	}
	policy := retry.Fixed(opts.Limits.Transaction.MaxRetries, opts.Limits.Transaction.RetryDelay)
	policy.Sleep = sleep
	policy.Retryable = func(err error) bool {
		return !errors.Is(err, chain.ErrRejected) &&
			!errors.Is(err, domain.ErrDeadlineExceeded) &&
			!errors.Is(err, context.Canceled)
	}
	poll := opts.PollInterval
	if poll <= 0 {
		poll = 2 * time.Second
	}

	return &Coordinator{
		quotes:       quotes,
		gate:         gate,
		book:         book,
		exec:         exec,
		sink:         sink,
		logger:       logger.Named("coordinator"),
		limits:       opts.Limits,
		policy:       policy,
		pollInterval: poll,
		sleep:        sleep,
		now:          time.Now,
		newTradeID:   uuid.NewString,
		slots:        make(map[pairKey]*slot),
		consumed:     make(map[string]time.Time),
	}
}

// Dispatch hands a signal to the pair it targets. It never blocks on the trade itself.
func (c *Coordinator) Dispatch(ctx context.Context, w Wallet, sig domain.TradeSignal) DispatchOutcome {
	l := c.logger.With(
		zap.String("wallet", w.Address()),
		zap.String("token", sig.Token),
		zap.String("signal_id", sig.ID),
	)

	token, err := wallet.NormalizeAddress(sig.Token)
	if err != nil {
		l.Warn("Discarding signal for invalid token", zap.Error(err))
		return OutcomeDiscarded
	}
	sig.Token = token

	c.mu.Lock()
	defer c.mu.Unlock()

	c.pruneConsumed()
	if _, seen := c.consumed[sig.ID]; seen {
		l.Debug("Signal already consumed")
		return OutcomeDiscarded
	}
	c.consumed[sig.ID] = sig.ExpiresAt

	if sig.Action == domain.ActionHold {
		l.Debug("Discarding hold signal", zap.Float64("confidence", sig.Confidence))
		return OutcomeDiscarded
	}

	k := pairKey{wallet: w.Address(), token: sig.Token}
	s, ok := c.slots[k]
	if !ok {
		s = &slot{state: StateIdle}
		c.slots[k] = s
	}

	ins := &instruction{wallet: w, signal: sig}
	if s.active == nil {
		s.active = ins
		s.lastErr = ""
		c.setState(s, StateEvaluating)
		c.wg.Add(1)
		go c.run(ctx, k, s)
		l.Info("Started instruction", zap.String("action", string(sig.Action)))
		return OutcomeStarted
	}

	if s.queued != nil {
		l.Info("Replaced queued signal", zap.String("replaced_signal_id", s.queued.signal.ID))
		s.queued = ins
		return OutcomeReplaced
	}
	s.queued = ins
	l.Info("Queued signal behind active instruction", zap.String("active_signal_id", s.active.signal.ID))
	return OutcomeQueued
}

// pruneConsumed forgets signals past their expiry; the gate rejects those
// anyway. It must be called with c.mu held.
func (c *Coordinator) pruneConsumed() {
	now := c.now()
	if now.Sub(c.lastPruned) < time.Minute {
		return
	}
	c.lastPruned = now
	for id, expires := range c.consumed {
		if expires.Before(now) {
			delete(c.consumed, id)
		}
	}
}

// HandleInstruction routes an agent instruction. Only trade payloads reach the trading core.
func (c *Coordinator) HandleInstruction(ctx context.Context, w Wallet, ins domain.Instruction) (DispatchOutcome, error) {
	switch p := ins.Payload.(type) {
	case domain.TradePayload:
		return c.Dispatch(ctx, w, p.Signal), nil
	case domain.ShillPayload, domain.VotePayload, domain.CommentPayload:
		return OutcomeDiscarded, domain.Unsupported(ins.Type())
	case nil:
		return OutcomeDiscarded, nil
	default:
		return OutcomeDiscarded, fmt.Errorf("unknown instruction payload %T", p)
	}
}

// Wait blocks until every running instruction has finished.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

// States returns a snapshot of all pair slots, ordered by wallet and token.
func (c *Coordinator) States() []PairStatus {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]PairStatus, 0, len(c.slots))
	for k, s := range c.slots {
		ps := PairStatus{
			Wallet:      k.wallet,
			Token:       k.token,
			State:       s.state,
			LastTradeID: s.lastTrade,
			LastError:   s.lastErr,
			UpdatedAt:   s.updatedAt,
		}
		if s.active != nil {
			ps.ActiveSignal = s.active.signal.ID
		}
		if s.queued != nil {
			ps.QueuedSignal = s.queued.signal.ID
		}
		out = append(out, ps)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Wallet != out[j].Wallet {
			return out[i].Wallet < out[j].Wallet
		}
		return out[i].Token < out[j].Token
	})
	return out
}

// State returns the current state of a pair.
func (c *Coordinator) State(wallet, token string) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.slots[pairKey{wallet, token}]; ok {
		return s.state
	}
	return StateIdle
}

// setState must be called with c.mu held.
func (c *Coordinator) setState(s *slot, st State) {
	s.state = st
	s.updatedAt = c.now()
}

func (c *Coordinator) transition(k pairKey, st State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setState(c.slots[k], st)
}

// run processes the active instruction and then drains the queue slot.
func (c *Coordinator) run(ctx context.Context, k pairKey, s *slot) {
	defer c.wg.Done()

	for {
		c.mu.Lock()
		ins := s.active
		c.mu.Unlock()

		tradeID, err := c.process(ctx, k, ins)

		c.mu.Lock()
		if tradeID != "" {
			s.lastTrade = tradeID
		}
		switch {
		case err == nil, isDiscard(err):
			c.setState(s, StateIdle)
		default:
			s.lastErr = err.Error()
			c.setState(s, StateFailed)
		}

		if s.queued == nil || ctx.Err() != nil {
			s.active = nil
			c.mu.Unlock()
			return
		}
		s.active, s.queued = s.queued, nil
		s.lastErr = ""
		c.setState(s, StateEvaluating)
		c.mu.Unlock()
	}
}

// isDiscard reports errors that end an instruction without a trade result.
func isDiscard(err error) bool {
	return errors.Is(err, domain.ErrInsufficientConfidence) ||
		domain.RejectionReason(err) == domain.ReasonLowConfidence
}

// process runs one instruction to a terminal result.
func (c *Coordinator) process(ctx context.Context, k pairKey, ins *instruction) (string, error) {
	sig := ins.signal
	addr := ins.wallet.Address()
	l := c.logger.With(zap.String("wallet", addr), zap.String("token", sig.Token), zap.String("signal_id", sig.ID))

	if err := sig.Validate(); err != nil {
		return "", c.fail(ctx, l, addr, "", sig, err)
	}

	c.transition(k, StateAuthorizing)
	auth, err := c.authorize(ctx, ins)
	if err != nil {
		if isDiscard(err) {
			l.Info("Discarding signal", zap.Error(err))
			return "", err
		}
		return "", c.fail(ctx, l, addr, "", sig, err)
	}
	if auth.Clamped {
		l.Info("Trade amount clamped",
			zap.String("requested", auth.RequestedAmount.String()),
			zap.String("amount", auth.Amount.String()),
		)
	}

	c.transition(k, StateQuoting)
	quote, err := c.quotes.Resolve(ctx, sig.Token, auth.Action, auth.Amount)
	if err != nil {
		return "", c.fail(ctx, l, addr, "", sig, err)
	}

	now := c.now()
	params := domain.TradeParams{
		TradeID:           c.newTradeID(),
		Action:            auth.Action,
		Token:             sig.Token,
		AmountIn:          auth.Amount,
		ExpectedAmountOut: quote.AmountOut,
		MinAmountOut:      domain.MinOut(quote.AmountOut, auth.SlippageBps),
		SlippageBps:       auth.SlippageBps,
		Recipient:         addr,
		Deadline:          now.Add(c.limits.Transaction.Deadline),
		Route:             quote.Route,
	}
	l = l.With(zap.String("trade_id", params.TradeID))
	if err := params.Validate(now); err != nil {
		return params.TradeID, c.fail(ctx, l, addr, params.TradeID, sig, err)
	}
	if params.Action == domain.ActionSell {
		if err := c.book.CheckSell(ctx, addr, sig.Token, params.AmountIn); err != nil {
			return params.TradeID, c.fail(ctx, l, addr, params.TradeID, sig, err)
		}
	}

	// Once submitted, a trade runs to its own deadline even if ctx is cancelled.
	tctx, cancel := context.WithDeadline(context.WithoutCancel(ctx), params.Deadline)
	defer cancel()

	c.transition(k, StateSubmitting)
	receipt, err := c.submit(tctx, l, ins.wallet, params)
	if err != nil {
		return params.TradeID, c.fail(tctx, l, addr, params.TradeID, sig, err)
	}

	c.transition(k, StateSettling)
	receipt, err = c.awaitFinal(tctx, params, receipt)
	if err != nil {
		return params.TradeID, c.fail(tctx, l, addr, params.TradeID, sig, err)
	}
	if receipt.Status == chain.StatusReverted {
		reason := receipt.Error
		if reason == "" {
			reason = "reverted"
		}
		return params.TradeID, c.fail(tctx, l, addr, params.TradeID, sig, fmt.Errorf("%w: trade %s %s", domain.ErrSubmissionFailed, params.TradeID, reason))
	}

	// The pair's single worker applies settlements, so they land in submission order.
	result := settledResult(params, receipt, c.now())
	if _, err := c.book.ApplySettledTrade(context.WithoutCancel(ctx), addr, sig.Token, result); err != nil && !errors.Is(err, domain.ErrDuplicateSettlement) {
		l.Error("Failed to apply settled trade to ledger", zap.Error(err))
	}
	c.publish(ctx, l, addr, result)

	l.Info("Trade settled",
		zap.String("action", string(result.Action)),
		zap.String("tx_hash", result.TxHash),
		zap.String("amount_in", result.AmountIn.String()),
		zap.String("amount_out", result.AmountOut.String()),
		zap.String("effective_price", result.EffectivePrice.String()),
	)
	return params.TradeID, nil
}

func (c *Coordinator) authorize(ctx context.Context, ins *instruction) (risk.Authorization, error) {
	sig := ins.signal
	addr := ins.wallet.Address()

	// Low confidence is decided before touching any collaborator.
	if sig.Confidence < ins.wallet.Profile.MinConfidence {
		return c.gate.Authorize(risk.Request{Signal: sig, Strategy: ins.wallet.Profile})
	}

	pos, err := c.book.Position(ctx, addr, sig.Token)
	if err != nil {
		return risk.Authorization{}, fmt.Errorf("failed to load position: %w", err)
	}
	balance, err := c.exec.GetBalance(ctx, addr)
	if err != nil {
		return risk.Authorization{}, fmt.Errorf("failed to load wallet balance: %w", err)
	}
	portfolio, err := c.book.PortfolioValue(ctx, addr)
	if err != nil {
		return risk.Authorization{}, fmt.Errorf("failed to value portfolio: %w", err)
	}

	return c.gate.Authorize(risk.Request{
		Signal:         sig,
		Strategy:       ins.wallet.Profile,
		Position:       &pos,
		WalletBalance:  balance,
		PortfolioValue: portfolio,
	})
}

// submit sends params under the retry policy. A failed attempt may still have
// reached the chain, so the trade id is looked up before trying again.
func (c *Coordinator) submit(ctx context.Context, l *zap.Logger, w Wallet, params domain.TradeParams) (*chain.Receipt, error) {
	var receipt *chain.Receipt
	err := c.policy.Do(ctx, func(attempt int) error {
		if !c.now().Before(params.Deadline) {
			return fmt.Errorf("trade %s: %w", params.TradeID, domain.ErrDeadlineExceeded)
		}

		r, err := c.exec.SubmitTrade(ctx, w.Signer, params)
		if err == nil {
			receipt = r
			return nil
		}
		if errors.Is(err, chain.ErrRejected) {
			return err
		}

		known, lookupErr := c.exec.GetTrade(ctx, params.TradeID)
		if lookupErr == nil {
			l.Warn("Submission errored but trade is known to the chain", zap.Int("attempt", attempt), zap.Error(err))
			receipt = known
			return nil
		}
		if !errors.Is(lookupErr, chain.ErrNotFound) {
			l.Warn("Could not resolve submission status", zap.Error(lookupErr))
		}

		l.Warn("Trade submission failed",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", c.policy.MaxAttempts),
			zap.Error(err),
		)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrSubmissionFailed, err)
	}
	return receipt, nil
}

// awaitFinal polls a pending trade until it is confirmed, reverted or past
// its deadline. The chain is asked once more before giving up.
func (c *Coordinator) awaitFinal(ctx context.Context, params domain.TradeParams, receipt *chain.Receipt) (*chain.Receipt, error) {
	for receipt.Status != chain.StatusConfirmed && receipt.Status != chain.StatusReverted {
		if !c.now().Before(params.Deadline) {
			return c.lastLookup(ctx, params, receipt, domain.ErrDeadlineExceeded)
		}
		if err := c.sleep(ctx, c.pollInterval); err != nil {
			return c.lastLookup(ctx, params, receipt, err)
		}
		r, err := c.exec.GetTrade(ctx, params.TradeID)
		if err != nil {
			c.logger.Debug("Trade status lookup failed", zap.String("trade_id", params.TradeID), zap.Error(err))
			continue
		}
		receipt = r
	}
	return receipt, nil
}

func (c *Coordinator) lastLookup(ctx context.Context, params domain.TradeParams, receipt *chain.Receipt, cause error) (*chain.Receipt, error) {
	lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if r, err := c.exec.GetTrade(lctx, params.TradeID); err == nil {
		if r.Status == chain.StatusConfirmed || r.Status == chain.StatusReverted {
			return r, nil
		}
		receipt = r
	}
	return nil, fmt.Errorf("%w: trade %s still %s: %w", domain.ErrSubmissionFailed, params.TradeID, receipt.Status, cause)
}

func settledResult(params domain.TradeParams, r *chain.Receipt, at time.Time) domain.TradeResult {
	amountIn := r.AmountIn
	if !amountIn.IsPositive() {
		amountIn = params.AmountIn
	}
	amountOut := r.AmountOut
	if !amountOut.IsPositive() {
		amountOut = params.ExpectedAmountOut
	}

	price := decimal.Zero
	switch params.Action {
	case domain.ActionBuy:
		if amountOut.IsPositive() {
			price = amountIn.Div(amountOut)
		}
	case domain.ActionSell:
		price = amountOut.Div(amountIn)
	}

	return domain.TradeResult{
		TradeID:        params.TradeID,
		Action:         params.Action,
		Token:          params.Token,
		Success:        true,
		TxHash:         r.TxHash,
		AmountIn:       amountIn,
		AmountOut:      amountOut,
		EffectivePrice: price,
		Simulated:      r.Simulated,
		SettledAt:      at,
	}
}

// fail records a terminal failure and publishes it. It returns err. The
// record is written even when ctx is already done.
func (c *Coordinator) fail(ctx context.Context, l *zap.Logger, wallet, tradeID string, sig domain.TradeSignal, err error) error {
	ctx = context.WithoutCancel(ctx)
	if tradeID == "" {
		tradeID = "signal-" + sig.ID
	}
	result := domain.FailedResult(tradeID, sig.Action, sig.Token, err, c.now())

	l.Error("Trade failed", zap.String("reason", domain.RejectionReason(err)), zap.Error(err))
	if _, lerr := c.book.ApplySettledTrade(ctx, wallet, sig.Token, result); lerr != nil {
		l.Warn("Failed to record failed trade", zap.Error(lerr))
	}
	c.publish(ctx, l, wallet, result)
	return err
}

func (c *Coordinator) publish(ctx context.Context, l *zap.Logger, wallet string, result domain.TradeResult) {
	if c.sink == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	if err := c.sink.Publish(ctx, wallet, result); err != nil {
		l.Warn("Failed to publish trade result", zap.String("trade_id", result.TradeID), zap.Error(err))
	}
}
