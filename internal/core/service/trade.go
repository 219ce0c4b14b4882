package service

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/valens-carpentier/demeter-sub000/internal/adapters/chain"
	"github.com/valens-carpentier/demeter-sub000/internal/core/domain"
	"github.com/valens-carpentier/demeter-sub000/internal/metrics"
	"github.com/valens-carpentier/demeter-sub000/pkg/units"
)

// TradeState is the lifecycle state of a TradeOrchestrator.
type TradeState string

const (
	TradeIdle       TradeState = "idle"
	TradeBuilding   TradeState = "building"
	TradeSigning    TradeState = "signing"
	TradeSubmitting TradeState = "submitting"
	TradePending    TradeState = "pending"
	TradeConfirmed  TradeState = "confirmed"
	TradeFailed     TradeState = "failed"
)

func (s TradeState) inFlight() bool {
	switch s {
	case TradeBuilding, TradeSigning, TradeSubmitting, TradePending:
		return true
	}
	return false
}

// TransitionFunc observes state changes. It runs synchronously and must not
// call back into the orchestrator.
type TransitionFunc func(from, to TradeState)

// Stablecoin identifies the settlement token.
type Stablecoin struct {
	Address  common.Address
	Decimals int
}

// TradeOrchestrator buys and sells farm tokens through the session account.
// One trade runs at a time.
type TradeOrchestrator struct {
	prices domain.FarmSource
	usdc   Stablecoin
	poller *ReceiptPoller
	logger *slog.Logger
	now    func() time.Time

	mu           sync.Mutex
	state        TradeState
	onTransition TransitionFunc
}

// TradeOption configures a TradeOrchestrator.
type TradeOption func(*TradeOrchestrator)

// WithTransitionHook registers fn to observe every state change.
func WithTransitionHook(fn TransitionFunc) TradeOption {
	return func(o *TradeOrchestrator) { o.onTransition = fn }
}

// NewTradeOrchestrator creates an orchestrator in the Idle state.
func NewTradeOrchestrator(prices domain.FarmSource, usdc Stablecoin, poller *ReceiptPoller, logger *slog.Logger, opts ...TradeOption) *TradeOrchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if poller == nil {
		poller = NewReceiptPoller(0, 0, logger)
	}
	o := &TradeOrchestrator{
		prices: prices,
		usdc:   usdc,
		poller: poller,
		logger: logger,
		now:    time.Now,
		state:  TradeIdle,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// State returns the current trade state.
func (o *TradeOrchestrator) State() TradeState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Buy purchases req.TokenAmount whole tokens at the price read now. The
// bundle approves exactly the cost in USDC and buys in one operation.
//
// A returned handle leaves the orchestrator in TradePending. Callers must
// pass it to Await; until then every Buy or Sell fails with
// domain.ErrTradeInProgress.
func (o *TradeOrchestrator) Buy(ctx context.Context, session *domain.AccountSession, req domain.TradeRequest) (*domain.UserOperationHandle, error) {
	if err := validateTrade(session, req, domain.OpBuy); err != nil {
		return nil, err
	}
	if err := o.begin(); err != nil {
		return nil, err
	}

	price, err := o.prices.PricePerToken(ctx, req.FarmToken)
	if err != nil {
		o.transition(TradeFailed)
		return nil, &domain.SubmissionError{Stage: "build", Err: fmt.Errorf("failed to read token price: %w", err)}
	}
	calls, err := BuildBuyBundle(req.FarmToken, o.usdc.Address, req.TokenAmount, price, o.usdc.Decimals)
	if err != nil {
		o.transition(TradeFailed)
		return nil, &domain.SubmissionError{Stage: "build", Err: err}
	}

	o.logger.Info("buy bundle built",
		slog.String("account", req.Account.Hex()),
		slog.String("farm", req.FarmToken.Hex()),
		slog.String("amount", req.TokenAmount.String()),
		slog.String("price_cents", price.String()),
	)
	return o.submit(ctx, session.Account, domain.OpBuy, calls)
}

// Sell sells req.TokenAmount whole tokens. The amount is checked against
// req.AvailableBalance before any network call. As with Buy, the returned
// handle must be passed to Await.
func (o *TradeOrchestrator) Sell(ctx context.Context, session *domain.AccountSession, req domain.TradeRequest) (*domain.UserOperationHandle, error) {
	if err := validateTrade(session, req, domain.OpSell); err != nil {
		return nil, err
	}
	if err := o.begin(); err != nil {
		return nil, err
	}

	calls, err := BuildSellBundle(req.FarmToken, req.TokenAmount)
	if err != nil {
		o.transition(TradeFailed)
		return nil, &domain.SubmissionError{Stage: "build", Err: err}
	}

	o.logger.Info("sell bundle built",
		slog.String("account", req.Account.Hex()),
		slog.String("farm", req.FarmToken.Hex()),
		slog.String("amount", req.TokenAmount.String()),
	)
	return o.submit(ctx, session.Account, domain.OpSell, calls)
}

// Await waits for a submitted trade and moves to Confirmed or Failed.
func (o *TradeOrchestrator) Await(ctx context.Context, session *domain.AccountSession, handle *domain.UserOperationHandle) (*domain.UserOperationReceipt, error) {
	receipt, err := o.poller.Await(ctx, session.Account, handle)
	if err != nil {
		o.transition(TradeFailed)
		return receipt, err
	}
	o.transition(TradeConfirmed)
	return receipt, nil
}

func (o *TradeOrchestrator) submit(ctx context.Context, account domain.SmartAccount, kind domain.OperationKind, calls []domain.Call) (*domain.UserOperationHandle, error) {
	attempt := uuid.New()
	log := o.logger.With(
		slog.String("account", account.Address().Hex()),
		slog.String("kind", string(kind)),
		slog.String("attempt", attempt.String()),
	)

	op, err := account.CreateOperation(ctx, calls)
	if err != nil {
		o.transition(TradeFailed)
		return nil, asSubmission("build", err)
	}

	o.transition(TradeSigning)
	signed, err := account.SignOperation(ctx, op)
	if err != nil {
		o.transition(TradeFailed)
		return nil, asSigning(err)
	}

	o.transition(TradeSubmitting)
	hash, err := account.Execute(ctx, signed)
	if err != nil {
		o.transition(TradeFailed)
		return nil, asSubmission("submit", err)
	}
	metrics.UserOperationsSubmitted.WithLabelValues(string(kind)).Inc()
	o.transition(TradePending)
	log.Info("trade submitted", slog.String("user_op", hash.Hex()))

	return &domain.UserOperationHandle{
		Hash:        hash,
		Kind:        kind,
		Account:     account.Address(),
		AttemptID:   attempt,
		SubmittedAt: o.now(),
	}, nil
}

func (o *TradeOrchestrator) begin() error {
	o.mu.Lock()
	if o.state.inFlight() {
		o.mu.Unlock()
		return domain.ErrTradeInProgress
	}
	from := o.state
	o.state = TradeBuilding
	hook := o.onTransition
	o.mu.Unlock()

	if hook != nil {
		hook(from, TradeBuilding)
	}
	return nil
}

func (o *TradeOrchestrator) transition(to TradeState) {
	o.mu.Lock()
	from := o.state
	o.state = to
	hook := o.onTransition
	o.mu.Unlock()

	if hook != nil && from != to {
		hook(from, to)
	}
}

func validateTrade(session *domain.AccountSession, req domain.TradeRequest, kind domain.OperationKind) error {
	if session == nil || session.Account == nil {
		return &domain.ValidationError{Field: "session", Reason: "no account session"}
	}
	if req.Account != session.SmartAccountAddress {
		return &domain.ValidationError{Field: "account", Reason: "does not match the active session"}
	}
	if req.FarmToken == (common.Address{}) {
		return &domain.ValidationError{Field: "farm token", Reason: "missing"}
	}
	if req.TokenAmount == nil || req.TokenAmount.Sign() <= 0 {
		return &domain.ValidationError{Field: "amount", Reason: "must be greater than zero"}
	}
	if kind == domain.OpSell {
		if req.AvailableBalance == nil {
			return &domain.ValidationError{Field: "amount", Reason: "available balance unknown"}
		}
		if req.TokenAmount.Cmp(req.AvailableBalance) > 0 {
			return &domain.ValidationError{Field: "amount", Reason: "exceeds available balance"}
		}
	}
	return nil
}

// BuyCost returns the USDC raw amount for amount tokens at priceCents each.
func BuyCost(amount, priceCents *big.Int, usdcDecimals int) (*big.Int, error) {
	if priceCents == nil || priceCents.Sign() <= 0 {
		return nil, fmt.Errorf("invalid token price %v", priceCents)
	}
	cents := new(big.Int).Mul(amount, priceCents)
	return units.CentsToRaw(cents, usdcDecimals)
}

// BuildBuyBundle returns [approve(farmToken, cost) on usdc, buyTokensWithUSDC(amount) on farmToken].
func BuildBuyBundle(farmToken, usdc common.Address, amount, priceCents *big.Int, usdcDecimals int) ([]domain.Call, error) {
	cost, err := BuyCost(amount, priceCents, usdcDecimals)
	if err != nil {
		return nil, err
	}
	approve, err := chain.ApproveCalldata(farmToken, cost)
	if err != nil {
		return nil, err
	}
	buy, err := chain.BuyCalldata(amount)
	if err != nil {
		return nil, err
	}
	return []domain.Call{
		{To: usdc, Value: new(big.Int), Data: approve},
		{To: farmToken, Value: new(big.Int), Data: buy},
	}, nil
}

// BuildSellBundle returns [sellTokensWithUSDC(amount) on farmToken].
func BuildSellBundle(farmToken common.Address, amount *big.Int) ([]domain.Call, error) {
	sell, err := chain.SellCalldata(amount)
	if err != nil {
		return nil, err
	}
	return []domain.Call{{To: farmToken, Value: new(big.Int), Data: sell}}, nil
}
