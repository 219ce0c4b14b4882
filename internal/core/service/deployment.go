package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/valens-carpentier/demeter-sub000/internal/core/domain"
	"github.com/valens-carpentier/demeter-sub000/internal/metrics"
)

// Deployer activates counterfactual accounts by submitting their first
// user operation.
type Deployer struct {
	balances   domain.NativeBalanceReader
	minBalance *big.Int
	poller     *ReceiptPoller
	logger     *slog.Logger
	now        func() time.Time
}

// DeployerOption configures a Deployer.
type DeployerOption func(*Deployer)

// WithMinNativeBalance requires the account to hold at least minWei wei before
// activation. Sponsored setups leave this unset.
func WithMinNativeBalance(reader domain.NativeBalanceReader, minWei *big.Int) DeployerOption {
	return func(d *Deployer) {
		d.balances = reader
		d.minBalance = minWei
	}
}

// NewDeployer creates a deployer that settles through poller.
func NewDeployer(poller *ReceiptPoller, logger *slog.Logger, opts ...DeployerOption) *Deployer {
	if logger == nil {
		logger = slog.Default()
	}
	if poller == nil {
		poller = NewReceiptPoller(0, 0, logger)
	}
	d := &Deployer{poller: poller, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Activate deploys the session's account with a zero-value self-call.
// Each call is one attempt; failures are not retried.
func (d *Deployer) Activate(ctx context.Context, session *domain.AccountSession) (*domain.UserOperationHandle, error) {
	if session == nil || session.Account == nil {
		return nil, &domain.ValidationError{Field: "session", Reason: "no account session"}
	}
	account := session.Account
	address := session.SmartAccountAddress
	attempt := uuid.New()
	log := d.logger.With(slog.String("account", address.Hex()), slog.String("attempt", attempt.String()))

	if session.IsDeployed {
		return nil, domain.ErrAlreadyDeployed
	}
	deployed, err := account.IsDeployed(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to check deployment: %w", err)
	}
	if deployed {
		log.Info("account already deployed on-chain")
		return nil, domain.ErrAlreadyDeployed
	}

	if err := d.checkFunding(ctx, address); err != nil {
		return nil, err
	}

	log.Info("[Step 1/3] building activation operation")
	op, err := account.CreateOperation(ctx, []domain.Call{{
		To:    address,
		Value: new(big.Int),
		Data:  []byte{},
	}})
	if err != nil {
		return nil, asSubmission("build", err)
	}

	log.Info("[Step 2/3] requesting signature")
	signed, err := account.SignOperation(ctx, op)
	if err != nil {
		return nil, asSigning(err)
	}

	log.Info("[Step 3/3] submitting to bundler")
	hash, err := account.Execute(ctx, signed)
	if err != nil {
		return nil, asSubmission("submit", err)
	}
	metrics.UserOperationsSubmitted.WithLabelValues(string(domain.OpActivation)).Inc()
	log.Info("activation submitted", slog.String("user_op", hash.Hex()))

	return &domain.UserOperationHandle{
		Hash:        hash,
		Kind:        domain.OpActivation,
		Account:     address,
		AttemptID:   attempt,
		SubmittedAt: d.now(),
	}, nil
}

// ActivateAndWait activates and blocks until the operation settles.
func (d *Deployer) ActivateAndWait(ctx context.Context, session *domain.AccountSession) (*domain.UserOperationReceipt, error) {
	handle, err := d.Activate(ctx, session)
	if err != nil {
		return nil, err
	}
	return d.poller.Await(ctx, session.Account, handle)
}

func (d *Deployer) checkFunding(ctx context.Context, address common.Address) error {
	if d.balances == nil || d.minBalance == nil || d.minBalance.Sign() == 0 {
		return nil
	}
	have, err := d.balances.BalanceAt(ctx, address)
	if err != nil {
		return fmt.Errorf("failed to read native balance: %w", err)
	}
	if have.Cmp(d.minBalance) < 0 {
		return &domain.InsufficientFundsError{Account: address, Have: have, Need: d.minBalance}
	}
	return nil
}

// asSubmission keeps typed errors from the account and wraps the rest.
func asSubmission(stage string, err error) error {
	var (
		submitErr *domain.SubmissionError
		signErr   *domain.SigningError
	)
	if errors.As(err, &submitErr) || errors.As(err, &signErr) {
		return err
	}
	return &domain.SubmissionError{Stage: stage, Err: err}
}

func asSigning(err error) error {
	var signErr *domain.SigningError
	if errors.As(err, &signErr) {
		return err
	}
	return &domain.SigningError{Err: err}
}
