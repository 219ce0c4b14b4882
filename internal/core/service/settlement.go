package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/valens-carpentier/demeter-sub000/internal/core/domain"
	"github.com/valens-carpentier/demeter-sub000/internal/metrics"
)

const (
	DefaultPollInterval      = 2 * time.Second
	DefaultSettlementTimeout = 3 * time.Minute
)

// ReceiptPoller waits for user-operation receipts with a hard upper bound.
type ReceiptPoller struct {
	Interval time.Duration
	Timeout  time.Duration

	logger *slog.Logger
}

// NewReceiptPoller creates a poller. Non-positive values use the defaults.
func NewReceiptPoller(interval, timeout time.Duration, logger *slog.Logger) *ReceiptPoller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if timeout <= 0 {
		timeout = DefaultSettlementTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ReceiptPoller{Interval: interval, Timeout: timeout, logger: logger}
}

// Await polls until the operation has a receipt, the timeout elapses or ctx
// is done. Every poll runs under the timeout, so a hung bundler call cannot
// outlive it. A reverted operation returns its receipt and an
// *domain.OperationFailedError; an elapsed timeout returns a
// *domain.SettlementTimeoutError.
func (p *ReceiptPoller) Await(ctx context.Context, account domain.SmartAccount, handle *domain.UserOperationHandle) (*domain.UserOperationReceipt, error) {
	log := p.logger.With(
		slog.String("user_op", handle.Hash.Hex()),
		slog.String("kind", string(handle.Kind)),
		slog.String("attempt", handle.AttemptID.String()),
	)
	start := time.Now()
	waitCtx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()
	ticker := time.NewTicker(p.Interval)
	defer ticker.Stop()

	attempts := 0
	for {
		attempts++
		metrics.ReceiptPolls.Inc()
		receipt, err := account.UserOperationReceipt(waitCtx, handle.Hash)
		switch {
		case err != nil && waitCtx.Err() == nil:
			log.Warn("receipt poll failed", slog.Int("attempt_no", attempts), slog.Any("error", err))
		case err == nil && receipt != nil:
			return p.settle(log, handle, receipt, start)
		}

		if waitCtx.Err() != nil {
			return nil, p.expired(ctx, log, handle, attempts, start)
		}
		select {
		case <-waitCtx.Done():
			return nil, p.expired(ctx, log, handle, attempts, start)
		case <-ticker.C:
		}
	}
}

// expired reports why waitCtx ended: parent cancellation or the timeout.
func (p *ReceiptPoller) expired(ctx context.Context, log *slog.Logger, handle *domain.UserOperationHandle, attempts int, start time.Time) error {
	if ctx.Err() != nil {
		p.outcome(handle, "cancelled", start)
		return ctx.Err()
	}
	p.outcome(handle, "timeout", start)
	waited := time.Since(start)
	log.Warn("settlement timed out", slog.Int("polls", attempts), slog.Duration("waited", waited))
	return &domain.SettlementTimeoutError{Hash: handle.Hash, Attempts: attempts, Waited: waited}
}

func (p *ReceiptPoller) settle(log *slog.Logger, handle *domain.UserOperationHandle, receipt *domain.UserOperationReceipt, start time.Time) (*domain.UserOperationReceipt, error) {
	if !receipt.Success {
		p.outcome(handle, "failed", start)
		log.Warn("user operation reverted",
			slog.String("tx", receipt.TransactionHash.Hex()),
			slog.String("reason", receipt.Reason),
		)
		return receipt, &domain.OperationFailedError{
			Hash:   handle.Hash,
			TxHash: receipt.TransactionHash,
			Reason: receipt.Reason,
		}
	}
	p.outcome(handle, "confirmed", start)
	log.Info("user operation confirmed",
		slog.String("tx", receipt.TransactionHash.Hex()),
		slog.Uint64("block", receipt.BlockNumber),
	)
	return receipt, nil
}

func (p *ReceiptPoller) outcome(handle *domain.UserOperationHandle, outcome string, start time.Time) {
	kind := string(handle.Kind)
	metrics.SettlementOutcomes.WithLabelValues(kind, outcome).Inc()
	if outcome == "confirmed" || outcome == "failed" {
		metrics.SettlementLatency.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	}
}

// IsSettlementTimeout reports whether err is a settlement timeout.
func IsSettlementTimeout(err error) bool {
	var timeout *domain.SettlementTimeoutError
	return errors.As(err, &timeout)
}
