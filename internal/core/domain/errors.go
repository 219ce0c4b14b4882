package domain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/valens-carpentier/demeter-sub000/pkg/units"
)

var (
	// ErrAlreadyDeployed is returned when activating a deployed account.
	ErrAlreadyDeployed = errors.New("smart account is already deployed")

	// ErrTradeInProgress is returned when a trade is started while another
	// one from the same account is still in flight.
	ErrTradeInProgress = errors.New("another trade is still in progress for this account")

	// ErrCredentialNotFound is returned when no stored passkey has the raw id.
	ErrCredentialNotFound = errors.New("credential not found")
)

// SessionInitError reports a failed account-session derivation.
type SessionInitError struct {
	Phase string // "signer", "account", "deployment"
	Err   error
}

func (e *SessionInitError) Error() string {
	return fmt.Sprintf("session init failed during %s phase: %v", e.Phase, e.Err)
}

func (e *SessionInitError) Unwrap() error { return e.Err }

// RegistryReadError reports a failed farm-registry fan-out.
type RegistryReadError struct {
	Index *uint64 // nil when the count read failed or was rejected
	Err   error
}

func (e *RegistryReadError) Error() string {
	if e.Index == nil {
		return fmt.Sprintf("failed to read farm registry: %v", e.Err)
	}
	return fmt.Sprintf("failed to read farm %d: %v", *e.Index, e.Err)
}

func (e *RegistryReadError) Unwrap() error { return e.Err }

// HoldingsReadError reports a failed holdings scan.
type HoldingsReadError struct {
	Account common.Address
	Err     error
}

func (e *HoldingsReadError) Error() string {
	return fmt.Sprintf("failed to read holdings of %s: %v", e.Account.Hex(), e.Err)
}

func (e *HoldingsReadError) Unwrap() error { return e.Err }

// SettlementTimeoutError reports a receipt that never arrived within the bound.
type SettlementTimeoutError struct {
	Hash     common.Hash
	Attempts int
	Waited   time.Duration
}

func (e *SettlementTimeoutError) Error() string {
	return fmt.Sprintf("user operation %s not settled after %d polls (%s)", e.Hash.Hex(), e.Attempts, e.Waited)
}

// SigningError reports an authenticator failure or a cancelled signature.
type SigningError struct {
	Err error
}

func (e *SigningError) Error() string { return fmt.Sprintf("signing failed: %v", e.Err) }

func (e *SigningError) Unwrap() error { return e.Err }

// SubmissionError reports a rejection by the bundler or the paymaster.
type SubmissionError struct {
	Stage string // "build", "estimate", "sponsor", "submit"
	Err   error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("submission failed at %s: %v", e.Stage, e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// ValidationError reports a malformed trade request.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// InsufficientFundsError reports a failed funding precondition.
type InsufficientFundsError struct {
	Account common.Address
	Have    *big.Int
	Need    *big.Int
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient balance on %s: have %s wei, need %s wei", e.Account.Hex(), e.Have, e.Need)
}

// OperationFailedError reports a user operation that was included but reverted.
type OperationFailedError struct {
	Hash   common.Hash
	TxHash common.Hash
	Reason string
}

func (e *OperationFailedError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("user operation %s reverted in tx %s", e.Hash.Hex(), e.TxHash.Hex())
	}
	return fmt.Sprintf("user operation %s reverted in tx %s: %s", e.Hash.Hex(), e.TxHash.Hex(), e.Reason)
}

// UserMessage turns any error from the core into a sentence fit for display.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	var (
		sessionErr   *SessionInitError
		registryErr  *RegistryReadError
		holdingsErr  *HoldingsReadError
		timeoutErr   *SettlementTimeoutError
		signingErr   *SigningError
		submitErr    *SubmissionError
		validErr     *ValidationError
		fundsErr     *InsufficientFundsError
		failedErr    *OperationFailedError
		precisionErr *units.PrecisionError
	)

	switch {
	case errors.Is(err, ErrAlreadyDeployed):
		return "Your account is already active."
	case errors.Is(err, ErrTradeInProgress):
		return "Please wait for your current transaction to finish."
	case errors.Is(err, ErrCredentialNotFound):
		return "No passkey was found for this device. Please create one first."
	case errors.As(err, &signingErr):
		return "The signature request was cancelled or failed. Please try again."
	case errors.As(err, &sessionErr):
		return "We could not connect your passkey to a smart account. Please try signing in again."
	case errors.As(err, &registryErr):
		return "Farms could not be loaded right now. Please refresh."
	case errors.As(err, &holdingsErr):
		return "Your holdings could not be loaded right now. Please refresh."
	case errors.As(err, &timeoutErr):
		return "The transaction is taking longer than expected. Check your history before retrying."
	case errors.As(err, &failedErr):
		return "The transaction was rejected on-chain. No funds were moved."
	case errors.As(err, &submitErr):
		return "The transaction could not be submitted. Please try again."
	case errors.As(err, &validErr):
		return fmt.Sprintf("Invalid %s: %s.", validErr.Field, validErr.Reason)
	case errors.As(err, &fundsErr):
		return "Your account does not hold enough funds for this action."
	case errors.As(err, &precisionErr):
		return "That amount has more decimal places than the token supports."
	case errors.Is(err, context.Canceled):
		return "The action was cancelled."
	case errors.Is(err, context.DeadlineExceeded):
		return "The action timed out. Please try again."
	default:
		return "Something went wrong. Please try again."
	}
}
