package safe

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"github.com/valens-carpentier/demeter-sub000/internal/core/domain"
)

// account is a counterfactual or deployed Safe.
type account struct {
	kit         *Kit
	signer      domain.Signer
	owners      []common.Address
	threshold   int
	initializer []byte
	address     common.Address
}

func (a *account) SignerAddress() common.Address { return a.signer.Address() }

func (a *account) Address() common.Address { return a.address }

// Owners returns the configured owner set.
func (a *account) Owners() []common.Address {
	return append([]common.Address(nil), a.owners...)
}

func (a *account) IsDeployed(ctx context.Context) (bool, error) {
	code, err := a.kit.backend.CodeAt(ctx, a.address, nil)
	if err != nil {
		return false, fmt.Errorf("failed to read code at %s: %w", a.address.Hex(), err)
	}
	return len(code) > 0, nil
}

// CreateOperation assembles an unsigned operation with gas limits and,
// when a paymaster is configured, sponsorship data.
func (a *account) CreateOperation(ctx context.Context, calls []domain.Call) (*domain.UserOperation, error) {
	log := a.kit.logger.With(slog.String("account", a.address.Hex()))

	callData, err := encodeCalls(calls, a.kit.addrs.MultiSendCallOnly)
	if err != nil {
		return nil, fmt.Errorf("failed to encode calls: %w", err)
	}

	nonce, err := a.nonce(ctx)
	if err != nil {
		return nil, err
	}

	op := &domain.UserOperation{
		Sender:   a.address,
		Nonce:    nonce,
		CallData: callData,
	}

	deployed, err := a.IsDeployed(ctx)
	if err != nil {
		return nil, err
	}
	if !deployed {
		factoryData, err := a.kit.factoryData(a.initializer)
		if err != nil {
			return nil, err
		}
		factory := a.kit.addrs.ProxyFactory
		op.Factory = &factory
		op.FactoryData = factoryData
	}

	if err := a.applyFees(ctx, op); err != nil {
		return nil, err
	}

	if a.kit.validFor > 0 {
		op.ValidUntil = uint64(a.kit.now().Add(a.kit.validFor).Unix())
	}
	op.Signature = packSignature(op.ValidAfter, op.ValidUntil, a.signer.DummySignature())

	if a.kit.sponsor != nil {
		s, err := a.kit.sponsor.Sponsor(ctx, op)
		if err != nil {
			return nil, &domain.SubmissionError{Stage: "sponsor", Err: err}
		}
		pm := s.Paymaster
		op.Paymaster = &pm
		op.PaymasterData = s.PaymasterData
		op.PaymasterVerificationGasLimit = (*big.Int)(s.PaymasterVerificationGasLimit)
		op.PaymasterPostOpGasLimit = (*big.Int)(s.PaymasterPostOpGasLimit)
		op.PreVerificationGas = (*big.Int)(s.PreVerificationGas)
		op.VerificationGasLimit = (*big.Int)(s.VerificationGasLimit)
		op.CallGasLimit = (*big.Int)(s.CallGasLimit)
		log.Debug("operation sponsored", slog.String("paymaster", pm.Hex()))
	} else {
		est, err := a.kit.bundler.EstimateGas(ctx, op)
		if err != nil {
			return nil, &domain.SubmissionError{Stage: "estimate", Err: err}
		}
		op.PreVerificationGas = (*big.Int)(est.PreVerificationGas)
		op.VerificationGasLimit = (*big.Int)(est.VerificationGasLimit)
		op.CallGasLimit = (*big.Int)(est.CallGasLimit)
	}

	log.Debug("operation created",
		slog.Int("calls", len(calls)),
		slog.String("nonce", nonce.String()),
		slog.Bool("deploys", op.Factory != nil),
	)
	return op, nil
}

func (a *account) SignOperation(ctx context.Context, op *domain.UserOperation) (*domain.UserOperation, error) {
	hash, err := SafeOpHash(op, a.kit.chainID, a.kit.addrs.Module, a.kit.addrs.EntryPoint)
	if err != nil {
		return nil, err
	}

	sig, err := a.signer.Sign(ctx, hash)
	if err != nil {
		return nil, err
	}

	signed := op.Copy()
	signed.Signature = packSignature(op.ValidAfter, op.ValidUntil, sig)
	return signed, nil
}

func (a *account) Execute(ctx context.Context, op *domain.UserOperation) (common.Hash, error) {
	return a.kit.bundler.Send(ctx, op)
}

func (a *account) UserOperationReceipt(ctx context.Context, hash common.Hash) (*domain.UserOperationReceipt, error) {
	return a.kit.bundler.Receipt(ctx, hash)
}

func (a *account) nonce(ctx context.Context) (*big.Int, error) {
	data, err := entryPointABI.Pack("getNonce", a.address, new(big.Int))
	if err != nil {
		return nil, fmt.Errorf("failed to pack getNonce call: %w", err)
	}
	entryPoint := a.kit.addrs.EntryPoint
	result, err := a.kit.backend.CallContract(ctx, ethereum.CallMsg{To: &entryPoint, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to call getNonce: %w", err)
	}
	var nonce *big.Int
	if err := entryPointABI.UnpackIntoInterface(&nonce, "getNonce", result); err != nil {
		return nil, fmt.Errorf("failed to unpack getNonce result: %w", err)
	}
	return nonce, nil
}

func (a *account) applyFees(ctx context.Context, op *domain.UserOperation) error {
	tip, err := a.kit.backend.SuggestGasTipCap(ctx)
	if err != nil {
		return fmt.Errorf("failed to get gas tip cap: %w", err)
	}
	price, err := a.kit.backend.SuggestGasPrice(ctx)
	if err != nil {
		return fmt.Errorf("failed to get gas price: %w", err)
	}
	op.MaxPriorityFeePerGas = tip
	op.MaxFeePerGas = new(big.Int).Add(price, tip)
	return nil
}
