package domain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// UserOperation is an EntryPoint v0.7 user operation plus the Safe 4337
// validity window that is packed into its signature.
type UserOperation struct {
	Sender      common.Address
	Nonce       *big.Int
	Factory     *common.Address
	FactoryData []byte
	CallData    []byte

	CallGasLimit         *big.Int
	VerificationGasLimit *big.Int
	PreVerificationGas   *big.Int
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int

	Paymaster                     *common.Address
	PaymasterVerificationGasLimit *big.Int
	PaymasterPostOpGasLimit       *big.Int
	PaymasterData                 []byte

	ValidAfter uint64
	ValidUntil uint64

	Signature []byte
}

// InitCode is factory ++ factoryData, empty for deployed accounts.
func (op *UserOperation) InitCode() []byte {
	if op.Factory == nil {
		return nil
	}
	return append(op.Factory.Bytes(), op.FactoryData...)
}

// PaymasterAndData is paymaster ++ uint128(verificationGas) ++ uint128(postOpGas) ++ data.
func (op *UserOperation) PaymasterAndData() []byte {
	if op.Paymaster == nil {
		return nil
	}
	out := make([]byte, 0, 20+32+len(op.PaymasterData))
	out = append(out, op.Paymaster.Bytes()...)
	out = append(out, common.LeftPadBytes(bigOrZero(op.PaymasterVerificationGasLimit).Bytes(), 16)...)
	out = append(out, common.LeftPadBytes(bigOrZero(op.PaymasterPostOpGasLimit).Bytes(), 16)...)
	return append(out, op.PaymasterData...)
}

// Copy returns a deep copy of op.
func (op *UserOperation) Copy() *UserOperation {
	cp := *op
	cp.Nonce = copyBig(op.Nonce)
	cp.CallGasLimit = copyBig(op.CallGasLimit)
	cp.VerificationGasLimit = copyBig(op.VerificationGasLimit)
	cp.PreVerificationGas = copyBig(op.PreVerificationGas)
	cp.MaxFeePerGas = copyBig(op.MaxFeePerGas)
	cp.MaxPriorityFeePerGas = copyBig(op.MaxPriorityFeePerGas)
	cp.PaymasterVerificationGasLimit = copyBig(op.PaymasterVerificationGasLimit)
	cp.PaymasterPostOpGasLimit = copyBig(op.PaymasterPostOpGasLimit)
	cp.FactoryData = append([]byte(nil), op.FactoryData...)
	cp.CallData = append([]byte(nil), op.CallData...)
	cp.PaymasterData = append([]byte(nil), op.PaymasterData...)
	cp.Signature = append([]byte(nil), op.Signature...)
	if op.Factory != nil {
		f := *op.Factory
		cp.Factory = &f
	}
	if op.Paymaster != nil {
		p := *op.Paymaster
		cp.Paymaster = &p
	}
	return &cp
}

func bigOrZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

func copyBig(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}
