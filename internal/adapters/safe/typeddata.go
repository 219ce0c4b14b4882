package safe

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/valens-carpentier/demeter-sub000/internal/core/domain"
)

var safeOpTypes = apitypes.Types{
	"EIP712Domain": {
		{Name: "chainId", Type: "uint256"},
		{Name: "verifyingContract", Type: "address"},
	},
	"SafeOp": {
		{Name: "safe", Type: "address"},
		{Name: "nonce", Type: "uint256"},
		{Name: "initCode", Type: "bytes"},
		{Name: "callData", Type: "bytes"},
		{Name: "verificationGasLimit", Type: "uint128"},
		{Name: "callGasLimit", Type: "uint128"},
		{Name: "preVerificationGas", Type: "uint256"},
		{Name: "maxPriorityFeePerGas", Type: "uint128"},
		{Name: "maxFeePerGas", Type: "uint128"},
		{Name: "paymasterAndData", Type: "bytes"},
		{Name: "validAfter", Type: "uint48"},
		{Name: "validUntil", Type: "uint48"},
		{Name: "entryPoint", Type: "address"},
	},
}

// SafeOpHash is the EIP-712 digest the Safe4337Module verifies owner
// signatures against.
func SafeOpHash(op *domain.UserOperation, chainID *big.Int, module, entryPoint common.Address) (common.Hash, error) {
	typed := apitypes.TypedData{
		Types:       safeOpTypes,
		PrimaryType: "SafeOp",
		Domain: apitypes.TypedDataDomain{
			ChainId:           (*math.HexOrDecimal256)(new(big.Int).Set(chainID)),
			VerifyingContract: module.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"safe":                 op.Sender.Hex(),
			"nonce":                orZero(op.Nonce),
			"initCode":             nonNil(op.InitCode()),
			"callData":             nonNil(op.CallData),
			"verificationGasLimit": orZero(op.VerificationGasLimit),
			"callGasLimit":         orZero(op.CallGasLimit),
			"preVerificationGas":   orZero(op.PreVerificationGas),
			"maxPriorityFeePerGas": orZero(op.MaxPriorityFeePerGas),
			"maxFeePerGas":         orZero(op.MaxFeePerGas),
			"paymasterAndData":     nonNil(op.PaymasterAndData()),
			"validAfter":           new(big.Int).SetUint64(op.ValidAfter),
			"validUntil":           new(big.Int).SetUint64(op.ValidUntil),
			"entryPoint":           entryPoint.Hex(),
		},
	}

	hash, _, err := apitypes.TypedDataAndHash(typed)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to hash SafeOp: %w", err)
	}
	return common.BytesToHash(hash), nil
}

// packSignature prefixes the owner signature with the validity window.
func packSignature(validAfter, validUntil uint64, ownerSig []byte) []byte {
	out := make([]byte, 0, 12+len(ownerSig))
	out = append(out, uint48Bytes(validAfter)...)
	out = append(out, uint48Bytes(validUntil)...)
	return append(out, ownerSig...)
}

func uint48Bytes(v uint64) []byte {
	return []byte{byte(v >> 40), byte(v >> 32), byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

func nonNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}
