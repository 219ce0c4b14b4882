package safe

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/valens-carpentier/demeter-sub000/internal/core/domain"
)

// rpcUserOperation is the unpacked v0.7 JSON-RPC form of a user operation.
type rpcUserOperation struct {
	Sender                        common.Address  `json:"sender"`
	Nonce                         *hexutil.Big    `json:"nonce"`
	Factory                       *common.Address `json:"factory,omitempty"`
	FactoryData                   hexutil.Bytes   `json:"factoryData,omitempty"`
	CallData                      hexutil.Bytes   `json:"callData"`
	CallGasLimit                  *hexutil.Big    `json:"callGasLimit"`
	VerificationGasLimit          *hexutil.Big    `json:"verificationGasLimit"`
	PreVerificationGas            *hexutil.Big    `json:"preVerificationGas"`
	MaxFeePerGas                  *hexutil.Big    `json:"maxFeePerGas"`
	MaxPriorityFeePerGas          *hexutil.Big    `json:"maxPriorityFeePerGas"`
	Paymaster                     *common.Address `json:"paymaster,omitempty"`
	PaymasterVerificationGasLimit *hexutil.Big    `json:"paymasterVerificationGasLimit,omitempty"`
	PaymasterPostOpGasLimit       *hexutil.Big    `json:"paymasterPostOpGasLimit,omitempty"`
	PaymasterData                 hexutil.Bytes   `json:"paymasterData,omitempty"`
	Signature                     hexutil.Bytes   `json:"signature"`
}

func toRPC(op *domain.UserOperation) rpcUserOperation {
	out := rpcUserOperation{
		Sender:               op.Sender,
		Nonce:                hexBig(op.Nonce),
		CallData:             nonNil(op.CallData),
		CallGasLimit:         hexBig(op.CallGasLimit),
		VerificationGasLimit: hexBig(op.VerificationGasLimit),
		PreVerificationGas:   hexBig(op.PreVerificationGas),
		MaxFeePerGas:         hexBig(op.MaxFeePerGas),
		MaxPriorityFeePerGas: hexBig(op.MaxPriorityFeePerGas),
		Signature:            nonNil(op.Signature),
	}
	if op.Factory != nil {
		out.Factory = op.Factory
		out.FactoryData = op.FactoryData
	}
	if op.Paymaster != nil {
		out.Paymaster = op.Paymaster
		out.PaymasterVerificationGasLimit = hexBig(op.PaymasterVerificationGasLimit)
		out.PaymasterPostOpGasLimit = hexBig(op.PaymasterPostOpGasLimit)
		out.PaymasterData = op.PaymasterData
	}
	return out
}

func hexBig(v *big.Int) *hexutil.Big {
	return (*hexutil.Big)(orZero(v))
}

// GasEstimate is the result of eth_estimateUserOperationGas.
type GasEstimate struct {
	PreVerificationGas   *hexutil.Big `json:"preVerificationGas"`
	VerificationGasLimit *hexutil.Big `json:"verificationGasLimit"`
	CallGasLimit         *hexutil.Big `json:"callGasLimit"`
}

// Sponsorship is the result of pm_sponsorUserOperation.
type Sponsorship struct {
	Paymaster                     common.Address `json:"paymaster"`
	PaymasterData                 hexutil.Bytes  `json:"paymasterData"`
	PaymasterVerificationGasLimit *hexutil.Big   `json:"paymasterVerificationGasLimit"`
	PaymasterPostOpGasLimit       *hexutil.Big   `json:"paymasterPostOpGasLimit"`
	PreVerificationGas            *hexutil.Big   `json:"preVerificationGas"`
	VerificationGasLimit          *hexutil.Big   `json:"verificationGasLimit"`
	CallGasLimit                  *hexutil.Big   `json:"callGasLimit"`
}

type rpcReceipt struct {
	UserOpHash    common.Hash  `json:"userOpHash"`
	Success       bool         `json:"success"`
	Reason        string       `json:"reason"`
	ActualGasCost *hexutil.Big `json:"actualGasCost"`
	ActualGasUsed *hexutil.Big `json:"actualGasUsed"`
	Receipt       struct {
		TransactionHash common.Hash    `json:"transactionHash"`
		BlockNumber     hexutil.Uint64 `json:"blockNumber"`
	} `json:"receipt"`
}

// Bundler speaks the ERC-4337 bundler JSON-RPC namespace.
type Bundler struct {
	client     *rpc.Client
	entryPoint common.Address
}

// DialBundler connects to a bundler endpoint.
func DialBundler(ctx context.Context, url string, entryPoint common.Address) (*Bundler, error) {
	client, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to bundler: %w", err)
	}
	return &Bundler{client: client, entryPoint: entryPoint}, nil
}

// Close releases the underlying connection.
func (b *Bundler) Close() {
	b.client.Close()
}

// EstimateGas calls eth_estimateUserOperationGas.
func (b *Bundler) EstimateGas(ctx context.Context, op *domain.UserOperation) (*GasEstimate, error) {
	var est GasEstimate
	if err := b.client.CallContext(ctx, &est, "eth_estimateUserOperationGas", toRPC(op), b.entryPoint); err != nil {
		return nil, fmt.Errorf("eth_estimateUserOperationGas: %w", err)
	}
	return &est, nil
}

// Send calls eth_sendUserOperation and returns the user operation hash.
func (b *Bundler) Send(ctx context.Context, op *domain.UserOperation) (common.Hash, error) {
	var hash common.Hash
	if err := b.client.CallContext(ctx, &hash, "eth_sendUserOperation", toRPC(op), b.entryPoint); err != nil {
		return common.Hash{}, fmt.Errorf("eth_sendUserOperation: %w", err)
	}
	return hash, nil
}

// Receipt calls eth_getUserOperationReceipt. A nil receipt means pending.
func (b *Bundler) Receipt(ctx context.Context, hash common.Hash) (*domain.UserOperationReceipt, error) {
	var raw json.RawMessage
	if err := b.client.CallContext(ctx, &raw, "eth_getUserOperationReceipt", hash); err != nil {
		return nil, fmt.Errorf("eth_getUserOperationReceipt: %w", err)
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var r rpcReceipt
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("failed to decode user operation receipt: %w", err)
	}
	return &domain.UserOperationReceipt{
		UserOpHash:      r.UserOpHash,
		TransactionHash: r.Receipt.TransactionHash,
		Success:         r.Success,
		Reason:          r.Reason,
		ActualGasCost:   (*big.Int)(r.ActualGasCost),
		ActualGasUsed:   (*big.Int)(r.ActualGasUsed),
		BlockNumber:     uint64(r.Receipt.BlockNumber),
	}, nil
}

// Paymaster speaks the pm_ sponsorship namespace.
type Paymaster struct {
	client     *rpc.Client
	entryPoint common.Address
	policyID   string
}

// DialPaymaster connects to a paymaster endpoint. policyID may be empty.
func DialPaymaster(ctx context.Context, url string, entryPoint common.Address, policyID string) (*Paymaster, error) {
	client, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to paymaster: %w", err)
	}
	return &Paymaster{client: client, entryPoint: entryPoint, policyID: policyID}, nil
}

// Close releases the underlying connection.
func (p *Paymaster) Close() {
	p.client.Close()
}

// Sponsor calls pm_sponsorUserOperation.
func (p *Paymaster) Sponsor(ctx context.Context, op *domain.UserOperation) (*Sponsorship, error) {
	params := []interface{}{toRPC(op), p.entryPoint}
	if p.policyID != "" {
		params = append(params, map[string]string{"sponsorshipPolicyId": p.policyID})
	}

	var s Sponsorship
	if err := p.client.CallContext(ctx, &s, "pm_sponsorUserOperation", params...); err != nil {
		return nil, fmt.Errorf("pm_sponsorUserOperation: %w", err)
	}
	return &s, nil
}
