package domain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// FarmSource reads the farm-factory registry and farm-token prices.
type FarmSource interface {
	// TotalFarms returns the number of registered farms.
	TotalFarms(ctx context.Context) (uint64, error)

	// Farm returns the registry struct at index (0-based, insertion order).
	Farm(ctx context.Context, index uint64) (*FarmRecord, error)

	// PricePerToken returns the current token price in cents.
	PricePerToken(ctx context.Context, token common.Address) (*big.Int, error)
}

// TokenReader reads ERC20 state.
type TokenReader interface {
	BalanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error)
	Decimals(ctx context.Context, token common.Address) (uint8, error)
	Symbol(ctx context.Context, token common.Address) (string, error)
}

// NativeBalanceReader reads the native coin balance of an address.
type NativeBalanceReader interface {
	BalanceAt(ctx context.Context, account common.Address) (*big.Int, error)
}

// TransactionIndexer returns every indexed transaction touching an address.
type TransactionIndexer interface {
	AllTransactions(ctx context.Context, account common.Address) ([]IndexedTransaction, error)
}

// Signer produces owner signatures for Safe operations.
type Signer interface {
	// Address is the owner address registered on the Safe.
	Address() common.Address

	// Sign signs a SafeOp hash. Implementations backed by a platform
	// authenticator may block until the user responds or ctx is done.
	Sign(ctx context.Context, digest common.Hash) ([]byte, error)

	// DummySignature is a correctly-shaped placeholder used for gas estimation.
	DummySignature() []byte
}

// SignerResolver maps a stored credential to its signer.
type SignerResolver interface {
	Resolve(ctx context.Context, credentialID string) (Signer, error)
}

// CredentialStore persists passkey public material.
type CredentialStore interface {
	Create(cred Credential) error
	List() ([]Credential, error)
	FindByRawID(rawID string) (*Credential, error)
}

// InitOptions configures a smart-account handle. With no Owners the signer
// is the sole owner.
type InitOptions struct {
	Signer    Signer
	Owners    []common.Address
	Threshold int
}

// SmartAccountKit builds smart-account handles.
type SmartAccountKit interface {
	Init(ctx context.Context, opts InitOptions) (SmartAccount, error)
}

// SmartAccount is a handle on one counterfactual or deployed Safe.
type SmartAccount interface {
	SignerAddress() common.Address
	Address() common.Address
	IsDeployed(ctx context.Context) (bool, error)

	// CreateOperation bundles calls into one unsigned user operation.
	CreateOperation(ctx context.Context, calls []Call) (*UserOperation, error)

	// SignOperation returns a copy of op carrying the owner signature.
	SignOperation(ctx context.Context, op *UserOperation) (*UserOperation, error)

	// Execute submits a signed operation and returns its hash.
	Execute(ctx context.Context, op *UserOperation) (common.Hash, error)

	// UserOperationReceipt returns nil, nil while the operation is pending.
	UserOperationReceipt(ctx context.Context, hash common.Hash) (*UserOperationReceipt, error)
}
