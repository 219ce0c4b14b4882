// Package safe builds Safe{Core} smart accounts driven through the
// Safe4337Module and an ERC-4337 v0.7 bundler.
package safe

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/valens-carpentier/demeter-sub000/internal/core/domain"
)

// Backend is the chain access the kit needs.
type Backend interface {
	ethereum.ContractCaller
	ethereum.GasPricer
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
}

// UserOperationSender submits operations and reads receipts.
type UserOperationSender interface {
	EstimateGas(ctx context.Context, op *domain.UserOperation) (*GasEstimate, error)
	Send(ctx context.Context, op *domain.UserOperation) (common.Hash, error)
	Receipt(ctx context.Context, hash common.Hash) (*domain.UserOperationReceipt, error)
}

// Sponsor obtains paymaster data for an operation.
type Sponsor interface {
	Sponsor(ctx context.Context, op *domain.UserOperation) (*Sponsorship, error)
}

// SetupCaller is implemented by signers whose owner contract must be created
// during Safe setup (e.g. WebAuthn signer proxies).
type SetupCaller interface {
	SetupCall() (*domain.Call, error)
}

// Kit initializes smart-account handles. It implements domain.SmartAccountKit.
type Kit struct {
	backend   Backend
	bundler   UserOperationSender
	sponsor   Sponsor
	addrs     Addresses
	chainID   *big.Int
	saltNonce *big.Int
	validFor  time.Duration
	logger    *slog.Logger
	now       func() time.Time

	mu           sync.Mutex
	creationCode []byte
}

// Option configures a Kit.
type Option func(*Kit)

// WithSponsor routes gas through a paymaster.
func WithSponsor(s Sponsor) Option {
	return func(k *Kit) {
		k.sponsor = s
	}
}

// WithAddresses overrides the default deployments.
func WithAddresses(a Addresses) Option {
	return func(k *Kit) {
		k.addrs = a
	}
}

// WithSaltNonce sets the CREATE2 salt nonce.
func WithSaltNonce(n *big.Int) Option {
	return func(k *Kit) {
		k.saltNonce = new(big.Int).Set(n)
	}
}

// WithValidity bounds how long a signed operation stays valid. Zero means forever.
func WithValidity(d time.Duration) Option {
	return func(k *Kit) {
		k.validFor = d
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(k *Kit) {
		k.logger = l
	}
}

// NewKit creates a kit for chainID.
func NewKit(backend Backend, bundler UserOperationSender, chainID *big.Int, opts ...Option) *Kit {
	k := &Kit{
		backend:   backend,
		bundler:   bundler,
		addrs:     DefaultAddresses(),
		chainID:   new(big.Int).Set(chainID),
		saltNonce: new(big.Int),
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(k)
	}
	return k
}

// Init resolves the owner set and predicts the account address.
func (k *Kit) Init(ctx context.Context, opts domain.InitOptions) (domain.SmartAccount, error) {
	if opts.Signer == nil {
		return nil, fmt.Errorf("signer is required")
	}

	owners := opts.Owners
	if len(owners) == 0 {
		owners = []common.Address{opts.Signer.Address()}
	}
	threshold := opts.Threshold
	if threshold == 0 {
		threshold = 1
	}
	if threshold < 0 || threshold > len(owners) {
		return nil, fmt.Errorf("threshold %d out of range for %d owners", threshold, len(owners))
	}

	initializer, err := k.initializer(opts.Signer, owners, threshold)
	if err != nil {
		return nil, err
	}

	address, err := k.predictAddress(ctx, initializer)
	if err != nil {
		return nil, err
	}

	return &account{
		kit:         k,
		signer:      opts.Signer,
		owners:      owners,
		threshold:   threshold,
		initializer: initializer,
		address:     address,
	}, nil
}

// initializer encodes Safe.setup for owners, enabling the 4337 module.
func (k *Kit) initializer(signer domain.Signer, owners []common.Address, threshold int) ([]byte, error) {
	enable, err := moduleSetupABI.Pack("enableModules", []common.Address{k.addrs.Module})
	if err != nil {
		return nil, fmt.Errorf("failed to pack enableModules: %w", err)
	}

	to, data := k.addrs.ModuleSetup, enable
	if sc, ok := signer.(SetupCaller); ok {
		call, err := sc.SetupCall()
		if err != nil {
			return nil, fmt.Errorf("failed to build signer setup call: %w", err)
		}
		if call != nil {
			batch := EncodeMultiSend([]MultiSendTx{
				{Operation: OpDelegateCall, To: k.addrs.ModuleSetup, Data: enable},
				{Operation: OpCall, To: call.To, Value: call.Value, Data: call.Data},
			})
			data, err = multiSendABI.Pack("multiSend", batch)
			if err != nil {
				return nil, fmt.Errorf("failed to pack setup multiSend: %w", err)
			}
			to = k.addrs.MultiSend
		}
	}

	setup, err := safeABI.Pack("setup",
		owners,
		big.NewInt(int64(threshold)),
		to,
		data,
		k.addrs.Module,
		common.Address{},
		new(big.Int),
		common.Address{},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to pack Safe setup: %w", err)
	}
	return setup, nil
}

// predictAddress computes the CREATE2 address of the Safe proxy.
func (k *Kit) predictAddress(ctx context.Context, initializer []byte) (common.Address, error) {
	code, err := k.proxyCreationCode(ctx)
	if err != nil {
		return common.Address{}, err
	}

	salt := crypto.Keccak256Hash(crypto.Keccak256(initializer), math.U256Bytes(new(big.Int).Set(k.saltNonce)))

	deploymentCode := make([]byte, 0, len(code)+32)
	deploymentCode = append(deploymentCode, code...)
	deploymentCode = append(deploymentCode, common.LeftPadBytes(k.addrs.Singleton.Bytes(), 32)...)

	return crypto.CreateAddress2(k.addrs.ProxyFactory, salt, crypto.Keccak256(deploymentCode)), nil
}

func (k *Kit) proxyCreationCode(ctx context.Context) ([]byte, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.creationCode != nil {
		return k.creationCode, nil
	}

	data, err := proxyFactoryABI.Pack("proxyCreationCode")
	if err != nil {
		return nil, fmt.Errorf("failed to pack proxyCreationCode call: %w", err)
	}
	result, err := k.backend.CallContract(ctx, ethereum.CallMsg{To: &k.addrs.ProxyFactory, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to call proxyCreationCode: %w", err)
	}

	var code []byte
	if err := proxyFactoryABI.UnpackIntoInterface(&code, "proxyCreationCode", result); err != nil {
		return nil, fmt.Errorf("failed to unpack proxyCreationCode result: %w", err)
	}
	if len(code) == 0 {
		return nil, fmt.Errorf("proxy factory %s returned empty creation code", k.addrs.ProxyFactory.Hex())
	}

	k.creationCode = code
	return code, nil
}

// factoryData encodes createProxyWithNonce for the counterfactual deployment.
func (k *Kit) factoryData(initializer []byte) ([]byte, error) {
	data, err := proxyFactoryABI.Pack("createProxyWithNonce", k.addrs.Singleton, initializer, k.saltNonce)
	if err != nil {
		return nil, fmt.Errorf("failed to pack createProxyWithNonce: %w", err)
	}
	return data, nil
}
