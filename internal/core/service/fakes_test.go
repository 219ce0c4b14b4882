package service

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/valens-carpentier/demeter-sub000/internal/core/domain"
)

var errBoom = errors.New("boom")

type fakeFarmSource struct {
	mu         sync.Mutex
	records    []domain.FarmRecord
	prices     map[common.Address]*big.Int
	count      *uint64
	countErr   error
	failIndex  *uint64
	priceErr   error
	priceCalls int
}

func (f *fakeFarmSource) TotalFarms(context.Context) (uint64, error) {
	if f.countErr != nil {
		return 0, f.countErr
	}
	if f.count != nil {
		return *f.count, nil
	}
	return uint64(len(f.records)), nil
}

func (f *fakeFarmSource) Farm(_ context.Context, index uint64) (*domain.FarmRecord, error) {
	if f.failIndex != nil && *f.failIndex == index {
		return nil, errBoom
	}
	if index >= uint64(len(f.records)) {
		return nil, fmt.Errorf("index %d out of range", index)
	}
	rec := f.records[index]
	return &rec, nil
}

func (f *fakeFarmSource) PricePerToken(_ context.Context, token common.Address) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.priceCalls++
	if f.priceErr != nil {
		return nil, f.priceErr
	}
	if p, ok := f.prices[token]; ok {
		return p, nil
	}
	return big.NewInt(100), nil
}

func (f *fakeFarmSource) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.priceCalls
}

type fakeTokens struct {
	mu           sync.Mutex
	balances     map[common.Address]*big.Int
	decimals     map[common.Address]uint8
	balanceErr   error
	decimalCalls int
}

func (f *fakeTokens) BalanceOf(_ context.Context, token, _ common.Address) (*big.Int, error) {
	if f.balanceErr != nil {
		return nil, f.balanceErr
	}
	if b, ok := f.balances[token]; ok {
		return b, nil
	}
	return new(big.Int), nil
}

func (f *fakeTokens) Decimals(_ context.Context, token common.Address) (uint8, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.decimalCalls++
	return f.decimals[token], nil
}

func (f *fakeTokens) Symbol(_ context.Context, token common.Address) (string, error) {
	return "FT" + token.Hex()[2:6], nil
}

type fakeIndexer struct {
	records []domain.IndexedTransaction
	err     error
}

func (f *fakeIndexer) AllTransactions(context.Context, common.Address) ([]domain.IndexedTransaction, error) {
	return f.records, f.err
}

type fakeBalances struct {
	balance *big.Int
}

func (f *fakeBalances) BalanceAt(context.Context, common.Address) (*big.Int, error) {
	return f.balance, nil
}

type fakeSigner struct {
	addr common.Address
}

func (s *fakeSigner) Address() common.Address { return s.addr }

func (s *fakeSigner) Sign(context.Context, common.Hash) ([]byte, error) {
	return make([]byte, 65), nil
}

func (s *fakeSigner) DummySignature() []byte { return make([]byte, 65) }

type fakeResolver struct {
	signers map[string]domain.Signer
}

func (r *fakeResolver) Resolve(_ context.Context, id string) (domain.Signer, error) {
	s, ok := r.signers[id]
	if !ok {
		return nil, fmt.Errorf("resolve %q: %w", id, domain.ErrCredentialNotFound)
	}
	return s, nil
}

// fakeAccount records every call so tests can assert on network usage.
type fakeAccount struct {
	mu sync.Mutex

	signer   common.Address
	address  common.Address
	deployed bool

	deployErr error
	createErr error
	signErr   error
	execErr   error

	// receipts is consumed one entry per poll; the last entry repeats.
	receipts   []*domain.UserOperationReceipt
	receiptErr error

	created   [][]domain.Call
	executed  int
	polls     int
	networkIO int
}

func (a *fakeAccount) SignerAddress() common.Address { return a.signer }

func (a *fakeAccount) Address() common.Address { return a.address }

func (a *fakeAccount) IsDeployed(context.Context) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.networkIO++
	return a.deployed, a.deployErr
}

func (a *fakeAccount) CreateOperation(_ context.Context, calls []domain.Call) (*domain.UserOperation, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.networkIO++
	a.created = append(a.created, calls)
	if a.createErr != nil {
		return nil, a.createErr
	}
	return &domain.UserOperation{Sender: a.address, Nonce: new(big.Int)}, nil
}

func (a *fakeAccount) SignOperation(_ context.Context, op *domain.UserOperation) (*domain.UserOperation, error) {
	if a.signErr != nil {
		return nil, a.signErr
	}
	signed := op.Copy()
	signed.Signature = make([]byte, 77)
	return signed, nil
}

func (a *fakeAccount) Execute(_ context.Context, op *domain.UserOperation) (common.Hash, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.networkIO++
	if a.execErr != nil {
		return common.Hash{}, a.execErr
	}
	a.executed++
	return crypto.Keccak256Hash(op.Sender.Bytes(), big.NewInt(int64(a.executed)).Bytes()), nil
}

func (a *fakeAccount) UserOperationReceipt(_ context.Context, hash common.Hash) (*domain.UserOperationReceipt, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.polls++
	if a.receiptErr != nil {
		return nil, a.receiptErr
	}
	if len(a.receipts) == 0 {
		return nil, nil
	}
	r := a.receipts[0]
	if len(a.receipts) > 1 {
		a.receipts = a.receipts[1:]
	}
	if r != nil {
		r.UserOpHash = hash
	}
	return r, nil
}

func (a *fakeAccount) io() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.networkIO
}

// fakeKit derives addresses from the owner set, like CREATE2 would.
type fakeKit struct {
	deployed bool
	initErr  error
	failOn   int // fail the nth Init call (1-based); 0 never
	inits    int
}

func (k *fakeKit) Init(_ context.Context, opts domain.InitOptions) (domain.SmartAccount, error) {
	k.inits++
	if k.initErr != nil && (k.failOn == 0 || k.failOn == k.inits) {
		return nil, k.initErr
	}
	owners := opts.Owners
	if len(owners) == 0 {
		owners = []common.Address{opts.Signer.Address()}
	}
	var seed []byte
	for _, o := range owners {
		seed = append(seed, o.Bytes()...)
	}
	seed = append(seed, byte(opts.Threshold))
	return &fakeAccount{
		signer:   opts.Signer.Address(),
		address:  common.BytesToAddress(crypto.Keccak256(seed)[12:]),
		deployed: k.deployed,
	}, nil
}

func newSession(account *fakeAccount) *domain.AccountSession {
	return &domain.AccountSession{
		SignerAddress:       account.signer,
		SmartAccountAddress: account.address,
		IsDeployed:          account.deployed,
		Account:             account,
	}
}

func addr(n int64) common.Address {
	return common.BigToAddress(big.NewInt(n))
}

func farmRecord(name string, token common.Address, supply, valuation int64, active bool) domain.FarmRecord {
	return domain.FarmRecord{
		TokenAddress:              token,
		OwnerAddress:              addr(0xfa),
		Name:                      name,
		SizeInAcres:               big.NewInt(40),
		TotalTokenSupply:          big.NewInt(supply),
		Valuation:                 big.NewInt(valuation),
		ExpectedOutcomePercentage: big.NewInt(12),
		IsActive:                  active,
		CreatedAt:                 big.NewInt(1_700_000_000),
	}
}
