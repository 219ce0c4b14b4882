package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/valens-carpentier/demeter-sub000/internal/core/domain"
)

// Backend is the read-only slice of an RPC client the contracts need.
type Backend interface {
	ethereum.ContractCaller
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

// farmTuple mirrors the getFarm output struct.
type farmTuple struct {
	TokenAddress              common.Address
	Owner                     common.Address
	Name                      string
	SizeInAcres               *big.Int
	TotalTokenSupply          *big.Int
	Valuation                 *big.Int
	ExpectedOutcomePercentage *big.Int
	IsActive                  bool
	CreatedAt                 *big.Int
}

// FarmContracts reads the farm factory, farm tokens and ERC20s.
// It implements domain.FarmSource, domain.TokenReader and domain.NativeBalanceReader.
type FarmContracts struct {
	backend Backend
	factory common.Address
}

// NewFarmContracts creates a reader for the factory at factory.
func NewFarmContracts(backend Backend, factory common.Address) *FarmContracts {
	return &FarmContracts{backend: backend, factory: factory}
}

// Dial connects to rpcURL and returns the client with a reader on top of it.
func Dial(ctx context.Context, rpcURL string, factory common.Address) (*ethclient.Client, *FarmContracts, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to RPC: %w", err)
	}
	return client, NewFarmContracts(client, factory), nil
}

// Factory returns the registry address.
func (c *FarmContracts) Factory() common.Address {
	return c.factory
}

// TotalFarms calls getTotalFarms().
func (c *FarmContracts) TotalFarms(ctx context.Context) (uint64, error) {
	var total *big.Int
	if err := c.call(ctx, FarmFactoryABI, c.factory, "getTotalFarms", &total); err != nil {
		return 0, err
	}
	if !total.IsUint64() {
		return 0, fmt.Errorf("farm count %s overflows uint64", total)
	}
	return total.Uint64(), nil
}

// Farm calls getFarm(index).
func (c *FarmContracts) Farm(ctx context.Context, index uint64) (*domain.FarmRecord, error) {
	data, err := FarmFactoryABI.Pack("getFarm", new(big.Int).SetUint64(index))
	if err != nil {
		return nil, fmt.Errorf("failed to pack getFarm call: %w", err)
	}
	result, err := c.backend.CallContract(ctx, ethereum.CallMsg{To: &c.factory, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to call getFarm(%d): %w", index, err)
	}
	out, err := FarmFactoryABI.Unpack("getFarm", result)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack getFarm result: %w", err)
	}
	if len(out) != 1 {
		return nil, fmt.Errorf("getFarm returned %d values", len(out))
	}
	t := *abi.ConvertType(out[0], new(farmTuple)).(*farmTuple)

	return &domain.FarmRecord{
		TokenAddress:              t.TokenAddress,
		OwnerAddress:              t.Owner,
		Name:                      t.Name,
		SizeInAcres:               t.SizeInAcres,
		TotalTokenSupply:          t.TotalTokenSupply,
		Valuation:                 t.Valuation,
		ExpectedOutcomePercentage: t.ExpectedOutcomePercentage,
		IsActive:                  t.IsActive,
		CreatedAt:                 t.CreatedAt,
	}, nil
}

// PricePerToken calls pricePerToken() on a farm token.
func (c *FarmContracts) PricePerToken(ctx context.Context, token common.Address) (*big.Int, error) {
	var price *big.Int
	if err := c.call(ctx, FarmTokenABI, token, "pricePerToken", &price); err != nil {
		return nil, err
	}
	return price, nil
}

// BalanceOf calls balanceOf(owner) on an ERC20.
func (c *FarmContracts) BalanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	var balance *big.Int
	if err := c.call(ctx, ERC20ABI, token, "balanceOf", &balance, owner); err != nil {
		return nil, err
	}
	return balance, nil
}

// Decimals calls decimals() on an ERC20.
func (c *FarmContracts) Decimals(ctx context.Context, token common.Address) (uint8, error) {
	var decimals uint8
	if err := c.call(ctx, ERC20ABI, token, "decimals", &decimals); err != nil {
		return 0, err
	}
	return decimals, nil
}

// Symbol calls symbol() on an ERC20.
func (c *FarmContracts) Symbol(ctx context.Context, token common.Address) (string, error) {
	var symbol string
	if err := c.call(ctx, ERC20ABI, token, "symbol", &symbol); err != nil {
		return "", err
	}
	return symbol, nil
}

// BalanceAt returns the latest native balance of account.
func (c *FarmContracts) BalanceAt(ctx context.Context, account common.Address) (*big.Int, error) {
	balance, err := c.backend.BalanceAt(ctx, account, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to check balance: %w", err)
	}
	return balance, nil
}

func (c *FarmContracts) call(ctx context.Context, contract abi.ABI, to common.Address, method string, out interface{}, args ...interface{}) error {
	data, err := contract.Pack(method, args...)
	if err != nil {
		return fmt.Errorf("failed to pack %s call: %w", method, err)
	}

	result, err := c.backend.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return fmt.Errorf("failed to call %s on %s: %w", method, to.Hex(), err)
	}
	if len(result) == 0 {
		return fmt.Errorf("empty %s result from %s (no contract code?)", method, to.Hex())
	}

	if err := contract.UnpackIntoInterface(out, method, result); err != nil {
		return fmt.Errorf("failed to unpack %s result: %w", method, err)
	}
	return nil
}
