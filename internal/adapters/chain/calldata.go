package chain

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// ApproveCalldata encodes approve(spender, amount).
func ApproveCalldata(spender common.Address, amount *big.Int) ([]byte, error) {
	data, err := ERC20ABI.Pack("approve", spender, amount)
	if err != nil {
		return nil, fmt.Errorf("failed to pack approve call: %w", err)
	}
	return data, nil
}

// BuyCalldata encodes buyTokensWithUSDC(tokenAmount).
func BuyCalldata(tokenAmount *big.Int) ([]byte, error) {
	data, err := FarmTokenABI.Pack("buyTokensWithUSDC", tokenAmount)
	if err != nil {
		return nil, fmt.Errorf("failed to pack buyTokensWithUSDC call: %w", err)
	}
	return data, nil
}

// SellCalldata encodes sellTokensWithUSDC(tokenAmount).
func SellCalldata(tokenAmount *big.Int) ([]byte, error) {
	data, err := FarmTokenABI.Pack("sellTokensWithUSDC", tokenAmount)
	if err != nil {
		return nil, fmt.Errorf("failed to pack sellTokensWithUSDC call: %w", err)
	}
	return data, nil
}
