package chain

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const farmFactoryABIJSON = `[
	{"inputs":[],"name":"getTotalFarms","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"name":"farmId","type":"uint256"}],"name":"getFarm","outputs":[{"components":[
		{"name":"tokenAddress","type":"address"},
		{"name":"owner","type":"address"},
		{"name":"name","type":"string"},
		{"name":"sizeInAcres","type":"uint256"},
		{"name":"totalTokenSupply","type":"uint256"},
		{"name":"valuation","type":"uint256"},
		{"name":"expectedOutcomePercentage","type":"uint256"},
		{"name":"isActive","type":"bool"},
		{"name":"createdAt","type":"uint256"}
	],"name":"","type":"tuple"}],"stateMutability":"view","type":"function"}
]`

const farmTokenABIJSON = `[
	{"inputs":[],"name":"pricePerToken","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"name":"tokenAmount","type":"uint256"}],"name":"buyTokensWithUSDC","outputs":[],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[{"name":"tokenAmount","type":"uint256"}],"name":"sellTokensWithUSDC","outputs":[],"stateMutability":"nonpayable","type":"function"}
]`

const erc20ABIJSON = `[
	{"inputs":[{"name":"account","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"symbol","outputs":[{"name":"","type":"string"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"name":"approve","outputs":[{"name":"","type":"bool"}],"stateMutability":"nonpayable","type":"function"}
]`

var (
	// FarmFactoryABI is the registry contract interface.
	FarmFactoryABI = mustParseABI(farmFactoryABIJSON)
	// FarmTokenABI is the farm-token trading interface.
	FarmTokenABI = mustParseABI(farmTokenABIJSON)
	// ERC20ABI is the subset of ERC20 used for balances and approvals.
	ERC20ABI = mustParseABI(erc20ABIJSON)
)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic("chain: invalid ABI: " + err.Error())
	}
	return parsed
}
