package safe

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Addresses are the Safe{Core} 4337 deployments an account is built from.
type Addresses struct {
	EntryPoint        common.Address
	Module            common.Address // Safe4337Module, also the fallback handler
	ModuleSetup       common.Address // SafeModuleSetup
	Singleton         common.Address // SafeL2
	ProxyFactory      common.Address
	MultiSend         common.Address
	MultiSendCallOnly common.Address
}

// DefaultAddresses are the canonical v0.3.0 module / v1.4.1 Safe deployments
// against EntryPoint v0.7.
func DefaultAddresses() Addresses {
	return Addresses{
		EntryPoint:        common.HexToAddress("0x0000000071727De22E5E9d8BAf0edAc6f37da032"),
		Module:            common.HexToAddress("0x75cf11467937ce3F2f357CE24ffc3DBF8fD5c226"),
		ModuleSetup:       common.HexToAddress("0x2dd68b007B46fBe91B9A7c3EDa5A7a1063cB5b47"),
		Singleton:         common.HexToAddress("0x29fcB43b46531BcA003ddC8FCB67FFE91900C762"),
		ProxyFactory:      common.HexToAddress("0x4e1DCf7AD4e460CfD30791CCC4F9c8a4f820ec67"),
		MultiSend:         common.HexToAddress("0x38869bf66a61cF6bDB996A6aE40D5853Fd43B526"),
		MultiSendCallOnly: common.HexToAddress("0x9641d764fc13c8B624c04430C7356C1C7C8102e2"),
	}
}

const safeABIJSON = `[
	{"inputs":[
		{"name":"_owners","type":"address[]"},
		{"name":"_threshold","type":"uint256"},
		{"name":"to","type":"address"},
		{"name":"data","type":"bytes"},
		{"name":"fallbackHandler","type":"address"},
		{"name":"paymentToken","type":"address"},
		{"name":"payment","type":"uint256"},
		{"name":"paymentReceiver","type":"address"}
	],"name":"setup","outputs":[],"stateMutability":"nonpayable","type":"function"}
]`

const proxyFactoryABIJSON = `[
	{"inputs":[],"name":"proxyCreationCode","outputs":[{"name":"","type":"bytes"}],"stateMutability":"pure","type":"function"},
	{"inputs":[
		{"name":"_singleton","type":"address"},
		{"name":"initializer","type":"bytes"},
		{"name":"saltNonce","type":"uint256"}
	],"name":"createProxyWithNonce","outputs":[{"name":"proxy","type":"address"}],"stateMutability":"nonpayable","type":"function"}
]`

const moduleSetupABIJSON = `[
	{"inputs":[{"name":"modules","type":"address[]"}],"name":"enableModules","outputs":[],"stateMutability":"nonpayable","type":"function"}
]`

const moduleABIJSON = `[
	{"inputs":[
		{"name":"to","type":"address"},
		{"name":"value","type":"uint256"},
		{"name":"data","type":"bytes"},
		{"name":"operation","type":"uint8"}
	],"name":"executeUserOp","outputs":[],"stateMutability":"nonpayable","type":"function"}
]`

const multiSendABIJSON = `[
	{"inputs":[{"name":"transactions","type":"bytes"}],"name":"multiSend","outputs":[],"stateMutability":"payable","type":"function"}
]`

const entryPointABIJSON = `[
	{"inputs":[{"name":"sender","type":"address"},{"name":"key","type":"uint192"}],"name":"getNonce","outputs":[{"name":"nonce","type":"uint256"}],"stateMutability":"view","type":"function"}
]`

var (
	safeABI         = mustParseABI(safeABIJSON)
	proxyFactoryABI = mustParseABI(proxyFactoryABIJSON)
	moduleSetupABI  = mustParseABI(moduleSetupABIJSON)
	moduleABI       = mustParseABI(moduleABIJSON)
	multiSendABI    = mustParseABI(multiSendABIJSON)
	entryPointABI   = mustParseABI(entryPointABIJSON)
)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic("safe: invalid ABI: " + err.Error())
	}
	return parsed
}
