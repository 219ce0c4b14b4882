package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Farm is a registry entry joined with its token's current price.
type Farm struct {
	ID                        common.Hash    `json:"id"` // keccak256(name)
	Index                     uint64         `json:"index"`
	TokenAddress              common.Address `json:"tokenAddress"`
	OwnerAddress              common.Address `json:"ownerAddress"`
	Name                      string         `json:"name"`
	SizeInAcres               uint64         `json:"sizeInAcres"`
	TotalTokenSupply          *big.Int       `json:"totalTokenSupply"` // whole tokens
	Valuation                 *big.Int       `json:"valuation"`        // whole currency units
	ExpectedOutcomePercentage uint64         `json:"expectedOutcomePercentage"`
	PricePerTokenCents        *big.Int       `json:"pricePerTokenCents"`
	IsActive                  bool           `json:"isActive"`
	CreatedAt                 time.Time      `json:"createdAt"`
}

// FarmID derives the canonical farm identifier from its name.
func FarmID(name string) common.Hash {
	return crypto.Keccak256Hash([]byte(name))
}

// FarmRecord is the raw registry struct, before price resolution.
type FarmRecord struct {
	TokenAddress              common.Address `json:"tokenAddress"`
	OwnerAddress              common.Address `json:"ownerAddress"`
	Name                      string         `json:"name"`
	SizeInAcres               *big.Int       `json:"sizeInAcres"`
	TotalTokenSupply          *big.Int       `json:"totalTokenSupply"`
	Valuation                 *big.Int       `json:"valuation"`
	ExpectedOutcomePercentage *big.Int       `json:"expectedOutcomePercentage"`
	IsActive                  bool           `json:"isActive"`
	CreatedAt                 *big.Int       `json:"createdAt"` // unix seconds
}

// Holding is a non-zero position in one farm token.
type Holding struct {
	FarmName       string          `json:"farmName"`
	TokenSymbol    string          `json:"tokenSymbol"`
	TokenBalance   decimal.Decimal `json:"tokenBalance"`
	FarmValuation  decimal.Decimal `json:"farmValuation"`
	UserShareValue decimal.Decimal `json:"userShareValue"`
	TokenAddress   common.Address  `json:"tokenAddress"`
	RawBalance     *big.Int        `json:"rawBalance"`
	Decimals       uint8           `json:"decimals"`
}

// Portfolio is a holdings snapshot with its aggregate value.
type Portfolio struct {
	Account    common.Address  `json:"account"`
	Holdings   []Holding       `json:"holdings"`
	TotalValue decimal.Decimal `json:"totalValue"`
}

// TxType is the direction of a farm-token trade.
type TxType string

const (
	TxBuy  TxType = "Buy"
	TxSell TxType = "Sell"
)

// Transaction is one reconciled history entry.
type Transaction struct {
	FarmName     string          `json:"farmName"`
	Date         time.Time       `json:"date"`
	Amount       decimal.Decimal `json:"amount"`
	Hash         string          `json:"hash"`
	Type         TxType          `json:"type"`
	PriceCents   *big.Int        `json:"priceCents"` // price at lookup time
	TokenAddress common.Address  `json:"tokenAddress"`
}

// Credential is the public material of a stored passkey.
type Credential struct {
	RawID       string      `json:"rawId"`
	Coordinates Coordinates `json:"coordinates"`
}

// Coordinates holds the P-256 public key as 0x-prefixed hex.
type Coordinates struct {
	X string `json:"x"`
	Y string `json:"y"`
}

// AccountSession is the derived smart-account context of a signed-in user.
// Values are never mutated; refresh by deriving again.
type AccountSession struct {
	OwnerCredentialID   string         `json:"ownerCredentialId"`
	SignerAddress       common.Address `json:"signerAddress"`
	SmartAccountAddress common.Address `json:"smartAccountAddress"`
	IsDeployed          bool           `json:"isDeployed"`
	DerivedAt           time.Time      `json:"derivedAt"`

	Account SmartAccount `json:"-"`
}

// TradeRequest describes a buy or sell of whole farm tokens.
type TradeRequest struct {
	FarmToken        common.Address
	Account          common.Address
	TokenAmount      *big.Int
	CredentialID     string
	AvailableBalance *big.Int // required for sells
}

// OperationKind labels what a user operation does.
type OperationKind string

const (
	OpActivation OperationKind = "activation"
	OpBuy        OperationKind = "buy"
	OpSell       OperationKind = "sell"
)

// UserOperationHandle identifies a submitted user operation.
type UserOperationHandle struct {
	Hash        common.Hash    `json:"hash"`
	Kind        OperationKind  `json:"kind"`
	Account     common.Address `json:"account"`
	AttemptID   uuid.UUID      `json:"attemptId"`
	SubmittedAt time.Time      `json:"submittedAt"`
}

// UserOperationReceipt is the bundler's execution result.
type UserOperationReceipt struct {
	UserOpHash      common.Hash `json:"userOpHash"`
	TransactionHash common.Hash `json:"transactionHash"`
	Success         bool        `json:"success"`
	Reason          string      `json:"reason,omitempty"`
	ActualGasCost   *big.Int    `json:"actualGasCost,omitempty"`
	ActualGasUsed   *big.Int    `json:"actualGasUsed,omitempty"`
	BlockNumber     uint64      `json:"blockNumber"`
}

// Call is one leg of a bundled user operation.
type Call struct {
	To    common.Address
	Value *big.Int
	Data  []byte
}

// IndexedTransaction is one entry of the transaction indexer.
type IndexedTransaction struct {
	Hash          string
	TxType        string // ETHEREUM_TRANSACTION, MULTISIG_TRANSACTION, MODULE_TRANSACTION
	To            common.Address
	From          common.Address
	ExecutionDate time.Time
	Transfers     []IndexedTransfer
}

// IndexedTransfer is a token movement attached to an indexed transaction.
type IndexedTransfer struct {
	TokenAddress    common.Address
	From            common.Address
	To              common.Address
	Value           *big.Int
	Decimals        int
	TransactionHash string
	ExecutionDate   time.Time
}
