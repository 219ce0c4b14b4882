package domain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/valens-carpentier/demeter-sub000/pkg/units"
)

func TestUserMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"already deployed", fmt.Errorf("activate: %w", ErrAlreadyDeployed), "Your account is already active."},
		{"trade in progress", ErrTradeInProgress, "Please wait for your current transaction to finish."},
		{"signing wrapped in session", &SessionInitError{Phase: "signer", Err: &SigningError{Err: errors.New("cancelled")}},
			"The signature request was cancelled or failed. Please try again."},
		{"session", &SessionInitError{Phase: "account", Err: errors.New("rpc down")},
			"We could not connect your passkey to a smart account. Please try signing in again."},
		{"registry", &RegistryReadError{Err: errors.New("boom")}, "Farms could not be loaded right now. Please refresh."},
		{"timeout", &SettlementTimeoutError{Attempts: 3}, "The transaction is taking longer than expected. Check your history before retrying."},
		{"validation", &ValidationError{Field: "amount", Reason: "must be positive"}, "Invalid amount: must be positive."},
		{"funds", &InsufficientFundsError{Have: big.NewInt(1), Need: big.NewInt(2)}, "Your account does not hold enough funds for this action."},
		{"precision", &units.PrecisionError{Amount: decimal.NewFromInt(1)}, "That amount has more decimal places than the token supports."},
		{"cancelled", context.Canceled, "The action was cancelled."},
		{"unknown", errors.New("weird"), "Something went wrong. Please try again."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, UserMessage(tt.err))
		})
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("execution reverted")
	idx := uint64(3)
	err := fmt.Errorf("list: %w", &RegistryReadError{Index: &idx, Err: cause})

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "failed to read farm 3")

	holdings := &HoldingsReadError{Account: common.HexToAddress("0x01"), Err: cause}
	assert.ErrorIs(t, holdings, cause)
}

func TestFarmID(t *testing.T) {
	a := FarmID("Green Acres")
	assert.Equal(t, a, FarmID("Green Acres"))
	assert.NotEqual(t, a, FarmID("Blue Acres"))
}

func TestUserOperationPackedFields(t *testing.T) {
	factory := common.HexToAddress("0x4e1DCf7AD4e460CfD30791CCC4F9c8a4f820ec67")
	pm := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	op := &UserOperation{
		Factory:                       &factory,
		FactoryData:                   []byte{0x01, 0x02},
		Paymaster:                     &pm,
		PaymasterVerificationGasLimit: big.NewInt(1),
		PaymasterPostOpGasLimit:       big.NewInt(2),
		PaymasterData:                 []byte{0xff},
	}

	initCode := op.InitCode()
	assert.Len(t, initCode, 22)
	assert.Equal(t, factory.Bytes(), initCode[:20])

	pad := op.PaymasterAndData()
	assert.Len(t, pad, 20+16+16+1)
	assert.Equal(t, byte(1), pad[35])
	assert.Equal(t, byte(2), pad[51])
	assert.Equal(t, byte(0xff), pad[52])

	cp := op.Copy()
	cp.FactoryData[0] = 0x09
	assert.Equal(t, byte(0x01), op.FactoryData[0])

	assert.Nil(t, (&UserOperation{}).InitCode())
	assert.Nil(t, (&UserOperation{}).PaymasterAndData())
}
