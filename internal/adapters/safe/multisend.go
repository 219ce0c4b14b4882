package safe

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"

	"github.com/valens-carpentier/demeter-sub000/internal/core/domain"
)

// Operation is the Safe execution mode of a call.
type Operation uint8

const (
	OpCall         Operation = 0
	OpDelegateCall Operation = 1
)

// MultiSendTx is one entry of a multiSend batch.
type MultiSendTx struct {
	Operation Operation
	To        common.Address
	Value     *big.Int
	Data      []byte
}

// EncodeMultiSend packs txs as operation(1) ++ to(20) ++ value(32) ++ len(32) ++ data.
func EncodeMultiSend(txs []MultiSendTx) []byte {
	var out []byte
	for _, tx := range txs {
		value := tx.Value
		if value == nil {
			value = new(big.Int)
		}
		out = append(out, byte(tx.Operation))
		out = append(out, tx.To.Bytes()...)
		out = append(out, math.U256Bytes(new(big.Int).Set(value))...)
		out = append(out, math.U256Bytes(big.NewInt(int64(len(tx.Data))))...)
		out = append(out, tx.Data...)
	}
	return out
}

// DecodeMultiSend is the inverse of EncodeMultiSend.
func DecodeMultiSend(packed []byte) ([]MultiSendTx, error) {
	var txs []MultiSendTx
	for i := 0; i < len(packed); {
		if len(packed)-i < 85 {
			return nil, fmt.Errorf("truncated multiSend entry at offset %d", i)
		}
		tx := MultiSendTx{
			Operation: Operation(packed[i]),
			To:        common.BytesToAddress(packed[i+1 : i+21]),
			Value:     new(big.Int).SetBytes(packed[i+21 : i+53]),
		}
		size := new(big.Int).SetBytes(packed[i+53 : i+85])
		i += 85
		if !size.IsInt64() || size.Int64() > int64(len(packed)-i) {
			return nil, fmt.Errorf("multiSend data length %s exceeds payload", size)
		}
		n := int(size.Int64())
		tx.Data = append([]byte(nil), packed[i:i+n]...)
		i += n
		txs = append(txs, tx)
	}
	return txs, nil
}

// encodeCalls builds the Safe4337Module.executeUserOp calldata for calls.
// One call executes directly; several go through MultiSendCallOnly.
func encodeCalls(calls []domain.Call, multiSendCallOnly common.Address) ([]byte, error) {
	if len(calls) == 0 {
		return nil, fmt.Errorf("no calls to encode")
	}
	if len(calls) == 1 {
		c := calls[0]
		value := c.Value
		if value == nil {
			value = new(big.Int)
		}
		return moduleABI.Pack("executeUserOp", c.To, value, c.Data, uint8(OpCall))
	}

	txs := make([]MultiSendTx, 0, len(calls))
	for _, c := range calls {
		txs = append(txs, MultiSendTx{Operation: OpCall, To: c.To, Value: c.Value, Data: c.Data})
	}
	batch, err := multiSendABI.Pack("multiSend", EncodeMultiSend(txs))
	if err != nil {
		return nil, fmt.Errorf("failed to pack multiSend: %w", err)
	}
	return moduleABI.Pack("executeUserOp", multiSendCallOnly, new(big.Int), batch, uint8(OpDelegateCall))
}

// DecodeCalls reverses encodeCalls, for inspection and tests.
func DecodeCalls(callData []byte) ([]domain.Call, error) {
	method, ok := moduleABI.Methods["executeUserOp"]
	if !ok || len(callData) < 4 || string(callData[:4]) != string(method.ID) {
		return nil, fmt.Errorf("calldata is not executeUserOp")
	}
	args, err := method.Inputs.Unpack(callData[4:])
	if err != nil {
		return nil, fmt.Errorf("failed to unpack executeUserOp: %w", err)
	}
	to := args[0].(common.Address)
	value := args[1].(*big.Int)
	data := args[2].([]byte)
	op := Operation(args[3].(uint8))

	if op == OpCall {
		return []domain.Call{{To: to, Value: value, Data: data}}, nil
	}

	ms := multiSendABI.Methods["multiSend"]
	if len(data) < 4 || string(data[:4]) != string(ms.ID) {
		return nil, fmt.Errorf("delegatecall target is not multiSend")
	}
	inner, err := ms.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, fmt.Errorf("failed to unpack multiSend: %w", err)
	}
	txs, err := DecodeMultiSend(inner[0].([]byte))
	if err != nil {
		return nil, err
	}
	calls := make([]domain.Call, 0, len(txs))
	for _, tx := range txs {
		calls = append(calls, domain.Call{To: tx.To, Value: tx.Value, Data: tx.Data})
	}
	return calls, nil
}
