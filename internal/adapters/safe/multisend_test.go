package safe

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valens-carpentier/demeter-sub000/internal/core/domain"
)

func TestEncodeMultiSend_Layout(t *testing.T) {
	to := common.HexToAddress("0x00000000000000000000000000000000000000a1")
	packed := EncodeMultiSend([]MultiSendTx{{Operation: OpCall, To: to, Value: big.NewInt(2), Data: []byte{0xab, 0xcd}}})

	require.Len(t, packed, 1+20+32+32+2)
	assert.Equal(t, byte(0), packed[0])
	assert.Equal(t, to.Bytes(), packed[1:21])
	assert.Equal(t, byte(2), packed[52])
	assert.Equal(t, byte(2), packed[84])
	assert.Equal(t, []byte{0xab, 0xcd}, packed[85:])
}

func TestMultiSend_RoundTrip(t *testing.T) {
	txs := []MultiSendTx{
		{Operation: OpDelegateCall, To: common.HexToAddress("0x01"), Value: big.NewInt(0), Data: []byte{1, 2, 3}},
		{Operation: OpCall, To: common.HexToAddress("0x02"), Value: big.NewInt(1_000), Data: nil},
		{Operation: OpCall, To: common.HexToAddress("0x03"), Value: big.NewInt(0), Data: make([]byte, 100)},
	}

	decoded, err := DecodeMultiSend(EncodeMultiSend(txs))
	require.NoError(t, err)
	require.Len(t, decoded, 3)
	for i := range txs {
		assert.Equal(t, txs[i].Operation, decoded[i].Operation)
		assert.Equal(t, txs[i].To, decoded[i].To)
		assert.Equal(t, 0, txs[i].Value.Cmp(decoded[i].Value))
		assert.Equal(t, len(txs[i].Data), len(decoded[i].Data))
	}
}

func TestDecodeMultiSend_Truncated(t *testing.T) {
	packed := EncodeMultiSend([]MultiSendTx{{To: common.HexToAddress("0x01"), Data: []byte{1, 2, 3}}})

	_, err := DecodeMultiSend(packed[:len(packed)-1])
	assert.Error(t, err)

	_, err = DecodeMultiSend(packed[:40])
	assert.ErrorContains(t, err, "truncated")
}

func TestEncodeCalls(t *testing.T) {
	_, err := encodeCalls(nil, common.Address{})
	assert.Error(t, err)

	msco := DefaultAddresses().MultiSendCallOnly
	single, err := encodeCalls([]domain.Call{{To: common.HexToAddress("0x01")}}, msco)
	require.NoError(t, err)
	args, err := moduleABI.Methods["executeUserOp"].Inputs.Unpack(single[4:])
	require.NoError(t, err)
	assert.Equal(t, uint8(OpCall), args[3])

	batch, err := encodeCalls([]domain.Call{{To: common.HexToAddress("0x01")}, {To: common.HexToAddress("0x02")}}, msco)
	require.NoError(t, err)
	args, err = moduleABI.Methods["executeUserOp"].Inputs.Unpack(batch[4:])
	require.NoError(t, err)
	assert.Equal(t, msco, args[0])
	assert.Equal(t, uint8(OpDelegateCall), args[3])
}
