package service

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valens-carpentier/demeter-sub000/internal/core/domain"
)

func historyFixture(records []domain.IndexedTransaction, indexErr error) (*HistoryReconciler, *fakeFarmSource) {
	alpha, beta := addr(0xa1), addr(0xb1)
	src := &fakeFarmSource{
		records: []domain.FarmRecord{
			farmRecord("Alpha", alpha, 1000, 50_000, true),
			farmRecord("Beta", beta, 500, 20_000, true),
		},
		prices: map[common.Address]*big.Int{alpha: big.NewInt(300), beta: big.NewInt(150)},
	}
	reg := NewFarmRegistry(src, 0, nil)
	return NewHistoryReconciler(&fakeIndexer{records: records, err: indexErr}, reg, src, nil), src
}

func TestHistory_ClassifiesAndDeduplicates(t *testing.T) {
	account := addr(0x5afe)
	alpha, beta, usdc := addr(0xa1), addr(0xb1), addr(0xc0)
	day := func(d int) time.Time { return time.Date(2025, 3, d, 12, 0, 0, 0, time.UTC) }

	records := []domain.IndexedTransaction{
		{
			Hash: "0x01", ExecutionDate: day(1),
			Transfers: []domain.IndexedTransfer{
				{TokenAddress: usdc, From: account, To: alpha, Value: big.NewInt(3_000_000), Decimals: 6},
			},
		},
		{
			Hash: "0x02", ExecutionDate: day(3),
			Transfers: []domain.IndexedTransfer{
				{TokenAddress: beta, From: beta, To: account, Value: big.NewInt(5), Decimals: 0},
			},
		},
		// Duplicate of 0x01 with a different payload; the first one wins.
		{
			Hash: "0x01", ExecutionDate: day(9),
			Transfers: []domain.IndexedTransfer{
				{TokenAddress: alpha, From: alpha, To: account, Value: big.NewInt(1), Decimals: 0},
			},
		},
		// Direct call to a farm token without transfers.
		{Hash: "0x03", To: alpha, ExecutionDate: day(2)},
		// Unrelated.
		{Hash: "0x04", To: addr(0x999), ExecutionDate: day(4)},
		// Hash recovered from the transfer.
		{
			ExecutionDate: day(5),
			Transfers: []domain.IndexedTransfer{
				{From: account, To: beta, Value: big.NewInt(2), TransactionHash: "0x05"},
			},
		},
	}
	h, src := historyFixture(records, nil)

	txs := h.LoadTransactions(context.Background(), account)
	require.Len(t, txs, 4)

	hashes := make(map[string]struct{})
	for _, tx := range txs {
		_, dup := hashes[tx.Hash]
		assert.False(t, dup, "duplicate hash %s", tx.Hash)
		hashes[tx.Hash] = struct{}{}
	}

	// Newest first.
	assert.Equal(t, "0x05", txs[0].Hash)
	assert.Equal(t, domain.TxBuy, txs[0].Type)
	assert.Equal(t, "Beta", txs[0].FarmName)

	assert.Equal(t, "0x02", txs[1].Hash)
	assert.Equal(t, domain.TxSell, txs[1].Type)
	assert.True(t, txs[1].Amount.Equal(decimal.NewFromInt(5)))
	assert.Equal(t, big.NewInt(150), txs[1].PriceCents)

	assert.Equal(t, "0x03", txs[2].Hash)
	assert.Equal(t, domain.TxBuy, txs[2].Type)
	assert.True(t, txs[2].Amount.IsZero())

	assert.Equal(t, "0x01", txs[3].Hash)
	assert.Equal(t, domain.TxBuy, txs[3].Type)
	assert.Equal(t, "Alpha", txs[3].FarmName)
	assert.True(t, txs[3].Amount.Equal(decimal.NewFromInt(3)), "got %s", txs[3].Amount)
	assert.Equal(t, big.NewInt(300), txs[3].PriceCents)

	// One price read per token during the reconciliation itself.
	assert.LessOrEqual(t, src.calls(), 2+2)
}

func TestHistory_FallbackSellFromAttachedTransfer(t *testing.T) {
	account, alpha := addr(0x5afe), addr(0xa1)
	records := []domain.IndexedTransaction{{
		Hash: "0xaa", To: alpha, ExecutionDate: time.Now(),
		Transfers: []domain.IndexedTransfer{
			{TokenAddress: addr(0xc0), From: addr(0x77), To: account, Value: big.NewInt(1_500_000), Decimals: 6},
		},
	}}
	h, _ := historyFixture(records, nil)

	txs := h.LoadTransactions(context.Background(), account)
	require.Len(t, txs, 1)
	assert.Equal(t, domain.TxSell, txs[0].Type)
	assert.True(t, txs[0].Amount.Equal(decimal.RequireFromString("1.5")))
}

func TestHistory_DegradesToEmpty(t *testing.T) {
	t.Run("indexer", func(t *testing.T) {
		h, _ := historyFixture(nil, errBoom)
		txs := h.LoadTransactions(context.Background(), addr(1))
		assert.NotNil(t, txs)
		assert.Empty(t, txs)
	})

	t.Run("price", func(t *testing.T) {
		records := []domain.IndexedTransaction{{Hash: "0x01", To: addr(0xa1)}}
		h, src := historyFixture(records, nil)
		src.priceErr = errBoom
		assert.Empty(t, h.LoadTransactions(context.Background(), addr(1)))
	})
}
