package signer

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Well-known test key (hardhat account #0).
const testKey = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

func TestNewKeySigner(t *testing.T) {
	s, err := NewKeySigner(testKey)
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"), s.Address())

	_, err = NewKeySigner("not-hex")
	assert.Error(t, err)
}

func TestKeySigner_SignRecover(t *testing.T) {
	s, err := NewKeySigner(testKey)
	require.NoError(t, err)

	digest := crypto.Keccak256Hash([]byte("safe op"))
	sig, err := s.Sign(context.Background(), digest)
	require.NoError(t, err)
	require.Len(t, sig, 65)
	assert.Contains(t, []byte{27, 28}, sig[64])

	addr, err := Recover(digest, sig)
	require.NoError(t, err)
	assert.Equal(t, s.Address(), addr)
}

func TestKeySigner_DummySignature(t *testing.T) {
	s, err := NewKeySigner(testKey)
	require.NoError(t, err)
	assert.Len(t, s.DummySignature(), 65)
}

func TestRecover_BadLength(t *testing.T) {
	_, err := Recover(common.Hash{}, []byte{1, 2, 3})
	assert.Error(t, err)
}
