// Package signer provides a local secp256k1 Safe owner for headless use.
package signer

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// KeySigner signs Safe operation hashes with a private key.
type KeySigner struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

// NewKeySigner parses a hex private key, with or without 0x.
func NewKeySigner(privateKeyHex string) (*KeySigner, error) {
	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return FromKey(privateKey)
}

// FromKey wraps an existing key.
func FromKey(privateKey *ecdsa.PrivateKey) (*KeySigner, error) {
	publicKey, ok := privateKey.Public().(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("failed to derive public key")
	}
	return &KeySigner{
		privateKey: privateKey,
		address:    crypto.PubkeyToAddress(*publicKey),
	}, nil
}

// Address returns the owner address.
func (s *KeySigner) Address() common.Address {
	return s.address
}

// Sign signs the raw digest. Safe verifies it with ecrecover, so v is 27/28.
func (s *KeySigner) Sign(_ context.Context, digest common.Hash) ([]byte, error) {
	signature, err := crypto.Sign(digest.Bytes(), s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign: %w", err)
	}
	signature[64] += 27
	return signature, nil
}

// DummySignature has the shape of a real signature for gas estimation.
func (s *KeySigner) DummySignature() []byte {
	sig := make([]byte, 0, 65)
	sig = append(sig, bytes.Repeat([]byte{0xff}, 32)...)
	sig = append(sig, bytes.Repeat([]byte{0x7f}, 32)...)
	return append(sig, 0x1c)
}

// Recover returns the address that produced sig over digest.
func Recover(digest common.Hash, sig []byte) (common.Address, error) {
	if len(sig) != 65 {
		return common.Address{}, fmt.Errorf("signature must be 65 bytes, got %d", len(sig))
	}
	normalized := append([]byte(nil), sig...)
	if normalized[64] >= 27 {
		normalized[64] -= 27
	}
	pub, err := crypto.SigToPub(digest.Bytes(), normalized)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to recover signer: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}
