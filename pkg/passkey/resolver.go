package passkey

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"github.com/valens-carpentier/demeter-sub000/internal/core/domain"
)

// Resolver maps stored credentials to WebAuthn signers.
// It implements domain.SignerResolver.
type Resolver struct {
	store     domain.CredentialStore
	caller    ethereum.ContractCaller
	factory   common.Address
	verifiers *big.Int
	assertor  Assertor
}

// NewResolver creates a resolver. assertor may be nil for read-only use.
func NewResolver(store domain.CredentialStore, caller ethereum.ContractCaller, factory common.Address, verifiers *big.Int, assertor Assertor) *Resolver {
	return &Resolver{
		store:     store,
		caller:    caller,
		factory:   factory,
		verifiers: verifiers,
		assertor:  assertor,
	}
}

// Resolve looks up credentialID and builds its signer.
func (r *Resolver) Resolve(ctx context.Context, credentialID string) (domain.Signer, error) {
	cred, err := r.store.FindByRawID(credentialID)
	if err != nil {
		return nil, err
	}
	return NewWebAuthnSigner(ctx, r.caller, r.factory, r.verifiers, *cred, r.assertor)
}
