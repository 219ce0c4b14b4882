package signer

import (
	"context"
	"fmt"

	"github.com/valens-carpentier/demeter-sub000/internal/core/domain"
)

// KeyCredentialID names the local key when used in place of a passkey.
const KeyCredentialID = "local-key"

// Resolver serves the local key under KeyCredentialID and delegates every
// other credential to next. It implements domain.SignerResolver.
type Resolver struct {
	key  *KeySigner
	next domain.SignerResolver
}

// NewResolver creates a resolver. key and next may each be nil.
func NewResolver(key *KeySigner, next domain.SignerResolver) *Resolver {
	return &Resolver{key: key, next: next}
}

func (r *Resolver) Resolve(ctx context.Context, credentialID string) (domain.Signer, error) {
	if credentialID == KeyCredentialID {
		if r.key == nil {
			return nil, fmt.Errorf("no local signer key configured: %w", domain.ErrCredentialNotFound)
		}
		return r.key, nil
	}
	if r.next == nil {
		return nil, fmt.Errorf("credential %q: %w", credentialID, domain.ErrCredentialNotFound)
	}
	return r.next.Resolve(ctx, credentialID)
}
