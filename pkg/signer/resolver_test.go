package signer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valens-carpentier/demeter-sub000/internal/core/domain"
)

type namedResolver map[string]domain.Signer

func (n namedResolver) Resolve(_ context.Context, id string) (domain.Signer, error) {
	if s, ok := n[id]; ok {
		return s, nil
	}
	return nil, domain.ErrCredentialNotFound
}

func TestResolver(t *testing.T) {
	key, err := NewKeySigner(testKey)
	require.NoError(t, err)
	other, err := NewKeySigner("0x59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d")
	require.NoError(t, err)

	r := NewResolver(key, namedResolver{"passkey-1": other})

	got, err := r.Resolve(context.Background(), KeyCredentialID)
	require.NoError(t, err)
	assert.Equal(t, key.Address(), got.Address())

	got, err = r.Resolve(context.Background(), "passkey-1")
	require.NoError(t, err)
	assert.Equal(t, other.Address(), got.Address())

	_, err = r.Resolve(context.Background(), "unknown")
	assert.ErrorIs(t, err, domain.ErrCredentialNotFound)
}

func TestResolver_NoKey(t *testing.T) {
	r := NewResolver(nil, nil)

	_, err := r.Resolve(context.Background(), KeyCredentialID)
	assert.ErrorIs(t, err, domain.ErrCredentialNotFound)

	_, err = r.Resolve(context.Background(), "passkey-1")
	assert.ErrorIs(t, err, domain.ErrCredentialNotFound)
}
