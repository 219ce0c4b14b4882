package service

import (
	"context"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valens-carpentier/demeter-sub000/internal/core/domain"
)

func newResolver() *fakeResolver {
	return &fakeResolver{signers: map[string]domain.Signer{
		"cred-1": &fakeSigner{addr: addr(0x51)},
		"cred-2": &fakeSigner{addr: addr(0x52)},
	}}
}

func TestSessionManager_DeriveIsDeterministic(t *testing.T) {
	mgr := NewSessionManager(&fakeKit{}, newResolver(), nil)
	assert.Equal(t, SessionUninitialized, mgr.State())

	first, err := mgr.DeriveSession(context.Background(), "cred-1")
	require.NoError(t, err)
	assert.Equal(t, SessionReady, mgr.State())
	assert.Equal(t, addr(0x51), first.SignerAddress)
	assert.Equal(t, "cred-1", first.OwnerCredentialID)
	assert.False(t, first.IsDeployed)
	assert.Same(t, first, mgr.Current())

	second, err := mgr.DeriveSession(context.Background(), "cred-1")
	require.NoError(t, err)
	assert.Equal(t, first.SmartAccountAddress, second.SmartAccountAddress)

	other, err := mgr.DeriveSession(context.Background(), "cred-2")
	require.NoError(t, err)
	assert.NotEqual(t, first.SmartAccountAddress, other.SmartAccountAddress)
}

func TestSessionManager_Failures(t *testing.T) {
	tests := []struct {
		name      string
		kit       *fakeKit
		cred      string
		wantPhase string
	}{
		{"unknown credential", &fakeKit{}, "missing", "signer"},
		{"signer init", &fakeKit{initErr: errBoom, failOn: 1}, "cred-1", "signer"},
		{"account init", &fakeKit{initErr: errBoom, failOn: 2}, "cred-1", "account"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mgr := NewSessionManager(tt.kit, newResolver(), nil)
			session, err := mgr.DeriveSession(context.Background(), tt.cred)
			require.Error(t, err)
			assert.Nil(t, session)
			assert.Nil(t, mgr.Current())
			assert.Equal(t, SessionInitFailed, mgr.State())

			var initErr *domain.SessionInitError
			require.ErrorAs(t, err, &initErr)
			assert.Equal(t, tt.wantPhase, initErr.Phase)
		})
	}
}

func TestSessionManager_UnknownCredentialKeepsSentinel(t *testing.T) {
	mgr := NewSessionManager(&fakeKit{}, newResolver(), nil)
	_, err := mgr.DeriveSession(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrCredentialNotFound)
}

func TestSessionManager_RefreshReturnsNewValue(t *testing.T) {
	mgr := NewSessionManager(&fakeKit{}, newResolver(), nil)
	session, err := mgr.DeriveSession(context.Background(), "cred-1")
	require.NoError(t, err)

	session.Account.(*fakeAccount).deployed = true
	refreshed, err := mgr.Refresh(context.Background(), session)
	require.NoError(t, err)

	assert.False(t, session.IsDeployed, "original value is untouched")
	assert.True(t, refreshed.IsDeployed)
	assert.Equal(t, session.SmartAccountAddress, refreshed.SmartAccountAddress)
	assert.True(t, mgr.Current().IsDeployed)
}

func TestDeployer_Activate(t *testing.T) {
	account := &fakeAccount{signer: addr(0x51), address: addr(0x5afe)}
	deployer := NewDeployer(nil, nil)

	handle, err := deployer.Activate(context.Background(), newSession(account))
	require.NoError(t, err)
	assert.Equal(t, domain.OpActivation, handle.Kind)
	assert.Equal(t, account.address, handle.Account)
	assert.NotEqual(t, [16]byte{}, [16]byte(handle.AttemptID))

	require.Len(t, account.created, 1)
	call := account.created[0][0]
	assert.Equal(t, account.address, call.To)
	assert.Zero(t, call.Value.Sign())
	assert.Empty(t, call.Data)
	assert.Equal(t, 1, account.executed)
}

func TestDeployer_AlreadyDeployed(t *testing.T) {
	deployer := NewDeployer(nil, nil)

	t.Run("session flag", func(t *testing.T) {
		account := &fakeAccount{address: addr(0x5afe), deployed: true}
		_, err := deployer.Activate(context.Background(), newSession(account))
		assert.ErrorIs(t, err, domain.ErrAlreadyDeployed)
		assert.Zero(t, account.io())
	})

	t.Run("on-chain recheck", func(t *testing.T) {
		account := &fakeAccount{address: addr(0x5afe)}
		session := newSession(account)
		account.deployed = true

		_, err := deployer.Activate(context.Background(), session)
		assert.ErrorIs(t, err, domain.ErrAlreadyDeployed)
		assert.Empty(t, account.created)
	})
}

func TestDeployer_ErrorMapping(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*fakeAccount)
		check func(t *testing.T, err error)
	}{
		{
			name:  "build",
			setup: func(a *fakeAccount) { a.createErr = errBoom },
			check: func(t *testing.T, err error) {
				var submitErr *domain.SubmissionError
				require.ErrorAs(t, err, &submitErr)
				assert.Equal(t, "build", submitErr.Stage)
			},
		},
		{
			name:  "build keeps typed stage",
			setup: func(a *fakeAccount) { a.createErr = &domain.SubmissionError{Stage: "sponsor", Err: errBoom} },
			check: func(t *testing.T, err error) {
				var submitErr *domain.SubmissionError
				require.ErrorAs(t, err, &submitErr)
				assert.Equal(t, "sponsor", submitErr.Stage)
			},
		},
		{
			name:  "sign",
			setup: func(a *fakeAccount) { a.signErr = errBoom },
			check: func(t *testing.T, err error) {
				var signErr *domain.SigningError
				require.ErrorAs(t, err, &signErr)
				assert.ErrorIs(t, err, errBoom)
			},
		},
		{
			name:  "submit",
			setup: func(a *fakeAccount) { a.execErr = errBoom },
			check: func(t *testing.T, err error) {
				var submitErr *domain.SubmissionError
				require.ErrorAs(t, err, &submitErr)
				assert.Equal(t, "submit", submitErr.Stage)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			account := &fakeAccount{address: addr(0x5afe)}
			tt.setup(account)
			handle, err := NewDeployer(nil, nil).Activate(context.Background(), newSession(account))
			assert.Nil(t, handle)
			tt.check(t, err)
		})
	}
}

func TestDeployer_FundingPrecondition(t *testing.T) {
	account := &fakeAccount{address: addr(0x5afe)}
	deployer := NewDeployer(nil, nil, WithMinNativeBalance(&fakeBalances{balance: big.NewInt(5)}, big.NewInt(10)))

	_, err := deployer.Activate(context.Background(), newSession(account))
	var fundsErr *domain.InsufficientFundsError
	require.ErrorAs(t, err, &fundsErr)
	assert.Equal(t, big.NewInt(10), fundsErr.Need)
	assert.Empty(t, account.created)
}
