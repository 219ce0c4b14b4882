package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/valens-carpentier/demeter-sub000/internal/core/domain"
)

// SessionState is the derivation state of a SessionManager.
type SessionState string

const (
	SessionUninitialized SessionState = "uninitialized"
	SessionDeriving      SessionState = "deriving"
	SessionReady         SessionState = "ready"
	SessionInitFailed    SessionState = "init_failed"
)

// SessionManager derives smart-account sessions from passkey credentials.
type SessionManager struct {
	kit      domain.SmartAccountKit
	resolver domain.SignerResolver
	logger   *slog.Logger
	now      func() time.Time

	mu      sync.Mutex
	state   SessionState
	current *domain.AccountSession
}

// NewSessionManager creates a manager in the Uninitialized state.
func NewSessionManager(kit domain.SmartAccountKit, resolver domain.SignerResolver, logger *slog.Logger) *SessionManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionManager{
		kit:      kit,
		resolver: resolver,
		logger:   logger,
		now:      time.Now,
		state:    SessionUninitialized,
	}
}

// State returns the current derivation state.
func (m *SessionManager) State() SessionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Current returns the last derived session, or nil.
func (m *SessionManager) Current() *domain.AccountSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// DeriveSession resolves the credential's signer, derives the account owned
// solely by that signer, and reads its deployment state. Deriving twice for
// one credential yields the same account address. On failure nothing is kept
// and a *domain.SessionInitError is returned.
func (m *SessionManager) DeriveSession(ctx context.Context, credentialID string) (*domain.AccountSession, error) {
	m.setState(SessionDeriving, nil)
	log := m.logger.With(slog.String("credential", credentialID))

	session, err := m.derive(ctx, credentialID, log)
	if err != nil {
		m.setState(SessionInitFailed, nil)
		log.Warn("session derivation failed", slog.Any("error", err))
		return nil, err
	}

	m.setState(SessionReady, session)
	log.Info("session ready",
		slog.String("account", session.SmartAccountAddress.Hex()),
		slog.String("signer", session.SignerAddress.Hex()),
		slog.Bool("deployed", session.IsDeployed),
	)
	return session, nil
}

// Refresh re-reads the deployment flag and returns a new session value.
func (m *SessionManager) Refresh(ctx context.Context, session *domain.AccountSession) (*domain.AccountSession, error) {
	deployed, err := session.Account.IsDeployed(ctx)
	if err != nil {
		return nil, &domain.SessionInitError{Phase: "deployment", Err: err}
	}
	refreshed := *session
	refreshed.IsDeployed = deployed
	refreshed.DerivedAt = m.now()

	m.mu.Lock()
	if m.current != nil && m.current.SmartAccountAddress == refreshed.SmartAccountAddress {
		m.current = &refreshed
	}
	m.mu.Unlock()
	return &refreshed, nil
}

func (m *SessionManager) derive(ctx context.Context, credentialID string, log *slog.Logger) (*domain.AccountSession, error) {
	signer, err := m.resolver.Resolve(ctx, credentialID)
	if err != nil {
		return nil, &domain.SessionInitError{Phase: "signer", Err: err}
	}

	// Phase 1: signer-only handle to learn the owner address.
	probe, err := m.kit.Init(ctx, domain.InitOptions{Signer: signer})
	if err != nil {
		return nil, &domain.SessionInitError{Phase: "signer", Err: err}
	}
	signerAddress := probe.SignerAddress()
	log.Debug("signer resolved", slog.String("signer", signerAddress.Hex()))

	// Phase 2: the signer as sole owner, threshold 1.
	account, err := m.kit.Init(ctx, domain.InitOptions{
		Signer:    signer,
		Owners:    []common.Address{signerAddress},
		Threshold: 1,
	})
	if err != nil {
		return nil, &domain.SessionInitError{Phase: "account", Err: err}
	}

	deployed, err := account.IsDeployed(ctx)
	if err != nil {
		return nil, &domain.SessionInitError{Phase: "deployment", Err: err}
	}

	return &domain.AccountSession{
		OwnerCredentialID:   credentialID,
		SignerAddress:       signerAddress,
		SmartAccountAddress: account.Address(),
		IsDeployed:          deployed,
		DerivedAt:           m.now(),
		Account:             account,
	}, nil
}

func (m *SessionManager) setState(state SessionState, session *domain.AccountSession) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = state
	m.current = session
}
