// Package passkey stores passkey credentials and signs Safe operations with
// them through the Safe WebAuthn signer contracts.
package passkey

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/valens-carpentier/demeter-sub000/internal/core/domain"
)

// StorageKey is the fixed key the credential list is persisted under.
const StorageKey = "safe_passkey_list"

// DefaultPath is used when no path is configured.
const DefaultPath = ".demeter-passkeys.json"

// Store persists credentials as a JSON document on disk.
type Store struct {
	filePath string
	mu       sync.RWMutex
}

// NewStore creates a store backed by filePath.
func NewStore(filePath string) *Store {
	if filePath == "" {
		filePath = DefaultPath
	}

	dir := filepath.Dir(filePath)
	if dir != "" && dir != "." {
		os.MkdirAll(dir, 0700)
	}

	return &Store{filePath: filePath}
}

// Path returns the backing file.
func (s *Store) Path() string {
	return s.filePath
}

// List returns every stored credential, oldest first. A missing file is an
// empty list.
func (s *Store) List() ([]domain.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.load()
}

// Create appends cred. Raw ids are unique.
func (s *Store) Create(cred domain.Credential) error {
	if cred.RawID == "" {
		return fmt.Errorf("credential raw id is required")
	}
	if cred.Coordinates.X == "" || cred.Coordinates.Y == "" {
		return fmt.Errorf("credential %s has no public key coordinates", cred.RawID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	creds, err := s.load()
	if err != nil {
		return err
	}
	for _, c := range creds {
		if c.RawID == cred.RawID {
			return fmt.Errorf("credential %s already stored", cred.RawID)
		}
	}
	return s.save(append(creds, cred))
}

// FindByRawID returns the credential with rawID or domain.ErrCredentialNotFound.
func (s *Store) FindByRawID(rawID string) (*domain.Credential, error) {
	creds, err := s.List()
	if err != nil {
		return nil, err
	}
	for i := range creds {
		if creds[i].RawID == rawID {
			return &creds[i], nil
		}
	}
	return nil, fmt.Errorf("%s: %w", rawID, domain.ErrCredentialNotFound)
}

func (s *Store) load() ([]domain.Credential, error) {
	data, err := os.ReadFile(s.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read credential file: %w", err)
	}

	var doc map[string][]domain.Credential
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse credential file: %w", err)
	}
	return doc[StorageKey], nil
}

func (s *Store) save(creds []domain.Credential) error {
	data, err := json.MarshalIndent(map[string][]domain.Credential{StorageKey: creds}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal credentials: %w", err)
	}

	tempPath := s.filePath + ".tmp"
	if err := os.WriteFile(tempPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write temp credential file: %w", err)
	}
	if err := os.Rename(tempPath, s.filePath); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to save credential file: %w", err)
	}
	return nil
}
