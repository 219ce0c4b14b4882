// Package journal records submitted user operations until they settle, so an
// interrupted client can resume waiting on them.
package journal

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/valens-carpentier/demeter-sub000/internal/core/domain"
)

// DefaultDir is used when no directory is configured.
const DefaultDir = ".demeter/pending"

// Entry states
const (
	StatePending  = "PENDING"
	StateAwaiting = "AWAITING"
)

// Entry is one in-flight user operation.
type Entry struct {
	AttemptID    uuid.UUID            `json:"attempt_id"`
	Hash         common.Hash          `json:"hash"`
	Kind         domain.OperationKind `json:"kind"`
	Account      common.Address       `json:"account"`
	CredentialID string               `json:"credential_id"`
	State        string               `json:"state"`
	SubmittedAt  time.Time            `json:"submitted_at"`
	UpdatedAt    time.Time            `json:"updated_at"`
}

// FromHandle builds a pending entry for handle.
func FromHandle(handle *domain.UserOperationHandle, credentialID string) *Entry {
	return &Entry{
		AttemptID:    handle.AttemptID,
		Hash:         handle.Hash,
		Kind:         handle.Kind,
		Account:      handle.Account,
		CredentialID: credentialID,
		State:        StatePending,
		SubmittedAt:  handle.SubmittedAt,
	}
}

// Handle rebuilds the operation handle the entry was recorded from.
func (e *Entry) Handle() *domain.UserOperationHandle {
	return &domain.UserOperationHandle{
		Hash:        e.Hash,
		Kind:        e.Kind,
		Account:     e.Account,
		AttemptID:   e.AttemptID,
		SubmittedAt: e.SubmittedAt,
	}
}

// Journal keeps one JSON file per attempt.
type Journal struct {
	dir string
	now func() time.Time
}

// New creates a journal rooted at dir.
func New(dir string) *Journal {
	if dir == "" {
		dir = DefaultDir
	}
	return &Journal{dir: dir, now: time.Now}
}

// Dir returns the backing directory.
func (j *Journal) Dir() string {
	return j.dir
}

func (j *Journal) path(id uuid.UUID) string {
	return filepath.Join(j.dir, id.String()+".json")
}

// Load returns the entry for id, or nil if none is recorded.
func (j *Journal) Load(id uuid.UUID) (*Entry, error) {
	data, err := os.ReadFile(j.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read journal entry: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("failed to parse journal entry %s: %w", id, err)
	}
	return &entry, nil
}

// Save writes entry atomically.
func (j *Journal) Save(entry *Entry) error {
	if entry.AttemptID == uuid.Nil {
		return fmt.Errorf("journal entry has no attempt id")
	}
	if err := os.MkdirAll(j.dir, 0700); err != nil {
		return fmt.Errorf("failed to create journal directory: %w", err)
	}

	entry.UpdatedAt = j.now()
	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal journal entry: %w", err)
	}

	path := j.path(entry.AttemptID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write journal entry: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to commit journal entry: %w", err)
	}
	return nil
}

// Delete removes the entry for id. Deleting a missing entry is not an error.
func (j *Journal) Delete(id uuid.UUID) error {
	if err := os.Remove(j.path(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete journal entry: %w", err)
	}
	return nil
}

// List returns every readable entry. Unparseable files are skipped.
func (j *Journal) List() ([]*Entry, error) {
	files, err := os.ReadDir(j.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read journal directory: %w", err)
	}

	var entries []*Entry
	for _, f := range files {
		if f.IsDir() || filepath.Ext(f.Name()) != ".json" {
			continue
		}
		id, err := uuid.Parse(strings.TrimSuffix(f.Name(), ".json"))
		if err != nil {
			continue
		}
		entry, err := j.Load(id)
		if err != nil || entry == nil {
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Prune removes entries not updated within maxAge and returns how many went.
func (j *Journal) Prune(maxAge time.Duration) (int, error) {
	entries, err := j.List()
	if err != nil {
		return 0, err
	}

	now := j.now()
	removed := 0
	for _, e := range entries {
		if now.Sub(e.UpdatedAt) > maxAge {
			if err := j.Delete(e.AttemptID); err == nil {
				removed++
			}
		}
	}
	return removed, nil
}
