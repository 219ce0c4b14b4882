package journal

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valens-carpentier/demeter-sub000/internal/core/domain"
)

func testHandle() *domain.UserOperationHandle {
	return &domain.UserOperationHandle{
		Hash:        common.HexToHash("0xabc"),
		Kind:        domain.OpBuy,
		Account:     common.HexToAddress("0x1234"),
		AttemptID:   uuid.New(),
		SubmittedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestJournal_SaveAndLoad(t *testing.T) {
	j := New(t.TempDir())
	handle := testHandle()

	require.NoError(t, j.Save(FromHandle(handle, "local-key")))

	loaded, err := j.Load(handle.AttemptID)
	require.NoError(t, err)
	require.NotNil(t, loaded)

	assert.Equal(t, StatePending, loaded.State)
	assert.Equal(t, "local-key", loaded.CredentialID)
	assert.False(t, loaded.UpdatedAt.IsZero())

	back := loaded.Handle()
	assert.Equal(t, handle.Hash, back.Hash)
	assert.Equal(t, handle.Kind, back.Kind)
	assert.Equal(t, handle.Account, back.Account)
	assert.True(t, handle.SubmittedAt.Equal(back.SubmittedAt))
}

func TestJournal_LoadMissing(t *testing.T) {
	j := New(t.TempDir())

	loaded, err := j.Load(uuid.New())
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestJournal_SaveRequiresAttemptID(t *testing.T) {
	j := New(t.TempDir())
	assert.Error(t, j.Save(&Entry{Kind: domain.OpSell}))
}

func TestJournal_Delete(t *testing.T) {
	j := New(t.TempDir())
	handle := testHandle()
	require.NoError(t, j.Save(FromHandle(handle, "")))

	require.NoError(t, j.Delete(handle.AttemptID))
	loaded, err := j.Load(handle.AttemptID)
	require.NoError(t, err)
	assert.Nil(t, loaded)

	// Already gone.
	assert.NoError(t, j.Delete(handle.AttemptID))
}

func TestJournal_ListSkipsForeignFiles(t *testing.T) {
	dir := t.TempDir()
	j := New(dir)
	for i := 0; i < 3; i++ {
		require.NoError(t, j.Save(FromHandle(testHandle(), "")))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "not-a-uuid.json"), []byte("{}"), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, uuid.NewString()+".json"), []byte("{broken"), 0600))

	entries, err := j.List()
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func TestJournal_ListMissingDir(t *testing.T) {
	j := New(filepath.Join(t.TempDir(), "nope"))

	entries, err := j.List()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestJournal_Prune(t *testing.T) {
	j := New(t.TempDir())
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	j.now = func() time.Time { return now.Add(-2 * time.Hour) }
	old := FromHandle(testHandle(), "")
	require.NoError(t, j.Save(old))

	j.now = func() time.Time { return now }
	fresh := FromHandle(testHandle(), "")
	require.NoError(t, j.Save(fresh))

	removed, err := j.Prune(time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	entries, err := j.List()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, fresh.AttemptID, entries[0].AttemptID)
}
