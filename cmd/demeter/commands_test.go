package main

import (
	"bytes"
	"context"
	"flag"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/valens-carpentier/demeter-sub000/internal/core/domain"
	"github.com/valens-carpentier/demeter-sub000/pkg/journal"
)

func testContext(out *bytes.Buffer) *cli.Context {
	app := &cli.App{Writer: out}
	return cli.NewContext(app, flag.NewFlagSet("test", flag.ContinueOnError), nil)
}

func testEntry() *journal.Entry {
	return journal.FromHandle(&domain.UserOperationHandle{
		Hash:        common.HexToHash("0xab"),
		Kind:        domain.OpBuy,
		Account:     common.HexToAddress("0x5afe"),
		AttemptID:   uuid.New(),
		SubmittedAt: time.Now(),
	}, "local-key")
}

func confirmed(context.Context, *domain.UserOperationHandle) (*domain.UserOperationReceipt, error) {
	return &domain.UserOperationReceipt{Success: true, TransactionHash: common.HexToHash("0x01")}, nil
}

func TestAwaitRecorded_ClearsSettledEntry(t *testing.T) {
	var out, logs bytes.Buffer
	rt := &runtime{journal: journal.New(t.TempDir()), logger: slog.New(slog.NewTextHandler(&logs, nil))}
	entry := testEntry()

	require.NoError(t, awaitRecorded(testContext(&out), rt, entry, confirmed))

	loaded, err := rt.journal.Load(entry.AttemptID)
	require.NoError(t, err)
	assert.Nil(t, loaded)
	assert.Contains(t, out.String(), "transactionHash")
	assert.Empty(t, logs.String())
}

func TestAwaitRecorded_KeepsEntryOnTimeout(t *testing.T) {
	var out bytes.Buffer
	rt := &runtime{journal: journal.New(t.TempDir()), logger: slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))}
	entry := testEntry()

	err := awaitRecorded(testContext(&out), rt, entry, func(context.Context, *domain.UserOperationHandle) (*domain.UserOperationReceipt, error) {
		return nil, &domain.SettlementTimeoutError{Hash: entry.Hash, Attempts: 3}
	})
	var timeoutErr *domain.SettlementTimeoutError
	require.ErrorAs(t, err, &timeoutErr)

	loaded, err := rt.journal.Load(entry.AttemptID)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, journal.StateAwaiting, loaded.State)
}

func TestAwaitRecorded_LogsJournalFailure(t *testing.T) {
	// A regular file where the journal directory should be.
	blocked := filepath.Join(t.TempDir(), "pending")
	require.NoError(t, os.WriteFile(blocked, []byte("x"), 0600))

	var out, logs bytes.Buffer
	rt := &runtime{journal: journal.New(blocked), logger: slog.New(slog.NewTextHandler(&logs, nil))}

	require.NoError(t, awaitRecorded(testContext(&out), rt, testEntry(), confirmed))

	assert.Contains(t, logs.String(), "failed to record pending operation")
	assert.Contains(t, out.String(), "transactionHash")
}
