package checkpoint

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarkInProgressThenTerminalResume(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "checkpoint.db"))
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.MarkInProgress(ctx, "run-1", "alice", "123/456", "2026-01-06"))

	terminal, err := store.IsTerminal(ctx, "run-1", "alice", "123/456", "2026-01-06")
	require.NoError(t, err)
	assert.False(t, terminal)

	require.NoError(t, store.MarkTerminal(ctx, "run-1", "alice", "123/456", "2026-01-06", StatusFilled))

	terminal, err = store.IsTerminal(ctx, "run-1", "alice", "123/456", "2026-01-06")
	require.NoError(t, err)
	assert.True(t, terminal)
}

func TestIsTerminalUnknownDate(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "checkpoint.db"))
	require.NoError(t, err)
	defer store.Close()

	terminal, err := store.IsTerminal(context.Background(), "run-1", "alice", "123/456", "2026-01-06")
	require.NoError(t, err)
	assert.False(t, terminal)
}

func TestDifferentRunsAreIsolated(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "checkpoint.db"))
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.MarkTerminal(ctx, "run-1", "alice", "123/456", "2026-01-06", StatusFilled))

	terminal, err := store.IsTerminal(ctx, "run-2", "alice", "123/456", "2026-01-06")
	require.NoError(t, err)
	assert.False(t, terminal)
}
