package journal

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendAndListNewestFirst(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run_logs.json")
	j := New(path)

	require.NoError(t, j.Append(Entry{ID: "run-1", Manager: "alice", StartedAt: time.Unix(1, 0), TerminalState: "completed"}))
	require.NoError(t, j.Append(Entry{ID: "run-2", Manager: "alice", StartedAt: time.Unix(2, 0), TerminalState: "aborted"}))

	entries, err := j.List()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "run-2", entries[0].ID)
	assert.Equal(t, "run-1", entries[1].ID)
}

func TestListToleratesMissingFile(t *testing.T) {
	j := New(filepath.Join(t.TempDir(), "missing.json"))
	entries, err := j.List()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestListToleratesOlderSchemaMissingFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run_logs.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"id":"legacy-1","manager":"bob"}]`), 0o644))

	j := New(path)
	entries, err := j.List()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "legacy-1", entries[0].ID)
	assert.Equal(t, "bob", entries[0].Manager)
	assert.Zero(t, entries[0].FarmsCompleted)
}

func TestAppendExactlyOnePerRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run_logs.json")
	j := New(path)
	require.NoError(t, j.Append(Entry{ID: "r1"}))
	entries, err := j.List()
	require.NoError(t, err)
	require.Len(t, entries, 1)
}
