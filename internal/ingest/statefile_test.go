package ingest

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/docrag/internal/index"
)

func TestStatusFile_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	started := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	require.NoError(t, WriteStatusFile(dir, Snapshot{
		State: StateCompleted, RunID: "r1", Total: 3, Processed: 3, Chunks: 12, StartedAt: started,
	}))

	snap, err := ReadStatusFile(dir)
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, snap.State)
	assert.Equal(t, "r1", snap.RunID)
	assert.Equal(t, 12, snap.Chunks)
	assert.True(t, snap.StartedAt.Equal(started))

	// No temp files are left behind.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestReadStatusFile_MissingIsIdle(t *testing.T) {
	snap, err := ReadStatusFile(t.TempDir())

	require.NoError(t, err)
	assert.Equal(t, StateIdle, snap.State)
}

func TestReadStatusFile_Corrupt(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, StatusFileName), []byte("{"), 0644))

	_, err := ReadStatusFile(dir)

	assert.ErrorContains(t, err, "decode status")
}

func TestLoadStatus_RunningWithoutLockIsInterrupted(t *testing.T) {
	// Given: a status file claiming a run, but nobody holds the lock
	dir := t.TempDir()
	require.NoError(t, WriteStatusFile(dir, Snapshot{State: StateRunning, RunID: "r1"}))

	// When: loading from another process
	snap, err := LoadStatus(dir)

	// Then: the run is reported as failed
	require.NoError(t, err)
	assert.Equal(t, StateError, snap.State)
	assert.Contains(t, snap.LastError, "interrupted")
	assert.False(t, snap.FileLock)
}

func TestLoadStatus_LockHeld(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, WriteStatusFile(dir, Snapshot{State: StateRunning, RunID: "r1"}))
	holder := NewFileLock(dir)
	ok, err := holder.TryLock()
	require.NoError(t, err)
	require.True(t, ok)
	t.Cleanup(func() { _ = holder.Unlock() })

	snap, err := LoadStatus(dir)

	require.NoError(t, err)
	assert.Equal(t, StateRunning, snap.State)
	assert.True(t, snap.FileLock)
}

func TestLockHeld_NoLockFile(t *testing.T) {
	held, err := LockHeld(t.TempDir())

	require.NoError(t, err)
	assert.False(t, held)
}

func TestManager_PersistsStatus(t *testing.T) {
	// Given: a manager that persists its status
	dir := t.TempDir()
	runner := newFakeRunner(&index.DocumentResult{Filename: "a.pdf", Written: 3})
	m := NewManager(runner, Config{
		DataDir:       dir,
		PersistStatus: true,
		Logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	// When: a run starts
	started, err := m.Start(context.Background())
	require.NoError(t, err)
	runner.waitStarted(t)

	// Then: other processes see it running
	seen, err := LoadStatus(dir)
	require.NoError(t, err)
	assert.Equal(t, StateRunning, seen.State)
	assert.Equal(t, started.RunID, seen.RunID)
	assert.True(t, seen.FileLock)

	// When: it finishes
	close(runner.release)
	_, err = m.Wait(waitCtx(t))
	require.NoError(t, err)

	// Then: the final counters are on disk and the lock is free
	seen, err = LoadStatus(dir)
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, seen.State)
	assert.Equal(t, 3, seen.Chunks)
	assert.False(t, seen.FileLock)
}

func TestManager_NoStatusFileByDefault(t *testing.T) {
	runner := newFakeRunner()
	m, dir := newTestManager(t, runner)

	_, err := m.Start(context.Background())
	require.NoError(t, err)
	close(runner.release)
	_, err = m.Wait(waitCtx(t))
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(dir, StatusFileName))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
