package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// StatusFileName holds the last published snapshot of a run, for
// processes other than the one running it.
const StatusFileName = "ingest.status.json"

// errInterrupted is reported for a run whose process died while running.
const errInterrupted = "run interrupted: the ingesting process exited before finishing"

// WriteStatusFile atomically replaces the status file in dataDir.
func WriteStatusFile(dataDir string, snap Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encode status: %w", err)
	}
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	tmp, err := os.CreateTemp(dataDir, StatusFileName+".*")
	if err != nil {
		return fmt.Errorf("write status: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write status: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write status: %w", err)
	}
	return os.Rename(tmp.Name(), filepath.Join(dataDir, StatusFileName))
}

// ReadStatusFile returns the snapshot stored in dataDir, or an idle
// snapshot when there is none.
func ReadStatusFile(dataDir string) (Snapshot, error) {
	data, err := os.ReadFile(filepath.Join(dataDir, StatusFileName))
	if errors.Is(err, os.ErrNotExist) {
		return Snapshot{State: StateIdle}, nil
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("read status: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("decode status %s: %w", StatusFileName, err)
	}
	return snap, nil
}

// LoadStatus reports ingestion status as seen from another process: the
// stored snapshot reconciled with whether anyone holds the file lock.
func LoadStatus(dataDir string) (Snapshot, error) {
	snap, err := ReadStatusFile(dataDir)
	if err != nil {
		return Snapshot{}, err
	}
	held, err := LockHeld(dataDir)
	if err != nil {
		return Snapshot{}, err
	}

	snap.FileLock = held
	if snap.State == StateRunning && !held {
		snap.State = StateError
		snap.LastError = errInterrupted
	}
	return snap, nil
}

// LockHeld reports whether some process holds the ingest lock in dataDir.
func LockHeld(dataDir string) (bool, error) {
	if _, err := os.Stat(filepath.Join(dataDir, LockFileName)); errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	probe := NewFileLock(dataDir)
	acquired, err := probe.TryLock()
	if err != nil {
		return false, err
	}
	if acquired {
		return false, probe.Unlock()
	}
	return true, nil
}
