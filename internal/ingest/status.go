// Package ingest runs the ingestion pipeline as a single background job
// and gates file mutations while it runs.
package ingest

import (
	"time"
)

// State is the lifecycle state of the ingestion manager.
type State string

const (
	// StateIdle means no run has started yet.
	StateIdle State = "idle"
	// StateRunning means a run is in progress and files are locked.
	StateRunning State = "running"
	// StateCompleted means the last run processed every document.
	StateCompleted State = "completed"
	// StateError means the last run hit a fatal failure.
	StateError State = "error"
	// StateStopped means the last run was stopped.
	StateStopped State = "stopped"
)

// Terminal reports whether s ends a run.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateError || s == StateStopped
}

// Snapshot is an immutable copy of the manager's state and the current or
// last run's progress.
type Snapshot struct {
	State    State  `json:"state"`
	RunID    string `json:"run_id,omitempty"`
	FileLock bool   `json:"file_lock"`

	StartedAt time.Time `json:"started_at,omitzero"`
	EndedAt   time.Time `json:"ended_at,omitzero"`

	// Documents
	Total     int    `json:"total_documents"`
	Processed int    `json:"processed_documents"`
	Failed    int    `json:"failed_documents"`
	Removed   int    `json:"removed_documents"`
	LastFile  string `json:"last_file,omitempty"`

	// Chunks
	Chunks        int `json:"chunks"`
	FailedChunks  int `json:"failed_chunks"`
	FailedBatches int `json:"failed_batches"`

	LastError string `json:"last_error,omitempty"`
}

// ProgressPct returns processed documents as a percentage of the total.
func (s Snapshot) ProgressPct() float64 {
	if s.Total == 0 {
		if s.State.Terminal() {
			return 100
		}
		return 0
	}
	return float64(s.Processed) / float64(s.Total) * 100.0
}

// Elapsed returns the run's duration so far, or its total once ended.
func (s Snapshot) Elapsed(now time.Time) time.Duration {
	switch {
	case s.StartedAt.IsZero():
		return 0
	case s.EndedAt.IsZero():
		return now.Sub(s.StartedAt)
	default:
		return s.EndedAt.Sub(s.StartedAt)
	}
}
