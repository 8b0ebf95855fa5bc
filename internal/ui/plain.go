package ui

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/Aman-CERP/docrag/internal/ingest"
)

// PlainRenderer writes one line per processed document (for CI and pipes).
type PlainRenderer struct {
	mu        sync.Mutex
	out       io.Writer
	stage     Stage
	processed int
	failed    int
	started   bool
}

// NewPlainRenderer creates a plain text renderer.
func NewPlainRenderer(cfg Config) *PlainRenderer {
	return &PlainRenderer{out: cfg.Output, stage: -1}
}

// Start implements Renderer.
func (r *PlainRenderer) Start(ctx context.Context) error {
	return nil
}

// Update implements Renderer. Repeated snapshots with no new progress
// print nothing.
func (r *PlainRenderer) Update(snap ingest.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stage := StageOf(snap)
	if stage != r.stage {
		r.stage = stage
		if stage == StageDiscovering {
			_, _ = fmt.Fprintf(r.out, "[%s] run %s\n", stage.Icon(), snap.RunID)
		}
		if stage == StageIngesting && !r.started {
			r.started = true
			_, _ = fmt.Fprintf(r.out, "[%s] %d documents\n", stage.Icon(), snap.Total)
		}
	}

	if snap.Processed == r.processed {
		return
	}
	r.processed = snap.Processed

	suffix := ""
	if snap.Failed > r.failed {
		r.failed = snap.Failed
		suffix = " (failed)"
	}
	_, _ = fmt.Fprintf(r.out, "[%s] %d/%d - %s%s\n",
		StageIngesting.Icon(), snap.Processed, snap.Total, snap.LastFile, suffix)
}

// Complete implements Renderer.
func (r *PlainRenderer) Complete(snap ingest.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	label := "Complete"
	switch snap.State {
	case ingest.StateStopped:
		label = "Stopped"
	case ingest.StateError:
		label = "Failed"
	}

	_, _ = fmt.Fprintf(r.out, "%s: %d/%d documents, %d chunks in %s",
		label, snap.Processed, snap.Total, snap.Chunks,
		snap.Elapsed(snap.EndedAt).Round(100*time.Millisecond))
	if snap.Removed > 0 {
		_, _ = fmt.Fprintf(r.out, ", %d removed", snap.Removed)
	}
	if snap.Failed > 0 || snap.FailedChunks > 0 || snap.FailedBatches > 0 {
		_, _ = fmt.Fprintf(r.out, " (%d failed documents, %d chunks without entities, %d failed batches)",
			snap.Failed, snap.FailedChunks, snap.FailedBatches)
	}
	_, _ = fmt.Fprintln(r.out)

	if snap.LastError != "" {
		_, _ = fmt.Fprintf(r.out, "ERROR: %s\n", snap.LastError)
	}
}

// Stop implements Renderer.
func (r *PlainRenderer) Stop() error {
	return nil
}

var _ Renderer = (*PlainRenderer)(nil)
