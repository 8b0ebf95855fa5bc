// Package ui renders ingestion progress and index status in the terminal.
package ui

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/Aman-CERP/docrag/internal/ingest"
)

// Stage is the coarse phase of an ingestion run as seen by the user.
type Stage int

const (
	// StageDiscovering means the run has started but not yet counted documents.
	StageDiscovering Stage = iota
	// StageIngesting means documents are being extracted, chunked and written.
	StageIngesting
	// StageComplete means the run has ended, whatever its outcome.
	StageComplete
)

// String returns the human-readable stage name.
func (s Stage) String() string {
	switch s {
	case StageDiscovering:
		return "Discovering"
	case StageIngesting:
		return "Ingesting"
	case StageComplete:
		return "Complete"
	default:
		return "Unknown"
	}
}

// Icon returns the short stage icon for plain text output.
func (s Stage) Icon() string {
	switch s {
	case StageDiscovering:
		return "SCAN"
	case StageIngesting:
		return "INGEST"
	case StageComplete:
		return "DONE"
	default:
		return "???"
	}
}

// StageOf derives the display stage from a snapshot.
func StageOf(snap ingest.Snapshot) Stage {
	switch {
	case snap.State.Terminal():
		return StageComplete
	case snap.State == ingest.StateRunning && snap.Total == 0 && snap.Processed == 0:
		return StageDiscovering
	case snap.State == ingest.StateRunning:
		return StageIngesting
	default:
		return StageDiscovering
	}
}

// Renderer displays the progress of one ingestion run.
type Renderer interface {
	// Start initializes the renderer.
	Start(ctx context.Context) error

	// Update shows the latest snapshot.
	Update(snap ingest.Snapshot)

	// Complete shows the final snapshot of the run.
	Complete(snap ingest.Snapshot)

	// Stop stops the renderer and cleans up.
	Stop() error
}

// Config configures the UI renderer.
type Config struct {
	Output     io.Writer
	ForcePlain bool
	NoColor    bool
	// Title is shown in the TUI header, usually the documents folder.
	Title string
}

// ConfigOption is a function that modifies Config.
type ConfigOption func(*Config)

// WithForcePlain forces plain text output.
func WithForcePlain(force bool) ConfigOption {
	return func(c *Config) {
		c.ForcePlain = force
	}
}

// WithNoColor disables color output.
func WithNoColor(noColor bool) ConfigOption {
	return func(c *Config) {
		c.NoColor = noColor
	}
}

// WithTitle sets the header title.
func WithTitle(title string) ConfigOption {
	return func(c *Config) {
		c.Title = title
	}
}

// NewConfig creates a new Config with the given output and options.
func NewConfig(output io.Writer, opts ...ConfigOption) Config {
	cfg := Config{Output: output}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// NewRenderer creates an appropriate renderer based on config and environment.
// It returns a TUI renderer for interactive terminals, and a plain text
// renderer for CI environments, pipes, or when --plain is specified.
func NewRenderer(cfg Config) Renderer {
	if cfg.ForcePlain || !IsTTY(cfg.Output) || DetectCI() {
		return NewPlainRenderer(cfg)
	}

	tui, err := NewTUIRenderer(cfg)
	if err != nil {
		return NewPlainRenderer(cfg)
	}
	return tui
}

// Follow polls status every interval and feeds the renderer until the run
// reaches a terminal state or ctx is done. It returns the last snapshot seen.
func Follow(ctx context.Context, status func() ingest.Snapshot, r Renderer, interval time.Duration) (ingest.Snapshot, error) {
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}
	if err := r.Start(ctx); err != nil {
		return status(), err
	}
	defer func() { _ = r.Stop() }()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		snap := status()
		if snap.State.Terminal() {
			r.Complete(snap)
			return snap, nil
		}
		r.Update(snap)

		select {
		case <-ctx.Done():
			return status(), ctx.Err()
		case <-ticker.C:
		}
	}
}

// IsTTY checks if output is a terminal.
func IsTTY(w io.Writer) bool {
	if w == nil {
		return false
	}
	if f, ok := w.(*os.File); ok {
		return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return false
}

// DetectNoColor checks if NO_COLOR environment variable is set.
func DetectNoColor() bool {
	_, exists := os.LookupEnv("NO_COLOR")
	return exists
}

// DetectCI checks if running in a CI environment.
func DetectCI() bool {
	ciVars := []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "JENKINS_URL", "TRAVIS"}
	for _, v := range ciVars {
		if _, exists := os.LookupEnv(v); exists {
			return true
		}
	}
	return false
}
