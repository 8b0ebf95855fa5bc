package cmd

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/docrag/internal/ingest"
	"github.com/Aman-CERP/docrag/internal/output"
	"github.com/Aman-CERP/docrag/internal/ui"
)

// ingestOptions holds CLI flags for ingest.
type ingestOptions struct {
	wait     bool
	plain    bool
	noColor  bool
	json     bool
	interval time.Duration
}

func newIngestCmd() *cobra.Command {
	opts := ingestOptions{wait: true}

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Index the documents folder",
		Long: `Run one ingestion over the documents folder: every supported document
is extracted, chunked, enriched and written to both indexes. Documents
removed from the folder are dropped from the index.

Only one ingestion runs at a time per data directory. Ctrl-C, or
'docrag stop' from another terminal, stops the run after its current batch.`,
		Example: `  # Index with live progress
  docrag ingest

  # CI-friendly output
  docrag ingest --plain

  # Only print the final summary as JSON
  docrag ingest --wait=false --json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runIngest(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}

	cmd.Flags().BoolVar(&opts.wait, "wait", true, "Show progress while the run is active")
	cmd.Flags().BoolVar(&opts.plain, "plain", false, "Plain line output instead of the interactive view")
	cmd.Flags().BoolVar(&opts.noColor, "no-color", false, "Disable colors")
	cmd.Flags().BoolVar(&opts.json, "json", false, "Print the final status as JSON")
	cmd.Flags().DurationVar(&opts.interval, "interval", 200*time.Millisecond, "Progress refresh interval")

	return cmd
}

func runIngest(ctx context.Context, out io.Writer, opts ingestOptions) error {
	a, err := openApp(ctx, appOptions{ingestion: true, stderr: true})
	if err != nil {
		return err
	}
	defer func() { _ = a.Close(context.Background()) }()

	final, err := ingestWithSignals(ctx, a.manager, ingest.NewPIDFile(a.cfg.DataDir()), out, opts, a.logger)
	if err != nil {
		return err
	}
	return reportIngest(out, final, opts)
}

// ingestController is the part of ingest.Manager the command drives.
type ingestController interface {
	Start(ctx context.Context) (ingest.Snapshot, error)
	Stop(ctx context.Context) (ingest.Snapshot, error)
	Wait(ctx context.Context) (ingest.Snapshot, error)
	Status() ingest.Snapshot
}

// ingestWithSignals starts a run, registers this process in the pid file
// and waits for the run to end. The first interrupt stops the run
// gracefully.
func ingestWithSignals(ctx context.Context, m ingestController, pid *ingest.PIDFile, out io.Writer, opts ingestOptions, logger *slog.Logger) (ingest.Snapshot, error) {
	if _, err := m.Start(ctx); err != nil {
		return ingest.Snapshot{}, err
	}

	if err := pid.Write(); err != nil {
		logger.Warn("ingest_pid_write_failed", slog.String("error", err.Error()))
	}
	defer func() { _ = pid.Remove() }()

	sigCtx, stopSignals := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-sigCtx.Done():
			logger.Info("ingest_interrupted")
			_, _ = m.Stop(context.Background())
		case <-done:
		}
	}()

	if !opts.wait || opts.json {
		return m.Wait(context.Background())
	}

	r := ui.NewRenderer(ui.NewConfig(out,
		ui.WithForcePlain(opts.plain),
		ui.WithNoColor(opts.noColor || ui.DetectNoColor()),
		ui.WithTitle("documents")))
	return ui.Follow(context.Background(), m.Status, r, opts.interval)
}

// reportIngest prints the final status unless the progress view already
// did, and turns a failed run into an error for the exit code.
func reportIngest(out io.Writer, final ingest.Snapshot, opts ingestOptions) error {
	w := output.New(out)
	switch {
	case opts.json:
		if err := w.JSON(final); err != nil {
			return err
		}
	case !opts.wait:
		printIngestSummary(w, final)
	}
	if final.State == ingest.StateError {
		return errors.New("ingestion failed: " + final.LastError)
	}
	return nil
}

// printIngestSummary prints a one-line summary of a finished run.
func printIngestSummary(w *output.Writer, final ingest.Snapshot) {
	switch final.State {
	case ingest.StateCompleted:
		w.Successf("Ingested %d/%d documents, %d chunks", final.Processed, final.Total, final.Chunks)
	case ingest.StateStopped:
		w.Warningf("Stopped after %d/%d documents", final.Processed, final.Total)
	case ingest.StateError:
		w.Errorf("Ingestion failed: %s", final.LastError)
	default:
		w.Statusf("", "Ingestion %s", final.State)
	}
	if final.Failed > 0 {
		w.Warningf("%d documents failed; see 'docrag docs'", final.Failed)
	}
}
