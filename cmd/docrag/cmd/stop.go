package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	docerrors "github.com/Aman-CERP/docrag/internal/errors"
	"github.com/Aman-CERP/docrag/internal/ingest"
	"github.com/Aman-CERP/docrag/internal/output"
)

// stopPollInterval is how often stop checks whether the lock was released.
const stopPollInterval = 100 * time.Millisecond

func newStopCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop a running 'docrag ingest'",
		Long: `Interrupt the 'docrag ingest' process of this project and wait until it
has finished its current batch and released the documents.

A run started through the MCP server is stopped with the ingestion_stop
tool instead.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return runStop(cmd.Context(), cmd.OutOrStdout(), cfg.DataDir(), timeout)
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", time.Minute, "How long to wait for the run to stop")

	return cmd
}

func runStop(ctx context.Context, out io.Writer, dataDir string, timeout time.Duration) error {
	held, err := ingest.LockHeld(dataDir)
	if err != nil {
		return err
	}
	if !held {
		return docerrors.NotRunning()
	}

	pid, err := ingest.NewPIDFile(dataDir).Interrupt()
	if errors.Is(err, ingest.ErrNoPIDFile) {
		return docerrors.New(docerrors.ErrCodeAlreadyRunning,
			"ingestion is held by a process that cannot be stopped from the CLI", nil).
			WithSuggestion("Use the MCP ingestion_stop tool of the running 'docrag serve'")
	}
	if err != nil {
		return err
	}

	w := output.New(out)
	w.Statusf("⏳", "Stopping ingestion (pid %d)...", pid)

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := waitForUnlock(ctx, dataDir); err != nil {
		return fmt.Errorf("ingestion did not stop within %s: %w", timeout, err)
	}

	snap, err := ingest.LoadStatus(dataDir)
	if err != nil {
		return err
	}
	printIngestSummary(w, snap)
	return nil
}

func waitForUnlock(ctx context.Context, dataDir string) error {
	ticker := time.NewTicker(stopPollInterval)
	defer ticker.Stop()
	for {
		held, err := ingest.LockHeld(dataDir)
		if err != nil {
			return err
		}
		if !held {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
