package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/docrag/internal/mcp"
	"github.com/Aman-CERP/docrag/internal/watcher"
)

func newServeCmd() *cobra.Command {
	var (
		transport string
		noWatch   bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server over stdio",
		Long: `Run the MCP server. Search, document listing, ingestion control and
file management are exposed as MCP tools.

stdout carries the protocol exclusively; logs go to the log file
(see 'docrag logs').

While serving, the documents folder is watched and changed documents are
marked pending for the next ingestion run.`,
		Example: `  # Claude Desktop / MCP client configuration
  {"command": "docrag", "args": ["serve", "--root", "/srv/manuals"]}`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), transport, !noWatch)
		},
	}

	cmd.Flags().StringVar(&transport, "transport", "", "MCP transport (default from config: stdio)")
	cmd.Flags().BoolVar(&noWatch, "no-watch", false, "Do not watch the documents folder")

	return cmd
}

func runServe(ctx context.Context, transport string, watch bool) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx, appOptions{ingestion: true, tail: true})
	if err != nil {
		return err
	}
	defer func() { _ = a.Close(context.Background()) }()

	if transport == "" {
		transport = a.cfg.Server.Transport
	}

	srv, err := mcp.NewServer(mcp.Config{
		Searcher:  a.retriever,
		Ingestion: a.manager,
		Files:     a.files,
		Logger:    a.logger,
	})
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	if watch && a.cfg.Watch.Enabled {
		if err := startWatch(gctx, g, a); err != nil {
			// The server stays useful without the watcher.
			a.logger.Warn("watch_unavailable", slog.String("error", err.Error()))
		}
	}
	g.Go(func() error {
		defer stop()
		return srv.Serve(gctx, transport)
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// startWatch runs the documents watcher and the catalog syncer in g until
// ctx is done.
func startWatch(ctx context.Context, g *errgroup.Group, a *app) error {
	docs := a.cfg.DocumentsDir()
	if err := os.MkdirAll(docs, 0o755); err != nil {
		return fmt.Errorf("failed to create documents directory: %w", err)
	}

	w, err := watcher.New(watcher.Options{
		Debounce: a.cfg.Watch.Debounce,
		Allowed:  a.cfg.IsAllowedExtension,
	}, a.logger)
	if err != nil {
		return err
	}
	syncer := watcher.NewSyncer(docs, a.catalog, a.logger)

	g.Go(func() error {
		err := w.Start(ctx, docs)
		if err != nil && !errors.Is(err, context.Canceled) {
			a.logger.Warn("watch_stopped", slog.String("error", err.Error()))
		}
		return nil
	})
	g.Go(func() error {
		syncer.Run(ctx, w.Events())
		return nil
	})
	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case err, ok := <-w.Errors():
				if !ok {
					return nil
				}
				a.logger.Warn("watch_error", slog.String("error", err.Error()))
			}
		}
	})
	return nil
}
