package watcher

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// Catalog is the part of store.Catalog the Syncer writes to.
type Catalog interface {
	MarkPending(ctx context.Context, filename string, size int64, at time.Time) error
}

// SyncResult counts what one batch changed.
type SyncResult struct {
	Pending int // created or modified documents marked pending
	Missing int // documents gone from disk, dropped on the next run
}

// Syncer marks changed documents pending in the catalog.
type Syncer struct {
	root    string
	catalog Catalog
	logger  *slog.Logger
	now     func() time.Time
}

// NewSyncer creates a Syncer for the documents root. logger may be nil.
func NewSyncer(root string, catalog Catalog, logger *slog.Logger) *Syncer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Syncer{root: root, catalog: catalog, logger: logger, now: time.Now}
}

// Apply records one batch. A document deleted again before Apply runs
// counts as missing.
func (s *Syncer) Apply(ctx context.Context, batch []FileEvent) (SyncResult, error) {
	var res SyncResult
	for _, ev := range batch {
		if ev.Operation == OpDelete || ev.Operation == OpRename {
			res.Missing++
			continue
		}

		info, err := os.Stat(filepath.Join(s.root, filepath.FromSlash(ev.Path)))
		if errors.Is(err, fs.ErrNotExist) {
			res.Missing++
			continue
		}
		if err != nil {
			return res, err
		}
		if info.IsDir() {
			continue
		}

		if err := s.catalog.MarkPending(ctx, ev.Path, info.Size(), s.now()); err != nil {
			return res, err
		}
		res.Pending++
	}

	if res.Pending > 0 || res.Missing > 0 {
		s.logger.Info("watch_documents_changed",
			slog.Int("pending", res.Pending),
			slog.Int("missing", res.Missing))
	}
	return res, nil
}

// Run applies batches until ctx is done or batches is closed. Failed
// batches are logged and skipped.
func (s *Syncer) Run(ctx context.Context, batches <-chan []FileEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case batch, ok := <-batches:
			if !ok {
				return
			}
			if _, err := s.Apply(ctx, batch); err != nil {
				s.logger.Warn("watch_sync_failed",
					slog.Int("batch_size", len(batch)),
					slog.String("error", err.Error()))
			}
		}
	}
}
