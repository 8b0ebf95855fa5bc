package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reports document changes under a root directory, recursively.
// Hidden files and folders are never reported, which also hides the data
// directory and in-progress uploads.
type Watcher struct {
	fs        *fsnotify.Watcher
	debouncer *Debouncer
	opts      Options
	logger    *slog.Logger

	events chan []FileEvent
	errors chan error
	stopCh chan struct{}
	root   string

	mu      sync.Mutex
	stopped bool
}

// New creates a watcher. logger may be nil.
func New(opts Options, logger *slog.Logger) (*Watcher, error) {
	opts = opts.WithDefaults()
	if logger == nil {
		logger = slog.Default()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}

	w := &Watcher{
		fs:        fsw,
		debouncer: NewDebouncer(opts.Debounce, logger),
		opts:      opts,
		logger:    logger,
		events:    make(chan []FileEvent, opts.EventBufferSize),
		errors:    make(chan error, 8),
		stopCh:    make(chan struct{}),
	}
	go w.forward()
	return w, nil
}

// Start watches root until ctx is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context, root string) error {
	abs, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("resolve absolute path: %w", err)
	}
	w.root = abs

	if err := w.addTree(abs, false); err != nil {
		return fmt.Errorf("watch %s: %w", abs, err)
	}
	w.logger.Info("watch_started", slog.String("root", abs))

	for {
		select {
		case <-ctx.Done():
			_ = w.Stop()
			return ctx.Err()
		case <-w.stopCh:
			return nil
		case ev, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			w.handle(ev)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.emitError(err)
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	rel, ok := w.relative(ev.Name)
	if !ok {
		return
	}

	var op Operation
	switch {
	case ev.Has(fsnotify.Create):
		op = OpCreate
	case ev.Has(fsnotify.Write):
		op = OpModify
	case ev.Has(fsnotify.Remove):
		op = OpDelete
	case ev.Has(fsnotify.Rename):
		op = OpRename
	default:
		return
	}

	if op == OpCreate {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			// Files copied in with the folder produce no events of their own.
			if err := w.addTree(ev.Name, true); err != nil {
				w.emitError(err)
			}
			return
		}
	}

	if w.opts.Allowed != nil && !w.opts.Allowed(rel) {
		return
	}
	w.debouncer.Add(FileEvent{Path: rel, Operation: op, Timestamp: time.Now()})
}

// addTree watches dir and its visible subfolders. With announce set, files
// found on the way are reported as created.
func (w *Watcher) addTree(dir string, announce bool) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			return nil
		}
		if path != dir && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return w.fs.Add(path)
		}
		if !announce {
			return nil
		}
		rel, ok := w.relative(path)
		if ok && (w.opts.Allowed == nil || w.opts.Allowed(rel)) {
			w.debouncer.Add(FileEvent{Path: rel, Operation: OpCreate, Timestamp: time.Now()})
		}
		return nil
	})
}

// relative maps an absolute path to a visible slash path under root.
func (w *Watcher) relative(path string) (string, bool) {
	rel, err := filepath.Rel(w.root, path)
	if err != nil || rel == "." || !filepath.IsLocal(rel) {
		return "", false
	}
	rel = filepath.ToSlash(rel)
	for _, part := range strings.Split(rel, "/") {
		if strings.HasPrefix(part, ".") {
			return "", false
		}
	}
	return rel, true
}

// forward moves debounced batches to Events and closes it with the debouncer.
func (w *Watcher) forward() {
	defer close(w.events)
	for batch := range w.debouncer.Output() {
		select {
		case w.events <- batch:
		default:
			w.logger.Warn("watch_batch_dropped", slog.Int("batch_size", len(batch)))
		}
	}
}

func (w *Watcher) emitError(err error) {
	w.logger.Warn("watch_error", slog.String("error", err.Error()))
	select {
	case w.errors <- err:
	default:
	}
}

// Events delivers debounced batches. Closed after Stop.
func (w *Watcher) Events() <-chan []FileEvent {
	return w.events
}

// Errors reports non-fatal watch errors. It is never closed.
func (w *Watcher) Errors() <-chan error {
	return w.errors
}

// Stop releases the watcher. Safe to call more than once.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return nil
	}
	w.stopped = true
	close(w.stopCh)
	w.debouncer.Stop()
	return w.fs.Close()
}
