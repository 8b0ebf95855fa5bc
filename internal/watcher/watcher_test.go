package watcher

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/docrag/internal/store"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func pdfOnly(name string) bool {
	return strings.HasSuffix(name, ".pdf")
}

func startWatcher(t *testing.T, root string) *Watcher {
	t.Helper()
	w, err := New(Options{Debounce: 50 * time.Millisecond, Allowed: pdfOnly}, quietLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Start(ctx, root)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	// fsnotify registration happens inside Start
	time.Sleep(100 * time.Millisecond)
	return w
}

// collect gathers events until quiet for a debounce period.
func collect(t *testing.T, w *Watcher, want int) map[string]Operation {
	t.Helper()
	got := map[string]Operation{}
	deadline := time.After(5 * time.Second)
	for len(got) < want {
		select {
		case batch, ok := <-w.Events():
			if !ok {
				return got
			}
			for _, ev := range batch {
				got[ev.Path] = ev.Operation
			}
		case <-deadline:
			t.Fatalf("timeout: got %v, want %d events", got, want)
		}
	}
	return got
}

func TestWatcher_ReportsAllowedDocuments(t *testing.T) {
	// Given: a watched documents root
	root := t.TempDir()
	w := startWatcher(t, root)

	// When: a document, an unsupported file and a hidden file are written
	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".upload-1.pdf"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "manual.pdf"), []byte("x"), 0o644))

	// Then: only the document is reported
	got := collect(t, w, 1)
	assert.Equal(t, map[string]Operation{"manual.pdf": OpCreate}, got)
}

func TestWatcher_NewFolderContents(t *testing.T) {
	// Given: a watched root
	root := t.TempDir()
	w := startWatcher(t, root)

	// When: a folder with a document is moved in
	staging := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(staging, "sops"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(staging, "sops", "a.pdf"), []byte("x"), 0o644))
	require.NoError(t, os.Rename(filepath.Join(staging, "sops"), filepath.Join(root, "sops")))

	// Then: the document inside is reported with its relative path
	got := collect(t, w, 1)
	assert.Contains(t, got, "sops/a.pdf")
}

func TestWatcher_StopClosesEvents(t *testing.T) {
	w, err := New(Options{}, quietLogger())
	require.NoError(t, err)

	require.NoError(t, w.Stop())
	require.NoError(t, w.Stop())

	select {
	case _, ok := <-w.Events():
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("events channel not closed")
	}
}

func TestWatcher_StartOnMissingRoot(t *testing.T) {
	w, err := New(Options{}, quietLogger())
	require.NoError(t, err)
	defer w.Stop()

	err = w.Start(context.Background(), filepath.Join(t.TempDir(), "missing"))

	assert.Error(t, err)
}

func TestSyncer_Apply(t *testing.T) {
	// Given: a catalog and a root with one present document
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "dir"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "dir", "a.pdf"), []byte("12345"), 0o644))
	catalog, err := store.OpenCatalog("")
	require.NoError(t, err)
	defer catalog.Close()
	s := NewSyncer(root, catalog, quietLogger())
	ctx := context.Background()

	// When: applying a batch with a change, a deletion and a vanished create
	res, err := s.Apply(ctx, []FileEvent{
		{Path: "dir/a.pdf", Operation: OpModify},
		{Path: "old.pdf", Operation: OpDelete},
		{Path: "gone.pdf", Operation: OpCreate},
		{Path: "dir", Operation: OpCreate},
	})

	// Then: the present document is pending with its size
	require.NoError(t, err)
	assert.Equal(t, SyncResult{Pending: 1, Missing: 2}, res)

	doc, err := catalog.Get(ctx, "dir/a.pdf")
	require.NoError(t, err)
	assert.Equal(t, store.StatusPending, doc.Status)
	assert.Equal(t, int64(5), doc.Size)

	_, err = catalog.Get(ctx, "gone.pdf")
	assert.ErrorIs(t, err, store.ErrDocumentNotFound)
}

func TestSyncer_RunStopsWhenChannelCloses(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.pdf"), []byte("x"), 0o644))
	catalog, err := store.OpenCatalog("")
	require.NoError(t, err)
	defer catalog.Close()

	batches := make(chan []FileEvent, 1)
	batches <- []FileEvent{{Path: "a.pdf", Operation: OpCreate}}
	close(batches)

	NewSyncer(root, catalog, quietLogger()).Run(context.Background(), batches)

	doc, err := catalog.Get(context.Background(), "a.pdf")
	require.NoError(t, err)
	assert.Equal(t, store.StatusPending, doc.Status)
}
