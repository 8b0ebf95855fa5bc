package logging

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultLogPath(t *testing.T) {
	path := DefaultLogPath()

	assert.Equal(t, LogFileName, filepath.Base(path))
	assert.Contains(t, path, ".docrag")
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "info", cfg.Level)
	assert.Equal(t, 10, cfg.MaxSizeMB)
	assert.Equal(t, 5, cfg.MaxFiles)
	assert.Equal(t, "debug", DebugConfig().Level)
}

func TestSetup_WritesJSONToFileAndTail(t *testing.T) {
	// Given: a file path and a tail
	path := filepath.Join(t.TempDir(), "logs", "test.log")
	tail := NewTail(10)

	// When: logging through the configured logger
	logger, cleanup, err := Setup(Config{Level: "debug", FilePath: path, Tail: tail})
	require.NoError(t, err)
	logger.Info("ingest_started", slog.String("run_id", "r1"))
	logger.Debug("ingest_batch_done", slog.Int("batch", 1))
	cleanup()

	// Then: both sinks saw both records
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(data), "\n"))

	recent := tail.Entries(0)
	require.Len(t, recent, 2)
	assert.Equal(t, "ingest_started", recent[0].Msg)
	assert.Equal(t, "r1", recent[0].Attrs["run_id"])
	assert.Equal(t, "DEBUG", recent[1].Level)
}

func TestSetup_LevelFilters(t *testing.T) {
	tail := NewTail(10)
	logger, cleanup, err := Setup(Config{Level: "warn", Tail: tail})
	require.NoError(t, err)
	defer cleanup()

	logger.Info("dropped")
	logger.Warn("kept")

	assert.Equal(t, 1, tail.Len())
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, parseLevel(in), in)
	}
}

func TestTail_RecentOldestFirst(t *testing.T) {
	// Given: a tail of capacity 3 receiving 5 lines
	tail := NewTail(3)
	for i := 1; i <= 5; i++ {
		_, _ = fmt.Fprintf(tail, "line %d\n", i)
	}

	// Then: only the last 3 remain, oldest first
	assert.Equal(t, []string{"line 3", "line 4", "line 5"}, tail.Recent(0))
	assert.Equal(t, []string{"line 4", "line 5"}, tail.Recent(2))
	assert.Equal(t, []string{"line 3", "line 4", "line 5"}, tail.Recent(99))
}

func TestTail_PartialWrites(t *testing.T) {
	tail := NewTail(5)

	_, _ = tail.Write([]byte("hel"))
	assert.Equal(t, 0, tail.Len())
	_, _ = tail.Write([]byte("lo\nwor"))
	_, _ = tail.Write([]byte("ld\n\n"))

	assert.Equal(t, []string{"hello", "world"}, tail.Recent(0))
}

func TestTail_ConcurrentWritesAndReads(t *testing.T) {
	tail := NewTail(100)
	var wg sync.WaitGroup

	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				_, _ = fmt.Fprintf(tail, "w%d-%d\n", w, i)
			}
		}(w)
	}
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				_ = tail.Recent(10)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 100, tail.Len())
}

func TestRotatingWriter_Rotates(t *testing.T) {
	// Given: a writer with a tiny size limit
	path := filepath.Join(t.TempDir(), "docrag.log")
	w, err := NewRotatingWriter(path, 1, 2)
	require.NoError(t, err)
	w.maxSize = 10
	defer func() { _ = w.Close() }()

	// When: writing past the limit several times
	for i := 0; i < 4; i++ {
		_, err := w.Write([]byte("0123456789\n"))
		require.NoError(t, err)
	}

	// Then: the current file and two rotated files exist, no third
	assert.FileExists(t, path)
	assert.FileExists(t, path+".1")
	assert.FileExists(t, path+".2")
	assert.NoFileExists(t, path+".3")
}

func TestViewer_TailAndFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docrag.log")
	lines := []string{
		`{"time":"2026-01-02T10:00:00.000Z","level":"INFO","msg":"ingest_started","run_id":"a"}`,
		`not json`,
		`{"time":"2026-01-02T10:00:01.000Z","level":"ERROR","msg":"ingest_failed","error":"x"}`,
	}
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644))

	var out bytes.Buffer
	v := NewViewer(ViewerConfig{Level: "warn", NoColor: true}, &out)

	entries, err := v.Tail(path, 10)
	require.NoError(t, err)
	// Then: only the error survives; the non-JSON line has no level and reads as info
	require.Len(t, entries, 1)

	v.Print(entries)
	assert.Equal(t, "10:00:01.000 ERROR ingest_failed error=x\n", out.String())
}

func TestViewer_PatternFilter(t *testing.T) {
	v := NewViewer(ViewerConfig{Pattern: regexp.MustCompile("batch")}, nil)

	got := v.Filter([]LogEntry{
		ParseLine(`{"level":"INFO","msg":"ingest_batch_failed"}`),
		ParseLine(`{"level":"INFO","msg":"search_merge"}`),
	})

	require.Len(t, got, 1)
	assert.Equal(t, "ingest_batch_failed", got[0].Msg)
}

func TestViewer_FormatEntryInvalid(t *testing.T) {
	v := NewViewer(ViewerConfig{NoColor: true}, nil)
	assert.Equal(t, "garbage", v.FormatEntry(ParseLine("garbage")))

	e := ParseLine(`{"time":"2026-01-02T10:00:00Z","level":"INFO","msg":"m","b":2,"a":1}`)
	assert.Equal(t, time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC), e.Time)
	assert.Equal(t, "10:00:00.000 INFO  m a=1 b=2", v.FormatEntry(e))
}

func TestFindLogFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.log")
	_, err := FindLogFile(path)
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(path, nil, 0o644))
	got, err := FindLogFile(path)
	require.NoError(t, err)
	assert.Equal(t, path, got)
}
