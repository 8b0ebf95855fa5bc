package index

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/docrag/internal/chunk"
	docerrors "github.com/Aman-CERP/docrag/internal/errors"
	"github.com/Aman-CERP/docrag/internal/store"
)

// fakeEmbedder returns deterministic 4-dimensional vectors. failures maps a
// chunk text to the number of calls containing it that should fail.
type fakeEmbedder struct {
	mu       sync.Mutex
	calls    int
	failures map[string]int
}

func (f *fakeEmbedder) EmbedPassages(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++

	for _, t := range texts {
		if f.failures[t] > 0 {
			f.failures[t]--
			return nil, errors.New("embedding model overloaded")
		}
	}

	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{1, float32(len(t)%7) + 1, 0.5, float32(i%3) + 0.25}
	}
	return out, nil
}

func (f *fakeEmbedder) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// failingVectors fails every Upsert with a non-fatal error.
type failingVectors struct {
	*store.HNSWStore
}

func (failingVectors) Upsert(context.Context, []*store.Record) error {
	return errors.New("disk quota exceeded")
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testChunks(filename string, n int) []*chunk.Chunk {
	out := make([]*chunk.Chunk, n)
	for i := range out {
		out[i] = &chunk.Chunk{
			ID:         chunk.ID(filename, 1, i),
			Filename:   filename,
			Page:       1,
			TotalPages: 1,
			Index:      i,
			Language:   "en",
			Text:       fmt.Sprintf("cargo manifest entry %d for %s", i, filename),
		}
	}
	return out
}

type writerFixture struct {
	embedder *fakeEmbedder
	vectors  *store.HNSWStore
	keywords *store.SQLiteKeywordIndex
	writer   *Writer
}

func newWriterFixture(t *testing.T, batchSize int) *writerFixture {
	t.Helper()

	keywords, err := store.NewSQLiteKeywordIndex("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = keywords.Close() })

	f := &writerFixture{
		embedder: &fakeEmbedder{failures: map[string]int{}},
		vectors:  store.NewHNSWStore(store.HNSWConfig{Dimensions: 4}),
		keywords: keywords,
	}
	f.writer = NewWriter(f.embedder, f.vectors, f.keywords, WriterConfig{
		BatchSize:  batchSize,
		RetryDelay: time.Millisecond,
		Logger:     quietLogger(),
	})
	return f
}

func TestWriter_WritesInBatches(t *testing.T) {
	// Given: 250 chunks and a batch size of 100
	f := newWriterFixture(t, 100)
	chunks := testChunks("manual.pdf", 250)

	// When: writing
	res, err := f.writer.Write(context.Background(), chunks)

	// Then: three embedding calls and every chunk in both stores
	require.NoError(t, err)
	assert.Equal(t, 250, res.Written)
	assert.Equal(t, 0, res.FailedBatches)
	assert.Equal(t, 3, f.embedder.Calls())
	assert.Equal(t, 250, f.vectors.Count())
	assert.Equal(t, 250, f.keywords.Count())
}

func TestWriter_RecordsCarryChunkFields(t *testing.T) {
	// Given: one chunk with metadata
	f := newWriterFixture(t, 10)
	c := testChunks("sop.docx", 1)[0]
	c.Metadata = map[string]string{"sop": "SOP-12"}
	c.Persons = []string{"Sara Ali"}

	// When: writing and searching its keyword
	_, err := f.writer.Write(context.Background(), []*chunk.Chunk{c})
	require.NoError(t, err)
	hits, err := f.keywords.Search(context.Background(), []string{"cargo"}, 5)

	// Then: the stored record holds the flattened fields
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "sop.docx_1_0", hits[0].Record.ID)
	assert.Equal(t, "SOP-12", hits[0].Record.Metadata["sop"])
	assert.Equal(t, "Sara Ali", hits[0].Record.Metadata["persons"])
	assert.Equal(t, "1", hits[0].Record.Metadata["page"])
}

func TestWriter_RetriesBatchOnce(t *testing.T) {
	// Given: an embedder that fails the first call
	f := newWriterFixture(t, 10)
	chunks := testChunks("a.pdf", 5)
	f.embedder.failures[chunks[0].Text] = 1

	// When: writing
	res, err := f.writer.Write(context.Background(), chunks)

	// Then: the retry succeeds
	require.NoError(t, err)
	assert.Equal(t, 5, res.Written)
	assert.Equal(t, 0, res.FailedBatches)
	assert.Equal(t, 2, f.embedder.Calls())
}

func TestWriter_FailedBatchIsSkippedAndAttributed(t *testing.T) {
	// Given: three batches whose second fails on every attempt
	f := newWriterFixture(t, 2)
	chunks := testChunks("a.pdf", 6)
	f.embedder.failures[chunks[2].Text] = 10

	// When: writing
	res, err := f.writer.Write(context.Background(), chunks)

	// Then: the other batches are written and the failure names its chunks
	require.NoError(t, err)
	assert.Equal(t, 4, res.Written)
	assert.Equal(t, 1, res.FailedBatches)
	require.Len(t, res.Failures, 1)
	assert.True(t, errors.Is(res.Failures[0], docerrors.ErrBatchWrite))
	assert.Equal(t, []string{"a.pdf_1_2", "a.pdf_1_3"}, docerrors.ChunkIDs(res.Failures[0]))
	assert.Equal(t, 4, f.embedder.Calls())

	ids, err := f.keywords.IDs(context.Background())
	require.NoError(t, err)
	assert.NotContains(t, ids, "a.pdf_1_2")
}

func TestWriter_VectorFailureRemovesKeywordRecords(t *testing.T) {
	// Given: a vector store that rejects every write
	keywords, err := store.NewSQLiteKeywordIndex("")
	require.NoError(t, err)
	defer keywords.Close()
	vectors := failingVectors{store.NewHNSWStore(store.HNSWConfig{Dimensions: 4})}
	w := NewWriter(&fakeEmbedder{}, vectors, keywords, WriterConfig{
		RetryDelay: time.Millisecond,
		Logger:     quietLogger(),
	})

	// When: writing
	res, err := w.Write(context.Background(), testChunks("a.pdf", 3))

	// Then: the batch fails and is not visible to keyword search
	require.NoError(t, err)
	assert.Equal(t, 0, res.Written)
	assert.Equal(t, 1, res.FailedBatches)
	assert.Equal(t, 0, keywords.Count())
}

func TestWriter_UnavailableStoreIsFatal(t *testing.T) {
	// Given: a closed keyword index
	f := newWriterFixture(t, 2)
	require.NoError(t, f.keywords.Close())

	// When: writing
	res, err := f.writer.Write(context.Background(), testChunks("a.pdf", 4))

	// Then: the run-level error is returned without retrying
	require.Error(t, err)
	assert.True(t, errors.Is(err, docerrors.ErrStoreUnavailable))
	assert.Equal(t, 0, res.Written)
	assert.Equal(t, 1, f.embedder.Calls())
}

func TestWriter_DimensionMismatchIsFatal(t *testing.T) {
	// Given: a vector store fixed to 8 dimensions
	keywords, err := store.NewSQLiteKeywordIndex("")
	require.NoError(t, err)
	defer keywords.Close()
	w := NewWriter(&fakeEmbedder{}, store.NewHNSWStore(store.HNSWConfig{Dimensions: 8}), keywords,
		WriterConfig{RetryDelay: time.Millisecond, Logger: quietLogger()})

	// When: writing 4-dimensional embeddings
	_, err = w.Write(context.Background(), testChunks("a.pdf", 1))

	// Then: the write aborts with both sizes attributed
	require.Error(t, err)
	assert.True(t, errors.Is(err, docerrors.ErrDimensionMismatch))
	assert.True(t, docerrors.IsFatal(err))
	de, ok := docerrors.As(err)
	require.True(t, ok)
	assert.Equal(t, "8", de.Details["expected"])
	assert.Equal(t, "4", de.Details["got"])
	var mismatch store.ErrDimensionMismatch
	assert.True(t, errors.As(err, &mismatch))
}

func TestWriter_StopsWhenCancelled(t *testing.T) {
	// Given: a cancelled context
	f := newWriterFixture(t, 2)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// When: writing
	res, err := f.writer.Write(ctx, testChunks("a.pdf", 4))

	// Then: nothing is written
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, res.Written)
	assert.Equal(t, 0, f.embedder.Calls())
}

func TestWriter_UpsertIsIdempotent(t *testing.T) {
	// Given: chunks written once
	f := newWriterFixture(t, 10)
	chunks := testChunks("a.pdf", 4)
	_, err := f.writer.Write(context.Background(), chunks)
	require.NoError(t, err)

	// When: writing them again
	_, err = f.writer.Write(context.Background(), chunks)

	// Then: no duplicates
	require.NoError(t, err)
	assert.Equal(t, 4, f.vectors.Count())
	assert.Equal(t, 4, f.keywords.Count())
}

func TestWriter_DeleteDocument(t *testing.T) {
	// Given: two documents
	f := newWriterFixture(t, 10)
	ctx := context.Background()
	_, err := f.writer.Write(ctx, append(testChunks("a.pdf", 3), testChunks("b.pdf", 2)...))
	require.NoError(t, err)

	// When: deleting one
	n, err := f.writer.DeleteDocument(ctx, "a.pdf")

	// Then: only the other remains in both stores
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	for _, ids := range [][]string{mustIDs(t, f.keywords), mustIDs(t, f.vectors)} {
		assert.Equal(t, []string{"b.pdf_1_0", "b.pdf_1_1"}, ids)
	}
	require.NoError(t, f.writer.Save())
}

type idLister interface {
	IDs(ctx context.Context) ([]string, error)
}

func mustIDs(t *testing.T, s idLister) []string {
	t.Helper()
	ids, err := s.IDs(context.Background())
	require.NoError(t, err)
	return ids
}
