// Package index writes chunks into the vector store and keyword index and
// runs the per-document ingestion pipeline.
package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/Aman-CERP/docrag/internal/chunk"
	docerrors "github.com/Aman-CERP/docrag/internal/errors"
	"github.com/Aman-CERP/docrag/internal/store"
)

// DefaultBatchSize is the number of chunks embedded and written together.
const DefaultBatchSize = 100

// DefaultRetryDelay is the pause before a failed batch is retried.
const DefaultRetryDelay = 500 * time.Millisecond

// PassageEmbedder embeds chunk texts for storage. embed.Prefixed implements it.
type PassageEmbedder interface {
	EmbedPassages(ctx context.Context, texts []string) ([][]float32, error)
}

// WriterConfig configures a Writer.
type WriterConfig struct {
	BatchSize  int
	RetryDelay time.Duration
	Logger     *slog.Logger
}

// Writer is the only component that writes index records.
type Writer struct {
	embedder  PassageEmbedder
	vectors   store.VectorStore
	keywords  store.KeywordIndex
	batchSize int
	retry     docerrors.RetryConfig
	logger    *slog.Logger
}

// NewWriter creates a Writer. Zero config values select the defaults.
func NewWriter(embedder PassageEmbedder, vectors store.VectorStore, keywords store.KeywordIndex, cfg WriterConfig) *Writer {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Writer{
		embedder:  embedder,
		vectors:   vectors,
		keywords:  keywords,
		batchSize: cfg.BatchSize,
		retry:     docerrors.RetryOnce(cfg.RetryDelay),
		logger:    cfg.Logger,
	}
}

// WriteResult summarizes one Write call.
type WriteResult struct {
	Written       int     // chunks persisted
	FailedBatches int     // batches that failed their retry
	Failures      []error // one BatchWrite error per failed batch
}

// Write persists chunks in batches. A batch that still fails after one retry
// is reported in the result and skipped. ctx is a stop signal checked only
// before each batch: a batch that has started runs to completion on a
// context detached from ctx. The returned error is non-nil only when ctx is
// done or a store is unavailable.
func (w *Writer) Write(ctx context.Context, chunks []*chunk.Chunk) (*WriteResult, error) {
	res := &WriteResult{}
	work := context.WithoutCancel(ctx)

	for start := 0; start < len(chunks); start += w.batchSize {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		end := min(start+w.batchSize, len(chunks))
		batch := chunks[start:end]

		var fatal error
		err := docerrors.Retry(work, w.retry, func() error {
			err := w.writeBatch(work, batch)
			if err != nil && isFatal(err) {
				// Stop retrying; reported below.
				fatal = err
				return nil
			}
			return err
		})
		if fatal != nil {
			return res, fatalError(fatal)
		}
		if err != nil {
			ids := chunkIDs(batch)
			batchErr := docerrors.BatchWrite(ids, err)
			w.logger.Warn("ingest_batch_failed",
				slog.String("first_chunk", ids[0]),
				slog.Int("chunks", len(ids)),
				slog.String("error", err.Error()))
			res.FailedBatches++
			res.Failures = append(res.Failures, batchErr)
			continue
		}
		res.Written += len(batch)
	}
	return res, nil
}

// writeBatch embeds and writes one batch. The keyword write goes first; if
// the vector write then fails the keyword records are removed again so the
// batch is never half visible.
func (w *Writer) writeBatch(ctx context.Context, batch []*chunk.Chunk) error {
	texts := make([]string, len(batch))
	for i, c := range batch {
		texts[i] = c.Text
	}

	vectors, err := w.embedder.EmbedPassages(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed batch: %w", err)
	}
	if len(vectors) != len(batch) {
		return fmt.Errorf("embed batch: got %d vectors for %d chunks", len(vectors), len(batch))
	}

	records := make([]*store.Record, len(batch))
	for i, c := range batch {
		records[i] = &store.Record{
			ID:       c.ID,
			Filename: c.Filename,
			Page:     c.Page,
			Index:    c.Index,
			Text:     c.Text,
			Vector:   vectors[i],
			Tokens:   store.Tokenize(c.Text),
			Metadata: c.Fields(),
		}
	}

	if err := w.keywords.Upsert(ctx, records); err != nil {
		return fmt.Errorf("keyword upsert: %w", err)
	}
	if err := w.vectors.Upsert(ctx, records); err != nil {
		if delErr := w.keywords.Delete(ctx, chunkIDs(batch)); delErr != nil {
			w.logger.Warn("ingest_batch_compensation_failed",
				slog.String("first_chunk", batch[0].ID),
				slog.String("error", delErr.Error()))
		}
		return fmt.Errorf("vector upsert: %w", err)
	}
	return nil
}

// DeleteDocument removes every record of filename from both stores.
func (w *Writer) DeleteDocument(ctx context.Context, filename string) (int, error) {
	n, err := w.keywords.DeleteByFilename(ctx, filename)
	if err != nil {
		return 0, fmt.Errorf("delete %s from keyword index: %w", filename, err)
	}
	if _, err := w.vectors.DeleteByFilename(ctx, filename); err != nil {
		return n, fmt.Errorf("delete %s from vector store: %w", filename, err)
	}
	return n, nil
}

// DocumentIDs returns the record IDs of filename found in either store.
func (w *Writer) DocumentIDs(ctx context.Context, filename string) ([]string, error) {
	kw, err := w.keywords.FilenameIDs(ctx, filename)
	if err != nil {
		return nil, fmt.Errorf("list %s in keyword index: %w", filename, err)
	}
	vec, err := w.vectors.FilenameIDs(ctx, filename)
	if err != nil {
		return nil, fmt.Errorf("list %s in vector store: %w", filename, err)
	}
	seen := make(map[string]bool, len(kw)+len(vec))
	ids := make([]string, 0, len(kw)+len(vec))
	for _, id := range append(kw, vec...) {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// Delete removes records by ID from both stores.
func (w *Writer) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := w.keywords.Delete(ctx, ids); err != nil {
		return fmt.Errorf("delete from keyword index: %w", err)
	}
	if err := w.vectors.Delete(ctx, ids); err != nil {
		return fmt.Errorf("delete from vector store: %w", err)
	}
	return nil
}

// Save persists both stores.
func (w *Writer) Save() error {
	if err := w.keywords.Save(); err != nil {
		return fmt.Errorf("save keyword index: %w", err)
	}
	if err := w.vectors.Save(); err != nil {
		return fmt.Errorf("save vector store: %w", err)
	}
	return nil
}

// isFatal reports errors that would fail every later batch as well.
func isFatal(err error) bool {
	var mismatch store.ErrDimensionMismatch
	return errors.Is(err, store.ErrUnavailable) || errors.As(err, &mismatch)
}

func fatalError(err error) *docerrors.DocError {
	var mismatch store.ErrDimensionMismatch
	if errors.As(err, &mismatch) {
		return docerrors.DimensionMismatch(err).
			WithDetail("expected", strconv.Itoa(mismatch.Expected)).
			WithDetail("got", strconv.Itoa(mismatch.Got))
	}
	return docerrors.StoreUnavailable("index", err)
}

func chunkIDs(batch []*chunk.Chunk) []string {
	ids := make([]string, len(batch))
	for i, c := range batch {
		ids[i] = c.ID
	}
	return ids
}
