package index

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/Aman-CERP/docrag/internal/chunk"
	"github.com/Aman-CERP/docrag/internal/enrich"
	"github.com/Aman-CERP/docrag/internal/extract"
	"github.com/Aman-CERP/docrag/internal/store"
)

// PipelineConfig wires the stages of document ingestion.
type PipelineConfig struct {
	// Root is the documents directory; filenames are relative to it.
	Root string

	// Allowed reports whether a filename is ingestible. Nil allows every
	// extension the extractor supports.
	Allowed func(name string) bool

	Extractor extract.Extractor
	Chunker   *chunk.Chunker
	Enricher  *enrich.Enricher
	Writer    *Writer
	Catalog   *store.Catalog

	// Checker repairs half-written batches before a run. Optional.
	Checker *ConsistencyChecker

	Logger *slog.Logger
	Now    func() time.Time
}

// Pipeline runs extraction, chunking, enrichment and writing per document.
type Pipeline struct {
	cfg PipelineConfig
}

// NewPipeline creates a pipeline. Extractor, Chunker, Writer and Catalog
// are required.
func NewPipeline(cfg PipelineConfig) (*Pipeline, error) {
	switch {
	case cfg.Extractor == nil:
		return nil, fmt.Errorf("extractor is required")
	case cfg.Chunker == nil:
		return nil, fmt.Errorf("chunker is required")
	case cfg.Writer == nil:
		return nil, fmt.Errorf("writer is required")
	case cfg.Catalog == nil:
		return nil, fmt.Errorf("catalog is required")
	}
	if cfg.Enricher == nil {
		cfg.Enricher = enrich.New(nil)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Pipeline{cfg: cfg}, nil
}

// Writer returns the pipeline's index writer.
func (p *Pipeline) Writer() *Writer {
	return p.cfg.Writer
}

// Catalog returns the document catalog.
func (p *Pipeline) Catalog() *store.Catalog {
	return p.cfg.Catalog
}

// DocumentResult is the outcome of ingesting one document.
type DocumentResult struct {
	Filename      string
	Pages         int
	Chunks        int
	Written       int
	FailedChunks  int // enrichment failures
	FailedBatches int
	// Err is set when the document could not be ingested at all
	// (unreadable or unsupported file). It never aborts a run.
	Err error
}

// Failed reports whether the document counts as failed.
func (r *DocumentResult) Failed() bool {
	return r.Err != nil || r.FailedBatches > 0
}

// Observer receives run progress. Calls come from the run goroutine.
type Observer interface {
	OnDiscovered(total int)
	OnDocument(res *DocumentResult)
}

// RunResult summarizes a full ingestion.
type RunResult struct {
	Total         int
	Processed     int
	Failed        int
	Chunks        int
	FailedChunks  int
	FailedBatches int
	Removed       int // stale documents dropped from the index
}

// Run performs a full reingest: discover documents, drop records of
// documents that no longer exist, then (re)index every document. ctx is a
// stop signal honored between documents and between batches; work already
// started runs on a context detached from it. The returned error is non-nil
// only for a stop or a fatal store failure.
func (p *Pipeline) Run(ctx context.Context, obs Observer) (*RunResult, error) {
	res := &RunResult{}
	if err := ctx.Err(); err != nil {
		return res, err
	}
	work := context.WithoutCancel(ctx)

	if p.cfg.Checker != nil {
		if check, err := p.cfg.Checker.Check(work); err != nil {
			p.cfg.Logger.Warn("index_check_failed", slog.String("error", err.Error()))
		} else if !check.Consistent() {
			if err := p.cfg.Checker.Repair(work, check.Inconsistencies); err != nil {
				p.cfg.Logger.Warn("index_repair_failed", slog.String("error", err.Error()))
			}
		}
	}

	files, err := p.Discover()
	if err != nil {
		return res, err
	}
	res.Total = len(files)
	if obs != nil {
		obs.OnDiscovered(len(files))
	}

	removed, err := p.RemoveStale(work, files)
	res.Removed = removed
	if err != nil {
		return res, err
	}

	for _, name := range files {
		if err := ctx.Err(); err != nil {
			return res, p.save(err)
		}

		doc, err := p.IndexDocument(ctx, name)
		if doc != nil {
			res.Processed++
			res.Chunks += doc.Written
			res.FailedChunks += doc.FailedChunks
			res.FailedBatches += doc.FailedBatches
			if doc.Failed() {
				res.Failed++
			}
			if obs != nil {
				obs.OnDocument(doc)
			}
		}
		if err != nil {
			return res, p.save(err)
		}
	}

	return res, p.save(nil)
}

// save persists the stores, also after a stop so finished batches survive.
func (p *Pipeline) save(cause error) error {
	if err := p.cfg.Writer.Save(); err != nil {
		if cause != nil {
			return errors.Join(cause, err)
		}
		return err
	}
	return cause
}

// Discover lists ingestible documents under Root as sorted slash paths.
// Hidden files and directories are skipped.
func (p *Pipeline) Discover() ([]string, error) {
	var files []string
	err := filepath.WalkDir(p.cfg.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path != p.cfg.Root && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(p.cfg.Root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if p.cfg.Allowed != nil && !p.cfg.Allowed(rel) {
			return nil
		}
		files = append(files, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("discover documents in %s: %w", p.cfg.Root, err)
	}
	sort.Strings(files)
	return files, nil
}

// RemoveStale drops catalog documents missing from present, together with
// their index records.
func (p *Pipeline) RemoveStale(ctx context.Context, present []string) (int, error) {
	known, err := p.cfg.Catalog.List(ctx)
	if err != nil {
		return 0, err
	}

	keep := make(map[string]bool, len(present))
	for _, name := range present {
		keep[name] = true
	}

	removed := 0
	for _, doc := range known {
		if keep[doc.Filename] {
			continue
		}
		if err := p.RemoveDocument(ctx, doc.Filename); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// RemoveDocument deletes a document's index records and catalog row.
func (p *Pipeline) RemoveDocument(ctx context.Context, filename string) error {
	n, err := p.cfg.Writer.DeleteDocument(ctx, filename)
	if err != nil {
		return err
	}
	if err := p.cfg.Catalog.Remove(ctx, filename); err != nil {
		return err
	}
	p.cfg.Logger.Info("document_removed",
		slog.String("filename", filename),
		slog.Int("records", n))
	return nil
}

// IndexDocument ingests one document. Records of a previous ingestion are
// replaced by upsert, and IDs the new version no longer produces are deleted
// once every batch was written. ctx is a stop signal checked between
// batches; when it fires mid-document the remaining batches are skipped, the
// previous records stay in place and the catalog row stays pending. A nil
// result comes only with a stop or a fatal error.
func (p *Pipeline) IndexDocument(ctx context.Context, filename string) (*DocumentResult, error) {
	res := &DocumentResult{Filename: filename}
	log := p.cfg.Logger.With(slog.String("filename", filename))
	path := filepath.Join(p.cfg.Root, filepath.FromSlash(filename))
	work := context.WithoutCancel(ctx)

	info, err := os.Stat(path)
	if err != nil {
		return p.fail(work, res, err)
	}
	if err := p.cfg.Catalog.MarkPending(work, filename, info.Size(), p.cfg.Now()); err != nil {
		return nil, err
	}

	pages, err := p.cfg.Extractor.Extract(work, path)
	if err != nil {
		return p.fail(work, res, err)
	}
	res.Pages = len(pages)

	chunks, err := p.cfg.Chunker.Chunk(work, &chunk.Document{
		Filename: filename,
		Pages:    pages,
		Size:     info.Size(),
		ModTime:  info.ModTime(),
	})
	if err != nil {
		return nil, err
	}
	res.Chunks = len(chunks)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	res.FailedChunks = p.cfg.Enricher.Enrich(work, chunks)

	previous, err := p.cfg.Writer.DocumentIDs(work, filename)
	if err != nil {
		return nil, err
	}

	written, err := p.cfg.Writer.Write(ctx, chunks)
	if written != nil {
		res.Written = written.Written
		res.FailedBatches = written.FailedBatches
	}
	if err != nil {
		if ctx.Err() != nil {
			log.Info("document_interrupted",
				slog.Int("written", res.Written),
				slog.Int("chunks", res.Chunks))
			return nil, err
		}
		return res, err
	}

	// Chunk IDs of a shorter new version would otherwise linger.
	if err := p.cfg.Writer.Delete(work, staleIDs(previous, chunks)); err != nil {
		return res, err
	}

	if res.FailedBatches > 0 {
		err := fmt.Errorf("%d of %d chunks not indexed", res.Chunks-res.Written, res.Chunks)
		if markErr := p.cfg.Catalog.MarkFailed(work, filename, err, p.cfg.Now()); markErr != nil {
			return res, markErr
		}
	} else if err := p.cfg.Catalog.MarkIndexed(work, filename, res.Pages, res.Written, p.cfg.Now()); err != nil {
		return res, err
	}

	log.Info("document_indexed",
		slog.Int("pages", res.Pages),
		slog.Int("chunks", res.Chunks),
		slog.Int("written", res.Written),
		slog.Int("failed_chunks", res.FailedChunks),
		slog.Int("failed_batches", res.FailedBatches))
	return res, nil
}

// staleIDs returns the IDs in previous that chunks no longer produce.
func staleIDs(previous []string, chunks []*chunk.Chunk) []string {
	current := make(map[string]bool, len(chunks))
	for _, c := range chunks {
		current[c.ID] = true
	}
	var stale []string
	for _, id := range previous {
		if !current[id] {
			stale = append(stale, id)
		}
	}
	return stale
}

// fail records a document-level failure. Only a catalog failure is returned
// as an error.
func (p *Pipeline) fail(ctx context.Context, res *DocumentResult, cause error) (*DocumentResult, error) {
	res.Err = cause
	p.cfg.Logger.Warn("document_failed",
		slog.String("filename", res.Filename),
		slog.String("error", cause.Error()))
	return res, p.cfg.Catalog.MarkFailed(ctx, res.Filename, cause, p.cfg.Now())
}
