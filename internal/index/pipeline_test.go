package index

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/docrag/internal/chunk"
	"github.com/Aman-CERP/docrag/internal/extract"
	"github.com/Aman-CERP/docrag/internal/store"
)

// fakeExtractor serves pages by base filename; unknown files fail.
type fakeExtractor struct {
	pages map[string][]extract.Page
}

func (f *fakeExtractor) Extract(_ context.Context, path string) ([]extract.Page, error) {
	pages, ok := f.pages[filepath.Base(path)]
	if !ok {
		return nil, errors.New("unsupported or corrupt document")
	}
	return pages, nil
}

type recordingObserver struct {
	total int
	docs  []string
}

func (o *recordingObserver) OnDiscovered(total int) { o.total = total }
func (o *recordingObserver) OnDocument(res *DocumentResult) {
	o.docs = append(o.docs, res.Filename)
}

const pageText = "Cargo acceptance requires a signed manifest and a weight check at the gate."

type pipelineFixture struct {
	root     string
	catalog  *store.Catalog
	vectors  *store.HNSWStore
	keywords *store.SQLiteKeywordIndex
	pipeline *Pipeline
}

func newPipelineFixture(t *testing.T, extractor extract.Extractor) *pipelineFixture {
	t.Helper()

	catalog, err := store.OpenCatalog("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = catalog.Close() })
	keywords, err := store.NewSQLiteKeywordIndex("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = keywords.Close() })
	vectors := store.NewHNSWStore(store.HNSWConfig{Dimensions: 4})

	f := &pipelineFixture{
		root:     t.TempDir(),
		catalog:  catalog,
		vectors:  vectors,
		keywords: keywords,
	}
	writer := NewWriter(&fakeEmbedder{}, vectors, keywords, WriterConfig{
		RetryDelay: time.Millisecond,
		Logger:     quietLogger(),
	})
	f.pipeline, err = NewPipeline(PipelineConfig{
		Root: f.root,
		Allowed: func(name string) bool {
			ext := strings.ToLower(filepath.Ext(name))
			return ext == ".pdf" || ext == ".docx"
		},
		Extractor: extractor,
		Chunker:   chunk.New(chunk.Options{}),
		Writer:    writer,
		Catalog:   catalog,
		Checker:   NewConsistencyChecker(vectors, keywords, quietLogger()),
		Logger:    quietLogger(),
	})
	require.NoError(t, err)
	return f
}

func (f *pipelineFixture) writeFile(t *testing.T, name string) {
	t.Helper()
	path := filepath.Join(f.root, filepath.FromSlash(name))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte("binary"), 0644))
}

func twoPages() []extract.Page {
	return []extract.Page{
		{Number: 1, Text: pageText},
		{Number: 2, Text: strings.Repeat("Dangerous goods are declared before loading. ", 3)},
	}
}

func TestNewPipeline_RequiresCollaborators(t *testing.T) {
	_, err := NewPipeline(PipelineConfig{})
	assert.Error(t, err)
}

func TestPipeline_DiscoverFiltersAndSorts(t *testing.T) {
	// Given: allowed, disallowed and hidden files
	f := newPipelineFixture(t, &fakeExtractor{})
	for _, name := range []string{"b.pdf", "sub/a.docx", "notes.txt", ".hidden.pdf", ".cache/c.pdf"} {
		f.writeFile(t, name)
	}

	// When: discovering
	files, err := f.pipeline.Discover()

	// Then: only visible allowed files, as sorted slash paths
	require.NoError(t, err)
	assert.Equal(t, []string{"b.pdf", "sub/a.docx"}, files)
}

func TestPipeline_RunIndexesEveryDocument(t *testing.T) {
	// Given: two extractable documents
	f := newPipelineFixture(t, &fakeExtractor{pages: map[string][]extract.Page{
		"manual.pdf": twoPages(),
		"sop.docx":   {{Number: 1, Text: pageText}},
	}})
	f.writeFile(t, "manual.pdf")
	f.writeFile(t, "sop.docx")
	obs := &recordingObserver{}

	// When: running
	res, err := f.pipeline.Run(context.Background(), obs)

	// Then: both are indexed and cataloged
	require.NoError(t, err)
	assert.Equal(t, 2, res.Total)
	assert.Equal(t, 2, res.Processed)
	assert.Equal(t, 0, res.Failed)
	assert.Equal(t, 3, res.Chunks)
	assert.Equal(t, 2, obs.total)
	assert.Equal(t, []string{"manual.pdf", "sop.docx"}, obs.docs)

	doc, err := f.catalog.Get(context.Background(), "manual.pdf")
	require.NoError(t, err)
	assert.Equal(t, store.StatusIndexed, doc.Status)
	assert.Equal(t, 2, doc.Pages)
	assert.Equal(t, 2, doc.Chunks)
	assert.Equal(t, int64(len("binary")), doc.Size)

	assert.Equal(t, []string{"manual.pdf_1_0", "manual.pdf_2_0", "sop.docx_1_0"}, mustIDs(t, f.keywords))
	assert.Equal(t, 3, f.vectors.Count())
}

func TestPipeline_ExtractionFailureDoesNotAbortRun(t *testing.T) {
	// Given: one good document and one the extractor rejects
	f := newPipelineFixture(t, &fakeExtractor{pages: map[string][]extract.Page{
		"good.pdf": twoPages(),
	}})
	f.writeFile(t, "bad.pdf")
	f.writeFile(t, "good.pdf")

	// When: running
	res, err := f.pipeline.Run(context.Background(), nil)

	// Then: the failure is recorded and the good document indexed
	require.NoError(t, err)
	assert.Equal(t, 2, res.Processed)
	assert.Equal(t, 1, res.Failed)

	bad, err := f.catalog.Get(context.Background(), "bad.pdf")
	require.NoError(t, err)
	assert.Equal(t, store.StatusFailed, bad.Status)
	assert.Contains(t, bad.LastError, "corrupt")

	good, err := f.catalog.Get(context.Background(), "good.pdf")
	require.NoError(t, err)
	assert.Equal(t, store.StatusIndexed, good.Status)
}

func TestPipeline_RerunRemovesStaleDocuments(t *testing.T) {
	// Given: two indexed documents
	f := newPipelineFixture(t, &fakeExtractor{pages: map[string][]extract.Page{
		"a.pdf": twoPages(),
		"b.pdf": {{Number: 1, Text: pageText}},
	}})
	f.writeFile(t, "a.pdf")
	f.writeFile(t, "b.pdf")
	_, err := f.pipeline.Run(context.Background(), nil)
	require.NoError(t, err)

	// When: one is deleted from disk and ingestion reruns
	require.NoError(t, os.Remove(filepath.Join(f.root, "a.pdf")))
	res, err := f.pipeline.Run(context.Background(), nil)

	// Then: its records and catalog row are gone
	require.NoError(t, err)
	assert.Equal(t, 1, res.Removed)
	assert.Equal(t, []string{"b.pdf_1_0"}, mustIDs(t, f.keywords))
	assert.Equal(t, []string{"b.pdf_1_0"}, mustIDs(t, f.vectors))
	_, err = f.catalog.Get(context.Background(), "a.pdf")
	assert.ErrorIs(t, err, store.ErrDocumentNotFound)
}

func TestPipeline_ReindexDropsVanishedChunks(t *testing.T) {
	// Given: a two-page document already indexed
	ext := &fakeExtractor{pages: map[string][]extract.Page{"a.pdf": twoPages()}}
	f := newPipelineFixture(t, ext)
	f.writeFile(t, "a.pdf")
	_, err := f.pipeline.IndexDocument(context.Background(), "a.pdf")
	require.NoError(t, err)

	// When: the document shrinks to one page and is reindexed
	ext.pages["a.pdf"] = twoPages()[:1]
	res, err := f.pipeline.IndexDocument(context.Background(), "a.pdf")

	// Then: page 2's chunk no longer exists
	require.NoError(t, err)
	assert.Equal(t, 1, res.Written)
	assert.Equal(t, []string{"a.pdf_1_0"}, mustIDs(t, f.keywords))
	assert.Equal(t, []string{"a.pdf_1_0"}, mustIDs(t, f.vectors))
}

func TestPipeline_RunStopsWhenCancelled(t *testing.T) {
	// Given: a document and a cancelled context
	f := newPipelineFixture(t, &fakeExtractor{pages: map[string][]extract.Page{"a.pdf": twoPages()}})
	f.writeFile(t, "a.pdf")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// When: running
	res, err := f.pipeline.Run(ctx, nil)

	// Then: nothing is processed
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, res.Processed)
}

func TestPipeline_RemoveDocument(t *testing.T) {
	// Given: an indexed document
	f := newPipelineFixture(t, &fakeExtractor{pages: map[string][]extract.Page{"a.pdf": twoPages()}})
	f.writeFile(t, "a.pdf")
	_, err := f.pipeline.IndexDocument(context.Background(), "a.pdf")
	require.NoError(t, err)

	// When: removing it
	require.NoError(t, f.pipeline.RemoveDocument(context.Background(), "a.pdf"))

	// Then: both stores and the catalog forget it
	assert.Equal(t, 0, f.keywords.Count())
	assert.Equal(t, 0, f.vectors.Count())
	docs, err := f.catalog.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, docs)
}

// cancellingEmbedder cancels the run after its first call and records
// whether that call's context was still live.
type cancellingEmbedder struct {
	fakeEmbedder
	cancel  context.CancelFunc
	liveCtx bool
}

func (e *cancellingEmbedder) EmbedPassages(ctx context.Context, texts []string) ([][]float32, error) {
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
		e.liveCtx = ctx.Err() == nil
	}
	return e.fakeEmbedder.EmbedPassages(ctx, texts)
}

func TestPipeline_StopMidDocumentKeepsPreviousRecords(t *testing.T) {
	// Given: a two-page document indexed with one chunk per batch
	ext := &fakeExtractor{pages: map[string][]extract.Page{"a.pdf": twoPages()}}
	f := newPipelineFixture(t, ext)
	embedder := &cancellingEmbedder{}
	writer := NewWriter(embedder, f.vectors, f.keywords, WriterConfig{
		BatchSize:  1,
		RetryDelay: time.Millisecond,
		Logger:     quietLogger(),
	})
	p, err := NewPipeline(PipelineConfig{
		Root:      f.root,
		Extractor: ext,
		Chunker:   chunk.New(chunk.Options{}),
		Writer:    writer,
		Catalog:   f.catalog,
		Logger:    quietLogger(),
	})
	require.NoError(t, err)
	f.writeFile(t, "a.pdf")
	_, err = p.Run(context.Background(), nil)
	require.NoError(t, err)

	// When: the run is stopped while the first batch of a rerun is embedded
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	embedder.cancel = cancel
	res, err := p.Run(ctx, nil)

	// Then: that batch completed, the next was skipped and both chunks remain
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, res.Processed)
	assert.True(t, embedder.liveCtx)
	assert.Equal(t, []string{"a.pdf_1_0", "a.pdf_2_0"}, mustIDs(t, f.keywords))
	assert.Equal(t, []string{"a.pdf_1_0", "a.pdf_2_0"}, mustIDs(t, f.vectors))
	doc, err := f.catalog.Get(context.Background(), "a.pdf")
	require.NoError(t, err)
	assert.Equal(t, store.StatusPending, doc.Status)
}

func TestStaleIDs(t *testing.T) {
	chunks := []*chunk.Chunk{{ID: "a.pdf_1_0"}, {ID: "a.pdf_1_1"}}

	assert.Equal(t, []string{"a.pdf_2_0"}, staleIDs([]string{"a.pdf_1_0", "a.pdf_2_0"}, chunks))
	assert.Empty(t, staleIDs(nil, chunks))
}
