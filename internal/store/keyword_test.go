package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func record(id, filename string, page, index int, text string) *Record {
	return &Record{
		ID:       id,
		Filename: filename,
		Page:     page,
		Index:    index,
		Text:     text,
		Tokens:   Tokenize(text),
		Metadata: map[string]string{"lang": "en", "filename": filename},
	}
}

func sampleRecords() []*Record {
	return []*Record{
		record("a.pdf_1_0", "a.pdf", 1, 0, "Aircraft refuelling safety procedure"),
		record("a.pdf_2_0", "a.pdf", 2, 0, "Catering invoice totals"),
		record("b.pdf_1_0", "b.pdf", 1, 0, "Refuelling truck maintenance"),
	}
}

// keywordBackends runs a test against every KeywordIndex implementation.
func keywordBackends(t *testing.T, fn func(t *testing.T, idx KeywordIndex)) {
	backends := map[string]func() (KeywordIndex, error){
		"sqlite": func() (KeywordIndex, error) { return NewSQLiteKeywordIndex("") },
		"bleve":  func() (KeywordIndex, error) { return NewBleveKeywordIndex("") },
	}
	for name, open := range backends {
		t.Run(name, func(t *testing.T) {
			idx, err := open()
			require.NoError(t, err)
			defer idx.Close()
			fn(t, idx)
		})
	}
}

func ids(hits []*Hit) []string {
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.Record.ID
	}
	return out
}

func TestKeywordIndex_SearchMatchesAnyToken(t *testing.T) {
	keywordBackends(t, func(t *testing.T, idx KeywordIndex) {
		ctx := context.Background()
		require.NoError(t, idx.Upsert(ctx, sampleRecords()))

		// When: searching for one shared term
		hits, err := idx.Search(ctx, []string{"refuelling"}, 10)
		require.NoError(t, err)

		// Then: both documents containing it are returned with positive scores
		assert.ElementsMatch(t, []string{"a.pdf_1_0", "b.pdf_1_0"}, ids(hits))
		for _, h := range hits {
			assert.Greater(t, h.Score, 0.0)
		}

		// When: one term is unknown
		hits, err = idx.Search(ctx, []string{"catering", "zeppelin"}, 10)
		require.NoError(t, err)

		// Then: the other term still matches (OR semantics)
		require.Len(t, hits, 1)
		got := hits[0].Record
		assert.Equal(t, "a.pdf_2_0", got.ID)
		assert.Equal(t, "a.pdf", got.Filename)
		assert.Equal(t, 2, got.Page)
		assert.Equal(t, "Catering invoice totals", got.Text)
		assert.Equal(t, "en", got.Metadata["lang"])
	})
}

func TestKeywordIndex_RanksMoreMatchesFirst(t *testing.T) {
	keywordBackends(t, func(t *testing.T, idx KeywordIndex) {
		ctx := context.Background()
		require.NoError(t, idx.Upsert(ctx, sampleRecords()))

		hits, err := idx.Search(ctx, QueryTerms("refuelling safety refuelling"), 10)
		require.NoError(t, err)

		require.Len(t, hits, 2)
		assert.Equal(t, "a.pdf_1_0", hits[0].Record.ID)
		assert.Greater(t, hits[0].Score, hits[1].Score)

		hits, err = idx.Search(ctx, []string{"refuelling"}, 1)
		require.NoError(t, err)
		assert.Len(t, hits, 1)
	})
}

func TestKeywordIndex_UpsertReplaces(t *testing.T) {
	keywordBackends(t, func(t *testing.T, idx KeywordIndex) {
		ctx := context.Background()
		require.NoError(t, idx.Upsert(ctx, sampleRecords()))

		// When: the same ID is written again with new text
		require.NoError(t, idx.Upsert(ctx, []*Record{
			record("a.pdf_1_0", "a.pdf", 1, 0, "Fuel quality sampling"),
		}))

		// Then: no duplicate and the old terms are gone
		assert.Equal(t, 3, idx.Count())
		hits, err := idx.Search(ctx, []string{"aircraft"}, 10)
		require.NoError(t, err)
		assert.Empty(t, hits)
		hits, err = idx.Search(ctx, []string{"sampling"}, 10)
		require.NoError(t, err)
		assert.Equal(t, []string{"a.pdf_1_0"}, ids(hits))
	})
}

func TestKeywordIndex_Delete(t *testing.T) {
	keywordBackends(t, func(t *testing.T, idx KeywordIndex) {
		ctx := context.Background()
		require.NoError(t, idx.Upsert(ctx, sampleRecords()))

		require.NoError(t, idx.Delete(ctx, []string{"b.pdf_1_0", "missing"}))
		assert.Equal(t, 2, idx.Count())

		n, err := idx.DeleteByFilename(ctx, "a.pdf")
		require.NoError(t, err)
		assert.Equal(t, 2, n)
		assert.Equal(t, 0, idx.Count())

		n, err = idx.DeleteByFilename(ctx, "a.pdf")
		require.NoError(t, err)
		assert.Equal(t, 0, n)
	})
}

func TestKeywordIndex_EmptyQueryAndClosed(t *testing.T) {
	keywordBackends(t, func(t *testing.T, idx KeywordIndex) {
		ctx := context.Background()
		require.NoError(t, idx.Upsert(ctx, sampleRecords()))

		hits, err := idx.Search(ctx, nil, 10)
		require.NoError(t, err)
		assert.Empty(t, hits)

		require.NoError(t, idx.Close())
		require.NoError(t, idx.Close())

		_, err = idx.Search(ctx, []string{"refuelling"}, 10)
		assert.ErrorIs(t, err, ErrUnavailable)
		assert.ErrorIs(t, idx.Upsert(ctx, sampleRecords()), ErrUnavailable)
	})
}

func TestSQLiteKeywordIndex_Persists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kw.fts.db")
	ctx := context.Background()

	idx, err := NewSQLiteKeywordIndex(path)
	require.NoError(t, err)
	require.NoError(t, idx.Upsert(ctx, sampleRecords()))
	require.NoError(t, idx.Save())
	require.NoError(t, idx.Close())

	reopened, err := NewSQLiteKeywordIndex(path)
	require.NoError(t, err)
	defer reopened.Close()

	assert.Equal(t, 3, reopened.Count())
	hits, err := reopened.Search(ctx, []string{"truck"}, 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"b.pdf_1_0"}, ids(hits))
}

func TestMatchExpression(t *testing.T) {
	assert.Equal(t, `"fuel" OR "sa""fety"`, matchExpression([]string{"fuel", " ", `sa"fety`}))
	assert.Equal(t, "", matchExpression(nil))
}

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"jac", "reg", "12", "34", "fuel_check"}, Tokenize("JAC REG 12-34: Fuel_Check!"))
	assert.Equal(t, []string{"إجراء", "السلامة"}, Tokenize("إجراء السلامة."))
	assert.Empty(t, Tokenize(" -- "))
	assert.Equal(t, []string{"fuel", "safety"}, QueryTerms("Fuel safety FUEL"))
}

func TestFactory(t *testing.T) {
	b, err := ParseBackend("")
	require.NoError(t, err)
	assert.Equal(t, BackendSQLite, b)
	b, err = ParseBackend("bleve")
	require.NoError(t, err)
	assert.Equal(t, BackendBleve, b)
	_, err = ParseBackend("lucene")
	assert.Error(t, err)

	p := Paths{DataDir: "/data", Collection: "docs"}
	assert.Equal(t, "/data/docs.hnsw", p.Vectors())
	assert.Equal(t, "/data/docs.fts.db", p.Keywords(BackendSQLite))
	assert.Equal(t, "/data/docs.bleve", p.Keywords(BackendBleve))
	assert.Equal(t, "/data/catalog.db", p.Catalog())

	dir := t.TempDir()
	p = Paths{DataDir: dir}
	assert.Equal(t, Backend(""), DetectBackend(p))
	idx, err := NewKeywordIndex(BackendSQLite, p.Keywords(BackendSQLite))
	require.NoError(t, err)
	require.NoError(t, idx.Close())
	assert.Equal(t, BackendSQLite, DetectBackend(p))
}

func TestStores_IDs(t *testing.T) {
	ctx := context.Background()
	keywordBackends(t, func(t *testing.T, idx KeywordIndex) {
		require.NoError(t, idx.Upsert(ctx, sampleRecords()))
		got, err := idx.IDs(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"a.pdf_1_0", "a.pdf_2_0", "b.pdf_1_0"}, got)
	})

	vs := NewHNSWStore(HNSWConfig{})
	require.NoError(t, vs.Upsert(ctx, []*Record{vecRecord("z", "x.pdf", 1, 0), vecRecord("m", "x.pdf", 0, 1)}))
	got, err := vs.IDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"m", "z"}, got)
}
