package index

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/docrag/internal/store"
)

func record(id string) *store.Record {
	return &store.Record{
		ID:       id,
		Filename: "a.pdf",
		Page:     1,
		Text:     "gate closure procedure",
		Vector:   []float32{1, 0.5, 0.25, 0.125},
		Tokens:   store.Tokenize("gate closure procedure"),
	}
}

func TestConsistencyChecker_DetectsAndRepairs(t *testing.T) {
	// Given: one shared record, one keyword-only and one vector-only
	ctx := context.Background()
	keywords, err := store.NewSQLiteKeywordIndex("")
	require.NoError(t, err)
	defer keywords.Close()
	vectors := store.NewHNSWStore(store.HNSWConfig{Dimensions: 4})

	require.NoError(t, keywords.Upsert(ctx, []*store.Record{record("a.pdf_1_0"), record("a.pdf_1_1")}))
	require.NoError(t, vectors.Upsert(ctx, []*store.Record{record("a.pdf_1_0"), record("a.pdf_1_2")}))

	checker := NewConsistencyChecker(vectors, keywords, quietLogger())
	assert.True(t, checker.QuickCheck(), "equal counts hide the mismatch")

	// When: checking
	res, err := checker.Check(ctx)

	// Then: both half-written records are reported
	require.NoError(t, err)
	assert.False(t, res.Consistent())
	assert.Equal(t, 3, res.Checked)
	assert.ElementsMatch(t, []Inconsistency{
		{Type: InconsistencyKeywordOnly, ChunkID: "a.pdf_1_1"},
		{Type: InconsistencyVectorOnly, ChunkID: "a.pdf_1_2"},
	}, res.Inconsistencies)

	// When: repairing
	require.NoError(t, checker.Repair(ctx, res.Inconsistencies))

	// Then: only the shared record remains
	res, err = checker.Check(ctx)
	require.NoError(t, err)
	assert.True(t, res.Consistent())
	assert.Equal(t, []string{"a.pdf_1_0"}, mustIDs(t, keywords))
	assert.Equal(t, []string{"a.pdf_1_0"}, mustIDs(t, vectors))
}

func TestConsistencyChecker_QuickCheckCounts(t *testing.T) {
	// Given: a record only in the keyword index
	ctx := context.Background()
	keywords, err := store.NewSQLiteKeywordIndex("")
	require.NoError(t, err)
	defer keywords.Close()
	require.NoError(t, keywords.Upsert(ctx, []*store.Record{record("a.pdf_1_0")}))

	// When / Then: counts differ
	checker := NewConsistencyChecker(store.NewHNSWStore(store.HNSWConfig{}), keywords, quietLogger())
	assert.False(t, checker.QuickCheck())
}

func TestInconsistencyType_String(t *testing.T) {
	assert.Equal(t, "keyword_only", InconsistencyKeywordOnly.String())
	assert.Equal(t, "vector_only", InconsistencyVectorOnly.String())
	assert.Equal(t, "unknown", InconsistencyType(9).String())
}
