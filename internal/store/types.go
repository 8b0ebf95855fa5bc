package store

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnavailable reports a closed or unreachable store. Writers treat it as
// fatal for an ingestion run.
var ErrUnavailable = errors.New("store unavailable")

// Record is one indexed chunk as persisted by the stores. Only the index
// writer creates records.
type Record struct {
	ID       string
	Filename string
	Page     int
	Index    int // chunk index within the page
	Text     string

	// Vector is set for vector store writes and never returned by searches.
	Vector []float32

	// Tokens is the keyword tokenizer output for Text.
	Tokens []string

	Metadata map[string]string
}

// Hit is a search result. Record is a copy owned by the caller.
type Hit struct {
	Record *Record
	Score  float64
}

// VectorStore provides semantic search over chunk embeddings.
type VectorStore interface {
	// Upsert inserts records, replacing any record with the same ID.
	Upsert(ctx context.Context, records []*Record) error

	// Search returns up to k records nearest to vector, best first.
	Search(ctx context.Context, vector []float32, k int) ([]*Hit, error)

	// Delete removes records by ID. Unknown IDs are ignored.
	Delete(ctx context.Context, ids []string) error

	// DeleteByFilename removes every record of a document and returns how
	// many were removed.
	DeleteByFilename(ctx context.Context, filename string) (int, error)

	// FilenameIDs returns the record IDs of one document, sorted.
	FilenameIDs(ctx context.Context, filename string) ([]string, error)

	// IDs returns every record ID, sorted.
	IDs(ctx context.Context) ([]string, error)

	Count() int
	Save() error
	Close() error
}

// KeywordIndex provides BM25 keyword search over tokenized chunks.
type KeywordIndex interface {
	// Upsert indexes records by their Tokens, replacing any record with the
	// same ID.
	Upsert(ctx context.Context, records []*Record) error

	// Search returns up to k records matching any of tokens, best first.
	// Scores are positive and higher is better.
	Search(ctx context.Context, tokens []string, k int) ([]*Hit, error)

	Delete(ctx context.Context, ids []string) error
	DeleteByFilename(ctx context.Context, filename string) (int, error)
	FilenameIDs(ctx context.Context, filename string) ([]string, error)
	IDs(ctx context.Context) ([]string, error)

	Count() int
	Save() error
	Close() error
}

// ErrDimensionMismatch indicates vector dimension mismatch.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d (run 'docrag ingest' after changing the embedding model)", e.Expected, e.Got)
}

// clone returns a copy without the vector.
func (r *Record) clone() *Record {
	c := *r
	c.Vector = nil
	c.Tokens = nil
	if r.Metadata != nil {
		c.Metadata = make(map[string]string, len(r.Metadata))
		for k, v := range r.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}
