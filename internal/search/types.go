// Package search provides hybrid retrieval over the vector store and the
// keyword index. Candidates from both are merged by chunk identity and
// reranked with a cross-encoder when one is configured.
package search

import (
	"maps"

	"github.com/Aman-CERP/docrag/internal/store"
)

// Candidate is one search result. Candidates are copies; changing them
// never touches the index.
type Candidate struct {
	ID       string            `json:"id"`
	Filename string            `json:"filename"`
	Page     int               `json:"page"`
	Index    int               `json:"chunk"`
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata,omitempty"`

	// Source scores. Semantic is cosine similarity in [0,1]; Keyword is the
	// raw BM25 score. Nil when the store did not return the chunk.
	Semantic *float64 `json:"semantic_score,omitempty"`
	Keyword  *float64 `json:"keyword_score,omitempty"`

	// Rerank is the cross-encoder score, nil when reranking was skipped.
	Rerank *float64 `json:"rerank_score,omitempty"`

	// Score orders the results: the rerank score, else the fallback score.
	Score float64 `json:"score"`

	// HighlightedTerms are the query terms found in Text.
	HighlightedTerms []string `json:"highlighted_terms,omitempty"`
}

func newCandidate(r *store.Record) *Candidate {
	return &Candidate{
		ID:       r.ID,
		Filename: r.Filename,
		Page:     r.Page,
		Index:    r.Index,
		Text:     r.Text,
		Metadata: maps.Clone(r.Metadata),
	}
}

// DocumentSummary aggregates the catalog.
type DocumentSummary struct {
	Total   int `json:"total"`
	Indexed int `json:"indexed"`
	Pending int `json:"pending"`
	Failed  int `json:"failed"`
	Pages   int `json:"pages"`
	Chunks  int `json:"chunks"`
}

// Summarize counts docs by status.
func Summarize(docs []*store.DocumentInfo) DocumentSummary {
	var s DocumentSummary
	for _, d := range docs {
		s.Total++
		s.Pages += d.Pages
		s.Chunks += d.Chunks
		switch d.Status {
		case store.StatusIndexed:
			s.Indexed++
		case store.StatusPending:
			s.Pending++
		case store.StatusFailed:
			s.Failed++
		}
	}
	return s
}

// DocumentList is the result of Retriever.Documents.
type DocumentList struct {
	Documents []*store.DocumentInfo `json:"documents"`
	Summary   DocumentSummary       `json:"summary"`
}

func float64Ptr(v float64) *float64 {
	return &v
}
