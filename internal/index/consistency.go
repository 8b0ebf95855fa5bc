package index

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Aman-CERP/docrag/internal/store"
)

// InconsistencyType categorizes detected issues.
type InconsistencyType int

const (
	// InconsistencyKeywordOnly is a record present only in the keyword index.
	InconsistencyKeywordOnly InconsistencyType = iota
	// InconsistencyVectorOnly is a record present only in the vector store.
	InconsistencyVectorOnly
)

// String returns the log name of the inconsistency type.
func (t InconsistencyType) String() string {
	switch t {
	case InconsistencyKeywordOnly:
		return "keyword_only"
	case InconsistencyVectorOnly:
		return "vector_only"
	default:
		return "unknown"
	}
}

// Inconsistency is one record missing from one of the two stores.
type Inconsistency struct {
	Type    InconsistencyType
	ChunkID string
}

// CheckResult contains the outcome of a consistency check.
type CheckResult struct {
	Checked         int // distinct IDs across both stores
	Inconsistencies []Inconsistency
	Duration        time.Duration
}

// Consistent reports whether both stores hold the same IDs.
func (r *CheckResult) Consistent() bool {
	return len(r.Inconsistencies) == 0
}

// ConsistencyChecker verifies that the keyword index and the vector store
// hold the same chunk IDs. A mismatch is left behind when a process dies
// between the two writes of a batch.
type ConsistencyChecker struct {
	vectors  store.VectorStore
	keywords store.KeywordIndex
	logger   *slog.Logger
}

// NewConsistencyChecker creates a checker over both stores.
func NewConsistencyChecker(vectors store.VectorStore, keywords store.KeywordIndex, logger *slog.Logger) *ConsistencyChecker {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConsistencyChecker{vectors: vectors, keywords: keywords, logger: logger}
}

// Check compares the ID sets of both stores.
func (c *ConsistencyChecker) Check(ctx context.Context) (*CheckResult, error) {
	start := time.Now()

	keywordIDs, err := c.keywords.IDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list keyword IDs: %w", err)
	}
	vectorIDs, err := c.vectors.IDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list vector IDs: %w", err)
	}

	vectorSet := make(map[string]bool, len(vectorIDs))
	for _, id := range vectorIDs {
		vectorSet[id] = true
	}
	keywordSet := make(map[string]bool, len(keywordIDs))
	for _, id := range keywordIDs {
		keywordSet[id] = true
	}

	var issues []Inconsistency
	for _, id := range keywordIDs {
		if !vectorSet[id] {
			issues = append(issues, Inconsistency{Type: InconsistencyKeywordOnly, ChunkID: id})
		}
	}
	checked := len(keywordIDs)
	for _, id := range vectorIDs {
		if !keywordSet[id] {
			issues = append(issues, Inconsistency{Type: InconsistencyVectorOnly, ChunkID: id})
			checked++
		}
	}

	return &CheckResult{
		Checked:         checked,
		Inconsistencies: issues,
		Duration:        time.Since(start),
	}, nil
}

// Repair deletes every half-written record from the store that holds it.
// The next ingestion rewrites the chunk in both stores.
func (c *ConsistencyChecker) Repair(ctx context.Context, issues []Inconsistency) error {
	var keywordOnly, vectorOnly []string
	for _, issue := range issues {
		switch issue.Type {
		case InconsistencyKeywordOnly:
			keywordOnly = append(keywordOnly, issue.ChunkID)
		case InconsistencyVectorOnly:
			vectorOnly = append(vectorOnly, issue.ChunkID)
		}
	}

	if len(keywordOnly) > 0 {
		if err := c.keywords.Delete(ctx, keywordOnly); err != nil {
			return fmt.Errorf("delete keyword-only records: %w", err)
		}
	}
	if len(vectorOnly) > 0 {
		if err := c.vectors.Delete(ctx, vectorOnly); err != nil {
			return fmt.Errorf("delete vector-only records: %w", err)
		}
	}

	if len(issues) > 0 {
		c.logger.Info("index_repaired",
			slog.Int("keyword_only", len(keywordOnly)),
			slog.Int("vector_only", len(vectorOnly)))
	}
	return nil
}

// QuickCheck compares record counts only.
func (c *ConsistencyChecker) QuickCheck() bool {
	kw, vec := c.keywords.Count(), c.vectors.Count()
	if kw != vec {
		c.logger.Debug("index_counts_mismatch",
			slog.Int("keyword", kw),
			slog.Int("vector", vec))
		return false
	}
	return true
}
