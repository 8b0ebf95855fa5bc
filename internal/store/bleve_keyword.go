package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/whitespace"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"
)

// tokensAnalyzerName analyzes content that is already tokenized.
const tokensAnalyzerName = "docrag_tokens"

// BleveKeywordIndex implements KeywordIndex with Bleve v2 (BM25-style
// scoring). Single process only: BoltDB holds an exclusive file lock.
type BleveKeywordIndex struct {
	mu     sync.RWMutex
	index  bleve.Index
	path   string
	closed bool
}

var _ KeywordIndex = (*BleveKeywordIndex)(nil)

// bleveDocument is the indexed form of a Record. Record carries the JSON
// encoded record and is stored but not indexed.
type bleveDocument struct {
	Content  string `json:"content"`
	Filename string `json:"filename"`
	Record   string `json:"record"`
}

type storedRecord struct {
	ID       string            `json:"id"`
	Filename string            `json:"filename"`
	Page     int               `json:"page"`
	Index    int               `json:"index"`
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// validateBleveIntegrity checks index_meta.json before opening.
func validateBleveIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	metaPath := filepath.Join(path, "index_meta.json")
	data, err := os.ReadFile(metaPath)
	if os.IsNotExist(err) {
		return fmt.Errorf("index_meta.json missing (corrupted index)")
	}
	if err != nil {
		return fmt.Errorf("cannot read index_meta.json: %w", err)
	}
	if len(data) == 0 {
		return fmt.Errorf("index_meta.json is empty (corrupted)")
	}
	var meta map[string]interface{}
	if err := json.Unmarshal(data, &meta); err != nil {
		return fmt.Errorf("index_meta.json is corrupt: %w", err)
	}
	return nil
}

// bleveOpenTimeout bounds the wait for the index lock of another process.
const bleveOpenTimeout = "5s"

// NewBleveKeywordIndex opens or creates the index at path.
// If path is empty, creates an in-memory index.
func NewBleveKeywordIndex(path string) (*BleveKeywordIndex, error) {
	indexMapping, err := createIndexMapping()
	if err != nil {
		return nil, fmt.Errorf("failed to create index mapping: %w", err)
	}

	var idx bleve.Index
	if path == "" {
		idx, err = bleve.NewMemOnly(indexMapping)
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}

		if validErr := validateBleveIntegrity(path); validErr != nil {
			slog.Warn("keyword_index_corrupted",
				slog.String("path", path),
				slog.String("error", validErr.Error()))
			if removeErr := os.RemoveAll(path); removeErr != nil {
				return nil, fmt.Errorf("keyword index corrupted at %s and cannot remove: %w (original error: %v)", path, removeErr, validErr)
			}
		}

		// BoltDB admits one process; fail instead of blocking on a held index.
		idx, err = bleve.OpenUsing(path, map[string]interface{}{"bolt_timeout": bleveOpenTimeout})
		if err == bleve.ErrorIndexPathDoesNotExist {
			idx, err = bleve.New(path, indexMapping)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create/open index: %w", err)
	}

	return &BleveKeywordIndex{index: idx, path: path}, nil
}

func createIndexMapping() (*mapping.IndexMappingImpl, error) {
	indexMapping := bleve.NewIndexMapping()

	err := indexMapping.AddCustomAnalyzer(tokensAnalyzerName, map[string]interface{}{
		"type":          custom.Name,
		"tokenizer":     whitespace.Name,
		"token_filters": []string{lowercase.Name},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add custom analyzer: %w", err)
	}

	content := bleve.NewTextFieldMapping()
	content.Analyzer = tokensAnalyzerName
	content.Store = false
	content.IncludeInAll = false

	filename := bleve.NewKeywordFieldMapping()
	filename.IncludeInAll = false

	record := bleve.NewTextFieldMapping()
	record.Index = false
	record.Store = true
	record.IncludeInAll = false

	doc := bleve.NewDocumentMapping()
	doc.AddFieldMappingsAt("content", content)
	doc.AddFieldMappingsAt("filename", filename)
	doc.AddFieldMappingsAt("record", record)

	indexMapping.DefaultMapping = doc
	indexMapping.DefaultAnalyzer = tokensAnalyzerName
	return indexMapping, nil
}

func (b *BleveKeywordIndex) errClosed() error {
	return fmt.Errorf("%w: keyword index is closed", ErrUnavailable)
}

// Upsert indexes records in one batch. Bleve replaces documents by ID.
func (b *BleveKeywordIndex) Upsert(ctx context.Context, records []*Record) error {
	if len(records) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return b.errClosed()
	}

	batch := b.index.NewBatch()
	for _, r := range records {
		raw, err := json.Marshal(storedRecord{
			ID: r.ID, Filename: r.Filename, Page: r.Page, Index: r.Index,
			Text: r.Text, Metadata: r.Metadata,
		})
		if err != nil {
			return fmt.Errorf("failed to encode record %s: %w", r.ID, err)
		}
		doc := bleveDocument{
			Content:  strings.Join(r.Tokens, " "),
			Filename: r.Filename,
			Record:   string(raw),
		}
		if err := batch.Index(r.ID, doc); err != nil {
			return fmt.Errorf("failed to index record %s: %w", r.ID, err)
		}
	}

	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to execute batch: %w", err)
	}
	return nil
}

// Search runs a disjunction of term queries over the content field.
func (b *BleveKeywordIndex) Search(ctx context.Context, tokens []string, k int) ([]*Hit, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, b.errClosed()
	}

	terms := make([]query.Query, 0, len(tokens))
	for _, t := range tokens {
		if t = strings.ToLower(strings.TrimSpace(t)); t == "" {
			continue
		}
		tq := bleve.NewTermQuery(t)
		tq.SetField("content")
		terms = append(terms, tq)
	}
	if len(terms) == 0 || k <= 0 {
		return []*Hit{}, nil
	}

	req := bleve.NewSearchRequest(bleve.NewDisjunctionQuery(terms...))
	req.Size = k
	req.Fields = []string{"record"}

	result, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	hits := make([]*Hit, 0, len(result.Hits))
	for _, h := range result.Hits {
		raw, _ := h.Fields["record"].(string)
		var sr storedRecord
		if err := json.Unmarshal([]byte(raw), &sr); err != nil {
			return nil, fmt.Errorf("failed to decode record %s: %w", h.ID, err)
		}
		hits = append(hits, &Hit{
			Record: &Record{
				ID: h.ID, Filename: sr.Filename, Page: sr.Page, Index: sr.Index,
				Text: sr.Text, Metadata: sr.Metadata,
			},
			Score: h.Score,
		})
	}
	return hits, nil
}

// Delete removes records by ID.
func (b *BleveKeywordIndex) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return b.errClosed()
	}
	return b.deleteLocked(ids)
}

func (b *BleveKeywordIndex) deleteLocked(ids []string) error {
	batch := b.index.NewBatch()
	for _, id := range ids {
		batch.Delete(id)
	}
	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to delete records: %w", err)
	}
	return nil
}

// DeleteByFilename removes every record of filename.
func (b *BleveKeywordIndex) DeleteByFilename(ctx context.Context, filename string) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return 0, b.errClosed()
	}

	ids, err := b.filenameIDsLocked(ctx, filename)
	if err != nil || len(ids) == 0 {
		return 0, err
	}
	if err := b.deleteLocked(ids); err != nil {
		return 0, err
	}
	return len(ids), nil
}

// FilenameIDs returns the record IDs of filename, sorted.
func (b *BleveKeywordIndex) FilenameIDs(ctx context.Context, filename string) ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, b.errClosed()
	}

	ids, err := b.filenameIDsLocked(ctx, filename)
	if err != nil {
		return nil, err
	}
	sort.Strings(ids)
	return ids, nil
}

func (b *BleveKeywordIndex) filenameIDsLocked(ctx context.Context, filename string) ([]string, error) {
	count, err := b.index.DocCount()
	if err != nil {
		return nil, fmt.Errorf("failed to count documents: %w", err)
	}
	if count == 0 {
		return []string{}, nil
	}

	tq := bleve.NewTermQuery(filename)
	tq.SetField("filename")
	req := bleve.NewSearchRequest(tq)
	req.Size = int(count)

	result, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to find records of %s: %w", filename, err)
	}
	ids := make([]string, len(result.Hits))
	for i, h := range result.Hits {
		ids[i] = h.ID
	}
	return ids, nil
}

// IDs returns every record ID, sorted.
func (b *BleveKeywordIndex) IDs(ctx context.Context) ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, b.errClosed()
	}

	count, err := b.index.DocCount()
	if err != nil {
		return nil, fmt.Errorf("failed to count documents: %w", err)
	}
	req := bleve.NewSearchRequest(bleve.NewMatchAllQuery())
	req.Size = int(count)

	result, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to search for all IDs: %w", err)
	}
	ids := make([]string, len(result.Hits))
	for i, h := range result.Hits {
		ids[i] = h.ID
	}
	sort.Strings(ids)
	return ids, nil
}

// Count returns the number of indexed records.
func (b *BleveKeywordIndex) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return 0
	}
	n, _ := b.index.DocCount()
	return int(n)
}

// Save is a no-op: Bleve persists on every batch.
func (b *BleveKeywordIndex) Save() error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return b.errClosed()
	}
	return nil
}

// Close closes the index. Idempotent.
func (b *BleveKeywordIndex) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	return b.index.Close()
}
