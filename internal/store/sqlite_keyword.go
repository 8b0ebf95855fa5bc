package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
)

// SQLiteKeywordIndex implements KeywordIndex using SQLite FTS5 with bm25()
// ranking. Record text and metadata live in a companion table so hits are
// returned complete.
type SQLiteKeywordIndex struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	closed bool
}

var _ KeywordIndex = (*SQLiteKeywordIndex)(nil)

// NewSQLiteKeywordIndex opens or creates the index at path.
// If path is empty, creates an in-memory index for testing.
func NewSQLiteKeywordIndex(path string) (*SQLiteKeywordIndex, error) {
	db, err := openSQLite(path, "fts_content")
	if err != nil {
		return nil, err
	}

	idx := &SQLiteKeywordIndex{db: db, path: path}
	if err := idx.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return idx, nil
}

func (s *SQLiteKeywordIndex) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY
	);

	-- content holds the record's tokens joined by spaces
	CREATE VIRTUAL TABLE IF NOT EXISTS fts_content USING fts5(
		doc_id UNINDEXED,
		content,
		tokenize='unicode61'
	);

	CREATE TABLE IF NOT EXISTS records (
		id       TEXT PRIMARY KEY,
		filename TEXT NOT NULL,
		page     INTEGER NOT NULL,
		idx      INTEGER NOT NULL,
		text     TEXT NOT NULL,
		metadata TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_records_filename ON records(filename);

	INSERT OR IGNORE INTO schema_version (version) VALUES (1);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteKeywordIndex) errClosed() error {
	return fmt.Errorf("%w: keyword index is closed", ErrUnavailable)
}

// Upsert indexes records; an existing ID is replaced (delete + insert, since
// FTS5 has no REPLACE).
func (s *SQLiteKeywordIndex) Upsert(ctx context.Context, records []*Record) error {
	if len(records) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return s.errClosed()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	deleteStmt, err := tx.PrepareContext(ctx, `DELETE FROM fts_content WHERE doc_id = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare delete statement: %w", err)
	}
	defer deleteStmt.Close()

	insertStmt, err := tx.PrepareContext(ctx, `INSERT INTO fts_content(doc_id, content) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare FTS statement: %w", err)
	}
	defer insertStmt.Close()

	recordStmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO records(id, filename, page, idx, text, metadata) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare record statement: %w", err)
	}
	defer recordStmt.Close()

	for _, r := range records {
		meta, err := json.Marshal(r.Metadata)
		if err != nil {
			return fmt.Errorf("failed to encode metadata of %s: %w", r.ID, err)
		}
		if _, err := deleteStmt.ExecContext(ctx, r.ID); err != nil {
			return fmt.Errorf("failed to delete existing record %s: %w", r.ID, err)
		}
		if _, err := insertStmt.ExecContext(ctx, r.ID, strings.Join(r.Tokens, " ")); err != nil {
			return fmt.Errorf("failed to index record %s: %w", r.ID, err)
		}
		if _, err := recordStmt.ExecContext(ctx, r.ID, r.Filename, r.Page, r.Index, r.Text, string(meta)); err != nil {
			return fmt.Errorf("failed to store record %s: %w", r.ID, err)
		}
	}

	return tx.Commit()
}

// Search matches any of tokens (an FTS5 OR query) and ranks by BM25.
func (s *SQLiteKeywordIndex) Search(ctx context.Context, tokens []string, k int) ([]*Hit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, s.errClosed()
	}

	match := matchExpression(tokens)
	if match == "" || k <= 0 {
		return []*Hit{}, nil
	}

	// bm25() is negative, lower is better.
	query := `
		SELECT m.doc_id, m.score, r.filename, r.page, r.idx, r.text, r.metadata
		FROM (
			SELECT doc_id, bm25(fts_content) AS score
			FROM fts_content
			WHERE fts_content MATCH ?
			ORDER BY score
			LIMIT ?
		) m
		JOIN records r ON r.id = m.doc_id
		ORDER BY m.score, m.doc_id
	`
	rows, err := s.db.QueryContext(ctx, query, match, k)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	defer rows.Close()

	hits := []*Hit{}
	for rows.Next() {
		var (
			r     Record
			score float64
			meta  string
		)
		if err := rows.Scan(&r.ID, &score, &r.Filename, &r.Page, &r.Index, &r.Text, &meta); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		if err := json.Unmarshal([]byte(meta), &r.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode metadata of %s: %w", r.ID, err)
		}
		hits = append(hits, &Hit{Record: &r, Score: -score})
	}
	return hits, rows.Err()
}

// matchExpression quotes each token as an FTS5 string and ORs them.
func matchExpression(tokens []string) string {
	parts := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if t = strings.TrimSpace(t); t == "" {
			continue
		}
		parts = append(parts, `"`+strings.ReplaceAll(t, `"`, `""`)+`"`)
	}
	return strings.Join(parts, " OR ")
}

// Delete removes records by ID.
func (s *SQLiteKeywordIndex) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return s.errClosed()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := deleteIDs(ctx, tx, ids); err != nil {
		return err
	}
	return tx.Commit()
}

// DeleteByFilename removes every record of filename.
func (s *SQLiteKeywordIndex) DeleteByFilename(ctx context.Context, filename string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, s.errClosed()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, `SELECT id FROM records WHERE filename = ?`, filename)
	if err != nil {
		return 0, fmt.Errorf("failed to query records: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, fmt.Errorf("failed to scan ID: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	if err := deleteIDs(ctx, tx, ids); err != nil {
		return 0, err
	}
	return len(ids), tx.Commit()
}

func deleteIDs(ctx context.Context, tx *sql.Tx, ids []string) error {
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	inClause := strings.Join(placeholders, ",")

	ftsQuery := fmt.Sprintf("DELETE FROM fts_content WHERE doc_id IN (%s)", inClause)
	if _, err := tx.ExecContext(ctx, ftsQuery, args...); err != nil {
		return fmt.Errorf("failed to delete from FTS: %w", err)
	}
	recQuery := fmt.Sprintf("DELETE FROM records WHERE id IN (%s)", inClause)
	if _, err := tx.ExecContext(ctx, recQuery, args...); err != nil {
		return fmt.Errorf("failed to delete records: %w", err)
	}
	return nil
}

// IDs returns every record ID, sorted.
func (s *SQLiteKeywordIndex) IDs(ctx context.Context) ([]string, error) {
	return s.queryIDs(ctx, `SELECT id FROM records ORDER BY id`)
}

// FilenameIDs returns the record IDs of filename, sorted.
func (s *SQLiteKeywordIndex) FilenameIDs(ctx context.Context, filename string) ([]string, error) {
	return s.queryIDs(ctx, `SELECT id FROM records WHERE filename = ? ORDER BY id`, filename)
}

func (s *SQLiteKeywordIndex) queryIDs(ctx context.Context, query string, args ...any) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, s.errClosed()
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query IDs: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan ID: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Count returns the number of records.
func (s *SQLiteKeywordIndex) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0
	}

	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM records`).Scan(&count); err != nil {
		return 0
	}
	return count
}

// Save forces a WAL checkpoint.
func (s *SQLiteKeywordIndex) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return s.errClosed()
	}

	_, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return err
}

// Close checkpoints and closes the database. Idempotent.
func (s *SQLiteKeywordIndex) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true
	_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return s.db.Close()
}
