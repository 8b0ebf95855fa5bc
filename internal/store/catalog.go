package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Status is a document's indexing status.
type Status string

const (
	StatusPending Status = "pending"
	StatusIndexed Status = "indexed"
	StatusFailed  Status = "failed"
)

// DocumentInfo is a catalog row.
type DocumentInfo struct {
	Filename   string    `json:"filename"`
	Size       int64     `json:"size"`
	UploadedAt time.Time `json:"uploaded_at"`
	Pages      int       `json:"pages"`
	Chunks     int       `json:"chunks"`
	Status     Status    `json:"status"`
	LastError  string    `json:"last_error,omitempty"`
	IndexedAt  time.Time `json:"indexed_at"` // zero until indexed
}

// ErrDocumentNotFound is returned by Catalog.Get for unknown filenames.
var ErrDocumentNotFound = errors.New("document not found")

// Catalog records every known document and its indexing status.
type Catalog struct {
	mu     sync.RWMutex
	db     *sql.DB
	closed bool
}

// OpenCatalog opens or creates the catalog at path ("" for in-memory).
func OpenCatalog(path string) (*Catalog, error) {
	db, err := openSQLite(path, "documents")
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`
	CREATE TABLE IF NOT EXISTS documents (
		filename    TEXT PRIMARY KEY,
		size        INTEGER NOT NULL DEFAULT 0,
		uploaded_at INTEGER NOT NULL,
		pages       INTEGER NOT NULL DEFAULT 0,
		chunks      INTEGER NOT NULL DEFAULT 0,
		status      TEXT NOT NULL,
		last_error  TEXT NOT NULL DEFAULT '',
		indexed_at  INTEGER NOT NULL DEFAULT 0
	);`)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &Catalog{db: db}, nil
}

func (c *Catalog) errClosed() error {
	return fmt.Errorf("%w: catalog is closed", ErrUnavailable)
}

// MarkPending registers a document (or resets a known one) as pending.
// The upload time is kept for known documents.
func (c *Catalog) MarkPending(ctx context.Context, filename string, size int64, at time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return c.errClosed()
	}

	_, err := c.db.ExecContext(ctx, `
		INSERT INTO documents (filename, size, uploaded_at, status)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(filename) DO UPDATE SET
			size = excluded.size,
			status = excluded.status,
			last_error = ''`,
		filename, size, at.UnixMilli(), string(StatusPending))
	if err != nil {
		return fmt.Errorf("failed to mark %s pending: %w", filename, err)
	}
	return nil
}

// MarkIndexed records a successful indexing.
func (c *Catalog) MarkIndexed(ctx context.Context, filename string, pages, chunks int, at time.Time) error {
	return c.finish(ctx, filename, StatusIndexed, pages, chunks, "", at)
}

// MarkFailed records a failed indexing with its cause.
func (c *Catalog) MarkFailed(ctx context.Context, filename string, cause error, at time.Time) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return c.finish(ctx, filename, StatusFailed, 0, 0, msg, at)
}

func (c *Catalog) finish(ctx context.Context, filename string, status Status, pages, chunks int, lastErr string, at time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return c.errClosed()
	}

	indexedAt := int64(0)
	if status == StatusIndexed {
		indexedAt = at.UnixMilli()
	}
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO documents (filename, uploaded_at, pages, chunks, status, last_error, indexed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(filename) DO UPDATE SET
			pages = excluded.pages,
			chunks = excluded.chunks,
			status = excluded.status,
			last_error = excluded.last_error,
			indexed_at = excluded.indexed_at`,
		filename, at.UnixMilli(), pages, chunks, string(status), lastErr, indexedAt)
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", filename, err)
	}
	return nil
}

// Remove deletes a document's row. Unknown filenames are ignored.
func (c *Catalog) Remove(ctx context.Context, filename string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return c.errClosed()
	}

	if _, err := c.db.ExecContext(ctx, `DELETE FROM documents WHERE filename = ?`, filename); err != nil {
		return fmt.Errorf("failed to remove %s: %w", filename, err)
	}
	return nil
}

// Get returns one document or ErrDocumentNotFound.
func (c *Catalog) Get(ctx context.Context, filename string) (*DocumentInfo, error) {
	docs, err := c.query(ctx, `WHERE filename = ?`, filename)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, ErrDocumentNotFound
	}
	return docs[0], nil
}

// List returns every document ordered by filename.
func (c *Catalog) List(ctx context.Context) ([]*DocumentInfo, error) {
	return c.query(ctx, `ORDER BY filename`)
}

func (c *Catalog) query(ctx context.Context, where string, args ...any) ([]*DocumentInfo, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return nil, c.errClosed()
	}

	rows, err := c.db.QueryContext(ctx, `
		SELECT filename, size, uploaded_at, pages, chunks, status, last_error, indexed_at
		FROM documents `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	docs := []*DocumentInfo{}
	for rows.Next() {
		var (
			d                 DocumentInfo
			uploaded, indexed int64
			status            string
		)
		if err := rows.Scan(&d.Filename, &d.Size, &uploaded, &d.Pages, &d.Chunks, &status, &d.LastError, &indexed); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		d.Status = Status(status)
		d.UploadedAt = time.UnixMilli(uploaded).UTC()
		if indexed != 0 {
			d.IndexedAt = time.UnixMilli(indexed).UTC()
		}
		docs = append(docs, &d)
	}
	return docs, rows.Err()
}

// Close closes the catalog. Idempotent.
func (c *Catalog) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	return c.db.Close()
}
