package store

import (
	"fmt"
	"os"
	"path/filepath"
)

// Backend names a keyword index implementation.
type Backend string

const (
	// BackendSQLite uses SQLite FTS5 (default). WAL mode allows readers in
	// other processes.
	BackendSQLite Backend = "sqlite"

	// BackendBleve uses Bleve v2. BoltDB locks the index to one process.
	BackendBleve Backend = "bleve"
)

// Paths locates the on-disk stores of one collection inside the data dir.
type Paths struct {
	DataDir    string
	Collection string
}

func (p Paths) base() string {
	name := p.Collection
	if name == "" {
		name = "documents"
	}
	return filepath.Join(p.DataDir, name)
}

// Vectors returns the HNSW graph file (its snapshot is Vectors()+".meta").
func (p Paths) Vectors() string { return p.base() + ".hnsw" }

// Keywords returns the keyword index location for backend.
func (p Paths) Keywords(backend Backend) string {
	if backend == BackendBleve {
		return p.base() + ".bleve"
	}
	return p.base() + ".fts.db"
}

// Catalog returns the document catalog database.
func (p Paths) Catalog() string { return filepath.Join(p.DataDir, "catalog.db") }

// ParseBackend validates a backend name; "" selects SQLite.
func ParseBackend(s string) (Backend, error) {
	switch Backend(s) {
	case BackendSQLite, "":
		return BackendSQLite, nil
	case BackendBleve:
		return BackendBleve, nil
	default:
		return "", fmt.Errorf("unknown keyword backend: %s (valid options: sqlite, bleve)", s)
	}
}

// NewKeywordIndex opens the keyword index of backend at path ("" for an
// in-memory index).
func NewKeywordIndex(backend Backend, path string) (KeywordIndex, error) {
	switch backend {
	case BackendSQLite, "":
		return NewSQLiteKeywordIndex(path)
	case BackendBleve:
		return NewBleveKeywordIndex(path)
	default:
		return nil, fmt.Errorf("unknown keyword backend: %s (valid options: sqlite, bleve)", backend)
	}
}

// DetectBackend reports which keyword backend already has data under p,
// or "" when none does.
func DetectBackend(p Paths) Backend {
	if info, err := os.Stat(p.Keywords(BackendSQLite)); err == nil && !info.IsDir() {
		return BackendSQLite
	}
	if info, err := os.Stat(p.Keywords(BackendBleve)); err == nil && info.IsDir() {
		return BackendBleve
	}
	return ""
}
