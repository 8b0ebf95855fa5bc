package chunk

import (
	"strconv"
	"strings"
	"time"

	"github.com/Aman-CERP/docrag/internal/extract"
)

// Chunk size defaults, in characters (runes).
const (
	DefaultSize         = 800
	DefaultOverlap      = 100
	DefaultMinPageChars = 50
)

// LanguageTable marks chunks cut from extracted tables.
const LanguageTable = "table"

// Chunk is an addressable unit of document text, the atom of indexing and
// retrieval.
type Chunk struct {
	ID         string // {filename}_{page}_{index}
	Filename   string // relative to the documents root
	Page       int    // 1-indexed
	TotalPages int
	Index      int // position within the page, from 0
	Language   string
	Text       string

	// Filled by the enricher, in first-seen order. Entities holds every
	// person and organization name as recognized.
	Entities []string
	Persons  []string
	Orgs     []string

	// File and pattern metadata (file_type, file_size, modified_at,
	// sheet_title, total_cells, jac_reg, jac_sgl, sop, procedure).
	Metadata map[string]string
}

// ID builds the stable chunk identity.
func ID(filename string, page, index int) string {
	return filename + "_" + strconv.Itoa(page) + "_" + strconv.Itoa(index)
}

// Fields flattens the chunk's attributes into the string map persisted next
// to its index records.
func (c *Chunk) Fields() map[string]string {
	out := make(map[string]string, len(c.Metadata)+8)
	for k, v := range c.Metadata {
		out[k] = v
	}
	out["filename"] = c.Filename
	out["page"] = strconv.Itoa(c.Page)
	out["total_pages"] = strconv.Itoa(c.TotalPages)
	out["chunk"] = strconv.Itoa(c.Index)
	out["lang"] = c.Language
	if len(c.Persons) > 0 {
		out["persons"] = strings.Join(c.Persons, ", ")
	}
	if len(c.Orgs) > 0 {
		out["orgs"] = strings.Join(c.Orgs, ", ")
	}
	if len(c.Entities) > 0 {
		out["entities"] = strings.Join(c.Entities, ", ")
	}
	return out
}

// Document is the chunker's input: the extracted pages of one file plus
// the file attributes copied onto every chunk.
type Document struct {
	Filename string
	Pages    []extract.Page
	FileType string // extension without the dot; derived from Filename when empty
	Size     int64
	ModTime  time.Time
}

// Options configures the chunker. Zero values select the defaults.
type Options struct {
	Size         int
	Overlap      int
	MinPageChars int
}

// DefaultOptions returns the default chunking options.
func DefaultOptions() Options {
	return Options{
		Size:         DefaultSize,
		Overlap:      DefaultOverlap,
		MinPageChars: DefaultMinPageChars,
	}
}
