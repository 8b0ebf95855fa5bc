// Package extract turns office documents into per-page plain text.
//
// It is the document-extraction collaborator of the ingestion pipeline.
// PDF goes through the pdftotext tool, XLSX/XLSM through excelize, and
// DOCX and PPTX are read directly from their Office Open XML packages.
package extract

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	docerrors "github.com/Aman-CERP/docrag/internal/errors"
)

// Table is a list of rows of cell texts.
type Table [][]string

// Page is one extracted unit of a document: a PDF page, a DOCX segment,
// a slide, or a spreadsheet sheet. Number is 1-based.
type Page struct {
	Number int
	Text   string
	Tables []Table

	// Spreadsheet pages only.
	SheetTitle string
	TotalCells int
}

// HasContent reports whether the page carries any text or table rows.
func (p Page) HasContent() bool {
	if strings.TrimSpace(p.Text) != "" {
		return true
	}
	for _, t := range p.Tables {
		if len(t) > 0 {
			return true
		}
	}
	return false
}

// Extractor extracts the pages of the document at path.
type Extractor interface {
	Extract(ctx context.Context, path string) ([]Page, error)
}

// Registry dispatches to a format Extractor by file extension.
type Registry struct {
	byExt map[string]Extractor
}

var _ Extractor = (*Registry)(nil)

// Option configures a Registry.
type Option func(*Registry)

// WithExtractor registers ex for the given extension (".pdf").
func WithExtractor(ext string, ex Extractor) Option {
	return func(r *Registry) {
		r.byExt[strings.ToLower(ext)] = ex
	}
}

// New returns a Registry covering every supported office format.
func New(opts ...Option) *Registry {
	spreadsheet := NewXLSX()
	r := &Registry{
		byExt: map[string]Extractor{
			".pdf":  NewPDF(),
			".docx": NewDOCX(),
			".pptx": NewPPTX(),
			".xlsx": spreadsheet,
			".xlsm": spreadsheet,
			".xls":  spreadsheet,
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Supported returns the registered extensions, sorted.
func (r *Registry) Supported() []string {
	exts := make([]string, 0, len(r.byExt))
	for ext := range r.byExt {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// Extract implements Extractor.
func (r *Registry) Extract(ctx context.Context, path string) ([]Page, error) {
	ext := strings.ToLower(filepath.Ext(path))
	ex, ok := r.byExt[ext]
	if !ok {
		return nil, docerrors.New(docerrors.ErrCodeUnsupportedType,
			fmt.Sprintf("unsupported file type: %s", ext), nil).
			WithDetail("path", path)
	}

	pages, err := ex.Extract(ctx, path)
	if err != nil {
		if _, ok := docerrors.As(err); ok {
			return nil, err
		}
		return nil, docerrors.New(docerrors.ErrCodeExtractFailed,
			fmt.Sprintf("failed to extract %s", filepath.Base(path)), err).
			WithDetail("path", path)
	}
	return pages, nil
}

// openError classifies a failure to open a document file.
func openError(path string, err error) *docerrors.DocError {
	name := filepath.Base(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return docerrors.New(docerrors.ErrCodeFileNotFound,
			fmt.Sprintf("file not found: %s", name), err).
			WithDetail("path", path)
	case errors.Is(err, fs.ErrPermission):
		return docerrors.New(docerrors.ErrCodeFilePermission,
			fmt.Sprintf("permission denied reading %s", name), err).
			WithDetail("path", path).
			WithSuggestion("Make the file readable by the user running docrag")
	default:
		return docerrors.New(docerrors.ErrCodeFileCorrupt,
			fmt.Sprintf("%s is not a readable Office Open XML file", name), err).
			WithDetail("path", path)
	}
}

// tableText renders a table as " | "-joined rows, skipping empty rows.
func tableText(t Table) string {
	lines := make([]string, 0, len(t))
	for _, row := range t {
		if strings.TrimSpace(strings.Join(row, "")) == "" {
			continue
		}
		lines = append(lines, strings.Join(row, " | "))
	}
	return strings.Join(lines, "\n")
}

// TableText renders a table the way it is indexed: "[TABLE]" on the first
// line, then one " | "-joined line per row. Returns "" for an empty table.
func TableText(t Table) string {
	body := tableText(t)
	if body == "" {
		return ""
	}
	return "[TABLE]\n" + body
}
