package extract

import (
	"context"
	"strings"
)

// DOCX extracts Word documents. A document has no fixed pages, so it is cut
// into pages at tables: the text before a table is one page and every table
// is a page of its own.
type DOCX struct{}

var _ Extractor = (*DOCX)(nil)

// NewDOCX creates a DOCX extractor.
func NewDOCX() *DOCX {
	return &DOCX{}
}

// Extract implements Extractor.
func (d *DOCX) Extract(ctx context.Context, path string) ([]Page, error) {
	pkg, err := openPackage(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = pkg.Close() }()

	r, err := pkg.open("word/document.xml")
	if err != nil {
		return nil, err
	}
	defer func() { _ = r.Close() }()

	segs, err := scanBody(r)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var pages []Page
	for _, s := range segs {
		if s.isTable() {
			pages = append(pages, Page{Number: len(pages) + 1, Tables: []Table{s.table}})
			continue
		}
		if strings.TrimSpace(s.text) == "" {
			continue
		}
		pages = append(pages, Page{Number: len(pages) + 1, Text: strings.TrimSpace(s.text)})
	}
	return pages, nil
}
