package extract

import (
	"context"
	"strings"
)

// PPTX extracts presentations, one page per slide. Slide text comes first,
// tables are attached to the slide's page.
type PPTX struct{}

var _ Extractor = (*PPTX)(nil)

// NewPPTX creates a PPTX extractor.
func NewPPTX() *PPTX {
	return &PPTX{}
}

// Extract implements Extractor.
func (p *PPTX) Extract(ctx context.Context, path string) ([]Page, error) {
	pkg, err := openPackage(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = pkg.Close() }()

	var pages []Page
	for i, name := range pkg.numbered("ppt/slides/slide") {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page, err := p.slide(pkg, name)
		if err != nil {
			return nil, err
		}
		page.Number = i + 1
		if page.HasContent() {
			pages = append(pages, page)
		}
	}
	return pages, nil
}

func (p *PPTX) slide(pkg *ooxmlPackage, name string) (Page, error) {
	r, err := pkg.open(name)
	if err != nil {
		return Page{}, err
	}
	defer func() { _ = r.Close() }()

	segs, err := scanBody(r)
	if err != nil {
		return Page{}, err
	}

	var (
		text strings.Builder
		page Page
	)
	for _, s := range segs {
		if s.isTable() {
			page.Tables = append(page.Tables, s.table)
			continue
		}
		text.WriteString(s.text)
	}
	page.Text = strings.TrimSpace(text.String())
	return page, nil
}
