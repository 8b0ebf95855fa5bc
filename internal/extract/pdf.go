package extract

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// ErrPDFToolNotFound is returned when pdftotext is not installed.
var ErrPDFToolNotFound = errors.New("pdftotext not found: install poppler-utils to index PDF files")

// CommandRunner runs an external command and returns its stdout.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// PDF extracts PDF pages with pdftotext. Pages are separated by form feeds
// in the tool's output.
type PDF struct {
	runner   CommandRunner
	lookPath func(string) (string, error)
}

var _ Extractor = (*PDF)(nil)

// PDFOption configures the PDF extractor.
type PDFOption func(*PDF)

// WithRunner replaces the command runner.
func WithRunner(r CommandRunner) PDFOption {
	return func(p *PDF) {
		p.runner = r
		p.lookPath = func(name string) (string, error) { return name, nil }
	}
}

// NewPDF creates a PDF extractor.
func NewPDF(opts ...PDFOption) *PDF {
	p := &PDF{runner: execRunner{}, lookPath: exec.LookPath}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Extract implements Extractor.
func (p *PDF) Extract(ctx context.Context, path string) ([]Page, error) {
	bin, err := p.lookPath("pdftotext")
	if err != nil {
		return nil, ErrPDFToolNotFound
	}

	out, err := p.runner.Run(ctx, bin, "-enc", "UTF-8", path, "-")
	if err != nil {
		return nil, fmt.Errorf("pdftotext failed: %w", err)
	}

	return splitPDFPages(string(out)), nil
}

// splitPDFPages splits pdftotext output on form feeds. Blank pages are
// dropped but keep their position in the numbering.
func splitPDFPages(out string) []Page {
	parts := strings.Split(out, "\f")
	// pdftotext terminates the last page with a form feed as well.
	if n := len(parts); n > 0 && strings.TrimSpace(parts[n-1]) == "" {
		parts = parts[:n-1]
	}

	pages := make([]Page, 0, len(parts))
	for i, text := range parts {
		if strings.TrimSpace(text) == "" {
			continue
		}
		pages = append(pages, Page{Number: i + 1, Text: text})
	}
	return pages
}
