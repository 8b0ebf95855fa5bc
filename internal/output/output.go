// Package output formats docrag command results for the terminal.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/Aman-CERP/docrag/internal/search"
	"github.com/Aman-CERP/docrag/internal/store"
)

// DefaultSnippetRunes caps the text shown per search result.
const DefaultSnippetRunes = 240

// Writer provides formatted output for CLI.
type Writer struct {
	out     io.Writer
	snippet int
}

// New creates a new output Writer.
func New(out io.Writer) *Writer {
	return &Writer{out: out, snippet: DefaultSnippetRunes}
}

// Status prints a status message with an icon.
// Errors from writing are intentionally ignored for console output.
func (w *Writer) Status(icon, msg string) {
	if icon != "" {
		_, _ = fmt.Fprintf(w.out, "%s %s\n", icon, msg)
	} else {
		_, _ = fmt.Fprintf(w.out, "   %s\n", msg)
	}
}

// Statusf prints a formatted status message with an icon.
func (w *Writer) Statusf(icon, format string, args ...any) {
	w.Status(icon, fmt.Sprintf(format, args...))
}

// Success prints a success message with checkmark.
func (w *Writer) Success(msg string) {
	w.Status("✅", msg)
}

// Successf prints a formatted success message.
func (w *Writer) Successf(format string, args ...any) {
	w.Success(fmt.Sprintf(format, args...))
}

// Warning prints a warning message.
func (w *Writer) Warning(msg string) {
	w.Status("⚠️ ", msg)
}

// Warningf prints a formatted warning message.
func (w *Writer) Warningf(format string, args ...any) {
	w.Warning(fmt.Sprintf(format, args...))
}

// Error prints an error message.
func (w *Writer) Error(msg string) {
	w.Status("❌", msg)
}

// Errorf prints a formatted error message.
func (w *Writer) Errorf(format string, args ...any) {
	w.Error(fmt.Sprintf(format, args...))
}

// Code prints a block indented by two spaces.
func (w *Writer) Code(content string) {
	_, _ = fmt.Fprintln(w.out)
	for _, line := range strings.Split(content, "\n") {
		_, _ = fmt.Fprintf(w.out, "  %s\n", line)
	}
	_, _ = fmt.Fprintln(w.out)
}

// Newline prints an empty line.
func (w *Writer) Newline() {
	_, _ = fmt.Fprintln(w.out)
}

// JSON writes v as indented JSON.
func (w *Writer) JSON(v any) error {
	enc := json.NewEncoder(w.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// SearchResults prints ranked candidates, best first.
func (w *Writer) SearchResults(query string, results []search.Candidate) {
	if len(results) == 0 {
		w.Statusf("🔍", "No results for %q", query)
		return
	}

	w.Statusf("🔍", "%d results for %q", len(results), query)
	for i, r := range results {
		w.Newline()
		_, _ = fmt.Fprintf(w.out, "%d. %s (page %d, chunk %d)  score %.3f\n",
			i+1, r.Filename, r.Page, r.Index, r.Score)
		if sources := scoreSources(r); sources != "" {
			_, _ = fmt.Fprintf(w.out, "   %s\n", sources)
		}
		if len(r.HighlightedTerms) > 0 {
			_, _ = fmt.Fprintf(w.out, "   terms: %s\n", strings.Join(r.HighlightedTerms, ", "))
		}
		_, _ = fmt.Fprintf(w.out, "   %s\n", Snippet(r.Text, w.snippet))
	}
}

func scoreSources(r search.Candidate) string {
	var parts []string
	if r.Semantic != nil {
		parts = append(parts, fmt.Sprintf("semantic %.3f", *r.Semantic))
	}
	if r.Keyword != nil {
		parts = append(parts, fmt.Sprintf("keyword %.3f", *r.Keyword))
	}
	if r.Rerank != nil {
		parts = append(parts, fmt.Sprintf("rerank %.3f", *r.Rerank))
	}
	return strings.Join(parts, " · ")
}

// Documents prints the catalog as a table followed by its summary.
func (w *Writer) Documents(list *search.DocumentList) {
	if list == nil || len(list.Documents) == 0 {
		w.Status("📄", "No documents")
		return
	}

	rows := make([][]string, 0, len(list.Documents))
	for _, d := range list.Documents {
		rows = append(rows, []string{
			d.Filename,
			string(d.Status),
			strconv.Itoa(d.Pages),
			strconv.Itoa(d.Chunks),
			documentNote(d),
		})
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("FILE", "STATUS", "PAGES", "CHUNKS", "NOTE").
		Rows(rows...)
	_, _ = fmt.Fprintln(w.out, t.String())

	s := list.Summary
	_, _ = fmt.Fprintf(w.out, "%d documents: %d indexed, %d pending, %d failed (%d pages, %d chunks)\n",
		s.Total, s.Indexed, s.Pending, s.Failed, s.Pages, s.Chunks)
}

func documentNote(d *store.DocumentInfo) string {
	if d.Status == store.StatusFailed {
		return Snippet(d.LastError, 60)
	}
	if !d.IndexedAt.IsZero() {
		return "indexed " + d.IndexedAt.Format("2006-01-02 15:04")
	}
	return ""
}

// Snippet collapses whitespace in s and cuts it to maxRunes, marking the cut.
func Snippet(s string, maxRunes int) string {
	s = strings.Join(strings.Fields(s), " ")
	if maxRunes <= 0 || utf8.RuneCountInString(s) <= maxRunes {
		return s
	}
	runes := []rune(s)
	if maxRunes <= 3 {
		return string(runes[:maxRunes])
	}
	return string(runes[:maxRunes-3]) + "..."
}
