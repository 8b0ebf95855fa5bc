package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/Aman-CERP/docrag/internal/ingest"
	"github.com/Aman-CERP/docrag/internal/search"
)

// StatusInfo is the content of `docrag status`.
type StatusInfo struct {
	Collection   string `json:"collection"`
	DocumentsDir string `json:"documents_dir"`

	Documents search.DocumentSummary `json:"documents"`
	Ingestion ingest.Snapshot        `json:"ingestion"`

	// Storage sizes (in bytes)
	VectorSize  int64 `json:"vector_size"`
	KeywordSize int64 `json:"keyword_size"`
	CatalogSize int64 `json:"catalog_size"`
	TotalSize   int64 `json:"total_size"`

	KeywordBackend string `json:"keyword_backend"`
	EmbedderType   string `json:"embedder_type"`
	EmbedderModel  string `json:"embedder_model,omitempty"`
	Dimensions     int    `json:"dimensions"`
	Reranker       string `json:"reranker"` // "enabled" or "disabled"
	Enrichment     string `json:"enrichment"`
}

// StatusRenderer displays index status.
type StatusRenderer struct {
	out    io.Writer
	styles Styles
	now    func() time.Time
}

// NewStatusRenderer creates a status renderer.
func NewStatusRenderer(out io.Writer, noColor bool) *StatusRenderer {
	return &StatusRenderer{
		out:    out,
		styles: GetStyles(noColor),
		now:    time.Now,
	}
}

// Render displays status info to terminal.
func (r *StatusRenderer) Render(info StatusInfo) error {
	_, _ = fmt.Fprintf(r.out, "%s\n\n", r.styles.Header.Render("Index Status: "+info.Collection))
	_, _ = fmt.Fprintf(r.out, "  Folder:       %s\n", info.DocumentsDir)

	d := info.Documents
	_, _ = fmt.Fprintf(r.out, "  Documents:    %d (%d indexed, %d pending, %s)\n",
		d.Total, d.Indexed, d.Pending, r.renderCount(d.Failed, "failed"))
	_, _ = fmt.Fprintf(r.out, "  Pages:        %d\n", d.Pages)
	_, _ = fmt.Fprintf(r.out, "  Chunks:       %d\n", d.Chunks)
	_, _ = fmt.Fprintln(r.out)

	s := info.Ingestion
	_, _ = fmt.Fprintln(r.out, "  Ingestion:")
	_, _ = fmt.Fprintf(r.out, "    State:  %s\n", r.renderState(s.State))
	if s.State != ingest.StateIdle {
		_, _ = fmt.Fprintf(r.out, "    Run:    %s\n", s.RunID)
		_, _ = fmt.Fprintf(r.out, "    Docs:   %d/%d (%.0f%%)\n", s.Processed, s.Total, s.ProgressPct())
		if !s.EndedAt.IsZero() {
			_, _ = fmt.Fprintf(r.out, "    Ended:  %s\n", formatAge(r.now(), s.EndedAt))
		}
		if s.LastError != "" {
			_, _ = fmt.Fprintf(r.out, "    Error:  %s\n", r.styles.Error.Render(s.LastError))
		}
	}
	_, _ = fmt.Fprintln(r.out)

	_, _ = fmt.Fprintln(r.out, "  Storage:")
	_, _ = fmt.Fprintf(r.out, "    Vectors:  %s\n", FormatBytes(info.VectorSize))
	_, _ = fmt.Fprintf(r.out, "    Keyword:  %s (%s)\n", FormatBytes(info.KeywordSize), info.KeywordBackend)
	_, _ = fmt.Fprintf(r.out, "    Catalog:  %s\n", FormatBytes(info.CatalogSize))
	_, _ = fmt.Fprintf(r.out, "    Total:    %s\n", FormatBytes(info.TotalSize))
	_, _ = fmt.Fprintln(r.out)

	_, _ = fmt.Fprintln(r.out, "  Models:")
	embedder := info.EmbedderType
	if info.EmbedderModel != "" {
		embedder += " " + info.EmbedderModel
	}
	_, _ = fmt.Fprintf(r.out, "    Embedder:   %s (%d dims)\n", embedder, info.Dimensions)
	_, _ = fmt.Fprintf(r.out, "    Reranker:   %s\n", info.Reranker)
	_, _ = fmt.Fprintf(r.out, "    Enrichment: %s\n", info.Enrichment)

	return nil
}

// RenderJSON outputs status as JSON.
func (r *StatusRenderer) RenderJSON(info StatusInfo) error {
	encoder := json.NewEncoder(r.out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(info)
}

func (r *StatusRenderer) renderState(state ingest.State) string {
	switch state {
	case ingest.StateRunning, ingest.StateCompleted:
		return r.styles.Success.Render(string(state))
	case ingest.StateStopped:
		return r.styles.Warning.Render(string(state))
	case ingest.StateError:
		return r.styles.Error.Render(string(state))
	default:
		return string(state)
	}
}

func (r *StatusRenderer) renderCount(n int, label string) string {
	text := fmt.Sprintf("%d %s", n, label)
	if n > 0 {
		return r.styles.Error.Render(text)
	}
	return text
}

// formatAge formats t relative to now.
func formatAge(now, t time.Time) string {
	diff := now.Sub(t)

	plural := func(n int, unit string) string {
		if n == 1 {
			return "1 " + unit + " ago"
		}
		return fmt.Sprintf("%d %ss ago", n, unit)
	}

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		return plural(int(diff.Minutes()), "minute")
	case diff < 24*time.Hour:
		return plural(int(diff.Hours()), "hour")
	case diff < 7*24*time.Hour:
		return plural(int(diff.Hours()/24), "day")
	default:
		return t.Format("2006-01-02 15:04")
	}
}

// FormatBytes formats bytes to human-readable format.
func FormatBytes(bytes int64) string {
	const (
		KB = 1024
		MB = 1024 * KB
		GB = 1024 * MB
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
