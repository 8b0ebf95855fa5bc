package mcp

import (
	"time"

	"github.com/Aman-CERP/docrag/internal/files"
	"github.com/Aman-CERP/docrag/internal/ingest"
	"github.com/Aman-CERP/docrag/internal/search"
)

// SearchInput defines the input schema for the search_documents tool.
type SearchInput struct {
	Query      string `json:"query" jsonschema:"the natural-language question or keywords"`
	MaxResults int    `json:"max_results,omitempty" jsonschema:"maximum number of results, default 10, at most 25"`
}

// SearchOutput defines the output schema for the search_documents tool.
type SearchOutput struct {
	Query   string         `json:"query"`
	Results []SearchResult `json:"results" jsonschema:"results ordered by descending score"`
}

// SearchResult is one ranked chunk.
type SearchResult struct {
	ID               string   `json:"id" jsonschema:"chunk id {filename}_{page}_{index}"`
	Filename         string   `json:"filename" jsonschema:"document path relative to the documents folder"`
	Page             int      `json:"page" jsonschema:"1-based page number"`
	Chunk            int      `json:"chunk" jsonschema:"chunk index within the page"`
	Text             string   `json:"text"`
	Score            float64  `json:"score"`
	RerankScore      *float64 `json:"rerank_score,omitempty" jsonschema:"cross-encoder score, absent when reranking was skipped"`
	SemanticScore    *float64 `json:"semantic_score,omitempty"`
	KeywordScore     *float64 `json:"keyword_score,omitempty"`
	HighlightedTerms []string `json:"highlighted_terms,omitempty" jsonschema:"query terms found in the text"`
}

func toSearchResult(c search.Candidate) SearchResult {
	return SearchResult{
		ID:               c.ID,
		Filename:         c.Filename,
		Page:             c.Page,
		Chunk:            c.Index,
		Text:             c.Text,
		Score:            c.Score,
		RerankScore:      c.Rerank,
		SemanticScore:    c.Semantic,
		KeywordScore:     c.Keyword,
		HighlightedTerms: c.HighlightedTerms,
	}
}

// DocumentsOutput defines the output schema for the list_documents tool.
// Times are RFC 3339 strings.
type DocumentsOutput struct {
	Documents []DocumentOutput      `json:"documents"`
	Summary   search.DocumentSummary `json:"summary"`
}

// DocumentOutput is one catalog entry.
type DocumentOutput struct {
	Filename   string `json:"filename"`
	Size       int64  `json:"size"`
	UploadedAt string `json:"uploaded_at"`
	Pages      int    `json:"pages"`
	Chunks     int    `json:"chunks"`
	Status     string `json:"status" jsonschema:"pending, indexed or failed"`
	LastError  string `json:"last_error,omitempty"`
	IndexedAt  string `json:"indexed_at,omitempty"`
}

func toDocumentsOutput(list *search.DocumentList) DocumentsOutput {
	out := DocumentsOutput{Documents: make([]DocumentOutput, 0, len(list.Documents)), Summary: list.Summary}
	for _, d := range list.Documents {
		out.Documents = append(out.Documents, DocumentOutput{
			Filename:   d.Filename,
			Size:       d.Size,
			UploadedAt: formatTime(d.UploadedAt),
			Pages:      d.Pages,
			Chunks:     d.Chunks,
			Status:     string(d.Status),
			LastError:  d.LastError,
			IndexedAt:  formatTime(d.IndexedAt),
		})
	}
	return out
}

// FilesOutput lists the documents folder.
type FilesOutput struct {
	Entries []FileEntry `json:"entries"`
}

// FileEntry is a document or folder.
type FileEntry struct {
	Path    string `json:"path"`
	Dir     bool   `json:"dir"`
	Size    int64  `json:"size"`
	ModTime string `json:"mod_time"`
}

func toFilesOutput(entries []files.Entry) FilesOutput {
	out := FilesOutput{Entries: make([]FileEntry, 0, len(entries))}
	for _, e := range entries {
		out.Entries = append(out.Entries, FileEntry{
			Path:    e.Name,
			Dir:     e.Dir,
			Size:    e.Size,
			ModTime: formatTime(e.ModTime),
		})
	}
	return out
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// EmptyInput is the input of tools without parameters.
type EmptyInput struct{}

// StatusOutput defines the output schema for the ingestion tools.
type StatusOutput struct {
	State          string  `json:"state" jsonschema:"idle, running, completed, error or stopped"`
	RunID          string  `json:"run_id,omitempty"`
	FileLock       bool    `json:"file_lock" jsonschema:"true while document changes are refused"`
	Total          int     `json:"total"`
	Processed      int     `json:"processed"`
	Failed         int     `json:"failed"`
	Removed        int     `json:"removed"`
	Chunks         int     `json:"chunks"`
	FailedChunks   int     `json:"failed_chunks" jsonschema:"chunks indexed without entities"`
	FailedBatches  int     `json:"failed_batches"`
	ProgressPct    float64 `json:"progress_pct"`
	LastFile       string  `json:"last_file,omitempty"`
	StartTime      string  `json:"start_time,omitempty" jsonschema:"RFC 3339"`
	EndTime        string  `json:"end_time,omitempty" jsonschema:"RFC 3339"`
	ElapsedSeconds int     `json:"elapsed_seconds"`
	LastError      string  `json:"last_error,omitempty"`
}

func toStatusOutput(s ingest.Snapshot, now time.Time) StatusOutput {
	out := StatusOutput{
		State:          string(s.State),
		RunID:          s.RunID,
		FileLock:       s.FileLock,
		Total:          s.Total,
		Processed:      s.Processed,
		Failed:         s.Failed,
		Removed:        s.Removed,
		Chunks:         s.Chunks,
		FailedChunks:   s.FailedChunks,
		FailedBatches:  s.FailedBatches,
		ProgressPct:    s.ProgressPct(),
		LastFile:       s.LastFile,
		ElapsedSeconds: int(s.Elapsed(now).Seconds()),
		LastError:      s.LastError,
	}
	out.StartTime = formatTime(s.StartedAt)
	out.EndTime = formatTime(s.EndedAt)
	return out
}

// LogsInput defines the input schema for the ingestion_logs tool.
type LogsInput struct {
	Lines int `json:"lines,omitempty" jsonschema:"number of recent log lines, default 100"`
}

// LogsOutput holds log lines, oldest first.
type LogsOutput struct {
	Lines []string `json:"lines"`
}

// PathInput names a document or folder relative to the documents folder.
type PathInput struct {
	Path string `json:"path" jsonschema:"path relative to the documents folder"`
}

// UploadInput defines the input schema for the upload_document tool.
type UploadInput struct {
	Path          string `json:"path" jsonschema:"destination path relative to the documents folder"`
	ContentBase64 string `json:"content_base64" jsonschema:"document bytes, base64 encoded"`
}

// FileOutput acknowledges a document folder change.
type FileOutput struct {
	Path string `json:"path"`
	Size int64  `json:"size,omitempty"`
	OK   bool   `json:"ok"`
}
