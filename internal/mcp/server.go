package mcp

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Aman-CERP/docrag/internal/files"
	"github.com/Aman-CERP/docrag/internal/ingest"
	"github.com/Aman-CERP/docrag/internal/search"
	"github.com/Aman-CERP/docrag/pkg/version"
)

// ServerName is the implementation name announced to clients.
const ServerName = "docrag"

const (
	defaultLogLines = 100
	maxLogLines     = 1000
)

// Searcher answers queries. search.Retriever implements it.
type Searcher interface {
	Search(ctx context.Context, query string, maxResults int) ([]search.Candidate, error)
	Documents(ctx context.Context) (*search.DocumentList, error)
}

// Ingestion controls the background run. ingest.Manager implements it.
type Ingestion interface {
	Start(ctx context.Context) (ingest.Snapshot, error)
	Stop(ctx context.Context) (ingest.Snapshot, error)
	Status() ingest.Snapshot
	GetRecent(n int) []string
}

// Files changes the documents folder. files.Service implements it.
type Files interface {
	Upload(ctx context.Context, name string, r io.Reader) (*files.Entry, error)
	Delete(ctx context.Context, name string) error
	CreateFolder(ctx context.Context, name string) error
	DeleteFolder(ctx context.Context, name string) error
	List(ctx context.Context) ([]files.Entry, error)
}

// Config wires a Server. Ingestion and Files are optional; their tools
// are registered only when set.
type Config struct {
	Searcher  Searcher
	Ingestion Ingestion
	Files     Files
	Logger    *slog.Logger
	Now       func() time.Time
}

// ToolInfo describes a registered tool.
type ToolInfo struct {
	Name        string
	Description string
}

// Server is the MCP server for docrag.
type Server struct {
	mcp       *mcp.Server
	searcher  Searcher
	ingestion Ingestion
	files     Files
	logger    *slog.Logger
	now       func() time.Time
	tools     []ToolInfo
}

// NewServer creates a server with its tools and resources registered.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Searcher == nil {
		return nil, errors.New("searcher is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	s := &Server{
		mcp: mcp.NewServer(&mcp.Implementation{
			Name:    ServerName,
			Version: version.Version,
		}, nil),
		searcher:  cfg.Searcher,
		ingestion: cfg.Ingestion,
		files:     cfg.Files,
		logger:    cfg.Logger,
		now:       cfg.Now,
	}
	s.registerTools()
	s.registerResources()
	return s, nil
}

// MCPServer returns the underlying SDK server.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// ListTools returns the registered tools in registration order.
func (s *Server) ListTools() []ToolInfo {
	return append([]ToolInfo(nil), s.tools...)
}

func addTool[In, Out any](s *Server, name, description string, h mcp.ToolHandlerFor[In, Out]) {
	mcp.AddTool(s.mcp, &mcp.Tool{Name: name, Description: description}, h)
	s.tools = append(s.tools, ToolInfo{Name: name, Description: description})
	s.logger.Debug("mcp_tool_registered", slog.String("name", name))
}

func (s *Server) registerTools() {
	addTool(s, "search_documents",
		"Hybrid semantic and keyword search over the indexed documents. Returns ranked passages with filename and page.",
		s.handleSearch)
	addTool(s, "list_documents",
		"List indexed documents with their status, page and chunk counts.",
		s.handleListDocuments)

	if s.ingestion != nil {
		addTool(s, "ingestion_start",
			"Start a full reingest of the documents folder in the background. Fails if a run is already active.",
			s.handleIngestStart)
		addTool(s, "ingestion_stop",
			"Stop the active ingestion run after its current batch.",
			s.handleIngestStop)
		addTool(s, "ingestion_status",
			"Report the state and progress of the current or last ingestion run.",
			s.handleIngestStatus)
		addTool(s, "ingestion_logs",
			"Return the most recent log lines, oldest first.",
			s.handleLogs)
	}

	if s.files != nil {
		addTool(s, "list_files",
			"List documents and folders in the documents folder.",
			s.handleListFiles)
		addTool(s, "upload_document",
			"Add or replace a document. Refused while ingestion is running.",
			s.handleUpload)
		addTool(s, "delete_document",
			"Delete a document and its index entries. Refused while ingestion is running.",
			s.handleDelete)
		addTool(s, "create_folder",
			"Create a folder in the documents folder. Refused while ingestion is running.",
			s.handleCreateFolder)
		addTool(s, "delete_folder",
			"Delete a folder with its documents. Refused while ingestion is running.",
			s.handleDeleteFolder)
	}

	s.logger.Info("mcp_tools_registered", slog.Int("count", len(s.tools)))
}

func (s *Server) handleSearch(ctx context.Context, _ *mcp.CallToolRequest, input SearchInput) (
	*mcp.CallToolResult,
	SearchOutput,
	error,
) {
	query := strings.TrimSpace(input.Query)
	if query == "" {
		return nil, SearchOutput{}, NewInvalidParamsError("query is required")
	}

	start := s.now()
	requestID := generateRequestID()
	candidates, err := s.searcher.Search(ctx, query, input.MaxResults)
	if err != nil {
		s.logger.Warn("mcp_search_failed",
			slog.String("request_id", requestID),
			slog.String("error", err.Error()))
		return nil, SearchOutput{}, MapError(err)
	}

	out := SearchOutput{Query: query, Results: make([]SearchResult, 0, len(candidates))}
	for _, c := range candidates {
		out.Results = append(out.Results, toSearchResult(c))
	}

	s.logger.Info("mcp_search",
		slog.String("request_id", requestID),
		slog.Int("results", len(out.Results)),
		slog.Duration("duration", s.now().Sub(start)))
	return nil, out, nil
}

func (s *Server) handleListDocuments(ctx context.Context, _ *mcp.CallToolRequest, _ EmptyInput) (
	*mcp.CallToolResult,
	DocumentsOutput,
	error,
) {
	list, err := s.searcher.Documents(ctx)
	if err != nil {
		return nil, DocumentsOutput{}, MapError(err)
	}
	return nil, toDocumentsOutput(list), nil
}

func (s *Server) handleIngestStart(ctx context.Context, _ *mcp.CallToolRequest, _ EmptyInput) (
	*mcp.CallToolResult,
	StatusOutput,
	error,
) {
	snap, err := s.ingestion.Start(ctx)
	if err != nil {
		return nil, StatusOutput{}, MapError(err)
	}
	return nil, toStatusOutput(snap, s.now()), nil
}

func (s *Server) handleIngestStop(ctx context.Context, _ *mcp.CallToolRequest, _ EmptyInput) (
	*mcp.CallToolResult,
	StatusOutput,
	error,
) {
	snap, err := s.ingestion.Stop(ctx)
	if err != nil {
		return nil, StatusOutput{}, MapError(err)
	}
	return nil, toStatusOutput(snap, s.now()), nil
}

func (s *Server) handleIngestStatus(_ context.Context, _ *mcp.CallToolRequest, _ EmptyInput) (
	*mcp.CallToolResult,
	StatusOutput,
	error,
) {
	return nil, toStatusOutput(s.ingestion.Status(), s.now()), nil
}

func (s *Server) handleLogs(_ context.Context, _ *mcp.CallToolRequest, input LogsInput) (
	*mcp.CallToolResult,
	LogsOutput,
	error,
) {
	n := input.Lines
	switch {
	case n <= 0:
		n = defaultLogLines
	case n > maxLogLines:
		n = maxLogLines
	}
	lines := s.ingestion.GetRecent(n)
	if lines == nil {
		lines = []string{}
	}
	return nil, LogsOutput{Lines: lines}, nil
}

func (s *Server) handleListFiles(ctx context.Context, _ *mcp.CallToolRequest, _ EmptyInput) (
	*mcp.CallToolResult,
	FilesOutput,
	error,
) {
	entries, err := s.files.List(ctx)
	if err != nil {
		return nil, FilesOutput{}, MapError(err)
	}
	return nil, toFilesOutput(entries), nil
}

func (s *Server) handleUpload(ctx context.Context, _ *mcp.CallToolRequest, input UploadInput) (
	*mcp.CallToolResult,
	FileOutput,
	error,
) {
	data, err := base64.StdEncoding.DecodeString(input.ContentBase64)
	if err != nil {
		return nil, FileOutput{}, NewInvalidParamsError(fmt.Sprintf("content_base64 is not valid base64: %v", err))
	}
	entry, err := s.files.Upload(ctx, input.Path, bytes.NewReader(data))
	if err != nil {
		return nil, FileOutput{}, MapError(err)
	}
	return nil, FileOutput{Path: entry.Name, Size: entry.Size, OK: true}, nil
}

func (s *Server) handleDelete(ctx context.Context, _ *mcp.CallToolRequest, input PathInput) (
	*mcp.CallToolResult,
	FileOutput,
	error,
) {
	return s.mutate(input.Path, func() error { return s.files.Delete(ctx, input.Path) })
}

func (s *Server) handleCreateFolder(ctx context.Context, _ *mcp.CallToolRequest, input PathInput) (
	*mcp.CallToolResult,
	FileOutput,
	error,
) {
	return s.mutate(input.Path, func() error { return s.files.CreateFolder(ctx, input.Path) })
}

func (s *Server) handleDeleteFolder(ctx context.Context, _ *mcp.CallToolRequest, input PathInput) (
	*mcp.CallToolResult,
	FileOutput,
	error,
) {
	return s.mutate(input.Path, func() error { return s.files.DeleteFolder(ctx, input.Path) })
}

func (s *Server) mutate(path string, fn func() error) (*mcp.CallToolResult, FileOutput, error) {
	if err := fn(); err != nil {
		return nil, FileOutput{}, MapError(err)
	}
	return nil, FileOutput{Path: path, OK: true}, nil
}

// Serve runs the server on the given transport until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, transport string) error {
	s.logger.Info("mcp_server_starting", slog.String("transport", transport))

	switch transport {
	case "stdio":
		err := s.mcp.Run(ctx, &mcp.StdioTransport{})
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("mcp_server_stopped", slog.String("error", err.Error()))
			return err
		}
		s.logger.Info("mcp_server_stopped")
		return nil
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio)", transport)
	}
}

// generateRequestID creates a short ID for log correlation.
func generateRequestID() string {
	return uuid.NewString()[:8]
}
