package mcp

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Resource URIs.
const (
	DocumentsURI       = "docrag://documents"
	IngestionStatusURI = "docrag://ingestion/status"
)

func (s *Server) registerResources() {
	s.mcp.AddResource(&mcp.Resource{
		Name:        "documents",
		URI:         DocumentsURI,
		Description: "Indexed documents with status and counts",
		MIMEType:    "application/json",
	}, s.readDocuments)

	if s.ingestion != nil {
		s.mcp.AddResource(&mcp.Resource{
			Name:        "ingestion_status",
			URI:         IngestionStatusURI,
			Description: "State and progress of the current or last ingestion run",
			MIMEType:    "application/json",
		}, s.readIngestionStatus)
	}
}

func (s *Server) readDocuments(ctx context.Context, _ *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	list, err := s.searcher.Documents(ctx)
	if err != nil {
		return nil, MapError(err)
	}
	return jsonResource(DocumentsURI, toDocumentsOutput(list))
}

func (s *Server) readIngestionStatus(_ context.Context, _ *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	return jsonResource(IngestionStatusURI, toStatusOutput(s.ingestion.Status(), s.now()))
}

func jsonResource(uri string, v any) (*mcp.ReadResourceResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, MapError(err)
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}
