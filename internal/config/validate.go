package config

import (
	"fmt"
	"strings"
)

// Validate checks the configuration for values the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Paths.Documents == "" {
		return fmt.Errorf("paths.documents is required")
	}
	if c.Paths.Data == "" {
		return fmt.Errorf("paths.data is required")
	}

	ch := c.Chunking
	if ch.Size <= 0 {
		return fmt.Errorf("chunking.size must be positive, got %d", ch.Size)
	}
	if ch.Overlap < 0 || ch.Overlap >= ch.Size {
		return fmt.Errorf("chunking.overlap must be in [0, size), got %d", ch.Overlap)
	}
	if ch.MinPageChars < 0 {
		return fmt.Errorf("chunking.min_page_chars must be non-negative, got %d", ch.MinPageChars)
	}

	if c.Indexing.BatchSize <= 0 {
		return fmt.Errorf("indexing.batch_size must be positive, got %d", c.Indexing.BatchSize)
	}
	switch c.Indexing.Backend {
	case "sqlite", "bleve":
	default:
		return fmt.Errorf("indexing.backend must be 'sqlite' or 'bleve', got %q", c.Indexing.Backend)
	}
	if c.Indexing.CollectionName == "" || strings.ContainsAny(c.Indexing.CollectionName, `/\`) {
		return fmt.Errorf("indexing.collection_name must be a plain name, got %q", c.Indexing.CollectionName)
	}
	if len(c.Indexing.AllowedExtensions) == 0 {
		return fmt.Errorf("indexing.allowed_extensions must not be empty")
	}
	if c.Indexing.MaxUploadMB <= 0 {
		return fmt.Errorf("indexing.max_upload_mb must be positive, got %d", c.Indexing.MaxUploadMB)
	}

	switch c.Embeddings.Provider {
	case "static", "ollama":
	default:
		return fmt.Errorf("embeddings.provider must be 'static' or 'ollama', got %q", c.Embeddings.Provider)
	}
	if c.Embeddings.Dimensions <= 0 {
		return fmt.Errorf("embeddings.dimensions must be positive, got %d", c.Embeddings.Dimensions)
	}

	if c.Reranker.Enabled && c.Reranker.Endpoint == "" {
		return fmt.Errorf("reranker.endpoint is required when the reranker is enabled")
	}

	s := c.Search
	if !s.EnableSemantic && !s.EnableKeyword {
		return fmt.Errorf("at least one of search.enable_semantic and search.enable_keyword must be true")
	}
	if s.SemanticOverfetch < 1 || s.KeywordOverfetch < 1 {
		return fmt.Errorf("search overfetch ratios must be >= 1, got %.2f and %.2f", s.SemanticOverfetch, s.KeywordOverfetch)
	}
	if s.MaxResults <= 0 {
		return fmt.Errorf("search.max_results must be positive, got %d", s.MaxResults)
	}
	if s.DefaultResults <= 0 || s.DefaultResults > s.MaxResults {
		return fmt.Errorf("search.default_results must be in [1, max_results], got %d", s.DefaultResults)
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be 'debug', 'info', 'warn', or 'error', got %q", c.Logging.Level)
	}

	switch c.Server.Transport {
	case "stdio":
	default:
		return fmt.Errorf("server.transport must be 'stdio', got %q", c.Server.Transport)
	}

	return nil
}
