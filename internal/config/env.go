package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// applyEnvOverrides applies DOCRAG_* environment variables.
func (c *Config) applyEnvOverrides() error {
	if v := os.Getenv("DOCRAG_PATH_DOCUMENTS"); v != "" {
		c.Paths.Documents = v
	}
	if v := os.Getenv("DOCRAG_DATA_DIR"); v != "" {
		c.Paths.Data = v
	}
	if v := os.Getenv("DOCRAG_MAX_UPLOAD_SIZE_MB"); v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("DOCRAG_MAX_UPLOAD_SIZE_MB: %w", err)
		}
		c.Indexing.MaxUploadMB = n
	}
	if v := os.Getenv("DOCRAG_ALLOWED_FILE_TYPES"); v != "" {
		c.Indexing.AllowedExtensions = ParseExtensions(v)
	}
	if v := os.Getenv("DOCRAG_COLLECTION_NAME"); v != "" {
		c.Indexing.CollectionName = v
	}
	if v := os.Getenv("DOCRAG_BM25_BACKEND"); v != "" {
		c.Indexing.Backend = strings.ToLower(v)
	}
	if v := os.Getenv("DOCRAG_EMBEDDINGS_PROVIDER"); v != "" {
		c.Embeddings.Provider = strings.ToLower(v)
	}
	if v := os.Getenv("DOCRAG_EMBEDDINGS_MODEL"); v != "" {
		c.Embeddings.Model = v
	}
	if v := os.Getenv("DOCRAG_OLLAMA_HOST"); v != "" {
		c.Embeddings.OllamaHost = v
	}
	if v := os.Getenv("DOCRAG_RERANKER_URL"); v != "" {
		c.Reranker.Endpoint = v
		c.Reranker.Enabled = true
	}
	if v := os.Getenv("DOCRAG_NER_URL"); v != "" {
		c.Enrichment.Endpoint = v
	}
	if v := os.Getenv("DOCRAG_LOG_LEVEL"); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
	return nil
}

// ParseExtensions parses a comma-separated list like "pdf, .DOCX" into
// lower-case dotted extensions.
func ParseExtensions(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		ext := strings.ToLower(strings.TrimSpace(part))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		out = append(out, ext)
	}
	return out
}
