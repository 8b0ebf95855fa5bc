// Package config loads docrag configuration.
//
// Precedence (lowest to highest):
//  1. Built-in defaults (NewConfig)
//  2. User config ($XDG_CONFIG_HOME/docrag/config.yaml)
//  3. Project config (.docrag.yaml in the project root)
//  4. Environment variables (DOCRAG_*)
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ProjectConfigName is the project-level config file name.
const ProjectConfigName = ".docrag.yaml"

// DataDirName is the per-project data directory name.
const DataDirName = ".docrag"

// Config is the complete docrag configuration.
type Config struct {
	Version    int              `yaml:"version" json:"version"`
	Paths      PathsConfig      `yaml:"paths" json:"paths"`
	Chunking   ChunkingConfig   `yaml:"chunking" json:"chunking"`
	Indexing   IndexingConfig   `yaml:"indexing" json:"indexing"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	Enrichment EnrichmentConfig `yaml:"enrichment" json:"enrichment"`
	Reranker   RerankerConfig   `yaml:"reranker" json:"reranker"`
	Search     SearchConfig     `yaml:"search" json:"search"`
	Logging    LoggingConfig    `yaml:"logging" json:"logging"`
	Server     ServerConfig     `yaml:"server" json:"server"`
	Watch      WatchConfig      `yaml:"watch" json:"watch"`

	// root is the project root the relative paths are resolved against.
	root string
}

// PathsConfig locates the document corpus and the index data.
// Relative paths resolve against the project root.
type PathsConfig struct {
	Documents string `yaml:"documents" json:"documents"`
	Data      string `yaml:"data" json:"data"`
}

// ChunkingConfig sizes chunks in characters (runes).
type ChunkingConfig struct {
	Size         int `yaml:"size" json:"size"`
	Overlap      int `yaml:"overlap" json:"overlap"`
	MinPageChars int `yaml:"min_page_chars" json:"min_page_chars"`
}

// IndexingConfig configures the ingestion pipeline and stores.
type IndexingConfig struct {
	BatchSize int `yaml:"batch_size" json:"batch_size"`

	// Backend selects the keyword index: "sqlite" (FTS5, default) or "bleve".
	Backend string `yaml:"backend" json:"backend"`

	// CollectionName prefixes the on-disk index files.
	CollectionName string `yaml:"collection_name" json:"collection_name"`

	AllowedExtensions []string `yaml:"allowed_extensions" json:"allowed_extensions"`
	MaxUploadMB       int      `yaml:"max_upload_mb" json:"max_upload_mb"`

	// RetryDelay is the pause before a failed batch is retried.
	RetryDelay time.Duration `yaml:"retry_delay" json:"retry_delay"`
}

// EmbeddingsConfig configures the embedding collaborator.
type EmbeddingsConfig struct {
	// Provider is "static" (offline hash embeddings) or "ollama".
	Provider   string        `yaml:"provider" json:"provider"`
	Model      string        `yaml:"model" json:"model"`
	OllamaHost string        `yaml:"ollama_host" json:"ollama_host"`
	Dimensions int           `yaml:"dimensions" json:"dimensions"`
	Timeout    time.Duration `yaml:"timeout" json:"timeout"`
	// CacheSize is the number of query embeddings kept in the LRU cache.
	CacheSize int `yaml:"cache_size" json:"cache_size"`
	// MaxRunes truncates passages before embedding.
	MaxRunes int `yaml:"max_runes" json:"max_runes"`
}

// EnrichmentConfig configures the entity-recognition collaborator.
// An empty Endpoint disables enrichment.
type EnrichmentConfig struct {
	Endpoint      string        `yaml:"endpoint" json:"endpoint"`
	Timeout       time.Duration `yaml:"timeout" json:"timeout"`
	RatePerSecond float64       `yaml:"rate_per_second" json:"rate_per_second"`
}

// RerankerConfig configures the reranking collaborator.
type RerankerConfig struct {
	Enabled  bool          `yaml:"enabled" json:"enabled"`
	Endpoint string        `yaml:"endpoint" json:"endpoint"`
	Model    string        `yaml:"model" json:"model"`
	Timeout  time.Duration `yaml:"timeout" json:"timeout"`
	MaxRunes int           `yaml:"max_runes" json:"max_runes"`
}

// SearchConfig configures the hybrid retriever.
type SearchConfig struct {
	EnableSemantic bool `yaml:"enable_semantic" json:"enable_semantic"`
	EnableKeyword  bool `yaml:"enable_keyword" json:"enable_keyword"`

	// SemanticOverfetch and KeywordOverfetch multiply maxResults to size
	// each store's candidate request.
	SemanticOverfetch float64 `yaml:"semantic_overfetch" json:"semantic_overfetch"`
	KeywordOverfetch  float64 `yaml:"keyword_overfetch" json:"keyword_overfetch"`

	DefaultResults int `yaml:"default_results" json:"default_results"`
	MaxResults     int `yaml:"max_results" json:"max_results"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	Level     string `yaml:"level" json:"level"`
	File      string `yaml:"file" json:"file"`
	MaxSizeMB int    `yaml:"max_size_mb" json:"max_size_mb"`
	MaxFiles  int    `yaml:"max_files" json:"max_files"`
	TailLines int    `yaml:"tail_lines" json:"tail_lines"`
}

// ServerConfig configures the MCP server.
type ServerConfig struct {
	Transport string `yaml:"transport" json:"transport"`
}

// WatchConfig configures the documents folder watcher used by `serve`.
type WatchConfig struct {
	Enabled  bool          `yaml:"enabled" json:"enabled"`
	Debounce time.Duration `yaml:"debounce" json:"debounce"`
}

// DefaultAllowedExtensions are the document types accepted for upload and ingestion.
var DefaultAllowedExtensions = []string{".pdf", ".docx", ".pptx", ".xlsx", ".xls", ".xlsm"}

// NewConfig returns a configuration populated with defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Paths: PathsConfig{
			Documents: "documents",
			Data:      DataDirName,
		},
		Chunking: ChunkingConfig{
			Size:         800,
			Overlap:      100,
			MinPageChars: 50,
		},
		Indexing: IndexingConfig{
			BatchSize:         100,
			Backend:           "sqlite",
			CollectionName:    "documents",
			AllowedExtensions: append([]string(nil), DefaultAllowedExtensions...),
			MaxUploadMB:       50,
			RetryDelay:        500 * time.Millisecond,
		},
		Embeddings: EmbeddingsConfig{
			Provider:   "static",
			Model:      "nomic-embed-text",
			OllamaHost: "http://localhost:11434",
			Dimensions: 256,
			Timeout:    60 * time.Second,
			CacheSize:  1000,
			MaxRunes:   512,
		},
		Enrichment: EnrichmentConfig{
			Timeout:       10 * time.Second,
			RatePerSecond: 20,
		},
		Reranker: RerankerConfig{
			Enabled:  false,
			Timeout:  30 * time.Second,
			MaxRunes: 512,
		},
		Search: SearchConfig{
			EnableSemantic:    true,
			EnableKeyword:     true,
			SemanticOverfetch: 2.0,
			KeywordOverfetch:  2.0,
			DefaultResults:    10,
			MaxResults:        25,
		},
		Logging: LoggingConfig{
			Level:     "info",
			MaxSizeMB: 10,
			MaxFiles:  5,
			TailLines: 1000,
		},
		Server: ServerConfig{
			Transport: "stdio",
		},
		Watch: WatchConfig{
			Enabled:  true,
			Debounce: 2 * time.Second,
		},
	}
}

// GetUserConfigPath returns the user config path, honoring XDG_CONFIG_HOME.
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "docrag", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "docrag", "config.yaml")
}

// Load builds the configuration for the project rooted at root.
func Load(root string) (*Config, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root: %w", err)
	}

	cfg := NewConfig()
	cfg.root = abs

	if userPath := GetUserConfigPath(); userPath != "" {
		if err := cfg.mergeFile(userPath); err != nil {
			return nil, fmt.Errorf("failed to load user config: %w", err)
		}
	}
	if err := cfg.mergeFile(filepath.Join(abs, ProjectConfigName)); err != nil {
		return nil, err
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// mergeFile decodes path over the current values. A missing file is not an error.
func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return c.merge(data, path)
}

// merge decodes YAML over c. Keys absent from the document keep their
// current values; unknown keys are rejected.
func (c *Config) merge(data []byte, source string) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to parse config file %s: %w", source, err)
	}
	return nil
}

// Root returns the project root.
func (c *Config) Root() string {
	return c.root
}

// SetRoot sets the project root used to resolve relative paths.
func (c *Config) SetRoot(root string) {
	c.root = root
}

// DocumentsDir returns the absolute documents directory.
func (c *Config) DocumentsDir() string {
	return c.resolve(c.Paths.Documents)
}

// DataDir returns the absolute data directory.
func (c *Config) DataDir() string {
	return c.resolve(c.Paths.Data)
}

// LogFile returns the configured log file, or "" for the logging default.
func (c *Config) LogFile() string {
	if c.Logging.File == "" {
		return ""
	}
	return c.resolve(c.Logging.File)
}

func (c *Config) resolve(p string) string {
	if p == "" || filepath.IsAbs(p) || c.root == "" {
		return p
	}
	return filepath.Join(c.root, p)
}

// IsAllowedExtension reports whether name has an allowed document extension.
func (c *Config) IsAllowedExtension(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, allowed := range c.Indexing.AllowedExtensions {
		if ext == allowed {
			return true
		}
	}
	return false
}

// MaxUploadBytes returns the upload limit in bytes.
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.Indexing.MaxUploadMB) * 1024 * 1024
}

// FindProjectRoot walks up from startDir looking for a .docrag.yaml or a
// .docrag data directory. Returns the absolute startDir when neither is found.
func FindProjectRoot(startDir string) (string, error) {
	abs, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}

	for dir := abs; ; {
		if fileExists(filepath.Join(dir, ProjectConfigName)) || dirExists(filepath.Join(dir, DataDirName)) {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return abs, nil
		}
		dir = parent
	}
}

// WriteYAML writes the configuration to path.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
