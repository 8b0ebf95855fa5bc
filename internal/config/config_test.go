package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/docrag/configs"
)

// isolate points the user config at an empty directory and clears env overrides.
func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	for _, k := range []string{
		"DOCRAG_PATH_DOCUMENTS", "DOCRAG_DATA_DIR", "DOCRAG_MAX_UPLOAD_SIZE_MB",
		"DOCRAG_ALLOWED_FILE_TYPES", "DOCRAG_COLLECTION_NAME", "DOCRAG_BM25_BACKEND",
		"DOCRAG_EMBEDDINGS_PROVIDER", "DOCRAG_EMBEDDINGS_MODEL", "DOCRAG_OLLAMA_HOST",
		"DOCRAG_RERANKER_URL", "DOCRAG_NER_URL", "DOCRAG_LOG_LEVEL",
	} {
		t.Setenv(k, "")
	}
}

// =============================================================================
// Defaults
// =============================================================================

func TestNewConfig_ReturnsDefaults(t *testing.T) {
	cfg := NewConfig()

	assert.Equal(t, 1, cfg.Version)
	assert.Equal(t, 800, cfg.Chunking.Size)
	assert.Equal(t, 100, cfg.Chunking.Overlap)
	assert.Equal(t, 50, cfg.Chunking.MinPageChars)
	assert.Equal(t, 100, cfg.Indexing.BatchSize)
	assert.Equal(t, "sqlite", cfg.Indexing.Backend)
	assert.Equal(t, 50, cfg.Indexing.MaxUploadMB)
	assert.Equal(t, DefaultAllowedExtensions, cfg.Indexing.AllowedExtensions)
	assert.Equal(t, 2.0, cfg.Search.SemanticOverfetch)
	assert.Equal(t, 2.0, cfg.Search.KeywordOverfetch)
	assert.Equal(t, 10, cfg.Search.DefaultResults)
	assert.Equal(t, 25, cfg.Search.MaxResults)
	assert.Equal(t, 10*time.Second, cfg.Enrichment.Timeout)
	assert.Equal(t, 1000, cfg.Logging.TailLines)
	assert.NoError(t, cfg.Validate())
}

// =============================================================================
// Loading
// =============================================================================

func TestLoad_ProjectFileOverridesDefaults(t *testing.T) {
	isolate(t)
	root := t.TempDir()

	// Given: a project config overriding a few keys
	yaml := `
chunking:
  size: 600
search:
  semantic_overfetch: 3
enrichment:
  timeout: 2s
`
	require.NoError(t, os.WriteFile(filepath.Join(root, ProjectConfigName), []byte(yaml), 0o644))

	// When: loading
	cfg, err := Load(root)
	require.NoError(t, err)

	// Then: overridden keys change, others keep defaults
	assert.Equal(t, 600, cfg.Chunking.Size)
	assert.Equal(t, 100, cfg.Chunking.Overlap)
	assert.Equal(t, 3.0, cfg.Search.SemanticOverfetch)
	assert.Equal(t, 2.0, cfg.Search.KeywordOverfetch)
	assert.Equal(t, 2*time.Second, cfg.Enrichment.Timeout)
	assert.True(t, cfg.Search.EnableKeyword)
}

func TestLoad_UserThenProjectPrecedence(t *testing.T) {
	isolate(t)
	xdg := os.Getenv("XDG_CONFIG_HOME")
	root := t.TempDir()

	require.NoError(t, os.MkdirAll(filepath.Join(xdg, "docrag"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(xdg, "docrag", "config.yaml"),
		[]byte("logging:\n  level: debug\nindexing:\n  batch_size: 10\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, ProjectConfigName),
		[]byte("indexing:\n  batch_size: 20\n"), 0o644))

	cfg, err := Load(root)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 20, cfg.Indexing.BatchSize)
}

func TestLoad_EnvOverridesFiles(t *testing.T) {
	isolate(t)
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, ProjectConfigName),
		[]byte("indexing:\n  max_upload_mb: 5\n"), 0o644))

	t.Setenv("DOCRAG_MAX_UPLOAD_SIZE_MB", "7")
	t.Setenv("DOCRAG_ALLOWED_FILE_TYPES", "pdf, .DOCX")
	t.Setenv("DOCRAG_PATH_DOCUMENTS", "/srv/docs")
	t.Setenv("DOCRAG_RERANKER_URL", "http://rerank:8080")
	t.Setenv("DOCRAG_BM25_BACKEND", "BLEVE")

	cfg, err := Load(root)
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.Indexing.MaxUploadMB)
	assert.Equal(t, []string{".pdf", ".docx"}, cfg.Indexing.AllowedExtensions)
	assert.Equal(t, "/srv/docs", cfg.DocumentsDir())
	assert.True(t, cfg.Reranker.Enabled)
	assert.Equal(t, "bleve", cfg.Indexing.Backend)
}

func TestLoad_RejectsUnknownKeys(t *testing.T) {
	isolate(t)
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, ProjectConfigName),
		[]byte("chunking:\n  sise: 10\n"), 0o644))

	_, err := Load(root)
	assert.Error(t, err)
}

func TestLoad_EmptyFileKeepsDefaults(t *testing.T) {
	isolate(t)
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, ProjectConfigName), nil, 0o644))

	cfg, err := Load(root)
	require.NoError(t, err)
	assert.Equal(t, 800, cfg.Chunking.Size)
}

func TestLoad_BadEnvNumber(t *testing.T) {
	isolate(t)
	t.Setenv("DOCRAG_MAX_UPLOAD_SIZE_MB", "lots")

	_, err := Load(t.TempDir())
	assert.Error(t, err)
}

// =============================================================================
// Paths
// =============================================================================

func TestConfig_ResolvesRelativePaths(t *testing.T) {
	cfg := NewConfig()
	cfg.SetRoot("/proj")

	assert.Equal(t, filepath.Join("/proj", "documents"), cfg.DocumentsDir())
	assert.Equal(t, filepath.Join("/proj", ".docrag"), cfg.DataDir())
	assert.Equal(t, "", cfg.LogFile())

	cfg.Logging.File = "logs/x.log"
	assert.Equal(t, filepath.Join("/proj", "logs", "x.log"), cfg.LogFile())
}

func TestConfig_IsAllowedExtension(t *testing.T) {
	cfg := NewConfig()

	assert.True(t, cfg.IsAllowedExtension("report.PDF"))
	assert.True(t, cfg.IsAllowedExtension("dir/sheet.xlsm"))
	assert.False(t, cfg.IsAllowedExtension("notes.txt"))
	assert.False(t, cfg.IsAllowedExtension("noext"))
	assert.Equal(t, int64(50*1024*1024), cfg.MaxUploadBytes())
}

func TestFindProjectRoot(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, DataDirName), 0o755))

	got, err := FindProjectRoot(nested)
	require.NoError(t, err)
	assert.Equal(t, root, got)
}

// =============================================================================
// Validation
// =============================================================================

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"overlap not below size", func(c *Config) { c.Chunking.Overlap = 800 }},
		{"zero batch", func(c *Config) { c.Indexing.BatchSize = 0 }},
		{"unknown backend", func(c *Config) { c.Indexing.Backend = "lucene" }},
		{"collection with slash", func(c *Config) { c.Indexing.CollectionName = "a/b" }},
		{"unknown provider", func(c *Config) { c.Embeddings.Provider = "mlx" }},
		{"reranker without endpoint", func(c *Config) { c.Reranker.Enabled = true }},
		{"both searches off", func(c *Config) { c.Search.EnableSemantic, c.Search.EnableKeyword = false, false }},
		{"overfetch below one", func(c *Config) { c.Search.KeywordOverfetch = 0.5 }},
		{"default above max", func(c *Config) { c.Search.DefaultResults = 30 }},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }},
		{"bad transport", func(c *Config) { c.Server.Transport = "sse" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestWriteYAML_RoundTripsThroughLoad(t *testing.T) {
	isolate(t)
	root := t.TempDir()

	cfg := NewConfig()
	cfg.Chunking.Size = 900
	require.NoError(t, cfg.WriteYAML(filepath.Join(root, ProjectConfigName)))

	loaded, err := Load(root)
	require.NoError(t, err)
	assert.Equal(t, 900, loaded.Chunking.Size)
	assert.Equal(t, cfg.Enrichment.Timeout, loaded.Enrichment.Timeout)
}

func TestExampleConfig_IsValid(t *testing.T) {
	// Given: the embedded example written by `docrag config init`
	cfg := NewConfig()

	// When: decoding it over defaults
	require.NoError(t, cfg.merge([]byte(configs.ExampleConfig), "docrag.example.yaml"))

	// Then: it matches the defaults and validates
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, NewConfig().Search, cfg.Search)
	assert.Equal(t, NewConfig().Chunking, cfg.Chunking)
}
