package embed

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// ProviderType represents an embedding provider
type ProviderType string

const (
	// ProviderStatic uses hash-based embeddings (offline, default)
	ProviderStatic ProviderType = "static"

	// ProviderOllama uses the Ollama HTTP API
	ProviderOllama ProviderType = "ollama"
)

// Options selects and configures an embedder.
type Options struct {
	Provider   ProviderType
	Model      string
	Host       string
	Dimensions int
	Timeout    time.Duration

	// CacheSize > 0 wraps the embedder in a CachedEmbedder.
	CacheSize int
}

// NewEmbedder creates the embedder selected by opts.Provider. An Ollama
// embedder that is not reachable is still returned; the failure surfaces on
// the first call as a collaborator error, and a warning is logged here.
func NewEmbedder(ctx context.Context, opts Options) (Embedder, error) {
	var e Embedder
	switch opts.Provider {
	case ProviderStatic, "":
		e = NewStaticEmbedder(opts.Dimensions)
	case ProviderOllama:
		o := NewOllamaEmbedder(OllamaConfig{
			Host:       opts.Host,
			Model:      opts.Model,
			Dimensions: opts.Dimensions,
			Timeout:    opts.Timeout,
		})
		if !o.Available(ctx) {
			slog.Warn("embedder_unavailable",
				slog.String("provider", string(ProviderOllama)),
				slog.String("model", o.ModelName()))
		}
		e = o
	default:
		return nil, fmt.Errorf("unknown embedding provider %q (valid: %s)",
			opts.Provider, strings.Join(ValidProviders(), ", "))
	}

	if opts.CacheSize > 0 {
		e = NewCachedEmbedder(e, opts.CacheSize)
	}
	return e, nil
}

// ParseProvider converts a string to ProviderType
func ParseProvider(s string) ProviderType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ollama":
		return ProviderOllama
	default:
		return ProviderStatic
	}
}

// String returns the string representation of ProviderType
func (p ProviderType) String() string {
	return string(p)
}

// ValidProviders returns all valid provider names
func ValidProviders() []string {
	return []string{string(ProviderStatic), string(ProviderOllama)}
}

// IsValidProvider checks if a provider name is valid
func IsValidProvider(s string) bool {
	lower := strings.ToLower(s)
	for _, p := range ValidProviders() {
		if lower == p {
			return true
		}
	}
	return false
}

// EmbedderInfo describes an embedder for status output.
type EmbedderInfo struct {
	Provider   ProviderType
	Model      string
	Dimensions int
	Available  bool
	Cached     bool
}

// GetInfo returns information about an embedder
func GetInfo(ctx context.Context, embedder Embedder) EmbedderInfo {
	info := EmbedderInfo{
		Model:      embedder.ModelName(),
		Dimensions: embedder.Dimensions(),
		Available:  embedder.Available(ctx),
	}

	inner := embedder
	if cached, ok := embedder.(*CachedEmbedder); ok {
		inner = cached.inner
		info.Cached = true
	}
	switch inner.(type) {
	case *OllamaEmbedder:
		info.Provider = ProviderOllama
	default:
		info.Provider = ProviderStatic
	}
	return info
}
