package embed

import "context"

// Input prefixes expected by E5-style embedding models.
const (
	PassagePrefix = "passage: "
	QueryPrefix   = "query: "
)

// Prefixed adapts an Embedder to the asymmetric passage/query convention:
// passages are truncated to maxRunes before the passage prefix is added,
// queries get the query prefix. Indexing and search must share one Prefixed
// so both sides embed the same way.
type Prefixed struct {
	inner    Embedder
	maxRunes int
}

// NewPrefixed wraps inner. maxRunes <= 0 selects DefaultMaxRunes.
func NewPrefixed(inner Embedder, maxRunes int) *Prefixed {
	if maxRunes <= 0 {
		maxRunes = DefaultMaxRunes
	}
	return &Prefixed{inner: inner, maxRunes: maxRunes}
}

// EmbedPassages embeds chunk texts for storage.
func (p *Prefixed) EmbedPassages(ctx context.Context, texts []string) ([][]float32, error) {
	inputs := make([]string, len(texts))
	for i, t := range texts {
		inputs[i] = PassagePrefix + Truncate(t, p.maxRunes)
	}
	return p.inner.EmbedBatch(ctx, inputs)
}

// EmbedQuery embeds a search query.
func (p *Prefixed) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	return p.inner.Embed(ctx, QueryPrefix+query)
}

// Embedder returns the wrapped embedder.
func (p *Prefixed) Embedder() Embedder {
	return p.inner
}

// Truncate returns the first n runes of s.
func Truncate(s string, n int) string {
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
