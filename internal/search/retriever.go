package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/docrag/internal/embed"
	docerrors "github.com/Aman-CERP/docrag/internal/errors"
	"github.com/Aman-CERP/docrag/internal/store"
)

// Defaults for Config zero values.
const (
	DefaultOverfetch      = 2.0
	DefaultResults        = 10
	DefaultMaxResults     = 25
	DefaultRerankMaxRunes = 512
)

// ErrNilDependency is returned when a required dependency is nil.
var ErrNilDependency = errors.New("nil dependency")

// QueryEmbedder embeds search queries. embed.Prefixed implements it.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, query string) ([]float32, error)
}

// Config configures a Retriever.
type Config struct {
	EnableSemantic bool
	EnableKeyword  bool

	// Each store is asked for ceil(overfetch × maxResults) candidates.
	SemanticOverfetch float64
	KeywordOverfetch  float64

	// DefaultResults applies when maxResults <= 0; larger requests are
	// clamped to MaxResults.
	DefaultResults int
	MaxResults     int

	// RerankMaxRunes truncates candidate texts sent to the reranker.
	RerankMaxRunes int
}

// DefaultConfig enables both stores with the default limits.
func DefaultConfig() Config {
	return Config{
		EnableSemantic:    true,
		EnableKeyword:     true,
		SemanticOverfetch: DefaultOverfetch,
		KeywordOverfetch:  DefaultOverfetch,
		DefaultResults:    DefaultResults,
		MaxResults:        DefaultMaxResults,
		RerankMaxRunes:    DefaultRerankMaxRunes,
	}
}

// Option configures a Retriever.
type Option func(*Retriever)

// WithReranker sets the cross-encoder. Without one, candidates keep their
// fallback scores.
func WithReranker(r Reranker) Option {
	return func(rt *Retriever) {
		rt.reranker = r
	}
}

// WithBreaker replaces the reranker's default circuit breaker.
func WithBreaker(cb *docerrors.CircuitBreaker) Option {
	return func(rt *Retriever) {
		rt.breaker = cb
	}
}

// WithCatalog enables Documents.
func WithCatalog(c *store.Catalog) Option {
	return func(rt *Retriever) {
		rt.catalog = c
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(rt *Retriever) {
		rt.logger = l
	}
}

// Retriever runs hybrid search. It only reads the stores and is safe for
// concurrent use, including while an ingestion run writes.
type Retriever struct {
	embedder QueryEmbedder
	vectors  store.VectorStore
	keywords store.KeywordIndex
	catalog  *store.Catalog
	reranker Reranker
	breaker  *docerrors.CircuitBreaker
	config   Config
	logger   *slog.Logger
}

// NewRetriever creates a retriever. The embedder and vector store are
// required when semantic search is enabled, the keyword index when keyword
// search is.
func NewRetriever(embedder QueryEmbedder, vectors store.VectorStore, keywords store.KeywordIndex, cfg Config, opts ...Option) (*Retriever, error) {
	if cfg.EnableSemantic && (embedder == nil || vectors == nil) {
		return nil, fmt.Errorf("%w: semantic search needs an embedder and a vector store", ErrNilDependency)
	}
	if cfg.EnableKeyword && keywords == nil {
		return nil, fmt.Errorf("%w: keyword search needs a keyword index", ErrNilDependency)
	}

	def := DefaultConfig()
	if cfg.SemanticOverfetch <= 0 {
		cfg.SemanticOverfetch = def.SemanticOverfetch
	}
	if cfg.KeywordOverfetch <= 0 {
		cfg.KeywordOverfetch = def.KeywordOverfetch
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = def.MaxResults
	}
	if cfg.DefaultResults <= 0 {
		cfg.DefaultResults = def.DefaultResults
	}
	cfg.DefaultResults = min(cfg.DefaultResults, cfg.MaxResults)
	if cfg.RerankMaxRunes <= 0 {
		cfg.RerankMaxRunes = def.RerankMaxRunes
	}

	r := &Retriever{
		embedder: embedder,
		vectors:  vectors,
		keywords: keywords,
		config:   cfg,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.breaker == nil {
		r.breaker = docerrors.NewCircuitBreaker("reranker",
			docerrors.WithMaxFailures(3),
			docerrors.WithResetTimeout(30*time.Second))
	}
	return r, nil
}

// Config returns the effective configuration.
func (r *Retriever) Config() Config {
	return r.config
}

// Limit clamps a requested result count to [1, MaxResults]; values <= 0
// select DefaultResults.
func (r *Retriever) Limit(maxResults int) int {
	if maxResults <= 0 {
		return r.config.DefaultResults
	}
	return min(maxResults, r.config.MaxResults)
}

// Search returns up to maxResults candidates for query, best first.
// It fails with a retrieval error only when every enabled store failed.
func (r *Retriever) Search(ctx context.Context, query string, maxResults int) ([]Candidate, error) {
	start := time.Now()

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, docerrors.QueryEmpty()
	}
	limit := r.Limit(maxResults)

	semHits, kwHits, err := r.parallelSearch(ctx, query, limit)
	if err != nil {
		return nil, err
	}

	candidates := r.merge(semHits, kwHits)
	reranked := r.rerank(ctx, query, candidates)

	sort.SliceStable(candidates, func(i, j int) bool {
		return less(candidates[i], candidates[j])
	})
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	terms := store.QueryTerms(query)
	out := make([]Candidate, len(candidates))
	for i, c := range candidates {
		c.HighlightedTerms = highlight(terms, c.Text)
		out[i] = *c
	}

	r.logger.Debug("search_complete",
		slog.String("query", truncateQuery(query, 50)),
		slog.Int("limit", limit),
		slog.Int("results", len(out)),
		slog.Bool("reranked", reranked),
		slog.Duration("duration", time.Since(start)))
	return out, nil
}

// parallelSearch runs the enabled searches concurrently. A failing store is
// logged and skipped unless every enabled store failed.
func (r *Retriever) parallelSearch(ctx context.Context, query string, limit int) (semHits, kwHits []*store.Hit, err error) {
	var semErr, kwErr error
	g, gctx := errgroup.WithContext(ctx)

	if r.config.EnableSemantic {
		g.Go(func() error {
			semHits, semErr = r.semanticSearch(gctx, query, overfetch(limit, r.config.SemanticOverfetch))
			return nil
		})
	}
	if r.config.EnableKeyword {
		g.Go(func() error {
			kwHits, kwErr = r.keywords.Search(gctx, store.QueryTerms(query), overfetch(limit, r.config.KeywordOverfetch))
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	semFailed := r.config.EnableSemantic && semErr != nil
	kwFailed := r.config.EnableKeyword && kwErr != nil
	if semFailed {
		r.logger.Warn("search_semantic_failed", slog.String("error", semErr.Error()))
	}
	if kwFailed {
		r.logger.Warn("search_keyword_failed", slog.String("error", kwErr.Error()))
	}

	semDown := !r.config.EnableSemantic || semFailed
	kwDown := !r.config.EnableKeyword || kwFailed
	switch {
	case !r.config.EnableSemantic && !r.config.EnableKeyword:
		return nil, nil, docerrors.Retrieval(errors.New("no search backend is enabled"))
	case semDown && kwDown:
		return nil, nil, docerrors.Retrieval(errors.Join(semErr, kwErr))
	}
	return semHits, kwHits, nil
}

func (r *Retriever) semanticSearch(ctx context.Context, query string, k int) ([]*store.Hit, error) {
	vec, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, docerrors.Collaborator("embedder", err)
	}
	return r.vectors.Search(ctx, vec, k)
}

// merge combines both hit lists by chunk identity and assigns fallback
// scores: the semantic score when present, else the keyword score divided
// by the best keyword score.
func (r *Retriever) merge(semHits, kwHits []*store.Hit) []*Candidate {
	byID := make(map[string]*Candidate, len(semHits)+len(kwHits))
	candidates := make([]*Candidate, 0, len(semHits)+len(kwHits))
	add := func(h *store.Hit) (*Candidate, bool) {
		if c, ok := byID[h.Record.ID]; ok {
			return c, true
		}
		c := newCandidate(h.Record)
		byID[c.ID] = c
		candidates = append(candidates, c)
		return c, false
	}

	duplicates := 0
	for _, h := range semHits {
		c, dup := add(h)
		if dup {
			duplicates++
		}
		c.Semantic = float64Ptr(h.Score)
	}

	maxKeyword := 0.0
	for _, h := range kwHits {
		c, dup := add(h)
		if dup {
			duplicates++
		}
		c.Keyword = float64Ptr(h.Score)
		maxKeyword = math.Max(maxKeyword, h.Score)
	}

	for _, c := range candidates {
		switch {
		case c.Semantic != nil:
			c.Score = *c.Semantic
		case maxKeyword > 0:
			c.Score = *c.Keyword / maxKeyword
		}
	}

	r.logger.Info("search_merge",
		slog.Int("semantic", len(semHits)),
		slog.Int("keyword", len(kwHits)),
		slog.Int("merged", len(candidates)),
		slog.Int("duplicates", duplicates))
	return candidates
}

// rerank replaces every score with the reranker's when both stores are
// enabled. On any failure the fallback scores stay untouched.
func (r *Retriever) rerank(ctx context.Context, query string, candidates []*Candidate) bool {
	if r.reranker == nil || len(candidates) == 0 || !r.config.EnableSemantic || !r.config.EnableKeyword {
		return false
	}

	texts := make([]string, len(candidates))
	for i, c := range candidates {
		texts[i] = embed.Truncate(c.Text, r.config.RerankMaxRunes)
	}

	scores, err := docerrors.CircuitExecute(r.breaker, func() ([]float64, error) {
		results, err := r.reranker.Rerank(ctx, query, texts)
		if err != nil {
			return nil, err
		}
		return alignScores(results, len(texts))
	})
	if err != nil {
		r.logger.Warn("search_rerank_failed",
			slog.Int("candidates", len(candidates)),
			slog.String("circuit", r.breaker.State().String()),
			slog.String("error", err.Error()))
		return false
	}

	for i, c := range candidates {
		c.Rerank = float64Ptr(scores[i])
		c.Score = scores[i]
	}
	return true
}

// alignScores orders rerank results by input position. Every input must be
// scored exactly once.
func alignScores(results []RerankResult, n int) ([]float64, error) {
	if len(results) != n {
		return nil, fmt.Errorf("reranker returned %d scores for %d candidates", len(results), n)
	}
	scores := make([]float64, n)
	seen := make([]bool, n)
	for _, res := range results {
		if res.Index < 0 || res.Index >= n || seen[res.Index] {
			return nil, fmt.Errorf("reranker returned invalid index %d", res.Index)
		}
		if math.IsNaN(res.Score) {
			return nil, fmt.Errorf("reranker returned NaN for candidate %d", res.Index)
		}
		seen[res.Index] = true
		scores[res.Index] = res.Score
	}
	return scores, nil
}

// less orders by score descending, then page, chunk index, filename and ID.
func less(a, b *Candidate) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if a.Page != b.Page {
		return a.Page < b.Page
	}
	if a.Index != b.Index {
		return a.Index < b.Index
	}
	if a.Filename != b.Filename {
		return a.Filename < b.Filename
	}
	return a.ID < b.ID
}

func overfetch(limit int, factor float64) int {
	return max(1, int(math.Ceil(factor*float64(limit))))
}

func highlight(terms []string, text string) []string {
	if len(terms) == 0 {
		return nil
	}
	present := make(map[string]bool)
	for _, tok := range store.Tokenize(text) {
		present[tok] = true
	}
	var out []string
	for _, t := range terms {
		if present[t] {
			out = append(out, t)
		}
	}
	return out
}

// truncateQuery truncates a query string for logging
func truncateQuery(q string, maxRunes int) string {
	t := embed.Truncate(q, maxRunes)
	if len(t) < len(q) {
		return t + "..."
	}
	return q
}

// Documents lists the catalog with summary counts.
func (r *Retriever) Documents(ctx context.Context) (*DocumentList, error) {
	if r.catalog == nil {
		return nil, fmt.Errorf("%w: no document catalog configured", ErrNilDependency)
	}
	docs, err := r.catalog.List(ctx)
	if err != nil {
		return nil, docerrors.StoreUnavailable("catalog", err)
	}

	return &DocumentList{Documents: docs, Summary: Summarize(docs)}, nil
}
