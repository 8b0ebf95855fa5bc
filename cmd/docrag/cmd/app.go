package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/Aman-CERP/docrag/internal/chunk"
	"github.com/Aman-CERP/docrag/internal/config"
	"github.com/Aman-CERP/docrag/internal/embed"
	"github.com/Aman-CERP/docrag/internal/enrich"
	"github.com/Aman-CERP/docrag/internal/extract"
	"github.com/Aman-CERP/docrag/internal/files"
	"github.com/Aman-CERP/docrag/internal/index"
	"github.com/Aman-CERP/docrag/internal/ingest"
	"github.com/Aman-CERP/docrag/internal/logging"
	"github.com/Aman-CERP/docrag/internal/search"
	"github.com/Aman-CERP/docrag/internal/store"
)

// appOptions selects what openApp wires.
type appOptions struct {
	// ingestion wires the writer, pipeline, manager and file service, and
	// makes Close persist the stores.
	ingestion bool

	// stderr mirrors logs to stderr. Never set for serve: stdout and stdin
	// carry MCP and stderr is often captured by the client.
	stderr bool

	// tail keeps recent log lines for the MCP logs tool.
	tail bool
}

// app is one opened project: configuration, stores and collaborators.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	tail    *logging.Tail
	backend store.Backend

	vectors  *store.HNSWStore
	keywords store.KeywordIndex
	catalog  *store.Catalog
	embedder embed.Embedder
	reranker search.Reranker

	retriever *search.Retriever
	pipeline  *index.Pipeline
	manager   *ingest.Manager
	files     *files.Service

	closers    []func() error
	logCleanup func()
}

// resolveRoot returns --root, or the nearest project root above the
// working directory.
func resolveRoot() (string, error) {
	if rootDir != "" {
		return rootDir, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get current directory: %w", err)
	}
	return config.FindProjectRoot(cwd)
}

// loadConfig loads the project configuration without opening anything.
func loadConfig() (*config.Config, error) {
	root, err := resolveRoot()
	if err != nil {
		return nil, err
	}
	return config.Load(root)
}

// setupLogging builds the process logger from the configuration.
func setupLogging(cfg *config.Config, opts appOptions) (*slog.Logger, *logging.Tail, func(), error) {
	level := cfg.Logging.Level
	if debugMode {
		level = "debug"
	}
	logCfg := logging.Config{
		Level:         level,
		FilePath:      cfg.LogFile(),
		MaxSizeMB:     cfg.Logging.MaxSizeMB,
		MaxFiles:      cfg.Logging.MaxFiles,
		WriteToStderr: opts.stderr && debugMode,
	}
	if logCfg.FilePath == "" {
		logCfg.FilePath = logging.DefaultLogPath()
	}
	var tail *logging.Tail
	if opts.tail {
		tail = logging.NewTail(cfg.Logging.TailLines)
		logCfg.Tail = tail
	}
	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to set up logging: %w", err)
	}
	return logger, tail, cleanup, nil
}

// openApp opens the project's stores and wires every collaborator. The
// caller must Close the app.
func openApp(ctx context.Context, opts appOptions) (a *app, err error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	logger, tail, cleanup, err := setupLogging(cfg, opts)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)

	a = &app{cfg: cfg, logger: logger, tail: tail, logCleanup: cleanup}
	defer func() {
		if err != nil {
			_ = a.Close(context.Background())
			a = nil
		}
	}()

	if err := os.MkdirAll(cfg.DataDir(), 0o755); err != nil {
		return a, fmt.Errorf("failed to create data directory: %w", err)
	}
	if err := a.openStores(); err != nil {
		return a, err
	}
	if err := a.openCollaborators(ctx); err != nil {
		return a, err
	}
	if err := a.wireRetriever(); err != nil {
		return a, err
	}
	if opts.ingestion {
		if err := a.wireIngestion(); err != nil {
			return a, err
		}
	}

	logger.Debug("app_opened",
		slog.String("root", cfg.Root()),
		slog.String("data_dir", cfg.DataDir()),
		slog.String("keyword_backend", string(a.backend)),
		slog.Bool("ingestion", opts.ingestion))
	return a, nil
}

func (a *app) paths() store.Paths {
	return store.Paths{DataDir: a.cfg.DataDir(), Collection: a.cfg.Indexing.CollectionName}
}

// openStores opens the vector store, keyword index and catalog. Existing
// keyword data decides the backend over the configured one.
func (a *app) openStores() error {
	paths := a.paths()

	backend, err := store.ParseBackend(a.cfg.Indexing.Backend)
	if err != nil {
		return err
	}
	if existing := store.DetectBackend(paths); existing != "" && existing != backend {
		a.logger.Warn("keyword_backend_mismatch",
			slog.String("configured", string(backend)),
			slog.String("existing", string(existing)))
		backend = existing
	}
	a.backend = backend

	vectors, err := store.OpenHNSWStore(paths.Vectors(), store.HNSWConfig{
		Dimensions: a.cfg.Embeddings.Dimensions,
	})
	if err != nil {
		return fmt.Errorf("failed to open vector store: %w", err)
	}
	a.vectors = vectors
	a.closers = append(a.closers, vectors.Close)

	keywords, err := store.NewKeywordIndex(backend, paths.Keywords(backend))
	if err != nil {
		return fmt.Errorf("failed to open keyword index: %w", err)
	}
	a.keywords = keywords
	a.closers = append(a.closers, keywords.Close)

	catalog, err := store.OpenCatalog(paths.Catalog())
	if err != nil {
		return fmt.Errorf("failed to open catalog: %w", err)
	}
	a.catalog = catalog
	a.closers = append(a.closers, catalog.Close)
	return nil
}

// openCollaborators creates the embedder and, when enabled, the reranker.
// An unreachable reranker is logged and searches run without it.
func (a *app) openCollaborators(ctx context.Context) error {
	e := a.cfg.Embeddings
	embedder, err := embed.NewEmbedder(ctx, embed.Options{
		Provider:   embed.ParseProvider(e.Provider),
		Model:      e.Model,
		Host:       e.OllamaHost,
		Dimensions: e.Dimensions,
		Timeout:    e.Timeout,
		CacheSize:  e.CacheSize,
	})
	if err != nil {
		return err
	}
	a.embedder = embedder
	a.closers = append(a.closers, embedder.Close)

	r := a.cfg.Reranker
	if !r.Enabled {
		return nil
	}
	reranker, err := search.NewHTTPReranker(ctx, search.HTTPRerankerConfig{
		Endpoint: r.Endpoint,
		Model:    r.Model,
		Timeout:  r.Timeout,
	})
	if err != nil {
		a.logger.Warn("reranker_unavailable",
			slog.String("endpoint", r.Endpoint),
			slog.String("error", err.Error()))
		return nil
	}
	a.reranker = reranker
	a.closers = append(a.closers, reranker.Close)
	return nil
}

func (a *app) wireRetriever() error {
	s := a.cfg.Search
	opts := []search.Option{
		search.WithCatalog(a.catalog),
		search.WithLogger(a.logger),
	}
	if a.reranker != nil {
		opts = append(opts, search.WithReranker(a.reranker))
	}

	retriever, err := search.NewRetriever(
		embed.NewPrefixed(a.embedder, a.cfg.Embeddings.MaxRunes),
		a.vectors, a.keywords,
		search.Config{
			EnableSemantic:    s.EnableSemantic,
			EnableKeyword:     s.EnableKeyword,
			SemanticOverfetch: s.SemanticOverfetch,
			KeywordOverfetch:  s.KeywordOverfetch,
			DefaultResults:    s.DefaultResults,
			MaxResults:        s.MaxResults,
			RerankMaxRunes:    a.cfg.Reranker.MaxRunes,
		},
		opts...)
	if err != nil {
		return err
	}
	a.retriever = retriever
	return nil
}

// wireIngestion builds the pipeline, the ingestion manager and the file
// service on top of the opened stores.
func (a *app) wireIngestion() error {
	cfg := a.cfg

	var recognizer enrich.Recognizer
	if cfg.Enrichment.Endpoint != "" {
		recognizer = enrich.NewHTTPRecognizer(enrich.HTTPConfig{
			Endpoint:      cfg.Enrichment.Endpoint,
			RatePerSecond: cfg.Enrichment.RatePerSecond,
		})
	}

	writer := index.NewWriter(
		embed.NewPrefixed(a.embedder, cfg.Embeddings.MaxRunes),
		a.vectors, a.keywords,
		index.WriterConfig{
			BatchSize:  cfg.Indexing.BatchSize,
			RetryDelay: cfg.Indexing.RetryDelay,
			Logger:     a.logger,
		})

	pipeline, err := index.NewPipeline(index.PipelineConfig{
		Root:      cfg.DocumentsDir(),
		Allowed:   cfg.IsAllowedExtension,
		Extractor: extract.New(),
		Chunker: chunk.New(chunk.Options{
			Size:         cfg.Chunking.Size,
			Overlap:      cfg.Chunking.Overlap,
			MinPageChars: cfg.Chunking.MinPageChars,
		}),
		Enricher: enrich.New(recognizer,
			enrich.WithTimeout(cfg.Enrichment.Timeout),
			enrich.WithLogger(a.logger)),
		Writer:  writer,
		Catalog: a.catalog,
		Checker: index.NewConsistencyChecker(a.vectors, a.keywords, a.logger),
		Logger:  a.logger,
	})
	if err != nil {
		return err
	}
	a.pipeline = pipeline

	a.manager = ingest.NewManager(pipeline, ingest.Config{
		DataDir:       cfg.DataDir(),
		Tail:          a.tail,
		PersistStatus: true,
		Logger:        a.logger,
	})

	svc, err := files.New(files.Config{
		Root:     cfg.DocumentsDir(),
		Allowed:  cfg.IsAllowedExtension,
		MaxBytes: cfg.MaxUploadBytes(),
		Gate:     a.manager,
		Catalog:  a.catalog,
		Remover:  pipeline,
		Logger:   a.logger,
	})
	if err != nil {
		return err
	}
	a.files = svc
	return nil
}

// closeTimeout bounds how long Close waits for an active run to stop.
const closeTimeout = 30 * time.Second

// Close stops an active run, persists the stores when they were opened
// for ingestion and releases everything in reverse order.
func (a *app) Close(ctx context.Context) error {
	var errs []error

	if a.manager != nil {
		stopCtx, cancel := context.WithTimeout(ctx, closeTimeout)
		if err := a.manager.Close(stopCtx); err != nil {
			errs = append(errs, err)
		}
		cancel()
	}
	if a.pipeline != nil {
		if err := a.pipeline.Writer().Save(); err != nil {
			errs = append(errs, err)
		}
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil

	if err := errors.Join(errs...); err != nil {
		a.logger.Warn("app_close_failed", slog.String("error", err.Error()))
	}
	if a.logCleanup != nil {
		a.logCleanup()
		a.logCleanup = nil
	}
	return errors.Join(errs...)
}
