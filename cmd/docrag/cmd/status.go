package cmd

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/docrag/internal/config"
	"github.com/Aman-CERP/docrag/internal/ingest"
	"github.com/Aman-CERP/docrag/internal/search"
	"github.com/Aman-CERP/docrag/internal/store"
	"github.com/Aman-CERP/docrag/internal/ui"
)

func newStatusCmd() *cobra.Command {
	var (
		jsonOutput bool
		noColor    bool
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show index and ingestion status",
		Long: `Show the document catalog counts, the state of the last or current
ingestion run, the on-disk index sizes and the configured collaborators.

Works while another process is ingesting or serving.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			info, err := collectStatus(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			return renderStatus(cmd.OutOrStdout(), info, jsonOutput, noColor || ui.DetectNoColor())
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&noColor, "no-color", false, "Disable colors")

	return cmd
}

func renderStatus(out io.Writer, info ui.StatusInfo, asJSON, noColor bool) error {
	r := ui.NewStatusRenderer(out, noColor)
	if asJSON {
		return r.RenderJSON(info)
	}
	return r.Render(info)
}

// collectStatus reads everything from disk without opening the vector
// store or the keyword index, so it never contends with a writer.
func collectStatus(ctx context.Context, cfg *config.Config) (ui.StatusInfo, error) {
	paths := store.Paths{DataDir: cfg.DataDir(), Collection: cfg.Indexing.CollectionName}

	info := ui.StatusInfo{
		Collection:     cfg.Indexing.CollectionName,
		DocumentsDir:   cfg.DocumentsDir(),
		KeywordBackend: cfg.Indexing.Backend,
		EmbedderType:   cfg.Embeddings.Provider,
		Dimensions:     cfg.Embeddings.Dimensions,
		Reranker:       "disabled",
		Enrichment:     "disabled",
		Ingestion:      ingest.Snapshot{State: ingest.StateIdle},
	}
	if cfg.Embeddings.Provider != "static" {
		info.EmbedderModel = cfg.Embeddings.Model
	}
	if cfg.Reranker.Enabled {
		info.Reranker = "enabled"
	}
	if cfg.Enrichment.Endpoint != "" {
		info.Enrichment = "enabled"
	}
	if backend := store.DetectBackend(paths); backend != "" {
		info.KeywordBackend = string(backend)
	}

	if _, err := os.Stat(cfg.DataDir()); errors.Is(err, fs.ErrNotExist) {
		return info, nil
	}

	snap, err := ingest.LoadStatus(cfg.DataDir())
	if err != nil {
		return info, err
	}
	info.Ingestion = snap

	if fileExists(paths.Catalog()) {
		catalog, err := store.OpenCatalog(paths.Catalog())
		if err != nil {
			return info, err
		}
		docs, err := catalog.List(ctx)
		_ = catalog.Close()
		if err != nil {
			return info, err
		}
		info.Documents = search.Summarize(docs)
	}

	info.VectorSize = pathSize(paths.Vectors()) + pathSize(paths.Vectors()+".meta")
	info.KeywordSize = pathSize(paths.Keywords(store.Backend(info.KeywordBackend)))
	info.CatalogSize = pathSize(paths.Catalog())
	info.TotalSize = info.VectorSize + info.KeywordSize + info.CatalogSize
	return info, nil
}

// pathSize returns the size of a file, or the total size of a directory
// tree. Missing paths count as zero.
func pathSize(path string) int64 {
	var total int64
	_ = filepath.WalkDir(path, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.Type().IsRegular() {
			if fi, err := d.Info(); err == nil {
				total += fi.Size()
			}
		}
		return nil
	})
	return total
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
