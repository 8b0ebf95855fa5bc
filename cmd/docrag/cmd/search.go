package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/docrag/internal/output"
	"github.com/Aman-CERP/docrag/internal/search"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	limit  int
	format string // "text", "json"
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the indexed documents",
		Long: `Search the indexed documents with hybrid retrieval.

The query runs against the vector store and the keyword index in parallel;
candidates are merged by chunk and reranked when a reranker is configured.`,
		Example: `  docrag search "pump seal replacement"
  docrag search "torque values" -n 5
  docrag search "warranty terms" --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd.Context(), cmd.OutOrStdout(), strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 0, "Maximum number of results (default from config)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")

	return cmd
}

func runSearch(ctx context.Context, out io.Writer, query string, opts searchOptions) error {
	if opts.format != "text" && opts.format != "json" {
		return fmt.Errorf("unknown format %q (valid: text, json)", opts.format)
	}

	a, err := openApp(ctx, appOptions{stderr: true})
	if err != nil {
		return err
	}
	defer func() { _ = a.Close(context.Background()) }()

	a.logger.Info("search_started", slog.String("query", query), slog.Int("limit", opts.limit))
	results, err := a.retriever.Search(ctx, query, opts.limit)
	if err != nil {
		return err
	}
	a.logger.Info("search_complete", slog.Int("results", len(results)))

	return printSearch(out, query, results, opts.format)
}

func printSearch(out io.Writer, query string, results []search.Candidate, format string) error {
	w := output.New(out)
	if format == "json" {
		if results == nil {
			results = []search.Candidate{}
		}
		return w.JSON(results)
	}
	w.SearchResults(query, results)
	return nil
}
