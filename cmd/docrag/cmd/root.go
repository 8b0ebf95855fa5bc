// Package cmd provides the CLI commands for docrag.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	docerrors "github.com/Aman-CERP/docrag/internal/errors"
	"github.com/Aman-CERP/docrag/pkg/version"
)

// Persistent flags shared by every subcommand.
var (
	debugMode bool
	rootDir   string
)

// NewRootCmd creates the root command for the docrag CLI.
func NewRootCmd() *cobra.Command {
	debugMode, rootDir = false, ""

	cmd := &cobra.Command{
		Use:   "docrag",
		Short: "Hybrid document search over a local folder",
		Long: `docrag ingests office documents (PDF, DOCX, PPTX, XLSX) from a folder,
splits them into chunks, tags them with recognized entities and indexes them
in a vector store and a keyword index.

Queries run against both indexes; results are merged and, when a reranker
is configured, reordered by a cross-encoder.

Run 'docrag serve' to expose search and ingestion to MCP clients.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("docrag version {{.Version}}\n")

	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging (also to stderr for CLI commands)")
	cmd.PersistentFlags().StringVar(&rootDir, "root", "", "Project root (default: nearest folder with .docrag.yaml or .docrag/)")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newIngestCmd())
	cmd.AddCommand(newStopCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newDocsCmd())
	cmd.AddCommand(newLogsCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command and prints a failure with its hint and code.
func Execute() error {
	err := NewRootCmd().Execute()
	if err != nil {
		fmt.Fprint(os.Stderr, docerrors.FormatForCLI(err))
	}
	return err
}
