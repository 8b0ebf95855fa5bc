package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/docrag/internal/output"
)

func newDocsCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:     "docs",
		Aliases: []string{"documents"},
		Short:   "List known documents and their indexing status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd.Context(), appOptions{stderr: true})
			if err != nil {
				return err
			}
			defer func() { _ = a.Close(context.Background()) }()

			list, err := a.retriever.Documents(cmd.Context())
			if err != nil {
				return err
			}

			w := output.New(cmd.OutOrStdout())
			if jsonOutput {
				return w.JSON(list)
			}
			w.Documents(list)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}
