package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newIngestCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest",
		Short: "Rebuild the vector index from the knowledge base",
		Long: `Loads every PDF, text and Markdown file under the configured knowledge
base directory, splits it into overlapping chunks, embeds them and replaces
the vector index contents in one step. Queries running concurrently keep
seeing the previous index until the new one is complete.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := opts.build(cmd.Context(), needEmbedder|needIndex)
			if err != nil {
				return err
			}
			defer app.Close()

			ingestor, err := app.Ingestor()
			if err != nil {
				return err
			}
			report, err := ingestor.Ingest(cmd.Context())
			if err != nil {
				return fmt.Errorf("ingest failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Indexed %d chunks from %d documents (generation %s) in %s\n",
				report.ChunksEmbedded, report.DocumentsLoaded, report.Generation, report.Duration.Round(time.Millisecond))
			return nil
		},
	}
}
