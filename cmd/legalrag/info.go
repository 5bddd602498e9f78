package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newInfoCmd(opts *rootOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "info",
		Short: "Show what the vector index was built with",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := opts.build(cmd.Context(), needIndex)
			if err != nil {
				return err
			}
			defer app.Close()

			info, err := app.Index.Info(cmd.Context())
			if err != nil {
				return fmt.Errorf("read index info: %w", err)
			}
			size, err := app.Index.Size(cmd.Context())
			if err != nil {
				return fmt.Errorf("read index size: %w", err)
			}
			out := cmd.OutOrStdout()
			if asJSON {
				data, err := json.MarshalIndent(info, "", "  ")
				if err != nil {
					return fmt.Errorf("failed to marshal info: %w", err)
				}
				fmt.Fprintln(out, string(data))
				return nil
			}
			if info.Generation == "" {
				fmt.Fprintln(out, "Index is empty. Run 'legalrag ingest' first.")
				return nil
			}
			fmt.Fprintf(out, "Generation:      %s\n", info.Generation)
			fmt.Fprintf(out, "Created:         %s\n", info.CreatedAt.Format(time.RFC3339))
			fmt.Fprintf(out, "Entries:         %d\n", size)
			fmt.Fprintf(out, "Embedding model: %s (%d dimensions)\n", info.EmbeddingModel, info.Dimension)
			fmt.Fprintf(out, "Chunking:        %d characters, %d overlap\n", info.ChunkSize, info.Overlap)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "output index info as JSON")
	return cmd
}
