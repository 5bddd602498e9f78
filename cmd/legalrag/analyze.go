package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newAnalyzeCmd(opts *rootOptions) *cobra.Command {
	var document string
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Print a plain-language overview of a document",
		Long: `Produces a Markdown overview of a document: a summary, key insights,
important mentions such as dates and amounts, and a vigilance score saying
how carefully the document deserves to be read.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			text, err := readUserDocument(document)
			if err != nil {
				return err
			}
			app, err := opts.build(cmd.Context(), needGenerator)
			if err != nil {
				return err
			}
			defer app.Close()

			overview, err := app.Analyzer().Analyze(cmd.Context(), text)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), overview)
			return nil
		},
	}
	cmd.Flags().StringVarP(&document, "document", "d", "", "document to analyze (.pdf, .txt, .md)")
	return cmd
}
