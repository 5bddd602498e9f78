package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"legalrag/internal/domain"
)

type askOptions struct {
	document string
	topK     int
	json     bool
	verbose  bool
}

type answerJSON struct {
	Answer   string `json:"answer"`
	State    string `json:"state"`
	Fallback bool   `json:"fallback"`
}

func newAskCmd(opts *rootOptions) *cobra.Command {
	var o askOptions
	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a question about a document",
		Long: `Answers a question about your document. The answer is grounded in the
reference law retrieved from the knowledge base, and points out where your
document conflicts with it. If anything fails along the way a fixed
apology is printed instead.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if o.topK < 0 {
				return fmt.Errorf("%w: --top-k must not be negative", domain.ErrInvalidArgument)
			}
			text, err := readUserDocument(o.document)
			if err != nil {
				return err
			}
			app, err := opts.build(cmd.Context(), needEmbedder|needGenerator|needIndex)
			if err != nil {
				return err
			}
			defer app.Close()
			if o.topK > 0 {
				app.Config.Retrieval.TopK = o.topK
			}

			var onState func(domain.QueryState)
			if o.verbose {
				onState = func(s domain.QueryState) { fmt.Fprintf(cmd.ErrOrStderr(), "... %s\n", s) }
			}
			ans := app.QueryPipeline(onState).Answer(cmd.Context(), domain.QueryRequest{
				DocumentText: text,
				Question:     strings.Join(args, " "),
			})

			if o.json {
				data, err := json.MarshalIndent(answerJSON{Answer: ans.Text, State: ans.State.String(), Fallback: ans.Fallback}, "", "  ")
				if err != nil {
					return fmt.Errorf("failed to marshal answer: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), ans.Text)
			return nil
		},
	}
	cmd.Flags().StringVarP(&o.document, "document", "d", "", "document to ask about (.pdf, .txt, .md)")
	cmd.Flags().IntVarP(&o.topK, "top-k", "k", 0, "number of reference snippets to retrieve (default from config)")
	cmd.Flags().BoolVar(&o.json, "json", false, "output the answer as JSON")
	cmd.Flags().BoolVarP(&o.verbose, "verbose", "v", false, "print pipeline progress to stderr")
	return cmd
}
