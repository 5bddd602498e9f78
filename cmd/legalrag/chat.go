package main

import (
	"fmt"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"legalrag/internal/config"
	"legalrag/internal/summarizer"
	"legalrag/internal/tui"
)

func newChatCmd(opts *rootOptions) *cobra.Command {
	var document string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat interactively about a document",
		Long: `Opens a terminal chat about one document. Every question is answered
the same way as 'legalrag ask'. Press Ctrl+C to leave.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			text, err := readUserDocument(document)
			if err != nil {
				return err
			}
			logger, logPath, err := chatLogger(opts.cfg.Log)
			if err != nil {
				return err
			}
			_ = opts.logger.Sync()
			opts.logger = logger
			fmt.Fprintf(cmd.ErrOrStderr(), "Logging to %s\n", logPath)

			app, err := opts.build(cmd.Context(), needEmbedder|needGenerator|needIndex)
			if err != nil {
				return err
			}
			defer app.Close()

			title := filepath.Base(document) + ": " + summarizer.NewFrequencySummarizer().Summarize(text, 1)
			m := tui.New(cmd.Context(), app.QueryPipeline(nil), title, text)
			_, err = tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(cmd.Context())).Run()
			return err
		},
	}
	cmd.Flags().StringVarP(&document, "document", "d", "", "document to chat about (.pdf, .txt, .md)")
	return cmd
}

// chatLogger sends logs to log.file, or to the default chat log, so that
// fallback causes are kept while the chat screen owns the terminal.
func chatLogger(cfg config.LogConfig) (*zap.Logger, string, error) {
	if cfg.File == "" {
		cfg.File = config.DefaultChatLogPath()
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return nil, "", err
	}
	return logger, cfg.File, nil
}
