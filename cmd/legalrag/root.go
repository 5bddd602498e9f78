package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"legalrag/internal/config"
	"legalrag/internal/domain"
	"legalrag/internal/logging"
)

// rootOptions carries persistent flags and the state PersistentPreRunE
// resolves from them.
type rootOptions struct {
	configPath string
	logLevel   string
	logFormat  string

	cfg    *config.AppConfig
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "legalrag",
		Short: "Ask questions about legal documents",
		Long: `legalrag answers questions about your own legal documents (leases,
contracts, notices) and grounds each answer in a knowledge base of
reference law that you ingest ahead of time.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error { return opts.load() },
		PersistentPostRun: func(*cobra.Command, []string) {
			if opts.logger != nil {
				_ = opts.logger.Sync()
			}
		},
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to YAML config (default ./config.yaml or ~/.config/legalrag/config.yaml)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&opts.logFormat, "log-format", "", "override log format (console, json)")

	root.AddCommand(
		newIngestCmd(opts),
		newAskCmd(opts),
		newAnalyzeCmd(opts),
		newChatCmd(opts),
		newInfoCmd(opts),
	)
	return root
}

func (o *rootOptions) load() error {
	var (
		cfg *config.AppConfig
		err error
	)
	if o.configPath == "" {
		cfg, _, err = config.LoadDefault()
	} else {
		if _, statErr := os.Stat(o.configPath); statErr != nil {
			return fmt.Errorf("%w: config %s: %w", domain.ErrInvalidConfiguration, o.configPath, statErr)
		}
		cfg, err = config.Load(o.configPath)
	}
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	if o.logFormat != "" {
		cfg.Log.Format = o.logFormat
	}
	if err := cfg.LoadEnv(); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	o.cfg, o.logger = cfg, logger
	return nil
}

func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	if cfg.File == "" {
		return logging.New(cfg.Level, cfg.Format)
	}
	return logging.New(cfg.Level, cfg.Format, cfg.File)
}

func (o *rootOptions) build(ctx context.Context, n needs) (*App, error) {
	return Build(ctx, o.cfg, o.logger, n)
}
