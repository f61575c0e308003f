package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/booklens/backend/config"
	"github.com/booklens/backend/internal/logging"
)

type rootOptions struct {
	configPath string
	output     string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "booklens",
		Short: "Identify books from cover text and recommend books that exist",
		Long: `BookLens identifies books from OCR text or cover photos and turns
LLM book suggestions into records verified against a public catalog.

Configuration is read from config.yaml (., ./config, /etc/booklens/) or the
file given with --config. Every key can be overridden with a BOOKLENS_
environment variable, e.g. BOOKLENS_LLM_API_KEY.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Path to a config file")
	cmd.PersistentFlags().StringVarP(&opts.output, "output", "o", formatTable, "Output format: table, json or yaml")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Override logging.level")

	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newIdentifyCmd(opts))
	cmd.AddCommand(newRecommendCmd(opts))
	cmd.AddCommand(newMCPCmd(opts))

	return cmd
}

// load reads the configuration and builds a logger writing to w
func (o *rootOptions) load(w io.Writer) (*config.Config, *slog.Logger, error) {
	cfg, err := config.LoadFrom(o.configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load configuration: %w", err)
	}
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}

	logger, err := logging.New(logging.Options{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Writer:      w,
		Development: cfg.Server.Environment == "development",
	})
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}
