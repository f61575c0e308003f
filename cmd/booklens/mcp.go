package main

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/booklens/backend/internal/delivery/tool"
)

func newMCPCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve identify_book and recommend_books as MCP tools over stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			// stdout carries the protocol; logs go to stderr
			cfg, logger, err := opts.load(cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			svc, err := buildServices(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer svc.Close()

			server := tool.NewServer(tool.NewTools(svc.identifier, svc.recommender, cfg.Image.MaxBytes, logger))
			return server.Run(cmd.Context(), &mcp.StdioTransport{})
		},
	}
}
