package main

import (
	"os/signal"
	"syscall"

	mcpserver "paperchat/internal/mcp"

	"github.com/spf13/cobra"
)

func newMCPCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the paper tools to an MCP client over stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return withApp(ctx, opts, func(a *app) error {
				return mcpserver.NewServer(a.svc, version).Run(ctx)
			})
		},
	}
}
