package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dusk-indust/codepecker/internal/mcptools"
)

func newServeMCPCmd(a *app) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve-mcp",
		Short: "Expose the call graph as MCP tools over stdio or streamable HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			b, err := a.openBackend(ctx, boolPtr(false))
			if err != nil {
				return err
			}
			defer b.Close()

			server := mcptools.NewCallGraphMCPServer(mcptools.NewCallGraphService(b, a.logger))
			if addr == "" {
				addr = a.cfg.MCPAddr
			}
			if addr == "" {
				a.logger.Info("serving MCP on stdio", zap.String("backend", string(b.Kind())))
				return mcptools.RunStdio(ctx, server)
			}
			a.logger.Info("serving MCP over HTTP", zap.String("addr", addr), zap.String("backend", string(b.Kind())))
			return mcptools.RunHTTP(ctx, server, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "http", "", "listen address for streamable HTTP (default: stdio)")
	return cmd
}
