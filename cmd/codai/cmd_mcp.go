package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/codai-ecosystem/codai/mcpserver"
)

// newMCPCmd creates the "codai mcp" subcommand serving the MCP tools over stdio.
func newMCPCmd(flags *globalFlags) *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the engine as an MCP server over stdio",
		Long:  "Starts the engine and exposes messaging, task, graph and agent tools\nto MCP clients on stdin/stdout. Logs go to stderr.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			app, _, closeApp, err := openApp(ctx, cmd, flags)
			if err != nil {
				return err
			}
			defer closeApp()

			if watch && flags.configPath != "" {
				watchCtx, cancel := context.WithCancel(ctx)
				defer cancel()
				go func() { _ = app.WatchConfig(watchCtx, flags.configPath) }()
			}

			return mcpserver.ServeStdio(mcpserver.New(app.MCPDeps()))
		},
	}

	cmd.Flags().BoolVar(&watch, "watch", true, "re-apply agent flags when the config file changes")

	return cmd
}
