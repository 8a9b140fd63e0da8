package main

import (
	"context"
	"fmt"

	"github.com/aretw0/lockstep"
	"github.com/aretw0/lockstep/internal/cli"
	"github.com/aretw0/lockstep/pkg/adapters/mcp"
	"github.com/spf13/cobra"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start the MCP server",
	Long:  `Exposes the dialog manager as MCP tools over stdio (default) or SSE.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		port, _ := cmd.Flags().GetInt("port")

		logger := cli.NewLogger(cfg)
		sys, err := lockstep.FromConfig(cfg, lockstep.WithLogger(logger))
		if err != nil {
			return fmt.Errorf("failed to initialize lockstep: %w", err)
		}
		defer sys.Close()

		srv := mcp.NewServer(sys.Dialogs, sys.Scheduler, lockstep.Version, mcp.WithLogger(logger))
		if port == 0 {
			return srv.ServeStdio()
		}

		sigCtx := cli.NewSignalContext(context.Background())
		defer sigCtx.Cancel()
		return srv.ServeSSE(sigCtx, port)
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
	mcpCmd.Flags().IntP("port", "p", 0, "Serve SSE on this port instead of stdio")
}
