package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	pulsemcp "github.com/opspulse/opspulse/internal/mcp"
	"github.com/spf13/cobra"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "MCP server commands",
	Long:  "Commands for running the opspulse MCP (Model Context Protocol) server.",
}

var mcpServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the opspulse MCP server on stdio",
	Long: `Start the opspulse MCP server on stdio transport.

The server exposes the pipeline as MCP tools that AI assistants can call:
ingest_events, evaluate_scope, get_signals, get_scores, get_recommendations.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Runner == nil {
			return fmt.Errorf("pipeline runner not initialized")
		}

		srv := pulsemcp.NewServer(Runner, appVersion)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		if err := srv.Run(ctx); err != nil {
			return fmt.Errorf("running MCP server: %w", err)
		}

		return nil
	},
}

func init() {
	mcpCmd.AddCommand(mcpServeCmd)
	rootCmd.AddCommand(mcpCmd)
}
