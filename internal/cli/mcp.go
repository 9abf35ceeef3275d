package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	govmcp "github.com/ppiankov/governor/internal/mcp"
)

var mcpAgentID string

func init() {
	rootCmd.AddCommand(mcpCmd)
	mcpCmd.Flags().StringVar(&mcpAgentID, "agent", "", "Agent id for proposals that do not name one")
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP tool server for agent integration",
	Long: "Runs the governor as an MCP (Model Context Protocol) server over stdio.\n" +
		"Exposes tools: governor_evaluate, governor_audit_list, governor_audit_verify,\n" +
		"governor_policy, governor_spend.",
	Args: cobra.NoArgs,
	RunE: runMCP,
}

func runMCP(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx, cfg, appOptions{alerts: true})
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}
	defer a.Close()

	if cfg.Policy.Watch {
		startReloader(ctx, a.store, a.holder, slog.Default())
	}

	srv := govmcp.New(a.svc, govmcp.Config{AgentID: mcpAgentID, Version: version}, slog.Default())
	fmt.Fprintln(os.Stderr, "governor MCP server running on stdio")
	return srv.Run(ctx)
}
