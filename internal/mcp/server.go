// Package mcp exposes the governor to agents as MCP tools over stdio.
package mcp

import (
	"context"
	"log/slog"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ppiankov/governor/internal/governor"
)

// Config holds MCP server configuration.
type Config struct {
	// AgentID is used for proposals that do not name an agent.
	AgentID string
	Version string
}

// Server wraps the MCP SDK server around a governor Service.
type Server struct {
	mcpServer *mcpsdk.Server
	svc       *governor.Service
	agentID   string
	logger    *slog.Logger
}

// New creates an MCP server with every governor tool registered.
func New(svc *governor.Service, cfg Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.AgentID == "" {
		cfg.AgentID = "mcp-agent"
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}

	s := &Server{svc: svc, agentID: cfg.AgentID, logger: logger}
	s.mcpServer = mcpsdk.NewServer(
		&mcpsdk.Implementation{
			Name:    "governor",
			Version: cfg.Version,
		},
		nil,
	)
	s.registerTools()
	return s
}

// Run starts the MCP server on stdio transport. Blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.mcpServer.Run(ctx, &mcpsdk.StdioTransport{})
}

// registerTools adds all governor tools to the MCP server.
func (s *Server) registerTools() {
	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "governor_evaluate",
		Description: "Submit an action proposal (TRANSFER, SWAP, DEPLOY_SIM, API_CALL) for a governance decision. DENY and REQUIRE_CONFIRMATION return an error result with required edits and a safer alternative.",
	}, s.handleEvaluate)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "governor_audit_list",
		Description: "List recent audit ledger entries, newest first.",
	}, s.handleAuditList)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "governor_audit_verify",
		Description: "Verify the audit ledger hash chain and report the first broken entry.",
	}, s.handleVerify)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "governor_policy",
		Description: "Show the policy currently used to judge proposals.",
	}, s.handlePolicy)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "governor_spend",
		Description: "Report approved transfer volume in USDC over the last N hours (default 24).",
	}, s.handleSpend)
}
