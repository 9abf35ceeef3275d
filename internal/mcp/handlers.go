package mcp

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ppiankov/governor/internal/ledger"
	"github.com/ppiankov/governor/internal/model"
	"github.com/ppiankov/governor/internal/policy"
)

// --- Input/Output types ---

// EvaluateInput defines parameters for the governor_evaluate tool.
type EvaluateInput struct {
	ID         string                    `json:"id,omitempty" jsonschema:"proposal id, generated when omitted"`
	AgentID    string                    `json:"agentId,omitempty" jsonschema:"proposing agent"`
	ActionType string                    `json:"actionType" jsonschema:"TRANSFER, SWAP, DEPLOY_SIM or API_CALL"`
	Intent     string                    `json:"intent,omitempty" jsonschema:"what the agent is trying to achieve"`
	Params     map[string]any            `json:"params,omitempty" jsonschema:"action parameters, e.g. amountUSDC and to for TRANSFER"`
	Context    map[string]map[string]any `json:"context,omitempty" jsonschema:"optional market, wallet, repo and api context"`
}

// EvaluateOutput contains the governance decision.
type EvaluateOutput struct {
	ProposalID      string   `json:"proposalId"`
	Decision        string   `json:"decision"`
	RiskScore       int      `json:"riskScore"`
	PolicyHits      []string `json:"policyHits"`
	Explanation     string   `json:"explanation"`
	RequiredEdits   []string `json:"requiredEdits,omitempty"`
	SafeAlternative string   `json:"safeAlternative,omitempty"`
	AuditID         int64    `json:"auditId"`
	UsedFallback    bool     `json:"usedFallback"`
}

// AuditListInput defines parameters for the governor_audit_list tool.
type AuditListInput struct {
	Limit  int `json:"limit,omitempty" jsonschema:"entries to return (default 20, max 200)"`
	Offset int `json:"offset,omitempty" jsonschema:"entries to skip"`
}

// AuditListOutput lists audit entries.
type AuditListOutput struct {
	Entries []AuditItem `json:"entries"`
}

// AuditItem describes a single ledger entry.
type AuditItem struct {
	ID         int64  `json:"id"`
	ProposalID string `json:"proposalId"`
	Decision   string `json:"decision"`
	CreatedAt  string `json:"createdAt"`
	LatencyMs  int64  `json:"latencyMs"`
	EntryHash  string `json:"entryHash,omitempty"`
}

// VerifyInput defines parameters for the governor_audit_verify tool.
type VerifyInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"entries to check from the oldest (default 1000)"`
}

// PolicyInput is empty.
type PolicyInput struct{}

// SpendInput defines parameters for the governor_spend tool.
type SpendInput struct {
	Hours float64 `json:"hours,omitempty" jsonschema:"window in hours (default 24)"`
}

// SpendOutput reports approved transfer volume.
type SpendOutput struct {
	WindowHours float64 `json:"windowHours"`
	SpendUSDC   float64 `json:"spendUSDC"`
}

// --- Handlers ---

func (s *Server) handleEvaluate(ctx context.Context, req *mcpsdk.CallToolRequest, input EvaluateInput) (*mcpsdk.CallToolResult, EvaluateOutput, error) {
	p := buildProposal(input, s.agentID, time.Now())

	out, err := s.svc.EvaluateProposal(ctx, p)
	if err != nil {
		return nil, EvaluateOutput{}, err
	}

	d := out.Decision
	result := EvaluateOutput{
		ProposalID:      d.ProposalID,
		Decision:        string(d.Decision),
		RiskScore:       d.RiskScore,
		PolicyHits:      d.PolicyHits,
		Explanation:     d.Explanation,
		RequiredEdits:   d.RequiredEdits,
		SafeAlternative: d.SafeAlternative,
		AuditID:         out.AuditID,
		UsedFallback:    out.UsedFallback,
	}
	if d.Decision != model.Approve {
		return &mcpsdk.CallToolResult{IsError: true}, result, nil
	}
	return nil, result, nil
}

func (s *Server) handleAuditList(ctx context.Context, req *mcpsdk.CallToolRequest, input AuditListInput) (*mcpsdk.CallToolResult, AuditListOutput, error) {
	entries, err := s.svc.ListAudit(ctx, input.Limit, input.Offset)
	if err != nil {
		return nil, AuditListOutput{}, err
	}
	out := AuditListOutput{Entries: make([]AuditItem, 0, len(entries))}
	for _, e := range entries {
		out.Entries = append(out.Entries, AuditItem{
			ID:         e.ID,
			ProposalID: e.ProposalID,
			Decision:   string(e.Decision),
			CreatedAt:  e.CreatedAt.UTC().Format(time.RFC3339),
			LatencyMs:  e.LatencyMs,
			EntryHash:  e.EntryHash,
		})
	}
	return nil, out, nil
}

func (s *Server) handleVerify(ctx context.Context, req *mcpsdk.CallToolRequest, input VerifyInput) (*mcpsdk.CallToolResult, ledger.VerifyResult, error) {
	res, err := s.svc.VerifyChain(ctx, input.Limit)
	if err != nil {
		return nil, ledger.VerifyResult{}, err
	}
	if !res.Valid {
		return &mcpsdk.CallToolResult{IsError: true}, res, nil
	}
	return nil, res, nil
}

func (s *Server) handlePolicy(ctx context.Context, req *mcpsdk.CallToolRequest, input PolicyInput) (*mcpsdk.CallToolResult, policy.Policy, error) {
	return nil, s.svc.Policy(), nil
}

func (s *Server) handleSpend(ctx context.Context, req *mcpsdk.CallToolRequest, input SpendInput) (*mcpsdk.CallToolResult, SpendOutput, error) {
	hours := input.Hours
	if hours <= 0 {
		hours = 24
	}
	spend, err := s.svc.DailySpend(ctx, hours)
	if err != nil {
		return nil, SpendOutput{}, err
	}
	return nil, SpendOutput{WindowHours: hours, SpendUSDC: spend}, nil
}

// buildProposal turns loosely typed tool input into a proposal.
func buildProposal(input EvaluateInput, defaultAgent string, now time.Time) model.ActionProposal {
	id := input.ID
	if id == "" {
		id = uuid.NewString()
	}
	agent := input.AgentID
	if agent == "" {
		agent = defaultAgent
	}
	actionType := model.ActionType(strings.ToUpper(strings.TrimSpace(input.ActionType)))
	return model.ActionProposal{
		ID:         id,
		Timestamp:  now.UTC().Format(time.RFC3339),
		AgentID:    agent,
		ActionType: actionType,
		Intent:     input.Intent,
		Params:     model.ParamsFromMap(actionType, input.Params),
		Context:    model.ContextFromMap(input.Context),
	}
}
