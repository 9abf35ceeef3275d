package alert

import (
	"time"

	"github.com/ppiankov/governor/internal/model"
)

// Event is the payload sent to every alert destination.
type Event struct {
	Timestamp    string         `json:"timestamp"`
	AuditID      int64          `json:"audit_id"`
	ProposalID   string         `json:"proposal_id"`
	AgentID      string         `json:"agent_id"`
	ActionType   string         `json:"action_type"`
	Decision     model.Decision `json:"decision"`
	RiskScore    int            `json:"risk_score"`
	PolicyHits   []string       `json:"policy_hits"`
	Explanation  string         `json:"explanation"`
	UsedFallback bool           `json:"used_fallback"`
	PolicyHash   string         `json:"policy_hash,omitempty"`
}

// NewEvent builds the alert for a recorded decision.
func NewEvent(at time.Time, auditID int64, p model.ActionProposal, d model.GovernorDecision, usedFallback bool, policyHash string) Event {
	return Event{
		Timestamp:    at.UTC().Format("2006-01-02T15:04:05.000Z"),
		AuditID:      auditID,
		ProposalID:   p.ID,
		AgentID:      p.AgentID,
		ActionType:   string(p.ActionType),
		Decision:     d.Decision,
		RiskScore:    d.RiskScore,
		PolicyHits:   d.PolicyHits,
		Explanation:  d.Explanation,
		UsedFallback: usedFallback,
		PolicyHash:   policyHash,
	}
}
