package model

import (
	"fmt"
	"time"
)

// ActionType identifies the kind of action an agent proposes.
type ActionType string

const (
	ActionTransfer  ActionType = "TRANSFER"
	ActionSwap      ActionType = "SWAP"
	ActionDeploySim ActionType = "DEPLOY_SIM"
	ActionAPICall   ActionType = "API_CALL"
)

// ActionTypes lists every supported action type in canonical order.
var ActionTypes = []ActionType{ActionTransfer, ActionSwap, ActionDeploySim, ActionAPICall}

// Valid reports whether t is one of the supported action types.
func (t ActionType) Valid() bool {
	switch t {
	case ActionTransfer, ActionSwap, ActionDeploySim, ActionAPICall:
		return true
	default:
		return false
	}
}

// UnmarshalText rejects action types outside the closed set.
func (t *ActionType) UnmarshalText(b []byte) error {
	v := ActionType(b)
	if !v.Valid() {
		return fmt.Errorf("unknown action type %q", string(b))
	}
	*t = v
	return nil
}

// Decision is the governance outcome for a proposal.
type Decision string

const (
	Approve             Decision = "APPROVE"
	Deny                Decision = "DENY"
	RequireConfirmation Decision = "REQUIRE_CONFIRMATION"
)

// Valid reports whether d is one of the three decisions.
func (d Decision) Valid() bool {
	switch d {
	case Approve, Deny, RequireConfirmation:
		return true
	default:
		return false
	}
}

// UnmarshalText rejects decisions outside the closed set.
func (d *Decision) UnmarshalText(b []byte) error {
	v := Decision(b)
	if !v.Valid() {
		return fmt.Errorf("unknown decision %q", string(b))
	}
	*d = v
	return nil
}

// Severity is how strongly a policy hit overrides the recommendation.
type Severity string

const (
	SeverityDeny    Severity = "DENY"
	SeverityConfirm Severity = "CONFIRM"
)

// Decision maps a severity to the decision it forces.
func (s Severity) Decision() Decision {
	switch s {
	case SeverityDeny:
		return Deny
	case SeverityConfirm:
		return RequireConfirmation
	default:
		panic(fmt.Sprintf("model: unhandled severity %q", string(s)))
	}
}

// UnmarshalText rejects severities outside the closed set.
func (s *Severity) UnmarshalText(b []byte) error {
	switch v := Severity(b); v {
	case SeverityDeny, SeverityConfirm:
		*s = v
		return nil
	default:
		return fmt.Errorf("unknown severity %q", string(b))
	}
}

// PolicyHit is a single rule violation found during policy evaluation.
type PolicyHit struct {
	RuleID   string   `json:"ruleId"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
}

// PolicyEvaluation is the ordered result of evaluating one proposal.
type PolicyEvaluation struct {
	Hits           []PolicyHit `json:"hits"`
	DailySpendUSDC float64     `json:"dailySpendUSDC"`
}

// HitsWithSeverity returns the hits of the given severity, preserving order.
func (e PolicyEvaluation) HitsWithSeverity(s Severity) []PolicyHit {
	var out []PolicyHit
	for _, h := range e.Hits {
		if h.Severity == s {
			out = append(out, h)
		}
	}
	return out
}

// RuleIDs returns the rule ids of all hits in evaluation order.
func (e PolicyEvaluation) RuleIDs() []string {
	ids := make([]string, 0, len(e.Hits))
	for _, h := range e.Hits {
		ids = append(ids, h.RuleID)
	}
	return ids
}

// Recommendation is the external judge's suggested decision.
type Recommendation struct {
	Decision    Decision `json:"decision"`
	RiskFactors []string `json:"riskFactors"`
	Explanation string   `json:"explanation"`
}

// GovernorDecision is the final, caller-visible verdict for a proposal.
type GovernorDecision struct {
	ProposalID      string   `json:"proposalId"`
	Decision        Decision `json:"decision"`
	RiskScore       int      `json:"riskScore"`
	PolicyHits      []string `json:"policyHits"`
	Explanation     string   `json:"explanation"`
	RequiredEdits   []string `json:"requiredEdits,omitempty"`
	SafeAlternative string   `json:"safeAlternative,omitempty"`
}

// AuditSummary is a compact view of recent ledger activity given to the
// recommendation provider.
type AuditSummary struct {
	Total  int              `json:"total"`
	Counts map[Decision]int `json:"counts"`
	Recent []RecentDecision `json:"recent"`
}

// RecentDecision is one line of an AuditSummary.
type RecentDecision struct {
	ProposalID string    `json:"proposalId"`
	Decision   Decision  `json:"decision"`
	CreatedAt  time.Time `json:"createdAt"`
}
