package sim

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ppiankov/governor/internal/model"
)

// DiffEntry represents one proposal whose decision or hits changed.
type DiffEntry struct {
	AuditID        int64    `json:"audit_id"`
	CreatedAt      string   `json:"created_at"`
	ProposalID     string   `json:"proposal_id"`
	ActionType     string   `json:"action_type"`
	OldDecision    string   `json:"old_decision"`
	NewDecision    string   `json:"new_decision"`
	OldHits        []string `json:"old_hits"`
	NewHits        []string `json:"new_hits"`
	NewExplanation string   `json:"new_explanation"`
}

// SimResult holds the complete replay output.
type SimResult struct {
	PolicyPath     string      `json:"policy_path"`
	TotalActions   int         `json:"total_actions"`
	ChangedActions int         `json:"changed_actions"`
	NewlyBlocked   int         `json:"newly_blocked"`
	NewlyAllowed   int         `json:"newly_allowed"`
	Skipped        int         `json:"skipped"`
	Changes        []DiffEntry `json:"changes"`
}

func isPermissive(d model.Decision) bool {
	return d == model.Approve
}

func isRestrictive(d model.Decision) bool {
	return d == model.Deny || d == model.RequireConfirmation
}

// FormatText renders the replay result as human-readable text.
func FormatText(r *SimResult) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Replaying %d recorded proposals against %s...\n", r.TotalActions, r.PolicyPath)
	if r.Skipped > 0 {
		fmt.Fprintf(&b, "Skipped %d entries that no longer decode.\n", r.Skipped)
	}

	if len(r.Changes) == 0 {
		b.WriteString("\nNo changes detected.\n")
		return b.String()
	}

	b.WriteString("\n")
	for _, d := range r.Changes {
		ts := d.CreatedAt
		if len(ts) >= 19 {
			ts = ts[11:19]
		}
		id := d.ProposalID
		if len(id) > 36 {
			id = id[:33] + "..."
		}
		fmt.Fprintf(&b, "  CHANGED  #%-5d %s  %-10s %-36s %s -> %s\n",
			d.AuditID, ts, d.ActionType, id, d.OldDecision, d.NewDecision)
	}

	fmt.Fprintf(&b, "\n%d of %d proposals changed.", r.ChangedActions, r.TotalActions)
	if r.NewlyBlocked > 0 || r.NewlyAllowed > 0 {
		fmt.Fprintf(&b, " %d newly blocked, %d newly allowed.", r.NewlyBlocked, r.NewlyAllowed)
	}
	b.WriteString("\n")

	return b.String()
}

// FormatJSON renders the replay result as JSON.
func FormatJSON(r *SimResult) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal sim result: %w", err)
	}
	return string(data), nil
}
