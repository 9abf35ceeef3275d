package alert

import (
	"encoding/json"
	"fmt"
	"strings"
)

// FormatPayload builds the webhook body for the given format.
func FormatPayload(format string, event Event) ([]byte, error) {
	switch format {
	case "slack":
		return formatSlack(event)
	case "pagerduty":
		return formatPagerDuty(event)
	default:
		return formatGeneric(event)
	}
}

func formatGeneric(event Event) ([]byte, error) {
	return json.Marshal(event)
}

func formatSlack(event Event) ([]byte, error) {
	hits := "none"
	if len(event.PolicyHits) > 0 {
		hits = strings.Join(event.PolicyHits, ", ")
	}

	payload := map[string]any{
		"blocks": []any{
			map[string]any{
				"type": "header",
				"text": map[string]any{
					"type": "plain_text",
					"text": fmt.Sprintf("governor: %s", event.Decision),
				},
			},
			map[string]any{
				"type": "section",
				"fields": []any{
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Action:* %s", event.ActionType)},
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Agent:* %s", event.AgentID)},
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Risk:* %d (%s)", event.RiskScore, riskLabel(event.RiskScore))},
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Policy hits:* %s", hits)},
				},
			},
			map[string]any{
				"type": "section",
				"text": map[string]any{"type": "mrkdwn", "text": event.Explanation},
			},
		},
	}
	return json.Marshal(payload)
}

func formatPagerDuty(event Event) ([]byte, error) {
	severity := "info"
	switch {
	case event.RiskScore >= 80:
		severity = "critical"
	case event.Decision == "DENY":
		severity = "error"
	case event.Decision == "REQUIRE_CONFIRMATION":
		severity = "warning"
	}

	payload := map[string]any{
		"event_action": "trigger",
		"dedup_key":    event.ProposalID,
		"payload": map[string]any{
			"summary":  fmt.Sprintf("governor %s: %s by %s", event.Decision, event.ActionType, event.AgentID),
			"severity": severity,
			"source":   "governor",
			"custom_details": map[string]any{
				"audit_id":      event.AuditID,
				"proposal_id":   event.ProposalID,
				"risk_score":    event.RiskScore,
				"policy_hits":   event.PolicyHits,
				"explanation":   event.Explanation,
				"policy_hash":   event.PolicyHash,
				"used_fallback": event.UsedFallback,
			},
		},
	}
	return json.Marshal(payload)
}

func riskLabel(score int) string {
	switch {
	case score >= 80:
		return "critical"
	case score >= 55:
		return "elevated"
	case score >= 25:
		return "guarded"
	default:
		return "low"
	}
}
