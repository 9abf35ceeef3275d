package ledger

import (
	"fmt"
	"strings"
)

const separator = "──────────────────────────────────────────────────────────────────"

// FormatTable renders entries as a human-readable table, in the order given.
func FormatTable(entries []Entry) string {
	if len(entries) == 0 {
		return "No audit entries.\n"
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("%-6s %-19s %-20s %-24s %8s\n", "ID", "CREATED (UTC)", "DECISION", "PROPOSAL", "LATENCY"))
	b.WriteString(separator + "\n")

	counts := map[string]int{}
	for _, e := range entries {
		counts[string(e.Decision)]++
		b.WriteString(fmt.Sprintf("%-6d %-19s %-20s %-24s %6dms\n",
			e.ID,
			e.CreatedAt.UTC().Format("2006-01-02 15:04:05"),
			e.Decision,
			truncate(e.ProposalID, 24),
			e.LatencyMs))
	}

	b.WriteString(separator + "\n")
	parts := []string{}
	for _, d := range []string{"APPROVE", "REQUIRE_CONFIRMATION", "DENY"} {
		if counts[d] > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", counts[d], strings.ToLower(d)))
		}
	}
	b.WriteString(fmt.Sprintf("Entries: %d | %s\n", len(entries), strings.Join(parts, ", ")))
	return b.String()
}

// FormatVerify renders a verification result for operators.
func FormatVerify(res VerifyResult) string {
	if res.Valid {
		return fmt.Sprintf("Audit chain valid: %d entries checked\nTail hash: %s\n", res.Checked, res.TailHash)
	}
	return fmt.Sprintf("Audit chain INVALID at entry %d: %s\nEntries checked: %d\n",
		res.FirstInvalidAuditID, res.Reason, res.Checked)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
