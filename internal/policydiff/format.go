package policydiff

import (
	"encoding/json"
	"fmt"
	"strings"
)

// FormatText renders the diff result as human-readable text.
func FormatText(r *DiffResult) string {
	if !r.HasChanges {
		return fmt.Sprintf("Policy diff: %s → %s\n\nNo changes detected.\n", r.OldPath, r.NewPath)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Policy diff: %s → %s\n", r.OldPath, r.NewPath)

	if len(r.Changes) > 0 {
		b.WriteString("\n")
		for _, c := range r.Changes {
			fmt.Fprintf(&b, "  %-28s %s → %s", c.Field+":", c.Old, c.New)
			if c.Comment != "" {
				fmt.Fprintf(&b, "  (%s)", c.Comment)
			}
			b.WriteString("\n")
		}
	}

	for _, field := range listFields(r.ListChanges) {
		fmt.Fprintf(&b, "\n  %s:\n", field)
		for _, lc := range r.ListChanges {
			if lc.Field != field {
				continue
			}
			mark := "+"
			if lc.Type == "removed" {
				mark = "-"
			}
			fmt.Fprintf(&b, "    %s %s  (%s)\n", mark, lc.Value, lc.Comment)
		}
	}

	return b.String()
}

// FormatJSON renders the diff result as JSON.
func FormatJSON(r *DiffResult) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal diff result: %w", err)
	}
	return string(data), nil
}

// listFields returns the distinct fields in first-seen order.
func listFields(changes []ListChange) []string {
	var out []string
	for _, c := range changes {
		if len(out) == 0 || out[len(out)-1] != c.Field {
			out = append(out, c.Field)
		}
	}
	return out
}
