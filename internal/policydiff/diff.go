// Package policydiff compares two governor policies field by field.
package policydiff

import (
	"slices"
	"strconv"

	"github.com/ppiankov/governor/internal/policy"
)

// Change represents a scalar field change.
type Change struct {
	Field   string `json:"field"`
	Old     string `json:"old"`
	New     string `json:"new"`
	Comment string `json:"comment,omitempty"`
}

// ListChange represents a recipient added to or removed from a list.
type ListChange struct {
	Field   string `json:"field"`
	Type    string `json:"type"` // "added", "removed"
	Value   string `json:"value"`
	Comment string `json:"comment,omitempty"`
}

// DiffResult holds the comparison of two policies.
type DiffResult struct {
	OldPath     string       `json:"old_path"`
	NewPath     string       `json:"new_path"`
	Changes     []Change     `json:"changes"`
	ListChanges []ListChange `json:"list_changes"`
	HasChanges  bool         `json:"has_changes"`
}

// Diff compares two policies. Every change is labelled "stricter" or
// "looser" by its effect on which proposals get through.
func Diff(old, new policy.Policy) *DiffResult {
	r := &DiffResult{}

	diffNum(r, policy.RuleMaxDailySpend, old.MaxDailySpendUSDC, new.MaxDailySpendUSDC, false)
	diffNum(r, policy.RuleMaxSingleTransfer, old.MaxSingleTransferUSDC, new.MaxSingleTransferUSDC, false)
	diffNum(r, policy.RuleSwapMaxSlippage, old.SwapMaxSlippageBps, new.SwapMaxSlippageBps, false)
	diffNum(r, policy.RuleSwapMinLiquidity, old.SwapMinLiquidityUSDC, new.SwapMinLiquidityUSDC, true)
	diffBool(r, policy.RuleDeployTests, old.DeployRequiresTestsPassing, new.DeployRequiresTestsPassing)
	diffBool(r, policy.RuleAPIDenyPII, old.APIDenyPIIExfiltration, new.APIDenyPIIExfiltration)

	diffAllowlist(r, old.AllowlistRecipients, new.AllowlistRecipients)
	diffList(r, policy.RuleDenylistRecipients, old.DenylistRecipients, new.DenylistRecipients, "stricter", "looser")

	r.HasChanges = len(r.Changes) > 0 || len(r.ListChanges) > 0
	return r
}

func diffNum(r *DiffResult, field string, old, new float64, higherIsStricter bool) {
	if old == new {
		return
	}
	r.Changes = append(r.Changes, Change{
		Field:   field,
		Old:     num(old),
		New:     num(new),
		Comment: direction(new > old == higherIsStricter),
	})
}

// diffBool treats every flag as a requirement: turning it on is stricter.
func diffBool(r *DiffResult, field string, old, new bool) {
	if old == new {
		return
	}
	r.Changes = append(r.Changes, Change{
		Field:   field,
		Old:     strconv.FormatBool(old),
		New:     strconv.FormatBool(new),
		Comment: direction(new),
	})
}

// diffAllowlist handles the empty allowlist, which disables the check.
func diffAllowlist(r *DiffResult, old, new []string) {
	switch {
	case len(old) > 0 && len(new) == 0:
		r.Changes = append(r.Changes, Change{
			Field:   policy.RuleAllowlistRecipient,
			Old:     strconv.Itoa(len(old)) + " recipients",
			New:     "disabled",
			Comment: "looser",
		})
	case len(old) == 0 && len(new) > 0:
		r.Changes = append(r.Changes, Change{
			Field:   policy.RuleAllowlistRecipient,
			Old:     "disabled",
			New:     strconv.Itoa(len(new)) + " recipients",
			Comment: "stricter",
		})
	default:
		diffList(r, policy.RuleAllowlistRecipient, old, new, "looser", "stricter")
	}
}

func diffList(r *DiffResult, field string, old, new []string, addedComment, removedComment string) {
	for _, v := range new {
		if !slices.Contains(old, v) {
			r.ListChanges = append(r.ListChanges, ListChange{Field: field, Type: "added", Value: v, Comment: addedComment})
		}
	}
	for _, v := range old {
		if !slices.Contains(new, v) {
			r.ListChanges = append(r.ListChanges, ListChange{Field: field, Type: "removed", Value: v, Comment: removedComment})
		}
	}
}

func direction(stricter bool) string {
	if stricter {
		return "stricter"
	}
	return "looser"
}

func num(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
