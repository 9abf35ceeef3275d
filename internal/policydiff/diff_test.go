package policydiff

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/ppiankov/governor/internal/policy"
)

func findChange(r *DiffResult, field string) (Change, bool) {
	for _, c := range r.Changes {
		if c.Field == field {
			return c, true
		}
	}
	return Change{}, false
}

func TestIdenticalPoliciesNoChanges(t *testing.T) {
	r := Diff(policy.Default(), policy.Default())
	if r.HasChanges {
		t.Errorf("expected no changes, got %d changes + %d list changes",
			len(r.Changes), len(r.ListChanges))
	}
}

func TestLimitDirections(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*policy.Policy)
		field   string
		old     string
		new     string
		comment string
	}{
		{"lower single transfer", func(p *policy.Policy) { p.MaxSingleTransferUSDC = 10 }, policy.RuleMaxSingleTransfer, "25", "10", "stricter"},
		{"higher daily spend", func(p *policy.Policy) { p.MaxDailySpendUSDC = 75.5 }, policy.RuleMaxDailySpend, "50", "75.5", "looser"},
		{"higher slippage", func(p *policy.Policy) { p.SwapMaxSlippageBps = 100 }, policy.RuleSwapMaxSlippage, "50", "100", "looser"},
		{"higher min liquidity", func(p *policy.Policy) { p.SwapMinLiquidityUSDC = 8000 }, policy.RuleSwapMinLiquidity, "5000", "8000", "stricter"},
		{"tests no longer required", func(p *policy.Policy) { p.DeployRequiresTestsPassing = false }, policy.RuleDeployTests, "true", "false", "looser"},
		{"pii allowed", func(p *policy.Policy) { p.APIDenyPIIExfiltration = false }, policy.RuleAPIDenyPII, "true", "false", "looser"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next := policy.Default()
			tt.mutate(&next)
			r := Diff(policy.Default(), next)
			if !r.HasChanges || len(r.Changes) != 1 {
				t.Fatalf("expected exactly one change, got %+v", r.Changes)
			}
			c, ok := findChange(r, tt.field)
			if !ok {
				t.Fatalf("%s change not found", tt.field)
			}
			if c.Old != tt.old || c.New != tt.new || c.Comment != tt.comment {
				t.Errorf("expected %s→%s (%s), got %s→%s (%s)", tt.old, tt.new, tt.comment, c.Old, c.New, c.Comment)
			}
		})
	}
}

func TestDenylistChanges(t *testing.T) {
	next := policy.Default()
	next.DenylistRecipients = []string{"0xDENY_1", "0xDENY_3"}

	r := Diff(policy.Default(), next)
	if len(r.ListChanges) != 2 {
		t.Fatalf("expected 2 list changes, got %+v", r.ListChanges)
	}
	added, removed := r.ListChanges[0], r.ListChanges[1]
	if added.Type != "added" || added.Value != "0xDENY_3" || added.Comment != "stricter" {
		t.Errorf("unexpected addition %+v", added)
	}
	if removed.Type != "removed" || removed.Value != "0xDENY_2" || removed.Comment != "looser" {
		t.Errorf("unexpected removal %+v", removed)
	}
}

func TestAllowlistAddition(t *testing.T) {
	next := policy.Default()
	next.AllowlistRecipients = append(next.AllowlistRecipients, "0xPARTNER")

	r := Diff(policy.Default(), next)
	if len(r.ListChanges) != 1 || r.ListChanges[0].Comment != "looser" {
		t.Errorf("expected one looser addition, got %+v", r.ListChanges)
	}
}

func TestAllowlistDisabled(t *testing.T) {
	next := policy.Default()
	next.AllowlistRecipients = nil

	r := Diff(policy.Default(), next)
	c, ok := findChange(r, policy.RuleAllowlistRecipient)
	if !ok {
		t.Fatal("allowlist change not found")
	}
	if c.New != "disabled" || c.Comment != "looser" {
		t.Errorf("unexpected change %+v", c)
	}
	if len(r.ListChanges) != 0 {
		t.Errorf("expected no per-recipient changes, got %+v", r.ListChanges)
	}

	back := Diff(next, policy.Default())
	if c, _ := findChange(back, policy.RuleAllowlistRecipient); c.Comment != "stricter" {
		t.Errorf("enabling the allowlist should be stricter, got %+v", c)
	}
}

func TestFormatText(t *testing.T) {
	next := policy.Default()
	next.MaxSingleTransferUSDC = 10
	next.DenylistRecipients = append(next.DenylistRecipients, "0xBAD")
	r := Diff(policy.Default(), next)
	r.OldPath, r.NewPath = "old.yaml", "new.yaml"

	out := FormatText(r)
	for _, want := range []string{"old.yaml → new.yaml", "maxSingleTransferUSDC:", "25 → 10", "(stricter)", "denylistRecipients:", "+ 0xBAD"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output:\n%s", want, out)
		}
	}

	same := Diff(policy.Default(), policy.Default())
	if !strings.Contains(FormatText(same), "No changes detected.") {
		t.Error("expected no-change message")
	}
}

func TestFormatJSON(t *testing.T) {
	next := policy.Default()
	next.APIDenyPIIExfiltration = false
	out, err := FormatJSON(Diff(policy.Default(), next))
	if err != nil {
		t.Fatal(err)
	}
	var back DiffResult
	if err := json.Unmarshal([]byte(out), &back); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if !back.HasChanges || len(back.Changes) != 1 {
		t.Errorf("unexpected round trip %+v", back)
	}
}
