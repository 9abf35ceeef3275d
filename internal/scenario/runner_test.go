package scenario

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ppiankov/governor/internal/policy"
)

func writeScenario(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestBaselineScenarioPasses(t *testing.T) {
	result, err := LoadAndRun(filepath.Join("testdata", "baseline.yaml"), filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("LoadAndRun: %v", err)
	}
	if result.Failed != 0 {
		t.Errorf("expected all cases to pass:\n%s", FormatText([]*RunResult{result}))
	}
	if result.Total != 7 || result.Passed != 7 {
		t.Errorf("expected 7/7, got %d/%d", result.Passed, result.Total)
	}
	if result.File == "" || result.Name != "baseline policy" {
		t.Errorf("expected file and name, got %q %q", result.File, result.Name)
	}
}

func TestFailedAssertionDetected(t *testing.T) {
	s := &Scenario{
		Name: "wrong expectation",
		Cases: []Case{
			{
				Proposal: CaseProposal{ActionType: "TRANSFER", Params: map[string]any{"amountUSDC": 10, "to": "0xSAFE_ALLOWLIST_1"}},
				Expect:   "DENY",
			},
		},
	}

	result, err := Run(s, policy.Default())
	if err != nil {
		t.Fatal(err)
	}
	if result.Failed != 1 || result.Passed != 0 {
		t.Errorf("expected 1 failure, got %d passed %d failed", result.Passed, result.Failed)
	}
	if result.Cases[0].Actual != "APPROVE" {
		t.Errorf("expected actual APPROVE, got %s", result.Cases[0].Actual)
	}
}

func TestExpectHitsMismatchFails(t *testing.T) {
	s := &Scenario{
		Name: "hits",
		Cases: []Case{
			{
				Proposal:   CaseProposal{ActionType: "TRANSFER", Params: map[string]any{"amountUSDC": 35, "to": "0xSAFE_ALLOWLIST_1"}},
				Expect:     "DENY",
				ExpectHits: []string{"denylistRecipients"},
			},
		},
	}

	result, err := Run(s, policy.Default())
	if err != nil {
		t.Fatal(err)
	}
	c := result.Cases[0]
	if c.Passed {
		t.Fatal("expected hit mismatch to fail the case")
	}
	if !strings.Contains(c.Reason, "expected hits") {
		t.Errorf("expected hit mismatch reason, got %q", c.Reason)
	}
}

func TestScenarioPolicyOverrides(t *testing.T) {
	dir := t.TempDir()
	path := writeScenario(t, dir, "raised.yaml", `
name: raised limit
policy:
  maxSingleTransferUSDC: 100
  allowlistRecipients: []
cases:
  - proposal:
      actionType: TRANSFER
      params: {amountUSDC: 35, to: 0xANYONE}
    expect: APPROVE
`)

	result, err := LoadAndRun(path, filepath.Join(dir, "absent.yaml"))
	if err != nil {
		t.Fatalf("LoadAndRun: %v", err)
	}
	if result.Failed != 0 {
		t.Errorf("expected override to allow the transfer: %+v", result.Cases)
	}
}

func TestInvalidPolicyOverrideRejected(t *testing.T) {
	s := &Scenario{Name: "bad", Policy: map[string]any{"maxDailySpendUSDC": -1}}
	if _, err := Run(s, policy.Default()); err == nil {
		t.Fatal("expected error for negative override")
	}
}

func TestInvalidScenarioYAML(t *testing.T) {
	dir := t.TempDir()
	path := writeScenario(t, dir, "bad.yaml", "{{invalid yaml")

	if _, err := LoadAndRun(path, ""); err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}

func TestUnknownExpectationRejected(t *testing.T) {
	dir := t.TempDir()
	path := writeScenario(t, dir, "expect.yaml", `
name: typo
cases:
  - proposal: {actionType: TRANSFER}
    expect: ALLOW
`)
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "case 1") {
		t.Fatalf("expected case 1 error, got %v", err)
	}
}

func TestInvalidProposalReported(t *testing.T) {
	s := &Scenario{
		Name:  "invalid",
		Cases: []Case{{Proposal: CaseProposal{ActionType: "MINT"}, Expect: "DENY"}},
	}

	result, err := Run(s, policy.Default())
	if err != nil {
		t.Fatal(err)
	}
	c := result.Cases[0]
	if c.Passed || c.Actual != "INVALID" {
		t.Errorf("expected INVALID failure, got %+v", c)
	}
}

func TestEmptyCasesList(t *testing.T) {
	result, err := Run(&Scenario{Name: "empty"}, policy.Default())
	if err != nil {
		t.Fatal(err)
	}
	if result.Total != 0 || result.Failed != 0 {
		t.Errorf("expected empty result, got %+v", result)
	}
}

func TestFormatText(t *testing.T) {
	results := []*RunResult{
		{Name: "good", Total: 1, Passed: 1},
		{Name: "bad", Total: 2, Passed: 1, Failed: 1, Cases: []CaseResult{
			{Index: 2, Name: "over limit", ActionType: "TRANSFER", Expected: "APPROVE", Actual: "DENY"},
		}},
	}

	out := FormatText(results)
	for _, want := range []string{
		"Checking 2 scenario files...",
		"PASS  good (1/1)",
		"FAIL  bad (1/2)",
		"case 2: TRANSFER",
		"expected APPROVE, got DENY",
		"2 of 3 cases passed. 1 of 2 scenarios failed.",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestFormatJSON(t *testing.T) {
	out, err := FormatJSON([]*RunResult{{Name: "x", Total: 0, Cases: []CaseResult{}}})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, `"name": "x"`) {
		t.Errorf("unexpected JSON: %s", out)
	}
}
