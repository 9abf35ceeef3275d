package scenario

import (
	"fmt"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/governor/internal/governor"
	"github.com/ppiankov/governor/internal/model"
	"github.com/ppiankov/governor/internal/policy"
)

// Run evaluates all cases in a scenario against pol with the fallback
// recommendation. Cases are independent; each sees only its own daily spend.
func Run(s *Scenario, pol policy.Policy) (*RunResult, error) {
	evalPol, err := applyOverrides(pol, s.Policy)
	if err != nil {
		return nil, err
	}

	result := &RunResult{
		Name:  s.Name,
		Total: len(s.Cases),
		Cases: []CaseResult{},
	}

	for i, c := range s.Cases {
		p := c.proposal(i + 1)
		expected := strings.ToUpper(strings.TrimSpace(c.Expect))

		cr := CaseResult{
			Index:      i + 1,
			Name:       c.Name,
			ActionType: string(p.ActionType),
			Expected:   expected,
		}

		if err := p.Validate(); err != nil {
			cr.Actual = "INVALID"
			cr.Reason = err.Error()
		} else {
			d := governor.DecideWithFallback(p, evalPol, c.DailySpend)
			cr.Actual = string(d.Decision)
			cr.RiskScore = d.RiskScore
			cr.PolicyHits = d.PolicyHits
			cr.Reason = d.Explanation
		}

		cr.Passed = cr.Actual == expected
		if cr.Passed && c.ExpectHits != nil && !slices.Equal(c.ExpectHits, cr.PolicyHits) {
			cr.Passed = false
			cr.Reason = fmt.Sprintf("expected hits %v, got %v", c.ExpectHits, cr.PolicyHits)
		}

		if cr.Passed {
			result.Passed++
		} else {
			result.Failed++
		}
		result.Cases = append(result.Cases, cr)
	}

	return result, nil
}

// applyOverrides layers scenario policy fields over pol.
func applyOverrides(pol policy.Policy, overrides map[string]any) (policy.Policy, error) {
	if len(overrides) == 0 {
		return pol, nil
	}
	merged := pol.Clone()
	patch, err := yaml.Marshal(overrides)
	if err != nil {
		return policy.Policy{}, fmt.Errorf("encode policy overrides: %w", err)
	}
	if err := yaml.Unmarshal(patch, &merged); err != nil {
		return policy.Policy{}, fmt.Errorf("apply policy overrides: %w", err)
	}
	if err := merged.Validate(); err != nil {
		return policy.Policy{}, err
	}
	return merged, nil
}

// Load parses a scenario YAML file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario %s: %w", path, err)
	}

	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse scenario %s: %w", path, err)
	}
	if s.Name == "" {
		s.Name = path
	}
	for i, c := range s.Cases {
		if !validExpectation(c.Expect) {
			return nil, fmt.Errorf("scenario %s: case %d: expect must be APPROVE, DENY or REQUIRE_CONFIRMATION, got %q", path, i+1, c.Expect)
		}
	}
	return &s, nil
}

// LoadAndRun loads a scenario YAML file and runs it against the policy at policyPath.
func LoadAndRun(path, policyPath string) (*RunResult, error) {
	s, err := Load(path)
	if err != nil {
		return nil, err
	}

	result, err := Run(s, policy.NewStore(policyPath).Load())
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", path, err)
	}
	result.File = path
	return result, nil
}

func validExpectation(expect string) bool {
	switch model.Decision(strings.ToUpper(strings.TrimSpace(expect))) {
	case model.Approve, model.Deny, model.RequireConfirmation:
		return true
	default:
		return false
	}
}
