package scenario

import (
	"strconv"
	"strings"

	"github.com/ppiankov/governor/internal/model"
)

// CaseProposal is the proposal under test, written loosely in YAML.
type CaseProposal struct {
	ID         string                    `yaml:"id,omitempty"`
	Agent      string                    `yaml:"agent,omitempty"`
	ActionType string                    `yaml:"actionType"`
	Intent     string                    `yaml:"intent,omitempty"`
	Params     map[string]any            `yaml:"params,omitempty"`
	Context    map[string]map[string]any `yaml:"context,omitempty"`
}

// Case is one test case within a scenario.
type Case struct {
	Name       string       `yaml:"name,omitempty"`
	Proposal   CaseProposal `yaml:"proposal"`
	DailySpend float64      `yaml:"dailySpendUSDC,omitempty"`
	Expect     string       `yaml:"expect"`
	ExpectHits []string     `yaml:"expectHits,omitempty"`
}

// Scenario is a named collection of proposal test cases. Policy overrides
// individual fields of the policy the scenario runs against.
type Scenario struct {
	Name   string         `yaml:"name"`
	Policy map[string]any `yaml:"policy,omitempty"`
	Cases  []Case         `yaml:"cases"`
}

// CaseResult is the outcome of evaluating one test case.
type CaseResult struct {
	Index      int      `json:"index"`
	Name       string   `json:"name,omitempty"`
	Passed     bool     `json:"passed"`
	ActionType string   `json:"actionType"`
	Expected   string   `json:"expected"`
	Actual     string   `json:"actual"`
	RiskScore  int      `json:"riskScore"`
	PolicyHits []string `json:"policyHits"`
	Reason     string   `json:"reason"`
}

// RunResult is the outcome of running all cases in one scenario file.
type RunResult struct {
	File   string       `json:"file"`
	Name   string       `json:"name"`
	Total  int          `json:"total"`
	Passed int          `json:"passed"`
	Failed int          `json:"failed"`
	Error  string       `json:"error,omitempty"`
	Cases  []CaseResult `json:"cases"`
}

// proposal builds the typed proposal for case i.
func (c Case) proposal(i int) model.ActionProposal {
	cp := c.Proposal
	actionType := model.ActionType(strings.ToUpper(strings.TrimSpace(cp.ActionType)))
	id := cp.ID
	if id == "" {
		id = "scenario-" + strconv.Itoa(i)
	}
	agent := cp.Agent
	if agent == "" {
		agent = "scenario"
	}
	return model.ActionProposal{
		ID:         id,
		Timestamp:  "1970-01-01T00:00:00Z",
		AgentID:    agent,
		ActionType: actionType,
		Intent:     cp.Intent,
		Params:     model.ParamsFromMap(actionType, cp.Params),
		Context:    model.ContextFromMap(cp.Context),
	}
}
