package model

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestUnmarshalTransferCoercesParams(t *testing.T) {
	data := []byte(`{
		"id": "p-1",
		"timestamp": "2026-01-01T00:00:00Z",
		"agentId": "agent-1",
		"actionType": "TRANSFER",
		"intent": "pay",
		"params": {"amount": "12.5", "to": "0xSAFE_ALLOWLIST_1"},
		"context": {"wallet": {"balanceUSDC": 200}}
	}`)

	var p ActionProposal
	if err := json.Unmarshal(data, &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	tr := p.Transfer()
	if tr.AmountUSDC != 12.5 {
		t.Errorf("expected amount fallback 12.5, got %v", tr.AmountUSDC)
	}
	if tr.To != "0xSAFE_ALLOWLIST_1" {
		t.Errorf("unexpected recipient %q", tr.To)
	}
	if p.Context.Wallet == nil || p.Context.Wallet.BalanceUSDC != 200 {
		t.Errorf("expected wallet context, got %+v", p.Context.Wallet)
	}
	if p.Context.Market != nil {
		t.Errorf("expected absent market context to stay nil")
	}
}

func TestAmountUSDCTakesPrecedenceOverAmount(t *testing.T) {
	params := ParamsFromMap(ActionTransfer, map[string]any{"amountUSDC": 3.0, "amount": 99.0})
	if got := params.(TransferParams).AmountUSDC; got != 3 {
		t.Errorf("expected 3, got %v", got)
	}
}

func TestMissingFieldsDefaultToZero(t *testing.T) {
	data := []byte(`{"id":"p","timestamp":"t","agentId":"a","actionType":"SWAP","intent":"","params":{},"context":{"market":{"volatility":"high"}}}`)

	var p ActionProposal
	if err := json.Unmarshal(data, &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if p.Swap().SlippageBps != 0 {
		t.Errorf("expected slippage 0, got %v", p.Swap().SlippageBps)
	}
	if p.Market().Volatility != 0 {
		t.Errorf("expected malformed volatility to decode as 0, got %v", p.Market().Volatility)
	}
	if p.Repo().TestsPassing {
		t.Errorf("expected missing testsPassing to be false")
	}
}

func TestUnknownActionTypeRejected(t *testing.T) {
	var p ActionProposal
	err := json.Unmarshal([]byte(`{"id":"p","actionType":"MINT","params":{}}`), &p)
	if err == nil {
		t.Fatal("expected error for unknown action type")
	}
}

func TestMissingActionTypeRejected(t *testing.T) {
	var p ActionProposal
	err := json.Unmarshal([]byte(`{"id":"p","params":{}}`), &p)
	if !errors.Is(err, ErrInvalidProposal) {
		t.Fatalf("expected ErrInvalidProposal, got %v", err)
	}
}

func TestMarshalIsDeterministic(t *testing.T) {
	p := ActionProposal{
		ID:         "p-1",
		Timestamp:  "2026-01-01T00:00:00Z",
		AgentID:    "agent-1",
		ActionType: ActionDeploySim,
		Intent:     "deploy",
		Params:     DeployParams{Branch: "main"},
		Context:    Context{Repo: &RepoContext{TestsPassing: true, DiffStat: DiffStat{FilesChanged: 5}}},
	}

	first, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	for i := 0; i < 10; i++ {
		again, _ := json.Marshal(p)
		if string(again) != string(first) {
			t.Fatalf("encoding changed between calls:\n%s\n%s", first, again)
		}
	}

	var back ActionProposal
	if err := json.Unmarshal(first, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	again, _ := json.Marshal(back)
	if string(again) != string(first) {
		t.Errorf("decode/encode changed bytes:\n%s\n%s", first, again)
	}
}

func TestMarshalNilParamsUsesZeroVariant(t *testing.T) {
	p := ActionProposal{ID: "p", ActionType: ActionAPICall}
	data, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(data), `"params":{"payloadSize":0}`) {
		t.Errorf("expected zero API params, got %s", data)
	}
}

func TestMarshalUnknownTypeWritesEmptyParams(t *testing.T) {
	data, err := json.Marshal(ActionProposal{ID: "p"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(data), `"params":{}`) {
		t.Errorf("expected empty params object, got %s", data)
	}
}

func TestValidate(t *testing.T) {
	valid := ActionProposal{ID: "p", Timestamp: "t", AgentID: "a", ActionType: ActionTransfer, Params: TransferParams{}}

	tests := []struct {
		name   string
		mutate func(*ActionProposal)
		ok     bool
	}{
		{"valid", func(*ActionProposal) {}, true},
		{"missing id", func(p *ActionProposal) { p.ID = "" }, false},
		{"missing agent", func(p *ActionProposal) { p.AgentID = " " }, false},
		{"missing timestamp", func(p *ActionProposal) { p.Timestamp = "" }, false},
		{"bad type", func(p *ActionProposal) { p.ActionType = "MINT" }, false},
		{"mismatched params", func(p *ActionProposal) { p.Params = SwapParams{} }, false},
		{"nil params", func(p *ActionProposal) { p.Params = nil }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := valid
			tt.mutate(&p)
			err := p.Validate()
			if tt.ok && err != nil {
				t.Errorf("expected valid, got %v", err)
			}
			if !tt.ok && !errors.Is(err, ErrInvalidProposal) {
				t.Errorf("expected ErrInvalidProposal, got %v", err)
			}
		})
	}
}

func TestDecisionUnmarshalRejectsUnknown(t *testing.T) {
	var d Decision
	if err := json.Unmarshal([]byte(`"MAYBE"`), &d); err == nil {
		t.Fatal("expected error for unknown decision")
	}
	if err := json.Unmarshal([]byte(`"REQUIRE_CONFIRMATION"`), &d); err != nil || d != RequireConfirmation {
		t.Fatalf("expected REQUIRE_CONFIRMATION, got %q err=%v", d, err)
	}
}

func TestSeverityDecision(t *testing.T) {
	if SeverityDeny.Decision() != Deny {
		t.Error("DENY severity must force DENY")
	}
	if SeverityConfirm.Decision() != RequireConfirmation {
		t.Error("CONFIRM severity must force REQUIRE_CONFIRMATION")
	}
}

func TestHitsWithSeverityKeepsOrder(t *testing.T) {
	e := PolicyEvaluation{Hits: []PolicyHit{
		{RuleID: "a", Severity: SeverityConfirm},
		{RuleID: "b", Severity: SeverityDeny},
		{RuleID: "c", Severity: SeverityConfirm},
	}}
	got := e.HitsWithSeverity(SeverityConfirm)
	if len(got) != 2 || got[0].RuleID != "a" || got[1].RuleID != "c" {
		t.Errorf("unexpected confirm hits: %+v", got)
	}
	if ids := e.RuleIDs(); strings.Join(ids, ",") != "a,b,c" {
		t.Errorf("unexpected rule ids: %v", ids)
	}
}

func TestNonFiniteNumbersDecodeAsZero(t *testing.T) {
	for _, raw := range []string{"NaN", "Inf", "-Infinity", "+Inf"} {
		t.Run(raw, func(t *testing.T) {
			data := []byte(`{"id":"p","timestamp":"t","agentId":"a","actionType":"TRANSFER","intent":"",` +
				`"params":{"amountUSDC":"` + raw + `","to":"0xA"},"context":{"wallet":{"balanceUSDC":"` + raw + `"}}}`)

			var p ActionProposal
			if err := json.Unmarshal(data, &p); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if got := p.Transfer().AmountUSDC; got != 0 {
				t.Errorf("expected amount 0, got %v", got)
			}
			if p.Context.Wallet == nil || p.Context.Wallet.BalanceUSDC != 0 {
				t.Errorf("expected wallet balance 0, got %+v", p.Context.Wallet)
			}
			if _, err := json.Marshal(p); err != nil {
				t.Errorf("re-encode: %v", err)
			}
		})
	}
}
