package agent

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ppiankov/governor/internal/api"
	"github.com/ppiankov/governor/internal/governor"
	"github.com/ppiankov/governor/internal/judge"
	"github.com/ppiankov/governor/internal/ledger"
	"github.com/ppiankov/governor/internal/model"
	"github.com/ppiankov/governor/internal/policy"
)

func newService(t *testing.T) *governor.Service {
	t.Helper()
	l, err := ledger.Open(context.Background(), ledger.DriverSQLite, filepath.Join(t.TempDir(), "audit.db"))
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	t.Cleanup(func() { _ = l.Close() })
	return governor.New(l, policy.NewHolder(policy.Default(), ""), judge.Static{})
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSequence(t *testing.T) {
	g := NewGenerator("", 1)
	seq := g.Sequence()
	if len(seq) != SequenceLen {
		t.Fatalf("expected %d proposals, got %d", SequenceLen, len(seq))
	}

	want := []model.ActionType{
		model.ActionTransfer, model.ActionTransfer,
		model.ActionSwap, model.ActionSwap,
		model.ActionDeploySim, model.ActionDeploySim,
		model.ActionAPICall, model.ActionAPICall,
	}
	seen := map[string]bool{}
	for i, p := range seq {
		if p.ActionType != want[i] {
			t.Errorf("proposal %d: expected %s, got %s", i, want[i], p.ActionType)
		}
		if err := p.Validate(); err != nil {
			t.Errorf("proposal %d invalid: %v", i, err)
		}
		if p.AgentID != DefaultAgentID {
			t.Errorf("expected agent %s, got %s", DefaultAgentID, p.AgentID)
		}
		if seen[p.ID] {
			t.Errorf("duplicate id %s", p.ID)
		}
		seen[p.ID] = true
	}
}

func TestNextCycles(t *testing.T) {
	g := NewGenerator("bot", 1)
	if a, b := g.Next(1), g.Next(1+SequenceLen); a.ActionType != b.ActionType || a.Intent != b.Intent {
		t.Errorf("expected cycle, got %s and %s", a.Intent, b.Intent)
	}
	if g.Next(0).AgentID != "bot" {
		t.Error("expected custom agent id")
	}
}

func TestMarket(t *testing.T) {
	g := NewGenerator("", 7)
	for range 100 {
		m := g.Market(MarketOverrides{})
		if m.Volatility < 0 || m.Volatility > 0.9 {
			t.Fatalf("volatility out of range: %v", m.Volatility)
		}
		if m.LiquidityUSDC < 3000 || m.LiquidityUSDC > 12000 {
			t.Fatalf("liquidity out of range: %v", m.LiquidityUSDC)
		}
		if m.SpreadBps < 10 || m.SpreadBps > 50 {
			t.Fatalf("spread out of range: %v", m.SpreadBps)
		}
	}

	m := g.Market(MarketOverrides{Volatility: ptr(0.9), LiquidityUSDC: ptr(800), SpreadBps: ptr(12)})
	if m.Volatility != 0.9 || m.LiquidityUSDC != 800 || m.SpreadBps != 12 {
		t.Errorf("overrides not applied: %+v", m)
	}
}

func TestRepo(t *testing.T) {
	if r := Repo(true); !r.TestsPassing || r.DiffStat.FilesChanged != 5 {
		t.Errorf("unexpected passing repo %+v", r)
	}
	if r := Repo(false); r.TestsPassing || r.DiffStat.FilesChanged != 42 {
		t.Errorf("unexpected failing repo %+v", r)
	}
}

func TestAdapt(t *testing.T) {
	g := NewGenerator("", 1)
	deny := model.GovernorDecision{Decision: model.Deny}
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		in    model.ActionProposal
		check func(t *testing.T, p model.ActionProposal)
	}{
		{"transfer", g.RiskyTransfer(), func(t *testing.T, p model.ActionProposal) {
			if tr := p.Transfer(); tr.AmountUSDC != 10 || tr.To != "0xSAFE_ALLOWLIST_1" {
				t.Errorf("unexpected transfer %+v", tr)
			}
		}},
		{"swap", g.RiskySwap(), func(t *testing.T, p model.ActionProposal) {
			if s := p.Swap(); s.SlippageBps != 25 || s.Pair != "USDC/ETH" || s.AmountUSDC != 50 {
				t.Errorf("unexpected swap %+v", s)
			}
			if m := p.Market(); m.LiquidityUSDC != 12000 || m.Volatility != 0.2 {
				t.Errorf("unexpected market %+v", m)
			}
		}},
		{"deploy", g.RiskyDeploy(), func(t *testing.T, p model.ActionProposal) {
			if r := p.Repo(); !r.TestsPassing || r.DiffStat.FilesChanged != 42 {
				t.Errorf("unexpected repo %+v", r)
			}
		}},
		{"api call", g.RiskyAPICall(), func(t *testing.T, p model.ActionProposal) {
			if a := p.API(); a.ContainsPII || a.Sensitivity != "high" {
				t.Errorf("unexpected api context %+v", a)
			}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, ok := Adapt(tt.in, deny, now)
			if !ok {
				t.Fatal("expected adaptation")
			}
			if out.ID == tt.in.ID || out.ID == "" {
				t.Errorf("expected fresh id, got %q", out.ID)
			}
			if out.Timestamp != "2026-03-01T00:00:00Z" {
				t.Errorf("unexpected timestamp %s", out.Timestamp)
			}
			if out.AgentID != tt.in.AgentID || out.ActionType != tt.in.ActionType {
				t.Errorf("identity changed: %+v", out)
			}
			if out.Intent == tt.in.Intent {
				t.Error("expected new intent")
			}
			tt.check(t, out)
		})
	}
}

func TestAdaptApproved(t *testing.T) {
	g := NewGenerator("", 1)
	if _, ok := Adapt(g.SafeTransfer(), model.GovernorDecision{Decision: model.Approve}, time.Now()); ok {
		t.Error("approved proposals must not be adapted")
	}
}

func TestAdaptLeavesOriginalUntouched(t *testing.T) {
	g := NewGenerator("", 1)
	orig := g.RiskyAPICall()
	if _, ok := Adapt(orig, model.GovernorDecision{Decision: model.RequireConfirmation}, time.Now()); !ok {
		t.Fatal("expected adaptation")
	}
	if !orig.API().ContainsPII {
		t.Error("original context was mutated")
	}
}

func TestRunnerLocal(t *testing.T) {
	g := NewGenerator("", 1)
	r := NewRunner(g, Local{Service: newService(t)},
		WithInterval(0), WithAdaptDelay(0), WithLogger(quietLogger()))

	rounds := r.Run(context.Background(), SequenceLen)
	if len(rounds) != SequenceLen {
		t.Fatalf("expected %d rounds, got %d", SequenceLen, len(rounds))
	}

	for i, round := range rounds {
		safe := i%2 == 0
		if safe {
			if round.Decision.Decision != model.Approve || round.Adapted != nil {
				t.Errorf("round %d: expected plain approval, got %s", i, round.Decision.Decision)
			}
			continue
		}
		if round.Decision.Decision != model.Deny {
			t.Errorf("round %d: expected DENY, got %s", i, round.Decision.Decision)
		}
		if round.AdaptedDecision == nil || round.AdaptedDecision.Decision != model.Approve {
			t.Errorf("round %d: expected adapted approval, got %+v", i, round.AdaptedDecision)
		}
	}
}

func TestRunnerStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := NewRunner(NewGenerator("", 1), Local{Service: newService(t)}, WithLogger(quietLogger()))
	if rounds := r.Run(ctx, 0); len(rounds) != 0 {
		t.Errorf("expected no rounds after cancel, got %d", len(rounds))
	}
}

func TestRemoteSubmit(t *testing.T) {
	srv := httptest.NewServer(api.New(newService(t), api.NewAuth([]string{"operator=op-key"}, quietLogger()), judge.Info{}, quietLogger()).Handler())
	defer srv.Close()

	g := NewGenerator("", 1)
	d, err := NewRemote(srv.URL+"/", "op-key").Submit(context.Background(), g.RiskyTransfer())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if d.Decision != model.Deny || len(d.PolicyHits) == 0 {
		t.Errorf("unexpected decision %+v", d)
	}

	if _, err := NewRemote(srv.URL, "").Submit(context.Background(), g.SafeTransfer()); err == nil || !strings.Contains(err.Error(), "401") {
		t.Errorf("expected 401 without key, got %v", err)
	}
}

func TestRemoteBadResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer srv.Close()

	if _, err := NewRemote(srv.URL, "").Submit(context.Background(), NewGenerator("", 1).SafeSwap()); err == nil {
		t.Error("expected decode error")
	}
}
