// Package agent is a demo worker that proposes actions to the governor and
// adapts them after a refusal.
package agent

import (
	"math"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"github.com/ppiankov/governor/internal/model"
)

// DefaultAgentID identifies proposals made by the demo worker.
const DefaultAgentID = "worker-agent-1"

var allowlist = []string{"0xSAFE_ALLOWLIST_1", "0xSAFE_ALLOWLIST_2"}

// Generator builds the demo proposal sequence.
type Generator struct {
	agentID string
	now     func() time.Time
	rng     *rand.Rand
}

// NewGenerator returns a Generator. Market snapshots are drawn from a
// PRNG seeded with seed so runs are reproducible.
func NewGenerator(agentID string, seed uint64) *Generator {
	if agentID == "" {
		agentID = DefaultAgentID
	}
	return &Generator{
		agentID: agentID,
		now:     time.Now,
		rng:     rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

func (g *Generator) build(t model.ActionType, intent string, params model.Params, ctx model.Context) model.ActionProposal {
	return model.ActionProposal{
		ID:         uuid.NewString(),
		Timestamp:  g.now().UTC().Format(time.RFC3339Nano),
		AgentID:    g.agentID,
		ActionType: t,
		Intent:     intent,
		Params:     params,
		Context:    ctx,
	}
}

func (g *Generator) SafeTransfer() model.ActionProposal {
	return g.build(model.ActionTransfer, "Transfer small amount to allowlisted recipient.",
		model.TransferParams{AmountUSDC: 10, To: allowlist[0]},
		model.Context{Wallet: Wallet(200)})
}

func (g *Generator) RiskyTransfer() model.ActionProposal {
	return g.build(model.ActionTransfer, "Transfer large amount to unknown recipient.",
		model.TransferParams{AmountUSDC: 120, To: "0xUNKNOWN"},
		model.Context{Wallet: Wallet(200)})
}

func (g *Generator) SafeSwap() model.ActionProposal {
	return g.build(model.ActionSwap, "Swap with low slippage and high liquidity.",
		model.SwapParams{SlippageBps: 20, AmountUSDC: 50, Pair: "USDC/ETH"},
		model.Context{Market: g.Market(MarketOverrides{Volatility: ptr(0.2), LiquidityUSDC: ptr(12000)})})
}

func (g *Generator) RiskySwap() model.ActionProposal {
	return g.build(model.ActionSwap, "Swap with high slippage in low liquidity.",
		model.SwapParams{SlippageBps: 220, AmountUSDC: 50, Pair: "USDC/ETH"},
		model.Context{Market: g.Market(MarketOverrides{Volatility: ptr(0.9), LiquidityUSDC: ptr(800)})})
}

func (g *Generator) SafeDeploy() model.ActionProposal {
	return g.build(model.ActionDeploySim, "Deploy with passing tests.",
		model.DeployParams{Branch: "main"},
		model.Context{Repo: Repo(true)})
}

func (g *Generator) RiskyDeploy() model.ActionProposal {
	return g.build(model.ActionDeploySim, "Deploy with failing tests.",
		model.DeployParams{Branch: "feature/quick-fix"},
		model.Context{Repo: Repo(false)})
}

func (g *Generator) SafeAPICall() model.ActionProposal {
	return g.build(model.ActionAPICall, "Send non-sensitive analytics payload.",
		model.APICallParams{Endpoint: "/analytics", PayloadSize: 5},
		model.Context{API: API(false)})
}

func (g *Generator) RiskyAPICall() model.ActionProposal {
	return g.build(model.ActionAPICall, "Send PII payload to external endpoint.",
		model.APICallParams{Endpoint: "/external/export", PayloadSize: 50},
		model.Context{API: API(true)})
}

func (g *Generator) factories() []func() model.ActionProposal {
	return []func() model.ActionProposal{
		g.SafeTransfer, g.RiskyTransfer,
		g.SafeSwap, g.RiskySwap,
		g.SafeDeploy, g.RiskyDeploy,
		g.SafeAPICall, g.RiskyAPICall,
	}
}

// SequenceLen is the number of distinct proposals in one demo cycle.
const SequenceLen = 8

// Next returns proposal i of the repeating safe/risky cycle.
func (g *Generator) Next(i int) model.ActionProposal {
	fs := g.factories()
	return fs[i%len(fs)]()
}

// Sequence returns one full cycle.
func (g *Generator) Sequence() []model.ActionProposal {
	out := make([]model.ActionProposal, 0, SequenceLen)
	for _, f := range g.factories() {
		out = append(out, f())
	}
	return out
}

// MarketOverrides pins market fields that would otherwise be random.
type MarketOverrides struct {
	Volatility    *float64
	LiquidityUSDC *float64
	SpreadBps     *float64
}

// Market simulates a DEX snapshot: volatility in [0, 0.9), liquidity in
// [3000, 12000] and spread in [10, 50] bps unless overridden.
func (g *Generator) Market(o MarketOverrides) *model.MarketContext {
	m := &model.MarketContext{
		Volatility:    math.Round(g.rng.Float64()*0.9*100) / 100,
		LiquidityUSDC: math.Round(3000 + g.rng.Float64()*9000),
		SpreadBps:     math.Round(10 + g.rng.Float64()*40),
	}
	if o.Volatility != nil {
		m.Volatility = *o.Volatility
	}
	if o.LiquidityUSDC != nil {
		m.LiquidityUSDC = *o.LiquidityUSDC
	}
	if o.SpreadBps != nil {
		m.SpreadBps = *o.SpreadBps
	}
	return m
}

// Repo simulates repository state. A failing build comes with a large diff.
func Repo(testsPassing bool) *model.RepoContext {
	if testsPassing {
		return &model.RepoContext{TestsPassing: true, DiffStat: model.DiffStat{FilesChanged: 5, Insertions: 120, Deletions: 40}}
	}
	return &model.RepoContext{TestsPassing: false, DiffStat: model.DiffStat{FilesChanged: 42, Insertions: 680, Deletions: 210}}
}

func Wallet(balance float64) *model.WalletContext {
	return &model.WalletContext{BalanceUSDC: balance}
}

// API classifies a payload; PII payloads are high sensitivity.
func API(containsPII bool) *model.APIContext {
	if containsPII {
		return &model.APIContext{ContainsPII: true, Sensitivity: "high"}
	}
	return &model.APIContext{ContainsPII: false, Sensitivity: "low"}
}

func ptr(v float64) *float64 { return &v }
