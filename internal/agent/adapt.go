package agent

import (
	"time"

	"github.com/google/uuid"

	"github.com/ppiankov/governor/internal/model"
)

// Adapt returns a safer variant of p after the governor refused it.
// It reports false when d approved p or no adaptation exists.
// The variant gets a fresh id and timestamp and never shares context
// pointers with p.
func Adapt(p model.ActionProposal, d model.GovernorDecision, now time.Time) (model.ActionProposal, bool) {
	if d.Decision == model.Approve {
		return model.ActionProposal{}, false
	}

	next := p
	next.ID = uuid.NewString()
	next.Timestamp = now.UTC().Format(time.RFC3339Nano)
	next.Context = cloneContext(p.Context)

	switch p.ActionType {
	case model.ActionTransfer:
		next.Intent = "Safer transfer after governor feedback."
		next.Params = model.TransferParams{AmountUSDC: 10, To: allowlist[0]}

	case model.ActionSwap:
		next.Intent = "Lower slippage swap after governor feedback."
		s := p.Swap()
		s.SlippageBps = 25
		next.Params = s
		m := p.Market()
		m.LiquidityUSDC = 12000
		m.Volatility = 0.2
		next.Context.Market = &m

	case model.ActionDeploySim:
		next.Intent = "Re-propose deploy after tests pass."
		r := p.Repo()
		r.TestsPassing = true
		next.Context.Repo = &r

	case model.ActionAPICall:
		next.Intent = "Redacted API call after governor feedback."
		a := p.API()
		a.ContainsPII = false
		next.Context.API = &a

	default:
		return model.ActionProposal{}, false
	}
	return next, true
}

func cloneContext(c model.Context) model.Context {
	var out model.Context
	if c.Market != nil {
		m := *c.Market
		out.Market = &m
	}
	if c.Wallet != nil {
		w := *c.Wallet
		out.Wallet = &w
	}
	if c.Repo != nil {
		r := *c.Repo
		out.Repo = &r
	}
	if c.API != nil {
		a := *c.API
		out.API = &a
	}
	return out
}
