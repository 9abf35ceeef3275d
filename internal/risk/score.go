// Package risk computes a heuristic 0-100 risk score for agent proposals.
//
// The score uses its own thresholds and is independent of the policy
// rules in package policy. A proposal can score high without a policy
// hit and the other way around.
package risk

import (
	"math"
	"slices"

	"github.com/ppiankov/governor/internal/model"
	"github.com/ppiankov/governor/internal/policy"
)

const (
	baseScore = 5

	// Fallback judge thresholds.
	DenyThreshold    = 80
	ConfirmThreshold = 55

	highVolatility  = 0.7
	largeDiffFiles  = 30
	spendRatioWarn  = 0.7
	sensitivityHigh = "high"
)

// Context carries optional inputs to Score.
type Context struct {
	// DailySpend is the USDC approved in the current window. Nil skips the
	// spend ratio penalty.
	DailySpend *float64
}

// WithSpend returns a Context carrying the given daily spend.
func WithSpend(v float64) Context {
	return Context{DailySpend: &v}
}

// Score returns the risk score of p under pol, clamped to [0, 100].
func Score(p model.ActionProposal, pol policy.Policy, ctx Context) int {
	risk := float64(baseScore)

	switch p.ActionType {
	case model.ActionTransfer:
		t := p.Transfer()
		if t.AmountUSDC > pol.MaxSingleTransferUSDC {
			risk += 25
		}
		if t.AmountUSDC > pol.MaxDailySpendUSDC {
			risk += 15
		}
		if slices.Contains(pol.DenylistRecipients, t.To) {
			risk += 50
		}
		if len(pol.AllowlistRecipients) > 0 && !slices.Contains(pol.AllowlistRecipients, t.To) {
			risk += 15
		}

	case model.ActionSwap:
		m := p.Market()
		if p.Swap().SlippageBps > pol.SwapMaxSlippageBps {
			risk += 20
		}
		if m.LiquidityUSDC < pol.SwapMinLiquidityUSDC {
			risk += 20
		}
		if m.Volatility > highVolatility {
			risk += 15
		}

	case model.ActionDeploySim:
		r := p.Repo()
		if !r.TestsPassing {
			risk += 25
		}
		if r.DiffStat.FilesChanged > largeDiffFiles {
			risk += 10
		}

	case model.ActionAPICall:
		a := p.API()
		if a.ContainsPII {
			risk += 30
		}
		if a.Sensitivity == sensitivityHigh {
			risk += 15
		}
	}

	if ctx.DailySpend != nil {
		ratio := *ctx.DailySpend / math.Max(pol.MaxDailySpendUSDC, 1)
		switch {
		case ratio > 1:
			risk += 25
		case ratio > spendRatioWarn:
			risk += 10
		}
	}

	return clamp(int(math.Round(risk)), 0, 100)
}

// Level buckets a score the way the fallback judge does.
func Level(score int) model.Decision {
	switch {
	case score >= DenyThreshold:
		return model.Deny
	case score >= ConfirmThreshold:
		return model.RequireConfirmation
	default:
		return model.Approve
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
