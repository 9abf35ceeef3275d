package policy

import (
	"fmt"
	"slices"
	"strconv"

	"github.com/ppiankov/governor/internal/model"
)

// Rule ids. They double as the policy field each rule reads.
const (
	RuleMaxSingleTransfer  = "maxSingleTransferUSDC"
	RuleMaxDailySpend      = "maxDailySpendUSDC"
	RuleDenylistRecipients = "denylistRecipients"
	RuleAllowlistRecipient = "allowlistRecipients"
	RuleSwapMaxSlippage    = "swapMaxSlippageBps"
	RuleSwapMinLiquidity   = "swapMinLiquidityUSDC"
	RuleDeployTests        = "deployRequiresTestsPassing"
	RuleAPIDenyPII         = "apiDenyPIIExfiltration"
)

// Evaluate checks a proposal against the policy rules for its action type.
// dailySpend is the USDC already approved in the current window.
//
// Evaluation order per type (must not be changed, hit order is part of the result):
//
//	TRANSFER   single transfer limit, daily spend, denylist, allowlist
//	SWAP       slippage, liquidity
//	DEPLOY_SIM tests passing
//	API_CALL   PII exfiltration
func Evaluate(p model.ActionProposal, pol Policy, dailySpend float64) model.PolicyEvaluation {
	var hits []model.PolicyHit

	deny := func(ruleID, msg string) {
		hits = append(hits, model.PolicyHit{RuleID: ruleID, Message: msg, Severity: model.SeverityDeny})
	}
	confirm := func(ruleID, msg string) {
		hits = append(hits, model.PolicyHit{RuleID: ruleID, Message: msg, Severity: model.SeverityConfirm})
	}

	switch p.ActionType {
	case model.ActionTransfer:
		t := p.Transfer()
		if t.AmountUSDC > pol.MaxSingleTransferUSDC {
			deny(RuleMaxSingleTransfer, fmt.Sprintf("Transfer amount %s exceeds max single transfer %s.",
				num(t.AmountUSDC), num(pol.MaxSingleTransferUSDC)))
		}
		if total := dailySpend + t.AmountUSDC; total > pol.MaxDailySpendUSDC {
			confirm(RuleMaxDailySpend, fmt.Sprintf("Daily spend %s exceeds max daily spend %s.",
				num(total), num(pol.MaxDailySpendUSDC)))
		}
		if slices.Contains(pol.DenylistRecipients, t.To) {
			deny(RuleDenylistRecipients, fmt.Sprintf("Recipient %s is on the denylist.", t.To))
		}
		if len(pol.AllowlistRecipients) > 0 && !slices.Contains(pol.AllowlistRecipients, t.To) {
			confirm(RuleAllowlistRecipient, fmt.Sprintf("Recipient %s is not on the allowlist.", t.To))
		}

	case model.ActionSwap:
		slippage := p.Swap().SlippageBps
		liquidity := p.Market().LiquidityUSDC
		if slippage > pol.SwapMaxSlippageBps {
			confirm(RuleSwapMaxSlippage, fmt.Sprintf("Slippage %s bps exceeds max %s bps.",
				num(slippage), num(pol.SwapMaxSlippageBps)))
		}
		if liquidity < pol.SwapMinLiquidityUSDC {
			deny(RuleSwapMinLiquidity, fmt.Sprintf("Liquidity %s below min %s.",
				num(liquidity), num(pol.SwapMinLiquidityUSDC)))
		}

	case model.ActionDeploySim:
		if pol.DeployRequiresTestsPassing && !p.Repo().TestsPassing {
			deny(RuleDeployTests, "Tests are not passing for deploy simulation.")
		}

	case model.ActionAPICall:
		if pol.APIDenyPIIExfiltration && p.API().ContainsPII {
			deny(RuleAPIDenyPII, "API call contains PII and policy forbids exfiltration.")
		}
	}

	return model.PolicyEvaluation{Hits: hits, DailySpendUSDC: dailySpend}
}

// num formats a number without trailing zeros (35, 0.5, 5000).
func num(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
