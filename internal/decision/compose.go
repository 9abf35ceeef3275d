// Package decision reconciles policy hits with a recommendation.
package decision

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/ppiankov/governor/internal/model"
	"github.com/ppiankov/governor/internal/policy"
)

var requiredEdits = map[string]string{
	policy.RuleMaxSingleTransfer:  "Reduce transfer amount below the policy max.",
	policy.RuleMaxDailySpend:      "Wait for the daily spend window to reset or lower amount.",
	policy.RuleAllowlistRecipient: "Use an allowlisted recipient or update allowlist.",
	policy.RuleDenylistRecipients: "Choose a recipient not on the denylist.",
	policy.RuleSwapMaxSlippage:    "Lower slippage tolerance.",
	policy.RuleSwapMinLiquidity:   "Select a pool with higher liquidity.",
	policy.RuleDeployTests:        "Run and pass tests before deployment.",
	policy.RuleAPIDenyPII:         "Redact or tokenize PII before API calls.",
}

// Compose builds the final decision.
//
// Precedence: any DENY hit forces DENY, otherwise any CONFIRM hit forces
// REQUIRE_CONFIRMATION, otherwise the recommendation's decision stands.
// PolicyHits always lists every hit; the explanation prefix names only the
// hits of the tier that overrode the recommendation.
func Compose(p model.ActionProposal, pol policy.Policy, eval model.PolicyEvaluation, rec model.Recommendation, riskScore int) model.GovernorDecision {
	final := rec.Decision
	explanation := rec.Explanation

	if tier, hits := override(eval); len(hits) > 0 {
		final = tier.Decision()
		ids := make([]string, len(hits))
		for i, h := range hits {
			ids[i] = h.RuleID
		}
		explanation = fmt.Sprintf("Policy override (%s). %s", strings.Join(ids, ", "), rec.Explanation)
	}

	d := model.GovernorDecision{
		ProposalID:  p.ID,
		Decision:    final,
		RiskScore:   riskScore,
		PolicyHits:  eval.RuleIDs(),
		Explanation: explanation,
	}
	if len(eval.Hits) > 0 {
		d.RequiredEdits = edits(eval.Hits)
	}
	if final != model.Approve {
		d.SafeAlternative = SafeAlternative(p, pol)
	}
	return d
}

func override(eval model.PolicyEvaluation) (model.Severity, []model.PolicyHit) {
	if hits := eval.HitsWithSeverity(model.SeverityDeny); len(hits) > 0 {
		return model.SeverityDeny, hits
	}
	return model.SeverityConfirm, eval.HitsWithSeverity(model.SeverityConfirm)
}

func edits(hits []model.PolicyHit) []string {
	out := make([]string, 0, len(hits))
	for _, h := range hits {
		if e, ok := requiredEdits[h.RuleID]; ok {
			out = append(out, e)
			continue
		}
		out = append(out, h.Message)
	}
	return out
}

// SafeAlternative suggests a constructive variant of p that the policy
// would accept.
func SafeAlternative(p model.ActionProposal, pol policy.Policy) string {
	switch p.ActionType {
	case model.ActionTransfer:
		amount := math.Min(pol.MaxSingleTransferUSDC, pol.MaxDailySpendUSDC)
		to := "allowlisted_recipient"
		if len(pol.AllowlistRecipients) > 0 {
			to = pol.AllowlistRecipients[0]
		}
		return fmt.Sprintf("Propose a transfer of %s USDC to %s.", num(amount), to)
	case model.ActionSwap:
		return fmt.Sprintf("Use slippage <= %s bps and liquidity >= %s USDC.",
			num(pol.SwapMaxSlippageBps), num(pol.SwapMinLiquidityUSDC))
	case model.ActionDeploySim:
		return "Re-run tests and re-propose after they pass."
	case model.ActionAPICall:
		return "Send a redacted payload with no PII."
	default:
		return ""
	}
}

func num(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
