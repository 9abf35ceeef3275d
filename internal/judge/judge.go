// Package judge produces recommendations for proposals, either from a
// live chat model or from a deterministic fallback.
package judge

import (
	"context"
	"fmt"

	"github.com/ppiankov/governor/internal/model"
	"github.com/ppiankov/governor/internal/policy"
	"github.com/ppiankov/governor/internal/risk"
)

// Outcome records whether a recommendation came from the live provider.
type Outcome int

const (
	Live Outcome = iota
	Fallback
)

func (o Outcome) String() string {
	switch o {
	case Live:
		return "live"
	case Fallback:
		return "fallback"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Fallback reasons.
const (
	ReasonMock        = "mock mode enabled"
	ReasonMissingKey  = "missing API key"
	ReasonUnparseable = "unparseable provider response"
	ReasonError       = "provider error"
)

// Result is the output of a recommendation call.
type Result struct {
	Recommendation model.Recommendation
	// Raw is the provider's text, or the error message when the call failed.
	// Empty when no call was attempted.
	Raw            string
	Outcome        Outcome
	FallbackReason string
}

// UsedFallback reports whether the deterministic fallback produced the result.
func (r Result) UsedFallback() bool {
	return r.Outcome == Fallback
}

// Provider recommends a decision for a proposal. Implementations must not
// return errors: every failure resolves to the fallback recommendation.
type Provider interface {
	Recommend(ctx context.Context, p model.ActionProposal, pol policy.Policy, summary model.AuditSummary) Result
}

const fallbackExplanation = "Fallback judge used. Decision based on deterministic risk scoring."

// FallbackRecommendation is a pure function of the proposal and policy.
// It ignores spend context and any live provider state.
func FallbackRecommendation(p model.ActionProposal, pol policy.Policy) model.Recommendation {
	score := risk.Score(p, pol, risk.Context{})
	return model.Recommendation{
		Decision: risk.Level(score),
		RiskFactors: []string{
			fmt.Sprintf("Fallback risk score %d", score),
			fmt.Sprintf("Action: %s", p.ActionType),
		},
		Explanation: fallbackExplanation,
	}
}

func fallbackResult(p model.ActionProposal, pol policy.Policy, reason, raw string) Result {
	return Result{
		Recommendation: FallbackRecommendation(p, pol),
		Raw:            raw,
		Outcome:        Fallback,
		FallbackReason: reason,
	}
}

// Static always answers with the fallback recommendation.
type Static struct {
	Reason string
}

// Recommend implements Provider.
func (s Static) Recommend(_ context.Context, p model.ActionProposal, pol policy.Policy, _ model.AuditSummary) Result {
	reason := s.Reason
	if reason == "" {
		reason = ReasonMock
	}
	return fallbackResult(p, pol, reason, "")
}
