// Package sim replays recorded proposals against a candidate policy.
package sim

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/ppiankov/governor/internal/governor"
	"github.com/ppiankov/governor/internal/judge"
	"github.com/ppiankov/governor/internal/ledger"
	"github.com/ppiankov/governor/internal/model"
	"github.com/ppiankov/governor/internal/policy"
)

const spendWindow = 24 * time.Hour

// Source yields recorded entries oldest first.
type Source interface {
	Each(ctx context.Context, fn func(ledger.Entry) error) error
}

// Simulate replays every entry in src against pol and returns decision diffs.
//
// Daily spend is rebuilt from the replayed decisions, so a stricter policy
// also changes the spend seen by later transfers. The recorded
// recommendation is reused when the original decision had no policy hits;
// otherwise the fallback recommendation stands in for it.
func Simulate(ctx context.Context, src Source, pol policy.Policy, policyPath string) (*SimResult, error) {
	result := &SimResult{
		PolicyPath: policyPath,
		Changes:    []DiffEntry{},
	}
	var spend spendWindowTracker

	err := src.Each(ctx, func(e ledger.Entry) error {
		p, err := e.Proposal()
		if err != nil {
			result.Skipped++
			return nil
		}
		old, err := e.DecisionPayload()
		if err != nil {
			result.Skipped++
			return nil
		}
		result.TotalActions++

		rec := judge.FallbackRecommendation(p, pol)
		if len(old.PolicyHits) == 0 {
			rec.Decision = old.Decision
		}

		next := governor.Decide(p, pol, spend.total(e.CreatedAt), rec)
		if next.Decision == model.Approve && p.ActionType == model.ActionTransfer {
			spend.add(e.CreatedAt, p.Transfer().AmountUSDC)
		}

		if next.Decision == e.Decision && slices.Equal(next.PolicyHits, old.PolicyHits) {
			return nil
		}

		result.ChangedActions++
		result.Changes = append(result.Changes, DiffEntry{
			AuditID:        e.ID,
			CreatedAt:      e.CreatedAt.UTC().Format(time.RFC3339),
			ProposalID:     e.ProposalID,
			ActionType:     string(p.ActionType),
			OldDecision:    string(e.Decision),
			NewDecision:    string(next.Decision),
			OldHits:        old.PolicyHits,
			NewHits:        next.PolicyHits,
			NewExplanation: next.Explanation,
		})
		switch {
		case isPermissive(e.Decision) && isRestrictive(next.Decision):
			result.NewlyBlocked++
		case isRestrictive(e.Decision) && isPermissive(next.Decision):
			result.NewlyAllowed++
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("replay ledger: %w", err)
	}
	return result, nil
}

// spendWindowTracker sums approved transfer amounts over a trailing window.
type spendWindowTracker struct {
	events []spendEvent
}

type spendEvent struct {
	at     time.Time
	amount float64
}

func (t *spendWindowTracker) add(at time.Time, amount float64) {
	t.events = append(t.events, spendEvent{at: at, amount: amount})
}

// total returns the spend recorded in (at-24h, at].
func (t *spendWindowTracker) total(at time.Time) float64 {
	cutoff := at.Add(-spendWindow)
	keep := t.events[:0]
	sum := 0.0
	for _, ev := range t.events {
		if ev.at.After(cutoff) {
			keep = append(keep, ev)
			if !ev.at.After(at) {
				sum += ev.amount
			}
		}
	}
	t.events = keep
	return sum
}
