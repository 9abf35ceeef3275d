// Package governor sequences policy evaluation, risk scoring, the
// recommendation provider and decision composition for each proposal,
// and records the result in the ledger.
package governor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/ppiankov/governor/internal/alert"
	"github.com/ppiankov/governor/internal/decision"
	"github.com/ppiankov/governor/internal/judge"
	"github.com/ppiankov/governor/internal/ledger"
	"github.com/ppiankov/governor/internal/model"
	"github.com/ppiankov/governor/internal/policy"
	"github.com/ppiankov/governor/internal/risk"
)

const (
	spendWindowHours = 24
	summaryLimit     = 10
)

// Outcome is what a caller gets back for one proposal.
type Outcome struct {
	Decision       model.GovernorDecision
	AuditID        int64
	UsedFallback   bool
	FallbackReason string
}

// MarshalJSON flattens the decision next to auditId and usedFallback.
func (o Outcome) MarshalJSON() ([]byte, error) {
	type flat struct {
		model.GovernorDecision
		AuditID      int64 `json:"auditId"`
		UsedFallback bool  `json:"usedFallback"`
	}
	return json.Marshal(flat{GovernorDecision: o.Decision, AuditID: o.AuditID, UsedFallback: o.UsedFallback})
}

// Service is the single entry point for evaluating proposals.
type Service struct {
	ledger   *ledger.Ledger
	policies *policy.Holder
	store    *policy.Store
	judge    judge.Provider
	alerts   *alert.Dispatcher
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithAlerts dispatches DENY and REQUIRE_CONFIRMATION outcomes.
func WithAlerts(d *alert.Dispatcher) Option {
	return func(s *Service) { s.alerts = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithPolicyStore enables UpdatePolicy persistence.
func WithPolicyStore(st *policy.Store) Option {
	return func(s *Service) { s.store = st }
}

// WithClock overrides the time source used for latency measurement.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New creates a Service.
func New(l *ledger.Ledger, policies *policy.Holder, provider judge.Provider, opts ...Option) *Service {
	s := &Service{
		ledger:   l,
		policies: policies,
		judge:    provider,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	if s.judge == nil {
		s.judge = judge.Static{Reason: judge.ReasonMock}
	}
	return s
}

// EvaluateProposal runs the full pipeline for one proposal and records it.
//
// Everything before the ledger append runs without holding the ledger's
// writer lock, including the recommendation call. The daily spend read
// here can be stale by the time of the append when proposals arrive
// concurrently.
func (s *Service) EvaluateProposal(ctx context.Context, p model.ActionProposal) (Outcome, error) {
	start := s.now()
	if err := p.Validate(); err != nil {
		return Outcome{}, err
	}

	pol, policyHash := s.policies.SnapshotWithHash()

	spend, err := s.ledger.DailySpend(ctx, spendWindowHours)
	if err != nil {
		return Outcome{}, fmt.Errorf("governor: daily spend: %w", err)
	}
	eval := policy.Evaluate(p, pol, spend)

	summary, err := s.ledger.Summary(ctx, summaryLimit)
	if err != nil {
		return Outcome{}, fmt.Errorf("governor: audit summary: %w", err)
	}
	rec := s.judge.Recommend(ctx, p, pol, summary)

	d := compose(p, pol, eval, spend, rec.Recommendation)

	latency := s.now().Sub(start).Milliseconds()
	id, err := s.ledger.Append(ctx, p, d, latency, rec.Raw)
	if err != nil {
		return Outcome{}, fmt.Errorf("governor: record decision: %w", err)
	}

	out := Outcome{Decision: d, AuditID: id, UsedFallback: rec.UsedFallback(), FallbackReason: rec.FallbackReason}

	if d.Decision != model.Approve {
		s.alerts.Dispatch(alert.NewEvent(s.now(), id, p, d, out.UsedFallback, policyHash))
	}

	s.logger.Info("proposal evaluated",
		"proposal_id", p.ID,
		"agent_id", p.AgentID,
		"action_type", p.ActionType,
		"decision", d.Decision,
		"risk_score", d.RiskScore,
		"policy_hits", d.PolicyHits,
		"audit_id", id,
		"used_fallback", out.UsedFallback,
		"fallback_reason", rec.FallbackReason,
		"latency_ms", latency,
		"policy_hash", policyHash,
	)
	return out, nil
}

// Decide runs the deterministic part of the pipeline for p: policy
// evaluation, risk scoring and composition with rec. It touches no storage.
func Decide(p model.ActionProposal, pol policy.Policy, dailySpend float64, rec model.Recommendation) model.GovernorDecision {
	return compose(p, pol, policy.Evaluate(p, pol, dailySpend), dailySpend, rec)
}

// DecideWithFallback is Decide with the deterministic fallback recommendation.
func DecideWithFallback(p model.ActionProposal, pol policy.Policy, dailySpend float64) model.GovernorDecision {
	return Decide(p, pol, dailySpend, judge.FallbackRecommendation(p, pol))
}

func compose(p model.ActionProposal, pol policy.Policy, eval model.PolicyEvaluation, spend float64, rec model.Recommendation) model.GovernorDecision {
	score := risk.Score(p, pol, risk.WithSpend(spend))
	return decision.Compose(p, pol, eval, rec, score)
}

// ListAudit returns ledger entries newest first.
func (s *Service) ListAudit(ctx context.Context, limit, offset int) ([]ledger.Entry, error) {
	return s.ledger.List(ctx, limit, offset)
}

// GetAudit looks up one entry; found is false for unknown ids.
func (s *Service) GetAudit(ctx context.Context, id int64) (ledger.Entry, bool, error) {
	return s.ledger.Get(ctx, id)
}

// VerifyChain checks the hash chain.
func (s *Service) VerifyChain(ctx context.Context, limit int) (ledger.VerifyResult, error) {
	return s.ledger.Verify(ctx, limit)
}

// DailySpend returns approved transfer volume within the window.
func (s *Service) DailySpend(ctx context.Context, windowHours float64) (float64, error) {
	return s.ledger.DailySpend(ctx, windowHours)
}

// AuditSummary returns the recent activity summary.
func (s *Service) AuditSummary(ctx context.Context, limit int) (model.AuditSummary, error) {
	return s.ledger.Summary(ctx, limit)
}

// Policy returns the current policy snapshot.
func (s *Service) Policy() policy.Policy {
	return s.policies.Snapshot()
}

// UpdatePolicy validates p, persists it when a store is configured, and
// publishes it for subsequent evaluations.
func (s *Service) UpdatePolicy(p policy.Policy) error {
	if err := p.Validate(); err != nil {
		return err
	}
	hash := ""
	if s.store != nil {
		if err := s.store.Save(p); err != nil {
			return err
		}
		_, hash = s.store.LoadWithHash()
	}
	s.policies.Replace(p, hash)
	s.logger.Info("policy updated", "policy_hash", hash)
	return nil
}
