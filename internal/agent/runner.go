package agent

import (
	"context"
	"log/slog"
	"time"

	"github.com/ppiankov/governor/internal/model"
)

const (
	DefaultInterval   = 4 * time.Second
	DefaultAdaptDelay = time.Second
)

// Round is one proposal and, when it was refused, its adapted retry.
type Round struct {
	Proposal        model.ActionProposal
	Decision        model.GovernorDecision
	Adapted         *model.ActionProposal
	AdaptedDecision *model.GovernorDecision
}

// Runner drives the demo loop.
type Runner struct {
	gen        *Generator
	sub        Submitter
	interval   time.Duration
	adaptDelay time.Duration
	logger     *slog.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithInterval sets the pause between rounds.
func WithInterval(d time.Duration) Option {
	return func(r *Runner) { r.interval = d }
}

// WithAdaptDelay sets the pause before an adapted retry.
func WithAdaptDelay(d time.Duration) Option {
	return func(r *Runner) { r.adaptDelay = d }
}

func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// NewRunner returns a Runner submitting gen's proposals to sub.
func NewRunner(gen *Generator, sub Submitter, opts ...Option) *Runner {
	r := &Runner{
		gen:        gen,
		sub:        sub,
		interval:   DefaultInterval,
		adaptDelay: DefaultAdaptDelay,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Step submits proposal i and, if refused, one adapted variant.
// A failed adapted submission is logged and leaves AdaptedDecision nil.
func (r *Runner) Step(ctx context.Context, i int) (Round, error) {
	p := r.gen.Next(i)
	d, err := r.sub.Submit(ctx, p)
	if err != nil {
		return Round{Proposal: p}, err
	}
	r.log(p, d, false)
	round := Round{Proposal: p, Decision: d}

	safer, ok := Adapt(p, d, r.gen.now())
	if !ok {
		return round, nil
	}
	round.Adapted = &safer
	if err := sleep(ctx, r.adaptDelay); err != nil {
		return round, err
	}
	ad, err := r.sub.Submit(ctx, safer)
	if err != nil {
		r.logger.Warn("adapted proposal failed", "proposal_id", safer.ID, "error", err)
		return round, nil
	}
	r.log(safer, ad, true)
	round.AdaptedDecision = &ad
	return round, nil
}

// Run executes rounds steps, or runs until ctx is cancelled when rounds
// is zero. Submission errors are logged and the loop continues.
func (r *Runner) Run(ctx context.Context, rounds int) []Round {
	var out []Round
	for i := 0; rounds <= 0 || i < rounds; i++ {
		if i > 0 {
			if err := sleep(ctx, r.interval); err != nil {
				return out
			}
		}
		round, err := r.Step(ctx, i)
		if ctx.Err() != nil {
			return out
		}
		if err != nil {
			r.logger.Error("proposal failed", "action_type", round.Proposal.ActionType, "error", err)
			continue
		}
		out = append(out, round)
	}
	return out
}

func (r *Runner) log(p model.ActionProposal, d model.GovernorDecision, adapted bool) {
	r.logger.Info("decision",
		"action_type", p.ActionType,
		"decision", d.Decision,
		"risk", d.RiskScore,
		"adapted", adapted,
		"proposal_id", p.ID,
	)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
