package judge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/ppiankov/governor/internal/model"
	"github.com/ppiankov/governor/internal/policy"
)

// DefaultTimeout bounds a single live recommendation call.
const DefaultTimeout = 8 * time.Second

const systemPrompt = `You are a risk analyst for autonomous agents.
Given an action proposal, current policy, and recent audit summary,
return a JSON object with keys: decision (APPROVE|DENY|REQUIRE_CONFIRMATION),
riskFactors (array of short strings), and explanation (plain English).
Return ONLY valid JSON.`

// LLM asks a chat model for a recommendation and falls back on any failure.
type LLM struct {
	chat    einomodel.BaseChatModel
	timeout time.Duration
	logger  *slog.Logger
}

// NewLLM wraps a chat model. A zero timeout uses DefaultTimeout.
func NewLLM(chat einomodel.BaseChatModel, timeout time.Duration, logger *slog.Logger) *LLM {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LLM{chat: chat, timeout: timeout, logger: logger}
}

// Recommend implements Provider.
func (l *LLM) Recommend(ctx context.Context, p model.ActionProposal, pol policy.Policy, summary model.AuditSummary) Result {
	prompt, err := buildPrompt(p, pol, summary)
	if err != nil {
		return fallbackResult(p, pol, ReasonError, err.Error())
	}

	callCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	msg, err := l.chat.Generate(callCtx, []*schema.Message{
		{Role: schema.System, Content: systemPrompt},
		{Role: schema.User, Content: prompt},
	})
	if err != nil {
		l.logger.Warn("recommendation provider failed, using fallback", "proposal_id", p.ID, "error", err)
		return fallbackResult(p, pol, ReasonError, err.Error())
	}
	if msg == nil {
		return fallbackResult(p, pol, ReasonUnparseable, "")
	}

	rec, ok := parseRecommendation(msg.Content)
	if !ok {
		l.logger.Warn("unparseable recommendation, using fallback", "proposal_id", p.ID)
		return fallbackResult(p, pol, ReasonUnparseable, msg.Content)
	}
	return Result{Recommendation: rec, Raw: msg.Content, Outcome: Live}
}

func buildPrompt(p model.ActionProposal, pol policy.Policy, summary model.AuditSummary) (string, error) {
	proposal, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("judge: marshal proposal: %w", err)
	}
	pj, err := json.Marshal(pol)
	if err != nil {
		return "", fmt.Errorf("judge: marshal policy: %w", err)
	}
	sj, err := json.Marshal(summary)
	if err != nil {
		return "", fmt.Errorf("judge: marshal summary: %w", err)
	}

	var b strings.Builder
	b.WriteString("ACTION_PROPOSAL:\n")
	b.Write(proposal)
	b.WriteString("\n\nPOLICY:\n")
	b.Write(pj)
	b.WriteString("\n\nAUDIT_SUMMARY:\n")
	b.Write(sj)
	return b.String(), nil
}

// parseRecommendation extracts the outermost {...} block from text.
// Unknown decisions become REQUIRE_CONFIRMATION; an empty explanation
// rejects the response.
func parseRecommendation(text string) (model.Recommendation, bool) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return model.Recommendation{}, false
	}

	var raw struct {
		Decision    any   `json:"decision"`
		RiskFactors []any `json:"riskFactors"`
		Explanation any   `json:"explanation"`
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), &raw); err != nil {
		return model.Recommendation{}, false
	}

	explanation := stringify(raw.Explanation)
	if explanation == "" {
		return model.Recommendation{}, false
	}

	factors := make([]string, 0, len(raw.RiskFactors))
	for _, f := range raw.RiskFactors {
		factors = append(factors, stringify(f))
	}

	return model.Recommendation{
		Decision:    normalizeDecision(stringify(raw.Decision)),
		RiskFactors: factors,
		Explanation: explanation,
	}, true
}

func normalizeDecision(s string) model.Decision {
	d := model.Decision(strings.ToUpper(strings.TrimSpace(s)))
	if d.Valid() {
		return d
	}
	return model.RequireConfirmation
}

func stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	}
}
