package judge

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/ppiankov/governor/internal/model"
	"github.com/ppiankov/governor/internal/policy"
)

type fakeChat struct {
	reply string
	err   error
	delay time.Duration

	calls  int
	prompt []*schema.Message
}

func (f *fakeChat) Generate(ctx context.Context, input []*schema.Message, _ ...einomodel.Option) (*schema.Message, error) {
	f.calls++
	f.prompt = input
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return &schema.Message{Role: schema.Assistant, Content: f.reply}, nil
}

func (f *fakeChat) Stream(context.Context, []*schema.Message, ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("not supported")
}

func riskyTransfer() model.ActionProposal {
	return model.ActionProposal{
		ID:         "p-1",
		Timestamp:  "2026-01-01T00:00:00Z",
		AgentID:    "agent-1",
		ActionType: model.ActionTransfer,
		Intent:     "pay vendor",
		Params:     model.TransferParams{AmountUSDC: 120, To: "0xDENY_1"},
	}
}

func safeTransfer() model.ActionProposal {
	p := riskyTransfer()
	p.Params = model.TransferParams{AmountUSDC: 10, To: "0xSAFE_ALLOWLIST_1"}
	return p
}

func TestFallbackRecommendation(t *testing.T) {
	pol := policy.Default()

	rec := FallbackRecommendation(riskyTransfer(), pol)
	if rec.Decision != model.Deny {
		t.Errorf("expected DENY for score 100, got %s", rec.Decision)
	}
	want := []string{"Fallback risk score 100", "Action: TRANSFER"}
	if !reflect.DeepEqual(rec.RiskFactors, want) {
		t.Errorf("expected %v, got %v", want, rec.RiskFactors)
	}
	if rec.Explanation != fallbackExplanation {
		t.Errorf("unexpected explanation %q", rec.Explanation)
	}

	if rec := FallbackRecommendation(safeTransfer(), pol); rec.Decision != model.Approve {
		t.Errorf("expected APPROVE for safe transfer, got %s", rec.Decision)
	}

	swap := model.ActionProposal{
		ActionType: model.ActionSwap,
		Params:     model.SwapParams{SlippageBps: 220},
		Context:    model.Context{Market: &model.MarketContext{LiquidityUSDC: 800, Volatility: 0.9}},
	}
	if rec := FallbackRecommendation(swap, pol); rec.Decision != model.RequireConfirmation {
		t.Errorf("expected REQUIRE_CONFIRMATION for score 60, got %s", rec.Decision)
	}
}

func TestStaticProvider(t *testing.T) {
	res := Static{Reason: ReasonMissingKey}.Recommend(context.Background(), safeTransfer(), policy.Default(), model.AuditSummary{})
	if !res.UsedFallback() || res.FallbackReason != ReasonMissingKey {
		t.Errorf("expected fallback with missing key reason, got %+v", res)
	}
	if res.Raw != "" {
		t.Errorf("expected no raw output, got %q", res.Raw)
	}
}

func TestLLMLiveRecommendation(t *testing.T) {
	chat := &fakeChat{reply: "Sure! ```json\n{\"decision\": \"deny\", \"riskFactors\": [\"denylisted\", 3], \"explanation\": \"Recipient is blocked.\"}\n```"}
	l := NewLLM(chat, time.Second, nil)

	summary := model.AuditSummary{Total: 1, Counts: map[model.Decision]int{model.Approve: 1}}
	res := l.Recommend(context.Background(), riskyTransfer(), policy.Default(), summary)

	if res.UsedFallback() {
		t.Fatalf("expected live result, got fallback: %s", res.FallbackReason)
	}
	if res.Recommendation.Decision != model.Deny {
		t.Errorf("expected DENY, got %s", res.Recommendation.Decision)
	}
	if !reflect.DeepEqual(res.Recommendation.RiskFactors, []string{"denylisted", "3"}) {
		t.Errorf("unexpected risk factors %v", res.Recommendation.RiskFactors)
	}
	if res.Raw != chat.reply {
		t.Errorf("expected raw text to be kept")
	}

	if len(chat.prompt) != 2 || chat.prompt[0].Role != schema.System {
		t.Fatalf("expected system and user messages, got %d", len(chat.prompt))
	}
	user := chat.prompt[1].Content
	for _, want := range []string{"ACTION_PROPOSAL:", `"id":"p-1"`, "POLICY:", `"maxDailySpendUSDC":50`, "AUDIT_SUMMARY:", `"total":1`} {
		if !strings.Contains(user, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestLLMFallbacks(t *testing.T) {
	tests := []struct {
		name    string
		chat    *fakeChat
		reason  string
		wantRaw string
	}{
		{"provider error", &fakeChat{err: errors.New("connection refused")}, ReasonError, "connection refused"},
		{"no json", &fakeChat{reply: "I cannot help with that."}, ReasonUnparseable, "I cannot help with that."},
		{"broken json", &fakeChat{reply: `{"decision": "APPROVE",`}, ReasonUnparseable, `{"decision": "APPROVE",`},
		{"empty explanation", &fakeChat{reply: `{"decision": "APPROVE", "explanation": ""}`}, ReasonUnparseable, `{"decision": "APPROVE", "explanation": ""}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := NewLLM(tt.chat, time.Second, nil).Recommend(context.Background(), riskyTransfer(), policy.Default(), model.AuditSummary{})
			if !res.UsedFallback() {
				t.Fatal("expected fallback")
			}
			if res.FallbackReason != tt.reason {
				t.Errorf("expected reason %q, got %q", tt.reason, res.FallbackReason)
			}
			if res.Raw != tt.wantRaw {
				t.Errorf("expected raw %q, got %q", tt.wantRaw, res.Raw)
			}
			if !reflect.DeepEqual(res.Recommendation, FallbackRecommendation(riskyTransfer(), policy.Default())) {
				t.Errorf("fallback recommendation differs from the deterministic one: %+v", res.Recommendation)
			}
		})
	}
}

func TestLLMTimeoutFallsBack(t *testing.T) {
	chat := &fakeChat{reply: `{"decision":"APPROVE","explanation":"ok"}`, delay: 5 * time.Second}
	l := NewLLM(chat, 50*time.Millisecond, nil)

	start := time.Now()
	res := l.Recommend(context.Background(), safeTransfer(), policy.Default(), model.AuditSummary{})
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("timeout not applied, took %v", elapsed)
	}
	if !res.UsedFallback() || res.FallbackReason != ReasonError {
		t.Errorf("expected error fallback, got %+v", res)
	}
}

func TestParseRecommendationUnknownDecision(t *testing.T) {
	rec, ok := parseRecommendation(`{"decision": "MAYBE", "explanation": "unclear"}`)
	if !ok {
		t.Fatal("expected parse to succeed")
	}
	if rec.Decision != model.RequireConfirmation {
		t.Errorf("expected REQUIRE_CONFIRMATION, got %s", rec.Decision)
	}
	if rec.RiskFactors == nil || len(rec.RiskFactors) != 0 {
		t.Errorf("expected empty non-nil risk factors, got %#v", rec.RiskFactors)
	}
}

func TestConfigInfoAndNew(t *testing.T) {
	ctx := context.Background()

	p, err := New(ctx, Config{Mock: true, APIKey: "k", Model: "m"}, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if s, ok := p.(Static); !ok || s.Reason != ReasonMock {
		t.Errorf("expected mock static provider, got %#v", p)
	}

	p, err = New(ctx, Config{Provider: "openrouter", Model: "m"}, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if s, ok := p.(Static); !ok || s.Reason != ReasonMissingKey {
		t.Errorf("expected missing key static provider, got %#v", p)
	}

	if _, err := New(ctx, Config{Provider: "carrier-pigeon", APIKey: "k", Model: "m"}, nil); err == nil {
		t.Error("expected error for unknown provider")
	}
	if _, err := New(ctx, Config{Provider: "openai", APIKey: "k"}, nil); err == nil {
		t.Error("expected error for missing model")
	}

	p, err = New(ctx, Config{Provider: "ollama", Model: "llama3"}, nil)
	if err != nil {
		t.Fatalf("new ollama: %v", err)
	}
	if _, ok := p.(*LLM); !ok {
		t.Errorf("expected live provider for ollama without key, got %T", p)
	}

	info := Config{Provider: "OpenAI", Model: "gpt-4o-mini", APIKey: "secret"}.Info()
	want := Info{Provider: "openai", Model: "gpt-4o-mini", Mock: false, HasKey: true}
	if info != want {
		t.Errorf("expected %+v, got %+v", want, info)
	}
	if !(Config{}).Info().Mock {
		t.Error("expected mock info without key")
	}
}
