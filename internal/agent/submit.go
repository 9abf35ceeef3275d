package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ppiankov/governor/internal/governor"
	"github.com/ppiankov/governor/internal/model"
)

// Submitter sends a proposal to a governor and returns its decision.
type Submitter interface {
	Submit(ctx context.Context, p model.ActionProposal) (model.GovernorDecision, error)
}

// Local submits to an in-process service.
type Local struct {
	Service *governor.Service
}

// Submit implements Submitter.
func (l Local) Submit(ctx context.Context, p model.ActionProposal) (model.GovernorDecision, error) {
	out, err := l.Service.EvaluateProposal(ctx, p)
	if err != nil {
		return model.GovernorDecision{}, err
	}
	return out.Decision, nil
}

// Remote submits over HTTP to POST /proposals.
type Remote struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
}

// NewRemote returns a Remote with a bounded client timeout.
func NewRemote(baseURL, apiKey string) *Remote {
	return &Remote{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		Client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// Submit implements Submitter.
func (r *Remote) Submit(ctx context.Context, p model.ActionProposal) (model.GovernorDecision, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return model.GovernorDecision{}, fmt.Errorf("marshal proposal: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.BaseURL+"/proposals", bytes.NewReader(body))
	if err != nil {
		return model.GovernorDecision{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if r.APIKey != "" {
		req.Header.Set("X-API-Key", r.APIKey)
	}

	resp, err := r.Client.Do(req)
	if err != nil {
		return model.GovernorDecision{}, fmt.Errorf("reach governor: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return model.GovernorDecision{}, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return model.GovernorDecision{}, fmt.Errorf("governor rejected proposal: HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var d model.GovernorDecision
	if err := json.Unmarshal(data, &d); err != nil {
		return model.GovernorDecision{}, fmt.Errorf("decode decision: %w", err)
	}
	return d, nil
}
