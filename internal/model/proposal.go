package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrInvalidProposal is returned for structurally invalid proposals.
var ErrInvalidProposal = errors.New("invalid proposal")

// Params is the action-specific parameter set of a proposal.
// Exactly one concrete type exists per ActionType.
type Params interface {
	Kind() ActionType
}

// TransferParams moves USDC to a recipient.
type TransferParams struct {
	AmountUSDC float64 `json:"amountUSDC"`
	To         string  `json:"to"`
}

// SwapParams swaps tokens on a pool.
type SwapParams struct {
	SlippageBps float64 `json:"slippageBps"`
	AmountUSDC  float64 `json:"amountUSDC"`
	Pair        string  `json:"pair,omitempty"`
}

// DeployParams describes a simulated deployment.
type DeployParams struct {
	Branch string `json:"branch,omitempty"`
}

// APICallParams describes an outbound API call.
type APICallParams struct {
	Endpoint    string  `json:"endpoint,omitempty"`
	PayloadSize float64 `json:"payloadSize"`
}

func (TransferParams) Kind() ActionType { return ActionTransfer }
func (SwapParams) Kind() ActionType     { return ActionSwap }
func (DeployParams) Kind() ActionType   { return ActionDeploySim }
func (APICallParams) Kind() ActionType  { return ActionAPICall }

// MarketContext is the market snapshot attached to swap proposals.
type MarketContext struct {
	Volatility    float64 `json:"volatility"`
	LiquidityUSDC float64 `json:"liquidityUSDC"`
	SpreadBps     float64 `json:"spreadBps"`
}

// WalletContext is the agent wallet snapshot.
type WalletContext struct {
	BalanceUSDC float64 `json:"balanceUSDC"`
}

// DiffStat summarizes the change set of a deployment.
type DiffStat struct {
	FilesChanged int `json:"filesChanged"`
	Insertions   int `json:"insertions"`
	Deletions    int `json:"deletions"`
}

// RepoContext is the repository state attached to deploy proposals.
type RepoContext struct {
	TestsPassing bool     `json:"testsPassing"`
	DiffStat     DiffStat `json:"diffStat"`
}

// APIContext classifies the payload of an API call.
type APIContext struct {
	ContainsPII bool   `json:"containsPII"`
	Sensitivity string `json:"sensitivity,omitempty"`
}

// Context holds the optional environment snapshots of a proposal.
type Context struct {
	Market *MarketContext `json:"market,omitempty"`
	Wallet *WalletContext `json:"wallet,omitempty"`
	Repo   *RepoContext   `json:"repo,omitempty"`
	API    *APIContext    `json:"api,omitempty"`
}

// ActionProposal is a candidate action an agent wants to take.
// Proposals are treated as immutable once created.
type ActionProposal struct {
	ID         string
	Timestamp  string
	AgentID    string
	ActionType ActionType
	Intent     string
	Params     Params
	Context    Context
}

// Transfer returns the transfer params, or zero values for other action types.
func (p ActionProposal) Transfer() TransferParams {
	if v, ok := p.Params.(TransferParams); ok {
		return v
	}
	return TransferParams{}
}

// Swap returns the swap params, or zero values for other action types.
func (p ActionProposal) Swap() SwapParams {
	if v, ok := p.Params.(SwapParams); ok {
		return v
	}
	return SwapParams{}
}

// Deploy returns the deploy params, or zero values for other action types.
func (p ActionProposal) Deploy() DeployParams {
	if v, ok := p.Params.(DeployParams); ok {
		return v
	}
	return DeployParams{}
}

// APICall returns the API call params, or zero values for other action types.
func (p ActionProposal) APICall() APICallParams {
	if v, ok := p.Params.(APICallParams); ok {
		return v
	}
	return APICallParams{}
}

// Market returns the market context or its zero value.
func (p ActionProposal) Market() MarketContext {
	if p.Context.Market != nil {
		return *p.Context.Market
	}
	return MarketContext{}
}

// Repo returns the repo context or its zero value.
func (p ActionProposal) Repo() RepoContext {
	if p.Context.Repo != nil {
		return *p.Context.Repo
	}
	return RepoContext{}
}

// API returns the API context or its zero value.
func (p ActionProposal) API() APIContext {
	if p.Context.API != nil {
		return *p.Context.API
	}
	return APIContext{}
}

// Validate checks the structural shape of a proposal.
func (p ActionProposal) Validate() error {
	switch {
	case strings.TrimSpace(p.ID) == "":
		return fmt.Errorf("%w: id is required", ErrInvalidProposal)
	case strings.TrimSpace(p.AgentID) == "":
		return fmt.Errorf("%w: agentId is required", ErrInvalidProposal)
	case strings.TrimSpace(p.Timestamp) == "":
		return fmt.Errorf("%w: timestamp is required", ErrInvalidProposal)
	case !p.ActionType.Valid():
		return fmt.Errorf("%w: unknown actionType %q", ErrInvalidProposal, p.ActionType)
	case p.Params != nil && p.Params.Kind() != p.ActionType:
		return fmt.Errorf("%w: params are for %s, actionType is %s", ErrInvalidProposal, p.Params.Kind(), p.ActionType)
	}
	return nil
}

// paramsOrZero returns the params, substituting the zero variant for nil.
func (p ActionProposal) paramsOrZero() Params {
	if p.Params != nil {
		return p.Params
	}
	switch p.ActionType {
	case ActionTransfer:
		return TransferParams{}
	case ActionSwap:
		return SwapParams{}
	case ActionDeploySim:
		return DeployParams{}
	case ActionAPICall:
		return APICallParams{}
	default:
		return nil
	}
}

// proposalWire is the JSON layout shared with agents and the ledger.
// Field order is fixed so the encoding is reproducible for hashing.
type proposalWire struct {
	ID         string     `json:"id"`
	Timestamp  string     `json:"timestamp"`
	AgentID    string     `json:"agentId"`
	ActionType ActionType `json:"actionType"`
	Intent     string     `json:"intent"`
	Params     any        `json:"params"`
	Context    Context    `json:"context"`
}

// MarshalJSON encodes the proposal with its typed params.
func (p ActionProposal) MarshalJSON() ([]byte, error) {
	var params any = struct{}{}
	if zero := p.paramsOrZero(); zero != nil {
		params = zero
	}
	return json.Marshal(proposalWire{
		ID:         p.ID,
		Timestamp:  p.Timestamp,
		AgentID:    p.AgentID,
		ActionType: p.ActionType,
		Intent:     p.Intent,
		Params:     params,
		Context:    p.Context,
	})
}

// UnmarshalJSON decodes a proposal, coercing the untyped params and
// context bags into the typed variant for its action type.
// Missing or malformed numbers become 0, booleans false.
func (p *ActionProposal) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID         string                    `json:"id"`
		Timestamp  string                    `json:"timestamp"`
		AgentID    string                    `json:"agentId"`
		ActionType ActionType                `json:"actionType"`
		Intent     string                    `json:"intent"`
		Params     map[string]any            `json:"params"`
		Context    map[string]map[string]any `json:"context"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if !raw.ActionType.Valid() {
		return fmt.Errorf("%w: missing actionType", ErrInvalidProposal)
	}

	*p = ActionProposal{
		ID:         raw.ID,
		Timestamp:  raw.Timestamp,
		AgentID:    raw.AgentID,
		ActionType: raw.ActionType,
		Intent:     raw.Intent,
		Params:     ParamsFromMap(raw.ActionType, raw.Params),
		Context:    ContextFromMap(raw.Context),
	}
	return nil
}

// ParamsFromMap builds the typed params for t from an untyped bag.
func ParamsFromMap(t ActionType, m map[string]any) Params {
	switch t {
	case ActionTransfer:
		amount, ok := m["amountUSDC"]
		if !ok || amount == nil {
			amount = m["amount"]
		}
		return TransferParams{AmountUSDC: toFloat(amount), To: toString(m["to"])}
	case ActionSwap:
		return SwapParams{
			SlippageBps: toFloat(m["slippageBps"]),
			AmountUSDC:  toFloat(m["amountUSDC"]),
			Pair:        toString(m["pair"]),
		}
	case ActionDeploySim:
		return DeployParams{Branch: toString(m["branch"])}
	case ActionAPICall:
		return APICallParams{Endpoint: toString(m["endpoint"]), PayloadSize: toFloat(m["payloadSize"])}
	default:
		return nil
	}
}

// ContextFromMap builds the typed context from untyped sub-records.
// Absent sub-records stay nil.
func ContextFromMap(m map[string]map[string]any) Context {
	var c Context
	if mk, ok := m["market"]; ok && mk != nil {
		c.Market = &MarketContext{
			Volatility:    toFloat(mk["volatility"]),
			LiquidityUSDC: toFloat(mk["liquidityUSDC"]),
			SpreadBps:     toFloat(mk["spreadBps"]),
		}
	}
	if w, ok := m["wallet"]; ok && w != nil {
		c.Wallet = &WalletContext{BalanceUSDC: toFloat(w["balanceUSDC"])}
	}
	if r, ok := m["repo"]; ok && r != nil {
		repo := &RepoContext{TestsPassing: toBool(r["testsPassing"])}
		if ds, ok := r["diffStat"].(map[string]any); ok {
			repo.DiffStat = DiffStat{
				FilesChanged: int(toFloat(ds["filesChanged"])),
				Insertions:   int(toFloat(ds["insertions"])),
				Deletions:    int(toFloat(ds["deletions"])),
			}
		}
		c.Repo = repo
	}
	if a, ok := m["api"]; ok && a != nil {
		c.API = &APIContext{
			ContainsPII: toBool(a["containsPII"]),
			Sensitivity: toString(a["sensitivity"]),
		}
	}
	return c
}

// toFloat coerces v to a finite number. NaN and infinities become 0.
func toFloat(v any) float64 {
	f := rawFloat(v)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

func rawFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case json.Number:
		f, _ := n.Float64()
		return f
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

func toBool(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		return strings.EqualFold(strings.TrimSpace(b), "true")
	default:
		return false
	}
}

func toString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case nil:
		return ""
	default:
		return fmt.Sprint(s)
	}
}
