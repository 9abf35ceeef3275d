package ledger

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/ppiankov/governor/internal/model"
)

// GenesisHash is the prev_hash of the first entry.
const GenesisHash = "GENESIS"

// Entry is one persisted decision. ProposalJSON and DecisionJSON hold the
// exact stored text the hashes are computed over.
type Entry struct {
	ID                int64
	ProposalID        string
	CreatedAt         time.Time
	Decision          model.Decision
	ProposalJSON      string
	DecisionJSON      string
	LatencyMs         int64
	RawProviderOutput string
	PrevHash          string
	EntryHash         string
}

// Proposal decodes the stored proposal.
func (e Entry) Proposal() (model.ActionProposal, error) {
	var p model.ActionProposal
	err := json.Unmarshal([]byte(e.ProposalJSON), &p)
	return p, err
}

// DecisionPayload decodes the stored decision.
func (e Entry) DecisionPayload() (model.GovernorDecision, error) {
	var d model.GovernorDecision
	err := json.Unmarshal([]byte(e.DecisionJSON), &d)
	return d, err
}

type entryJSON struct {
	ID                int64           `json:"id"`
	ProposalID        string          `json:"proposalId"`
	CreatedAt         string          `json:"createdAt"`
	Decision          model.Decision  `json:"decision"`
	Proposal          json.RawMessage `json:"proposal"`
	DecisionPayload   json.RawMessage `json:"decisionPayload"`
	LatencyMs         int64           `json:"latencyMs"`
	RawProviderOutput string          `json:"rawProviderOutput,omitempty"`
	PrevHash          string          `json:"prevHash,omitempty"`
	EntryHash         string          `json:"entryHash,omitempty"`
}

// MarshalJSON embeds the stored documents as JSON. A document that is no
// longer valid JSON is emitted as a string so a damaged entry stays readable.
func (e Entry) MarshalJSON() ([]byte, error) {
	return json.Marshal(entryJSON{
		ID:                e.ID,
		ProposalID:        e.ProposalID,
		CreatedAt:         e.CreatedAt.UTC().Format("2006-01-02T15:04:05.000Z"),
		Decision:          e.Decision,
		Proposal:          embed(e.ProposalJSON),
		DecisionPayload:   embed(e.DecisionJSON),
		LatencyMs:         e.LatencyMs,
		RawProviderOutput: e.RawProviderOutput,
		PrevHash:          e.PrevHash,
		EntryHash:         e.EntryHash,
	})
}

func embed(doc string) json.RawMessage {
	if json.Valid([]byte(doc)) {
		return json.RawMessage(doc)
	}
	quoted, _ := json.Marshal(doc)
	return quoted
}

// computeHash digests the stored fields of an entry together with prevHash.
func computeHash(proposalID string, createdAtMs int64, proposalJSON, decisionJSON string, latencyMs int64, raw, prevHash string) string {
	fields := []string{
		proposalID,
		strconv.FormatInt(createdAtMs, 10),
		proposalJSON,
		decisionJSON,
		strconv.FormatInt(latencyMs, 10),
		raw,
		prevHash,
	}
	sum := sha256.Sum256([]byte(strings.Join(fields, "|")))
	return "sha256:" + hex.EncodeToString(sum[:])
}

// row mirrors the audit table with nullable columns intact.
type row struct {
	id           int64
	proposalID   string
	createdAtMs  int64
	decision     string
	proposalJSON string
	decisionJSON string
	latencyMs    int64
	raw          sql.NullString
	prevHash     sql.NullString
	entryHash    sql.NullString
}

const selectColumns = "id, proposal_id, created_at, decision, proposal_json, decision_json, latency_ms, raw_provider_output, prev_hash, entry_hash"

type scanner interface {
	Scan(dest ...any) error
}

func scanRow(s scanner) (row, error) {
	var r row
	err := s.Scan(&r.id, &r.proposalID, &r.createdAtMs, &r.decision, &r.proposalJSON, &r.decisionJSON,
		&r.latencyMs, &r.raw, &r.prevHash, &r.entryHash)
	return r, err
}

func (r row) hashed() bool {
	return r.prevHash.Valid && r.prevHash.String != "" && r.entryHash.Valid && r.entryHash.String != ""
}

func (r row) hash(prevHash string) string {
	return computeHash(r.proposalID, r.createdAtMs, r.proposalJSON, r.decisionJSON, r.latencyMs, r.raw.String, prevHash)
}

func (r row) entry() Entry {
	return Entry{
		ID:                r.id,
		ProposalID:        r.proposalID,
		CreatedAt:         time.UnixMilli(r.createdAtMs).UTC(),
		Decision:          model.Decision(r.decision),
		ProposalJSON:      r.proposalJSON,
		DecisionJSON:      r.decisionJSON,
		LatencyMs:         r.latencyMs,
		RawProviderOutput: r.raw.String,
		PrevHash:          r.prevHash.String,
		EntryHash:         r.entryHash.String,
	}
}
