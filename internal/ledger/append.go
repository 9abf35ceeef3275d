package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ppiankov/governor/internal/model"
)

// Append records a decision and returns its id. The tail read, hash and
// insert run in one transaction under the writer lock, so two appends can
// never chain onto the same prev_hash. raw is the provider output, empty
// when none was produced.
func (l *Ledger) Append(ctx context.Context, p model.ActionProposal, d model.GovernorDecision, latencyMs int64, raw string) (int64, error) {
	proposalJSON, err := json.Marshal(p)
	if err != nil {
		return 0, fmt.Errorf("ledger: marshal proposal: %w", err)
	}
	decisionJSON, err := json.Marshal(d)
	if err != nil {
		return 0, fmt.Errorf("ledger: marshal decision: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.checkOpen(); err != nil {
		return 0, err
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("ledger: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	prevHash, err := l.tailHash(ctx, tx)
	if err != nil {
		return 0, err
	}

	createdAt := l.now().UnixMilli()
	entryHash := computeHash(p.ID, createdAt, string(proposalJSON), string(decisionJSON), latencyMs, raw, prevHash)

	var id int64
	err = tx.QueryRowContext(ctx, l.rebind(`INSERT INTO audit
  (proposal_id, created_at, decision, proposal_json, decision_json, latency_ms, raw_provider_output, prev_hash, entry_hash)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
RETURNING id`),
		p.ID, createdAt, string(d.Decision), string(proposalJSON), string(decisionJSON), latencyMs,
		nullable(raw), prevHash, entryHash,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("ledger: insert: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("ledger: commit: %w", err)
	}
	return id, nil
}

// tailHash returns the entry_hash of the newest entry, or GenesisHash for
// an empty ledger. Unhashed entries at the tail are backfilled first in the
// same transaction so the new entry extends them instead of skipping past.
func (l *Ledger) tailHash(ctx context.Context, tx *sql.Tx) (string, error) {
	var prev, h sql.NullString
	err := tx.QueryRowContext(ctx, "SELECT prev_hash, entry_hash FROM audit ORDER BY id DESC LIMIT 1").Scan(&prev, &h)
	if errors.Is(err, sql.ErrNoRows) {
		return GenesisHash, nil
	}
	if err != nil {
		return "", fmt.Errorf("ledger: read tail: %w", err)
	}
	if prev.String != "" && h.String != "" {
		return h.String, nil
	}

	if _, err := l.backfillTx(ctx, tx); err != nil {
		return "", err
	}
	if err := tx.QueryRowContext(ctx, "SELECT entry_hash FROM audit ORDER BY id DESC LIMIT 1").Scan(&h); err != nil {
		return "", fmt.Errorf("ledger: read tail: %w", err)
	}
	return h.String, nil
}
