package ledger

import (
	"context"
	"database/sql"
	"fmt"
)

const (
	DefaultVerifyLimit = 1000
	MaxVerifyLimit     = 10000
)

// Verification failure reasons.
const (
	ReasonMissingHash  = "Missing hash fields."
	ReasonPrevMismatch = "prevHash mismatch."
	ReasonHashMismatch = "entryHash mismatch."
)

// VerifyResult is the outcome of walking the chain. Integrity problems are
// reported here, never as errors.
type VerifyResult struct {
	Valid               bool   `json:"valid"`
	Checked             int    `json:"checked"`
	FirstInvalidAuditID int64  `json:"firstInvalidAuditId,omitempty"`
	Reason              string `json:"reason,omitempty"`
	TailHash            string `json:"tailHash,omitempty"`
}

// Verify walks up to limit entries from the oldest, recomputing each hash.
// It stops at the first broken link. On success TailHash is the last
// verified entry_hash (GenesisHash for an empty ledger).
func (l *Ledger) Verify(ctx context.Context, limit int) (VerifyResult, error) {
	if err := l.checkOpen(); err != nil {
		return VerifyResult{}, err
	}
	limit = clampLimit(limit, DefaultVerifyLimit, MaxVerifyLimit)

	rows, err := l.db.QueryContext(ctx, l.rebind("SELECT "+selectColumns+" FROM audit ORDER BY id ASC LIMIT ?"), limit)
	if err != nil {
		return VerifyResult{}, fmt.Errorf("ledger: verify: %w", err)
	}
	defer rows.Close()

	expectedPrev := GenesisHash
	checked := 0
	for rows.Next() {
		r, err := scanRow(rows)
		if err != nil {
			return VerifyResult{}, fmt.Errorf("ledger: verify: %w", err)
		}
		checked++

		invalid := func(reason string) VerifyResult {
			return VerifyResult{Checked: checked, FirstInvalidAuditID: r.id, Reason: reason}
		}
		switch {
		case !r.hashed():
			return invalid(ReasonMissingHash), nil
		case r.prevHash.String != expectedPrev:
			return invalid(ReasonPrevMismatch), nil
		case r.hash(r.prevHash.String) != r.entryHash.String:
			return invalid(ReasonHashMismatch), nil
		}
		expectedPrev = r.entryHash.String
	}
	if err := rows.Err(); err != nil {
		return VerifyResult{}, fmt.Errorf("ledger: verify: %w", err)
	}

	return VerifyResult{Valid: true, Checked: checked, TailHash: expectedPrev}, nil
}

// Backfill assigns hashes to entries written before hashing existed. It
// walks the table in id order, carrying the last stored entry_hash forward,
// and fills only rows missing a hash field. Already hashed rows are never
// rewritten, so a second run changes nothing. Returns the rows updated.
func (l *Ledger) Backfill(ctx context.Context) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.checkOpen(); err != nil {
		return 0, err
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("ledger: backfill: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	updated, err := l.backfillTx(ctx, tx)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("ledger: backfill: commit: %w", err)
	}
	return updated, nil
}

// backfillTx hashes every unhashed entry in id order within tx.
func (l *Ledger) backfillTx(ctx context.Context, tx *sql.Tx) (int, error) {
	rows, err := tx.QueryContext(ctx, "SELECT "+selectColumns+" FROM audit ORDER BY id ASC")
	if err != nil {
		return 0, fmt.Errorf("ledger: backfill: %w", err)
	}
	var all []row
	for rows.Next() {
		r, err := scanRow(rows)
		if err != nil {
			rows.Close()
			return 0, fmt.Errorf("ledger: backfill: %w", err)
		}
		all = append(all, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("ledger: backfill: %w", err)
	}

	prev := GenesisHash
	updated := 0
	for _, r := range all {
		if r.hashed() {
			prev = r.entryHash.String
			continue
		}
		h := r.hash(prev)
		if _, err := tx.ExecContext(ctx, l.rebind("UPDATE audit SET prev_hash = ?, entry_hash = ? WHERE id = ?"), prev, h, r.id); err != nil {
			return 0, fmt.Errorf("ledger: backfill entry %d: %w", r.id, err)
		}
		prev = h
		updated++
	}
	return updated, nil
}
