package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ppiankov/governor/internal/model"
)

const (
	DefaultListLimit = 20
	MaxListLimit     = 200
)

// List returns entries newest first. limit is clamped to [1, MaxListLimit];
// zero or negative uses DefaultListLimit.
func (l *Ledger) List(ctx context.Context, limit, offset int) ([]Entry, error) {
	if err := l.checkOpen(); err != nil {
		return nil, err
	}
	limit = clampLimit(limit, DefaultListLimit, MaxListLimit)
	if offset < 0 {
		offset = 0
	}

	rows, err := l.db.QueryContext(ctx, l.rebind("SELECT "+selectColumns+" FROM audit ORDER BY id DESC LIMIT ? OFFSET ?"), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("ledger: list: %w", err)
	}
	defer rows.Close()

	out := []Entry{}
	for rows.Next() {
		r, err := scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("ledger: list: %w", err)
		}
		out = append(out, r.entry())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ledger: list: %w", err)
	}
	return out, nil
}

// Get looks up one entry. An unknown id is reported as found=false with a
// nil error.
func (l *Ledger) Get(ctx context.Context, id int64) (Entry, bool, error) {
	if err := l.checkOpen(); err != nil {
		return Entry{}, false, err
	}
	r, err := scanRow(l.db.QueryRowContext(ctx, l.rebind("SELECT "+selectColumns+" FROM audit WHERE id = ?"), id))
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("ledger: get %d: %w", id, err)
	}
	return r.entry(), true, nil
}

// DailySpend sums the amounts of approved transfers recorded within the
// last windowHours. Entries whose proposal no longer decodes are skipped.
func (l *Ledger) DailySpend(ctx context.Context, windowHours float64) (float64, error) {
	if err := l.checkOpen(); err != nil {
		return 0, err
	}
	if windowHours <= 0 {
		windowHours = 24
	}
	since := l.now().Add(-time.Duration(windowHours * float64(time.Hour))).UnixMilli()

	rows, err := l.db.QueryContext(ctx,
		l.rebind("SELECT proposal_json FROM audit WHERE created_at >= ? AND decision = ?"),
		since, string(model.Approve))
	if err != nil {
		return 0, fmt.Errorf("ledger: daily spend: %w", err)
	}
	defer rows.Close()

	var total float64
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return 0, fmt.Errorf("ledger: daily spend: %w", err)
		}
		e := Entry{ProposalJSON: doc}
		p, err := e.Proposal()
		if err != nil || p.ActionType != model.ActionTransfer {
			continue
		}
		total += p.Transfer().AmountUSDC
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("ledger: daily spend: %w", err)
	}
	return total, nil
}

// Summary condenses the newest limit entries for the recommendation provider.
func (l *Ledger) Summary(ctx context.Context, limit int) (model.AuditSummary, error) {
	if err := l.checkOpen(); err != nil {
		return model.AuditSummary{}, err
	}
	limit = clampLimit(limit, 10, MaxListLimit)

	rows, err := l.db.QueryContext(ctx, l.rebind("SELECT proposal_id, decision, created_at FROM audit ORDER BY id DESC LIMIT ?"), limit)
	if err != nil {
		return model.AuditSummary{}, fmt.Errorf("ledger: summary: %w", err)
	}
	defer rows.Close()

	s := model.AuditSummary{Counts: map[model.Decision]int{}, Recent: []model.RecentDecision{}}
	for rows.Next() {
		var (
			rd model.RecentDecision
			ms int64
		)
		if err := rows.Scan(&rd.ProposalID, &rd.Decision, &ms); err != nil {
			return model.AuditSummary{}, fmt.Errorf("ledger: summary: %w", err)
		}
		rd.CreatedAt = time.UnixMilli(ms).UTC()
		s.Counts[rd.Decision]++
		s.Recent = append(s.Recent, rd)
	}
	if err := rows.Err(); err != nil {
		return model.AuditSummary{}, fmt.Errorf("ledger: summary: %w", err)
	}
	s.Total = len(s.Recent)
	return s, nil
}

// Each calls fn for every entry, oldest first, stopping at the first error.
// fn must not call back into the ledger while the scan is open.
func (l *Ledger) Each(ctx context.Context, fn func(Entry) error) error {
	if err := l.checkOpen(); err != nil {
		return err
	}
	rows, err := l.db.QueryContext(ctx, "SELECT "+selectColumns+" FROM audit ORDER BY id ASC")
	if err != nil {
		return fmt.Errorf("ledger: scan: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		r, err := scanRow(rows)
		if err != nil {
			return fmt.Errorf("ledger: scan: %w", err)
		}
		if err := fn(r.entry()); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("ledger: scan: %w", err)
	}
	return nil
}

func clampLimit(v, def, max int) int {
	if v <= 0 {
		return def
	}
	if v > max {
		return max
	}
	return v
}
