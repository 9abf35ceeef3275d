package ledger

import (
	"context"
	"fmt"
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS audit (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  proposal_id TEXT NOT NULL,
  created_at INTEGER NOT NULL,
  decision TEXT NOT NULL,
  proposal_json TEXT NOT NULL,
  decision_json TEXT NOT NULL,
  latency_ms INTEGER NOT NULL,
  raw_provider_output TEXT,
  prev_hash TEXT,
  entry_hash TEXT
)`

const postgresSchema = `CREATE TABLE IF NOT EXISTS audit (
  id BIGSERIAL PRIMARY KEY,
  proposal_id TEXT NOT NULL,
  created_at BIGINT NOT NULL,
  decision TEXT NOT NULL,
  proposal_json TEXT NOT NULL,
  decision_json TEXT NOT NULL,
  latency_ms BIGINT NOT NULL,
  raw_provider_output TEXT,
  prev_hash TEXT,
  entry_hash TEXT
)`

// Columns added after the first release. Stores created before hashing
// existed gain them on open without losing rows.
var addedColumns = []string{"raw_provider_output", "prev_hash", "entry_hash"}

func (l *Ledger) migrate(ctx context.Context) error {
	schema := sqliteSchema
	if l.driver == DriverPostgres {
		schema = postgresSchema
	}
	if _, err := l.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ledger: create table: %w", err)
	}

	have, err := l.columns(ctx)
	if err != nil {
		return err
	}
	for _, col := range addedColumns {
		if have[col] {
			continue
		}
		if _, err := l.db.ExecContext(ctx, fmt.Sprintf("ALTER TABLE audit ADD COLUMN %s TEXT", col)); err != nil {
			return fmt.Errorf("ledger: add column %s: %w", col, err)
		}
	}

	if _, err := l.db.ExecContext(ctx, "CREATE INDEX IF NOT EXISTS idx_audit_created_at ON audit (created_at)"); err != nil {
		return fmt.Errorf("ledger: create index: %w", err)
	}
	return nil
}

func (l *Ledger) columns(ctx context.Context) (map[string]bool, error) {
	query := "SELECT name FROM pragma_table_info('audit')"
	if l.driver == DriverPostgres {
		query = "SELECT column_name FROM information_schema.columns WHERE table_name = 'audit' AND table_schema = current_schema()"
	}
	rows, err := l.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ledger: inspect columns: %w", err)
	}
	defer rows.Close()

	out := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("ledger: inspect columns: %w", err)
		}
		out[name] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ledger: inspect columns: %w", err)
	}
	return out, nil
}
