// Package ledger stores governor decisions in an append-only, hash-chained
// SQL table.
//
// Each entry's prev_hash is the entry_hash of the entry before it (or
// GenesisHash for the first one), and entry_hash is a SHA-256 digest over
// the entry's stored fields plus prev_hash. Appends are serialized by a
// single writer; reads run concurrently.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Driver selects the SQL backend.
type Driver string

const (
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

// ErrClosed is returned by operations on a closed ledger.
var ErrClosed = errors.New("ledger: closed")

// Ledger is the audit store. Create one with Open and share it by pointer.
type Ledger struct {
	db     *sql.DB
	driver Driver
	now    func() time.Time

	// mu serializes writers: read tail, hash, insert.
	mu     sync.Mutex
	closed atomic.Bool
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock overrides the time source used for created_at.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// Open connects to the backend and applies the schema. For SQLite, dsn may
// be a plain file path; WAL mode and a busy timeout are enabled for it.
func Open(ctx context.Context, driver Driver, dsn string, opts ...Option) (*Ledger, error) {
	var (
		db  *sql.DB
		err error
	)
	switch driver {
	case DriverSQLite, "":
		driver = DriverSQLite
		db, err = sql.Open("sqlite", sqliteDSN(dsn))
		if err == nil && isMemoryDSN(dsn) {
			// Every connection to :memory: is a separate database.
			db.SetMaxOpenConns(1)
		}
	case DriverPostgres:
		db, err = sql.Open("pgx", dsn)
	default:
		return nil, fmt.Errorf("ledger: unsupported driver %q", driver)
	}
	if err != nil {
		return nil, fmt.Errorf("ledger: open %s: %w", driver, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ledger: connect %s: %w", driver, err)
	}

	l := &Ledger{db: db, driver: driver, now: time.Now}
	for _, o := range opts {
		o(l)
	}
	if err := l.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return l, nil
}

// Close releases the database handle.
func (l *Ledger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed.Swap(true) {
		return nil
	}
	return l.db.Close()
}

// Ping checks that the database is reachable.
func (l *Ledger) Ping(ctx context.Context) error {
	if err := l.checkOpen(); err != nil {
		return err
	}
	if err := l.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ledger: ping: %w", err)
	}
	return nil
}

// DB exposes the underlying handle for maintenance tooling and tests.
func (l *Ledger) DB() *sql.DB {
	return l.db
}

// Driver returns the backend in use.
func (l *Ledger) Driver() Driver {
	return l.driver
}

func sqliteDSN(dsn string) string {
	if dsn == "" {
		dsn = "governor.db"
	}
	if isMemoryDSN(dsn) || strings.Contains(dsn, "_pragma") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	if !strings.HasPrefix(dsn, "file:") {
		dsn = "file:" + dsn
	}
	return dsn + sep + "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

func isMemoryDSN(dsn string) bool {
	return dsn == ":memory:" || strings.Contains(dsn, "mode=memory")
}

func (l *Ledger) checkOpen() error {
	if l.closed.Load() {
		return ErrClosed
	}
	return nil
}

// rebind rewrites ? placeholders for drivers that need $n.
func (l *Ledger) rebind(query string) string {
	if l.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
