package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/ppiankov/governor/internal/alert"
	"github.com/ppiankov/governor/internal/config"
	"github.com/ppiankov/governor/internal/governor"
	"github.com/ppiankov/governor/internal/judge"
	"github.com/ppiankov/governor/internal/ledger"
	"github.com/ppiankov/governor/internal/policy"
)

// app is the wired service shared by serve, evaluate, demo and mcp.
type app struct {
	ledger *ledger.Ledger
	store  *policy.Store
	holder *policy.Holder
	alerts *alert.Dispatcher
	svc    *governor.Service
	info   judge.Info
}

func openLedger(ctx context.Context, c *config.Config) (*ledger.Ledger, error) {
	driver := ledger.Driver(strings.ToLower(c.Ledger.Driver))
	if driver == ledger.DriverSQLite && !strings.Contains(c.Ledger.DSN, ":memory:") && !strings.HasPrefix(c.Ledger.DSN, "file:") {
		if err := os.MkdirAll(filepath.Dir(c.Ledger.DSN), 0700); err != nil {
			return nil, fmt.Errorf("create ledger directory: %w", err)
		}
	}
	l, err := ledger.Open(ctx, driver, c.Ledger.DSN)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	return l, nil
}

// appOptions selects the optional parts of openApp.
type appOptions struct {
	alerts   bool
	readOnly bool // skip the startup backfill
}

// openApp wires ledger, policy, judge and, when requested, the alert
// sinks. Unhashed legacy entries are backfilled first unless readOnly.
func openApp(ctx context.Context, c *config.Config, opts appOptions) (*app, error) {
	l, err := openLedger(ctx, c)
	if err != nil {
		return nil, err
	}
	if !opts.readOnly {
		n, err := l.Backfill(ctx)
		if err != nil {
			l.Close()
			return nil, fmt.Errorf("backfill ledger: %w", err)
		}
		if n > 0 {
			slog.Info("backfilled ledger hashes", "entries", n)
		}
	}

	store := policy.NewStore(c.Policy.Path)
	pol, hash := store.LoadWithHash()
	holder := policy.NewHolder(pol, hash)

	provider, err := judge.New(ctx, c.Judge, slog.Default())
	if err != nil {
		l.Close()
		return nil, err
	}

	a := &app{ledger: l, store: store, holder: holder, info: c.Judge.Info()}
	svcOpts := []governor.Option{
		governor.WithPolicyStore(store),
		governor.WithLogger(slog.Default()),
	}
	if opts.alerts {
		d, err := alert.FromConfig(ctx, c.Alerts, slog.Default())
		if err != nil {
			l.Close()
			return nil, fmt.Errorf("configure alerts: %w", err)
		}
		a.alerts = d
		svcOpts = append(svcOpts, governor.WithAlerts(d))
	}
	a.svc = governor.New(l, holder, provider, svcOpts...)
	return a, nil
}

// Close flushes pending alerts and closes the ledger.
func (a *app) Close() {
	if err := a.alerts.Close(); err != nil {
		slog.Warn("close alert sinks", "error", err)
	}
	if err := a.ledger.Close(); err != nil {
		slog.Warn("close ledger", "error", err)
	}
}
