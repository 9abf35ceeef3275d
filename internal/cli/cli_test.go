package cli

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ppiankov/governor/internal/ledger"
)

// setup writes an isolated config and returns its path and directory.
func setup(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	for _, name := range []string{
		"GOVERNOR_PORT", "GOVERNOR_API_KEYS", "GOVERNOR_DB", "GOVERNOR_POLICY", "GOVERNOR_LOG_LEVEL",
		"GEMINI_API_KEY", "GEMINI_MODEL", "GEMINI_MOCK", "GOVERNOR_JUDGE_BASE_URL",
	} {
		t.Setenv(name, "")
	}

	cfgFile := filepath.Join(dir, "config.yaml")
	body := fmt.Sprintf(`ledger:
  driver: sqlite
  dsn: %s
policy:
  path: %s
  watch: false
judge:
  mock: true
log:
  level: error
`, filepath.Join(dir, "governor.db"), filepath.Join(dir, "policy.yaml"))
	if err := os.WriteFile(cfgFile, []byte(body), 0600); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil))) })
	return cfgFile, dir
}

func run(t *testing.T, cfgFile string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetIn(strings.NewReader(""))
	rootCmd.SetArgs(append([]string{"--config", cfgFile}, args...))
	err := rootCmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func transferJSON(id string, amount float64) string {
	return fmt.Sprintf(`{"id":%q,"timestamp":"2026-03-01T12:00:00Z","agentId":"cli-test","actionType":"TRANSFER","intent":"pay","params":{"amountUSDC":%v,"to":"0xSAFE_ALLOWLIST_1"},"context":{}}`, id, amount)
}

func TestVersion(t *testing.T) {
	cfgFile, _ := setup(t)
	out, err := run(t, cfgFile, "version")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, `"name": "governor"`) {
		t.Errorf("unexpected output %s", out)
	}
}

func TestEvaluateAndAudit(t *testing.T) {
	cfgFile, dir := setup(t)

	out, err := run(t, cfgFile, "evaluate", writeFile(t, dir, "small.json", transferJSON("cli-1", 10)))
	if err != nil {
		t.Fatalf("evaluate small: %v", err)
	}
	var res map[string]any
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("invalid output %q: %v", out, err)
	}
	if res["decision"] != "APPROVE" || res["auditId"] != float64(1) {
		t.Errorf("unexpected result %v", res)
	}

	out, err = run(t, cfgFile, "evaluate", writeFile(t, dir, "large.json", transferJSON("cli-2", 35)))
	if !errors.Is(err, errFailed) {
		t.Fatalf("expected failure exit for DENY, got %v", err)
	}
	if !strings.Contains(out, `"DENY"`) {
		t.Errorf("expected DENY in output %s", out)
	}

	out, err = run(t, cfgFile, "audit", "list")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "Entries: 2") || !strings.Contains(out, "cli-2") {
		t.Errorf("unexpected list output:\n%s", out)
	}

	out, err = run(t, cfgFile, "audit", "verify")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !strings.Contains(out, "Audit chain valid: 2 entries checked") {
		t.Errorf("unexpected verify output:\n%s", out)
	}

	out, err = run(t, cfgFile, "audit", "spend", "--hours", "100000")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, ": 10 USDC") {
		t.Errorf("unexpected spend output %s", out)
	}

	out, err = run(t, cfgFile, "audit", "get", "2")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, `"proposalId": "cli-2"`) {
		t.Errorf("unexpected entry %s", out)
	}

	if _, err := run(t, cfgFile, "audit", "get", "99"); err == nil {
		t.Error("expected not found error")
	}
}

func TestEvaluateRejectsInvalidProposal(t *testing.T) {
	cfgFile, dir := setup(t)
	path := writeFile(t, dir, "bad.json", `{"id":"x","actionType":"TRANSFER"}`)
	if _, err := run(t, cfgFile, "evaluate", path); err == nil || errors.Is(err, errFailed) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestPolicyCommands(t *testing.T) {
	cfgFile, dir := setup(t)

	out, err := run(t, cfgFile, "policy", "init")
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if !strings.Contains(out, "Created") {
		t.Errorf("unexpected init output %s", out)
	}
	if _, err := run(t, cfgFile, "policy", "init"); err == nil {
		t.Error("expected init to refuse overwriting")
	}

	if _, err := run(t, cfgFile, "policy", "set", "maxSingleTransferUSDC", "40"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if _, err := run(t, cfgFile, "policy", "set", "denylistRecipients", "[0xDENY_9]"); err != nil {
		t.Fatalf("set list: %v", err)
	}
	out, err = run(t, cfgFile, "policy", "show")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "maxSingleTransferUSDC: 40") || !strings.Contains(out, "0xDENY_9") {
		t.Errorf("set values not shown:\n%s", out)
	}

	if _, err := run(t, cfgFile, "policy", "set", "maxWidgets", "1"); err == nil {
		t.Error("expected unknown key error")
	}
	if _, err := run(t, cfgFile, "policy", "set", "maxDailySpendUSDC", "-5"); err == nil {
		t.Error("expected validation error")
	}

	if out, err := run(t, cfgFile, "policy", "validate"); err != nil || !strings.Contains(out, "OK") {
		t.Errorf("validate: %v %s", err, out)
	}

	candidate := writeFile(t, dir, "candidate.yaml", "maxSingleTransferUSDC: 10\n")
	out, err = run(t, cfgFile, "policy", "diff", candidate)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "40 → 10") || !strings.Contains(out, "stricter") {
		t.Errorf("unexpected diff output:\n%s", out)
	}
}

func TestScenarioCommand(t *testing.T) {
	cfgFile, dir := setup(t)

	out, err := run(t, cfgFile, "scenario", filepath.Join("..", "scenario", "testdata", "baseline.yaml"))
	if err != nil {
		t.Fatalf("baseline should pass: %v\n%s", err, out)
	}

	failing := writeFile(t, dir, "failing.yaml", `name: failing
cases:
  - proposal:
      actionType: TRANSFER
      intent: pay
      params: {amountUSDC: 35, to: 0xSAFE_ALLOWLIST_1}
    expect: APPROVE
`)
	if _, err := run(t, cfgFile, "scenario", failing); !errors.Is(err, errFailed) {
		t.Errorf("expected failure exit, got %v", err)
	}
}

func TestReplayCommand(t *testing.T) {
	cfgFile, dir := setup(t)
	if _, err := run(t, cfgFile, "evaluate", writeFile(t, dir, "p.json", transferJSON("r-1", 10))); err != nil {
		t.Fatal(err)
	}

	strict := writeFile(t, dir, "strict.yaml", "maxSingleTransferUSDC: 5\n")
	out, err := run(t, cfgFile, "replay", "--policy", strict)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "1 of 1 proposals changed.") || !strings.Contains(out, "1 newly blocked") {
		t.Errorf("unexpected replay output:\n%s", out)
	}
}

func TestDemoCommand(t *testing.T) {
	cfgFile, _ := setup(t)
	out, err := run(t, cfgFile, "demo", "--rounds", "8", "--interval", "0s", "--adapt-delay", "0s", "--seed", "1")
	if err != nil {
		t.Fatal(err)
	}
	if n := strings.Count(out, "adapted"); n != 4 {
		t.Errorf("expected 4 adapted retries, got %d:\n%s", n, out)
	}

	out, err = run(t, cfgFile, "audit", "list", "--limit", "50")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "Entries: 12") {
		t.Errorf("expected 12 recorded decisions:\n%s", out)
	}
}

func TestInitAndDoctor(t *testing.T) {
	cfgFile, dir := setup(t)
	fresh := filepath.Join(dir, "fresh", "config.yaml")

	out, err := run(t, cfgFile, "init")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, filepath.Join(dir, "policy.yaml")) {
		t.Errorf("expected policy file to be created:\n%s", out)
	}

	out, err = run(t, fresh, "init")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, fresh) {
		t.Errorf("expected config file to be created:\n%s", out)
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Errorf("config not written: %v", err)
	}

	out, err = run(t, cfgFile, "doctor")
	if err != nil {
		t.Fatalf("doctor: %v\n%s", err, out)
	}
	if !strings.Contains(out, "All checks passed.") {
		t.Errorf("unexpected doctor output:\n%s", out)
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		cfg, override string
		want          slog.Level
		wantErr       bool
	}{
		{"", "", slog.LevelInfo, false},
		{"debug", "", slog.LevelDebug, false},
		{"info", "warning", slog.LevelWarn, false},
		{"ERROR", "", slog.LevelError, false},
		{"loud", "", 0, true},
	}
	for _, tt := range tests {
		got, err := parseLogLevel(tt.cfg, tt.override)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseLogLevel(%q, %q) error = %v", tt.cfg, tt.override, err)
			continue
		}
		if got != tt.want {
			t.Errorf("parseLogLevel(%q, %q) = %v, want %v", tt.cfg, tt.override, got, tt.want)
		}
	}
}

func TestEvaluateDryRunLeavesLedgerUntouched(t *testing.T) {
	cfgFile, dir := setup(t)
	t.Cleanup(func() { evalDryRun = false })
	dsn := filepath.Join(dir, "governor.db")

	if _, err := run(t, cfgFile, "evaluate", writeFile(t, dir, "first.json", transferJSON("dry-1", 10))); err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	withTestLedger(t, dsn, func(db *sql.DB) {
		if _, err := db.Exec(`UPDATE audit SET prev_hash = NULL, entry_hash = NULL WHERE id = 1`); err != nil {
			t.Fatalf("clear hashes: %v", err)
		}
	})

	out, err := run(t, cfgFile, "evaluate", "--dry-run", writeFile(t, dir, "second.json", transferJSON("dry-2", 10)))
	if err != nil {
		t.Fatalf("dry run: %v", err)
	}
	if !strings.Contains(out, `"APPROVE"`) {
		t.Errorf("expected APPROVE in output %s", out)
	}

	withTestLedger(t, dsn, func(db *sql.DB) {
		var count int
		var hash sql.NullString
		if err := db.QueryRow(`SELECT COUNT(*) FROM audit`).Scan(&count); err != nil {
			t.Fatal(err)
		}
		if err := db.QueryRow(`SELECT entry_hash FROM audit WHERE id = 1`).Scan(&hash); err != nil {
			t.Fatal(err)
		}
		if count != 1 {
			t.Errorf("dry run recorded an entry, have %d", count)
		}
		if hash.Valid {
			t.Errorf("dry run backfilled entry 1: %q", hash.String)
		}
	})
}

func withTestLedger(t *testing.T, dsn string, fn func(db *sql.DB)) {
	t.Helper()
	l, err := ledger.Open(context.Background(), ledger.DriverSQLite, dsn)
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	defer l.Close()
	fn(l.DB())
}
