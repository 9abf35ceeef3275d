package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/governor/internal/config"
	"github.com/ppiankov/governor/internal/ledger"
	"github.com/ppiankov/governor/internal/policy"
)

func init() {
	rootCmd.AddCommand(doctorCmd)
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check configuration, policy and ledger health",
	Args:  cobra.NoArgs,
	RunE:  runDoctor,
}

type checkResult struct {
	label  string
	ok     bool
	detail string
	fix    string
}

func runDoctor(cmd *cobra.Command, args []string) error {
	var checks []checkResult

	cfgFile := configPath
	if cfgFile == "" {
		cfgFile = config.ConfigPath()
	}
	if _, err := os.Stat(cfgFile); err == nil {
		checks = append(checks, checkResult{label: "config file", ok: true, detail: cfgFile})
	} else {
		// Defaults and environment still apply, so this is informational.
		checks = append(checks, checkResult{label: "config file", ok: true, detail: "not found, using defaults"})
	}

	checks = append(checks, checkPolicy(cfg.Policy.Path))
	checks = append(checks, checkLedger(cmd.Context(), cfg))

	info := cfg.Judge.Info()
	switch {
	case info.Mock:
		checks = append(checks, checkResult{label: "judge", ok: true, detail: "mock mode, fallback judge"})
	case !info.HasKey:
		checks = append(checks, checkResult{label: "judge", ok: true, detail: fmt.Sprintf("%s without api key, fallback judge", info.Provider)})
	default:
		checks = append(checks, checkResult{label: "judge", ok: true, detail: fmt.Sprintf("%s/%s", info.Provider, info.Model)})
	}

	if len(cfg.Auth.APIKeys) == 0 {
		checks = append(checks, checkResult{label: "auth", ok: true, detail: "disabled"})
	} else {
		checks = append(checks, checkResult{label: "auth", ok: true, detail: fmt.Sprintf("%d keys", len(cfg.Auth.APIKeys))})
	}

	w := cmd.OutOrStdout()
	hasFailures := false
	for _, c := range checks {
		mark := "✓"
		if !c.ok {
			mark = "✗"
			hasFailures = true
		}
		line := fmt.Sprintf("%s %-14s %s", mark, c.label+":", c.detail)
		if !c.ok && c.fix != "" {
			line += fmt.Sprintf("  ->  %s", c.fix)
		}
		fmt.Fprintln(w, line)
	}

	fmt.Fprintln(w)
	if hasFailures {
		fmt.Fprintln(w, "Some checks failed. Run the suggested commands to fix.")
		return errFailed
	}
	fmt.Fprintln(w, "All checks passed.")
	return nil
}

func checkPolicy(path string) checkResult {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return checkResult{label: "policy", ok: true, detail: "not found, using defaults"}
	}
	if err != nil {
		return checkResult{label: "policy", ok: false, detail: err.Error()}
	}
	if _, err := policy.Parse(data); err != nil {
		return checkResult{label: "policy", ok: false, detail: err.Error(), fix: "governor policy validate " + path}
	}
	return checkResult{label: "policy", ok: true, detail: path}
}

func checkLedger(ctx context.Context, c *config.Config) checkResult {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	l, err := openLedger(ctx, c)
	if err != nil {
		return checkResult{label: "ledger", ok: false, detail: err.Error()}
	}
	defer l.Close()

	res, err := l.Verify(ctx, ledger.MaxVerifyLimit)
	if err != nil {
		return checkResult{label: "ledger", ok: false, detail: err.Error()}
	}
	if !res.Valid {
		r := checkResult{
			label:  "ledger",
			ok:     false,
			detail: fmt.Sprintf("chain invalid at entry %d: %s", res.FirstInvalidAuditID, res.Reason),
		}
		if res.Reason == ledger.ReasonMissingHash {
			r.fix = "governor audit backfill"
		}
		return r
	}
	return checkResult{label: "ledger", ok: true, detail: fmt.Sprintf("%s, %d entries verified", c.Ledger.Driver, res.Checked)}
}
