package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ppiankov/governor/internal/ledger"
)

var (
	listLimit    int
	listOffset   int
	verifyLimit  int
	summaryLimit int
	auditJSON    bool
	auditHours   float64
)

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditListCmd, auditGetCmd, auditVerifyCmd, auditBackfillCmd, auditSpendCmd, auditSummaryCmd)
	auditCmd.PersistentFlags().BoolVar(&auditJSON, "json", false, "Print JSON instead of text")

	auditListCmd.Flags().IntVarP(&listLimit, "limit", "n", ledger.DefaultListLimit, "Number of entries to show")
	auditListCmd.Flags().IntVar(&listOffset, "offset", 0, "Entries to skip from the newest")
	auditVerifyCmd.Flags().IntVarP(&verifyLimit, "limit", "n", ledger.DefaultVerifyLimit, "Number of entries to verify from the oldest")
	auditSpendCmd.Flags().Float64Var(&auditHours, "hours", 24, "Window size in hours")
	auditSummaryCmd.Flags().IntVarP(&summaryLimit, "limit", "n", 10, "Number of recent decisions to include")
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Audit ledger operations",
	Long:  "Commands for inspecting and verifying the hash-chained decision ledger.",
}

var auditListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent decisions, newest first",
	Args:  cobra.NoArgs,
	RunE: withLedger(func(ctx context.Context, l *ledger.Ledger, w io.Writer, _ []string) error {
		entries, err := l.List(ctx, listLimit, listOffset)
		if err != nil {
			return err
		}
		if auditJSON {
			return printJSON(w, entries)
		}
		fmt.Fprint(w, ledger.FormatTable(entries))
		return nil
	}),
}

var auditGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show one ledger entry",
	Args:  cobra.ExactArgs(1),
	RunE: withLedger(func(ctx context.Context, l *ledger.Ledger, w io.Writer, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid audit id %q", args[0])
		}
		e, ok, err := l.Get(ctx, id)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("audit entry %d not found", id)
		}
		return printJSON(w, e)
	}),
}

var auditVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify hash chain integrity of the ledger",
	Long:  "Walks the ledger from the oldest entry and recomputes every hash.\nExits 0 if valid, 1 if tampered.",
	Args:  cobra.NoArgs,
	RunE: withLedger(func(ctx context.Context, l *ledger.Ledger, w io.Writer, _ []string) error {
		res, err := l.Verify(ctx, verifyLimit)
		if err != nil {
			return err
		}
		if auditJSON {
			if err := printJSON(w, res); err != nil {
				return err
			}
		} else {
			fmt.Fprint(w, ledger.FormatVerify(res))
		}
		if !res.Valid {
			return errFailed
		}
		return nil
	}),
}

var auditBackfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Hash entries written before hashing existed",
	Args:  cobra.NoArgs,
	RunE: withLedger(func(ctx context.Context, l *ledger.Ledger, w io.Writer, _ []string) error {
		n, err := l.Backfill(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "Backfilled %d entries\n", n)
		return nil
	}),
}

var auditSpendCmd = &cobra.Command{
	Use:   "spend",
	Short: "Show approved transfer spend in a trailing window",
	Args:  cobra.NoArgs,
	RunE: withLedger(func(ctx context.Context, l *ledger.Ledger, w io.Writer, _ []string) error {
		if auditHours <= 0 {
			return fmt.Errorf("--hours must be positive")
		}
		spend, err := l.DailySpend(ctx, auditHours)
		if err != nil {
			return err
		}
		if auditJSON {
			return printJSON(w, map[string]float64{"windowHours": auditHours, "spendUSDC": spend})
		}
		fmt.Fprintf(w, "Approved spend in the last %sh: %s USDC\n",
			strconv.FormatFloat(auditHours, 'f', -1, 64), strconv.FormatFloat(spend, 'f', -1, 64))
		return nil
	}),
}

var auditSummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Show decision counts and the most recent decisions",
	Args:  cobra.NoArgs,
	RunE: withLedger(func(ctx context.Context, l *ledger.Ledger, w io.Writer, _ []string) error {
		sum, err := l.Summary(ctx, summaryLimit)
		if err != nil {
			return err
		}
		return printJSON(w, sum)
	}),
}

// withLedger opens the configured ledger for the duration of fn.
func withLedger(fn func(ctx context.Context, l *ledger.Ledger, w io.Writer, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		l, err := openLedger(ctx, cfg)
		if err != nil {
			return err
		}
		defer l.Close()
		return fn(ctx, l, cmd.OutOrStdout(), args)
	}
}

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal output: %w", err)
	}
	fmt.Fprintln(w, string(data))
	return nil
}
