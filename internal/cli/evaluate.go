package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/governor/internal/governor"
	"github.com/ppiankov/governor/internal/model"
)

var evalDryRun bool

func init() {
	rootCmd.AddCommand(evaluateCmd)
	evaluateCmd.Flags().BoolVar(&evalDryRun, "dry-run", false, "Decide with the fallback judge and do not record the result")
}

var evaluateCmd = &cobra.Command{
	Use:   "evaluate [proposal.json|-]",
	Short: "Evaluate one proposal and record the decision",
	Long: "Reads an ActionProposal as JSON from a file or stdin, runs it through the\n" +
		"governor, and prints the decision. Exits 1 unless the decision is APPROVE.",
	Args: cobra.MaximumNArgs(1),
	RunE: runEvaluate,
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	src := "-"
	if len(args) == 1 {
		src = args[0]
	}
	p, err := readProposal(cmd.InOrStdin(), src)
	if err != nil {
		return err
	}

	ctx := context.Background()
	a, err := openApp(ctx, cfg, appOptions{alerts: !evalDryRun, readOnly: evalDryRun})
	if err != nil {
		return err
	}
	defer a.Close()

	var out any
	var decision model.Decision
	if evalDryRun {
		if err := p.Validate(); err != nil {
			return err
		}
		spend, err := a.svc.DailySpend(ctx, 24)
		if err != nil {
			return err
		}
		d := governor.DecideWithFallback(p, a.svc.Policy(), spend)
		out, decision = d, d.Decision
	} else {
		res, err := a.svc.EvaluateProposal(ctx, p)
		if err != nil {
			return err
		}
		out, decision = res, res.Decision.Decision
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal decision: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))

	if decision != model.Approve {
		return errFailed
	}
	return nil
}

func readProposal(stdin io.Reader, src string) (model.ActionProposal, error) {
	var (
		data []byte
		err  error
	)
	if src == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(src)
	}
	if err != nil {
		return model.ActionProposal{}, fmt.Errorf("read proposal: %w", err)
	}
	var p model.ActionProposal
	if err := json.Unmarshal(data, &p); err != nil {
		return model.ActionProposal{}, fmt.Errorf("parse proposal: %w", err)
	}
	return p, nil
}
