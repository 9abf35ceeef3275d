package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ppiankov/governor/internal/sim"
)

var (
	replayPolicy string
	replayFormat string
)

func init() {
	rootCmd.AddCommand(replayCmd)
	replayCmd.Flags().StringVar(&replayPolicy, "policy", "", "Path to candidate policy (required)")
	replayCmd.Flags().StringVarP(&replayFormat, "format", "f", "text", "Output format (text|json)")
	replayCmd.MarkFlagRequired("policy")
}

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay the ledger against a candidate policy and show decision diffs",
	Long: "Reads every recorded proposal from the ledger, re-decides it under the\n" +
		"candidate policy, and shows which decisions would change.\n\n" +
		"Use this to preview policy changes before deploying them.",
	Args: cobra.NoArgs,
	RunE: runReplay,
}

func runReplay(cmd *cobra.Command, args []string) error {
	pol, err := readPolicyFile(replayPolicy)
	if err != nil {
		return fmt.Errorf("load candidate policy: %w", err)
	}

	ctx := context.Background()
	l, err := openLedger(ctx, cfg)
	if err != nil {
		return err
	}
	defer l.Close()

	result, err := sim.Simulate(ctx, l, pol, replayPolicy)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	switch replayFormat {
	case "json":
		out, err := sim.FormatJSON(result)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, out)
	default:
		fmt.Fprint(w, sim.FormatText(result))
	}
	return nil
}
