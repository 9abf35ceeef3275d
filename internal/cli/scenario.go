package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ppiankov/governor/internal/scenario"
)

var (
	scenarioPolicy string
	scenarioFormat string
)

func init() {
	rootCmd.AddCommand(scenarioCmd)
	scenarioCmd.Flags().StringVar(&scenarioPolicy, "policy", "", "Policy file to test against (default: configured policy)")
	scenarioCmd.Flags().StringVarP(&scenarioFormat, "format", "f", "text", "Output format (text|json)")
}

var scenarioCmd = &cobra.Command{
	Use:   "scenario <file.yaml> [file.yaml...]",
	Short: "Run scenario files and check expected decisions",
	Long: "Evaluates every case in the given scenario files with the deterministic\n" +
		"fallback judge and compares the decision with the expected one.\n" +
		"Nothing is written to the ledger. Exits 1 if any case fails.",
	Args: cobra.MinimumNArgs(1),
	RunE: runScenario,
}

func runScenario(cmd *cobra.Command, args []string) error {
	policyPath := scenarioPolicy
	if policyPath == "" {
		policyPath = cfg.Policy.Path
	}

	var results []*scenario.RunResult
	failed := false
	for _, path := range args {
		res, err := scenario.LoadAndRun(path, policyPath)
		if err != nil {
			res = &scenario.RunResult{File: path, Error: err.Error()}
		}
		if res.Error != "" || res.Failed > 0 {
			failed = true
		}
		results = append(results, res)
	}

	w := cmd.OutOrStdout()
	switch scenarioFormat {
	case "json":
		out, err := scenario.FormatJSON(results)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, out)
	default:
		fmt.Fprint(w, scenario.FormatText(results))
	}

	if failed {
		return errFailed
	}
	return nil
}
