package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/governor/internal/policy"
	"github.com/ppiankov/governor/internal/policydiff"
)

var diffFormat string

func init() {
	policyCmd.AddCommand(policyDiffCmd)
	policyDiffCmd.Flags().StringVarP(&diffFormat, "format", "f", "text", "Output format (text|json)")
}

var policyDiffCmd = &cobra.Command{
	Use:   "diff [old.yaml] <new.yaml>",
	Short: "Compare two policy files and show changes",
	Long: "Shows which limits, flags and recipient lists changed and whether each\n" +
		"change is stricter or looser. With one file, compares the configured\n" +
		"policy against it.",
	Args: cobra.RangeArgs(1, 2),
	RunE: runDiff,
}

func runDiff(cmd *cobra.Command, args []string) error {
	oldPath, newPath := cfg.Policy.Path, args[0]
	if len(args) == 2 {
		oldPath, newPath = args[0], args[1]
	}

	var oldPol policy.Policy
	if len(args) == 2 {
		p, err := readPolicyFile(oldPath)
		if err != nil {
			return fmt.Errorf("load old policy: %w", err)
		}
		oldPol = p
	} else {
		oldPol = policy.NewStore(oldPath).Load()
	}
	newPol, err := readPolicyFile(newPath)
	if err != nil {
		return fmt.Errorf("load new policy: %w", err)
	}

	result := policydiff.Diff(oldPol, newPol)
	result.OldPath = oldPath
	result.NewPath = newPath

	w := cmd.OutOrStdout()
	switch diffFormat {
	case "json":
		out, err := policydiff.FormatJSON(result)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, out)
	default:
		fmt.Fprint(w, policydiff.FormatText(result))
	}

	return nil
}

// readPolicyFile parses path strictly; unlike Store.Load it never falls
// back to the defaults.
func readPolicyFile(path string) (policy.Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return policy.Policy{}, err
	}
	return policy.Parse(data)
}
