package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/governor/internal/policy"
)

var policyInitForce bool

func init() {
	rootCmd.AddCommand(policyCmd)
	policyCmd.AddCommand(policyShowCmd, policyValidateCmd, policyInitCmd, policySetCmd)
	policyInitCmd.Flags().BoolVar(&policyInitForce, "force", false, "Overwrite an existing policy file")
}

var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Inspect and edit the governor policy",
}

var policyShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective policy",
	Long:  "Prints the policy the governor would use now. A missing or invalid\npolicy file falls back to the built-in defaults.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store := policy.NewStore(cfg.Policy.Path)
		p, hash := store.LoadWithHash()
		data, err := yaml.Marshal(p)
		if err != nil {
			return fmt.Errorf("marshal policy: %w", err)
		}
		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "# path: %s\n# hash: %s\n", store.Path(), hash)
		fmt.Fprint(w, string(data))
		return nil
	},
}

var policyValidateCmd = &cobra.Command{
	Use:   "validate [file]",
	Short: "Check a policy file without loading it",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := cfg.Policy.Path
		if len(args) == 1 {
			path = args[0]
		}
		if _, err := readPolicyFile(path); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "OK: %s is a valid policy\n", path)
		return nil
	},
}

var policyInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default policy file with comments",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := cfg.Policy.Path
		if _, err := os.Stat(path); err == nil && !policyInitForce {
			return fmt.Errorf("policy already exists at %s (use --force to overwrite)", path)
		} else if err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("stat policy: %w", err)
		}
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return fmt.Errorf("create policy directory: %w", err)
		}
		if err := os.WriteFile(path, []byte(policy.DefaultPolicyYAML()), 0600); err != nil {
			return fmt.Errorf("write policy: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Created %s\n", path)
		return nil
	},
}

// policyKeys are the settable fields; each rule id names the field it reads.
var policyKeys = []string{
	policy.RuleMaxDailySpend,
	policy.RuleMaxSingleTransfer,
	policy.RuleAllowlistRecipient,
	policy.RuleDenylistRecipients,
	policy.RuleSwapMaxSlippage,
	policy.RuleSwapMinLiquidity,
	policy.RuleDeployTests,
	policy.RuleAPIDenyPII,
}

var policySetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Change one policy field and save",
	Long: "Sets one field of the stored policy. Values are YAML, so lists are\n" +
		"written as [0xA, 0xB]. A running governor picks the change up through\n" +
		"hot-reload.",
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, raw := args[0], args[1]
		if !slices.Contains(policyKeys, key) {
			return fmt.Errorf("unknown policy key %q", key)
		}
		store := policy.NewStore(cfg.Policy.Path)
		p, err := setPolicyField(store.Load(), key, raw)
		if err != nil {
			return err
		}
		if err := store.Save(p); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Set %s in %s\n", key, store.Path())
		return nil
	},
}

func setPolicyField(p policy.Policy, key, raw string) (policy.Policy, error) {
	var value yaml.Node
	if err := yaml.Unmarshal([]byte(raw), &value); err != nil {
		return policy.Policy{}, fmt.Errorf("parse value: %w", err)
	}
	if len(value.Content) == 0 {
		return policy.Policy{}, fmt.Errorf("empty value for %s", key)
	}
	doc := &yaml.Node{
		Kind: yaml.MappingNode,
		Content: []*yaml.Node{
			{Kind: yaml.ScalarNode, Value: key},
			value.Content[0],
		},
	}
	out := p.Clone()
	if err := doc.Decode(&out); err != nil {
		return policy.Policy{}, fmt.Errorf("invalid value for %s: %w", key, err)
	}
	if err := out.Validate(); err != nil {
		return policy.Policy{}, err
	}
	return out, nil
}
