package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/governor/internal/config"
)

var (
	configPath       string
	logLevelOverride string

	// cfg is loaded once per invocation by the root pre-run hook.
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "governor",
	Short: "Policy governor for autonomous agent actions",
	Long: "Evaluates actions proposed by autonomous agents against a policy,\n" +
		"reconciles them with a model recommendation, and records every\n" +
		"decision in a hash-chained audit ledger.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" {
			return nil
		}
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
		return configureLogger(cfg, logLevelOverride)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default ~/.governor/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevelOverride, "log-level", "", "Override log level (debug|info|warn|error)")
}

// errFailed makes the process exit 1 after a command has already
// reported the failure on stdout.
var errFailed = errors.New("failed")

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errFailed) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}
