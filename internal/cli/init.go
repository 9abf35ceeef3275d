package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ppiankov/governor/internal/config"
	"github.com/ppiankov/governor/internal/policy"
)

var initForce bool

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite existing config files")
	rootCmd.AddCommand(initCmd)
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Bootstrap governor configuration",
	Long: `Creates the config directory with a commented config.yaml and the
default policy.yaml.

Files are written to ~/.governor/ unless --config points elsewhere.`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	cfgFile := configPath
	if cfgFile == "" {
		cfgFile = config.ConfigPath()
	}

	var created []string
	if wrote, err := writeIfMissing(cfgFile, config.DefaultConfigYAML()); err != nil {
		return err
	} else if wrote {
		created = append(created, cfgFile)
	}
	if wrote, err := writeIfMissing(cfg.Policy.Path, policy.DefaultPolicyYAML()); err != nil {
		return err
	} else if wrote {
		created = append(created, cfg.Policy.Path)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintln(w, "governor init complete.")
	fmt.Fprintln(w)
	if len(created) > 0 {
		fmt.Fprintln(w, "Created:")
		for _, path := range created {
			fmt.Fprintf(w, "  %s\n", path)
		}
	} else {
		fmt.Fprintln(w, "All files already exist (use --force to overwrite).")
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Verify:")
	fmt.Fprintln(w, "  governor doctor")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Start the service:")
	fmt.Fprintln(w, "  governor serve")
	return nil
}

// writeIfMissing writes content to path if it doesn't exist or --force is set.
// Returns true if the file was written.
func writeIfMissing(path, content string) (bool, error) {
	if !initForce {
		if _, err := os.Stat(path); err == nil {
			return false, nil
		}
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return false, fmt.Errorf("create directory %s: %w", dir, err)
	}

	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		return false, fmt.Errorf("write %s: %w", path, err)
	}
	return true, nil
}
