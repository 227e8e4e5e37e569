package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"openob.io/openob/internal/config"
	"openob.io/openob/internal/engine"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	Long: `Validate an openob configuration file without starting a link.

Environment overrides (OPENOB_*) are applied as they would be at startup, so
the result reflects the configuration the process would actually run with.

Examples:
  openob validate -f /etc/openob/openob.yml`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := validateConfig(validateConfigFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "INVALID: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("VALID: link %q, role %s, engine %s\n", cfg.Link.Name, cfg.Link.Role, cfg.Engine.Name)
	},
}

var validateConfigFile string

func init() {
	validateCmd.Flags().StringVarP(&validateConfigFile, "file", "f", "",
		"configuration file to validate (required)")
	validateCmd.MarkFlagRequired("file")
}

// validateConfig loads path and checks that its engine exists and accepts its options.
func validateConfig(path string) (*config.GlobalConfig, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", path, err)
	}
	cfg, err := config.Load(path, nil)
	if err != nil {
		return nil, err
	}
	if _, err := engine.New(cfg.Engine.Name, cfg.Engine.Options); err != nil {
		return nil, err
	}
	return cfg, nil
}
