package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"firestige.xyz/rxsink/internal/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration file",
	Long: `Load and validate the configuration file without binding any socket, then print
the resolved configuration (defaults applied) as YAML.

Every sink's filter chain is built, so unknown filter types or bad parameters are
reported here.

Examples:
  rxsink validate -c configs/rxsink.yml`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runValidate(configFile, cmd.OutOrStdout()); err != nil {
			fmt.Fprintf(os.Stderr, "INVALID: %v\n", err)
			os.Exit(1)
		}
	},
}

func runValidate(path string, w io.Writer) error {
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	if _, err := cfg.SinkConfigs(); err != nil {
		return err
	}

	fmt.Fprintf(w, "VALID: %d sink(s)\n", len(cfg.Sinks))
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(map[string]*config.Config{"rxsink": cfg}); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return enc.Close()
}
