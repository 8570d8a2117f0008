package main

import (
	"fmt"

	"github.com/jpalmerr/labwatch/config"
	"github.com/spf13/cobra"
)

// newValidateCmd validates a config file without polling.
func newValidateCmd() *cobra.Command {
	var configFile string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a config file",
		Long: `Validate a labwatch configuration file without polling.

This command parses the YAML, expands environment variables, and validates
all fields. It's useful for CI/CD pipelines or pre-deployment checks.

Exit codes:
  0 - Config is valid
  1 - Config is invalid (error details printed to stderr)

Example:
  labwatch validate --config labwatch.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}

			url := cfg.URL
			if url == "" {
				url = "<from --url>"
			}
			mode := "single poll"
			if cfg.Continuous {
				mode = fmt.Sprintf("continuous, every %s", cfg.Interval.Duration())
			}
			timeout := "none"
			if cfg.Timeout != 0 {
				timeout = cfg.Timeout.Duration().String()
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Config is valid!\n")
			fmt.Fprintf(out, "  URL:      %s\n", url)
			fmt.Fprintf(out, "  Database: %s\n", cfg.Database)
			fmt.Fprintf(out, "  Mode:     %s\n", mode)
			fmt.Fprintf(out, "  Timeout:  %s\n", timeout)
			fmt.Fprintf(out, "  Headers:  %d\n", len(cfg.Headers))
			return nil
		},
	}

	cmd.Flags().StringVarP(&configFile, "config", "c", "", "path to config file (required)")
	_ = cmd.MarkFlagRequired("config")
	return cmd
}
