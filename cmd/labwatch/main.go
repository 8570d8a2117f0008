// Package main is the entry point for the labwatch CLI.
//
// Usage:
//
//	labwatch migrate -d polls.db                          # Create or update the schema
//	labwatch poll -u https://gitlab.example.com -d polls.db
//	labwatch poll -u https://gitlab.example.com -c -i 60  # Poll every minute
//	labwatch export -o polls.csv -d polls.db -f 2024-01-01
//	labwatch validate --config labwatch.yaml
//	labwatch version
package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// Version information - set at build time via ldflags.
// Example: go build -ldflags "-X main.version=1.0.0"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const (
	defaultDatabase = "labwatch.db"
	defaultEnvFile  = ".env"
)

// rootOptions holds the persistent flags shared by every subcommand.
type rootOptions struct {
	logLevel string
	envFile  string
}

// newRootCmd returns the root command with all subcommands registered.
func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "labwatch",
		Short: "Poll a GitLab instance and record its health",
		Long: `labwatch polls a GitLab instance's health, readiness and metadata
endpoints, records every attempt in a database and exports the history
as CSV.

Quick start:
  1. Create the database:  labwatch migrate -d polls.db
  2. Poll once:            labwatch poll -u https://gitlab.example.com -d polls.db
  3. Export the history:   labwatch export -o polls.csv -d polls.db`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadEnvFile(opts.envFile, cmd.Flags().Changed("env-file"))
		},
	}

	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "log level: debug, info, warn or error")
	rootCmd.PersistentFlags().StringVar(&opts.envFile, "env-file", defaultEnvFile, "file of environment variables to load")

	rootCmd.AddCommand(newPollCmd(opts))
	rootCmd.AddCommand(newExportCmd(opts))
	rootCmd.AddCommand(newMigrateCmd(opts))
	rootCmd.AddCommand(newCheckMigrationsCmd(opts))
	rootCmd.AddCommand(newValidateCmd())
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// newVersionCmd prints version information.
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Long:  `Print the version, commit hash, and build date of this labwatch binary.`,
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "labwatch %s\n", version)
			fmt.Fprintf(out, "  commit: %s\n", commit)
			fmt.Fprintf(out, "  built:  %s\n", date)
		},
	}
}

// loadEnvFile loads variables from path without overriding ones already set.
// A missing file is only an error when the path was given explicitly.
func loadEnvFile(path string, explicit bool) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

// newLogger creates a JSON logger for CLI use.
func newLogger(w io.Writer, level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		return nil, fmt.Errorf("invalid log level %q", level)
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: lvl,
	})), nil
}
