package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jpalmerr/labwatch"
	"github.com/jpalmerr/labwatch/config"
	"github.com/spf13/cobra"
)

type pollOptions struct {
	configFile    string
	url           string
	token         string
	database      string
	continuous    bool
	interval      float64
	saveResponses bool
	timeout       time.Duration
	authHeader    string
	listen        string
	noColor       bool
}

// newPollCmd polls a GitLab instance once or continuously.
func newPollCmd(root *rootOptions) *cobra.Command {
	opts := &pollOptions{}

	cmd := &cobra.Command{
		Use:   "poll",
		Short: "Poll a GitLab instance",
		Long: `Poll the health, readiness and metadata endpoints of a GitLab instance
and record the outcome in the database.

The access token is taken from --token, then the GITLAB_ACCESS_TOKEN
environment variable, and is prompted for otherwise.

With --continuous the instance is polled until interrupted (Ctrl+C) or
SIGTERM is received. An in-flight poll always finishes and is recorded
before the command exits.

The database must exist and be up to date; run 'labwatch migrate' first.

Example:
  labwatch poll -u https://gitlab.example.com -d polls.db
  labwatch poll -u https://gitlab.example.com -c -i 60 --save-responses
  labwatch poll --config labwatch.yaml --listen :9090`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPoll(cmd, root, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.configFile, "config", "", "path to a YAML config file; flags override its values")
	f.StringVarP(&opts.url, "url", "u", "", "GitLab instance URL")
	f.StringVarP(&opts.token, "token", "t", "", "GitLab access token [env: "+tokenEnvVar+"]")
	f.StringVarP(&opts.database, "database", "d", defaultDatabase, "SQLite database path or postgres:// DSN")
	f.BoolVarP(&opts.continuous, "continuous", "c", false, "run continuously")
	f.Float64VarP(&opts.interval, "interval", "i", 300, "polling interval (seconds); only applies with --continuous")
	f.BoolVar(&opts.saveResponses, "save-responses", false, "persist response bodies to the database")
	f.DurationVar(&opts.timeout, "timeout", 0, "per-request timeout, e.g. 30s (0 means none)")
	f.StringVar(&opts.authHeader, "auth-header", "bearer", "how the token is sent: bearer or private-token")
	f.StringVar(&opts.listen, "listen", "", "serve /metrics, /api/polls and /healthz on this address")
	f.BoolVar(&opts.noColor, "no-color", false, "disable coloured progress output")

	return cmd
}

func runPoll(cmd *cobra.Command, root *rootOptions, opts *pollOptions) error {
	stderr := cmd.ErrOrStderr()

	logger, err := newLogger(stderr, root.logLevel)
	if err != nil {
		return err
	}

	cfg, err := loadPollConfig(opts.configFile)
	if err != nil {
		return err
	}
	if err := applyPollFlags(cmd, opts, cfg); err != nil {
		return err
	}
	if cfg.URL == "" {
		return fmt.Errorf("a GitLab instance URL is required (--url or url in the config file)")
	}

	colorize := !opts.noColor && isTerminal(stderr)

	token, err := tokenSource{
		explicit: cfg.Token,
		lookup:   os.LookupEnv,
		prompt:   func() (string, error) { return promptToken(cmd.InOrStdin(), stderr) },
	}.resolve()
	if err != nil {
		return err
	}
	if err := checkToken(token, stderr, colorize); err != nil {
		return err
	}
	cfg.Token = token

	target, watcherOpts, err := config.Build(cfg)
	if err != nil {
		return err
	}
	watcherOpts = append(watcherOpts,
		labwatch.WithLogger(logger),
		labwatch.WithProgress(stderr, colorize),
	)

	w, err := labwatch.New(target, watcherOpts...)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if w.Continuous() {
		fmt.Fprintf(stderr, "Polling continuously with an interval of %.2fs...\n", w.Interval().Seconds())
		stopNotice := context.AfterFunc(ctx, func() {
			fmt.Fprintln(stderr, "Interrupt received. Stopping...")
		})
		defer stopNotice()
	}

	return w.Run(ctx)
}

// loadPollConfig reads the config file, or returns the defaults when none is
// given.
func loadPollConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Parse(nil)
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// applyPollFlags overrides cfg with every flag set on the command line. Flag
// defaults apply only when no config file is used.
func applyPollFlags(cmd *cobra.Command, opts *pollOptions, cfg *config.Config) error {
	set := func(name string) bool {
		return opts.configFile == "" || cmd.Flags().Changed(name)
	}

	if cmd.Flags().Changed("url") {
		cfg.URL = opts.url
	}
	if cmd.Flags().Changed("token") {
		cfg.Token = opts.token
	}
	if set("database") {
		cfg.Database = opts.database
	}
	if set("continuous") {
		cfg.Continuous = opts.continuous
	}
	if set("interval") {
		if opts.interval <= 0 {
			return fmt.Errorf("--interval must be positive, got %v", opts.interval)
		}
		cfg.Interval = config.Duration(time.Duration(opts.interval * float64(time.Second)))
	}
	if set("save-responses") {
		cfg.SaveResponses = opts.saveResponses
	}
	if set("timeout") {
		cfg.Timeout = config.Duration(opts.timeout)
	}
	if set("auth-header") {
		cfg.AuthHeader = strings.ToLower(opts.authHeader)
	}
	if set("listen") {
		cfg.Listen = opts.listen
	}
	return nil
}
