package main

import (
	"fmt"

	"github.com/jpalmerr/labwatch/internal/export"
	"github.com/jpalmerr/labwatch/internal/store"
	"github.com/spf13/cobra"
)

type exportOptions struct {
	output           string
	database         string
	url              string
	from             string
	to               string
	includeResponses bool
}

// newExportCmd writes recorded polls to a CSV file.
func newExportCmd(root *rootOptions) *cobra.Command {
	opts := &exportOptions{}

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export recorded polls as CSV",
		Long: `Export recorded polls, oldest first, to a new CSV file.

Filters combine: --url matches the instance URL exactly, --from is
inclusive and --to is exclusive. Timestamps are UTC and accept
"YYYY-MM-DD" or "YYYY-MM-DD HH:MM:SS".

The output file must not already exist.

Example:
  labwatch export -o polls.csv -d polls.db
  labwatch export -o june.csv -d polls.db -f 2024-06-01 -t 2024-07-01
  labwatch export -o full.csv -d polls.db --include-responses`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(cmd, root, opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.output, "output", "o", "", "export path (required)")
	f.StringVarP(&opts.database, "database", "d", defaultDatabase, "SQLite database path or postgres:// DSN")
	f.StringVarP(&opts.url, "url", "u", "", "GitLab instance URL to filter")
	f.StringVarP(&opts.from, "from", "f", "", "filter from timestamp (inclusive)")
	f.StringVarP(&opts.to, "to", "t", "", "filter to timestamp (exclusive)")
	f.BoolVar(&opts.includeResponses, "include-responses", false, "include response bodies in the export")
	_ = cmd.MarkFlagRequired("output")

	return cmd
}

func runExport(cmd *cobra.Command, root *rootOptions, opts *exportOptions) error {
	stderr := cmd.ErrOrStderr()
	ctx := cmd.Context()

	logger, err := newLogger(stderr, root.logLevel)
	if err != nil {
		return err
	}

	// never touch storage when the output is taken
	if err := export.CheckOutput(opts.output); err != nil {
		return err
	}

	filter := store.Filter{BaseURL: store.NormalizeBaseURL(opts.url)}
	if opts.from != "" {
		if filter.From, err = export.ParseTimestamp(opts.from); err != nil {
			return fmt.Errorf("--from: %w", err)
		}
	}
	if opts.to != "" {
		if filter.To, err = export.ParseTimestamp(opts.to); err != nil {
			return fmt.Errorf("--to: %w", err)
		}
	}

	for _, line := range export.DescribeFilter(filter) {
		fmt.Fprintln(stderr, line)
	}

	db, err := store.Open(ctx, opts.database, store.Options{Logger: logger})
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.CheckSchema(ctx); err != nil {
		return err
	}

	fmt.Fprintln(stderr, "Beginning export...")
	n, err := export.Run(ctx, db, export.Options{
		Path:             opts.output,
		Filter:           filter,
		IncludeResponses: opts.includeResponses,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(stderr, "Completed export of %d rows\n", n)
	return nil
}
