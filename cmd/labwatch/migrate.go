package main

import (
	"fmt"

	"github.com/jpalmerr/labwatch/internal/store"
	"github.com/spf13/cobra"
)

// newMigrateCmd creates the database or brings its schema up to date.
func newMigrateCmd(root *rootOptions) *cobra.Command {
	var database string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		Long: `Create the database if needed and apply any pending schema changes.

Example:
  labwatch migrate -d polls.db
  labwatch migrate -d postgres://labwatch@localhost/labwatch`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger(cmd.ErrOrStderr(), root.logLevel)
			if err != nil {
				return err
			}

			db, err := store.Open(cmd.Context(), database, store.Options{CreateIfMissing: true, Logger: logger})
			if err != nil {
				return err
			}
			defer db.Close()

			if err := db.Migrate(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.ErrOrStderr(), "Database schema is up to date.")
			return nil
		},
	}

	cmd.Flags().StringVarP(&database, "database", "d", defaultDatabase, "SQLite database path or postgres:// DSN")
	return cmd
}

// newCheckMigrationsCmd exits non-zero when the schema needs migrating.
func newCheckMigrationsCmd(root *rootOptions) *cobra.Command {
	var database string

	cmd := &cobra.Command{
		Use:     "check-migrations",
		Aliases: []string{"check_migrations"},
		Short:   "Check whether the database schema is up to date",
		Long: `List schema changes that 'labwatch migrate' would apply.

Exit codes:
  0 - Schema is up to date
  1 - Migrations are pending, or the database does not exist`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger(cmd.ErrOrStderr(), root.logLevel)
			if err != nil {
				return err
			}

			db, err := store.Open(cmd.Context(), database, store.Options{Logger: logger})
			if err != nil {
				return err
			}
			defer db.Close()

			pending, err := db.PendingMigrations(cmd.Context())
			if err != nil {
				return err
			}
			if len(pending) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No pending migrations.")
				return nil
			}

			fmt.Fprintln(cmd.OutOrStdout(), "Pending migrations:")
			for _, p := range pending {
				fmt.Fprintf(cmd.OutOrStdout(), "  - %s\n", p)
			}
			return fmt.Errorf("%d pending migration(s); run 'labwatch migrate'", len(pending))
		},
	}

	cmd.Flags().StringVarP(&database, "database", "d", defaultDatabase, "SQLite database path or postgres:// DSN")
	return cmd
}
