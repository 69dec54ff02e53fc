package cmd

import (
	"fmt"
	"os"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/aivoice/internal/store"
	"github.com/nextlevelbuilder/aivoice/internal/store/pg"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the Postgres settings schema",
	}
	cmd.AddCommand(migrateUpCmd())
	cmd.AddCommand(migrateDownCmd())
	cmd.AddCommand(migrateVersionCmd())
	return cmd
}

func withPostgres(fn func(db *sqlx.DB)) {
	cfg := mustLoadConfig()
	setupLogging(cfg.Logging)
	if cfg.Store.Backend != store.BackendPostgres {
		fmt.Fprintf(os.Stderr, "Error: store.backend is %q, migrations only apply to postgres\n", cfg.Store.Backend)
		os.Exit(1)
	}
	db, err := pg.OpenDB(cfg.Store.PostgresDSN)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
	defer db.Close()
	fn(db)
}

func migrateUpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Run: func(cmd *cobra.Command, args []string) {
			withPostgres(func(db *sqlx.DB) {
				if err := pg.MigrateUp(db); err != nil {
					fmt.Fprintf(os.Stderr, "Migration failed: %s\n", err)
					os.Exit(1)
				}
				printSchemaVersion(db)
			})
		},
	}
}

func migrateDownCmd() *cobra.Command {
	var steps int
	cmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		Run: func(cmd *cobra.Command, args []string) {
			withPostgres(func(db *sqlx.DB) {
				if err := pg.MigrateDown(db, steps); err != nil {
					fmt.Fprintf(os.Stderr, "Rollback failed: %s\n", err)
					os.Exit(1)
				}
				printSchemaVersion(db)
			})
		},
	}
	cmd.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")
	return cmd
}

func migrateVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		Run: func(cmd *cobra.Command, args []string) {
			withPostgres(printSchemaVersion)
		},
	}
}

func printSchemaVersion(db *sqlx.DB) {
	v, dirty, err := pg.SchemaVersion(db)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading schema version: %s\n", err)
		os.Exit(1)
	}
	if dirty {
		fmt.Printf("Schema version: %d (dirty)\n", v)
		return
	}
	fmt.Printf("Schema version: %d\n", v)
}
