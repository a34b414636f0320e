package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	pg "cybersentinel/internal/adapters/postgres"
)

var (
	databaseURL string

	migrateCmd = &cobra.Command{
		Use:       "migrate up|status",
		Short:     "Apply or inspect database migrations",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"up", "status"},
		RunE:      runMigrate,
	}
)

func init() {
	migrateCmd.Flags().StringVar(&databaseURL, "database-url", os.Getenv("DATABASE_URL"), "Postgres connection URL")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	if databaseURL == "" {
		return fmt.Errorf("--database-url or DATABASE_URL is required")
	}
	ctx := cmd.Context()
	db, err := pg.Connect(ctx, databaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	switch args[0] {
	case "up":
		if err := db.Migrate(ctx); err != nil {
			return err
		}
		color.Green("migrations applied")
	case "status":
		return db.MigrationStatus(ctx)
	}
	return nil
}
