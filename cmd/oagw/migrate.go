package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/oagw/gateway/adapters/sqlite"
	"github.com/oagw/gateway/config"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending sqlite schema migrations",
	Long: `Applies any pending migrations to the configured sqlite database
without starting the server. A no-op when database.driver is "memory".`,
	RunE: runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadWithFallback(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if cfg.Database.Driver == "memory" {
		fmt.Println("database.driver is \"memory\"; nothing to migrate")
		return nil
	}

	db, err := sqlite.Open(cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	fmt.Printf("migrations applied to %s\n", cfg.Database.DSN)
	return nil
}
