package main

import (
	"database/sql"
	"fmt"

	"github.com/hairizuan-noorazman/desktop-agent/database"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run registry migration commands",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRegistryDB(func(sqlDB *sql.DB, driver string) error {
			if err := database.RunMigrations(sqlDB, driver); err != nil {
				return fmt.Errorf("failed to run migrations: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Migrations applied successfully")
			return nil
		})
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Rollback the most recent migration",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRegistryDB(func(sqlDB *sql.DB, driver string) error {
			if err := database.RollbackMigration(sqlDB, driver); err != nil {
				return fmt.Errorf("failed to rollback migration: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Migration rolled back successfully")
			return nil
		})
	},
}

var migrateVersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the applied schema version",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRegistryDB(func(sqlDB *sql.DB, driver string) error {
			version, dirty, err := database.Version(sqlDB, driver)
			if err != nil {
				return fmt.Errorf("failed to read schema version: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "version %d (dirty: %v)\n", version, dirty)
			return nil
		})
	},
}

func init() {
	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateDownCmd)
	migrateCmd.AddCommand(migrateVersionCmd)
	rootCmd.AddCommand(migrateCmd)
}

// withRegistryDB opens the configured registry database for the duration
// of fn.
func withRegistryDB(fn func(sqlDB *sql.DB, driver string) error) error {
	cfg, err := LoadConfig(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	dbCfg := cfg.databaseConfig()
	db, err := database.Connect(dbCfg)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}
	defer sqlDB.Close()

	return fn(sqlDB, dbCfg.Driver)
}
