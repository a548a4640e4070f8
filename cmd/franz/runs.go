package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/hairizuan-noorazman/desktop-agent/database"
	"github.com/hairizuan-noorazman/desktop-agent/logger"
	"github.com/hairizuan-noorazman/desktop-agent/run"
	"github.com/spf13/cobra"
)

var (
	flagRunsLimit  int
	flagRunsOffset int
	flagRunsJSON   bool
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect the run registry",
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List past runs, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		cfg, err := LoadConfig(configFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		db, err := database.Connect(cfg.databaseConfig())
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return fmt.Errorf("failed to get database instance: %w", err)
		}
		defer sqlDB.Close()

		log := logger.NewLogrusLogger(logger.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
		store := run.NewSQLStore(db, log)

		runs, err := store.List(ctx, flagRunsLimit, flagRunsOffset)
		if err != nil {
			return err
		}
		if flagRunsJSON {
			return printJSON(cmd.OutOrStdout(), runs)
		}
		return printTable(cmd.OutOrStdout(), []string{"ID", "STATUS", "STARTED", "DURATION", "TURNS", "DIR"}, runRows(runs))
	},
}

func init() {
	runsListCmd.Flags().IntVar(&flagRunsLimit, "limit", 20, "maximum number of runs")
	runsListCmd.Flags().IntVar(&flagRunsOffset, "offset", 0, "number of runs to skip")
	runsListCmd.Flags().BoolVar(&flagRunsJSON, "json", false, "output as JSON")
	runsCmd.AddCommand(runsListCmd)
	rootCmd.AddCommand(runsCmd)
}

func runRows(runs []*run.Run) [][]string {
	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		started, duration, turns := "-", "-", "-"
		if r.StartTime != nil {
			started = r.StartTime.Format("2006-01-02 15:04:05")
		}
		if r.Duration != nil {
			duration = (time.Duration(*r.Duration) * time.Millisecond).String()
		}
		if n, ok := r.Result["turns"].(float64); ok {
			turns = strconv.Itoa(int(n))
		}
		rows = append(rows, []string{r.ID.String(), string(r.Status), started, duration, turns, r.Dir})
	}
	return rows
}
