package main

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/hairizuan-noorazman/desktop-agent/execlog"
	"github.com/spf13/cobra"
)

var (
	flagLogJSON    bool
	flagLogOutcome string
)

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "Execution log commands",
}

var logParseCmd = &cobra.Command{
	Use:   "parse <execution.log>",
	Short: "Parse an execution log and print its turns",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open log: %w", err)
		}
		defer f.Close()

		entries, err := execlog.Parse(f)
		if err != nil {
			return err
		}
		if flagLogOutcome != "" {
			outcome := execlog.Outcome(flagLogOutcome)
			if !outcome.IsValid() {
				return fmt.Errorf("unknown outcome %q", flagLogOutcome)
			}
			entries = filterOutcome(entries, outcome)
		}
		return renderEntries(cmd.OutOrStdout(), entries, flagLogJSON)
	},
}

func init() {
	logParseCmd.Flags().BoolVar(&flagLogJSON, "json", false, "output as JSON")
	logParseCmd.Flags().StringVar(&flagLogOutcome, "outcome", "", "only show turns with this outcome")
	logCmd.AddCommand(logParseCmd)
	rootCmd.AddCommand(logCmd)
}

func filterOutcome(entries []execlog.ParsedEntry, outcome execlog.Outcome) []execlog.ParsedEntry {
	out := make([]execlog.ParsedEntry, 0, len(entries))
	for _, e := range entries {
		if e.Outcome == outcome {
			out = append(out, e)
		}
	}
	return out
}

func renderEntries(w io.Writer, entries []execlog.ParsedEntry, asJSON bool) error {
	if asJSON {
		if entries == nil {
			entries = []execlog.ParsedEntry{}
		}
		return printJSON(w, entries)
	}

	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []string{
			strconv.Itoa(e.TurnIndex),
			e.Timestamp.Format(execlog.TimestampLayout),
			e.ScreenshotName,
			string(e.Outcome),
			e.Action,
			strconv.Itoa(len(e.Windows)),
			truncate(e.Story, 60),
		})
	}
	return printTable(w, []string{"TURN", "TIME", "IMAGE", "OUTCOME", "ACTION", "WINDOWS", "STORY"}, rows)
}
