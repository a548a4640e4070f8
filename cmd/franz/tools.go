package main

import (
	"fmt"

	"github.com/hairizuan-noorazman/desktop-agent/toolcall"
	"github.com/spf13/cobra"
)

var flagToolsTable bool

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "Print the tool schema offered to the model",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := LoadConfig(configFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		spec := toolcall.DefaultSpec()
		if cfg.Tools.SpecFile != "" {
			if spec, err = toolcall.LoadSpec(cfg.Tools.SpecFile); err != nil {
				return err
			}
		}

		if !flagToolsTable {
			return printJSON(cmd.OutOrStdout(), spec.FunctionSchemas())
		}

		rows := make([][]string, 0, len(spec.Tools))
		for _, t := range spec.Tools {
			rows = append(rows, []string{t.Name, fmt.Sprint(len(t.Params)), truncate(t.Description, 70)})
		}
		return printTable(cmd.OutOrStdout(), []string{"NAME", "PARAMS", "DESCRIPTION"}, rows)
	},
}

func init() {
	toolsCmd.Flags().BoolVar(&flagToolsTable, "table", false, "print a summary table instead of JSON")
	rootCmd.AddCommand(toolsCmd)
}
