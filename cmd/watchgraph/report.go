package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"watchgraph/pkg/runner"
	"watchgraph/pkg/ui"
)

// reportCmd represents the report command
var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Rebuild edges.csv and labels.csv from saved results",
	Long: `Rebuild the edge and label tables from an existing
watchlist_to_results.json without fetching anything.

Pairs follow the order of --users / --users-file when given, otherwise the
order of the saved file.`,
	Example: `  # Rebuild from ./out/watchlist_to_results.json
  watchgraph report --output ./out --fresh-edges`,
	Args: cobra.NoArgs,
	RunE: runReport,
}

func init() {
	rootCmd.AddCommand(reportCmd)

	reportCmd.Flags().StringSliceVarP(&usersFlag, "users", "u", nil, "comma separated usernames")
	reportCmd.Flags().StringVarP(&usersFile, "users-file", "f", "", "file with one username per line")
	reportCmd.Flags().StringVarP(&outputDir, "output", "o", "", "output directory (default: current directory)")
	reportCmd.Flags().BoolVar(&freshEdges, "fresh-edges", false, "truncate edges.csv instead of appending")
}

func runReport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(map[string]interface{}{
		"users":       usersFlag,
		"users-file":  usersFile,
		"output":      outputDir,
		"fresh-edges": freshEdges,
	})
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	usernames, err := cfg.ResolveUsernames()
	if err != nil {
		return err
	}

	r, err := runner.New(cfg, runner.Options{Terminal: ui.Default()})
	if err != nil {
		return err
	}
	defer r.Close()

	ui.PrintInfo("Source", r.Snapshot().Path())
	summary, err := r.Report(context.Background(), usernames)
	if err != nil {
		return err
	}

	ui.PrintSuccess(fmt.Sprintf("Wrote %d edges to %s and %d labels to %s",
		summary.Pairs, summary.EdgesFile, summary.Completed, summary.LabelsFile))
	return nil
}
