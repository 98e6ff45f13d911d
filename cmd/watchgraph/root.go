package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"
	"watchgraph/pkg/config"
	"watchgraph/pkg/logger"
	"watchgraph/pkg/ui"
)

var (
	// Version information
	version   = "1.0.0"
	gitCommit = "unknown"
	buildDate = "unknown"

	// Global flags
	configFile string
	logLevel   string
	noColor    bool
	quiet      bool
)

// rootCmd runs a collection when called without a subcommand
var rootCmd = &cobra.Command{
	Use:   "watchgraph",
	Short: "Build a shared-watcher graph from FurAffinity watchlists",
	Long: `watchgraph fetches the watchlist of every given user from the FurAffinity
API, counts how many accounts each pair of users both watch and writes the
result as edges.csv and labels.csv for graph tools such as Gephi.

Running watchgraph without a subcommand is the same as 'watchgraph collect'.
Press Ctrl+C at any time to stop; everything collected so far is saved to
watchlist_to_results.json.`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		ui.SetColor(!noColor)
		ui.SetDefault(ui.NewTerminal(os.Stdout, quiet))

		// logo only for the commands that run a collection
		if cmd.Parent() == nil || cmd.Name() == "collect" {
			ui.PrintLogo()
		}
	},
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCollect(cmd, args)
	},
}

// Execute runs the root command and exits non-zero on failure
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		ui.PrintError("Error", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default is ./.watchgraph.yaml or ~/.config/watchgraph/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress all output except errors")

	rootCmd.SetVersionTemplate(`watchgraph {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// loadConfig loads the configuration with the given command line overrides
// and initialises the global logger from it
func loadConfig(flags map[string]interface{}) (*config.Config, error) {
	if flags == nil {
		flags = make(map[string]interface{})
	}
	if logLevel != "" {
		flags["log-level"] = logLevel
	}

	cfg, err := config.Load(configFile, flags)
	if err != nil {
		return nil, err
	}

	if err := logger.Initialize(&cfg.Logging); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, nil
}
