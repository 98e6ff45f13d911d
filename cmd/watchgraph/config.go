package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
	"watchgraph/pkg/auth"
	"watchgraph/pkg/config"
	"watchgraph/pkg/ui"
)

var forceInit bool

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration files",
	Long: `Manage watchgraph configuration files.

Configuration is loaded from, highest priority first:
  - Command line flags
  - Environment variables (WATCHGRAPH_*)
  - .env and ~/.watchgraph.env files
  - Configuration file
  - Default values`,
}

// initCmd represents the config init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a configuration file with the default values",
	Long: `Write the default configuration to .watchgraph.yaml, or to the path given
with --config.`,
	Args: cobra.NoArgs,
	RunE: runConfigInit,
}

// showCmd represents the config show command
var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Long: `Show the configuration after merging every source. Cookie values are
masked.`,
	Args: cobra.NoArgs,
	RunE: runConfigShow,
}

// validateCmd represents the config validate command
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the effective configuration",
	Args:  cobra.NoArgs,
	RunE:  runConfigValidate,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(initCmd)
	configCmd.AddCommand(showCmd)
	configCmd.AddCommand(validateCmd)

	initCmd.Flags().BoolVar(&forceInit, "force", false, "overwrite an existing file")
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	configPath := configFile
	if configPath == "" {
		configPath = ".watchgraph.yaml"
	}

	if _, err := os.Stat(configPath); err == nil && !forceInit {
		return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", configPath)
	}

	cfg := config.DefaultConfig()
	cfg.Users.Names = []string{"alice", "bob"}
	for _, name := range auth.DefaultCookieNames {
		cfg.Auth.Cookies = append(cfg.Auth.Cookies, config.CookieConfig{Name: name})
	}

	if err := cfg.Save(configPath); err != nil {
		return err
	}

	ui.PrintSuccess("Configuration file created: " + configPath)
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "\nNext steps:")
	fmt.Fprintln(out, "1. Put your usernames under users.names, or point users.file at a list")
	fmt.Fprintln(out, "2. Store cookies with 'watchgraph auth login' or fill in auth.cookies")
	fmt.Fprintln(out, "3. Run 'watchgraph collect'")
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(nil)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	display := *cfg
	display.Auth.Cookies = nil
	masked := auth.SanitizeProfile(&auth.Profile{Cookies: auth.FromConfig(cfg.Auth.Cookies)})
	for _, ck := range masked.Cookies.List() {
		display.Auth.Cookies = append(display.Auth.Cookies, config.CookieConfig{Name: ck.Name, Value: ck.Value})
	}

	data, err := yaml.Marshal(&display)
	if err != nil {
		return fmt.Errorf("failed to format configuration: %w", err)
	}

	ui.PrintHighlight("Current Configuration")
	fmt.Fprint(cmd.OutOrStdout(), string(data))
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(nil)
	if err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	usernames, err := cfg.ResolveUsernames()
	if err != nil {
		return err
	}
	if len(usernames) == 0 {
		ui.PrintWarning("No usernames configured")
	}

	ui.PrintSuccess("Configuration is valid")
	ui.PrintInfo("Users", strconv.Itoa(len(usernames)))
	ui.PrintInfo("Workers", strconv.Itoa(cfg.Collector.WorkerCount()))
	ui.PrintInfo("Output directory", cfg.Output.Directory)
	ui.PrintInfo("Rate limit", fmt.Sprintf("%d requests/minute", cfg.RateLimit.RequestsPerMinute))
	ui.PrintInfo("Max retries", strconv.Itoa(cfg.Retry.MaxAttempts))
	ui.PrintInfo("Log level", cfg.Logging.Level)
	return nil
}
