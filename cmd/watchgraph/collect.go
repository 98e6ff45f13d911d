package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"watchgraph/internal/signals"
	"watchgraph/pkg/auth"
	"watchgraph/pkg/config"
	"watchgraph/pkg/logger"
	"watchgraph/pkg/runner"
	"watchgraph/pkg/ui"
)

var (
	// Collect command flags
	usersFlag   []string
	usersFile   string
	workers     int
	outputDir   string
	profileName string
	maxPages    int
	rateLimit   int
	journalPath string
	freshEdges  bool
	cookieFlag  string
)

// collectCmd represents the collect command
var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Fetch watchlists and write the shared-watcher graph",
	Long: `Fetch the watchlist of every user, then write:

  watchlist_to_results.json  every user's watchlist, rewritten after each user
  edges.csv                  usernameA,usernameB,shared count (appended)
  labels.csv                 Id,Total Watchlist Count

Cookies are taken from --cookies, then the stored profile (see 'watchgraph
auth login') or WATCHGRAPH_COOKIES, then the config file. Without any, the
cookie names b, a and sz are sent with empty values.

On Ctrl+C the users collected so far are written to watchlist_to_results.json
together with an empty watchlist_by_results.json, and the command exits 0.`,
	Example: `  # Two users, default settings
  watchgraph collect --users alice,bob

  # Users from a file, 8 workers, results in ./out
  watchgraph collect --users-file users.txt --workers 8 --output ./out

  # Use a stored cookie profile and start a fresh edges.csv
  watchgraph collect --users-file users.txt --profile main --fresh-edges`,
	Args: cobra.NoArgs,
	RunE: runCollect,
}

func init() {
	rootCmd.AddCommand(collectCmd)

	for _, cmd := range []*cobra.Command{collectCmd, rootCmd} {
		addCollectFlags(cmd)
	}
}

func addCollectFlags(cmd *cobra.Command) {
	cmd.Flags().StringSliceVarP(&usersFlag, "users", "u", nil, "comma separated usernames")
	cmd.Flags().StringVarP(&usersFile, "users-file", "f", "", "file with one username per line")
	cmd.Flags().IntVarP(&workers, "workers", "w", 0, "number of concurrent users (default min(32, CPUs+4))")
	cmd.Flags().StringVarP(&outputDir, "output", "o", "", "output directory (default: current directory)")
	cmd.Flags().StringVarP(&profileName, "profile", "p", "", "stored cookie profile to use")
	cmd.Flags().StringVar(&cookieFlag, "cookies", "", "cookies as name=value;name=value")
	cmd.Flags().IntVar(&maxPages, "max-pages", 0, "maximum pages per user, 0 for no limit")
	cmd.Flags().IntVar(&rateLimit, "rate-limit", 0, "requests per minute, 0 for no limit")
	cmd.Flags().StringVar(&journalPath, "journal", "", "SQLite file recording each completed user")
	cmd.Flags().BoolVar(&freshEdges, "fresh-edges", false, "truncate edges.csv instead of appending")
}

// collectFlags maps the collect flags onto config keys
func collectFlags() map[string]interface{} {
	return map[string]interface{}{
		"users":               usersFlag,
		"users-file":          usersFile,
		"workers":             workers,
		"output":              outputDir,
		"profile":             profileName,
		"max-pages":           maxPages,
		"requests-per-minute": rateLimit,
		"journal":             journalPath,
		"fresh-edges":         freshEdges,
	}
}

func runCollect(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(collectFlags())
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	logger.WithField("version", version).Info("watchgraph starting")

	usernames, err := cfg.ResolveUsernames()
	if err != nil {
		return err
	}
	if len(usernames) == 0 {
		return errors.New("no usernames given; use --users, --users-file or users.names in the config file")
	}

	var profiles profileSource
	if manager, err := auth.NewManager(); err != nil {
		logger.WithError(err).Warn("Credential manager unavailable")
	} else {
		profiles = manager
	}

	cookies, source, err := resolveCookies(cfg, cookieFlag, cmd.Flags().Changed("profile"), profiles)
	if err != nil {
		return err
	}

	ui.PrintInfo("Users", strconv.Itoa(len(usernames)))
	ui.PrintInfo("Workers", strconv.Itoa(min(cfg.Collector.WorkerCount(), len(usernames))))
	ui.PrintInfo("Cookies", fmt.Sprintf("%s (%s)", source, cookies))
	ui.PrintInfo("Output", cfg.Output.Directory)

	ctx, stop := signals.SetupSignalHandlerWithCallback(context.Background(), func(sig os.Signal) {
		logger.WithField("signal", sig.String()).Warn("Shutdown signal received")
		ui.PrintWarning("Interrupted, saving collected results")
	})
	defer stop()

	r, err := runner.New(cfg, runner.Options{Logger: logger.GetLogger(), Terminal: ui.Default()})
	if err != nil {
		return err
	}
	defer r.Close()

	ui.PrintHighlight("[COLLECTING WATCHLISTS]")
	summary, err := r.Run(ctx, usernames, cookies)
	if err != nil {
		return interruptResult(summary, err)
	}

	if len(summary.Failed) > 0 {
		ui.PrintWarning("Users that could not be fetched", fmt.Sprintf("%v", summary.Failed))
	}
	ui.PrintSuccess(fmt.Sprintf("Wrote %d edges to %s and %d labels to %s",
		summary.Pairs, summary.EdgesFile, summary.Completed, summary.LabelsFile))
	return nil
}

// profileSource looks up a stored cookie profile
type profileSource interface {
	Retrieve(name string) (*auth.Profile, error)
}

// resolveCookies picks the cookies for a run: the inline flag, then the
// configured profile, then the config file, then the default names. A
// profile named explicitly on the command line must exist.
func resolveCookies(cfg *config.Config, inline string, explicitProfile bool, profiles profileSource) (*auth.CookieSet, string, error) {
	if inline != "" {
		cookies, err := auth.ParseCookies(inline)
		if err != nil {
			return nil, "", err
		}
		if cookies.Len() > 0 {
			return cookies, "command line", nil
		}
	}

	if name := cfg.Auth.Profile; name != "" && profiles != nil {
		profile, err := profiles.Retrieve(name)
		switch {
		case err == nil && profile != nil && profile.Cookies.Len() > 0:
			return profile.Cookies, "profile " + profile.Name, nil
		case explicitProfile:
			return nil, "", fmt.Errorf("cookie profile %q: %w", name, auth.ErrCredentialsNotFound)
		}
	} else if explicitProfile {
		return nil, "", fmt.Errorf("cookie profile %q: credential store unavailable", cfg.Auth.Profile)
	}

	if len(cfg.Auth.Cookies) > 0 {
		return auth.FromConfig(cfg.Auth.Cookies), "configuration", nil
	}

	return auth.DefaultCookies(), "defaults", nil
}

// interruptResult reports the end of a run that returned err. An interrupt
// whose results were saved is not an error.
func interruptResult(summary *runner.Summary, err error) error {
	switch {
	case errors.Is(err, runner.ErrInterrupted) && err != runner.ErrInterrupted:
		logger.WithError(err).Error("Failed to save results after interrupt")
		return err
	case errors.Is(err, runner.ErrInterrupted):
		ui.PrintSuccess(fmt.Sprintf("Saved %d of %d users to %s and %s",
			summary.Completed, summary.Users, summary.ResultsFile, summary.WatchedByFile))
		return nil
	default:
		logger.WithError(err).Error("Run failed")
		return err
	}
}
