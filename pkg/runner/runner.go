package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"watchgraph/internal/fetchpool"
	"watchgraph/pkg/auth"
	"watchgraph/pkg/collector"
	"watchgraph/pkg/config"
	"watchgraph/pkg/furaffinity"
	"watchgraph/pkg/graph"
	"watchgraph/pkg/logger"
	"watchgraph/pkg/report"
	"watchgraph/pkg/store"
	"watchgraph/pkg/ui"
	"watchgraph/pkg/watchlist"
)

// ErrInterrupted is returned when a run was cancelled and its partial
// results were flushed
var ErrInterrupted = errors.New("run interrupted")

// Summary describes a finished or interrupted run
type Summary struct {
	Users       int
	Completed   int
	Failed      []string
	Abandoned   int
	Pairs       int
	Interrupted bool
	Duration    time.Duration
	// Journaled is the number of users in the journal, when one is open
	Journaled int

	ResultsFile   string
	WatchedByFile string
	EdgesFile     string
	LabelsFile    string
}

// Options overrides the runner's collaborators
type Options struct {
	// Fetcher defaults to a FurAffinity API client built from the config
	Fetcher  fetchpool.Fetcher
	Logger   logger.Logger
	Terminal *ui.Terminal
}

// Runner executes collect, aggregate and report for one batch of usernames
type Runner struct {
	cfg      *config.Config
	fetcher  fetchpool.Fetcher
	snapshot *store.Snapshot
	journal  *store.Journal
	writer   *report.Writer
	logger   logger.Logger
	term     *ui.Terminal

	mu       sync.Mutex
	progress *ui.Progress
}

// New wires a runner from cfg. Close releases the journal, if any.
func New(cfg *config.Config, opts Options) (*Runner, error) {
	log := opts.Logger
	if log == nil {
		log = logger.GetLogger()
	}
	term := opts.Terminal
	if term == nil {
		term = ui.Default()
	}

	r := &Runner{
		cfg: cfg,
		snapshot: store.NewSnapshot(
			cfg.Output.Path(cfg.Output.ResultsFile),
			cfg.Output.Path(cfg.Output.WatchedByFile),
			log,
		),
		writer: report.NewWriter(
			cfg.Output.Path(cfg.Output.EdgesFile),
			cfg.Output.Path(cfg.Output.LabelsFile),
			cfg.Output.AppendEdges,
			log,
		),
		logger: log,
		term:   term,
	}

	r.fetcher = opts.Fetcher
	if r.fetcher == nil {
		r.fetcher = furaffinity.NewClientFromConfig(cfg, log, r.pageFetched)
	}

	if cfg.Output.Journal != "" {
		journal, err := store.OpenJournal(cfg.Output.Path(cfg.Output.Journal), log)
		if err != nil {
			return nil, err
		}
		r.journal = journal
	}

	return r, nil
}

// Close releases resources held by the runner
func (r *Runner) Close() error {
	if r.journal != nil {
		return r.journal.Close()
	}
	return nil
}

// Snapshot returns the results file writer
func (r *Runner) Snapshot() *store.Snapshot {
	return r.snapshot
}

func (r *Runner) pageFetched(username string, page furaffinity.Page) {
	r.mu.Lock()
	p := r.progress
	r.mu.Unlock()
	if p != nil {
		p.PageFetched(username, page.Number, len(page.Entries))
	}
}

func (r *Runner) newSummary(users int) *Summary {
	return &Summary{
		Users:         users,
		ResultsFile:   r.snapshot.Path(),
		WatchedByFile: r.snapshot.WatchedByPath(),
		EdgesFile:     r.writer.EdgesPath(),
		LabelsFile:    r.writer.LabelsPath(),
	}
}

// Run collects every user's watchlist, then writes the edge and label tables.
// When ctx is cancelled mid-collection both JSON files are flushed with what
// was collected and ErrInterrupted is returned.
func (r *Runner) Run(ctx context.Context, usernames []string, cookies *auth.CookieSet) (*Summary, error) {
	start := time.Now()
	usernames = config.UniqueUsernames(usernames)
	summary := r.newSummary(len(usernames))

	progress := ui.NewProgress(r.term, len(usernames), r.cfg.Logging.Level == "debug")
	r.mu.Lock()
	r.progress = progress
	r.mu.Unlock()

	recorders := []collector.Recorder{r.snapshot}
	if r.journal != nil {
		recorders = append(recorders, r.journal)
	}

	c := collector.New(r.fetcher, collector.Options{
		Workers:   r.cfg.Collector.WorkerCount(),
		StartPage: r.cfg.Collector.StartPage,
		Recorders: recorders,
		Logger:    r.logger,
		OnUser:    progress.UserCompleted,
	})

	outcome, err := c.Collect(ctx, usernames, cookies)
	summary.Completed = outcome.Results.Len()
	summary.Abandoned = outcome.Abandoned
	for _, f := range outcome.Failures {
		summary.Failed = append(summary.Failed, f.Username)
	}

	if err != nil {
		summary.Duration = time.Since(start)
		if ctx.Err() == nil {
			return summary, err
		}

		summary.Interrupted = true
		if flushErr := r.Flush(outcome.Results); flushErr != nil {
			return summary, fmt.Errorf("%w: %w", ErrInterrupted, flushErr)
		}
		return summary, ErrInterrupted
	}

	// a failed per-user write is only logged, so the file is rewritten
	// before labels are read back from it
	if err := r.snapshot.Save(outcome.Results); err != nil {
		summary.Duration = time.Since(start)
		return summary, fmt.Errorf("failed to save results: %w", err)
	}

	counts := graph.Aggregate(usernames, outcome.Results)
	summary.Pairs = counts.Len()

	if err := r.writeReport(counts); err != nil {
		summary.Duration = time.Since(start)
		return summary, err
	}

	summary.Duration = time.Since(start)
	progress.PrintSummary()

	fields := map[string]interface{}{
		"users":     summary.Users,
		"completed": summary.Completed,
		"failed":    len(summary.Failed),
		"pairs":     summary.Pairs,
		"duration":  summary.Duration,
	}
	if r.journal != nil {
		n, err := r.journal.Count(ctx)
		if err != nil {
			return summary, fmt.Errorf("failed to count journal entries: %w", err)
		}
		summary.Journaled = n
		fields["journaled"] = n
	}
	r.logger.InfoWithFields("Run finished", fields)
	return summary, nil
}

// Flush writes results and an empty watched-by map to their JSON files
func (r *Runner) Flush(results *watchlist.ResultMap) error {
	if err := r.snapshot.Flush(results, watchlist.NewResultMap()); err != nil {
		return fmt.Errorf("failed to flush results: %w", err)
	}
	return nil
}

// Report rebuilds the edge and label tables from the saved results file
// without fetching. With no usernames, the file's own key order is used.
func (r *Runner) Report(ctx context.Context, usernames []string) (*Summary, error) {
	start := time.Now()

	results, source, err := r.savedResults(ctx)
	if err != nil {
		return nil, err
	}

	usernames = config.UniqueUsernames(usernames)
	if len(usernames) == 0 {
		usernames = results.Usernames()
	}
	for _, name := range usernames {
		if !results.Has(name) {
			r.logger.WarnWithFields("User has no saved watchlist", map[string]interface{}{
				"username": name,
				"source":   source,
			})
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	summary := r.newSummary(len(usernames))
	summary.Completed = results.Len()

	counts := graph.Aggregate(usernames, results)
	summary.Pairs = counts.Len()
	if err := r.writeReport(counts); err != nil {
		return summary, err
	}

	summary.Duration = time.Since(start)
	r.logger.InfoWithFields("Report rebuilt", map[string]interface{}{
		"users":    summary.Users,
		"pairs":    summary.Pairs,
		"source":   source,
		"duration": summary.Duration,
	})
	return summary, nil
}

// savedResults loads the results file, or the journal when the file is
// missing and a journal is open. In the journal case the results file is
// rewritten from it so labels can be read back.
func (r *Runner) savedResults(ctx context.Context) (*watchlist.ResultMap, string, error) {
	if r.snapshot.Exists() || r.journal == nil {
		results, err := r.snapshot.Load()
		return results, r.snapshot.Path(), err
	}

	results, err := r.journal.Load(ctx)
	if err != nil {
		return nil, "", err
	}
	if err := r.snapshot.Save(results); err != nil {
		return nil, "", fmt.Errorf("failed to restore results from journal: %w", err)
	}
	return results, r.journal.Path(), nil
}

// writeReport appends the edges and rebuilds labels from the results file
func (r *Runner) writeReport(counts *graph.SharedCounts) error {
	if err := r.writer.WriteEdges(counts); err != nil {
		return fmt.Errorf("failed to write edges: %w", err)
	}
	if err := r.writer.LabelsFromSnapshot(r.snapshot.Path()); err != nil {
		return fmt.Errorf("failed to write labels: %w", err)
	}
	return nil
}
