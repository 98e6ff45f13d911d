package collector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"watchgraph/internal/fetchpool"
	"watchgraph/pkg/auth"
	"watchgraph/pkg/logger"
	"watchgraph/pkg/watchlist"
)

// Recorder is notified after each completed user, once the user's list is in
// results
type Recorder interface {
	Record(username string, list watchlist.Watchlist, results *watchlist.ResultMap) error
}

// Resetter is implemented by recorders that clear their state when a run starts
type Resetter interface {
	Reset() error
}

// UserFunc is called once per finished user, with err set for failures
type UserFunc func(username string, entries int, err error)

// Options configures a Collector
type Options struct {
	// Workers is the pool size; it is clamped to the number of usernames
	Workers   int
	StartPage int
	Recorders []Recorder
	Logger    logger.Logger
	OnUser    UserFunc
}

// Failure is a user whose watchlist could not be collected
type Failure struct {
	Username string
	Err      error
}

// Outcome is what one collection run produced
type Outcome struct {
	Results   *watchlist.ResultMap
	Failures  []Failure
	Abandoned int
	Duration  time.Duration
}

// Collector fetches every user's watchlist on a bounded worker pool and merges
// the results in completion order
type Collector struct {
	fetcher   fetchpool.Fetcher
	workers   int
	startPage int
	recorders []Recorder
	logger    logger.Logger
	onUser    UserFunc
}

// New creates a collector over fetcher
func New(fetcher fetchpool.Fetcher, opts Options) *Collector {
	log := opts.Logger
	if log == nil {
		log = logger.GetLogger()
	}
	startPage := opts.StartPage
	if startPage < 1 {
		startPage = 1
	}
	return &Collector{
		fetcher:   fetcher,
		workers:   opts.Workers,
		startPage: startPage,
		recorders: opts.Recorders,
		logger:    log,
		onUser:    opts.OnUser,
	}
}

// CollectAll returns the watchlist of every username that could be fetched.
// If ctx is cancelled it returns the users completed so far with ctx's error.
func (c *Collector) CollectAll(ctx context.Context, usernames []string, cookies *auth.CookieSet) (*watchlist.ResultMap, error) {
	outcome, err := c.Collect(ctx, usernames, cookies)
	return outcome.Results, err
}

// Collect is CollectAll with failure and timing detail
func (c *Collector) Collect(ctx context.Context, usernames []string, cookies *auth.CookieSet) (*Outcome, error) {
	start := time.Now()
	results := watchlist.NewResultMap()
	outcome := &Outcome{Results: results}

	if err := c.reset(); err != nil {
		outcome.Duration = time.Since(start)
		return outcome, err
	}

	if len(usernames) == 0 {
		c.logger.Warn("No usernames to collect")
		outcome.Duration = time.Since(start)
		return outcome, ctx.Err()
	}

	workers := c.workers
	if workers < 1 {
		workers = 1
	}
	if workers > len(usernames) {
		workers = len(usernames)
	}

	pool := fetchpool.NewWorkerPool(ctx, workers, c.fetcher, c.logger)
	c.logger.InfoWithFields("Starting collection", map[string]interface{}{
		"users":   len(usernames),
		"workers": pool.Size(),
	})
	pool.Start()

	submitted := make(chan int, 1)
	go func() {
		n := 0
		for _, username := range usernames {
			job := fetchpool.FetchJob{Username: username, Cookies: cookies, StartPage: c.startPage}
			if err := pool.Submit(job); err != nil {
				break
			}
			n++
		}
		pool.Stop()
		submitted <- n
	}()

	received := 0
	for result := range pool.Results() {
		received++
		c.handle(ctx, result, outcome)
	}
	n := <-submitted

	outcome.Abandoned = len(usernames) - results.Len() - len(outcome.Failures)
	outcome.Duration = time.Since(start)

	fields := map[string]interface{}{
		"users":     len(usernames),
		"completed": results.Len(),
		"failed":    len(outcome.Failures),
		"submitted": n,
		"received":  received,
		"duration":  outcome.Duration,
	}

	if err := ctx.Err(); err != nil {
		fields["abandoned"] = outcome.Abandoned
		c.logger.WarnWithFields("Collection interrupted", fields)
		return outcome, err
	}

	c.logger.InfoWithFields("Collection finished", fields)
	return outcome, nil
}

// handle merges one finished job. It runs on the single consuming goroutine.
func (c *Collector) handle(ctx context.Context, result fetchpool.FetchResult, outcome *Outcome) {
	username := result.Job.Username

	if result.Err != nil {
		if ctx.Err() != nil && errors.Is(result.Err, ctx.Err()) {
			c.logger.DebugWithFields("Fetch abandoned", map[string]interface{}{
				"username": username,
			})
			return
		}

		outcome.Failures = append(outcome.Failures, Failure{Username: username, Err: result.Err})
		c.logger.ErrorWithFields("Failed to collect watchlist", map[string]interface{}{
			"username": username,
			"error":    result.Err.Error(),
		})
		if c.onUser != nil {
			c.onUser(username, 0, result.Err)
		}
		return
	}

	outcome.Results.Set(username, result.Entries)
	logger.LogUserCompleted(c.logger, username, len(result.Entries), result.LastPage, result.Duration)

	for _, r := range c.recorders {
		if err := r.Record(username, result.Entries, outcome.Results); err != nil {
			c.logger.ErrorWithFields("Failed to record completed user", map[string]interface{}{
				"username": username,
				"error":    err.Error(),
			})
		}
	}

	if c.onUser != nil {
		c.onUser(username, len(result.Entries), nil)
	}
}

func (c *Collector) reset() error {
	for _, r := range c.recorders {
		if rs, ok := r.(Resetter); ok {
			if err := rs.Reset(); err != nil {
				return fmt.Errorf("failed to reset recorder: %w", err)
			}
		}
	}
	return nil
}
