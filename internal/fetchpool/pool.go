package fetchpool

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
	"watchgraph/pkg/auth"
	"watchgraph/pkg/logger"
	"watchgraph/pkg/watchlist"
)

// FetchJob asks for one user's complete watchlist
type FetchJob struct {
	Username  string
	Cookies   *auth.CookieSet
	StartPage int
}

// FetchResult represents the result of a fetch job
type FetchResult struct {
	Job      FetchJob
	Entries  watchlist.Watchlist
	LastPage int
	Err      error
	Duration time.Duration
}

// Fetcher fetches every page of one user's watchlist
type Fetcher interface {
	FetchWatchlist(ctx context.Context, username string, cookies *auth.CookieSet, startPage int) (watchlist.Watchlist, int, error)
}

// WorkerPool runs fetch jobs on a fixed number of workers and publishes
// results in completion order
type WorkerPool struct {
	numWorkers  int
	jobQueue    chan FetchJob
	resultQueue chan FetchResult
	group       errgroup.Group
	ctx         context.Context
	cancel      context.CancelFunc
	fetcher     Fetcher
	logger      logger.Logger
}

// NewWorkerPool creates a pool whose workers stop when parent is done
func NewWorkerPool(parent context.Context, numWorkers int, fetcher Fetcher, log logger.Logger) *WorkerPool {
	if numWorkers < 1 {
		numWorkers = 1
	}
	if log == nil {
		log = logger.GetLogger()
	}

	ctx, cancel := context.WithCancel(parent)
	return &WorkerPool{
		numWorkers:  numWorkers,
		jobQueue:    make(chan FetchJob, numWorkers*2),
		resultQueue: make(chan FetchResult, numWorkers),
		ctx:         ctx,
		cancel:      cancel,
		fetcher:     fetcher,
		logger:      log,
	}
}

// Start launches the workers
func (wp *WorkerPool) Start() {
	logger.LogComponentStart(wp.logger, "fetch_pool", map[string]interface{}{
		"num_workers": wp.numWorkers,
	})

	for i := 0; i < wp.numWorkers; i++ {
		id := i
		wp.group.Go(func() error {
			wp.worker(id)
			return nil
		})
	}
}

// Stop closes the job queue, waits for the workers and closes Results.
// Call it once, after the last Submit.
func (wp *WorkerPool) Stop() {
	close(wp.jobQueue)
	_ = wp.group.Wait()
	close(wp.resultQueue)

	reason := "drained"
	if wp.ctx.Err() != nil {
		reason = "cancelled"
	}
	wp.cancel()
	logger.LogComponentStop(wp.logger, "fetch_pool", reason)
}

// Submit queues a job, failing once the pool is cancelled
func (wp *WorkerPool) Submit(job FetchJob) error {
	select {
	case <-wp.ctx.Done():
		return fmt.Errorf("worker pool is shutting down: %w", wp.ctx.Err())
	default:
	}

	select {
	case wp.jobQueue <- job:
		wp.logger.DebugWithFields("Job submitted to queue", map[string]interface{}{
			"username": job.Username,
		})
		return nil
	case <-wp.ctx.Done():
		return fmt.Errorf("worker pool is shutting down: %w", wp.ctx.Err())
	}
}

// Results returns the channel of completed jobs
func (wp *WorkerPool) Results() <-chan FetchResult {
	return wp.resultQueue
}

// Size returns the number of workers
func (wp *WorkerPool) Size() int {
	return wp.numWorkers
}

func (wp *WorkerPool) worker(id int) {
	for job := range wp.jobQueue {
		if wp.ctx.Err() != nil {
			return
		}

		result := wp.processJob(job, id)

		select {
		case wp.resultQueue <- result:
		case <-wp.ctx.Done():
			return
		}
	}
}

func (wp *WorkerPool) processJob(job FetchJob, workerID int) FetchResult {
	start := time.Now()

	wp.logger.DebugWithFields("Worker processing job", map[string]interface{}{
		"worker_id": workerID,
		"username":  job.Username,
	})

	entries, lastPage, err := wp.fetcher.FetchWatchlist(wp.ctx, job.Username, job.Cookies, job.StartPage)
	result := FetchResult{
		Job:      job,
		Entries:  entries,
		LastPage: lastPage,
		Err:      err,
		Duration: time.Since(start),
	}

	if err != nil && wp.ctx.Err() == nil {
		wp.logger.ErrorWithFields("Worker failed to fetch watchlist", map[string]interface{}{
			"worker_id": workerID,
			"username":  job.Username,
			"error":     err.Error(),
			"duration":  result.Duration,
		})
	}

	return result
}
