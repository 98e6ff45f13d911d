package fetchpool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"watchgraph/pkg/auth"
	"watchgraph/pkg/logger"
	"watchgraph/pkg/watchlist"
)

type mockFetcher struct {
	mu       sync.Mutex
	calls    map[string]int
	delay    time.Duration
	failFor  map[string]error
	active   int32
	maxSeen  int32
	blocking bool
}

func newMockFetcher() *mockFetcher {
	return &mockFetcher{calls: make(map[string]int), failFor: make(map[string]error)}
}

func (m *mockFetcher) FetchWatchlist(ctx context.Context, username string, cookies *auth.CookieSet, startPage int) (watchlist.Watchlist, int, error) {
	n := atomic.AddInt32(&m.active, 1)
	defer atomic.AddInt32(&m.active, -1)
	for {
		seen := atomic.LoadInt32(&m.maxSeen)
		if n <= seen || atomic.CompareAndSwapInt32(&m.maxSeen, seen, n) {
			break
		}
	}

	m.mu.Lock()
	m.calls[username]++
	err := m.failFor[username]
	m.mu.Unlock()

	if m.blocking {
		<-ctx.Done()
		return nil, startPage, ctx.Err()
	}
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return nil, startPage, ctx.Err()
		}
	}
	if err != nil {
		return nil, startPage, err
	}
	return watchlist.Watchlist{{Name: username + "-friend"}}, startPage + 1, nil
}

func runAll(t *testing.T, wp *WorkerPool, names []string) []FetchResult {
	t.Helper()
	wp.Start()
	go func() {
		for _, n := range names {
			if err := wp.Submit(FetchJob{Username: n, StartPage: 1}); err != nil {
				break
			}
		}
		wp.Stop()
	}()

	var results []FetchResult
	for r := range wp.Results() {
		results = append(results, r)
	}
	return results
}

func TestWorkerPoolProcessesEveryJob(t *testing.T) {
	fetcher := newMockFetcher()
	wp := NewWorkerPool(context.Background(), 3, fetcher, logger.NewNopLogger())

	names := []string{"a", "b", "c", "d", "e", "f", "g"}
	results := runAll(t, wp, names)

	require.Len(t, results, len(names))
	seen := make(map[string]bool)
	for _, r := range results {
		require.NoError(t, r.Err)
		assert.Equal(t, 2, r.LastPage)
		assert.Equal(t, r.Job.Username+"-friend", r.Entries[0].Name)
		seen[r.Job.Username] = true
	}
	assert.Len(t, seen, len(names))
	for _, n := range names {
		assert.Equal(t, 1, fetcher.calls[n])
	}
}

func TestWorkerPoolReportsErrors(t *testing.T) {
	fetcher := newMockFetcher()
	fetcher.failFor["bad"] = errors.New("parse failure")
	tl := logger.NewTestLogger()
	wp := NewWorkerPool(context.Background(), 2, fetcher, tl)

	results := runAll(t, wp, []string{"good", "bad"})
	require.Len(t, results, 2)

	var failed []string
	for _, r := range results {
		if r.Err != nil {
			failed = append(failed, r.Job.Username)
		}
	}
	assert.Equal(t, []string{"bad"}, failed)
	assert.True(t, tl.HasMessage("Worker failed to fetch watchlist"))
}

func TestWorkerPoolBoundsConcurrency(t *testing.T) {
	fetcher := newMockFetcher()
	fetcher.delay = 20 * time.Millisecond
	wp := NewWorkerPool(context.Background(), 4, fetcher, logger.NewNopLogger())

	names := make([]string, 20)
	for i := range names {
		names[i] = string(rune('a' + i))
	}
	results := runAll(t, wp, names)

	assert.Len(t, results, 20)
	assert.LessOrEqual(t, atomic.LoadInt32(&fetcher.maxSeen), int32(4))
	assert.Greater(t, atomic.LoadInt32(&fetcher.maxSeen), int32(1))
	assert.Equal(t, 4, wp.Size())
}

func TestWorkerPoolCancelAbandonsInFlight(t *testing.T) {
	fetcher := newMockFetcher()
	fetcher.blocking = true

	ctx, cancel := context.WithCancel(context.Background())
	wp := NewWorkerPool(ctx, 2, fetcher, logger.NewNopLogger())

	done := make(chan []FetchResult)
	go func() { done <- runAll(t, wp, []string{"a", "b", "c", "d", "e"}) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case results := <-done:
		for _, r := range results {
			assert.ErrorIs(t, r.Err, context.Canceled)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("pool did not stop after cancellation")
	}

	assert.Error(t, wp.Submit(FetchJob{Username: "late"}))
}

func TestNewWorkerPoolClampsSize(t *testing.T) {
	wp := NewWorkerPool(context.Background(), 0, newMockFetcher(), logger.NewNopLogger())
	assert.Equal(t, 1, wp.Size())
	wp.Start()
	wp.Stop()
}
