package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
	"watchgraph/pkg/config"
)

// Limiter paces outgoing requests shared by every worker
type Limiter interface {
	// Allow reports whether a request may proceed right now
	Allow() bool
	// Wait blocks until a request may proceed or ctx is done
	Wait(ctx context.Context) error
}

// Throttler is implemented by limiters that slow down when the server pushes back
type Throttler interface {
	Throttle()
}

// New returns a limiter for the configured rate, or an unlimited one when
// requests_per_minute is zero
func New(cfg config.RateLimitConfig) Limiter {
	if cfg.RequestsPerMinute <= 0 {
		return Unlimited{}
	}
	return NewTokenBucket(cfg.RequestsPerMinute, cfg.BurstSize)
}

// Unlimited never blocks
type Unlimited struct{}

func (Unlimited) Allow() bool { return true }

func (Unlimited) Wait(ctx context.Context) error { return ctx.Err() }

// TokenBucket paces requests with a token bucket and halves its rate on
// Throttle, never going below a tenth of the configured rate
type TokenBucket struct {
	mu    sync.Mutex
	lim   *rate.Limiter
	floor rate.Limit
}

// NewTokenBucket creates a limiter allowing perMinute requests with the given burst
func NewTokenBucket(perMinute, burst int) *TokenBucket {
	if burst <= 0 {
		burst = 1
	}
	base := rate.Every(time.Minute / time.Duration(perMinute))
	return &TokenBucket{
		lim:   rate.NewLimiter(base, burst),
		floor: base / 10,
	}
}

// Allow checks if a request can proceed
func (tb *TokenBucket) Allow() bool {
	return tb.lim.Allow()
}

// Wait blocks until a token is available
func (tb *TokenBucket) Wait(ctx context.Context) error {
	return tb.lim.Wait(ctx)
}

// Throttle halves the current rate
func (tb *TokenBucket) Throttle() {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	next := tb.lim.Limit() / 2
	if next < tb.floor {
		next = tb.floor
	}
	tb.lim.SetLimit(next)
}

// Limit returns the current rate in events per second
func (tb *TokenBucket) Limit() rate.Limit {
	return tb.lim.Limit()
}
