package resource

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Config holds resource limits.
type Config struct {
	// MaxInFlight is the maximum number of concurrent calls.
	// If 0, defaults to 1.
	MaxInFlight int64

	// RequestsPerSecond is the sustained call rate.
	// If 0, unlimited.
	RequestsPerSecond float64

	// Burst is the number of calls allowed above the sustained rate.
	// If 0, defaults to 1 when a rate is set.
	Burst int
}

// Controller manages concurrency and rate for outbound calls.
type Controller struct {
	cfg Config

	inflight *semaphore.Weighted
	limiter  *rate.Limiter // nil if unlimited

	active atomic.Int64
}

// NewController creates a new resource controller.
func NewController(cfg Config) *Controller {
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = 1
	}

	c := &Controller{
		cfg:      cfg,
		inflight: semaphore.NewWeighted(cfg.MaxInFlight),
	}

	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	return c
}

// Acquire waits for an in-flight slot and for the rate limiter.
// The returned release function must be called exactly once.
// A nil Controller imposes no limits.
func (c *Controller) Acquire(ctx context.Context) (func(), error) {
	if c == nil {
		return func() {}, nil
	}

	if err := c.inflight.Acquire(ctx, 1); err != nil {
		return nil, err
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			c.inflight.Release(1)
			return nil, err
		}
	}

	c.active.Add(1)
	var released atomic.Bool
	return func() {
		if released.CompareAndSwap(false, true) {
			c.active.Add(-1)
			c.inflight.Release(1)
		}
	}, nil
}

// TryAcquire reserves a slot without blocking. It ignores the rate limit's
// wait and fails instead when no token is available.
func (c *Controller) TryAcquire() (func(), bool) {
	if c == nil {
		return func() {}, true
	}
	if !c.inflight.TryAcquire(1) {
		return nil, false
	}
	if c.limiter != nil && !c.limiter.Allow() {
		c.inflight.Release(1)
		return nil, false
	}

	c.active.Add(1)
	var released atomic.Bool
	return func() {
		if released.CompareAndSwap(false, true) {
			c.active.Add(-1)
			c.inflight.Release(1)
		}
	}, true
}

// InFlight returns the number of calls currently holding a slot.
func (c *Controller) InFlight() int64 {
	if c == nil {
		return 0
	}
	return c.active.Load()
}
