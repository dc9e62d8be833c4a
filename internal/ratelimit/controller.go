// Package ratelimit paces outbound requests with an adaptive delay that
// backs off exponentially on failures and decays back on successes.
package ratelimit

import (
	"context"
	"log/slog"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/IshaanNene/CommentGoat/internal/config"
)

// Controller enforces a minimum, adaptive spacing between request starts.
// A single Controller is meant to be shared by every fetch tier of a job.
type Controller struct {
	initial time.Duration
	max     time.Duration
	factor  float64
	jitter  float64

	// token serializes Wait callers; acquiring it honours ctx.
	token chan struct{}

	mu                sync.Mutex
	lastRequest       time.Time
	current           time.Duration
	consecutiveErrors int

	now    func() time.Time
	random func() float64
	logger *slog.Logger
}

// New creates a Controller from configuration.
func New(cfg config.RateLimitConfig, logger *slog.Logger) *Controller {
	factor := cfg.Factor
	if factor < 1 {
		factor = 1
	}
	maxDelay := cfg.MaxDelay
	if maxDelay < cfg.InitialDelay {
		maxDelay = cfg.InitialDelay
	}
	return &Controller{
		initial: cfg.InitialDelay,
		max:     maxDelay,
		factor:  factor,
		jitter:  cfg.Jitter,
		token:   make(chan struct{}, 1),
		current: cfg.InitialDelay,
		now:     time.Now,
		random:  rand.Float64,
		logger:  logger.With("component", "rate_controller"),
	}
}

// Wait blocks until the current delay has elapsed since the previous
// request start, then records a new request start. The first call never
// waits. If ctx ends first, ctx.Err() is returned and nothing is recorded.
func (c *Controller) Wait(ctx context.Context) error {
	select {
	case c.token <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-c.token }()

	wait := c.pending()
	if wait > 0 {
		c.logger.Debug("rate limiting", "wait", wait)
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}

	c.mu.Lock()
	c.lastRequest = c.now()
	c.mu.Unlock()
	return nil
}

// pending returns the jittered time still to wait before the next request.
func (c *Controller) pending() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.lastRequest.IsZero() {
		return 0
	}
	elapsed := c.now().Sub(c.lastRequest)
	if elapsed >= c.current {
		return 0
	}
	remaining := c.current - elapsed
	// Jitter in [-jitter, +jitter] of the remaining wait.
	offset := (c.random()*2 - 1) * c.jitter * float64(remaining)
	wait := remaining + time.Duration(offset)
	if wait < 0 {
		return 0
	}
	return wait
}

// OnFailure grows the delay by the backoff factor, capped at the maximum.
func (c *Controller) OnFailure() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.consecutiveErrors++
	next := time.Duration(math.Min(float64(c.current)*c.factor, float64(c.max)))
	c.current = next
	c.logger.Debug("backing off", "delay", c.current, "consecutive_errors", c.consecutiveErrors)
}

// OnSuccess resets the error streak and decays the delay toward the initial value.
func (c *Controller) OnSuccess() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.consecutiveErrors = 0
	next := time.Duration(math.Max(float64(c.current)/c.factor, float64(c.initial)))
	c.current = next
}

// CurrentDelay returns the delay currently enforced between requests.
func (c *Controller) CurrentDelay() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// ConsecutiveErrors returns the number of failures since the last success.
func (c *Controller) ConsecutiveErrors() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.consecutiveErrors
}
