// Package refresh re-runs a fetch on the delay the server asks for.
//
// There is only ever one pending timer. Scheduling again replaces it, and a run
// that finishes after it was superseded doesn't schedule anything.
package refresh

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
)

// Func does one refresh and reports how long to wait before the next.
type Func func(ctx context.Context) (time.Duration, error)

// Config tunes the controller. Zero fields fall back to defaults.
type Config struct {
	// Bounds a single run so a hung request can't stop the cycle.
	Timeout time.Duration
	// Used when the server doesn't say when to come back.
	DefaultInterval time.Duration
	// Backoff after failed runs grows from MinBackoff up to MaxBackoff.
	MinBackoff time.Duration
	MaxBackoff time.Duration
}

func (c Config) withDefaults() Config {
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
	if c.DefaultInterval == 0 {
		c.DefaultInterval = 5 * time.Minute
	}
	if c.MinBackoff == 0 {
		c.MinBackoff = 2 * time.Second
	}
	if c.MaxBackoff == 0 {
		c.MaxBackoff = 5 * time.Minute
	}
	return c
}

// Controller owns the single refresh timer.
type Controller struct {
	fn  Func
	cfg Config

	mu       sync.Mutex
	ctx      context.Context
	timer    *time.Timer
	gen      uint64 // Bumped on every schedule and on cancel
	backoff  retry.Backoff
	stopped  bool
	failures int
	delay    time.Duration // Last delay scheduled
	due      time.Time
}

func New(fn Func, cfg Config) *Controller {
	cfg = cfg.withDefaults()
	return &Controller{
		fn:      fn,
		cfg:     cfg,
		ctx:     context.Background(),
		backoff: newBackoff(cfg),
	}
}

func newBackoff(cfg Config) retry.Backoff {
	return retry.WithCappedDuration(cfg.MaxBackoff, retry.NewFibonacci(cfg.MinBackoff))
}

// Start runs the first refresh right away and keeps going until ctx is done or
// Cancel is called.
func (c *Controller) Start(ctx context.Context) {
	c.mu.Lock()
	c.ctx = ctx
	c.mu.Unlock()

	go func() {
		<-ctx.Done()
		c.Cancel()
	}()

	c.ScheduleNext(0)
}

// ScheduleNext replaces whatever is pending with a run after d.
func (c *Controller) ScheduleNext(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.scheduleLocked(d)
}

func (c *Controller) scheduleLocked(d time.Duration) {
	if c.stopped {
		return
	}
	if c.timer != nil {
		c.timer.Stop()
	}

	c.gen++
	gen := c.gen
	c.delay = d
	c.due = time.Now().Add(d)
	c.timer = time.AfterFunc(d, func() { c.fire(gen) })

	slog.Debug("refresh scheduled", "in", d, "generation", gen)
}

// Cancel stops the pending timer for good; runs already going won't reschedule.
func (c *Controller) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return
	}
	c.stopped = true
	c.gen++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}

	slog.Debug("refresh cancelled")
}

// Pending reports the delay of the timer that's waiting, if there is one.
func (c *Controller) Pending() (time.Duration, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped || c.timer == nil {
		return 0, false
	}
	return c.delay, true
}

// Due is when the pending timer goes off.
func (c *Controller) Due() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.due
}

func (c *Controller) fire(gen uint64) {
	c.mu.Lock()
	if c.stopped || gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.timer = nil // Fired, nothing pending while the run is going
	parent := c.ctx
	c.mu.Unlock()

	if parent.Err() != nil {
		return
	}

	ctx, cancel := context.WithTimeout(parent, c.cfg.Timeout)
	next, err := c.fn(ctx)
	cancel()

	c.mu.Lock()
	defer c.mu.Unlock()

	// Someone scheduled or cancelled while this was running; theirs wins.
	if c.stopped || gen != c.gen {
		return
	}

	if err != nil {
		c.failures++
		d, _ := c.backoff.Next() // Capped fibonacci never stops
		slog.Warn("refresh failed, backing off", "error", err, "in", d, "failures", c.failures)
		c.scheduleLocked(d)
		return
	}

	c.failures = 0
	c.backoff = newBackoff(c.cfg)
	if next <= 0 {
		next = c.cfg.DefaultInterval
	}
	c.scheduleLocked(next)
}
