package scheduler

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sails-verify/program-verifier/internal/events"
)

// Option configures a Scheduler at construction time.
type Option func(*config) error

type config struct {
	maxInProgress int
	checkInterval time.Duration
	emitter       events.Emitter
	registry      prometheus.Registerer
}

func defaultConfig() config {
	return config{
		maxInProgress: 4,
		checkInterval: 5 * time.Second,
		emitter:       events.NewNullEmitter(),
	}
}

// WithMaxInProgress bounds how many jobs the scheduler runs concurrently.
// The per-tick batch size is max(0, maxInProgress - currentInProgress).
func WithMaxInProgress(n int) Option {
	return func(c *config) error {
		if n <= 0 {
			return fmt.Errorf("max in progress must be positive, got %d", n)
		}
		c.maxInProgress = n
		return nil
	}
}

// WithCheckInterval sets the polling tick interval. Ticks that fire while
// a previous tick's dispatch is still running are coalesced by Go's
// time.Ticker, which drops missed ticks rather than queuing them.
func WithCheckInterval(d time.Duration) Option {
	return func(c *config) error {
		if d <= 0 {
			return fmt.Errorf("check interval must be positive, got %s", d)
		}
		c.checkInterval = d
		return nil
	}
}

// WithEmitter replaces the default NullEmitter with one that actually
// records lifecycle events.
func WithEmitter(e events.Emitter) Option {
	return func(c *config) error {
		if e == nil {
			return fmt.Errorf("emitter must not be nil")
		}
		c.emitter = e
		return nil
	}
}

// WithMetricsRegistry registers the scheduler's Prometheus metrics
// against registry instead of the default global registerer.
func WithMetricsRegistry(registry prometheus.Registerer) Option {
	return func(c *config) error {
		c.registry = registry
		return nil
	}
}
