// Package ratelimit implements the request gate shared by every worker of a
// run. The gate hands out permits on a fixed interval derived from the API
// plan (Limit requests per Interval, plus an optional safety Margin), so in
// any half-open window of length Interval at most Limit permits are granted.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Prometheus metrics for the request gate.
var (
	permitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nrdata_ratelimit_permits_total",
		Help: "Total number of request permits granted",
	})

	waitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "nrdata_ratelimit_wait_seconds",
		Help:    "Time spent waiting for a request permit",
		Buckets: []float64{0.1, 0.5, 1, 5, 10, 20, 30, 60},
	})

	pausesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "nrdata_ratelimit_pauses_total",
		Help: "Total number of gate pauses requested by the API (Retry-After)",
	})
)

// Config holds the gate configuration.
type Config struct {
	// Limit is the number of requests allowed per Interval.
	Limit int

	// Interval is the window Limit applies to.
	Interval time.Duration

	// Margin is added to the spacing between consecutive permits.
	Margin time.Duration
}

// DefaultConfig returns a conservative configuration for the free API plan.
func DefaultConfig() Config {
	return Config{
		Limit:    3,
		Interval: time.Minute,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Limit <= 0 {
		return fmt.Errorf("rate limit must be > 0 (got %d)", c.Limit)
	}
	if c.Interval <= 0 {
		return fmt.Errorf("rate limit interval must be > 0 (got %s)", c.Interval)
	}
	if c.Margin < 0 {
		return fmt.Errorf("rate limit margin must be >= 0 (got %s)", c.Margin)
	}
	return nil
}

// Spacing returns the minimum time between two permits. Interval/Limit is
// rounded up so that Limit consecutive spacings never fall short of Interval.
func (c Config) Spacing() time.Duration {
	n := time.Duration(c.Limit)
	return (c.Interval+n-1)/n + c.Margin
}

// Gate is a permit gate backed by a rate.Limiter with a burst of one. It is
// safe for concurrent use.
//
// Reservations are made against the injected clock rather than time.Now, so
// a fake clock drives the gate in tests.
type Gate struct {
	clock   clockwork.Clock
	spacing time.Duration
	logger  zerolog.Logger
	waitLog rate.Sometimes

	mu          sync.Mutex
	limiter     *rate.Limiter
	last        time.Time
	pausedUntil time.Time
}

// NewGate creates a gate. A nil clock means the real clock.
func NewGate(cfg Config, clock clockwork.Clock, logger zerolog.Logger) (*Gate, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	spacing := cfg.Spacing()
	return &Gate{
		clock:   clock,
		spacing: spacing,
		logger:  logger,
		waitLog: rate.Sometimes{First: 1, Interval: 30 * time.Second},
		limiter: rate.NewLimiter(rate.Every(spacing), 1),
	}, nil
}

// Spacing returns the time between consecutive permits.
func (g *Gate) Spacing() time.Duration {
	return g.spacing
}

// Reserve claims the next free permit and returns the time at which it may
// be used. Permits are never handed out twice.
func (g *Gate) Reserve() time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()

	from := g.clock.Now()
	if g.pausedUntil.After(from) {
		from = g.pausedUntil
	}

	r := g.limiter.ReserveN(from, 1)
	at := from.Add(r.DelayFrom(from))

	// The limiter counts float64 tokens; rounding must never bring two
	// permits closer than spacing.
	if !g.last.IsZero() {
		if floor := g.last.Add(g.spacing); at.Before(floor) {
			at = floor
		}
	}
	g.last = at
	permitsTotal.Inc()
	return at
}

// Wait blocks until a permit is available or ctx is done. A permit claimed by
// a cancelled waiter is not returned to the gate.
func (g *Gate) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	at := g.Reserve()
	delay := at.Sub(g.clock.Now())
	if delay <= 0 {
		waitSeconds.Observe(0)
		return nil
	}

	waitSeconds.Observe(delay.Seconds())
	g.waitLog.Do(func() {
		g.logger.Debug().Dur("delay", delay).Msg("Waiting for request permit")
	})

	timer := g.clock.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.Chan():
		return nil
	}
}

// Pause holds every permit until at least d from now. The API uses it to
// signal an explicit back-off that applies to every worker. A shorter pause
// never shortens one already in effect.
func (g *Gate) Pause(d time.Duration) {
	if d <= 0 {
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	until := g.clock.Now().Add(d)
	if until.After(g.pausedUntil) && until.After(g.last) {
		g.pausedUntil = until
		pausesTotal.Inc()
		g.logger.Warn().
			Dur("pause", d).
			Time("resume_at", until).
			Msg("Request gate paused by API back-off")
	}
}
