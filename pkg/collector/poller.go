package collector

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"craft-flipping/pkg/logging"
	"craft-flipping/pkg/tracker"
)

// Refresher runs one bulk refresh (tracker.Tracker implements it)
type Refresher interface {
	RefreshNow(ctx context.Context) tracker.RefreshOutcome
}

// PollerConfig configures the polling service.
type PollerConfig struct {
	Interval   time.Duration // Polling interval (default: 5m)
	Timeout    time.Duration // Per-refresh timeout (default: 2m)
	RetryDelay time.Duration // Backoff step after repeated failures (default: 30s)
	MaxRetries int           // Consecutive failures before backing off (default: 3)
	BackoffMax time.Duration // Maximum backoff duration (default: 15m)
}

// DefaultPollerConfig returns sensible defaults.
func DefaultPollerConfig() *PollerConfig {
	return &PollerConfig{
		Interval:   5 * time.Minute,
		Timeout:    2 * time.Minute,
		RetryDelay: 30 * time.Second,
		MaxRetries: 3,
		BackoffMax: 15 * time.Minute,
	}
}

// Stats is a point-in-time view of a poller
type Stats struct {
	Polls            int
	Successes        int
	ConsecutiveFails int
	LastOutcome      string
	LastSuccess      time.Time
}

// Poller refreshes prices on a fixed interval, backing off after repeated failures.
type Poller struct {
	refresher Refresher
	config    *PollerConfig
	logger    *logging.Logger

	mu    sync.Mutex
	stats Stats
}

// NewPoller creates a new Poller. A nil config uses defaults.
func NewPoller(refresher Refresher, config *PollerConfig, logger *logging.Logger) *Poller {
	if config == nil {
		config = DefaultPollerConfig()
	}
	return &Poller{
		refresher: refresher,
		config:    config,
		logger:    logging.OrQuiet(logger),
	}
}

// Run polls immediately and then every Interval until ctx is done
func (p *Poller) Run(ctx context.Context) error {
	p.logger.WithComponent("poller").WithField("interval", p.config.Interval.String()).Info("starting polling loop")

	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	for {
		if !p.poll(ctx) {
			if err := p.backoff(ctx); err != nil {
				return p.stopped()
			}
		}

		select {
		case <-ctx.Done():
			return p.stopped()
		case <-ticker.C:
		}
	}
}

func (p *Poller) stopped() error {
	p.logger.WithComponent("poller").Info("polling loop stopped")
	return nil
}

// poll runs one refresh and reports whether it succeeded
func (p *Poller) poll(ctx context.Context) bool {
	pollCtx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()

	outcome := p.refresher.RefreshNow(pollCtx)

	p.mu.Lock()
	p.stats.Polls++
	p.stats.LastOutcome = outcome.Message
	if outcome.Success {
		p.stats.Successes++
		p.stats.ConsecutiveFails = 0
		p.stats.LastSuccess = time.Now()
	} else {
		p.stats.ConsecutiveFails++
	}
	fails := p.stats.ConsecutiveFails
	p.mu.Unlock()

	log := p.logger.WithComponent("poller").WithField("refresh_id", outcome.ID.String())
	if outcome.Success {
		log.WithFields(logrus.Fields{
			"loaded":  outcome.Report.Loaded,
			"skipped": outcome.Report.Skipped,
			"pages":   outcome.Pages,
		}).Info("poll completed")
		return true
	}

	log.WithFields(logrus.Fields{
		"reason":            outcome.Message,
		"consecutive_fails": fails,
	}).Error("poll failed")
	return false
}

// backoff waits after MaxRetries consecutive failures. It returns ctx.Err() when cancelled.
func (p *Poller) backoff(ctx context.Context) error {
	d := p.backoffDuration()
	if d == 0 {
		return nil
	}

	p.logger.WithComponent("poller").WithField("backoff", d.String()).Warn("backing off due to repeated failures")

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (p *Poller) backoffDuration() time.Duration {
	p.mu.Lock()
	fails := p.stats.ConsecutiveFails
	p.mu.Unlock()

	if fails < p.config.MaxRetries {
		return 0
	}
	d := time.Duration(fails-p.config.MaxRetries+1) * p.config.RetryDelay
	if d > p.config.BackoffMax {
		d = p.config.BackoffMax
	}
	return d
}

// Stats returns current poller statistics.
func (p *Poller) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}
