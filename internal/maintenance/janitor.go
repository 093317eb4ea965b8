// Package maintenance schedules the background housekeeping jobs: the cache
// expiry sweep and the usage-window prune. Jobs mutate their targets only
// through the targets' own locked APIs, so they never race foreground
// operations.
package maintenance

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Sweeper is the cache surface the janitor needs.
type Sweeper interface {
	Sweep() int
}

// Pruner is the usage-tracker surface the janitor needs.
type Pruner interface {
	PruneWindow() int
}

// Janitor runs the periodic housekeeping schedule.
type Janitor struct {
	cron   *cron.Cron
	logger *slog.Logger
}

// NewJanitor creates a janitor sweeping the cache at the given interval and
// pruning the usage window hourly. A non-positive interval falls back to
// 5 minutes.
func NewJanitor(cache Sweeper, tracker Pruner, sweepInterval time.Duration, logger *slog.Logger) (*Janitor, error) {
	if sweepInterval <= 0 {
		sweepInterval = 5 * time.Minute
	}

	c := cron.New()

	if cache != nil {
		spec := fmt.Sprintf("@every %s", sweepInterval)
		if _, err := c.AddFunc(spec, func() {
			if removed := cache.Sweep(); removed > 0 {
				logger.Debug("Cache sweep removed expired entries", "removed", removed)
			}
		}); err != nil {
			return nil, fmt.Errorf("scheduling cache sweep: %w", err)
		}
	}

	if tracker != nil {
		if _, err := c.AddFunc("@hourly", func() {
			if removed := tracker.PruneWindow(); removed > 0 {
				logger.Debug("Usage window pruned", "removed", removed)
			}
		}); err != nil {
			return nil, fmt.Errorf("scheduling usage prune: %w", err)
		}
	}

	return &Janitor{cron: c, logger: logger}, nil
}

// Start begins running the schedule in the background.
func (j *Janitor) Start() {
	j.cron.Start()
	j.logger.Debug("Maintenance janitor started", "jobs", len(j.cron.Entries()))
}

// Stop stops the schedule and waits for any running job to finish.
func (j *Janitor) Stop() {
	ctx := j.cron.Stop()
	<-ctx.Done()
	j.logger.Debug("Maintenance janitor stopped")
}
