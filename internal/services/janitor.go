package services

import (
	"context"
	"log/slog"

	"github.com/ahmetcoskunkizilkaya/vouch-backend/internal/clock"
	"github.com/ahmetcoskunkizilkaya/vouch-backend/internal/config"
	"github.com/ahmetcoskunkizilkaya/vouch-backend/internal/events"
	"github.com/ahmetcoskunkizilkaya/vouch-backend/internal/logging"
	"gorm.io/gorm"
)

type JanitorReport struct {
	ExpiredPasses int
	PrunedEvents  int64
	PrunedLogs    int64
}

// Janitor runs periodic maintenance: pass expiry, then event and log retention.
type Janitor struct {
	db     *gorm.DB
	clock  clock.Clock
	policy config.Policy
	passes *PassService
	feed   *events.Feed
}

func NewJanitor(db *gorm.DB, clk clock.Clock, policy config.Policy, passes *PassService, feed *events.Feed) *Janitor {
	return &Janitor{db: db, clock: clk, policy: policy, passes: passes, feed: feed}
}

// RunOnce performs one maintenance sweep. Each step runs even if an
// earlier one failed; the first error is returned.
func (j *Janitor) RunOnce(ctx context.Context) (JanitorReport, error) {
	var report JanitorReport
	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	n, err := j.passes.ExpireStale(ctx)
	report.ExpiredPasses = n
	keep(err)

	now := j.clock.Now()
	if j.policy.EventRetention > 0 {
		report.PrunedEvents, err = j.feed.Prune(ctx, now.Add(-j.policy.EventRetention))
		keep(err)
	}
	if j.policy.LogRetention > 0 {
		report.PrunedLogs, err = logging.PruneSystemLogs(ctx, j.db, now.Add(-j.policy.LogRetention))
		keep(err)
	}
	return report, firstErr
}

// Start runs RunOnce every JanitorInterval until ctx is cancelled.
func (j *Janitor) Start(ctx context.Context) {
	go func() {
		ticker := j.clock.NewTicker(j.policy.JanitorInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				report, err := j.RunOnce(ctx)
				if err != nil {
					slog.Error("janitor sweep failed", "error", err)
					continue
				}
				if report.ExpiredPasses > 0 || report.PrunedEvents > 0 || report.PrunedLogs > 0 {
					slog.Info("janitor sweep completed",
						"expired_passes", report.ExpiredPasses,
						"pruned_events", report.PrunedEvents,
						"pruned_logs", report.PrunedLogs)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}
